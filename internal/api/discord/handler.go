package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/voxbox/internal/app/filter"
	"github.com/osa030/voxbox/internal/app/guild"
	"github.com/osa030/voxbox/internal/app/playback"
	"github.com/osa030/voxbox/internal/domain/track"
	"github.com/osa030/voxbox/internal/infra/config"
	"github.com/osa030/voxbox/internal/infra/logger"
)

// Guilds is the guild state the handler drives.
type Guilds interface {
	Join(ctx context.Context, guildID, channelID string) error
	Leave(ctx context.Context, guildID string) (int, error)
	Add(ctx context.Context, req guild.AddRequest) (*guild.AddResult, error)
	Queue(guildID string, limit int) ([]track.QueueEntry, int)
	Play(guildID, textChannelID string) error
	Pause(guildID string) error
	Resume(guildID string) error
	Skip(guildID string) (track.QueueEntry, error)
	SkipTo(guildID, textChannelID string, position int) (track.QueueEntry, error)
	Shuffle(guildID string) error
	ClearQueue(guildID string) (int, error)
}

// Request is one slash command invocation.
type Request struct {
	Command        string
	GuildID        string
	ChannelID      string // text channel the command was issued in
	VoiceChannelID string // caller's voice channel, empty when not in voice
	User           track.Requester
	URL            string
	Position       int
}

// Handler dispatches slash commands to the guild manager.
type Handler struct {
	config *config.Config
	guilds Guilds

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewHandler creates a new command handler.
func NewHandler(cfg *config.Config, guilds Guilds) *Handler {
	return &Handler{
		config:   cfg,
		guilds:   guilds,
		limiters: make(map[string]*rate.Limiter),
	}
}

// OnInteractionCreate is the discordgo handler for slash commands.
func (h *Handler) OnInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	req := h.requestFromInteraction(s, i)
	ctx, cancel := context.WithTimeout(context.Background(), h.config.CommandTimeout())
	defer cancel()

	if err := h.Handle(ctx, req, newInteractionResponder(s, i.Interaction)); err != nil {
		zlog.Error().Err(err).Msgf("command failed: guild=%s user=%s command=%s", req.GuildID, req.User.ID, req.Command)
	}
}

func (h *Handler) requestFromInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) Request {
	data := i.ApplicationCommandData()
	req := Request{
		Command:   data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}

	switch {
	case i.Member != nil && i.Member.User != nil:
		req.User = track.Requester{ID: i.Member.User.ID, Name: i.Member.DisplayName()}
	case i.User != nil:
		req.User = track.Requester{ID: i.User.ID, Name: i.User.Username}
	}

	for _, opt := range data.Options {
		switch opt.Name {
		case optURL:
			req.URL = strings.TrimSpace(opt.StringValue())
		case optNumber:
			req.Position = int(opt.IntValue())
		}
	}

	if req.GuildID != "" && req.User.ID != "" && s.State != nil {
		if vs, err := s.State.VoiceState(req.GuildID, req.User.ID); err == nil && vs != nil {
			req.VoiceChannelID = vs.ChannelID
		}
	}
	return req
}

// Handle runs one command and sends exactly one acknowledgement through r.
func (h *Handler) Handle(ctx context.Context, req Request, r Responder) error {
	log := logger.ForCommand(req.GuildID, req.User.ID, req.Command)
	log.Debug().Msgf("command received: channel=%s voice=%s", req.ChannelID, req.VoiceChannelID)

	if req.GuildID == "" {
		return r.Reply(h.config.GetMessage("default_error"), true)
	}
	if !h.allow(req.User.ID) {
		log.Warn().Msg("command rate limited")
		return r.Reply(h.config.GetMessage("rate_limited"), true)
	}

	switch req.Command {
	case CmdJoin:
		return h.join(ctx, req, r)
	case CmdLeave:
		return h.leave(ctx, req, r)
	case CmdAdd:
		return h.add(ctx, req, r, log)
	case CmdQueue:
		return h.queue(req, r)
	case CmdPlay:
		return h.reply(r, h.guilds.Play(req.GuildID, req.ChannelID), "starting_playback", log)
	case CmdPause:
		return h.reply(r, h.guilds.Pause(req.GuildID), "paused", log)
	case CmdResume:
		return h.reply(r, h.guilds.Resume(req.GuildID), "resumed", log)
	case CmdSkip:
		_, err := h.guilds.Skip(req.GuildID)
		return h.reply(r, err, "skipped", log)
	case CmdSkipTo:
		return h.skipTo(req, r, log)
	case CmdShuffle:
		return h.reply(r, h.guilds.Shuffle(req.GuildID), "shuffled", log)
	case CmdClearQueue:
		_, err := h.guilds.ClearQueue(req.GuildID)
		return h.reply(r, err, "cleared", log)
	default:
		log.Warn().Msg("unknown command")
		return r.Reply(h.config.GetMessage("default_error"), true)
	}
}

// allow reports whether the user is within the command rate limit.
func (h *Handler) allow(userID string) bool {
	h.limitersMu.Lock()
	defer h.limitersMu.Unlock()

	l, ok := h.limiters[userID]
	if !ok {
		every := time.Minute / time.Duration(h.config.Commands.RatePerMinute)
		l = rate.NewLimiter(rate.Every(every), h.config.Commands.Burst)
		h.limiters[userID] = l
	}
	return l.Allow()
}

// reply sends the success message, or the ephemeral message for err.
func (h *Handler) reply(r Responder, err error, successCode string, log zerolog.Logger) error {
	if err != nil {
		return r.Reply(h.errorMessage(err, log), true)
	}
	return r.Reply(h.config.GetMessage(successCode), false)
}

// errorMessage maps a command error to its user-facing message.
func (h *Handler) errorMessage(err error, log zerolog.Logger) string {
	switch {
	case errors.Is(err, playback.ErrNotConnected):
		return h.config.GetMessage("not_connected")
	case errors.Is(err, playback.ErrQueueEmpty):
		return h.config.GetMessage("queue_empty")
	case errors.Is(err, playback.ErrAlreadyRunning):
		return h.config.GetMessage("already_playing")
	case errors.Is(err, playback.ErrNothingToPause):
		return h.config.GetMessage("nothing_to_pause")
	case errors.Is(err, playback.ErrNotPaused):
		return h.config.GetMessage("not_paused")
	case errors.Is(err, playback.ErrNothingPlaying):
		return h.config.GetMessage("nothing_playing")
	}
	if code, ok := filter.AsReject(err); ok {
		return h.config.GetMessage(code)
	}
	log.Error().Err(err).Msg("command error")
	return h.config.GetMessage("default_error")
}

func (h *Handler) join(ctx context.Context, req Request, r Responder) error {
	if req.VoiceChannelID == "" {
		return r.Reply(h.config.GetMessage("not_in_voice"), true)
	}
	if err := h.guilds.Join(ctx, req.GuildID, req.VoiceChannelID); err != nil {
		zlog.Error().Err(err).Msgf("join failed: guild=%s channel=%s", req.GuildID, req.VoiceChannelID)
		return r.Reply(h.config.GetMessage("default_error"), true)
	}
	return r.Reply(fmt.Sprintf(h.config.GetMessage("joined"), "<#"+req.VoiceChannelID+">"), false)
}

func (h *Handler) leave(ctx context.Context, req Request, r Responder) error {
	if _, err := h.guilds.Leave(ctx, req.GuildID); err != nil {
		if errors.Is(err, playback.ErrNotConnected) {
			return r.Reply(h.config.GetMessage("not_connected"), true)
		}
		zlog.Error().Err(err).Msgf("leave failed: guild=%s", req.GuildID)
		return r.Reply(h.config.GetMessage("default_error"), true)
	}
	return r.Reply(h.config.GetMessage("left"), false)
}

// add defers the acknowledgement because the lookup can take a while.
func (h *Handler) add(ctx context.Context, req Request, r Responder, log zerolog.Logger) error {
	if req.URL == "" {
		return r.Reply(fmt.Sprintf(h.config.GetMessage("lookup_failed"), req.URL), true)
	}
	if err := r.Defer(false); err != nil {
		return err
	}

	res, err := h.guilds.Add(ctx, guild.AddRequest{
		GuildID:   req.GuildID,
		URL:       req.URL,
		Requester: req.User,
	})
	if err != nil {
		if errors.Is(err, guild.ErrUnsupportedURL) {
			return r.Followup(h.config.GetMessage("unsupported_url"), true)
		}
		if code, ok := filter.AsReject(err); ok {
			return r.Followup(h.config.GetMessage(code), true)
		}
		log.Warn().Err(err).Msgf("add failed: url=%s", req.URL)
		return r.Followup(fmt.Sprintf(h.config.GetMessage("lookup_failed"), req.URL), true)
	}

	var msg string
	switch {
	case len(res.Rejected) > 0:
		msg = fmt.Sprintf(h.config.GetMessage("added_partial"),
			len(res.Added), len(res.Added)+len(res.Rejected), len(res.Rejected))
	case res.Playlist.Single:
		msg = fmt.Sprintf(h.config.GetMessage("added"), req.URL)
	default:
		msg = fmt.Sprintf(h.config.GetMessage("added_playlist"), len(res.Added), res.Playlist.Title)
	}
	return r.Followup(msg, false)
}

func (h *Handler) queue(req Request, r Responder) error {
	entries, total := h.guilds.Queue(req.GuildID, h.config.Playback.QueueDisplayLimit)
	if total == 0 {
		return r.Reply(h.config.GetMessage("queue_empty"), true)
	}

	var b strings.Builder
	fmt.Fprintf(&b, h.config.GetMessage("queue_header"), total)
	for i, e := range entries {
		fmt.Fprintf(&b, "\n%d. %s", i+1, e.DisplayName())
	}
	if rest := total - len(entries); rest > 0 {
		fmt.Fprintf(&b, "\n... and %d more", rest)
	}
	return r.Reply(b.String(), true)
}

func (h *Handler) skipTo(req Request, r Responder, log zerolog.Logger) error {
	head, err := h.guilds.SkipTo(req.GuildID, req.ChannelID, req.Position)
	if err != nil {
		if errors.Is(err, playback.ErrIndexOutOfRange) {
			_, total := h.guilds.Queue(req.GuildID, 0)
			return r.Reply(fmt.Sprintf(h.config.GetMessage("invalid_position"), total), true)
		}
		return r.Reply(h.errorMessage(err, log), true)
	}
	return r.Reply(fmt.Sprintf(h.config.GetMessage("skipped_to"), req.Position, head.DisplayName()), false)
}
