// Package guild owns the per-guild players and routes commands to them.
package guild

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voxbox/internal/app/filter"
	"github.com/osa030/voxbox/internal/app/notification"
	"github.com/osa030/voxbox/internal/app/playback"
	"github.com/osa030/voxbox/internal/app/voice"
	"github.com/osa030/voxbox/internal/domain/playlist"
	"github.com/osa030/voxbox/internal/domain/track"
	"github.com/osa030/voxbox/internal/infra/config"
	"github.com/osa030/voxbox/internal/infra/logger"
)

// Errors
var (
	ErrClosed         = errors.New("guild manager closed")
	ErrUnsupportedURL = errors.New("unsupported url")
)

// Resolver looks up user supplied URLs and resolves entries to streams.
type Resolver interface {
	playback.Resolver
	Supports(url string) bool
	Lookup(ctx context.Context, url string) (*playlist.Playlist, error)
}

// AddRequest is a request to append a URL (video or playlist) to a guild queue.
type AddRequest struct {
	GuildID   string
	URL       string
	Requester track.Requester
}

// Rejection records an entry refused by the filter chain.
type Rejection struct {
	Entry track.QueueEntry
	Code  string
}

// AddResult describes what an add request did.
type AddResult struct {
	Playlist    *playlist.Playlist
	Added       []track.QueueEntry
	Rejected    []Rejection
	Position    int // 1-based position of the first added entry
	QueueLength int
}

// Manager is the guild-keyed registry of players.
type Manager struct {
	mu sync.RWMutex

	config       *config.Config
	voice        *voice.Registry
	resolver     Resolver
	filterChain  *filter.Chain
	notification *notification.Manager
	players      map[string]*playback.Player

	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a new guild manager.
func NewManager(
	cfg *config.Config,
	voiceRegistry *voice.Registry,
	resolver Resolver,
	notifier *notification.Manager,
) (*Manager, error) {
	m := &Manager{
		config:       cfg,
		voice:        voiceRegistry,
		resolver:     resolver,
		filterChain:  filter.NewChain(),
		notification: notifier,
		players:      make(map[string]*playback.Player),
	}

	if err := m.setupFilters(); err != nil {
		return nil, err
	}
	return m, nil
}

// setupFilters builds the add-request chain from the enabled filters.
func (m *Manager) setupFilters() error {
	registered := filter.GetRegistered()
	for _, name := range filter.RegisteredNames() {
		if !m.config.IsFilterEnabled(name) {
			continue
		}
		f := registered[name]()
		if err := f.ValidateConfig(m.config.FilterSettings(name)); err != nil {
			return errors.Wrapf(err, "filter %s", name)
		}
		m.filterChain.Add(f)
		zlog.Info().Msgf("filter enabled: name=%s", name)
	}
	return nil
}

// GetOrCreate returns the guild's player, creating an idle one with an
// empty queue on first reference.
func (m *Manager) GetOrCreate(guildID string) (*playback.Player, error) {
	m.mu.RLock()
	p, ok := m.players[guildID]
	closed := m.closed
	m.mu.RUnlock()
	if ok {
		return p, nil
	}
	if closed {
		return nil, ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if p, ok := m.players[guildID]; ok {
		return p, nil
	}

	p = playback.NewPlayer(guildID, m.voice, m.resolver, playback.Config{
		Volume:         m.config.Playback.Volume,
		PollInterval:   m.config.PollInterval(),
		ResolveTimeout: m.config.ResolveTimeout(),
	})
	m.players[guildID] = p

	m.wg.Add(1)
	go m.forwardEvents(p)

	zlog.Debug().Msgf("guild: player created: guild=%s", guildID)
	return p, nil
}

// Get returns the guild's player without creating one.
func (m *Manager) Get(guildID string) (*playback.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[guildID]
	return p, ok
}

// Join connects the guild to the voice channel.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) error {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return err
	}
	if err := p.Join(ctx, channelID); err != nil {
		return err
	}
	zlog.Info().Msgf("guild: joined: guild=%s channel=%s", guildID, channelID)
	return nil
}

// Leave disconnects the guild and clears its queue.
func (m *Manager) Leave(ctx context.Context, guildID string) (int, error) {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return 0, err
	}
	return p.Leave(ctx)
}

// Add looks up the URL and appends every accepted entry to the guild queue.
// Playlists are expanded in order. Entries refused by the filter chain are
// reported in the result; if nothing was added ErrAllRejected is returned
// along with the result.
func (m *Manager) Add(ctx context.Context, req AddRequest) (*AddResult, error) {
	if !m.resolver.Supports(req.URL) {
		return nil, errors.Wrapf(ErrUnsupportedURL, "url=%s", req.URL)
	}

	p, err := m.GetOrCreate(req.GuildID)
	if err != nil {
		return nil, err
	}

	pl, err := m.resolver.Lookup(ctx, req.URL)
	if err != nil {
		zlog.Warn().Err(err).Msgf("guild: lookup failed: guild=%s url=%s", req.GuildID, req.URL)
		return nil, err
	}

	zlog.Debug().Msgf("guild: lookup: guild=%s url=%s single=%t items=%d duration=%s urls=%v",
		req.GuildID, req.URL, pl.Single, len(pl.Items), pl.TotalDuration(), pl.URLs())

	result := &AddResult{Playlist: pl}
	freq := filter.Request{GuildID: req.GuildID, Requester: req.Requester}
	for _, e := range pl.Entries(req.Requester) {
		check := m.filterChain.Execute(ctx, freq, e, p.Pending())
		if !check.Accepted {
			result.Rejected = append(result.Rejected, Rejection{Entry: e, Code: check.Code})
			continue
		}
		n := p.Enqueue(e)
		if len(result.Added) == 0 {
			result.Position = n
		}
		result.Added = append(result.Added, e)
	}
	result.QueueLength = p.Pending().Len()

	zlog.Info().Msgf("guild: add: guild=%s url=%s requester=%s added=%d rejected=%d queue=%d",
		req.GuildID, req.URL, req.Requester.ID, len(result.Added), len(result.Rejected), result.QueueLength)

	if len(result.Added) == 0 && len(result.Rejected) > 0 {
		return result, errors.WithStack(&filter.RejectError{Code: result.Rejected[0].Code, URL: req.URL})
	}
	return result, nil
}

// Queue returns up to limit pending entries and the total count. A guild
// never referenced before reports an empty queue.
func (m *Manager) Queue(guildID string, limit int) ([]track.QueueEntry, int) {
	p, ok := m.Get(guildID)
	if !ok {
		return nil, 0
	}
	return p.Queue(limit)
}

// Play starts draining the guild queue; announcements go to textChannelID.
func (m *Manager) Play(guildID, textChannelID string) error {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return err
	}
	return p.Play(textChannelID)
}

// Pause pauses the guild's current source.
func (m *Manager) Pause(guildID string) error {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return err
	}
	return p.Pause()
}

// Resume resumes the guild's paused source.
func (m *Manager) Resume(guildID string) error {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return err
	}
	return p.Resume()
}

// Skip stops the guild's current source.
func (m *Manager) Skip(guildID string) (track.QueueEntry, error) {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return track.QueueEntry{}, err
	}
	return p.Skip()
}

// SkipTo truncates the guild queue so position becomes the head.
func (m *Manager) SkipTo(guildID, textChannelID string, position int) (track.QueueEntry, error) {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return track.QueueEntry{}, err
	}
	return p.SkipTo(textChannelID, position)
}

// Shuffle randomizes the guild queue.
func (m *Manager) Shuffle(guildID string) error {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return err
	}
	return p.Shuffle()
}

// ClearQueue empties the guild queue.
func (m *Manager) ClearQueue(guildID string) (int, error) {
	p, err := m.GetOrCreate(guildID)
	if err != nil {
		return 0, err
	}
	return p.ClearQueue()
}

// Status returns a snapshot of every known guild, ordered by guild ID.
func (m *Manager) Status() []playback.Status {
	m.mu.RLock()
	players := make([]*playback.Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.RUnlock()

	statuses := make([]playback.Status, 0, len(players))
	for _, p := range players {
		statuses = append(statuses, p.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].GuildID < statuses[j].GuildID
	})
	return statuses
}

// Filters returns the enabled add-request filters.
func (m *Manager) Filters() []filter.Filter {
	return m.filterChain.Filters()
}

// Close stops every player and disconnects every voice session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	players := make([]*playback.Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	zlog.Info().Msgf("guild: closing: players=%d voice_sessions=%d", len(players), m.voice.Count())

	for _, p := range players {
		p.Close()
	}
	m.voice.DisconnectAll()
	m.wg.Wait()
}

// forwardEvents turns player events into announcements until the player closes.
func (m *Manager) forwardEvents(p *playback.Player) {
	defer m.wg.Done()

	log := logger.ForGuild(p.GuildID())
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("guild: event forwarder panicked: panic=%v", r)
		}
	}()

	for event := range p.Events() {
		log.Debug().Msgf("playback event: type=%s state=%s", event.Type, event.State)
		m.handlePlaybackEvent(event)
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	var a *notification.Announcement
	switch event.Type {
	case playback.EventTrackStarted:
		a = &notification.Announcement{
			Kind:    notification.KindNowPlaying,
			Message: fmt.Sprintf(m.config.GetMessage("now_playing"), event.Entry.URL),
		}
	case playback.EventQueueEmpty:
		a = &notification.Announcement{
			Kind:    notification.KindQueueEmpty,
			Message: m.config.GetMessage("queue_empty"),
		}
	case playback.EventResolveFailed:
		a = &notification.Announcement{
			Kind:    notification.KindResolveFailed,
			Message: fmt.Sprintf(m.config.GetMessage("resolve_failed"), event.Entry.DisplayName()),
		}
	default:
		return
	}

	a.GuildID = event.GuildID
	a.ChannelID = event.TextChannelID
	m.notification.Broadcast(a)
}
