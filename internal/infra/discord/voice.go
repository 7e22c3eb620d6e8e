// Package discord adapts discordgo to the voice and announcement interfaces.
package discord

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"

	"github.com/osa030/voxbox/internal/app/voice"
)

// Errors
var (
	ErrAlreadyPlaying = errors.New("voice session is already playing")
	ErrNotReady       = errors.New("voice connection not ready")
)

const (
	opusBitrate    = 128000
	sendTimeout    = 100 * time.Millisecond
	readBufferSize = 16384
)

// Connector joins voice channels through a discordgo session.
type Connector struct {
	session    *discordgo.Session
	ffmpegPath string
}

var _ voice.Connector = (*Connector)(nil)

// NewConnector creates a connector that decodes sources with the ffmpeg binary at ffmpegPath.
func NewConnector(session *discordgo.Session, ffmpegPath string) *Connector {
	return &Connector{
		session:    session,
		ffmpegPath: ffmpegPath,
	}
}

// Connect joins the channel deafened and returns a session ready to stream.
func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (voice.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, errors.Wrap(err, "join voice channel")
	}
	return newVoiceSession(vc, channelID, c.ffmpegPath), nil
}

// voiceSession streams one ffmpeg-decoded source at a time into a voice connection.
type voiceSession struct {
	mu sync.Mutex

	conn       *discordgo.VoiceConnection
	channelID  string
	ffmpegPath string

	playing bool
	paused  bool
	cancel  context.CancelFunc
	resume  chan struct{}
}

func newVoiceSession(conn *discordgo.VoiceConnection, channelID, ffmpegPath string) *voiceSession {
	return &voiceSession{
		conn:       conn,
		channelID:  channelID,
		ffmpegPath: ffmpegPath,
	}
}

func (s *voiceSession) ChannelID() string {
	return s.channelID
}

// Play starts ffmpeg on streamURL and streams its output in the background.
func (s *voiceSession) Play(ctx context.Context, streamURL string, volume float64, onDone func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playing {
		return ErrAlreadyPlaying
	}
	if !s.conn.Ready {
		return ErrNotReady
	}

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return errors.Wrap(err, "create opus encoder")
	}
	encoder.SetBitrate(opusBitrate)

	streamCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(streamCtx, s.ffmpegPath,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return errors.Wrap(err, "ffmpeg stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return errors.Wrap(err, "start ffmpeg")
	}

	s.playing = true
	s.paused = false
	s.cancel = cancel

	go s.stream(streamCtx, cmd, stdout, encoder, volume, onDone)
	return nil
}

func (s *voiceSession) stream(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, encoder *gopus.Encoder, volume float64, onDone func(error)) {
	if err := s.conn.Speaking(true); err != nil {
		zlog.Warn().Err(err).Msgf("voice: speaking(true) failed: channel=%s", s.channelID)
	}

	pcm := newPCMStreamer(bufio.NewReaderSize(stdout, readBufferSize))
	frames := newFrameReader(withGain(pcm, volume))
	streamErr := s.sendFrames(ctx, frames, encoder)
	if streamErr == nil {
		streamErr = pcm.Err()
	}

	waitErr := cmd.Wait()
	if err := s.conn.Speaking(false); err != nil {
		zlog.Debug().Err(err).Msgf("voice: speaking(false) failed: channel=%s", s.channelID)
	}

	stopped := ctx.Err() != nil

	s.mu.Lock()
	s.playing = false
	s.paused = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	var err error
	switch {
	case stopped:
	case streamErr != nil:
		err = streamErr
	case waitErr != nil:
		err = errors.Wrap(waitErr, "ffmpeg exited")
	}
	onDone(err)
}

func (s *voiceSession) sendFrames(ctx context.Context, frames *frameReader, encoder *gopus.Encoder) error {
	for {
		if err := s.waitWhilePaused(ctx); err != nil {
			return nil
		}

		frame, ok := frames.Next()
		if !ok {
			return nil
		}

		packet, err := encoder.Encode(frame, frameSize, maxBytes)
		if err != nil {
			return errors.Wrap(err, "opus encode")
		}

		if !s.conn.Ready || s.conn.OpusSend == nil {
			return ErrNotReady
		}

		select {
		case s.conn.OpusSend <- packet:
		case <-ctx.Done():
			return nil
		case <-time.After(sendTimeout):
			zlog.Debug().Msgf("voice: opus send blocked, dropping frame: channel=%s", s.channelID)
		}
	}
}

// waitWhilePaused blocks while the session is paused. It returns ctx's
// error if the stream is stopped meanwhile.
func (s *voiceSession) waitWhilePaused(ctx context.Context) error {
	s.mu.Lock()
	resume := s.resume
	paused := s.paused
	s.mu.Unlock()

	if !paused || resume == nil {
		return ctx.Err()
	}

	select {
	case <-resume:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *voiceSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.releasePauseLocked()
}

func (s *voiceSession) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || s.paused {
		return
	}
	s.paused = true
	s.resume = make(chan struct{})
}

func (s *voiceSession) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releasePauseLocked()
}

// releasePauseLocked must be called with mu held.
func (s *voiceSession) releasePauseLocked() {
	if !s.paused {
		return
	}
	s.paused = false
	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}
}

func (s *voiceSession) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.paused
}

func (s *voiceSession) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *voiceSession) Disconnect() error {
	s.Stop()
	if err := s.conn.Disconnect(); err != nil {
		return errors.Wrap(err, "leave voice channel")
	}
	return nil
}
