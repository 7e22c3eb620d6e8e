// Package voicetest provides in-memory voice sessions for tests.
package voicetest

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voxbox/internal/app/voice"
)

// Session is a fake voice.Session. When AutoFinish is set every source
// completes as soon as it starts; otherwise the test ends it with Finish.
type Session struct {
	mu sync.Mutex

	channelID  string
	AutoFinish bool
	PlayErr    error

	played       []string
	volumes      []float64
	playing      bool
	paused       bool
	disconnected bool
	onDone       func(error)
	started      chan string
}

var _ voice.Session = (*Session)(nil)

// NewSession creates a fake session connected to channelID.
func NewSession(channelID string) *Session {
	return &Session{
		channelID: channelID,
		started:   make(chan string, 64),
	}
}

func (s *Session) ChannelID() string {
	return s.channelID
}

func (s *Session) Play(_ context.Context, streamURL string, volume float64, onDone func(error)) error {
	s.mu.Lock()
	if s.PlayErr != nil {
		err := s.PlayErr
		s.mu.Unlock()
		return err
	}
	if s.disconnected {
		s.mu.Unlock()
		return errors.New("voicetest: session disconnected")
	}
	s.played = append(s.played, streamURL)
	s.volumes = append(s.volumes, volume)
	s.playing = true
	s.paused = false
	s.onDone = onDone
	auto := s.AutoFinish
	s.mu.Unlock()

	select {
	case s.started <- streamURL:
	default:
	}

	if auto {
		go s.Finish(nil)
	}
	return nil
}

// Finish ends the current source with err as if the stream completed.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	done := s.onDone
	s.onDone = nil
	s.playing = false
	s.paused = false
	s.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// DropCallback ends the current source without invoking its completion
// callback, leaving only the playing flag to signal the end.
func (s *Session) DropCallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDone = nil
	s.playing = false
	s.paused = false
}

func (s *Session) Stop() {
	s.Finish(nil)
}

func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.paused = true
	}
}

func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.paused
}

func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Session) Disconnect() error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

// Started yields each stream URL as playback of it begins.
func (s *Session) Started() <-chan string {
	return s.started
}

// Played returns every stream URL passed to Play, in order.
func (s *Session) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.played))
	copy(out, s.played)
	return out
}

// Volumes returns the gain passed with each Play call.
func (s *Session) Volumes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.volumes))
	copy(out, s.volumes)
	return out
}

// Disconnected reports whether Disconnect was called.
func (s *Session) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// Connector hands out fake sessions and remembers them per guild.
type Connector struct {
	mu sync.Mutex

	AutoFinish bool
	Err        error
	sessions   map[string][]*Session
}

var _ voice.Connector = (*Connector)(nil)

// NewConnector creates a fake connector.
func NewConnector() *Connector {
	return &Connector{sessions: make(map[string][]*Session)}
}

func (c *Connector) Connect(_ context.Context, guildID, channelID string) (voice.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	s := NewSession(channelID)
	s.AutoFinish = c.AutoFinish
	c.sessions[guildID] = append(c.sessions[guildID], s)
	return s, nil
}

// Last returns the most recent session opened for the guild, or nil.
func (c *Connector) Last(guildID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	ss := c.sessions[guildID]
	if len(ss) == 0 {
		return nil
	}
	return ss[len(ss)-1]
}

// Opened returns every session opened for the guild.
func (c *Connector) Opened(guildID string) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, len(c.sessions[guildID]))
	copy(out, c.sessions[guildID])
	return out
}
