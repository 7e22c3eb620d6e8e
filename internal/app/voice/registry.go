package voice

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected to a voice channel")
)

// Registry maps guilds to their active voice session.
type Registry struct {
	mu        sync.RWMutex
	connector Connector
	sessions  map[string]Session
}

// NewRegistry creates a new voice session registry.
func NewRegistry(connector Connector) *Registry {
	return &Registry{
		connector: connector,
		sessions:  make(map[string]Session),
	}
}

// Connect joins channelID in the guild. An existing session for the guild
// is torn down before the new one is opened.
func (r *Registry) Connect(ctx context.Context, guildID, channelID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[guildID]; ok {
		delete(r.sessions, guildID)
		if err := old.Disconnect(); err != nil {
			zlog.Warn().Err(err).Msgf("voice: failed to disconnect previous session: guild=%s channel=%s", guildID, old.ChannelID())
		}
	}

	s, err := r.connector.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, errors.Wrapf(err, "connect voice: guild=%s channel=%s", guildID, channelID)
	}
	r.sessions[guildID] = s

	zlog.Info().Msgf("voice: connected: guild=%s channel=%s", guildID, channelID)
	return s, nil
}

// Disconnect tears down the guild's session. It is a no-op when the guild
// has no session.
func (r *Registry) Disconnect(guildID string) error {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	if err := s.Disconnect(); err != nil {
		return errors.Wrapf(err, "disconnect voice: guild=%s", guildID)
	}
	zlog.Info().Msgf("voice: disconnected: guild=%s channel=%s", guildID, s.ChannelID())
	return nil
}

// Get returns the guild's session.
func (r *Registry) Get(guildID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[guildID]
	if !ok {
		return nil, ErrNotConnected
	}
	return s, nil
}

// IsConnected reports whether the guild has a session.
func (r *Registry) IsConnected(guildID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[guildID]
	return ok
}

// IsPlaying reports whether the guild's session is streaming.
func (r *Registry) IsPlaying(guildID string) bool {
	s, err := r.Get(guildID)
	if err != nil {
		return false
	}
	return s.IsPlaying()
}

// IsPaused reports whether the guild's session is paused.
func (r *Registry) IsPaused(guildID string) bool {
	s, err := r.Get(guildID)
	if err != nil {
		return false
	}
	return s.IsPaused()
}

// Count returns the number of connected guilds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DisconnectAll tears down every session. Used at shutdown.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Session)
	r.mu.Unlock()

	for guildID, s := range sessions {
		if err := s.Disconnect(); err != nil {
			zlog.Warn().Err(err).Msgf("voice: failed to disconnect: guild=%s", guildID)
		}
	}
}
