package notification

import (
	"context"
	"sync"
)

const defaultHistorySize = 20

// Recorder is a Stream that keeps the most recent announcements per guild.
type Recorder struct {
	mu      sync.RWMutex
	size    int
	history map[string][]Announcement
}

// NewRecorder creates a recorder holding up to size announcements per guild.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &Recorder{
		size:    size,
		history: make(map[string][]Announcement),
	}
}

// Send records a copy of the announcement.
func (r *Recorder) Send(_ context.Context, a *Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := append(r.history[a.GuildID], *a)
	if len(h) > r.size {
		h = h[len(h)-r.size:]
	}
	r.history[a.GuildID] = h
	return nil
}

// Recent returns the guild's announcements, oldest first.
func (r *Recorder) Recent(guildID string) []Announcement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := r.history[guildID]
	out := make([]Announcement, len(h))
	copy(out, h)
	return out
}
