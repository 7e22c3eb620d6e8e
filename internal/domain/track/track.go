// Package track provides the queue entry and resolved track entities.
package track

import (
	"time"

	"github.com/google/uuid"
)

// Track is a queue entry resolved to something the voice transport can stream.
type Track struct {
	Title      string        // Display title from the resolver
	StreamURL  string        // Direct audio-only stream URL
	WebpageURL string        // Page the track was resolved from
	Duration   time.Duration // Zero when the resolver does not report one
}

// Requester represents the guild member who added an entry.
type Requester struct {
	ID   string // Discord user ID
	Name string // Display name at request time
}

// QueueEntry represents a track reference waiting in a guild queue.
type QueueEntry struct {
	ID        string        // UUID, unique per enqueue
	URL       string        // Original media URL as given by the user or playlist
	Title     string        // Resolver metadata, empty when not looked up
	Duration  time.Duration // Resolver metadata, zero when unknown
	Requester Requester
	AddedAt   time.Time
}

// NewQueueEntry creates a queue entry stamped with a fresh ID and the current time.
func NewQueueEntry(url, title string, duration time.Duration, requester Requester) QueueEntry {
	return QueueEntry{
		ID:        uuid.New().String(),
		URL:       url,
		Title:     title,
		Duration:  duration,
		Requester: requester,
		AddedAt:   time.Now(),
	}
}

// DisplayName returns the title when known, the URL otherwise.
func (e QueueEntry) DisplayName() string {
	if e.Title != "" {
		return e.Title
	}
	return e.URL
}

// RequestedBy reports whether the entry was added by the given user.
func (e QueueEntry) RequestedBy(userID string) bool {
	return userID != "" && e.Requester.ID == userID
}
