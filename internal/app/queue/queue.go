// Package queue provides the per-guild ordered store of pending entries.
package queue

import (
	"math/rand"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voxbox/internal/domain/track"
)

// Errors
var (
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrIndexOutOfRange = errors.New("queue position out of range")
)

// Queue is an ordered list of entries waiting to be played in one guild.
// The zero value is not usable; call New.
type Queue struct {
	mu      sync.RWMutex
	guildID string
	entries []track.QueueEntry
}

// New creates an empty queue for the guild.
func New(guildID string) *Queue {
	return &Queue{
		guildID: guildID,
		entries: make([]track.QueueEntry, 0),
	}
}

// GuildID returns the owning guild.
func (q *Queue) GuildID() string {
	return q.guildID
}

// Add appends an entry and returns its 1-based position.
func (q *Queue) Add(e track.QueueEntry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, e)
	return len(q.entries)
}

// AddMany appends entries in order and returns the new length.
func (q *Queue) AddMany(es []track.QueueEntry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, es...)
	return len(q.entries)
}

// PopFront removes and returns the earliest entry.
func (q *Queue) PopFront() (track.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return track.QueueEntry{}, ErrQueueEmpty
	}

	e := q.entries[0]
	// Drop the reference so popped entries can be collected.
	q.entries[0] = track.QueueEntry{}
	q.entries = q.entries[1:]
	return e, nil
}

// Peek returns the earliest entry without removing it.
func (q *Queue) Peek() (track.QueueEntry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.entries) == 0 {
		return track.QueueEntry{}, false
	}
	return q.entries[0], true
}

// Clear empties the queue in place and returns what was removed.
func (q *Queue) Clear() []track.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.entries
	q.entries = make([]track.QueueEntry, 0)
	return removed
}

// Shuffle applies a uniform random permutation (Fisher-Yates) to the pending entries.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	rand.Shuffle(len(q.entries), func(i, j int) {
		q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	})
}

// TruncateTo discards every entry before the 1-based position index.
// The entry at index becomes the head. Valid positions are 1..Len();
// anything else returns ErrIndexOutOfRange and leaves the queue untouched.
func (q *Queue) TruncateTo(index int) (track.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 1 || index > len(q.entries) {
		return track.QueueEntry{}, errors.Wrapf(ErrIndexOutOfRange, "position %d, valid range 1..%d", index, len(q.entries))
	}

	kept := make([]track.QueueEntry, len(q.entries)-(index-1))
	copy(kept, q.entries[index-1:])
	q.entries = kept
	return q.entries[0], nil
}

// List returns a copy of at most limit entries from the head.
// A limit of zero or less returns every entry.
func (q *Queue) List(limit int) []track.QueueEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := len(q.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]track.QueueEntry, n)
	copy(result, q.entries[:n])
	return result
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// IsEmpty returns true if nothing is pending.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Contains reports whether an entry with the given URL is pending.
func (q *Queue) Contains(url string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, e := range q.entries {
		if e.URL == url {
			return true
		}
	}
	return false
}

// CountBy returns the number of pending entries added by the user.
func (q *Queue) CountBy(userID string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, e := range q.entries {
		if e.RequestedBy(userID) {
			n++
		}
	}
	return n
}
