// Package playlist provides the resolver lookup result entity.
package playlist

import (
	"time"

	"github.com/osa030/voxbox/internal/domain/track"
)

// Item is one playable reference found by a lookup.
type Item struct {
	URL      string
	Title    string
	Duration time.Duration
}

// Playlist is the result of looking up a user supplied URL.
// A plain video URL yields a Playlist with Single set and exactly one item.
type Playlist struct {
	ID     string // Playlist ID, empty for single videos
	Title  string // Playlist title, or the video title for single videos
	URL    string // URL the lookup was made with
	Single bool
	Items  []Item
}

// URLs returns the item URLs in playlist order.
func (p *Playlist) URLs() []string {
	urls := make([]string, len(p.Items))
	for i, it := range p.Items {
		urls[i] = it.URL
	}
	return urls
}

// TotalDuration returns the sum of the known item durations.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, it := range p.Items {
		total += it.Duration
	}
	return total
}

// Entries converts the items into queue entries for the given requester,
// preserving playlist order.
func (p *Playlist) Entries(requester track.Requester) []track.QueueEntry {
	entries := make([]track.QueueEntry, len(p.Items))
	for i, it := range p.Items {
		entries[i] = track.NewQueueEntry(it.URL, it.Title, it.Duration, requester)
	}
	return entries
}
