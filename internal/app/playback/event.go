package playback

import "github.com/osa030/voxbox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted  EventType = iota // Source started streaming
	EventTrackEnded                     // Source finished or was stopped
	EventTrackSkipped                   // Current source was skipped by a user
	EventResolveFailed                  // Entry could not be resolved and was dropped
	EventStateChanged                   // Playback state changed (pause/resume)
	EventQueueEmpty                     // Loop drained the queue and stopped
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventResolveFailed:
		return "resolve_failed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type          EventType
	GuildID       string
	TextChannelID string            // Channel that started the loop
	Entry         *track.QueueEntry // Entry concerned (nil for queue_empty)
	Track         *track.Track      // Resolved track (track_started only)
	State         State             // Playback state after the event
	Err           error             // Resolution error (resolve_failed only)
}
