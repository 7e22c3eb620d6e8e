// Package playback runs the per-guild queue drain and exposes transport commands.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing streaming (queue drained, stopped or between tracks)
	StatePlaying              // A source is streaming
	StatePaused               // The current source is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
