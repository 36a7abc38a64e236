package playback

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted    EventType = iota // A track started playing
	EventTrackEnded                       // The current track reached its duration
	EventStateChanged                     // Play, pause, stop or loading changed
	EventPositionChanged                  // Position moved by tick or seek
	EventQueueChanged                     // Entries added, removed or reordered
	EventModeChanged                      // Repeat or shuffle changed
	EventQueueEnded                       // Progression ran past the last entry
	EventError                            // A backend operation failed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventStateChanged:
		return "state_changed"
	case EventPositionChanged:
		return "position_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventQueueEnded:
		return "queue_ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Persistent reports whether the event changes state worth saving.
// Position ticks are excluded.
func (e EventType) Persistent() bool {
	return e != EventPositionChanged && e != EventError
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Snapshot Snapshot // State right after the change
	Err      error    // Set for EventError
}
