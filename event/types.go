package event

import "time"

// Type classifies playback events
type Type int

const (
	// TypeStarted fires when a request reaches Playing
	// Payload: RequestID, Channel
	TypeStarted Type = iota

	// TypeStopped fires when a channel settles in Stopped, including
	// after a fade-out completes
	TypeStopped

	// TypePaused fires on user or interruption pause
	TypePaused

	// TypeResumed fires when a paused channel returns to Playing
	TypeResumed

	// TypeVolumeChanged fires when a channel's effective volume settles
	// at a new value (ducking ramps report only the settled value)
	TypeVolumeChanged

	// TypeError carries a classified playback failure
	// Payload: Err (*audio.Error), RequestID when known
	TypeError

	// TypeHardwareChange forwards a route change (e.g. headphone
	// unplug) without pausing; the caller decides the reaction
	TypeHardwareChange
)

// String returns the event type name
func (t Type) String() string {
	switch t {
	case TypeStarted:
		return "started"
	case TypeStopped:
		return "stopped"
	case TypePaused:
		return "paused"
	case TypeResumed:
		return "resumed"
	case TypeVolumeChanged:
		return "volume-changed"
	case TypeError:
		return "error"
	case TypeHardwareChange:
		return "hardware-change"
	default:
		return "unknown"
	}
}

// Event is one playback notification. Seq increases monotonically per
// Channel; ordering across channels is not guaranteed.
type Event struct {
	Type      Type
	Channel   string
	Seq       uint64
	Time      time.Time
	RequestID string
	Volume    float64
	Err       error
}
