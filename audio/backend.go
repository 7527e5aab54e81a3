package audio

import (
	"context"
	"time"
)

// Source is a resolved, loaded sound ready for the backend
type Source struct {
	Path        string
	Payload     []byte
	Loop        bool
	MaxDuration time.Duration
	Duration    time.Duration
}

// Handle controls one opened sound on the backend
type Handle interface {
	// Start begins output at the given volume
	Start(volume float64) error

	Pause()
	Resume()

	// Stop ends output immediately; Done fires afterwards
	Stop()

	// SetVolume adjusts the output level mid-playback
	SetVolume(v float64)

	// Position reports elapsed playback time
	Position() time.Duration

	// Done fires once when playback finishes or is stopped. Looping
	// sounds never finish on their own.
	Done() <-chan struct{}

	// Err returns the playback failure after Done, nil on clean end
	Err() error
}

// Backend is the platform media capability the engine depends on.
// Implementations must be safe for concurrent use; a test double
// substitutes in unit tests.
type Backend interface {
	// Open decodes src and prepares a playback handle. It honors ctx
	// cancellation and returns classified errors (*Error).
	Open(ctx context.Context, src Source) (Handle, error)

	// Close releases the output device
	Close() error
}
