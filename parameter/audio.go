package parameter

import "time"

// Playback Output Settings
const (
	SampleRate     = 44100
	BufferDuration = 100 * time.Millisecond
)

// Fade Defaults
const (
	// DefaultFadeOut applies to displaced items that carry no explicit
	// fade-out of their own
	DefaultFadeOut = 200 * time.Millisecond

	// FadeTick is the ramp update interval; 10ms keeps steps inaudible
	FadeTick = 10 * time.Millisecond
)

// Ducking
const (
	// DuckingVolume is the effective volume a ducked channel settles at
	DuckingVolume = 0.2

	// DuckingTransition bounds the ramp down to (and back up from)
	// DuckingVolume
	DuckingTransition = 300 * time.Millisecond
)

// Volume Defaults
const (
	DefaultMasterVolume  = 0.8
	DefaultSafetyCeiling = 0.85
	DefaultItemVolume    = 1.0
)

// Cache
const (
	// DefaultCacheBudget caps total payload bytes held in memory
	DefaultCacheBudget = 10 << 20 // 10 MiB

	// CacheStaleness is the last-access age beyond which entries are
	// dropped by a keep-recent clear
	CacheStaleness = 30 * time.Minute

	// CacheAgeSpread is the creation-age difference above which eviction
	// tie-breaks on access frequency instead of recency
	CacheAgeSpread = time.Hour
)

// Load Path Timing
const (
	// LoadTimeout bounds resolution plus backend open; a channel never
	// sits in Loading longer than this
	LoadTimeout = 30 * time.Second

	// RetryDelay precedes the single automatic retry for DeviceBusy
	RetryDelay = 250 * time.Millisecond
)

// Events
const (
	// EventBuffer is the default per-subscriber queue depth
	EventBuffer = 64
)
