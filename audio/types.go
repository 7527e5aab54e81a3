package audio

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sproutplay/audiokit/content"
	"github.com/sproutplay/audiokit/parameter"
)

// Category is a logical playback lane; each category owns one channel
type Category int

const (
	CategoryUIInteraction Category = iota
	CategoryInstruction
	CategorySuccessFeedback
	CategoryErrorFeedback
	CategoryCompletion
	CategoryBackgroundMusic
	CategoryAchievement
	CategoryMascot
	CategoryEncouragement
	categoryCount
)

// String returns the category name
func (c Category) String() string {
	switch c {
	case CategoryUIInteraction:
		return "ui-interaction"
	case CategoryInstruction:
		return "instruction"
	case CategorySuccessFeedback:
		return "success-feedback"
	case CategoryErrorFeedback:
		return "error-feedback"
	case CategoryCompletion:
		return "completion"
	case CategoryBackgroundMusic:
		return "background-music"
	case CategoryAchievement:
		return "achievement"
	case CategoryMascot:
		return "mascot"
	case CategoryEncouragement:
		return "encouragement"
	default:
		return "unknown"
	}
}

func (c Category) valid() bool {
	return c >= 0 && c < categoryCount
}

// Categories returns all playback categories in declaration order
func Categories() []Category {
	cats := make([]Category, categoryCount)
	for i := range cats {
		cats[i] = Category(i)
	}
	return cats
}

// Priority orders competing requests: Low < Normal < High < Critical
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
	priorityCount
)

// String returns the priority name
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (p Priority) valid() bool {
	return p >= 0 && p < priorityCount
}

// PlaybackState is the per-channel lifecycle state
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StateLoading
	StatePlaying
	StatePaused
	StateError
)

// String returns the state name
func (s PlaybackState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// legalTransitions encodes the closed transition set:
// Stopped -> Loading -> Playing <-> Paused -> Stopped, with Error
// reachable from Loading and Playing and acknowledged back to Stopped.
// Any state may stop.
var legalTransitions = map[PlaybackState][]PlaybackState{
	StateStopped: {StateLoading},
	StateLoading: {StatePlaying, StateStopped, StateError},
	StatePlaying: {StatePaused, StateStopped, StateError},
	StatePaused:  {StatePlaying, StateStopped},
	StateError:   {StateStopped},
}

// canTransition reports whether s -> to is a legal transition
func (s PlaybackState) canTransition(to PlaybackState) bool {
	for _, t := range legalTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// active reports whether the state occupies the channel
func (s PlaybackState) active() bool {
	return s == StateLoading || s == StatePlaying || s == StatePaused
}

// Request describes one sound to play
type Request struct {
	// ID is generated when empty
	ID string

	// Path plays a file directly, bypassing localization. Exactly one
	// of Path and Key must be set.
	Path string

	// Key resolves through the content library
	Key string

	// Language overrides the session language for Key lookups
	Language content.Language

	Category Category
	Priority Priority

	// Volume is the per-item level in [0,1]. Nil means unset and plays
	// at the item default; an explicit 0 is honored as silence.
	Volume *float64

	Loop    bool
	FadeIn  time.Duration
	FadeOut time.Duration

	// InterruptLower stops a lower-priority item on the same channel
	// instead of queueing behind it
	InterruptLower bool

	Cacheable   bool
	MaxDuration time.Duration
	AgeGroup    content.AgeGroup
}

// Vol wraps a per-item volume for Request literals
func Vol(v float64) *float64 {
	return &v
}

// normalize assigns a generated ID and the default volume when the
// caller supplied none
func (r *Request) normalize() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Volume == nil {
		r.Volume = Vol(parameter.DefaultItemVolume)
	}
}

// Validate rejects malformed requests before arbitration. Invalid
// requests are never clamped into range silently.
func (r *Request) Validate() error {
	if r.Path == "" && r.Key == "" {
		return fmt.Errorf("request %s: no path or key", r.ID)
	}
	if r.Path != "" && r.Key != "" {
		return fmt.Errorf("request %s: both path and key set", r.ID)
	}
	if !r.Category.valid() {
		return fmt.Errorf("request %s: invalid category %d", r.ID, r.Category)
	}
	if !r.Priority.valid() {
		return fmt.Errorf("request %s: invalid priority %d", r.ID, r.Priority)
	}
	if r.Volume != nil && (*r.Volume < 0 || *r.Volume > 1) {
		return fmt.Errorf("request %s: volume %v outside [0,1]", r.ID, *r.Volume)
	}
	if r.FadeIn < 0 || r.FadeOut < 0 {
		return fmt.Errorf("request %s: negative fade duration", r.ID)
	}
	if r.MaxDuration < 0 {
		return fmt.Errorf("request %s: negative max duration", r.ID)
	}
	return nil
}

// ref converts the request to a content reference
func (r *Request) ref() content.Ref {
	return content.Ref{
		Path:     r.Path,
		Key:      r.Key,
		Override: r.Language,
		AgeGroup: r.AgeGroup,
	}
}
