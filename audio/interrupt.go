package audio

import (
	"sync"

	"github.com/sproutplay/audiokit/event"
)

// InterruptionKind classifies external events delivered by the OS
// integration layer
type InterruptionKind int

const (
	InterruptPhoneCall InterruptionKind = iota
	InterruptNotification
	InterruptSystemAudio
	InterruptAppBackground

	// InterruptHardwareChange (e.g. headphone unplug) never
	// auto-pauses; it is forwarded for the caller to decide
	InterruptHardwareChange
)

// String returns the interruption kind name
func (k InterruptionKind) String() string {
	switch k {
	case InterruptPhoneCall:
		return "phone-call"
	case InterruptNotification:
		return "notification"
	case InterruptSystemAudio:
		return "system-audio"
	case InterruptAppBackground:
		return "app-background"
	case InterruptHardwareChange:
		return "hardware-change"
	default:
		return "unknown"
	}
}

// pausesPlayback reports whether the kind suspends all channels
func (k InterruptionKind) pausesPlayback() bool {
	switch k {
	case InterruptPhoneCall, InterruptNotification, InterruptSystemAudio,
		InterruptAppBackground:
		return true
	default:
		return false
	}
}

// interruptionHandler tracks which channels the handler itself paused,
// so ending an interruption never resumes a channel the user paused
type interruptionHandler struct {
	mu     sync.Mutex
	active bool
	paused map[Category]bool
}

func newInterruptionHandler() *interruptionHandler {
	return &interruptionHandler{
		paused: make(map[Category]bool),
	}
}

// OnInterruption routes an external event onto the channels
func (e *Engine) OnInterruption(kind InterruptionKind) {
	if !e.running.Load() {
		return
	}

	if kind == InterruptHardwareChange {
		e.notifier.Publish(event.Event{
			Type:    event.TypeHardwareChange,
			Channel: "system",
		})
		return
	}
	if !kind.pausesPlayback() {
		return
	}

	e.log.Info().Str("kind", kind.String()).Msg("interruption begins")

	e.interrupts.mu.Lock()
	e.interrupts.active = true
	e.interrupts.mu.Unlock()

	for _, ch := range e.channels {
		if ch.State() != StatePlaying {
			continue
		}
		ch.pause(true)
		e.interrupts.mu.Lock()
		e.interrupts.paused[ch.category] = true
		e.interrupts.mu.Unlock()
	}
}

// OnInterruptionEnded resumes only the channels the handler paused.
// Each item's own fade-in applies on resumption.
func (e *Engine) OnInterruptionEnded() {
	if !e.running.Load() {
		return
	}

	e.interrupts.mu.Lock()
	if !e.interrupts.active {
		e.interrupts.mu.Unlock()
		return
	}
	e.interrupts.active = false
	paused := e.interrupts.paused
	e.interrupts.paused = make(map[Category]bool)
	e.interrupts.mu.Unlock()

	e.log.Info().Msg("interruption ended")

	for cat := range paused {
		e.channels[cat].resumeIfHandlerPaused()
	}
}
