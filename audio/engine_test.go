package audio

import (
	"context"
	"testing"
	"time"

	"github.com/sproutplay/audiokit/content"
	"github.com/sproutplay/audiokit/event"
)

// TestEnginePlayToCompletion verifies the plain lifecycle: request in,
// Started event, natural end, Stopped event, channel back to Stopped
func TestEnginePlayToCompletion(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	ok := e.Play(context.Background(), Request{
		Path:     writeClip(t, "tap.wav"),
		Category: CategoryUIInteraction,
	})
	if !ok {
		t.Fatal("Expected request admitted")
	}

	started := waitEvent(t, events, event.TypeStarted, "ui-interaction")
	if started.RequestID == "" {
		t.Error("Expected a request ID on the started event")
	}
	waitState(t, e, CategoryUIInteraction, StatePlaying)

	h := backend.handle(t, 0)
	if !h.isStarted() {
		t.Error("Expected backend handle started")
	}
	h.finish()

	stopped := waitEvent(t, events, event.TypeStopped, "ui-interaction")
	if stopped.RequestID != started.RequestID {
		t.Error("Expected matching request IDs across lifecycle events")
	}
	if stopped.Seq <= started.Seq {
		t.Error("Expected stopped sequence after started sequence")
	}
	waitState(t, e, CategoryUIInteraction, StateStopped)
}

// TestEngineRejectsInvalidRequest verifies validation failures return
// false and emit a classified error event
func TestEngineRejectsInvalidRequest(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 16)

	if e.Play(context.Background(), Request{Category: CategoryMascot}) {
		t.Error("Expected rejection for request with no source")
	}

	ev := waitEvent(t, events, event.TypeError, "mascot")
	if CodeOf(ev.Err) != CodeConfigurationError {
		t.Errorf("Expected configuration-error, got %s", CodeOf(ev.Err))
	}
}

// TestEngineContentNotFound verifies an unresolvable key lands the
// channel in Error, and the next play acknowledges it back
func TestEngineContentNotFound(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 16)

	if !e.PlayLocalized(context.Background(), "no.such.key", CategoryInstruction) {
		t.Fatal("Expected admission for syntactically valid request")
	}

	ev := waitEvent(t, events, event.TypeError, "instruction")
	if CodeOf(ev.Err) != CodeContentNotFound {
		t.Errorf("Expected content-not-found, got %s", CodeOf(ev.Err))
	}
	waitState(t, e, CategoryInstruction, StateError)

	// Error is acknowledged by the next play on the channel
	if !e.PlayLocalized(context.Background(), "counting.intro", CategoryInstruction) {
		t.Fatal("Expected admission after error state")
	}
	waitEvent(t, events, event.TypeStarted, "instruction")
	waitState(t, e, CategoryInstruction, StatePlaying)
}

// TestEngineLanguageFallback verifies a key missing in the session
// language plays the fallback recording without any error event
func TestEngineLanguageFallback(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	e.SetSessionLanguage(content.LanguageFrench)
	events := subscribeEvents(t, e, 16)

	// shapes.circle exists only in English
	if !e.PlayLocalized(context.Background(), "shapes.circle", CategoryInstruction) {
		t.Fatal("Expected admission")
	}
	waitEvent(t, events, event.TypeStarted, "instruction")

	h := backend.handle(t, 0)
	if h.src.Path == "" {
		t.Error("Expected a resolved source path")
	}
	h.finish()
	waitEvent(t, events, event.TypeStopped, "instruction")
	drainUnexpected(t, events, event.TypeError, 50*time.Millisecond)
}

// TestEngineDucking verifies instruction playback ducks background
// music and restores it afterward
func TestEngineDucking(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "music.wav"),
		Category: CategoryBackgroundMusic,
		Loop:     true,
	})
	waitEvent(t, events, event.TypeStarted, "background-music")
	music := backend.handle(t, 0)
	baseline := music.currentVolume()

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "speak.wav"),
		Category: CategoryInstruction,
	})

	// With an instant transition the duck settles during admission,
	// before the instruction's own Started event
	ducked := waitEvent(t, events, event.TypeVolumeChanged, "background-music")
	if ducked.Volume != e.cfg.DuckingVolume {
		t.Errorf("Expected music at ducking level %v, got %v", e.cfg.DuckingVolume, ducked.Volume)
	}
	if music.currentVolume() != e.cfg.DuckingVolume {
		t.Errorf("Expected backend at ducking level, got %v", music.currentVolume())
	}
	waitEvent(t, events, event.TypeStarted, "instruction")

	backend.handle(t, 1).finish()
	waitEvent(t, events, event.TypeStopped, "instruction")

	restored := waitEvent(t, events, event.TypeVolumeChanged, "background-music")
	if restored.Volume != baseline {
		t.Errorf("Expected music restored to %v, got %v", baseline, restored.Volume)
	}
	if e.GetState(CategoryBackgroundMusic) != StatePlaying {
		t.Error("Expected music still playing through the duck cycle")
	}
}

// TestEngineQueueBehindPlaying verifies equal-priority requests queue
// one deep and start when the channel frees up
func TestEngineQueueBehindPlaying(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		ID:       "first",
		Path:     writeClip(t, "a.wav"),
		Category: CategoryMascot,
	})
	waitEvent(t, events, event.TypeStarted, "mascot")

	if !e.Play(context.Background(), Request{
		ID:       "second",
		Path:     writeClip(t, "b.wav"),
		Category: CategoryMascot,
	}) {
		t.Fatal("Expected queue admission")
	}
	if e.GetState(CategoryMascot) != StatePlaying {
		t.Error("Expected first item still playing while second queues")
	}

	backend.handle(t, 0).finish()
	stopped := waitEvent(t, events, event.TypeStopped, "mascot")

	started := waitEvent(t, events, event.TypeStarted, "mascot")
	if started.RequestID != "second" {
		t.Errorf("Expected queued request to start, got %s", started.RequestID)
	}
	// The handover keeps per-channel order: the first item's Stopped is
	// sequenced before the successor's Started
	if started.Seq <= stopped.Seq {
		t.Error("Expected successor's started sequence after the stopped sequence")
	}
}

// TestEngineQueueLastWriterWins verifies the depth-1 queue: a third
// request displaces the queued second, which never plays
func TestEngineQueueLastWriterWins(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		ID: "first", Path: writeClip(t, "a.wav"), Category: CategoryMascot,
	})
	waitEvent(t, events, event.TypeStarted, "mascot")

	e.Play(context.Background(), Request{
		ID: "second", Path: writeClip(t, "b.wav"), Category: CategoryMascot,
	})
	e.Play(context.Background(), Request{
		ID: "third", Path: writeClip(t, "c.wav"), Category: CategoryMascot,
	})

	backend.handle(t, 0).finish()
	waitEvent(t, events, event.TypeStopped, "mascot")

	started := waitEvent(t, events, event.TypeStarted, "mascot")
	if started.RequestID != "third" {
		t.Errorf("Expected last queued request to win, got %s", started.RequestID)
	}
}

// TestEngineSupersedeDuringLoad verifies two rapid requests to an idle
// channel: the second supersedes the first mid-load, only the second
// plays, and no error events fire
func TestEngineSupersedeDuringLoad(t *testing.T) {
	gate := make(chan struct{})
	e, backend := newTestEngine(t, nil)
	backend.gate = gate
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		ID: "first", Path: writeClip(t, "a.wav"), Category: CategoryUIInteraction,
	})
	waitState(t, e, CategoryUIInteraction, StateLoading)

	if !e.Play(context.Background(), Request{
		ID: "second", Path: writeClip(t, "b.wav"), Category: CategoryUIInteraction,
	}) {
		t.Fatal("Expected second request admitted")
	}

	close(gate)

	started := waitEvent(t, events, event.TypeStarted, "ui-interaction")
	if started.RequestID != "second" {
		t.Errorf("Expected second request to play, got %s", started.RequestID)
	}
	drainUnexpected(t, events, event.TypeError, 50*time.Millisecond)
	waitState(t, e, CategoryUIInteraction, StatePlaying)
}

// TestEngineInterruptFadesThenStarts verifies a higher-priority
// interrupt: the current item fades out over the default fade, its
// Stopped event never precedes the fade, and the interrupter starts
// after it
func TestEngineInterruptFadesThenStarts(t *testing.T) {
	const fade = 40 * time.Millisecond
	e, backend := newTestEngine(t, func(c *Config) {
		c.DefaultFadeOut = fade
	})
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		ID: "story", Path: writeClip(t, "story.wav"), Category: CategoryInstruction,
	})
	waitEvent(t, events, event.TypeStarted, "instruction")

	interruptAt := time.Now()
	if !e.Play(context.Background(), Request{
		ID:             "alert",
		Path:           writeClip(t, "alert.wav"),
		Category:       CategoryInstruction,
		Priority:       PriorityHigh,
		InterruptLower: true,
	}) {
		t.Fatal("Expected interrupt admission")
	}

	stopped := waitEvent(t, events, event.TypeStopped, "instruction")
	if stopped.RequestID != "story" {
		t.Errorf("Expected story stopped, got %s", stopped.RequestID)
	}
	if elapsed := time.Since(interruptAt); elapsed < fade-5*time.Millisecond {
		t.Errorf("Stopped event after %v, before the %v fade-out", elapsed, fade)
	}
	if !backend.handle(t, 0).isStopped() {
		t.Error("Expected displaced handle stopped")
	}

	started := waitEvent(t, events, event.TypeStarted, "instruction")
	if started.RequestID != "alert" {
		t.Errorf("Expected alert started, got %s", started.RequestID)
	}
}

// TestEngineInterruptDuringLoad verifies an interrupt admitted while
// the holder is still loading supersedes the load and plays rather
// than being parked behind a playback that never happens
func TestEngineInterruptDuringLoad(t *testing.T) {
	gate := make(chan struct{})
	e, backend := newTestEngine(t, nil)
	backend.gate = gate
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		ID:       "lullaby",
		Path:     writeClip(t, "a.wav"),
		Category: CategoryInstruction,
		Priority: PriorityLow,
	})
	waitState(t, e, CategoryInstruction, StateLoading)

	if !e.Play(context.Background(), Request{
		ID:             "alarm",
		Path:           writeClip(t, "b.wav"),
		Category:       CategoryInstruction,
		Priority:       PriorityCritical,
		InterruptLower: true,
	}) {
		t.Fatal("Expected critical request admitted")
	}

	close(gate)

	started := waitEvent(t, events, event.TypeStarted, "instruction")
	if started.RequestID != "alarm" {
		t.Errorf("Expected critical request to play, got %s", started.RequestID)
	}
	drainUnexpected(t, events, event.TypeError, 50*time.Millisecond)
	waitState(t, e, CategoryInstruction, StatePlaying)
}

// TestEngineStopWithFade verifies Stop's Stopped event trails the
// fade-out rather than firing immediately
func TestEngineStopWithFade(t *testing.T) {
	const fade = 40 * time.Millisecond
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "music.wav"),
		Category: CategoryBackgroundMusic,
		Loop:     true,
	})
	waitEvent(t, events, event.TypeStarted, "background-music")

	stopAt := time.Now()
	e.Stop(fade, CategoryBackgroundMusic)

	stopped := waitEvent(t, events, event.TypeStopped, "background-music")
	if elapsed := time.Since(stopAt); elapsed < fade-5*time.Millisecond {
		t.Errorf("Stopped event after %v, before the %v fade", elapsed, fade)
	}
	if stopped.Channel != "background-music" {
		t.Errorf("Unexpected channel %q", stopped.Channel)
	}
	if v := backend.handle(t, 0).currentVolume(); v != 0 {
		t.Errorf("Expected volume at 0 after fade-out, got %v", v)
	}
	waitState(t, e, CategoryBackgroundMusic, StateStopped)
}

// TestEnginePauseResume verifies pause and resume round-trip with
// events and backend calls
func TestEnginePauseResume(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "story.wav"),
		Category: CategoryInstruction,
	})
	waitEvent(t, events, event.TypeStarted, "instruction")
	h := backend.handle(t, 0)

	e.Pause(CategoryInstruction)
	waitEvent(t, events, event.TypePaused, "instruction")
	if !h.isPaused() {
		t.Error("Expected backend paused")
	}
	if e.GetState(CategoryInstruction) != StatePaused {
		t.Error("Expected Paused state")
	}

	// Pausing again is a no-op: no second event
	e.Pause(CategoryInstruction)
	drainUnexpected(t, events, event.TypePaused, 30*time.Millisecond)

	e.Resume(CategoryInstruction)
	waitEvent(t, events, event.TypeResumed, "instruction")
	if h.isPaused() {
		t.Error("Expected backend resumed")
	}
	waitState(t, e, CategoryInstruction, StatePlaying)

	// Resuming a playing channel is a no-op
	e.Resume(CategoryInstruction)
	drainUnexpected(t, events, event.TypeResumed, 30*time.Millisecond)
}

// TestEngineVolumeRetarget verifies category and master changes land
// on the running item immediately
func TestEngineVolumeRetarget(t *testing.T) {
	e, backend := newTestEngine(t, func(c *Config) {
		c.MasterVolume = 1.0
		c.SafetyCeiling = 1.0
	})
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "story.wav"),
		Category: CategoryInstruction,
	})
	waitEvent(t, events, event.TypeStarted, "instruction")
	h := backend.handle(t, 0)

	e.SetVolume(CategoryInstruction, 0.5)
	ev := waitEvent(t, events, event.TypeVolumeChanged, "instruction")
	if !almostEqual(ev.Volume, 0.5) {
		t.Errorf("Expected 0.5, got %v", ev.Volume)
	}
	if !almostEqual(h.currentVolume(), 0.5) {
		t.Errorf("Expected backend at 0.5, got %v", h.currentVolume())
	}

	e.SetMasterVolume(0.5)
	waitEvent(t, events, event.TypeVolumeChanged, "instruction")
	if !almostEqual(h.currentVolume(), 0.25) {
		t.Errorf("Expected backend at 0.25, got %v", h.currentVolume())
	}
	if e.GetVolume(CategoryInstruction) != 0.5 {
		t.Errorf("Expected category at 0.5, got %v", e.GetVolume(CategoryInstruction))
	}
}

// TestEngineCancelDuringLoad verifies a cancelled context during load
// quietly returns the channel to Stopped with no error event
func TestEngineCancelDuringLoad(t *testing.T) {
	gate := make(chan struct{})
	e, backend := newTestEngine(t, nil)
	backend.gate = gate
	defer close(gate)
	events := subscribeEvents(t, e, 64)

	ctx, stop := context.WithCancel(context.Background())
	e.Play(ctx, Request{
		Path:     writeClip(t, "story.wav"),
		Category: CategoryInstruction,
	})
	waitState(t, e, CategoryInstruction, StateLoading)

	stop()
	waitState(t, e, CategoryInstruction, StateStopped)
	drainUnexpected(t, events, event.TypeError, 50*time.Millisecond)
	drainUnexpected(t, events, event.TypeStarted, 50*time.Millisecond)
}

// TestEngineRetryOnDeviceBusy verifies one automatic retry after a
// transient backend failure
func TestEngineRetryOnDeviceBusy(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	backend.openErr = []error{newError(CodeDeviceBusy, "", nil)}
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "story.wav"),
		Category: CategoryInstruction,
	})

	waitEvent(t, events, event.TypeStarted, "instruction")
	waitState(t, e, CategoryInstruction, StatePlaying)
}

// TestEngineNoSecondRetry verifies a persistent transient failure
// surfaces after the single retry
func TestEngineNoSecondRetry(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	backend.openErr = []error{
		newError(CodeDeviceBusy, "", nil),
		newError(CodeDeviceBusy, "", nil),
	}
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "story.wav"),
		Category: CategoryInstruction,
	})

	ev := waitEvent(t, events, event.TypeError, "instruction")
	if CodeOf(ev.Err) != CodeDeviceBusy {
		t.Errorf("Expected device-busy, got %s", CodeOf(ev.Err))
	}
	waitState(t, e, CategoryInstruction, StateError)
}

// TestEngineDecodeFailureMidPlayback verifies a stream error surfaces
// as a decoding error event
func TestEngineDecodeFailureMidPlayback(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path:     writeClip(t, "story.wav"),
		Category: CategoryInstruction,
	})
	waitEvent(t, events, event.TypeStarted, "instruction")

	backend.handle(t, 0).failWith(newError(CodeDecodingError, "", nil))

	ev := waitEvent(t, events, event.TypeError, "instruction")
	if CodeOf(ev.Err) != CodeDecodingError {
		t.Errorf("Expected decoding-error, got %s", CodeOf(ev.Err))
	}
	waitState(t, e, CategoryInstruction, StateError)
}

// TestEngineMuteBlocksRequests verifies mute gates admission without
// touching running state
func TestEngineMuteBlocksRequests(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if e.IsMuted() {
		t.Fatal("Expected engine unmuted with Enabled config")
	}
	if enabled := e.ToggleMute(); enabled {
		t.Error("Expected ToggleMute to report disabled")
	}
	if e.Play(context.Background(), Request{
		Path: writeClip(t, "tap.wav"), Category: CategoryUIInteraction,
	}) {
		t.Error("Expected muted engine to refuse requests")
	}

	if enabled := e.ToggleMute(); !enabled {
		t.Error("Expected ToggleMute to report enabled")
	}
	if !e.Play(context.Background(), Request{
		Path: writeClip(t, "tap.wav"), Category: CategoryUIInteraction,
	}) {
		t.Error("Expected unmuted engine to accept requests")
	}
}

// TestEngineCaching verifies cacheable plays fill the cache and
// preload pins entries
func TestEngineCaching(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.PlayLocalized(context.Background(), "counting.intro", CategoryInstruction)
	waitEvent(t, events, event.TypeStarted, "instruction")
	backend.handle(t, 0).finish()
	waitEvent(t, events, event.TypeStopped, "instruction")

	st := e.CacheStats()
	if st.ItemCount != 1 {
		t.Errorf("Expected 1 cached entry, got %d", st.ItemCount)
	}

	// Second play hits the cache
	e.PlayLocalized(context.Background(), "counting.intro", CategoryInstruction)
	waitEvent(t, events, event.TypeStarted, "instruction")
	backend.handle(t, 1).finish()
	waitEvent(t, events, event.TypeStopped, "instruction")

	if st := e.CacheStats(); st.Hits == 0 {
		t.Error("Expected a cache hit on replay")
	}

	result := e.Preload(context.Background(), []string{"shapes.circle", "no.such.key"})
	if !result["shapes.circle"] {
		t.Error("Expected shapes.circle preloaded")
	}
	if result["no.such.key"] {
		t.Error("Expected unknown key to fail preload")
	}

	if freed := e.ClearCache(false); freed == 0 {
		t.Error("Expected bytes freed by full clear")
	}
	if st := e.CacheStats(); st.ItemCount != 0 {
		t.Errorf("Expected empty cache, got %d entries", st.ItemCount)
	}
}

// TestEngineIsAnyPlaying verifies the aggregate playing check
func TestEngineIsAnyPlaying(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	if e.IsAnyPlaying() {
		t.Error("Expected nothing playing initially")
	}

	e.Play(context.Background(), Request{
		Path: writeClip(t, "tap.wav"), Category: CategoryUIInteraction,
	})
	waitEvent(t, events, event.TypeStarted, "ui-interaction")
	if !e.IsAnyPlaying() {
		t.Error("Expected playing after start")
	}

	backend.handle(t, 0).finish()
	waitEvent(t, events, event.TypeStopped, "ui-interaction")
	waitState(t, e, CategoryUIInteraction, StateStopped)
	if e.IsAnyPlaying() {
		t.Error("Expected nothing playing after completion")
	}
}

// TestEngineCloseIdempotent verifies Close settles everything and can
// be called twice
func TestEngineCloseIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	events := subscribeEvents(t, e, 64)

	e.Play(context.Background(), Request{
		Path: writeClip(t, "music.wav"), Category: CategoryBackgroundMusic, Loop: true,
	})
	waitEvent(t, events, event.TypeStarted, "background-music")

	e.Close()
	e.Close()

	if e.Play(context.Background(), Request{
		Path: writeClip(t, "tap.wav"), Category: CategoryUIInteraction,
	}) {
		t.Error("Expected closed engine to refuse requests")
	}
}
