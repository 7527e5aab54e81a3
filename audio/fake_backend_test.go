package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sproutplay/audiokit/content"
	"github.com/sproutplay/audiokit/event"
)

// fakeHandle is an in-memory playback handle for engine tests
type fakeHandle struct {
	mu      sync.Mutex
	src     Source
	volume  float64
	started bool
	paused  bool
	stopped bool
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeHandle(src Source) *fakeHandle {
	return &fakeHandle{src: src, done: make(chan struct{})}
}

func (h *fakeHandle) Start(volume float64) error {
	h.mu.Lock()
	h.started = true
	h.volume = volume
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

func (h *fakeHandle) Resume() {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *fakeHandle) SetVolume(v float64) {
	h.mu.Lock()
	h.volume = v
	h.mu.Unlock()
}

func (h *fakeHandle) Position() time.Duration {
	return 0
}

func (h *fakeHandle) Done() <-chan struct{} {
	return h.done
}

func (h *fakeHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// finish simulates the stream reaching its natural end
func (h *fakeHandle) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}

// failWith simulates a mid-playback decode failure
func (h *fakeHandle) failWith(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *fakeHandle) currentVolume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

func (h *fakeHandle) isStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *fakeHandle) isPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *fakeHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// fakeBackend hands out fakeHandles and optionally gates or fails
// opens to exercise loading paths
type fakeBackend struct {
	mu      sync.Mutex
	handles []*fakeHandle
	openErr []error      // popped per open, nil entries succeed
	gate    chan struct{} // when set, Open blocks until a receive fires
}

func (b *fakeBackend) Open(ctx context.Context, src Source) (Handle, error) {
	b.mu.Lock()
	gate := b.gate
	var err error
	if len(b.openErr) > 0 {
		err = b.openErr[0]
		b.openErr = b.openErr[1:]
	}
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	h := newFakeHandle(src)
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return h, nil
}

func (b *fakeBackend) Close() error {
	return nil
}

// handle returns the i-th opened handle, waiting for it to exist
func (b *fakeBackend) handle(t *testing.T, i int) *fakeHandle {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		if len(b.handles) > i {
			h := b.handles[i]
			b.mu.Unlock()
			return h
		}
		b.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Backend never opened handle %d", i)
	return nil
}

// writeClip writes a throwaway payload and returns its path
func writeClip(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("fake audio payload"), 0o644); err != nil {
		t.Fatalf("Write fixture failed: %v", err)
	}
	return path
}

// testLibrary registers bilingual keys backed by real temp files
func testLibrary(t *testing.T) *content.StaticLibrary {
	t.Helper()
	lib := content.NewStaticLibrary()
	lib.Register(&content.Content{
		ID: "counting.intro",
		Paths: map[content.Language]string{
			content.LanguageEnglish: writeClip(t, "counting_en.wav"),
			content.LanguageFrench:  writeClip(t, "counting_fr.wav"),
		},
	})
	lib.Register(&content.Content{
		ID: "shapes.circle",
		Paths: map[content.Language]string{
			content.LanguageEnglish: writeClip(t, "circle_en.wav"),
		},
	})
	return lib
}

// newTestEngine builds a started engine over a fake backend with
// instant transitions unless the test tunes cfg afterward
func newTestEngine(t *testing.T, tune func(*Config)) (*Engine, *fakeBackend) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DuckingTransition = 0
	cfg.DefaultFadeOut = 0
	cfg.RetryDelay = time.Millisecond
	if tune != nil {
		tune(cfg)
	}

	resolver := content.NewResolver(testLibrary(t),
		content.LanguageEnglish, content.LanguageEnglish)
	backend := &fakeBackend{}

	e, err := New(cfg, resolver, backend, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e, backend
}

// eventSink buffers the engine's event stream. Waiting for one
// channel's event holds, rather than drops, whatever the other
// channels emitted in the meantime: cross-channel order is unspecified
// and a wait must not eat another channel's events.
type eventSink struct {
	ch   <-chan event.Event
	held []event.Event
}

// subscribeEvents subscribes to the engine's events behind a sink
func subscribeEvents(t *testing.T, e *Engine, buffer int) *eventSink {
	t.Helper()
	ch, cancel := e.Events().Subscribe(buffer)
	t.Cleanup(cancel)
	return &eventSink{ch: ch}
}

// take removes and returns the earliest held event matching type and
// channel
func (s *eventSink) take(typ event.Type, channel string) (event.Event, bool) {
	for i, ev := range s.held {
		if ev.Type == typ && (channel == "" || ev.Channel == channel) {
			s.held = append(s.held[:i], s.held[i+1:]...)
			return ev, true
		}
	}
	return event.Event{}, false
}

// waitEvent returns the next event matching type and channel; empty
// channel matches any. Non-matching events are held for later waits.
func waitEvent(t *testing.T, events *eventSink, typ event.Type, channel string) event.Event {
	t.Helper()
	if ev, ok := events.take(typ, channel); ok {
		return ev
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events.ch:
			if ev.Type == typ && (channel == "" || ev.Channel == channel) {
				return ev
			}
			events.held = append(events.held, ev)
		case <-deadline:
			t.Fatalf("Timed out waiting for %s on %q", typ, channel)
		}
	}
}

// waitState polls until the channel reaches the target state
func waitState(t *testing.T, e *Engine, cat Category, want PlaybackState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.GetState(cat) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Channel %s never reached %s (stuck at %s)", cat, want, e.GetState(cat))
}

// drainUnexpected fails the test if an event of typ was already held
// or arrives within wait
func drainUnexpected(t *testing.T, events *eventSink, typ event.Type, wait time.Duration) {
	t.Helper()
	if ev, ok := events.take(typ, ""); ok {
		t.Fatalf("Unexpected %s event on %q (request %s)", typ, ev.Channel, ev.RequestID)
	}
	deadline := time.After(wait)
	for {
		select {
		case ev := <-events.ch:
			if ev.Type == typ {
				t.Fatalf("Unexpected %s event on %q (request %s)", typ, ev.Channel, ev.RequestID)
			}
			events.held = append(events.held, ev)
		case <-deadline:
			return
		}
	}
}
