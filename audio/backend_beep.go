package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// BeepBackend plays sounds through the speaker package. One instance
// owns the output device for the process.
type BeepBackend struct {
	mu          sync.Mutex
	initialized bool
	sampleRate  beep.SampleRate
	bufferDur   time.Duration
}

// NewBeepBackend creates a backend at the given output rate
func NewBeepBackend(sampleRate int, bufferDur time.Duration) *BeepBackend {
	return &BeepBackend{
		sampleRate: beep.SampleRate(sampleRate),
		bufferDur:  bufferDur,
	}
}

// init brings the speaker up once; later calls are no-ops
func (b *BeepBackend) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if err := speaker.Init(b.sampleRate, b.sampleRate.N(b.bufferDur)); err != nil {
		return newError(CodePlatformError, "", err)
	}
	b.initialized = true
	return nil
}

// Open implements Backend
func (b *BeepBackend) Open(ctx context.Context, src Source) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.init(); err != nil {
		return nil, err
	}

	streamer, format, err := decode(src.Path, src.Payload)
	if err != nil {
		return nil, err
	}

	var chain beep.Streamer = streamer
	if src.Loop {
		chain = beep.Loop(-1, streamer)
	}
	if format.SampleRate != b.sampleRate {
		chain = beep.Resample(4, format.SampleRate, b.sampleRate, chain)
	}
	if src.MaxDuration > 0 {
		chain = beep.Take(b.sampleRate.N(src.MaxDuration), chain)
	}

	h := &beepHandle{
		seeker: streamer,
		format: format,
		done:   make(chan struct{}),
	}
	h.vol = &effects.Volume{Streamer: chain, Base: 2, Silent: true}
	h.ctrl = &beep.Ctrl{Streamer: h.vol}
	return h, nil
}

// Close implements Backend. The speaker package keeps the device until
// process exit; clearing pending streamers is the available cleanup.
func (b *BeepBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		speaker.Clear()
	}
	return nil
}

// decode picks the decoder by file extension
func decode(path string, payload []byte) (beep.StreamSeekCloser, beep.Format, error) {
	rc := &readSeekNopCloser{Reader: bytes.NewReader(payload)}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		s, format, err = wav.Decode(rc)
	case ".mp3":
		s, format, err = mp3.Decode(rc)
	case ".ogg":
		s, format, err = vorbis.Decode(rc)
	default:
		return nil, beep.Format{}, newError(CodeUnsupportedFormat, "",
			fmt.Errorf("no decoder for %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, beep.Format{}, newError(CodeDecodingError, "", err)
	}
	return s, format, nil
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

// beepHandle is one playing sound. All streamer mutation happens under
// speaker.Lock.
type beepHandle struct {
	ctrl   *beep.Ctrl
	vol    *effects.Volume
	seeker beep.StreamSeekCloser
	format beep.Format

	doneOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

// Start implements Handle
func (h *beepHandle) Start(volume float64) error {
	h.applyVolume(volume)
	speaker.Play(beep.Seq(h.ctrl, beep.Callback(h.finish)))
	return nil
}

func (h *beepHandle) finish() {
	if err := h.seeker.Err(); err != nil {
		h.errMu.Lock()
		h.err = newError(CodeDecodingError, "", err)
		h.errMu.Unlock()
	}
	h.doneOnce.Do(func() { close(h.done) })
}

// Pause implements Handle
func (h *beepHandle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

// Resume implements Handle
func (h *beepHandle) Resume() {
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
}

// Stop implements Handle
func (h *beepHandle) Stop() {
	speaker.Lock()
	h.ctrl.Streamer = nil
	speaker.Unlock()
	h.seeker.Close()
	h.doneOnce.Do(func() { close(h.done) })
}

// SetVolume implements Handle
func (h *beepHandle) SetVolume(v float64) {
	speaker.Lock()
	h.applyVolumeLocked(v)
	speaker.Unlock()
}

func (h *beepHandle) applyVolume(v float64) {
	speaker.Lock()
	h.applyVolumeLocked(v)
	speaker.Unlock()
}

// applyVolumeLocked maps linear volume onto the base-2 log scale;
// zero is rendered as silence since log2(0) is -Inf
func (h *beepHandle) applyVolumeLocked(v float64) {
	if v <= 0 {
		h.vol.Silent = true
		return
	}
	h.vol.Silent = false
	h.vol.Volume = math.Log2(v)
}

// Position implements Handle
func (h *beepHandle) Position() time.Duration {
	speaker.Lock()
	pos := h.seeker.Position()
	speaker.Unlock()
	return h.format.SampleRate.D(pos)
}

// Done implements Handle
func (h *beepHandle) Done() <-chan struct{} {
	return h.done
}

// Err implements Handle
func (h *beepHandle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}
