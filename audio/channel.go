package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sproutplay/audiokit/event"
)

// pendingReq is the queue slot contents: the superseding request plus
// the cancellation context it arrived with
type pendingReq struct {
	ctx context.Context
	req *Request
}

// channel is the state machine for one playback lane. It holds at most
// one active request; an accepted replacement stops, pauses, or ducks
// the previous item before becoming current.
//
// All mutation happens under mu. Different channels never share a
// lock and may transition concurrently.
type channel struct {
	category Category
	log      zerolog.Logger
	notifier *event.Notifier

	mu      sync.Mutex
	state   PlaybackState
	current *Request
	handle  Handle

	// gen invalidates in-flight loads and stale completion callbacks
	gen uint64

	// effVol is the settled effective volume for the current item;
	// appliedVol is whatever the last ramp step pushed to the backend
	effVol     float64
	appliedVol float64

	duckCount  int
	duckOrigin float64

	ducking []Category // channels the current item is holding ducked

	pausedAt        time.Duration
	pausedByHandler bool
	stopping        bool

	pending    *pendingReq // queue slot, depth 1
	activeFade *fade
}

func newChannel(cat Category, notifier *event.Notifier, log zerolog.Logger) *channel {
	return &channel{
		category: cat,
		notifier: notifier,
		log:      log.With().Str("channel", cat.String()).Logger(),
		state:    StateStopped,
	}
}

// view snapshots the channel for arbitration
func (ch *channel) view() channelView {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return channelView{Category: ch.category, State: ch.state, Current: ch.current}
}

// State returns the current playback state
func (ch *channel) State() PlaybackState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *channel) publish(t event.Type, requestID string, volume float64, err error) {
	ch.notifier.Publish(event.Event{
		Type:      t,
		Channel:   ch.category.String(),
		RequestID: requestID,
		Volume:    volume,
		Err:       err,
	})
}

// beginLoading moves the channel into Loading for req. An Error state
// is acknowledged to Stopped first. Returns the load generation and
// whether the transition was legal.
func (ch *channel) beginLoading(req *Request, ducking []Category) (uint64, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state == StateError {
		ch.state = StateStopped
	}
	if ch.state != StateStopped {
		return 0, false
	}

	ch.gen++
	ch.state = StateLoading
	ch.current = req
	ch.handle = nil
	ch.ducking = ducking
	ch.stopping = false
	ch.pausedAt = 0
	ch.pausedByHandler = false
	return ch.gen, true
}

// cancelLoading silently returns a Loading channel to Stopped. No
// event fires: cancellation during load is not an error and not a
// completed playback. Returns the duck list to release.
func (ch *channel) cancelLoading(gen uint64) ([]Category, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if gen != ch.gen || ch.state != StateLoading {
		return nil, false
	}
	ch.state = StateStopped
	ch.current = nil
	ducked := ch.ducking
	ch.ducking = nil
	return ducked, true
}

// ready completes the load: Loading -> Playing, backend start, fade-in
// ramp. Stale generations are refused so a superseded load never
// reaches Playing.
func (ch *channel) ready(gen uint64, h Handle, effVol float64, fadeIn time.Duration) bool {
	ch.mu.Lock()

	if gen != ch.gen || ch.state != StateLoading {
		ch.mu.Unlock()
		return false
	}

	ch.state = StatePlaying
	ch.handle = h
	ch.effVol = effVol

	start := effVol
	if fadeIn > 0 {
		start = 0
	}
	ch.appliedVol = start
	req := ch.current

	if err := h.Start(start); err != nil {
		ch.mu.Unlock()
		ch.fail(gen, newError(CodePlatformError, req.ID, err))
		return false
	}

	// Publishing under mu keeps Started ordered against the previous
	// item's Stopped; the notifier never blocks
	ch.publish(event.TypeStarted, req.ID, effVol, nil)
	ch.mu.Unlock()

	if fadeIn > 0 {
		ch.rampTo(effVol, fadeIn, nil)
	}
	return true
}

// complete settles a finished playback: -> Stopped, Stopped event.
// Returns released ducks and the queued request, if any.
func (ch *channel) complete(gen uint64) (ducked []Category, pending *pendingReq, ok bool) {
	ch.mu.Lock()

	if gen != ch.gen || !ch.state.active() {
		ch.mu.Unlock()
		return nil, nil, false
	}

	req := ch.current
	ch.state = StateStopped
	ch.current = nil
	ch.handle = nil
	ch.stopping = false
	ducked = ch.ducking
	ch.ducking = nil
	pending = ch.pending
	ch.pending = nil
	ch.cancelFadeLocked()
	ch.publish(event.TypeStopped, req.ID, 0, nil)
	ch.mu.Unlock()

	return ducked, pending, true
}

// fail moves Loading or Playing into Error and emits the classified
// failure. Ducks release; the queue slot is handed back to the caller
// so a superseding request still plays when the holder dies.
func (ch *channel) fail(gen uint64, err *Error) (ducked []Category, pending *pendingReq) {
	ch.mu.Lock()

	if gen != ch.gen || (ch.state != StateLoading && ch.state != StatePlaying) {
		ch.mu.Unlock()
		return nil, nil
	}

	if ch.handle != nil {
		ch.handle.Stop()
	}
	ch.state = StateError
	ch.handle = nil
	ch.stopping = false
	ducked = ch.ducking
	ch.ducking = nil
	pending = ch.pending
	ch.pending = nil
	ch.cancelFadeLocked()
	ch.publish(event.TypeError, err.RequestID, 0, err)
	ch.mu.Unlock()

	ch.log.Warn().Str("code", err.Code.String()).Str("request", err.RequestID).
		Err(err.Err).Msg("playback failed")
	return ducked, pending
}

// pause is a no-op outside Playing; pausing a Stopped or Loading
// channel is legal and does nothing
func (ch *channel) pause(byHandler bool) {
	ch.mu.Lock()

	if ch.state != StatePlaying || ch.stopping {
		ch.mu.Unlock()
		return
	}

	ch.cancelFadeLocked()
	h := ch.handle
	ch.pausedAt = h.Position()
	ch.state = StatePaused
	ch.pausedByHandler = byHandler
	req := ch.current

	h.Pause()
	ch.publish(event.TypePaused, req.ID, 0, nil)
	ch.mu.Unlock()
}

// resume is a no-op outside Paused: no state change, no event. The
// item's own fade-in applies again on the way back up.
func (ch *channel) resume() {
	ch.mu.Lock()

	if ch.state != StatePaused {
		ch.mu.Unlock()
		return
	}

	h := ch.handle
	req := ch.current
	target := ch.effVol
	fadeIn := req.FadeIn
	ch.state = StatePlaying
	ch.pausedByHandler = false
	if fadeIn > 0 {
		ch.appliedVol = 0
		h.SetVolume(0)
	}
	h.Resume()
	ch.publish(event.TypeResumed, req.ID, target, nil)
	ch.mu.Unlock()

	if fadeIn > 0 {
		ch.rampTo(target, fadeIn, nil)
	}
}

// resumeIfHandlerPaused resumes only when the pause came from the
// interruption handler, leaving user pauses alone
func (ch *channel) resumeIfHandlerPaused() {
	ch.mu.Lock()
	handlerPaused := ch.state == StatePaused && ch.pausedByHandler
	ch.mu.Unlock()

	if handlerPaused {
		ch.resume()
	}
}

// stopWith winds the channel down. Loading cancels silently; Playing
// fades out over fadeOut before the backend stop (the Stopped event
// follows the ramp, never precedes it); Paused stops at once.
func (ch *channel) stopWith(gen uint64, fadeOut time.Duration) ([]Category, bool) {
	ch.mu.Lock()

	if gen != ch.gen {
		ch.mu.Unlock()
		return nil, false
	}

	switch ch.state {
	case StateLoading:
		ch.mu.Unlock()
		return ch.cancelLoading(gen)

	case StatePlaying:
		if ch.stopping {
			ch.mu.Unlock()
			return nil, false
		}
		ch.stopping = true
		h := ch.handle
		ch.mu.Unlock()

		ch.rampTo(0, fadeOut, func() {
			h.Stop()
		})
		return nil, true

	case StatePaused:
		h := ch.handle
		ch.mu.Unlock()
		h.Stop()
		return nil, true

	default:
		ch.mu.Unlock()
		return nil, false
	}
}

// stopCurrent stops whatever generation is current
func (ch *channel) stopCurrent(fadeOut time.Duration) ([]Category, bool) {
	ch.mu.Lock()
	gen := ch.gen
	ch.mu.Unlock()
	return ch.stopWith(gen, fadeOut)
}

// duck ramps the channel down to duckVol. Nested ducks stack; the
// origin volume is captured once, on the first duck.
func (ch *channel) duck(duckVol float64, transition time.Duration) {
	ch.mu.Lock()

	if ch.state != StatePlaying {
		ch.mu.Unlock()
		return
	}

	ch.duckCount++
	if ch.duckCount == 1 {
		ch.duckOrigin = ch.effVol
	}
	req := ch.current
	ch.mu.Unlock()

	ch.rampTo(duckVol, transition, func() {
		ch.publish(event.TypeVolumeChanged, req.ID, duckVol, nil)
	})
}

// unduck releases one duck hold; the last release ramps back to the
// origin volume
func (ch *channel) unduck(transition time.Duration) {
	ch.mu.Lock()

	if ch.duckCount == 0 {
		ch.mu.Unlock()
		return
	}
	ch.duckCount--
	if ch.duckCount > 0 || ch.state != StatePlaying {
		ch.mu.Unlock()
		return
	}
	origin := ch.duckOrigin
	req := ch.current
	ch.mu.Unlock()

	ch.rampTo(origin, transition, func() {
		ch.publish(event.TypeVolumeChanged, req.ID, origin, nil)
	})
}

// retarget moves the settled volume, e.g. after a category or master
// volume change. Ducked channels update their origin instead so the
// duck release lands on the new level.
func (ch *channel) retarget(effVol float64) {
	ch.mu.Lock()

	ch.effVol = effVol
	if ch.duckCount > 0 {
		ch.duckOrigin = effVol
		ch.mu.Unlock()
		return
	}
	if ch.state != StatePlaying || ch.stopping {
		ch.mu.Unlock()
		return
	}
	h := ch.handle
	ch.appliedVol = effVol
	req := ch.current
	h.SetVolume(effVol)
	ch.publish(event.TypeVolumeChanged, req.ID, effVol, nil)
	ch.mu.Unlock()
}

// setPending places req in the queue slot. A second queued request
// supersedes the first; the superseded one is discarded without
// playing and without an event.
func (ch *channel) setPending(ctx context.Context, req *Request) {
	ch.mu.Lock()
	if ch.pending != nil {
		ch.log.Debug().Str("superseded", ch.pending.req.ID).Str("by", req.ID).
			Msg("queued request superseded")
	}
	ch.pending = &pendingReq{ctx: ctx, req: req}
	ch.mu.Unlock()
}

// takePending empties the queue slot
func (ch *channel) takePending() *pendingReq {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	p := ch.pending
	ch.pending = nil
	return p
}

// cancelLoadingCurrent cancels whatever load is in flight right now
func (ch *channel) cancelLoadingCurrent() ([]Category, bool) {
	ch.mu.Lock()
	gen := ch.gen
	ch.mu.Unlock()
	return ch.cancelLoading(gen)
}

// itemVolume returns the current item's per-item volume
func (ch *channel) itemVolume() (float64, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.current == nil || ch.current.Volume == nil {
		return 0, false
	}
	return *ch.current.Volume, true
}

// currentFadeOut returns the current item's fade-out, or def when the
// item carries none
func (ch *channel) currentFadeOut(def time.Duration) time.Duration {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.current == nil || ch.current.FadeOut <= 0 {
		return def
	}
	return ch.current.FadeOut
}

// rampTo starts a cancellable volume ramp toward target, replacing any
// ramp in flight
func (ch *channel) rampTo(target float64, d time.Duration, onDone func()) {
	ch.mu.Lock()
	ch.cancelFadeLocked()
	from := ch.appliedVol
	h := ch.handle
	ch.mu.Unlock()

	if h == nil {
		return
	}

	// startFade applies immediately for d <= 0, so it must run outside
	// the channel lock
	f := startFade(from, target, d, func(v float64) {
		h.SetVolume(v)
		ch.mu.Lock()
		ch.appliedVol = v
		ch.mu.Unlock()
	}, onDone)

	ch.mu.Lock()
	ch.activeFade = f
	ch.mu.Unlock()
}

// cancelFadeLocked abandons the in-flight ramp. Caller holds mu.
func (ch *channel) cancelFadeLocked() {
	if ch.activeFade != nil {
		f := ch.activeFade
		ch.activeFade = nil
		go f.stop()
	}
}
