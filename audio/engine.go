package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sproutplay/audiokit/content"
	"github.com/sproutplay/audiokit/event"
)

// Engine is the audio facade: the one object surrounding code talks
// to. It owns every channel and the cache for its own lifetime and is
// constructed explicitly; there is no ambient audio state.
//
// All request-accepting operations are non-blocking: resolution,
// cache fills, and backend opens run on their own goroutines.
type Engine struct {
	cfg      *Config
	log      zerolog.Logger
	resolver *content.Resolver
	backend  Backend
	cache    *soundCache
	notifier *event.Notifier
	volumes  *volumeTable
	arbiter  *arbiter
	channels map[Category]*channel

	interrupts *interruptionHandler

	// admitMu serializes admission so two rapid requests see a
	// consistent channel snapshot
	admitMu sync.Mutex

	running atomic.Bool
	muted   atomic.Bool
	wg      sync.WaitGroup
}

// New creates an engine over the given resolver and playback backend
func New(cfg *Config, resolver *content.Resolver, backend Backend, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil || backend == nil {
		return nil, newError(CodeConfigurationError, "",
			errors.New("engine needs a resolver and a backend"))
	}

	e := &Engine{
		cfg:        cfg,
		log:        logger.With().Str("component", "audio-engine").Logger(),
		resolver:   resolver,
		backend:    backend,
		cache:      newSoundCache(cfg.CacheBudget),
		notifier:   event.NewNotifier(),
		volumes:    newVolumeTable(cfg),
		arbiter:    newArbiter(),
		channels:   make(map[Category]*channel, categoryCount),
		interrupts: newInterruptionHandler(),
	}
	for _, cat := range Categories() {
		e.channels[cat] = newChannel(cat, e.notifier, e.log)
	}
	e.muted.Store(!cfg.Enabled)
	return e, nil
}

// Start makes the engine accept requests
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("audio engine already running")
	}
	e.log.Info().Msg("audio engine started")
	return nil
}

// Close stops all playback, releases the backend, and closes the
// notifier. Idempotent.
func (e *Engine) Close() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}

	for _, ch := range e.channels {
		if ducked, ok := ch.stopCurrent(0); ok {
			e.releaseDucks(ducked)
		}
	}
	e.wg.Wait()
	e.backend.Close()
	e.notifier.Close()
	e.log.Info().Msg("audio engine closed")
}

// Events exposes the playback event stream
func (e *Engine) Events() *event.Notifier {
	return e.notifier
}

// Play submits a request. The return value is the admission result;
// loading and playback proceed asynchronously. Cancelling ctx during
// load quietly returns the channel to Stopped; cancelling during
// playback stops without fade.
func (e *Engine) Play(ctx context.Context, req Request) bool {
	if !e.running.Load() || e.muted.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req.normalize()
	r := &req
	if err := r.Validate(); err != nil {
		e.reject(r, err)
		return false
	}

	e.admitMu.Lock()
	defer e.admitMu.Unlock()

	dec := e.arbiter.admit(r, e.views())
	e.log.Debug().Str("request", r.ID).Str("category", r.Category.String()).
		Str("decision", dec.Action.String()).Msg("admitted")

	switch dec.Action {
	case ActionReject:
		e.reject(r, errors.New("rejected by arbiter"))
		return false

	case ActionQueue:
		ch := e.channels[r.Category]
		// An item still in Loading has not won the channel yet; the
		// newcomer supersedes it outright
		if ch.State() == StateLoading {
			if ducked, ok := ch.cancelLoadingCurrent(); ok {
				e.releaseDucks(ducked)
			}
			e.startLocked(ctx, r, e.arbiter.duckList(r, e.views()))
			return true
		}
		ch.setPending(ctx, r)
		return true

	case ActionInterrupt:
		ch := e.channels[r.Category]
		// Cancelling a load returns the channel straight to Stopped and
		// nothing would ever pick the parked request up, so a Loading
		// holder is superseded directly instead of via pending
		if ch.State() == StateLoading {
			if ducked, ok := ch.cancelLoadingCurrent(); ok {
				e.releaseDucks(ducked)
			}
			e.startLocked(ctx, r, e.arbiter.duckList(r, e.views()))
			return true
		}
		fadeOut := ch.currentFadeOut(e.cfg.DefaultFadeOut)
		ch.setPending(ctx, r)
		if ducked, ok := ch.stopCurrent(fadeOut); ok {
			e.releaseDucks(ducked)
		} else if !ch.State().active() {
			// The holder settled on its own between the admission
			// snapshot and the stop; nothing is left to consume the
			// slot, so the newcomer starts here
			if p := ch.takePending(); p != nil {
				e.startLocked(p.ctx, p.req, e.arbiter.duckList(p.req, e.views()))
			}
		}
		return true

	default: // ActionPlay
		e.startLocked(ctx, r, dec.DuckTargets)
		return true
	}
}

// PlayLocalized plays a localization key on the given category,
// optionally overriding the session language
func (e *Engine) PlayLocalized(ctx context.Context, key string, cat Category, lang ...content.Language) bool {
	req := Request{
		Key:       key,
		Category:  cat,
		Priority:  PriorityNormal,
		Cacheable: true,
	}
	if len(lang) > 0 {
		req.Language = lang[0]
	}
	return e.Play(ctx, req)
}

// Stop winds down the given categories, or every channel when none are
// named. The Stopped event follows the fade-out.
func (e *Engine) Stop(fadeOut time.Duration, cats ...Category) {
	for _, ch := range e.targets(cats) {
		if ducked, ok := ch.stopCurrent(fadeOut); ok {
			e.releaseDucks(ducked)
		}
	}
}

// Pause suspends the given categories, or all
func (e *Engine) Pause(cats ...Category) {
	for _, ch := range e.targets(cats) {
		ch.pause(false)
	}
}

// Resume continues the given paused categories, or all
func (e *Engine) Resume(cats ...Category) {
	for _, ch := range e.targets(cats) {
		ch.resume()
	}
}

// SetVolume sets a category level in [0,1]; the running item on that
// channel retargets immediately
func (e *Engine) SetVolume(cat Category, v float64) {
	if !cat.valid() {
		return
	}
	e.volumes.setCategory(cat, v)
	e.refreshChannel(cat)
}

// GetVolume returns a category level
func (e *Engine) GetVolume(cat Category) float64 {
	return e.volumes.getCategory(cat)
}

// SetMasterVolume sets the master level; all running items retarget
func (e *Engine) SetMasterVolume(v float64) {
	e.volumes.setMaster(v)
	for _, cat := range Categories() {
		e.refreshChannel(cat)
	}
}

// MasterVolume returns the master level
func (e *Engine) MasterVolume() float64 {
	return e.volumes.getMaster()
}

// GetState returns the playback state of a category's channel
func (e *Engine) GetState(cat Category) PlaybackState {
	if !cat.valid() {
		return StateStopped
	}
	return e.channels[cat].State()
}

// IsAnyPlaying reports whether any channel is in Playing
func (e *Engine) IsAnyPlaying() bool {
	for _, ch := range e.channels {
		if ch.State() == StatePlaying {
			return true
		}
	}
	return false
}

// ToggleMute flips the mute flag; returns true when audio is now
// enabled. Mute gates new requests, it does not cut running audio.
func (e *Engine) ToggleMute() bool {
	newMute := !e.muted.Load()
	e.muted.Store(newMute)
	return !newMute
}

// IsMuted returns the mute flag
func (e *Engine) IsMuted() bool {
	return e.muted.Load()
}

// Preload resolves and caches the given keys ahead of playback.
// Preloaded entries are marked high-priority for eviction purposes.
func (e *Engine) Preload(ctx context.Context, keys []string) map[string]bool {
	result := make(map[string]bool, len(keys))
	for _, key := range keys {
		if ctx != nil && ctx.Err() != nil {
			result[key] = false
			continue
		}
		result[key] = e.preloadOne(key)
	}
	return result
}

func (e *Engine) preloadOne(key string) bool {
	res := e.resolver.Resolve(content.Ref{Key: key})
	if res.Outcome == content.OutcomeNotFound {
		return false
	}
	if _, ok := e.cache.get(res.Path); ok {
		return true
	}
	payload, err := os.ReadFile(res.Path)
	if err != nil {
		return false
	}
	err = e.cache.put(res.Path, payload, cacheMeta{
		duration:     res.Info.Duration,
		language:     res.Language,
		highPriority: true,
	})
	return err == nil
}

// ClearCache drops cached payloads and returns bytes freed. With
// keepRecent only stale entries go.
func (e *Engine) ClearCache(keepRecent bool) int64 {
	return e.cache.clear(keepRecent, e.cfg.Staleness)
}

// CacheStats returns a cache usage snapshot
func (e *Engine) CacheStats() CacheStats {
	return e.cache.stats()
}

// SetSessionLanguage updates the resolver's session language
func (e *Engine) SetSessionLanguage(lang content.Language) {
	e.resolver.SetSessionLanguage(lang)
}

// --- internal orchestration ---

// views snapshots every channel for arbitration
func (e *Engine) views() []channelView {
	views := make([]channelView, 0, categoryCount)
	for _, cat := range Categories() {
		views = append(views, e.channels[cat].view())
	}
	return views
}

// targets maps the category list onto channels; empty means all
func (e *Engine) targets(cats []Category) []*channel {
	if len(cats) == 0 {
		chs := make([]*channel, 0, categoryCount)
		for _, cat := range Categories() {
			chs = append(chs, e.channels[cat])
		}
		return chs
	}
	chs := make([]*channel, 0, len(cats))
	for _, cat := range cats {
		if cat.valid() {
			chs = append(chs, e.channels[cat])
		}
	}
	return chs
}

// reject signals an admission failure: false return plus Error event
func (e *Engine) reject(req *Request, cause error) {
	err := newError(CodeConfigurationError, req.ID, cause)
	e.log.Debug().Str("request", req.ID).Err(cause).Msg("request rejected")
	e.notifier.Publish(event.Event{
		Type:      event.TypeError,
		Channel:   req.Category.String(),
		RequestID: req.ID,
		Err:       err,
	})
}

// startLocked begins loading req on its channel and engages ducking.
// Caller holds admitMu.
func (e *Engine) startLocked(ctx context.Context, req *Request, ducks []Category) {
	ch := e.channels[req.Category]
	gen, ok := ch.beginLoading(req, ducks)
	if !ok {
		// Lost a race with a concurrent start; fall back to the queue
		// slot rather than dropping the request
		ch.setPending(ctx, req)
		return
	}

	for _, t := range ducks {
		e.channels[t].duck(e.cfg.DuckingVolume, e.cfg.DuckingTransition)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loadAndPlay(ctx, ch, req, gen)
	}()
}

// loadAndPlay runs the asynchronous part of a playback: resolve, read,
// cache, open, then hand the channel its handle
func (e *Engine) loadAndPlay(ctx context.Context, ch *channel, req *Request, gen uint64) {
	h, err := e.loadWithRetry(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller cancelled during Loading: back to Stopped, no
			// Error event
			if ducked, ok := ch.cancelLoading(gen); ok {
				e.releaseDucks(ducked)
			}
			return
		}
		e.failAndDrain(ch, gen, classify(err, req.ID))
		return
	}

	effVol := e.volumes.effective(*req.Volume, req.Category)
	if !ch.ready(gen, h, effVol, req.FadeIn) {
		// Superseded while loading; the superseder owns the channel now
		h.Stop()
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.watch(ctx, ch, req, gen, h)
	}()
}

// watch waits for playback to finish or the caller to cancel, then
// settles the channel and starts the queued request if one is waiting
func (e *Engine) watch(ctx context.Context, ch *channel, req *Request, gen uint64, h Handle) {
	select {
	case <-h.Done():
	case <-ctx.Done():
		// Cancellation while playing behaves as stop with no fade
		ch.stopWith(gen, 0)
		<-h.Done()
	}

	if err := h.Err(); err != nil {
		e.failAndDrain(ch, gen, classify(err, req.ID))
		return
	}

	ducked, pending, ok := ch.complete(gen)
	if !ok {
		return
	}
	e.releaseDucks(ducked)
	e.startPending(pending)
}

// failAndDrain settles a failed playback and keeps the queued request
// alive: a superseder must not die with the holder it displaced
func (e *Engine) failAndDrain(ch *channel, gen uint64, err *Error) {
	ducked, pending := ch.fail(gen, err)
	e.releaseDucks(ducked)
	e.startPending(pending)
}

// startPending admits a request pulled from a queue slot
func (e *Engine) startPending(p *pendingReq) {
	if p == nil || !e.running.Load() {
		return
	}
	e.admitMu.Lock()
	e.startLocked(p.ctx, p.req, e.arbiter.duckList(p.req, e.views()))
	e.admitMu.Unlock()
}

// releaseDucks lets go of the duck holds a finished item was keeping
func (e *Engine) releaseDucks(ducked []Category) {
	for _, cat := range ducked {
		e.channels[cat].unduck(e.cfg.DuckingTransition)
	}
}

// refreshChannel re-applies the effective volume after a level change
func (e *Engine) refreshChannel(cat Category) {
	ch := e.channels[cat]
	item, ok := ch.itemVolume()
	if !ok {
		return
	}
	ch.retarget(e.volumes.effective(item, cat))
}

// loadWithRetry performs one load attempt plus the single automatic
// retry the engine allows for transient failures
func (e *Engine) loadWithRetry(ctx context.Context, req *Request) (Handle, error) {
	h, err := e.attempt(ctx, req)
	if err == nil || ctx.Err() != nil {
		return h, err
	}

	code := CodeOf(err)
	if !code.transient() {
		return nil, err
	}

	switch code {
	case CodeDeviceBusy:
		select {
		case <-time.After(e.cfg.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case CodeInsufficientMemory:
		// Make room, then try once more
		freed := e.cache.clear(true, e.cfg.Staleness)
		e.log.Debug().Int64("freed", freed).Msg("evicted cache before retry")
	}

	e.log.Debug().Str("request", req.ID).Str("code", code.String()).Msg("retrying load")
	return e.attempt(ctx, req)
}

// attempt is one full load: resolve, read, cache, backend open, under
// the load timeout
func (e *Engine) attempt(ctx context.Context, req *Request) (Handle, error) {
	openCtx, cancel := context.WithTimeout(ctx, e.cfg.LoadTimeout)
	defer cancel()

	src, err := e.prepare(openCtx, req)
	if err != nil {
		return nil, e.timeoutOr(ctx, openCtx, err, req)
	}

	h, err := e.backend.Open(openCtx, src)
	if err != nil {
		return nil, e.timeoutOr(ctx, openCtx, err, req)
	}
	return h, nil
}

// timeoutOr maps a deadline hit to CodeTimeout, leaving caller
// cancellation and already-classified errors alone
func (e *Engine) timeoutOr(ctx, openCtx context.Context, err error, req *Request) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(openCtx.Err(), context.DeadlineExceeded) {
		return newError(CodeTimeout, req.ID, err)
	}
	return err
}

// prepare resolves the request to a loaded Source, filling or hitting
// the cache for cacheable requests
func (e *Engine) prepare(ctx context.Context, req *Request) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}

	res := e.resolver.Resolve(req.ref())
	switch res.Outcome {
	case content.OutcomeNotFound:
		return Source{}, newError(CodeContentNotFound, req.ID,
			fmt.Errorf("no source for key %q path %q", req.Key, req.Path))
	case content.OutcomeFallback:
		// Silent language fallback: success, no error event
		e.log.Debug().Str("request", req.ID).
			Str("language", res.Language.String()).Msg("fallback language used")
	}

	var payload []byte
	if req.Cacheable {
		if p, ok := e.cache.get(res.Path); ok {
			payload = p
		}
	}
	if payload == nil {
		p, err := os.ReadFile(res.Path)
		if err != nil {
			return Source{}, classifyFile(err, req.ID)
		}
		payload = p
		if req.Cacheable {
			meta := cacheMeta{
				duration:     res.Info.Duration,
				language:     res.Language,
				highPriority: req.Priority >= PriorityHigh,
			}
			if err := e.cache.put(res.Path, payload, meta); err != nil {
				e.log.Debug().Str("request", req.ID).
					Msg("payload exceeds cache budget, playing uncached")
			}
		}
	}

	return Source{
		Path:        res.Path,
		Payload:     payload,
		Loop:        req.Loop,
		MaxDuration: req.MaxDuration,
		Duration:    res.Info.Duration,
	}, nil
}

// classify wraps err as a classified *Error tied to requestID
func classify(err error, requestID string) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.RequestID == "" {
			ae.RequestID = requestID
		}
		return ae
	}
	return newError(CodePlatformError, requestID, err)
}

// classifyFile maps filesystem failures onto the error taxonomy
func classifyFile(err error, requestID string) *Error {
	switch {
	case os.IsNotExist(err):
		return newError(CodeContentNotFound, requestID, err)
	case os.IsPermission(err):
		return newError(CodePermissionDenied, requestID, err)
	default:
		return newError(CodePlatformError, requestID, err)
	}
}
