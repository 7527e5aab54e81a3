package audio

import (
	"sync"
	"time"

	"github.com/sproutplay/audiokit/parameter"
)

// fade is a time-bounded volume ramp running concurrently with
// playback. It gates the level handed to the backend; it never blocks
// a state transition. Cancelling leaves the volume wherever the ramp
// got to.
type fade struct {
	cancel   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// startFade ramps linearly from from to to over d, calling apply with
// each step and onDone exactly once after the ramp finishes (not when
// cancelled). A non-positive d applies the target immediately.
func startFade(from, to float64, d time.Duration, apply func(float64), onDone func()) *fade {
	f := &fade{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if d <= 0 {
		apply(to)
		close(f.done)
		if onDone != nil {
			onDone()
		}
		return f
	}

	go func() {
		defer close(f.done)

		ticker := time.NewTicker(parameter.FadeTick)
		defer ticker.Stop()

		start := time.Now()
		for {
			select {
			case <-f.cancel:
				return
			case now := <-ticker.C:
				t := float64(now.Sub(start)) / float64(d)
				if t >= 1 {
					apply(to)
					if onDone != nil {
						onDone()
					}
					return
				}
				apply(from + (to-from)*t)
			}
		}
	}()
	return f
}

// stop cancels the ramp; safe to call more than once
func (f *fade) stop() {
	f.stopOnce.Do(func() {
		close(f.cancel)
	})
	<-f.done
}
