// Package clock abstracts monotonic time and one-shot timers so that countdowns and
// gesture windows can be driven by a fake clock in tests.
package clock

import (
	"sync"
	"time"

	"quicktiles/internal/loop"
)

// Clock is a source of monotonic time and timers.
type Clock interface {
	Now() time.Time
	// AfterFunc calls fn once after d. Implementations decide which context fn runs on.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the timer from firing. It reports false if the timer already fired
	// or was stopped. A timer whose callback is already queued on a handler may still
	// run; callers discard such late callbacks themselves.
	Stop() bool
}

// postRetry is the delay before Real offers a refused timer callback to its handler
// again.
const postRetry = 10 * time.Millisecond

// Real is the wall clock. Timer callbacks are posted to the handler given to NewReal,
// which is normally the main (rendering) context. A callback the handler refuses is
// posted again after postRetry until it is accepted, the timer is stopped, or the
// handler reports it is closed.
type Real struct {
	handler loop.Handler
}

// NewReal returns a wall clock whose timers fire on h. A nil h runs callbacks on the
// timer goroutine.
func NewReal(h loop.Handler) *Real {
	return &Real{handler: h}
}

func (r *Real) Now() time.Time { return time.Now() }

func (r *Real) AfterFunc(d time.Duration, fn func()) Timer {
	if r.handler == nil {
		return time.AfterFunc(d, fn)
	}
	rt := &realTimer{}
	var fire func()
	fire = func() {
		if r.handler.Post(fn) {
			return
		}
		if c, ok := r.handler.(closer); ok && c.Closed() {
			return
		}
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if !rt.stopped {
			rt.t = time.AfterFunc(postRetry, fire)
		}
	}
	rt.mu.Lock()
	rt.t = time.AfterFunc(d, fire)
	rt.mu.Unlock()
	return rt
}

// closer is implemented by handlers that can tell a dropped post from a closed one.
type closer interface {
	Closed() bool
}

type realTimer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

func (t *realTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return t.t.Stop()
}
