package tile

import (
	"fmt"
	"time"

	"quicktiles/internal/clock"
)

// Infinite is the duration of a session that never ticks and never expires.
const Infinite = -1

// CountdownState is the lifecycle of a Countdown.
type CountdownState int

const (
	CountdownIdle CountdownState = iota
	CountdownRunning
	CountdownExpired
	CountdownCancelled
)

func (s CountdownState) String() string {
	switch s {
	case CountdownIdle:
		return "idle"
	case CountdownRunning:
		return "running"
	case CountdownExpired:
		return "expired"
	case CountdownCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("countdown_state(%d)", int(s))
	}
}

// Countdown is a cancellable session that ticks once per second.
//
// Remaining time is measured against the session deadline, so late timers neither
// stretch the session nor lose seconds: a late tick reports the time actually left.
//
// Callbacks run on whatever context the clock delivers timers to; with clock.Real that
// is the main handler. A session is identified by a generation number, so a timer that
// fires after Cancel or a restart is ignored.
type Countdown struct {
	clock    clock.Clock
	onTick   func(remaining int)
	onExpire func()

	state     CountdownState
	remaining int
	deadline  time.Time
	gen       uint64
	timer     clock.Timer
}

// NewCountdown returns an idle countdown. Either callback may be nil.
func NewCountdown(clk clock.Clock, onTick func(remaining int), onExpire func()) *Countdown {
	return &Countdown{clock: clk, onTick: onTick, onExpire: onExpire}
}

func (c *Countdown) State() CountdownState { return c.state }

// Remaining returns the seconds left, Infinite for an infinite session.
func (c *Countdown) Remaining() int { return c.remaining }

// Start begins a session of seconds, or an endless one for Infinite. A running session
// is cancelled first. Starting with zero seconds expires immediately without a tick.
func (c *Countdown) Start(seconds int) {
	c.Cancel()
	c.gen++
	c.remaining = seconds
	c.state = CountdownRunning

	switch {
	case seconds == Infinite:
		return
	case seconds <= 0:
		c.remaining = 0
		c.expire()
		return
	}
	c.deadline = c.clock.Now().Add(time.Duration(seconds) * time.Second)
	c.schedule(c.gen)
}

// Cancel ends a running session. It is a no-op in any other state.
func (c *Countdown) Cancel() {
	if c.state != CountdownRunning {
		return
	}
	c.gen++
	c.state = CountdownCancelled
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// schedule arms the timer for the moment remaining drops by one.
func (c *Countdown) schedule(gen uint64) {
	next := c.deadline.Add(-time.Duration(c.remaining-1) * time.Second)
	wait := next.Sub(c.clock.Now())
	if wait < 0 {
		wait = 0
	}
	c.timer = c.clock.AfterFunc(wait, func() { c.tick(gen) })
}

func (c *Countdown) tick(gen uint64) {
	if gen != c.gen || c.state != CountdownRunning {
		return
	}
	c.timer = nil
	c.remaining = secondsUntil(c.deadline, c.clock.Now())
	if c.onTick != nil {
		c.onTick(c.remaining)
		// onTick may have cancelled or restarted the session.
		if gen != c.gen {
			return
		}
	}
	if c.remaining <= 0 {
		c.expire()
		return
	}
	c.schedule(gen)
}

func (c *Countdown) expire() {
	c.state = CountdownExpired
	c.timer = nil
	if c.onExpire != nil {
		c.onExpire()
	}
}

// secondsUntil rounds the time left before deadline up to whole seconds.
func secondsUntil(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// formatRemaining renders seconds as MM:SS, or an infinity sign for Infinite.
// Minutes wrap at an hour.
func formatRemaining(seconds int) string {
	if seconds == Infinite {
		return "∞"
	}
	return fmt.Sprintf("%02d:%02d", seconds/60%60, seconds%60)
}
