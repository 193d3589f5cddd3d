package tile

import (
	"log/slog"
	"time"

	"quicktiles/internal/clock"
)

// WakeLock is the resource a timed tile holds while it is on.
type WakeLock interface {
	Acquire() error
	Release() error
}

// TimedConfig configures a tile whose state lives in a countdown session.
type TimedConfig struct {
	Spec     string
	Label    string
	OffLabel string

	// Durations are the session lengths in seconds, in tap order. Infinite is allowed.
	Durations []int
	// LongPressDuration is the session started by a long press.
	LongPressDuration int
	// Window is the gesture window; zero uses DefaultGestureWindow.
	Window time.Duration

	Clock       clock.Clock
	WakeLock    WakeLock
	Wakefulness *Wakefulness

	Host   Host
	Logger *slog.Logger
}

type timed struct {
	m         *Machine
	cfg       TimedConfig
	countdown *Countdown
	window    *GestureWindow
	held      bool

	removeSleepObserver func()
}

// NewTimed returns a machine driven by taps and a countdown, with no store mirror.
//
// A tap while off starts the first duration. Taps within the gesture window while on
// step through the durations, and stepping past the last one turns the tile off. A tap
// outside the window while on turns it off. A long press toggles a session of
// LongPressDuration.
func NewTimed(cfg TimedConfig) *Machine {
	m := newMachine(cfg.Spec, cfg.Label, cfg.Host, cfg.Logger)
	t := &timed{m: m, cfg: cfg, window: NewGestureWindow(cfg.Window)}
	t.countdown = NewCountdown(cfg.Clock,
		func(int) { m.OnExternalChange(nil) },
		func() {
			t.setHeld(false)
			m.OnExternalChange(nil)
		},
	)
	m.shape = t
	return m
}

func (t *timed) start() {
	if t.cfg.Wakefulness != nil {
		t.removeSleepObserver = t.cfg.Wakefulness.AddObserver(t.goingToSleep)
	}
}

func (t *timed) stop() {
	if t.removeSleepObserver != nil {
		t.removeSleepObserver()
		t.removeSleepObserver = nil
	}
	t.countdown.Cancel()
	t.setHeld(false)
}

// goingToSleep ends the session whatever time is left.
func (t *timed) goingToSleep() {
	t.m.logger.Debug("going to sleep, ending session", "held", t.held)
	t.countdown.Cancel()
	t.setHeld(false)
	t.m.OnExternalChange(nil)
}

func (t *timed) gesture(g Gesture) {
	now := t.cfg.Clock.Now()
	if g == LongPress {
		t.window.Touch(now)
		if t.held {
			t.countdown.Cancel()
			t.setHeld(false)
			t.window.SetOffset(-1)
			return
		}
		t.setHeld(true)
		t.countdown.Start(t.cfg.LongPressDuration)
		return
	}

	if t.window.Classify(now, t.held) == CycleStep {
		next := t.window.Offset() + 1
		if next >= len(t.cfg.Durations) {
			t.window.SetOffset(-1)
			t.countdown.Cancel()
			t.setHeld(false)
			return
		}
		t.window.SetOffset(next)
		t.setHeld(true)
		t.countdown.Start(t.cfg.Durations[next])
		return
	}

	if t.held {
		t.setHeld(false)
		t.countdown.Cancel()
		return
	}
	if len(t.cfg.Durations) == 0 {
		return
	}
	t.setHeld(true)
	t.window.SetOffset(0)
	t.countdown.Start(t.cfg.Durations[0])
}

func (t *timed) setHeld(held bool) {
	if t.held == held {
		return
	}
	t.held = held
	if t.cfg.WakeLock == nil {
		return
	}
	var err error
	if held {
		err = t.cfg.WakeLock.Acquire()
	} else {
		err = t.cfg.WakeLock.Release()
	}
	if err != nil {
		t.m.logger.Warn("wake lock update failed", "held", held, "error", err)
	}
}

func (t *timed) observe(any) {}

func (t *timed) view() View {
	v := View{Active: t.held, Available: true, SecondaryLabel: t.cfg.OffLabel}
	if t.held {
		v.SecondaryLabel = formatRemaining(t.countdown.Remaining())
	}
	return v
}
