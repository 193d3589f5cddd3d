package tile

import (
	"fmt"
	"time"
)

// Gesture is a discrete user input on a tile.
type Gesture int

const (
	Tap Gesture = iota
	LongPress
)

func (g Gesture) String() string {
	switch g {
	case Tap:
		return "tap"
	case LongPress:
		return "long_press"
	default:
		return fmt.Sprintf("gesture(%d)", int(g))
	}
}

// ParseGesture is the inverse of Gesture.String.
func ParseGesture(s string) (Gesture, error) {
	switch s {
	case "tap":
		return Tap, nil
	case "long_press":
		return LongPress, nil
	default:
		return 0, fmt.Errorf("unknown gesture %q", s)
	}
}

// Class is the outcome of classifying a tap against the gesture window.
type Class int

const (
	// FreshToggle flips the held state, starting from the first entry of the set.
	FreshToggle Class = iota
	// CycleStep advances to the next entry of the set.
	CycleStep
)

func (c Class) String() string {
	if c == CycleStep {
		return "cycle_step"
	}
	return "fresh_toggle"
}

// DefaultGestureWindow is how long after a tap another tap still counts as a cycle step.
const DefaultGestureWindow = 5000 * time.Millisecond

// GestureWindow classifies taps into fresh toggles and cycle steps.
//
// The offset is the caller's position in its small set of choices; the window only
// stores it so that the position and the time of the last tap live together.
type GestureWindow struct {
	window  time.Duration
	last    time.Time
	hasLast bool
	offset  int
}

// NewGestureWindow returns a window of the given length; zero or negative uses
// DefaultGestureWindow.
func NewGestureWindow(window time.Duration) *GestureWindow {
	if window <= 0 {
		window = DefaultGestureWindow
	}
	return &GestureWindow{window: window, offset: -1}
}

// Classify returns CycleStep when held and the previous event was less than the window
// ago, FreshToggle otherwise. Every call records now as the last event.
func (g *GestureWindow) Classify(now time.Time, held bool) Class {
	class := FreshToggle
	if held && g.hasLast && now.Sub(g.last) < g.window {
		class = CycleStep
	}
	g.Touch(now)
	return class
}

// Touch records an event that is not itself classified, such as a long press.
func (g *GestureWindow) Touch(now time.Time) {
	g.last = now
	g.hasLast = true
}

func (g *GestureWindow) Offset() int     { return g.offset }
func (g *GestureWindow) SetOffset(n int) { g.offset = n }
