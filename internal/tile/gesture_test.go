package tile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestGestureWindow_NotHeldIsFresh(t *testing.T) {
	g := NewGestureWindow(0)
	g.Classify(t0, true)
	assert.Equal(t, FreshToggle, g.Classify(t0.Add(time.Millisecond), false))
}

func TestGestureWindow_FirstEventIsFresh(t *testing.T) {
	g := NewGestureWindow(0)
	assert.Equal(t, FreshToggle, g.Classify(t0, true))
}

func TestGestureWindow_Boundary(t *testing.T) {
	g := NewGestureWindow(0)
	g.Classify(t0, false)
	assert.Equal(t, CycleStep, g.Classify(t0.Add(4999*time.Millisecond), true))

	g = NewGestureWindow(0)
	g.Classify(t0, false)
	assert.Equal(t, FreshToggle, g.Classify(t0.Add(5000*time.Millisecond), true))

	g = NewGestureWindow(0)
	g.Classify(t0, false)
	assert.Equal(t, FreshToggle, g.Classify(t0.Add(time.Minute), true))
}

func TestGestureWindow_EveryEventMovesTheWindow(t *testing.T) {
	g := NewGestureWindow(0)
	now := t0
	g.Classify(now, false)
	for i := 0; i < 5; i++ {
		now = now.Add(4 * time.Second)
		require.Equal(t, CycleStep, g.Classify(now, true), "tap %d", i)
	}
}

func TestGestureWindow_TouchCountsAsEvent(t *testing.T) {
	g := NewGestureWindow(time.Second)
	g.Touch(t0)
	assert.Equal(t, CycleStep, g.Classify(t0.Add(500*time.Millisecond), true))
}

func TestGestureWindow_Offset(t *testing.T) {
	g := NewGestureWindow(0)
	assert.Equal(t, -1, g.Offset())
	g.SetOffset(2)
	assert.Equal(t, 2, g.Offset())
}

func TestParseGesture(t *testing.T) {
	for _, g := range []Gesture{Tap, LongPress} {
		parsed, err := ParseGesture(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, parsed)
	}
	_, err := ParseGesture("swipe")
	assert.Error(t, err)
}
