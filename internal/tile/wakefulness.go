package tile

import "sort"

// Wakefulness broadcasts device sleep transitions to tiles. It is owned by the main
// context.
type Wakefulness struct {
	next      int
	observers map[int]func()
}

func NewWakefulness() *Wakefulness {
	return &Wakefulness{observers: make(map[int]func())}
}

// AddObserver registers fn to run when the device starts going to sleep. The returned
// function removes it and may be called more than once.
func (w *Wakefulness) AddObserver(fn func()) (remove func()) {
	w.next++
	id := w.next
	w.observers[id] = fn
	return func() { delete(w.observers, id) }
}

// StartedGoingToSleep notifies every observer in registration order.
func (w *Wakefulness) StartedGoingToSleep() {
	ids := make([]int, 0, len(w.observers))
	for id := range w.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := w.observers[id]; ok {
			fn()
		}
	}
}

// Observers reports how many observers are registered.
func (w *Wakefulness) Observers() int { return len(w.observers) }
