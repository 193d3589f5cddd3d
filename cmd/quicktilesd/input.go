package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"quicktiles/internal/ipc"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

func (ev inputEvent) time() time.Time {
	return time.Unix(ev.Sec, ev.Usec*int64(time.Microsecond))
}

// readInputEvents reads input events from one device and sends them to a channel.
// It blocks on read and is meant to run in its own goroutine.
func readInputEvents(f *os.File, events chan<- inputEvent, readErr chan<- error) {
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf)

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}

		events <- ev
	}
}

// ============================================================================
// Key bindings
// ============================================================================

// keyTracker turns key press/repeat/release into tile gestures for bound keys.
//
// A key held for at least longPress is a long press, reported as soon as an
// autorepeat event shows the threshold was crossed, or on release otherwise.
// Anything shorter is a tap, reported on release.
type keyTracker struct {
	bindings  map[uint16]string
	longPress time.Duration

	down  map[uint16]time.Time
	fired map[uint16]bool
}

func newKeyTracker(bindings map[int]string, longPress time.Duration) *keyTracker {
	k := &keyTracker{
		bindings:  make(map[uint16]string, len(bindings)),
		longPress: longPress,
		down:      make(map[uint16]time.Time),
		fired:     make(map[uint16]bool),
	}
	for code, spec := range bindings {
		k.bindings[uint16(code)] = spec
	}
	return k
}

// handle returns the gesture event ev completes, or nil.
func (k *keyTracker) handle(ev inputEvent) ipc.Event {
	if ev.Type != EV_KEY {
		return nil
	}
	spec, ok := k.bindings[ev.Code]
	if !ok {
		return nil
	}
	at := ev.time()

	switch ev.Value {
	case evValuePress:
		k.down[ev.Code] = at
		k.fired[ev.Code] = false

	case evValueRepeat:
		start, held := k.down[ev.Code]
		if !held || k.fired[ev.Code] {
			return nil
		}
		if at.Sub(start) >= k.longPress {
			k.fired[ev.Code] = true
			return ipc.LongPress{Tile: spec}
		}

	case evValueRelease:
		start, held := k.down[ev.Code]
		fired := k.fired[ev.Code]
		delete(k.down, ev.Code)
		delete(k.fired, ev.Code)
		if !held || fired {
			return nil
		}
		if at.Sub(start) >= k.longPress {
			return ipc.LongPress{Tile: spec}
		}
		return ipc.Tap{Tile: spec}
	}
	return nil
}

// runInputLoop translates device events into daemon requests until ctx is canceled
// or a reader fails.
func runInputLoop(ctx context.Context, events <-chan inputEvent, readErr <-chan error, tracker *keyTracker, requests chan<- request, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			return fmt.Errorf("input reader stopped: %w", err)

		case ev := <-events:
			gesture := tracker.handle(ev)
			if gesture == nil {
				continue
			}
			logger.Debug("key gesture", "code", ev.Code, "event", fmt.Sprintf("%T", gesture))
			select {
			case requests <- request{ev: gesture}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// openInputDevices opens every device for reading. On error, already opened devices
// are closed.
func openInputDevices(paths []string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, fmt.Errorf("open input device %s: %w", p, err)
		}
		files = append(files, f)
	}
	return files, nil
}
