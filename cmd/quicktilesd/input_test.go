package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quicktiles/internal/ipc"
)

const keyPower = 116

// keyAt builds a key event ms milliseconds into the test.
func keyAt(code uint16, value int32, ms int64) inputEvent {
	return inputEvent{
		Sec:   ms / 1000,
		Usec:  (ms % 1000) * 1000,
		Type:  EV_KEY,
		Code:  code,
		Value: value,
	}
}

func newTestTracker() *keyTracker {
	return newKeyTracker(map[int]string{keyPower: "caffeine"}, 500*time.Millisecond)
}

func TestKeyTracker_ShortPressIsTap(t *testing.T) {
	k := newTestTracker()

	if ev := k.handle(keyAt(keyPower, evValuePress, 0)); ev != nil {
		t.Fatalf("expected nothing on press, got %#v", ev)
	}
	ev := k.handle(keyAt(keyPower, evValueRelease, 120))
	if tap, ok := ev.(ipc.Tap); !ok || tap.Tile != "caffeine" {
		t.Fatalf("expected tap on caffeine, got %#v", ev)
	}
}

func TestKeyTracker_LongPressReportedOnRepeat(t *testing.T) {
	k := newTestTracker()

	k.handle(keyAt(keyPower, evValuePress, 0))
	if ev := k.handle(keyAt(keyPower, evValueRepeat, 250)); ev != nil {
		t.Fatalf("expected nothing before threshold, got %#v", ev)
	}
	ev := k.handle(keyAt(keyPower, evValueRepeat, 520))
	if lp, ok := ev.(ipc.LongPress); !ok || lp.Tile != "caffeine" {
		t.Fatalf("expected long press on caffeine, got %#v", ev)
	}

	// Later repeats and the release do not fire again.
	if ev := k.handle(keyAt(keyPower, evValueRepeat, 600)); ev != nil {
		t.Errorf("expected one long press per hold, got %#v", ev)
	}
	if ev := k.handle(keyAt(keyPower, evValueRelease, 900)); ev != nil {
		t.Errorf("expected nothing on release after long press, got %#v", ev)
	}

	// The next short press is a tap again.
	k.handle(keyAt(keyPower, evValuePress, 2000))
	if _, ok := k.handle(keyAt(keyPower, evValueRelease, 2100)).(ipc.Tap); !ok {
		t.Errorf("expected tap after a completed long press")
	}
}

func TestKeyTracker_LongPressReportedOnReleaseWithoutRepeat(t *testing.T) {
	k := newTestTracker()

	k.handle(keyAt(keyPower, evValuePress, 1000))
	ev := k.handle(keyAt(keyPower, evValueRelease, 1700))
	if _, ok := ev.(ipc.LongPress); !ok {
		t.Fatalf("expected long press on release, got %#v", ev)
	}
}

func TestKeyTracker_IgnoresUnboundAndNonKeyEvents(t *testing.T) {
	k := newTestTracker()

	k.handle(keyAt(30, evValuePress, 0))
	if ev := k.handle(keyAt(30, evValueRelease, 50)); ev != nil {
		t.Errorf("expected unbound key ignored, got %#v", ev)
	}

	syn := inputEvent{Type: 0x00, Code: keyPower, Value: evValuePress}
	if ev := k.handle(syn); ev != nil {
		t.Errorf("expected non-key event ignored, got %#v", ev)
	}

	// A release without a press (key held at startup) is ignored.
	if ev := k.handle(keyAt(keyPower, evValueRelease, 50)); ev != nil {
		t.Errorf("expected stray release ignored, got %#v", ev)
	}
}

func TestReadInputEvents_DecodesDeviceStream(t *testing.T) {
	var buf bytes.Buffer
	for _, ev := range []inputEvent{
		keyAt(keyPower, evValuePress, 1500),
		keyAt(keyPower, evValueRelease, 1600),
	} {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "event0")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write device file: %v", err)
	}
	files, err := openInputDevices([]string{path})
	if err != nil {
		t.Fatalf("openInputDevices: %v", err)
	}
	defer files[0].Close()

	events := make(chan inputEvent, 4)
	readErr := make(chan error, 1)
	go readInputEvents(files[0], events, readErr)

	for _, want := range []int32{evValuePress, evValueRelease} {
		select {
		case ev := <-events:
			if ev.Code != keyPower || ev.Value != want {
				t.Errorf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event")
		}
	}
	if got := keyAt(keyPower, evValuePress, 1500).time(); got.UnixMilli() != 1500 {
		t.Errorf("expected event time 1500ms, got %d", got.UnixMilli())
	}

	// End of file is reported as a reader failure.
	select {
	case err := <-readErr:
		if err == nil {
			t.Errorf("expected read error at EOF")
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for read error")
	}
}

func TestOpenInputDevices_MissingDevice(t *testing.T) {
	if _, err := openInputDevices([]string{filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatalf("expected error for missing device")
	}
}

func TestRunInputLoop_SubmitsGestures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan inputEvent, 4)
	readErr := make(chan error)
	requests := make(chan request, 4)

	done := make(chan error, 1)
	go func() {
		done <- runInputLoop(ctx, events, readErr, newTestTracker(), requests, discardLogger)
	}()

	events <- keyAt(keyPower, evValuePress, 0)
	events <- keyAt(keyPower, evValueRelease, 100)

	select {
	case req := <-requests:
		if tap, ok := req.ev.(ipc.Tap); !ok || tap.Tile != "caffeine" {
			t.Errorf("expected caffeine tap request, got %#v", req.ev)
		}
		if req.reply != nil {
			t.Errorf("expected input requests to carry no reply channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for request")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for input loop to stop")
	}
}

func TestRunInputLoop_ReaderFailureIsFatal(t *testing.T) {
	readErr := make(chan error, 1)
	readErr <- os.ErrClosed

	err := runInputLoop(context.Background(), make(chan inputEvent), readErr, newTestTracker(), make(chan request), discardLogger)
	if err == nil {
		t.Fatalf("expected reader failure to stop the loop")
	}
}
