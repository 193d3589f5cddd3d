package main

import (
	"bytes"
	"strings"
	"testing"

	"quicktiles/internal/tile"
)

func TestHandleFrame_TracksTiles(t *testing.T) {
	var out bytes.Buffer
	views := make(map[string]tile.View)

	frames := []string{
		`{"type":"state_init","data":{"tiles":[{"spec":"sync","label":"Sync","active":false,"available":true,"state":"inactive"}],"user":0}}`,
		`{"type":"tile_changed","data":{"spec":"sync","label":"Sync","active":true,"available":true,"state":"active"}}`,
		`{"type":"tile_changed","data":{"spec":"sync","label":"Sync","active":true,"available":true,"state":"active"}}`,
		`{"type":"launch_intent","data":{"spec":"sync","intent":"android.settings.SYNC_SETTINGS"}}`,
		`{"type":"tile_removed","data":{"spec":"sync"}}`,
	}
	for _, f := range frames {
		handleFrame(&out, []byte(f), views)
	}

	got := out.String()
	for _, want := range []string{
		"[INIT] user 0, 1 tiles",
		`sync: inactive "Sync"`,
		`[TILE] sync: active "Sync"`,
		"[INTENT] sync -> android.settings.SYNC_SETTINGS",
		"[REMOVED] sync",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
	if n := strings.Count(got, "[TILE]"); n != 1 {
		t.Errorf("expected duplicate update suppressed, got %d tile lines", n)
	}
	if len(views) != 0 {
		t.Errorf("expected removed tile forgotten, got %v", views)
	}
}

func TestHandleFrame_NonJSON(t *testing.T) {
	var out bytes.Buffer
	handleFrame(&out, []byte("hello"), map[string]tile.View{})
	if !strings.HasPrefix(out.String(), "[TEXT] hello") {
		t.Errorf("unexpected output %q", out.String())
	}
}
