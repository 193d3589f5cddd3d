package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quicktiles/internal/tile"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quicktiles.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	opts := cfg.ToCaffeineOptions()
	want := []int{300, 600, 1800, tile.Infinite}
	if len(opts.Durations) != len(want) {
		t.Fatalf("expected durations %v, got %v", want, opts.Durations)
	}
	for i := range want {
		if opts.Durations[i] != want[i] {
			t.Errorf("durations[%d]: expected %d, got %d", i, want[i], opts.Durations[i])
		}
	}
	if opts.LongPressDuration != 345 {
		t.Errorf("expected long press duration 345, got %d", opts.LongPressDuration)
	}
	if opts.Window != 5*time.Second {
		t.Errorf("expected tap window 5s, got %v", opts.Window)
	}
}

func TestLoadConfigFile_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
panel:
  tiles: [caffeine, livedisplay]
capabilities:
  outdoor_mode: true
  day_temperature: 6500
input:
  devices: [/dev/input/event3]
  bindings:
    142: caffeine
  long_press_ms: 700
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if strings.Join(cfg.Panel.Tiles, ",") != "caffeine,livedisplay" {
		t.Errorf("unexpected tiles %v", cfg.Panel.Tiles)
	}
	caps := cfg.ToCapabilities()
	if !caps.OutdoorModeAvailable() || caps.DayTemperature != 6500 {
		t.Errorf("unexpected capabilities %+v", caps)
	}
	if cfg.Input.Bindings[142] != "caffeine" || cfg.Input.LongPressMS != 700 {
		t.Errorf("unexpected input config %+v", cfg.Input)
	}
	// Untouched sections keep their defaults.
	if cfg.IPC.SocketPath != defaultSocketPath {
		t.Errorf("expected default socket path, got %q", cfg.IPC.SocketPath)
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "panel:\n  tiels: [sync]\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n---\nlogging:\n  level: info\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for trailing document")
	}
}

func TestLoadConfigFile_RelativePath(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(filepath.Dir(path)); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfigFile(filepath.Base(path))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level from file, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"empty tile", func(c *Config) { c.Panel.Tiles = []string{"sync", ""} }, "panel.tiles[1]"},
		{"zero duration", func(c *Config) { c.Caffeine.DurationsSec = []int{0} }, "caffeine.durations_sec[0]"},
		{"no durations", func(c *Config) { c.Caffeine.DurationsSec = nil }, "caffeine.durations_sec"},
		{"zero window", func(c *Config) { c.Caffeine.TapWindowMS = 0 }, "caffeine.tap_window_ms"},
		{"empty socket", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
		{"relative ws path", func(c *Config) { c.WS.Path = "ws" }, "ws.path"},
		{"bindings without devices", func(c *Config) { c.Input.Bindings = map[int]string{142: "sync"} }, "input.devices"},
		{"key code out of range", func(c *Config) {
			c.Input.Devices = []string{"/dev/input/event0"}
			c.Input.Bindings = map[int]string{0x300: "sync"}
		}, "out of range"},
		{"wake lock without dir", func(c *Config) {
			c.WakeLock.Name = "quicktiles"
			c.WakeLock.Dir = ""
		}, "wakelock.dir"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	socket := "/run/qt.sock"
	watch := false
	tiles := []string{"sound"}
	FlagOverrides{IPCSocketPath: &socket, StoreWatch: &watch, Tiles: &tiles}.Apply(&cfg)

	if cfg.IPC.SocketPath != socket {
		t.Errorf("expected socket %q, got %q", socket, cfg.IPC.SocketPath)
	}
	if cfg.Store.Watch {
		t.Errorf("expected store watch disabled by a zero-value override")
	}
	if len(cfg.Panel.Tiles) != 1 || cfg.Panel.Tiles[0] != "sound" {
		t.Errorf("unexpected tiles %v", cfg.Panel.Tiles)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected nil override to keep log level, got %q", cfg.Logging.Level)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" sound, ,caffeine ,")
	if strings.Join(got, "|") != "sound|caffeine" {
		t.Errorf("unexpected split %q", got)
	}
}
