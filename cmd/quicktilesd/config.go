package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
	"quicktiles/internal/tiles"
)

// Config is the top-level YAML configuration for the quicktilesd daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume a
// well-formed config. Flags only override single values on top of the file.
type Config struct {
	// Settings store backing every tile
	Store StoreConfig `yaml:"store"`

	// Tile list and auto-add policy
	Panel PanelConfig `yaml:"panel"`

	// Hardware/platform features tiles are gated on
	Capabilities CapabilitiesConfig `yaml:"capabilities"`

	// Caffeine tile timing
	Caffeine CaffeineConfig `yaml:"caffeine"`

	// IPC configuration (used by tilectl)
	IPC IPCConfig `yaml:"ipc"`

	// WebSocket state stream
	WS WSConfig `yaml:"ws"`

	// Key bindings from input devices
	Input InputConfig `yaml:"input"`

	// Kernel wake lock used by caffeine
	WakeLock WakeLockConfig `yaml:"wakelock"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type StoreConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"` // reload on external edits
}

type PanelConfig struct {
	Tiles   []string `yaml:"tiles"`
	AutoAdd []string `yaml:"auto_add,omitempty"`
}

type CapabilitiesConfig struct {
	PulseOnNotification bool `yaml:"pulse_on_notification"`
	AntiFlicker         bool `yaml:"anti_flicker"`
	ReadingEnhancement  bool `yaml:"reading_enhancement"`
	OutdoorMode         bool `yaml:"outdoor_mode"`
	ManagedOutdoorMode  bool `yaml:"managed_outdoor_mode"`
	NightDisplay        bool `yaml:"night_display"`
	DayTemperature      int  `yaml:"day_temperature"`
}

// CaffeineConfig uses seconds; -1 in durations_sec means unlimited.
type CaffeineConfig struct {
	DurationsSec []int `yaml:"durations_sec"`
	LongPressSec int   `yaml:"long_press_sec"`
	TapWindowMS  int   `yaml:"tap_window_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type InputConfig struct {
	Devices     []string       `yaml:"devices,omitempty"`
	Bindings    map[int]string `yaml:"bindings,omitempty"` // key code -> tile spec
	LongPressMS int            `yaml:"long_press_ms"`
}

type WakeLockConfig struct {
	// Name written to /sys/power/wake_lock. Empty disables the kernel wake lock.
	Name string `yaml:"name,omitempty"`
	Dir  string `yaml:"dir,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	caffeine := tiles.DefaultCaffeineOptions()
	return Config{
		Store: StoreConfig{
			Path:  defaultStorePath,
			Watch: true,
		},
		Panel: PanelConfig{
			Tiles: []string{
				tiles.SpecSound,
				tiles.SpecCaffeine,
				tiles.SpecSync,
				tiles.SpecAmbientDisplay,
			},
			AutoAdd: []string{tiles.SpecLiveDisplay},
		},
		Capabilities: CapabilitiesConfig{
			DayTemperature: defaultDayTemperature,
		},
		Caffeine: CaffeineConfig{
			DurationsSec: caffeine.Durations,
			LongPressSec: caffeine.LongPressDuration,
			TapWindowMS:  int(caffeine.Window / time.Millisecond),
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		WS: WSConfig{
			Enabled: true,
			Listen:  defaultWSListen,
			Path:    defaultWSPath,
		},
		Input: InputConfig{
			LongPressMS: defaultLongPressMS,
		},
		WakeLock: WakeLockConfig{
			Dir: defaultWakeLockDir,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - Fields missing from the file keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	resolved, err := settings.ExpandPath(path)
	if err != nil {
		return Config{}, fmt.Errorf("config path: %w", err)
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var trailing yaml.Node
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values to apply on top of a loaded config.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	StorePath  *string
	StoreWatch *bool

	Tiles *[]string

	IPCSocketPath *string

	WSEnabled *bool
	WSListen  *string

	InputDevices *[]string
	LongPressMS  *int

	WakeLockName *string

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if it holds
// a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.StorePath != nil {
		cfg.Store.Path = *o.StorePath
	}
	if o.StoreWatch != nil {
		cfg.Store.Watch = *o.StoreWatch
	}
	if o.Tiles != nil {
		cfg.Panel.Tiles = *o.Tiles
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.WSEnabled != nil {
		cfg.WS.Enabled = *o.WSEnabled
	}
	if o.WSListen != nil {
		cfg.WS.Listen = *o.WSListen
	}
	if o.InputDevices != nil {
		cfg.Input.Devices = *o.InputDevices
	}
	if o.LongPressMS != nil {
		cfg.Input.LongPressMS = *o.LongPressMS
	}
	if o.WakeLockName != nil {
		cfg.WakeLock.Name = *o.WakeLockName
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Store
	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}

	// Panel
	for i, spec := range c.Panel.Tiles {
		if spec == "" {
			return fmt.Errorf("panel.tiles[%d] is empty", i)
		}
	}
	for i, spec := range c.Panel.AutoAdd {
		if spec == "" {
			return fmt.Errorf("panel.auto_add[%d] is empty", i)
		}
	}

	// Capabilities
	if c.Capabilities.DayTemperature < 0 {
		return errors.New("capabilities.day_temperature must be >= 0")
	}

	// Caffeine
	if len(c.Caffeine.DurationsSec) == 0 {
		return errors.New("caffeine.durations_sec must not be empty")
	}
	for i, d := range c.Caffeine.DurationsSec {
		if d <= 0 && d != tile.Infinite {
			return fmt.Errorf("caffeine.durations_sec[%d] must be > 0 or -1 (unlimited)", i)
		}
	}
	if c.Caffeine.LongPressSec <= 0 {
		return errors.New("caffeine.long_press_sec must be > 0")
	}
	if c.Caffeine.TapWindowMS <= 0 {
		return errors.New("caffeine.tap_window_ms must be > 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// WebSocket
	if c.WS.Enabled {
		if c.WS.Listen == "" {
			return errors.New("ws.enabled is true but ws.listen is empty")
		}
		if c.WS.Path == "" || c.WS.Path[0] != '/' {
			return errors.New("ws.path must start with /")
		}
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	for code, spec := range c.Input.Bindings {
		if code <= 0 || code > keyMax {
			return fmt.Errorf("input.bindings: key code %d out of range", code)
		}
		if spec == "" {
			return fmt.Errorf("input.bindings[%d] is empty", code)
		}
	}
	if len(c.Input.Bindings) > 0 && len(c.Input.Devices) == 0 {
		return errors.New("input.bindings set but input.devices is empty")
	}
	if c.Input.LongPressMS <= 0 {
		return errors.New("input.long_press_ms must be > 0")
	}

	// Wake lock
	if c.WakeLock.Name != "" && c.WakeLock.Dir == "" {
		return errors.New("wakelock.name is set but wakelock.dir is empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToCapabilities converts the file config into the tile capability set.
func (c *Config) ToCapabilities() tiles.Capabilities {
	return tiles.Capabilities{
		PulseOnNotification: c.Capabilities.PulseOnNotification,
		AntiFlicker:         c.Capabilities.AntiFlicker,
		ReadingEnhancement:  c.Capabilities.ReadingEnhancement,
		OutdoorMode:         c.Capabilities.OutdoorMode,
		ManagedOutdoorMode:  c.Capabilities.ManagedOutdoorMode,
		NightDisplay:        c.Capabilities.NightDisplay,
		DayTemperature:      c.Capabilities.DayTemperature,
	}
}

// ToCaffeineOptions converts the file config into caffeine tile options.
func (c *Config) ToCaffeineOptions() tiles.CaffeineOptions {
	durations := make([]int, len(c.Caffeine.DurationsSec))
	copy(durations, c.Caffeine.DurationsSec)
	return tiles.CaffeineOptions{
		Durations:         durations,
		LongPressDuration: c.Caffeine.LongPressSec,
		Window:            time.Duration(c.Caffeine.TapWindowMS) * time.Millisecond,
	}
}
