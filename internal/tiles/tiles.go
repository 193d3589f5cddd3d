// Package tiles builds the concrete quick settings tiles and maps tile specs to them.
package tiles

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"quicktiles/internal/clock"
	"quicktiles/internal/loop"
	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
)

// Tile specs understood by the factory.
const (
	SpecReadingMode    = "reading_mode"
	SpecCaffeine       = "caffeine"
	SpecAmbientDisplay = "ambient_display"
	SpecSync           = "sync"
	SpecSound          = "sound"
	SpecLiveDisplay    = "livedisplay"
	SpecAntiFlicker    = "anti_flicker"
)

// ErrUnknownSpec is returned by Create for specs no tile is registered under.
var ErrUnknownSpec = errors.New("unknown tile spec")

// Settings activities opened by long press.
const (
	intentLiveDisplaySettings = "com.android.settings.LIVEDISPLAY_SETTINGS"
	intentLockScreenSettings  = "android.settings.LOCK_SCREEN_SETTINGS"
	intentSyncSettings        = "android.settings.SYNC_SETTINGS"
	intentVolumePanel         = "android.settings.panel.action.VOLUME"
)

// Capabilities describes the hardware and platform features tiles are gated on.
type Capabilities struct {
	// PulseOnNotification enables the ambient display tile.
	PulseOnNotification bool
	// AntiFlicker enables the anti-flicker tile.
	AntiFlicker bool
	// ReadingEnhancement enables the reading mode tile.
	ReadingEnhancement bool
	// OutdoorMode and ManagedOutdoorMode decide whether live display offers outdoor mode.
	OutdoorMode        bool
	ManagedOutdoorMode bool
	// NightDisplay means the platform night light supersedes live display day/night.
	NightDisplay bool
	// DayTemperature is the configured day color temperature in kelvin, used until the
	// stored value is read.
	DayTemperature int
}

// OutdoorModeAvailable reports whether live display may cycle into outdoor mode.
func (c Capabilities) OutdoorModeAvailable() bool {
	return c.OutdoorMode && !c.ManagedOutdoorMode
}

// CaffeineOptions configures the caffeine tile.
type CaffeineOptions struct {
	// Durations in seconds; tile.Infinite is allowed.
	Durations         []int
	LongPressDuration int
	Window            time.Duration
}

// DefaultCaffeineOptions are 5, 10 and 30 minutes then unlimited, with a 5:45 long press.
func DefaultCaffeineOptions() CaffeineOptions {
	return CaffeineOptions{
		Durations:         []int{5 * 60, 10 * 60, 30 * 60, tile.Infinite},
		LongPressDuration: 5*60 + 45,
		Window:            tile.DefaultGestureWindow,
	}
}

// Deps are the collaborators every tile is built from.
type Deps struct {
	Store      settings.Store
	Main       loop.Handler
	Background loop.Handler
	Clock      clock.Clock

	Wakefulness *tile.Wakefulness
	WakeLock    tile.WakeLock

	Capabilities Capabilities
	Caffeine     CaffeineOptions

	Host   tile.Host
	Logger *slog.Logger
}

// Factory creates a machine per spec.
type Factory struct {
	deps     Deps
	builders map[string]func(Deps) *tile.Machine
}

// NewFactory returns a factory for every known tile.
func NewFactory(deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Main == nil {
		deps.Main = loop.Inline{}
	}
	if deps.Background == nil {
		deps.Background = loop.Inline{}
	}
	if deps.Wakefulness == nil {
		deps.Wakefulness = tile.NewWakefulness()
	}
	if len(deps.Caffeine.Durations) == 0 {
		deps.Caffeine = DefaultCaffeineOptions()
	}
	return &Factory{
		deps: deps,
		builders: map[string]func(Deps) *tile.Machine{
			SpecReadingMode:    newReadingMode,
			SpecCaffeine:       newCaffeine,
			SpecAmbientDisplay: newAmbientDisplay,
			SpecSync:           newSync,
			SpecSound:          newSound,
			SpecLiveDisplay:    newLiveDisplay,
			SpecAntiFlicker:    newAntiFlicker,
		},
	}
}

// Create returns a new, inactive machine for spec.
func (f *Factory) Create(spec string) (*tile.Machine, error) {
	build, ok := f.builders[spec]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpec, spec)
	}
	return build(f.deps), nil
}

// Specs lists the specs Create accepts, sorted.
func (f *Factory) Specs() []string {
	specs := make([]string, 0, len(f.builders))
	for spec := range f.builders {
		specs = append(specs, spec)
	}
	sort.Strings(specs)
	return specs
}

// Wakefulness returns the sleep broadcaster timed tiles observe.
func (f *Factory) Wakefulness() *tile.Wakefulness { return f.deps.Wakefulness }
