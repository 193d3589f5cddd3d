package tiles

import (
	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
)

// Live display modes, as stored in system/display_temperature_mode.
const (
	LiveDisplayOff     = 0
	LiveDisplayNight   = 1
	LiveDisplayDay     = 2
	LiveDisplayOutdoor = 3
	LiveDisplayAuto    = 4
)

// offTemperature is the neutral color temperature. A day temperature equal to it makes
// day mode indistinguishable from off.
const offTemperature = 6500

var (
	liveDisplayModeKey = settings.Key{Namespace: settings.System, Name: "display_temperature_mode", Scope: settings.AllUsers}
	dayTemperatureKey  = settings.Key{Namespace: settings.System, Name: "display_temperature_day", Scope: settings.AllUsers}
)

var liveDisplayLabels = map[int]string{
	LiveDisplayAuto:    "Automatic",
	LiveDisplayOff:     "Off",
	LiveDisplayDay:     "Day",
	LiveDisplayNight:   "Night",
	LiveDisplayOutdoor: "Outdoor",
}

func newLiveDisplay(d Deps) *tile.Machine {
	caps := d.Capabilities
	dayTemperature := settings.NewMirror(settings.MirrorConfig[int]{
		Store:      d.Store,
		Key:        dayTemperatureKey,
		Codec:      settings.IntCodec,
		Default:    caps.DayTemperature,
		Main:       d.Main,
		Background: d.Background,
		Logger:     d.Logger,
	})

	return tile.NewCyclic(tile.CyclicConfig[int]{
		Spec:  SpecLiveDisplay,
		Label: "Live display",
		Store: d.Store,
		Key:   liveDisplayModeKey,
		Codec: settings.IntCodec,
		// An unreadable mode is treated as automatic.
		Default: LiveDisplayAuto,
		Values: []int{
			LiveDisplayAuto,
			LiveDisplayOff,
			LiveDisplayDay,
			LiveDisplayNight,
			LiveDisplayOutdoor,
		},
		Skip: func(mode int) bool {
			switch {
			case mode == LiveDisplayOutdoor && !caps.OutdoorModeAvailable():
				return true
			case mode == LiveDisplayDay && dayTemperature.Value() == offTemperature:
				return true
			case caps.NightDisplay && (mode == LiveDisplayDay || mode == LiveDisplayNight):
				return true
			}
			return false
		},
		Aux: []tile.Lifecycle{dayTemperature},
		Available: func() bool {
			return !caps.NightDisplay || caps.OutdoorModeAvailable()
		},
		Active:          func(mode int) bool { return mode != LiveDisplayOff },
		Describe:        func(mode int) string { return liveDisplayLabels[mode] },
		LongPressIntent: intentLiveDisplaySettings,
		Main:            d.Main,
		Background:      d.Background,
		Host:            d.Host,
		Logger:          d.Logger,
	})
}
