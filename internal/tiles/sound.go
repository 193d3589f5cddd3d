package tiles

import (
	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
)

// Ringer modes, as stored in global/mode_ringer.
const (
	RingerSilent  = 0
	RingerVibrate = 1
	RingerNormal  = 2
)

// Zen modes, as stored in global/zen_mode.
const (
	ZenOff    = 0
	ZenAlarms = 3
)

var (
	ringerKey = settings.Key{Namespace: settings.Global, Name: "mode_ringer", Scope: settings.AllUsers}
	zenKey    = settings.Key{Namespace: settings.Global, Name: "zen_mode", Scope: settings.AllUsers}
)

func newSound(d Deps) *tile.Machine {
	logger := d.Logger.With("tile", SpecSound)
	return tile.NewCyclic(tile.CyclicConfig[int]{
		Spec:    SpecSound,
		Label:   "Sound",
		Store:   d.Store,
		Key:     ringerKey,
		Codec:   settings.IntCodec,
		Default: RingerNormal,
		Values:  []int{RingerNormal, RingerVibrate, RingerSilent},
		Describe: func(mode int) string {
			switch mode {
			case RingerVibrate:
				return "Vibrate"
			case RingerSilent:
				return "Do not disturb"
			default:
				return "Ring"
			}
		},
		// Going silent also silences notifications; coming back restores them.
		OnAdvance: func(from, to int) {
			zen := -1
			switch {
			case from == RingerVibrate && to == RingerSilent:
				zen = ZenAlarms
			case from == RingerSilent && to == RingerNormal:
				zen = ZenOff
			}
			if zen < 0 {
				return
			}
			if err := d.Store.Put(zenKey, settings.IntCodec.Encode(zen), settings.CurrentUser); err != nil {
				logger.Debug("zen mode write failed", "zen", zen, "error", err)
			}
		},
		LongPressIntent: intentVolumePanel,
		Main:            d.Main,
		Background:      d.Background,
		Host:            d.Host,
		Logger:          d.Logger,
	})
}
