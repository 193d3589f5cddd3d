package tiles

import "quicktiles/internal/tile"

func newCaffeine(d Deps) *tile.Machine {
	return tile.NewTimed(tile.TimedConfig{
		Spec:              SpecCaffeine,
		Label:             "Caffeine",
		OffLabel:          "Off",
		Durations:         d.Caffeine.Durations,
		LongPressDuration: d.Caffeine.LongPressDuration,
		Window:            d.Caffeine.Window,
		Clock:             d.Clock,
		WakeLock:          d.WakeLock,
		Wakefulness:       d.Wakefulness,
		Host:              d.Host,
		Logger:            d.Logger,
	})
}
