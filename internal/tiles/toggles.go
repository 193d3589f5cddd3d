package tiles

import (
	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
)

var (
	ambientDisplayKey = settings.Key{Namespace: settings.Secure, Name: "doze_enabled", Scope: settings.AllUsers}
	antiFlickerKey    = settings.Key{Namespace: settings.System, Name: "display_anti_flicker", Scope: settings.AllUsers}
	syncKey           = settings.Key{Namespace: settings.Global, Name: "master_sync_enabled", Scope: settings.CurrentUser}
	readingModeKey    = settings.Key{Namespace: settings.System, Name: "display_reading_mode", Scope: settings.AllUsers}
)

func toggleConfig(d Deps, spec, label string, key settings.Key) tile.ToggleConfig {
	return tile.ToggleConfig{
		Spec:       spec,
		Label:      label,
		OnLabel:    "On",
		OffLabel:   "Off",
		Store:      d.Store,
		Key:        key,
		Main:       d.Main,
		Background: d.Background,
		Host:       d.Host,
		Logger:     d.Logger,
	}
}

func newAmbientDisplay(d Deps) *tile.Machine {
	cfg := toggleConfig(d, SpecAmbientDisplay, "Ambient display", ambientDisplayKey)
	cfg.Available = func() bool { return d.Capabilities.PulseOnNotification }
	cfg.LongPressIntent = intentLockScreenSettings
	return tile.NewToggle(cfg)
}

func newAntiFlicker(d Deps) *tile.Machine {
	cfg := toggleConfig(d, SpecAntiFlicker, "Anti flicker", antiFlickerKey)
	cfg.Available = func() bool { return d.Capabilities.AntiFlicker }
	cfg.LongPressIntent = intentLiveDisplaySettings
	return tile.NewToggle(cfg)
}

func newSync(d Deps) *tile.Machine {
	cfg := toggleConfig(d, SpecSync, "Sync", syncKey)
	cfg.LongPressIntent = intentSyncSettings
	return tile.NewToggle(cfg)
}

func newReadingMode(d Deps) *tile.Machine {
	cfg := toggleConfig(d, SpecReadingMode, "Reading mode", readingModeKey)
	cfg.Available = func() bool { return d.Capabilities.ReadingEnhancement }
	cfg.LongPressIntent = intentLiveDisplaySettings
	return tile.NewToggle(cfg)
}
