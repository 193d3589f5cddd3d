// Package flags exposes boolean feature flags to any goroutine. Flags backed by a
// setting are mirrored from the store on the background context.
package flags

import (
	"log/slog"
	"sync"

	"quicktiles/internal/loop"
	"quicktiles/internal/settings"
)

// Flag is a named boolean with a release default.
type Flag struct {
	Name    string
	Default bool
}

// CombinedSignalIcons merges the mobile and wifi icons in the status bar. It follows
// secure/combined_status_bar_signal_icons.
var CombinedSignalIcons = Flag{Name: "combined_status_bar_signal_icons"}

var combinedSignalIconsKey = settings.Key{
	Namespace: settings.Secure,
	Name:      "combined_status_bar_signal_icons",
	Scope:     settings.AllUsers,
}

// FeatureFlags answers IsEnabled from any goroutine.
type FeatureFlags struct {
	background loop.Handler
	mirror     *settings.Mirror[bool]
	release    map[string]bool

	mu                  sync.RWMutex
	combinedSignalIcons bool
}

// New creates the flag set. release holds defaults for flags that are not mirrored;
// it may be nil.
func New(store settings.Store, background loop.Handler, release map[string]bool, logger *slog.Logger) *FeatureFlags {
	if background == nil {
		background = loop.Inline{}
	}
	f := &FeatureFlags{
		background: background,
		release:    make(map[string]bool, len(release)),
	}
	for name, v := range release {
		f.release[name] = v
	}
	// The mirror lives entirely on the background context; the lock publishes its value.
	f.mirror = settings.NewMirror(settings.MirrorConfig[bool]{
		Store:      store,
		Key:        combinedSignalIconsKey,
		Codec:      settings.BoolCodec,
		Main:       background,
		Background: background,
		OnChange: func(v bool) {
			f.mu.Lock()
			f.combinedSignalIcons = v
			f.mu.Unlock()
		},
		Logger: logger,
	})
	return f
}

// Start begins mirroring. It may be called from any goroutine.
func (f *FeatureFlags) Start() { f.background.Post(f.mirror.Start) }

// Stop ends mirroring; the last value stays readable.
func (f *FeatureFlags) Stop() { f.background.Post(f.mirror.Stop) }

func (f *FeatureFlags) IsEnabled(flag Flag) bool {
	if flag.Name == CombinedSignalIcons.Name {
		f.mu.RLock()
		defer f.mu.RUnlock()
		return f.combinedSignalIcons
	}
	if v, ok := f.release[flag.Name]; ok {
		return v
	}
	return flag.Default
}

// Snapshot returns every known flag by name.
func (f *FeatureFlags) Snapshot() map[string]bool {
	out := make(map[string]bool, len(f.release)+1)
	for name, v := range f.release {
		out[name] = v
	}
	out[CombinedSignalIcons.Name] = f.IsEnabled(CombinedSignalIcons)
	return out
}
