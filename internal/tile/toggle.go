package tile

import (
	"log/slog"

	"quicktiles/internal/loop"
	"quicktiles/internal/settings"
)

// ToggleConfig configures a boolean tile.
type ToggleConfig struct {
	Spec  string
	Label string
	// OnLabel and OffLabel are the secondary labels for each state.
	OnLabel  string
	OffLabel string

	Store settings.Store
	Key   settings.Key

	// Available gates the tile on a capability. Nil means always available.
	Available func() bool
	// LongPressIntent is launched on long press. Empty ignores long press.
	LongPressIntent string

	Main       loop.Handler
	Background loop.Handler
	Host       Host
	Logger     *slog.Logger
}

type toggle struct {
	m      *Machine
	cfg    ToggleConfig
	mirror *settings.Mirror[bool]
}

// NewToggle returns a machine whose tap negates one mirrored boolean.
func NewToggle(cfg ToggleConfig) *Machine {
	m := newMachine(cfg.Spec, cfg.Label, cfg.Host, cfg.Logger)
	t := &toggle{m: m, cfg: cfg}
	t.mirror = settings.NewMirror(settings.MirrorConfig[bool]{
		Store:      cfg.Store,
		Key:        cfg.Key,
		Codec:      settings.BoolCodec,
		Main:       cfg.Main,
		Background: cfg.Background,
		OnChange:   func(v bool) { m.OnExternalChange(v) },
		Logger:     m.logger,
	})
	m.shape = t
	return m
}

func (t *toggle) start() { t.mirror.Start() }
func (t *toggle) stop()  { t.mirror.Stop() }

func (t *toggle) available() bool {
	return t.cfg.Available == nil || t.cfg.Available()
}

func (t *toggle) gesture(g Gesture) {
	if !t.available() {
		return
	}
	switch g {
	case Tap:
		t.mirror.Write(!t.mirror.Value())
	case LongPress:
		t.m.launch(t.cfg.LongPressIntent)
	}
}

// The mirror already holds the observed value.
func (t *toggle) observe(any) {}

func (t *toggle) view() View {
	on := t.mirror.Value()
	secondary := t.cfg.OffLabel
	if on {
		secondary = t.cfg.OnLabel
	}
	return View{
		Active:         on,
		SecondaryLabel: secondary,
		Available:      t.available(),
	}
}
