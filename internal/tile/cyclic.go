package tile

import (
	"log/slog"

	"quicktiles/internal/loop"
	"quicktiles/internal/settings"
)

// CyclicConfig configures a tile whose tap steps a mirrored value through a Cycle.
type CyclicConfig[V comparable] struct {
	Spec  string
	Label string

	Store   settings.Store
	Key     settings.Key
	Codec   settings.Codec[V]
	Default V

	Values []V
	// Skip removes values from rotation. It may read Aux mirrors.
	Skip func(V) bool
	// Aux are started and stopped with the tile. They feed Skip, not the view.
	Aux []Lifecycle

	// Available gates the tile independently of the mirrored value.
	Available func() bool
	// Active reports whether a value shows the tile as on. Nil treats every value as on.
	Active func(V) bool
	// Describe renders the secondary label for a value.
	Describe func(V) string
	// OnAdvance runs on the background context after the new value has been written.
	OnAdvance func(from, to V)

	LongPressIntent string

	Main       loop.Handler
	Background loop.Handler
	Host       Host
	Logger     *slog.Logger
}

type cyclic[V comparable] struct {
	m      *Machine
	cfg    CyclicConfig[V]
	cycle  *Cycle[V]
	mirror *settings.Mirror[V]

	// current is the last value handed over by the mirror.
	current V
}

// NewCyclic returns a machine that writes cycle.Next(current) on tap.
func NewCyclic[V comparable](cfg CyclicConfig[V]) *Machine {
	if cfg.Background == nil {
		cfg.Background = loop.Inline{}
	}
	m := newMachine(cfg.Spec, cfg.Label, cfg.Host, cfg.Logger)
	c := &cyclic[V]{
		m:       m,
		cfg:     cfg,
		cycle:   NewCycle(cfg.Values, cfg.Skip),
		current: cfg.Default,
	}
	c.mirror = settings.NewMirror(settings.MirrorConfig[V]{
		Store:      cfg.Store,
		Key:        cfg.Key,
		Codec:      cfg.Codec,
		Default:    cfg.Default,
		Main:       cfg.Main,
		Background: cfg.Background,
		OnChange:   func(v V) { m.OnExternalChange(v) },
		Logger:     m.logger,
	})
	m.shape = c
	return m
}

func (c *cyclic[V]) start() {
	for _, aux := range c.cfg.Aux {
		aux.Start()
	}
	c.mirror.Start()
	c.current = c.mirror.Value()
}

func (c *cyclic[V]) stop() {
	c.mirror.Stop()
	for _, aux := range c.cfg.Aux {
		aux.Stop()
	}
}

func (c *cyclic[V]) available() bool {
	return c.cfg.Available == nil || c.cfg.Available()
}

func (c *cyclic[V]) gesture(g Gesture) {
	if !c.available() {
		return
	}
	if g == LongPress {
		c.m.launch(c.cfg.LongPressIntent)
		return
	}
	from := c.current
	to := c.cycle.Next(from)
	if to == from {
		return
	}
	c.m.logger.Debug("tile cycling", "from", from, "to", to)
	c.mirror.Write(to)
	if hook := c.cfg.OnAdvance; hook != nil {
		c.cfg.Background.Post(func() { hook(from, to) })
	}
}

func (c *cyclic[V]) observe(hint any) {
	if v, ok := hint.(V); ok {
		c.current = v
		return
	}
	c.current = c.mirror.Value()
}

func (c *cyclic[V]) view() View {
	v, _ := c.cycle.Resolve(c.current)
	active := c.cfg.Active == nil || c.cfg.Active(v)
	var secondary string
	if c.cfg.Describe != nil {
		secondary = c.cfg.Describe(v)
	}
	return View{
		Active:         active,
		SecondaryLabel: secondary,
		Available:      c.available(),
	}
}
