// Package panel hosts tiles: it owns one machine per spec, keeps the tile list in the
// settings store, and forwards refreshes and launched intents to a sink.
package panel

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quicktiles/internal/loop"
	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
)

// ErrUnknownTile is returned for specs that are not on the panel or cannot be built.
var ErrUnknownTile = errors.New("unknown tile")

var (
	// TilesKey holds the comma separated tile list of each user.
	TilesKey = settings.Key{Namespace: settings.Secure, Name: "sysui_qs_tiles", Scope: settings.AllUsers}
	// AutoAddedKey records tiles added automatically, so a removed tile stays removed.
	AutoAddedKey = settings.Key{Namespace: settings.Secure, Name: "qs_auto_tiles", Scope: settings.CurrentUser}
)

// Specs refreshed once the display subsystem reports it is initialized.
var displayTiles = []string{"livedisplay", "anti_flicker"}

// Factory builds machines by spec.
type Factory interface {
	Create(spec string) (*tile.Machine, error)
}

// Sink receives panel output on the main context.
type Sink interface {
	TileChanged(v tile.View)
	TileRemoved(spec string)
	IntentLaunched(spec, intent string)
}

// Config configures a Panel.
type Config struct {
	Store settings.Store
	// DefaultTiles is the tile list for users that have none stored.
	DefaultTiles []string
	// AutoAdd lists the tiles added the first time the display subsystem initializes.
	AutoAdd []string

	Wakefulness *tile.Wakefulness

	Main       loop.Handler
	Background loop.Handler
	Sink       Sink
	Logger     *slog.Logger
}

type entry struct {
	machine *tile.Machine
	view    tile.View
}

// Panel is the tile host. It implements tile.Host. All methods must be called on the
// main context.
type Panel struct {
	cfg     Config
	factory Factory
	logger  *slog.Logger

	order   []string
	entries map[string]*entry

	tileList  *settings.Mirror[string]
	autoAdded *settings.Mirror[string]

	displayRefreshed bool
	autoAddPending   bool
	started          bool
}

// New returns a panel with no factory. Call UseFactory before Start; the factory is
// normally built with the panel as its host.
func New(cfg Config) *Panel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}
	if cfg.Wakefulness == nil {
		cfg.Wakefulness = tile.NewWakefulness()
	}
	p := &Panel{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "panel"),
		entries: make(map[string]*entry),
	}
	p.tileList = settings.NewMirror(settings.MirrorConfig[string]{
		Store:      cfg.Store,
		Key:        TilesKey,
		Codec:      settings.StringCodec,
		Default:    joinSpecs(cfg.DefaultTiles),
		Main:       cfg.Main,
		Background: cfg.Background,
		OnChange:   p.reconcile,
		Logger:     cfg.Logger,
	})
	p.autoAdded = settings.NewMirror(settings.MirrorConfig[string]{
		Store:      cfg.Store,
		Key:        AutoAddedKey,
		Codec:      settings.StringCodec,
		Main:       cfg.Main,
		Background: cfg.Background,
		OnChange:   func(string) { p.resumeAutoAdd() },
		Logger:     cfg.Logger,
	})
	return p
}

// UseFactory sets the factory tiles are built with.
func (p *Panel) UseFactory(f Factory) { p.factory = f }

// Start begins mirroring the stored tile list; tiles are built as it is read.
func (p *Panel) Start() error {
	if p.factory == nil {
		return errors.New("panel has no tile factory")
	}
	if p.started {
		return nil
	}
	p.started = true
	p.autoAdded.Start()
	p.tileList.Start()
	return nil
}

// Stop deactivates every tile and stops mirroring.
func (p *Panel) Stop() {
	if !p.started {
		return
	}
	p.started = false
	p.tileList.Stop()
	p.autoAdded.Stop()
	for _, spec := range p.order {
		if m := p.entries[spec].machine; m.Active() {
			_ = m.Deactivate()
		}
	}
}

// Specs returns the tiles on the panel, in order.
func (p *Panel) Specs() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Snapshot returns the last refreshed view of every tile, in panel order.
func (p *Panel) Snapshot() []tile.View {
	out := make([]tile.View, 0, len(p.order))
	for _, spec := range p.order {
		out = append(out, p.entries[spec].view)
	}
	return out
}

// View returns the last refreshed view of one tile.
func (p *Panel) View(spec string) (tile.View, error) {
	e, ok := p.entries[spec]
	if !ok {
		return tile.View{}, fmt.Errorf("%w: %q", ErrUnknownTile, spec)
	}
	return e.view, nil
}

// AddTile builds, activates and appends a tile. Adding a tile that is already on the
// panel does nothing.
func (p *Panel) AddTile(spec string) error {
	if _, ok := p.entries[spec]; ok {
		return nil
	}
	if err := p.add(spec); err != nil {
		return err
	}
	p.persist()
	return nil
}

// RemoveTile deactivates and removes a tile.
func (p *Panel) RemoveTile(spec string) error {
	if _, ok := p.entries[spec]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTile, spec)
	}
	p.remove(spec)
	p.persist()
	return nil
}

// SetListening activates a tile when it becomes visible and deactivates it when hidden.
func (p *Panel) SetListening(spec string, listening bool) error {
	e, ok := p.entries[spec]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTile, spec)
	}
	if e.machine.Active() == listening {
		return nil
	}
	if listening {
		return e.machine.Activate()
	}
	return e.machine.Deactivate()
}

// Gesture routes a gesture to a tile.
func (p *Panel) Gesture(spec string, g tile.Gesture) error {
	e, ok := p.entries[spec]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTile, spec)
	}
	return e.machine.OnGesture(g)
}

// GoingToSleep tells tiles the device started going to sleep.
func (p *Panel) GoingToSleep() {
	p.logger.Debug("device going to sleep")
	p.cfg.Wakefulness.StartedGoingToSleep()
}

// DisplayInitialized refreshes the display tiles the first time it is called, and adds
// each AutoAdd tile that has never been added automatically before. Until both the
// tile list and the auto-added list have been read, the auto add waits for them.
func (p *Panel) DisplayInitialized() {
	if !p.displayRefreshed {
		p.displayRefreshed = true
		for _, spec := range displayTiles {
			if e, ok := p.entries[spec]; ok {
				e.machine.OnExternalChange(nil)
			}
		}
	}

	p.autoAddPending = true
	if !p.tileList.Synced() || !p.autoAdded.Synced() {
		p.logger.Debug("auto add waits for settings")
		return
	}
	p.resumeAutoAdd()
}

// resumeAutoAdd runs a pending auto add once both mirrors hold stored values.
func (p *Panel) resumeAutoAdd() {
	if !p.autoAddPending || !p.started || !p.tileList.Synced() || !p.autoAdded.Synced() {
		return
	}
	p.autoAddPending = false

	tracked := splitSpecs(p.autoAdded.Value())
	changed := false
	for _, spec := range p.cfg.AutoAdd {
		if contains(tracked, spec) {
			continue
		}
		if err := p.AddTile(spec); err != nil {
			p.logger.Warn("auto add failed", "tile", spec, "error", err)
			continue
		}
		p.logger.Info("tile auto added", "tile", spec)
		tracked = append(tracked, spec)
		changed = true
	}
	if changed {
		p.autoAdded.Write(joinSpecs(tracked))
	}
}

// Refresh implements tile.Host.
func (p *Panel) Refresh(spec string, v tile.View) {
	e, ok := p.entries[spec]
	if !ok {
		return
	}
	e.view = v
	p.cfg.Sink.TileChanged(v)
}

// Launch implements tile.Host.
func (p *Panel) Launch(spec, intent string) {
	p.logger.Info("launching tile intent", "tile", spec, "intent", intent)
	p.cfg.Sink.IntentLaunched(spec, intent)
}

func (p *Panel) add(spec string) error {
	m, err := p.factory.Create(spec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownTile, err)
	}
	p.entries[spec] = &entry{machine: m}
	p.order = append(p.order, spec)
	if err := m.Activate(); err != nil {
		return err
	}
	p.logger.Debug("tile added", "tile", spec)
	return nil
}

func (p *Panel) remove(spec string) {
	e := p.entries[spec]
	if e.machine.Active() {
		_ = e.machine.Deactivate()
	}
	delete(p.entries, spec)
	for i, s := range p.order {
		if s == spec {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.logger.Debug("tile removed", "tile", spec)
	p.cfg.Sink.TileRemoved(spec)
}

func (p *Panel) persist() {
	p.tileList.Write(joinSpecs(p.order))
}

// reconcile makes the panel match a tile list read from the store. Tiles present in
// both keep their machine, and with it any live session.
func (p *Panel) reconcile(raw string) {
	if !p.started {
		return
	}
	want := splitSpecs(raw)
	keep := make(map[string]bool, len(want))
	for _, spec := range want {
		keep[spec] = true
	}
	for _, spec := range p.Specs() {
		if !keep[spec] {
			p.remove(spec)
		}
	}

	order := make([]string, 0, len(want))
	for _, spec := range want {
		if _, ok := p.entries[spec]; ok && contains(p.order, spec) {
			order = append(order, spec)
			continue
		}
		if err := p.add(spec); err != nil {
			p.logger.Warn("skipping stored tile", "tile", spec, "error", err)
			p.drop(spec)
			continue
		}
		order = append(order, spec)
	}
	p.order = order
	p.resumeAutoAdd()
}

// drop forgets a tile that failed to build or activate.
func (p *Panel) drop(spec string) {
	delete(p.entries, spec)
	for i, s := range p.order {
		if s == spec {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func splitSpecs(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" && !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func joinSpecs(specs []string) string {
	return strings.Join(specs, ",")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type nopSink struct{}

func (nopSink) TileChanged(tile.View)         {}
func (nopSink) TileRemoved(string)            {}
func (nopSink) IntentLaunched(string, string) {}
