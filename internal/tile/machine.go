// Package tile implements the reactive control state machine shared by every quick
// settings tile: settings mirrors, gesture classification, countdown sessions and mode
// cycles composed behind one lifecycle.
package tile

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrAlreadyActive is returned by Activate on an active machine.
	ErrAlreadyActive = errors.New("tile already active")
	// ErrNotActive is returned by Deactivate and OnGesture on an inactive machine.
	ErrNotActive = errors.New("tile not active")
)

// Host receives the output of a machine. Both methods are called on the main context.
type Host interface {
	// Refresh repaints the tile identified by spec.
	Refresh(spec string, v View)
	// Launch opens the settings destination named by intent.
	Launch(spec string, intent string)
}

// Lifecycle is anything started and stopped with a machine, such as an auxiliary
// settings mirror.
type Lifecycle interface {
	Start()
	Stop()
}

// shape is the behavior that distinguishes toggle, cyclic and timed tiles.
type shape interface {
	start()
	stop()
	gesture(g Gesture)
	// observe is given the hint passed to OnExternalChange.
	observe(hint any)
	view() View
}

// Machine is one tile. All methods must be called on the main context.
type Machine struct {
	spec   string
	label  string
	host   Host
	logger *slog.Logger
	shape  shape

	active bool
}

func newMachine(spec, label string, host Host, logger *slog.Logger) *Machine {
	if host == nil {
		host = nopHost{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{spec: spec, label: label, host: host, logger: logger.With("tile", spec)}
}

// Spec returns the identifier the machine was created for.
func (m *Machine) Spec() string { return m.spec }

// Active reports whether the machine is between Activate and Deactivate.
func (m *Machine) Active() bool { return m.active }

// Activate registers observers, reconciles once and refreshes the host.
func (m *Machine) Activate() error {
	if m.active {
		return fmt.Errorf("activate %s: %w", m.spec, ErrAlreadyActive)
	}
	m.active = true
	m.shape.start()
	m.logger.Debug("tile activated")
	m.refresh()
	return nil
}

// Deactivate unregisters everything and ends any live session. Results that arrive
// afterwards are discarded.
func (m *Machine) Deactivate() error {
	if !m.active {
		return fmt.Errorf("deactivate %s: %w", m.spec, ErrNotActive)
	}
	m.active = false
	m.shape.stop()
	m.logger.Debug("tile deactivated")
	return nil
}

// OnGesture applies a user gesture and refreshes the host.
func (m *Machine) OnGesture(g Gesture) error {
	if !m.active {
		return fmt.Errorf("%s %s: %w", g, m.spec, ErrNotActive)
	}
	switch g {
	case Tap, LongPress:
	default:
		return fmt.Errorf("%s: unknown gesture %d", m.spec, int(g))
	}
	m.logger.Debug("tile gesture", "gesture", g.String())
	m.shape.gesture(g)
	m.refresh()
	return nil
}

// OnExternalChange recomputes the view and refreshes the host. The hint, when not nil,
// is the freshly observed value. It is ignored while the machine is inactive.
func (m *Machine) OnExternalChange(hint any) {
	if !m.active {
		return
	}
	m.shape.observe(hint)
	m.refresh()
}

// View returns the current view without side effects.
func (m *Machine) View() View {
	v := m.shape.view()
	v.Spec = m.spec
	if v.Label == "" {
		v.Label = m.label
	}
	v.State = stateOf(v.Active, v.Available)
	return v
}

func (m *Machine) refresh() {
	m.host.Refresh(m.spec, m.View())
}

func (m *Machine) launch(intent string) {
	if intent == "" {
		return
	}
	m.logger.Debug("tile launching intent", "intent", intent)
	m.host.Launch(m.spec, intent)
}

type nopHost struct{}

func (nopHost) Refresh(string, View)  {}
func (nopHost) Launch(string, string) {}
