package settings

import (
	"errors"
	"log/slog"

	"quicktiles/internal/loop"
)

// MirrorConfig configures a Mirror.
type MirrorConfig[T any] struct {
	Store Store
	Key   Key
	Codec Codec[T]
	// Default is the value until the first successful read, and the value used when
	// the stored value cannot be decoded.
	Default T

	// Main is the context that owns the mirrored value and receives OnChange.
	Main loop.Handler
	// Background is the context store reads and writes run on.
	Background loop.Handler

	// OnChange is called on Main after every read, with the new value.
	OnChange func(T)

	Logger *slog.Logger
}

// Mirror keeps one typed setting in sync with a Store.
//
// All methods must be called on the main context. Reads happen on the background
// context and results are marshalled back to main before they are applied; results
// belonging to an earlier Start (or arriving after Stop) are discarded.
type Mirror[T any] struct {
	cfg MirrorConfig[T]

	value   T
	synced  bool
	started bool
	epoch   uint64
	obs     Observer
}

// NewMirror creates a stopped mirror holding cfg.Default.
func NewMirror[T any](cfg MirrorConfig[T]) *Mirror[T] {
	if cfg.Main == nil {
		cfg.Main = loop.Inline{}
	}
	if cfg.Background == nil {
		cfg.Background = loop.Inline{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Mirror[T]{cfg: cfg, value: cfg.Default}
}

// Key returns the mirrored key.
func (m *Mirror[T]) Key() Key { return m.cfg.Key }

// Value returns the last observed value.
func (m *Mirror[T]) Value() T { return m.value }

// Synced reports whether at least one read has succeeded.
func (m *Mirror[T]) Synced() bool { return m.synced }

// Start registers the change observer and schedules the initial read.
// Calling Start on a started mirror does nothing.
func (m *Mirror[T]) Start() {
	if m.started {
		return
	}
	m.started = true
	m.epoch++
	epoch := m.epoch
	m.obs = m.cfg.Store.RegisterObserver(m.cfg.Key, m.cfg.Key.Scope, func() {
		m.cfg.Background.Post(func() { m.read(epoch) })
	})
	m.cfg.Background.Post(func() { m.read(epoch) })
}

// Stop unregisters the observer. It is a no-op when the mirror is not started.
func (m *Mirror[T]) Stop() {
	if !m.started {
		return
	}
	m.started = false
	m.epoch++
	m.cfg.Store.UnregisterObserver(m.obs)
	m.obs = 0
}

// Write stores v for the current user, whatever scope the mirror observes. The
// mirrored value only changes once the store reports the change back; a failed write
// is logged and otherwise invisible.
func (m *Mirror[T]) Write(v T) {
	raw := m.cfg.Codec.Encode(v)
	key := m.cfg.Key
	store := m.cfg.Store
	logger := m.cfg.Logger
	m.cfg.Background.Post(func() {
		if err := store.Put(key, raw, CurrentUser); err != nil {
			logger.Debug("settings write failed", "key", key.String(), "error", err)
		}
	})
}

// read runs on the background context.
func (m *Mirror[T]) read(epoch uint64) {
	raw, readErr := m.cfg.Store.Get(m.cfg.Key, CurrentUser)
	var (
		v         T
		decodeErr error
	)
	if readErr == nil {
		v, decodeErr = m.cfg.Codec.Decode(raw)
	}
	m.cfg.Main.Post(func() { m.apply(epoch, v, readErr, decodeErr) })
}

// apply runs on the main context.
func (m *Mirror[T]) apply(epoch uint64, v T, readErr, decodeErr error) {
	if !m.started || epoch != m.epoch {
		return
	}
	switch {
	case errors.Is(readErr, ErrNotFound):
		m.value = m.cfg.Default
		m.synced = true
	case readErr != nil:
		// Transient: keep the last known value.
		if !m.synced {
			m.value = m.cfg.Default
		}
		m.cfg.Logger.Debug("settings read failed", "key", m.cfg.Key.String(), "error", readErr)
	case decodeErr != nil:
		m.value = m.cfg.Default
		m.synced = true
		m.cfg.Logger.Debug("settings value undecodable, using default", "key", m.cfg.Key.String(), "error", decodeErr)
	default:
		m.value = v
		m.synced = true
	}
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(m.value)
	}
}
