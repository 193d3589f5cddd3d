package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"quicktiles/internal/loop"
)

const defaultReloadDebounce = 100 * time.Millisecond

// fileDoc is the on-disk layout:
//
//	current_user = 0
//	[device.global]
//	sync_automatically = "1"
//	[users.0.secure]
//	doze_enabled = "1"
type fileDoc struct {
	CurrentUser int                                     `toml:"current_user"`
	Device      map[string]map[string]string            `toml:"device,omitempty"`
	Users       map[string]map[string]map[string]string `toml:"users,omitempty"`
}

// FileStore is a MemoryStore persisted to a TOML file. Edits made to the file by other
// processes are picked up by Watch and fire the affected observers.
type FileStore struct {
	mem    *MemoryStore
	path   string
	logger *slog.Logger

	// Serializes file writes and reloads.
	fileMu sync.Mutex

	debounce time.Duration
}

// OpenFileStore loads path (a missing file is an empty store) and returns the store.
func OpenFileStore(path string, notify loop.Handler, logger *slog.Logger) (*FileStore, error) {
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	fs := &FileStore{
		mem:      NewMemoryStore(notify),
		path:     resolved,
		logger:   logger,
		debounce: defaultReloadDebounce,
	}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Path returns the resolved file path.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(key Key, scope Scope) (string, error) {
	return f.mem.Get(key, scope)
}

// Put stores the value and persists the whole store. A persistence failure is
// returned after the in-memory value has already changed. The write and the save
// are one step with respect to Reload, so a reload never reverts a value Put returned.
func (f *FileStore) Put(key Key, value string, scope Scope) error {
	f.fileMu.Lock()
	fire := f.mem.put(key, value, scope)
	err := f.saveLocked()
	f.fileMu.Unlock()

	f.mem.dispatch(fire)
	return err
}

func (f *FileStore) RegisterObserver(key Key, scope Scope, fn func()) Observer {
	return f.mem.RegisterObserver(key, scope, fn)
}

func (f *FileStore) UnregisterObserver(o Observer) {
	f.mem.UnregisterObserver(o)
}

func (f *FileStore) CurrentUser() int { return f.mem.CurrentUser() }

// SwitchUser changes the active user and persists it.
func (f *FileStore) SwitchUser(user int) error {
	f.fileMu.Lock()
	fire := f.mem.switchUser(user)
	err := f.saveLocked()
	f.fileMu.Unlock()

	f.mem.dispatch(fire)
	return err
}

// Reload re-reads the file and fires observers for every value that changed.
func (f *FileStore) Reload() error {
	fire, err := f.reload()
	if err != nil {
		return err
	}
	if len(fire) > 0 {
		f.logger.Debug("settings reloaded", "path", f.path, "observers_fired", len(fire))
	}
	f.mem.dispatch(fire)
	return nil
}

func (f *FileStore) reload() ([]func(), error) {
	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f.mem.replace(snapshot{}), nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var doc fileDoc
	if err := toml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode store file: %w", err)
	}
	snap, err := doc.toSnapshot()
	if err != nil {
		return nil, err
	}
	return f.mem.replace(snap), nil
}

// Watch reloads the store whenever the file changes on disk. It blocks until ctx is
// canceled. The parent directory is watched so editors that replace the file are seen.
func (f *FileStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}
	f.logger.Debug("watching settings file", "path", f.path)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Trailing debounce: bursts of writes collapse into one reload.
			if timer == nil {
				timer = time.NewTimer(f.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(f.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			if err := f.Reload(); err != nil {
				f.logger.Warn("settings reload failed", "path", f.path, "error", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("settings watcher error", "error", err)
		}
	}
}

// saveLocked writes the store to disk. The caller holds fileMu.
func (f *FileStore) saveLocked() error {
	doc := docFromSnapshot(f.mem.snapshot())
	b, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}

	if cur, err := os.ReadFile(f.path); err == nil && bytes.Equal(cur, b) {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

func (d fileDoc) toSnapshot() (snapshot, error) {
	snap := snapshot{
		current: d.CurrentUser,
		device:  make(map[string]string),
		users:   make(map[int]map[string]string),
	}
	for ns, names := range d.Device {
		for name, v := range names {
			snap.device[ns+"/"+name] = v
		}
	}
	for userStr, nss := range d.Users {
		user, err := strconv.Atoi(userStr)
		if err != nil {
			return snapshot{}, fmt.Errorf("decode store file: invalid user id %q", userStr)
		}
		vals := make(map[string]string)
		for ns, names := range nss {
			for name, v := range names {
				vals[ns+"/"+name] = v
			}
		}
		snap.users[user] = vals
	}
	return snap, nil
}

func docFromSnapshot(snap snapshot) fileDoc {
	doc := fileDoc{CurrentUser: snap.current}
	if len(snap.device) > 0 {
		doc.Device = nest(snap.device)
	}
	if len(snap.users) > 0 {
		doc.Users = make(map[string]map[string]map[string]string, len(snap.users))
		users := make([]int, 0, len(snap.users))
		for u := range snap.users {
			users = append(users, u)
		}
		sort.Ints(users)
		for _, u := range users {
			if len(snap.users[u]) == 0 {
				continue
			}
			doc.Users[strconv.Itoa(u)] = nest(snap.users[u])
		}
	}
	return doc
}

func nest(flat map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for id, v := range flat {
		ns, name, _ := strings.Cut(id, "/")
		if out[ns] == nil {
			out[ns] = make(map[string]string)
		}
		out[ns][name] = v
	}
	return out
}

// ExpandPath resolves a leading "~" to the home directory and makes path absolute.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
