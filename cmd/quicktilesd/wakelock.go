package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// sysfsWakeLock holds a Linux kernel wake lock through /sys/power/wake_lock and
// /sys/power/wake_unlock. The kernel keeps the system awake while the named lock
// exists.
type sysfsWakeLock struct {
	dir    string
	name   string
	logger *slog.Logger
}

func newSysfsWakeLock(dir, name string, logger *slog.Logger) *sysfsWakeLock {
	return &sysfsWakeLock{dir: dir, name: name, logger: logger}
}

func (w *sysfsWakeLock) Acquire() error {
	if err := w.write("wake_lock"); err != nil {
		return err
	}
	w.logger.Debug("wake lock acquired", "name", w.name)
	return nil
}

func (w *sysfsWakeLock) Release() error {
	if err := w.write("wake_unlock"); err != nil {
		return err
	}
	w.logger.Debug("wake lock released", "name", w.name)
	return nil
}

func (w *sysfsWakeLock) write(file string) error {
	path := filepath.Join(w.dir, file)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(w.name); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
