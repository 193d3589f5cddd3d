package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSysfsWakeLock_WritesName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"wake_lock", "wake_unlock"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	lock := newSysfsWakeLock(dir, "quicktiles", discardLogger)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	for _, name := range []string{"wake_lock", "wake_unlock"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(b) != "quicktiles" {
			t.Errorf("expected %s to hold the lock name, got %q", name, b)
		}
	}
}

func TestSysfsWakeLock_MissingInterface(t *testing.T) {
	lock := newSysfsWakeLock(t.TempDir(), "quicktiles", discardLogger)
	if err := lock.Acquire(); err == nil {
		t.Fatalf("expected error when wake_lock does not exist")
	}
}
