// Package settings models the persistent key-value settings store tiles mirror, and
// the Mirror type that keeps one typed value in sync with it.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Namespace partitions the store the way the platform does.
type Namespace string

const (
	System Namespace = "system"
	Secure Namespace = "secure"
	Global Namespace = "global"
)

// Scope selects which users an operation applies to.
type Scope int

const (
	// CurrentUser targets only the active user.
	CurrentUser Scope = iota
	// AllUsers targets every user. Observers registered with AllUsers fire on any
	// user's change and when the active user switches.
	AllUsers
)

func (s Scope) String() string {
	switch s {
	case CurrentUser:
		return "current_user"
	case AllUsers:
		return "all_users"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Key identifies one setting. Scope is the scope observers for this key register
// with; reads and writes through a Mirror always target the current user.
type Key struct {
	Namespace Namespace
	Name      string
	Scope     Scope
}

func (k Key) String() string {
	return string(k.Namespace) + "/" + k.Name
}

// id is the storage identity of a key. Scope does not participate.
func (k Key) id() string {
	return k.String()
}

// ParseKey parses "namespace/name" into a Key with CurrentUser scope.
func ParseKey(s string) (Key, error) {
	ns, name, ok := strings.Cut(s, "/")
	if !ok || name == "" {
		return Key{}, fmt.Errorf("invalid settings key %q (want namespace/name)", s)
	}
	switch Namespace(ns) {
	case System, Secure, Global:
	default:
		return Key{}, fmt.Errorf("invalid settings namespace %q", ns)
	}
	return Key{Namespace: Namespace(ns), Name: name}, nil
}

var (
	// ErrNotFound is returned by Get when the key has no value for the requested scope.
	ErrNotFound = errors.New("setting not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("settings store unavailable")
)

// Observer identifies a registered change observer.
type Observer uint64

// Store is the external settings collaborator.
//
// Observer callbacks may run on any goroutine; Mirror hops to its background handler
// before reading and to its main handler before mutating state.
type Store interface {
	Get(key Key, scope Scope) (string, error)
	Put(key Key, value string, scope Scope) error
	RegisterObserver(key Key, scope Scope, fn func()) Observer
	UnregisterObserver(o Observer)
}

// Codec converts between raw store values and typed values.
type Codec[T any] struct {
	Decode func(raw string) (T, error)
	Encode func(v T) string
}

// BoolCodec stores booleans as integers, the platform convention: "1" for true and
// "0" for false. Any non-zero integer reads as true.
var BoolCodec = Codec[bool]{
	Decode: func(raw string) (bool, error) {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return false, fmt.Errorf("decode bool %q: %w", raw, err)
		}
		return n != 0, nil
	},
	Encode: func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	},
}

// IntCodec stores integers in decimal.
var IntCodec = Codec[int]{
	Decode: func(raw string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("decode int %q: %w", raw, err)
		}
		return n, nil
	},
	Encode: strconv.Itoa,
}

// StringCodec stores strings verbatim.
var StringCodec = Codec[string]{
	Decode: func(raw string) (string, error) { return raw, nil },
	Encode: func(v string) string { return v },
}
