package settings

import (
	"sort"
	"sync"

	"quicktiles/internal/loop"
)

// MemoryStore is an in-process multi-user settings store.
//
// Values written with AllUsers scope become the device-wide value, which is what a
// user without an explicit value of their own reads.
type MemoryStore struct {
	mu        sync.Mutex
	current   int
	device    map[string]string
	users     map[int]map[string]string
	observers map[Observer]*observer
	nextID    Observer

	// notify runs observer callbacks. Nil runs them on the mutating goroutine.
	notify loop.Handler
}

// observer scopes: AllUsers fires on a change for any user, CurrentUser only on a
// change visible to the active user. Both fire when the active user changes.
type observer struct {
	key   string
	scope Scope
	fn    func()
}

// NewMemoryStore creates an empty store with user 0 active. Observer callbacks are
// posted to notify; pass nil to run them synchronously after each mutation.
func NewMemoryStore(notify loop.Handler) *MemoryStore {
	return &MemoryStore{
		device:    make(map[string]string),
		users:     make(map[int]map[string]string),
		observers: make(map[Observer]*observer),
		notify:    notify,
	}
}

func (s *MemoryStore) Get(key Key, scope Scope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key.id(), scope)
}

func (s *MemoryStore) getLocked(id string, scope Scope) (string, error) {
	if scope == CurrentUser {
		if v, ok := s.users[s.current][id]; ok {
			return v, nil
		}
	}
	if v, ok := s.device[id]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (s *MemoryStore) Put(key Key, value string, scope Scope) error {
	s.dispatch(s.put(key, value, scope))
	return nil
}

// put applies a write and returns the observers to fire.
func (s *MemoryStore) put(key Key, value string, scope Scope) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := key.id()
	switch scope {
	case AllUsers:
		s.device[id] = value
		for _, vals := range s.users {
			delete(vals, id)
		}
	default:
		vals, ok := s.users[s.current]
		if !ok {
			vals = make(map[string]string)
			s.users[s.current] = vals
		}
		vals[id] = value
	}
	// Both scopes see a write made for the active user.
	return s.matchLocked(id, func(*observer) bool { return true })
}

func (s *MemoryStore) RegisterObserver(key Key, scope Scope, fn func()) Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.observers[s.nextID] = &observer{key: key.id(), scope: scope, fn: fn}
	return s.nextID
}

func (s *MemoryStore) UnregisterObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, o)
}

// CurrentUser returns the active user id.
func (s *MemoryStore) CurrentUser() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SwitchUser makes user the active user and fires every observer, so mirrors re-read
// the new user's values.
func (s *MemoryStore) SwitchUser(user int) {
	s.dispatch(s.switchUser(user))
}

func (s *MemoryStore) switchUser(user int) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == user {
		return nil
	}
	s.current = user
	var fire []func()
	for _, id := range s.sortedObserverIDsLocked() {
		fire = append(fire, s.observers[id].fn)
	}
	return fire
}

// ObserverCount reports how many observers are registered.
func (s *MemoryStore) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

func (s *MemoryStore) matchLocked(id string, pred func(*observer) bool) []func() {
	var fire []func()
	for _, oid := range s.sortedObserverIDsLocked() {
		o := s.observers[oid]
		if o.key == id && pred(o) {
			fire = append(fire, o.fn)
		}
	}
	return fire
}

func (s *MemoryStore) sortedObserverIDsLocked() []Observer {
	ids := make([]Observer, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStore) dispatch(fire []func()) {
	for _, fn := range fire {
		if s.notify == nil {
			fn()
			continue
		}
		s.notify.Post(fn)
	}
}

// snapshot is the full store contents, used by FileStore to persist and diff.
type snapshot struct {
	current int
	device  map[string]string
	users   map[int]map[string]string
}

func (s *MemoryStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		current: s.current,
		device:  make(map[string]string, len(s.device)),
		users:   make(map[int]map[string]string, len(s.users)),
	}
	for k, v := range s.device {
		snap.device[k] = v
	}
	for u, vals := range s.users {
		cp := make(map[string]string, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		snap.users[u] = cp
	}
	return snap
}

// replace swaps in new contents and returns the observers whose visible value changed.
// The caller dispatches them.
func (s *MemoryStore) replace(next snapshot) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := snapshot{current: s.current, device: s.device, users: s.users}
	s.current = next.current
	s.device = next.device
	s.users = next.users
	if s.device == nil {
		s.device = make(map[string]string)
	}
	if s.users == nil {
		s.users = make(map[int]map[string]string)
	}

	switched := prev.current != next.current
	var fire []func()
	for _, oid := range s.sortedObserverIDsLocked() {
		o := s.observers[oid]
		switch {
		case switched:
			fire = append(fire, o.fn)
		case o.scope == AllUsers && changedForAnyUser(prev, next, o.key):
			fire = append(fire, o.fn)
		case o.scope != AllUsers && changedFor(prev, next, o.key, next.current):
			fire = append(fire, o.fn)
		}
	}
	return fire
}

func (snap snapshot) value(id string, user int) (string, error) {
	if v, ok := snap.users[user][id]; ok {
		return v, nil
	}
	if v, ok := snap.device[id]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func changedFor(prev, next snapshot, id string, user int) bool {
	before, bErr := prev.value(id, user)
	after, aErr := next.value(id, user)
	return before != after || (bErr == nil) != (aErr == nil)
}

func changedForAnyUser(prev, next snapshot, id string) bool {
	if changedFor(prev, next, id, next.current) {
		return true
	}
	for u := range prev.users {
		if changedFor(prev, next, id, u) {
			return true
		}
	}
	for u := range next.users {
		if changedFor(prev, next, id, u) {
			return true
		}
	}
	return false
}
