package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queue is a handler that holds posted work until drained, standing in for a context
// that has not yet run the marshalled callback.
type queue struct {
	tasks []func()
}

func (q *queue) Post(fn func()) bool {
	q.tasks = append(q.tasks, fn)
	return true
}

func (q *queue) drain() {
	for len(q.tasks) > 0 {
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		fn()
	}
}

// flakyStore fails reads or writes on demand.
type flakyStore struct {
	*MemoryStore
	getErr error
	putErr error
}

func (f *flakyStore) Get(key Key, scope Scope) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.MemoryStore.Get(key, scope)
}

func (f *flakyStore) Put(key Key, value string, scope Scope) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryStore.Put(key, value, scope)
}

func newBoolMirror(store Store, onChange func(bool)) *Mirror[bool] {
	return NewMirror(MirrorConfig[bool]{
		Store:    store,
		Key:      dozeKey,
		Codec:    BoolCodec,
		OnChange: onChange,
	})
}

func TestMirror_InitialReadAndExternalChange(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Put(dozeKey, "0", CurrentUser))

	var seen []bool
	m := newBoolMirror(store, func(v bool) { seen = append(seen, v) })
	m.Start()
	require.True(t, m.Synced())
	assert.False(t, m.Value())

	// Out-of-band change.
	require.NoError(t, store.Put(dozeKey, "1", CurrentUser))
	assert.True(t, m.Value())
	assert.Equal(t, []bool{false, true}, seen)
}

func TestMirror_WriteRoundTripsThroughStore(t *testing.T) {
	store := NewMemoryStore(nil)
	m := newBoolMirror(store, nil)
	m.Start()
	assert.False(t, m.Value())

	m.Write(true)
	assert.True(t, m.Value())

	raw, err := store.Get(dozeKey, CurrentUser)
	require.NoError(t, err)
	assert.Equal(t, "1", raw)
}

func TestMirror_WriteTargetsCurrentUser(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Put(dozeKey, "0", AllUsers))

	m := newBoolMirror(store, nil)
	m.Start()
	store.SwitchUser(11)
	m.Write(true)

	dev, _ := store.Get(dozeKey, AllUsers)
	assert.Equal(t, "0", dev)
	mine, _ := store.Get(dozeKey, CurrentUser)
	assert.Equal(t, "1", mine)
}

func TestMirror_AllUsersObserverSeesUserSwitch(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Put(dozeKey, "1", CurrentUser))

	m := newBoolMirror(store, nil)
	m.Start()
	require.True(t, m.Value())

	store.SwitchUser(10)
	assert.False(t, m.Value(), "user 10 has no value, so the default applies")
}

func TestMirror_StopIsIdempotent(t *testing.T) {
	store := NewMemoryStore(nil)
	m := newBoolMirror(store, nil)

	m.Stop()
	m.Start()
	assert.Equal(t, 1, store.ObserverCount())
	m.Stop()
	m.Stop()
	assert.Zero(t, store.ObserverCount())
}

func TestMirror_LateResultAfterStopIsDiscarded(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Put(dozeKey, "1", CurrentUser))

	main := &queue{}
	calls := 0
	m := NewMirror(MirrorConfig[bool]{
		Store:    store,
		Key:      dozeKey,
		Codec:    BoolCodec,
		Main:     main,
		OnChange: func(bool) { calls++ },
	})
	m.Start()
	require.Len(t, main.tasks, 1, "read result is waiting to be marshalled")

	m.Stop()
	main.drain()

	assert.Zero(t, calls)
	assert.False(t, m.Value())
	assert.False(t, m.Synced())
}

func TestMirror_ResultFromPreviousStartIsDiscarded(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Put(dozeKey, "1", CurrentUser))

	main := &queue{}
	var seen []bool
	m := NewMirror(MirrorConfig[bool]{
		Store: store, Key: dozeKey, Codec: BoolCodec, Main: main,
		OnChange: func(v bool) { seen = append(seen, v) },
	})
	m.Start()
	m.Stop()
	require.NoError(t, store.Put(dozeKey, "0", CurrentUser))
	m.Start()
	main.drain()

	assert.Equal(t, []bool{false}, seen)
}

func TestMirror_ReadFailureKeepsLastKnownValue(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(nil)}
	require.NoError(t, store.MemoryStore.Put(dozeKey, "1", CurrentUser))

	m := newBoolMirror(store, nil)
	m.Start()
	require.True(t, m.Value())

	store.getErr = ErrUnavailable
	require.NoError(t, store.MemoryStore.Put(dozeKey, "0", CurrentUser))
	assert.True(t, m.Value(), "transient failure keeps the last known value")
}

func TestMirror_ReadFailureBeforeSyncUsesDefault(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(nil), getErr: ErrUnavailable}
	m := NewMirror(MirrorConfig[int]{Store: store, Key: dozeKey, Codec: IntCodec, Default: 4})
	m.Start()
	assert.Equal(t, 4, m.Value())
	assert.False(t, m.Synced())
}

func TestMirror_UndecodableValueUsesDefault(t *testing.T) {
	store := NewMemoryStore(nil)
	require.NoError(t, store.Put(dozeKey, "garbage", CurrentUser))

	m := NewMirror(MirrorConfig[int]{Store: store, Key: dozeKey, Codec: IntCodec, Default: 4})
	m.Start()
	assert.Equal(t, 4, m.Value())
}

func TestMirror_WriteFailureIsSwallowed(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(nil), putErr: errors.New("disk full")}
	m := newBoolMirror(store, nil)
	m.Start()

	m.Write(true)
	assert.False(t, m.Value())
}
