package flags

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicktiles/internal/loop"
	"quicktiles/internal/settings"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFeatureFlags_MirrorsCombinedSignalIcons(t *testing.T) {
	store := settings.NewMemoryStore(nil)
	f := New(store, nil, nil, discard)
	f.Start()
	assert.False(t, f.IsEnabled(CombinedSignalIcons))

	require.NoError(t, store.Put(combinedSignalIconsKey, "1", settings.CurrentUser))
	assert.True(t, f.IsEnabled(CombinedSignalIcons))

	store.SwitchUser(10)
	assert.False(t, f.IsEnabled(CombinedSignalIcons), "user 10 has the flag off")
}

func TestFeatureFlags_ReleaseDefaults(t *testing.T) {
	f := New(settings.NewMemoryStore(nil), nil, map[string]bool{"new_footer": true}, discard)

	assert.True(t, f.IsEnabled(Flag{Name: "new_footer"}))
	assert.True(t, f.IsEnabled(Flag{Name: "unknown", Default: true}))
	assert.False(t, f.IsEnabled(Flag{Name: "unknown"}))
	assert.Equal(t, map[string]bool{"combined_status_bar_signal_icons": false, "new_footer": true}, f.Snapshot())
}

func TestFeatureFlags_ReadFromOtherGoroutines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bg := loop.NewLooper("background", 16, discard)
	go bg.Run(ctx)

	store := settings.NewMemoryStore(bg)
	f := New(store, bg, nil, discard)
	f.Start()

	require.NoError(t, store.Put(combinedSignalIconsKey, "1", settings.CurrentUser))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Eventually(t, func() bool { return f.IsEnabled(CombinedSignalIcons) },
				time.Second, 5*time.Millisecond)
		}()
	}
	wg.Wait()
	f.Stop()
}
