package tiles

import (
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicktiles/internal/clock"
	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store   *settings.MemoryStore
	clk     *clock.Fake
	factory *Factory
}

func newFixture(t *testing.T, caps Capabilities) *fixture {
	t.Helper()
	f := &fixture{
		store: settings.NewMemoryStore(nil),
		clk:   clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.factory = NewFactory(Deps{
		Store:        f.store,
		Clock:        f.clk,
		Capabilities: caps,
		Logger:       discard,
	})
	return f
}

func (f *fixture) active(t *testing.T, spec string) *tile.Machine {
	t.Helper()
	m, err := f.factory.Create(spec)
	require.NoError(t, err)
	require.NoError(t, m.Activate())
	return m
}

func (f *fixture) getInt(t *testing.T, key settings.Key) int {
	t.Helper()
	raw, err := f.store.Get(key, settings.CurrentUser)
	require.NoError(t, err)
	n, err := strconv.Atoi(raw)
	require.NoError(t, err)
	return n
}

func (f *fixture) putInt(t *testing.T, key settings.Key, v int) {
	t.Helper()
	require.NoError(t, f.store.Put(key, strconv.Itoa(v), settings.CurrentUser))
}

func TestFactory_Specs(t *testing.T) {
	f := newFixture(t, Capabilities{})
	assert.Equal(t, []string{
		"ambient_display", "anti_flicker", "caffeine", "livedisplay",
		"reading_mode", "sound", "sync",
	}, f.factory.Specs())

	for _, spec := range f.factory.Specs() {
		m, err := f.factory.Create(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, spec, m.Spec())
		assert.False(t, m.Active())
	}
}

func TestFactory_UnknownSpec(t *testing.T) {
	f := newFixture(t, Capabilities{})
	for _, spec := range []string{"refresh_rate", "flamingo_nfc", ""} {
		_, err := f.factory.Create(spec)
		assert.ErrorIs(t, err, ErrUnknownSpec, spec)
	}
}

func TestFactory_CreatesIndependentInstances(t *testing.T) {
	f := newFixture(t, Capabilities{})
	a, err := f.factory.Create(SpecCaffeine)
	require.NoError(t, err)
	b, err := f.factory.Create(SpecCaffeine)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestLiveDisplay_SkipsOutdoorWhenUnsupported(t *testing.T) {
	f := newFixture(t, Capabilities{DayTemperature: 5500})
	f.putInt(t, liveDisplayModeKey, LiveDisplayNight)
	m := f.active(t, SpecLiveDisplay)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, LiveDisplayAuto, f.getInt(t, liveDisplayModeKey), "night wraps past outdoor to automatic")
}

func TestLiveDisplay_OutdoorWhenSupported(t *testing.T) {
	f := newFixture(t, Capabilities{OutdoorMode: true, DayTemperature: 5500})
	f.putInt(t, liveDisplayModeKey, LiveDisplayNight)
	m := f.active(t, SpecLiveDisplay)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, LiveDisplayOutdoor, f.getInt(t, liveDisplayModeKey))
	assert.Equal(t, "Outdoor", m.View().SecondaryLabel)
}

func TestLiveDisplay_ManagedOutdoorIsSkipped(t *testing.T) {
	f := newFixture(t, Capabilities{OutdoorMode: true, ManagedOutdoorMode: true})
	f.putInt(t, liveDisplayModeKey, LiveDisplayNight)
	m := f.active(t, SpecLiveDisplay)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, LiveDisplayAuto, f.getInt(t, liveDisplayModeKey))
}

func TestLiveDisplay_SkipsDayAtOffTemperature(t *testing.T) {
	f := newFixture(t, Capabilities{DayTemperature: 5500})
	f.putInt(t, dayTemperatureKey, offTemperature)
	f.putInt(t, liveDisplayModeKey, LiveDisplayOff)
	m := f.active(t, SpecLiveDisplay)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, LiveDisplayNight, f.getInt(t, liveDisplayModeKey))
}

func TestLiveDisplay_DayKeptBelowOffTemperature(t *testing.T) {
	f := newFixture(t, Capabilities{DayTemperature: 5500})
	f.putInt(t, liveDisplayModeKey, LiveDisplayOff)
	m := f.active(t, SpecLiveDisplay)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, LiveDisplayDay, f.getInt(t, liveDisplayModeKey))
}

func TestLiveDisplay_NightDisplaySupersedesDayAndNight(t *testing.T) {
	f := newFixture(t, Capabilities{NightDisplay: true, OutdoorMode: true})
	f.putInt(t, liveDisplayModeKey, LiveDisplayOff)
	m := f.active(t, SpecLiveDisplay)
	require.True(t, m.View().Available)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, LiveDisplayOutdoor, f.getInt(t, liveDisplayModeKey))
}

func TestLiveDisplay_UnavailableUnderNightDisplayWithoutOutdoor(t *testing.T) {
	f := newFixture(t, Capabilities{NightDisplay: true})
	m := f.active(t, SpecLiveDisplay)
	assert.Equal(t, tile.StateUnavailable, m.View().State)
}

func TestLiveDisplay_UndecodableModeIsAutomatic(t *testing.T) {
	f := newFixture(t, Capabilities{})
	require.NoError(t, f.store.Put(liveDisplayModeKey, "broken", settings.CurrentUser))
	m := f.active(t, SpecLiveDisplay)

	v := m.View()
	assert.Equal(t, "Automatic", v.SecondaryLabel)
	assert.True(t, v.Active)
}

func TestLiveDisplay_OffIsInactive(t *testing.T) {
	f := newFixture(t, Capabilities{})
	f.putInt(t, liveDisplayModeKey, LiveDisplayOff)
	m := f.active(t, SpecLiveDisplay)
	assert.Equal(t, tile.StateInactive, m.View().State)
}

func TestSound_CyclesWithZenSideEffects(t *testing.T) {
	f := newFixture(t, Capabilities{})
	m := f.active(t, SpecSound)
	assert.Equal(t, "Ring", m.View().SecondaryLabel)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, RingerVibrate, f.getInt(t, ringerKey))
	_, err := f.store.Get(zenKey, settings.CurrentUser)
	assert.ErrorIs(t, err, settings.ErrNotFound, "normal to vibrate leaves zen alone")

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, RingerSilent, f.getInt(t, ringerKey))
	assert.Equal(t, ZenAlarms, f.getInt(t, zenKey))
	assert.Equal(t, "Do not disturb", m.View().SecondaryLabel)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, RingerNormal, f.getInt(t, ringerKey))
	assert.Equal(t, ZenOff, f.getInt(t, zenKey))
}

type launchRecorder struct {
	intents []string
}

func (l *launchRecorder) Refresh(string, tile.View) {}
func (l *launchRecorder) Launch(_ string, intent string) {
	l.intents = append(l.intents, intent)
}

func TestLongPressIntents(t *testing.T) {
	host := &launchRecorder{}
	f := &fixture{store: settings.NewMemoryStore(nil), clk: clock.NewFake(time.Unix(0, 0))}
	f.factory = NewFactory(Deps{
		Store: f.store, Clock: f.clk, Host: host, Logger: discard,
		Capabilities: Capabilities{PulseOnNotification: true, AntiFlicker: true, ReadingEnhancement: true},
	})

	for _, spec := range []string{SpecSound, SpecSync, SpecAmbientDisplay, SpecLiveDisplay} {
		m := f.active(t, spec)
		require.NoError(t, m.OnGesture(tile.LongPress))
	}
	assert.Equal(t, []string{
		intentVolumePanel,
		intentSyncSettings,
		intentLockScreenSettings,
		intentLiveDisplaySettings,
	}, host.intents)
}

func TestToggleAvailability(t *testing.T) {
	f := newFixture(t, Capabilities{AntiFlicker: true})
	assert.True(t, f.active(t, SpecAntiFlicker).View().Available)
	assert.False(t, f.active(t, SpecAmbientDisplay).View().Available)
	assert.False(t, f.active(t, SpecReadingMode).View().Available)
	assert.True(t, f.active(t, SpecSync).View().Available)
}

func TestSync_TapWritesCurrentUser(t *testing.T) {
	f := newFixture(t, Capabilities{})
	m := f.active(t, SpecSync)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.True(t, m.View().Active)
	assert.Equal(t, 1, f.getInt(t, syncKey))
}

func TestSync_FollowsUserSwitch(t *testing.T) {
	f := newFixture(t, Capabilities{})
	f.store.SwitchUser(10)
	f.putInt(t, syncKey, 0)
	f.store.SwitchUser(0)

	m := f.active(t, SpecSync)
	require.NoError(t, m.OnGesture(tile.Tap))
	require.True(t, m.View().Active)

	f.store.SwitchUser(10)
	assert.False(t, m.View().Active, "view shows user 10's value")

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.True(t, m.View().Active)
	assert.Equal(t, 1, f.getInt(t, syncKey))

	f.store.SwitchUser(0)
	assert.True(t, m.View().Active)
	assert.Equal(t, 1, f.getInt(t, syncKey))
}

func TestCaffeine_DefaultDurations(t *testing.T) {
	f := newFixture(t, Capabilities{})
	m := f.active(t, SpecCaffeine)

	require.NoError(t, m.OnGesture(tile.Tap))
	assert.Equal(t, "05:00", m.View().SecondaryLabel)

	require.NoError(t, m.OnGesture(tile.LongPress))
	require.NoError(t, m.OnGesture(tile.LongPress))
	assert.Equal(t, "05:45", m.View().SecondaryLabel)

	f.factory.Wakefulness().StartedGoingToSleep()
	assert.False(t, m.View().Active)
	assert.Equal(t, "Off", m.View().SecondaryLabel)
}
