package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/nisfere/internal/config"
	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

type testPaths struct {
	cache string
	state string
}

func newTestPaths(t *testing.T) testPaths {
	t.Helper()
	dir := t.TempDir()
	return testPaths{
		cache: filepath.Join(dir, "data", "cache.json"),
		state: filepath.Join(dir, "state", "state.json"),
	}
}

func newTestDaemon(t *testing.T, paths testPaths, mutate func(*config.DaemonConfig)) *Daemon {
	t.Helper()
	cfg := config.DefaultDaemonConfig()
	cfg.Cache.Path = paths.cache
	cfg.Notify.Internal = false
	if mutate != nil {
		mutate(cfg)
	}

	d, err := New(Options{Config: cfg, StatePath: paths.state, Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func send(t *testing.T, d *Daemon, summary string, expire int32, actions ...string) uint32 {
	t.Helper()
	id, dbusErr := d.server.Notify("mail", 0, "mail-unread", summary, "body of "+summary, actions,
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))}, expire)
	require.Nil(t, dbusErr)
	return id
}

func TestDaemon_CapturesAndPersists(t *testing.T) {
	paths := newTestPaths(t)
	d := newTestDaemon(t, paths, nil)

	id := send(t, d, "hello", 0)

	records := d.Cache().Records()
	require.Len(t, records, 1)
	assert.Equal(t, uint32(1), records[0].CacheID)
	assert.Equal(t, id, records[0].SourceID)
	assert.Equal(t, "hello", records[0].Summary)

	persisted, err := store.NewJSONFilePersistence(paths.cache).Load()
	require.NoError(t, err)
	assert.Equal(t, records, persisted)

	state, ok := d.Popups().Get(id)
	require.True(t, ok)
	assert.Equal(t, uint32(1), state.CacheID)
	assert.NotZero(t, d.SharedState().LastNotificationAt)
}

func TestDaemon_ReloadsCacheAcrossRestart(t *testing.T) {
	paths := newTestPaths(t)

	d := newTestDaemon(t, paths, nil)
	send(t, d, "one", 0)
	send(t, d, "two", 0)
	require.NoError(t, d.Cache().Remove(1))
	require.NoError(t, d.Stop())

	d2 := newTestDaemon(t, paths, nil)
	assert.Equal(t, 1, d2.Cache().Count())
	assert.Equal(t, uint32(2), d2.Cache().LastCacheID())

	send(t, d2, "three", 0)
	_, ok := d2.Cache().Get(3)
	assert.True(t, ok)
}

func TestDaemon_RemoveDismissesLivePopup(t *testing.T) {
	d := newTestDaemon(t, newTestPaths(t), nil)

	id := send(t, d, "hello", 0)
	require.True(t, d.server.IsActive(id))

	require.NoError(t, d.Cache().Remove(1))
	assert.False(t, d.server.IsActive(id))
	assert.Equal(t, 0, d.Popups().ActiveCount())
}

func TestDaemon_ClearAllLeavesPopups(t *testing.T) {
	d := newTestDaemon(t, newTestPaths(t), nil)

	id := send(t, d, "hello", 0)
	require.NoError(t, d.Cache().ClearAll())

	assert.Equal(t, 0, d.Cache().Count())
	assert.True(t, d.server.IsActive(id))
}

func TestDaemon_ExpiryKeepsRecord(t *testing.T) {
	d := newTestDaemon(t, newTestPaths(t), nil)

	id := send(t, d, "short", 20)
	require.Eventually(t, func() bool { return !d.server.IsActive(id) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, d.Cache().Count())
	assert.Equal(t, 0, d.Popups().ActiveCount())
}

func TestDaemon_ClientCloseKeepsRecord(t *testing.T) {
	d := newTestDaemon(t, newTestPaths(t), nil)

	id := send(t, d, "hello", 0)
	require.Nil(t, d.server.CloseNotification(id))

	assert.False(t, d.server.IsActive(id))
	assert.Equal(t, 0, d.Popups().ActiveCount())
	assert.Equal(t, 1, d.Cache().Count())
}

func TestDaemon_DoNotDisturb(t *testing.T) {
	paths := newTestPaths(t)
	d := newTestDaemon(t, paths, nil)

	d.Cache().SetDoNotDisturb(true)
	id := send(t, d, "quiet", 0)

	assert.Equal(t, 0, d.Cache().Count())
	state, ok := d.Popups().Get(id)
	require.True(t, ok)
	assert.Zero(t, state.CacheID)

	shared := d.SharedState()
	assert.True(t, shared.DnDEnabled)
	require.NotNil(t, shared.DnDLastTransition)
	assert.Equal(t, store.DnDTriggerUser, shared.DnDLastTransition.Trigger)
	require.NoError(t, d.Stop())

	d2 := newTestDaemon(t, paths, nil)
	assert.True(t, d2.Cache().DoNotDisturb())
}

func TestDaemon_InitialDoNotDisturbFromConfig(t *testing.T) {
	paths := newTestPaths(t)
	d := newTestDaemon(t, paths, func(c *config.DaemonConfig) { c.DnD.Enabled = true })

	assert.True(t, d.Cache().DoNotDisturb())

	saved, ok, err := store.NewStateFile(paths.state).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, saved.DnDEnabled)
	require.NotNil(t, saved.DnDLastTransition)
	assert.Equal(t, store.DnDTriggerConfig, saved.DnDLastTransition.Trigger)
	require.NoError(t, d.Stop())

	// The state file wins over the config once it exists.
	d2 := newTestDaemon(t, paths, func(c *config.DaemonConfig) { c.DnD.Enabled = false })
	assert.True(t, d2.Cache().DoNotDisturb())
}

func TestDaemon_InvokeAction(t *testing.T) {
	d := newTestDaemon(t, newTestPaths(t), nil)

	send(t, d, "with actions", 0, "default", "Open", "reply", "Reply")
	send(t, d, "expires", 20, "default", "Open")

	t.Run("unknown record", func(t *testing.T) {
		assert.ErrorIs(t, d.invokeAction(99, "default"), store.ErrNotFound)
	})

	t.Run("unknown action", func(t *testing.T) {
		err := d.invokeAction(1, "archive")
		require.Error(t, err)
		assert.NotErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("record no longer live", func(t *testing.T) {
		require.Eventually(t, func() bool { return d.Popups().ActiveCount() == 1 }, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, d.invokeAction(2, "default"), store.ErrNotFound)
	})

	t.Run("live record reaches the server", func(t *testing.T) {
		// No bus in tests, so emitting the signal fails after the lookup succeeds.
		err := d.invokeAction(1, "reply")
		require.Error(t, err)
		assert.NotErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDaemon_PersistenceFailureRaisesNotification(t *testing.T) {
	paths := newTestPaths(t)
	d := newTestDaemon(t, paths, func(c *config.DaemonConfig) { c.Notify.Internal = true })

	// A non-empty directory in place of the file makes every write fail.
	require.NoError(t, os.Remove(paths.cache))
	require.NoError(t, os.MkdirAll(filepath.Join(paths.cache, "blocker"), 0700))

	send(t, d, "unsaved", 0)

	records := d.Cache().Records()
	require.Len(t, records, 2)
	assert.Equal(t, "unsaved", records[0].Summary)
	assert.Equal(t, "nisfered", records[1].AppName)
	assert.Equal(t, model.UrgencyCritical, records[1].Urgency)
}

func TestDaemon_LoadFailureIsFatal(t *testing.T) {
	paths := newTestPaths(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.cache), 0700))
	require.NoError(t, os.WriteFile(paths.cache, []byte("{not json"), 0600))

	cfg := config.DefaultDaemonConfig()
	cfg.Cache.Path = paths.cache
	_, err := New(Options{Config: cfg, StatePath: paths.state})
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)
}

func TestDaemon_MissingCacheWithoutCreate(t *testing.T) {
	paths := newTestPaths(t)
	cfg := config.DefaultDaemonConfig()
	cfg.Cache.Path = paths.cache
	cfg.Cache.CreateIfMissing = false

	_, err := New(Options{Config: cfg, StatePath: paths.state})
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)
}

func TestDaemon_ApplyConfig(t *testing.T) {
	levelVar := new(slog.LevelVar)
	paths := newTestPaths(t)

	cfg := config.DefaultDaemonConfig()
	cfg.Cache.Path = paths.cache
	d, err := New(Options{Config: cfg, StatePath: paths.state, LevelVar: levelVar})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	assert.Equal(t, slog.LevelInfo, levelVar.Level())

	next := config.DefaultDaemonConfig()
	next.Cache.Path = paths.cache
	next.Timeouts.Normal = config.Duration(20 * time.Millisecond)
	next.Log.Level = "debug"
	d.applyConfig(next)

	assert.Equal(t, slog.LevelDebug, levelVar.Level())
	assert.Same(t, next, d.Config())

	// The reload notification itself is captured.
	records := d.Cache().Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Configuration Reloaded", records[0].Summary)

	id := send(t, d, "default timeout", -1)
	require.Eventually(t, func() bool { return !d.server.IsActive(id) }, time.Second, 5*time.Millisecond)
}

func TestDaemon_MonitorMode(t *testing.T) {
	d := newTestDaemon(t, newTestPaths(t), func(c *config.DaemonConfig) {
		c.Source.Mode = string(config.SourceModeMonitor)
	})

	assert.Nil(t, d.Popups())
	assert.Nil(t, d.server)
	assert.Error(t, d.invokeAction(1, "default"))
}

func TestDaemon_StopIsIdempotent(t *testing.T) {
	d := newTestDaemon(t, newTestPaths(t), nil)
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
}
