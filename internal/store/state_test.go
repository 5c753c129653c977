package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFile_LoadMissing(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "state.json"))

	state, ok, err := f.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, state.DnDEnabled)
	assert.Equal(t, CurrentSchemaVersion, state.SchemaVersion)
}

func TestStateFile_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	state, ok, err := NewStateFile(path).Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, DefaultSharedState(), state)
}

func TestStateFile_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f := NewStateFile(path)

	state := DefaultSharedState()
	state.SetDnD(true, DnDTriggerUser, "toggled from bar", "dbus")
	state.UpdateLastNotification()
	require.NoError(t, f.Save(state))

	loaded, ok, err := f.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, loaded.DnDEnabled)
	require.NotNil(t, loaded.DnDLastTransition)
	assert.Equal(t, DnDTriggerUser, loaded.DnDLastTransition.Trigger)
	assert.Equal(t, "toggled from bar", loaded.DnDLastTransition.Reason)
	assert.Equal(t, "dbus", loaded.DnDLastTransition.Source)
	assert.NotZero(t, loaded.DnDLastTransition.Timestamp)
	assert.NotZero(t, loaded.LastNotificationAt)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStateFile_SaveFillsSchemaVersion(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, f.Save(&SharedState{DnDEnabled: true}))

	loaded, ok, err := f.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)
}
