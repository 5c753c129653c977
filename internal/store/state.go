package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DnDTrigger represents what triggered the DnD state change.
type DnDTrigger string

const (
	// DnDTriggerUser indicates a user-initiated DnD change (CLI, bar widget, etc.)
	DnDTriggerUser DnDTrigger = "user"
	// DnDTriggerConfig indicates the initial state came from the config file.
	DnDTriggerConfig DnDTrigger = "config"
)

// DnDTransition records details about a DnD state change.
type DnDTransition struct {
	Trigger   DnDTrigger `json:"trigger"`
	Reason    string     `json:"reason"`
	Source    string     `json:"source,omitempty"` // e.g. "cli", "dbus", "nisfered"
	Timestamp int64      `json:"timestamp"`
}

// SharedState is daemon state that outlives a process but is not part of
// the notification cache. Persisted to $XDG_DATA_HOME/nisfere/state.json.
type SharedState struct {
	DnDEnabled        bool           `json:"dnd_enabled"`
	DnDLastTransition *DnDTransition `json:"dnd_last_transition,omitempty"`

	LastNotificationAt int64 `json:"last_notification_at,omitempty"`

	SchemaVersion int `json:"schema_version"`
}

// CurrentSchemaVersion is the current version of the state schema.
const CurrentSchemaVersion = 1

// DefaultSharedState returns a new SharedState with default values.
func DefaultSharedState() *SharedState {
	return &SharedState{
		DnDEnabled:    false,
		SchemaVersion: CurrentSchemaVersion,
	}
}

// SetDnD updates the Do Not Disturb state and records the transition.
func (s *SharedState) SetDnD(enabled bool, trigger DnDTrigger, reason, source string) {
	s.DnDEnabled = enabled
	s.DnDLastTransition = &DnDTransition{
		Trigger:   trigger,
		Reason:    reason,
		Source:    source,
		Timestamp: time.Now().Unix(),
	}
}

// UpdateLastNotification updates the last notification timestamp.
func (s *SharedState) UpdateLastNotification() {
	s.LastNotificationAt = time.Now().Unix()
}

// StateFile reads and writes a SharedState at a fixed path.
type StateFile struct {
	mu   sync.Mutex
	path string
}

// NewStateFile creates a StateFile for path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the state file location.
func (f *StateFile) Path() string {
	return f.path
}

// Load reads the shared state. A missing or corrupted file yields the
// default state; ok reports whether a valid file was read.
func (f *StateFile) Load() (state *SharedState, ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSharedState(), false, nil
		}
		return nil, false, fmt.Errorf("read state %s: %w", f.path, err)
	}

	var s SharedState
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSharedState(), false, nil
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = CurrentSchemaVersion
	}
	return &s, true, nil
}

// Save writes the shared state atomically via a temp file.
func (f *StateFile) Save(state *SharedState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, f.path)
}
