package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

type fakeClient struct {
	available bool
	records   []model.Record
	dnd       bool
	removed   []uint32
	actions   []string
	events    []nisbus.CacheEvent
}

func (f *fakeClient) Available(context.Context) bool { return f.available }

func (f *fakeClient) List(context.Context) ([]model.Record, error) {
	return append([]model.Record(nil), f.records...), nil
}

func (f *fakeClient) Count(context.Context) (int, error) { return len(f.records), nil }

func (f *fakeClient) Remove(_ context.Context, id uint32) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeClient) ClearAll(context.Context) error {
	f.records = nil
	return nil
}

func (f *fakeClient) DoNotDisturb(context.Context) (bool, error) { return f.dnd, nil }

func (f *fakeClient) SetDoNotDisturb(_ context.Context, enabled bool) error {
	f.dnd = enabled
	return nil
}

func (f *fakeClient) ToggleDoNotDisturb(context.Context) (bool, error) {
	f.dnd = !f.dnd
	return f.dnd, nil
}

func (f *fakeClient) InvokeAction(_ context.Context, id uint32, key string) error {
	if id == 0 {
		return store.ErrNotFound
	}
	f.actions = append(f.actions, key)
	return nil
}

func (f *fakeClient) Watch(_ context.Context, fn func(nisbus.CacheEvent)) error {
	for _, ev := range f.events {
		fn(ev)
	}
	return nil
}

func useFakeClient(t *testing.T, client *fakeClient) {
	t.Helper()
	orig := newClient
	newClient = func() (cacheClient, error) { return client, nil }
	t.Cleanup(func() { newClient = orig })
}

func testRecords() []model.Record {
	return []model.Record{
		{CacheID: 1, SourceID: 10, AppName: "slack", Summary: "Build failed", Urgency: model.UrgencyCritical, Actions: []model.Action{}},
		{CacheID: 2, SourceID: 11, AppName: "mail", Summary: "Lunch?", Body: "Pizza at noon", Urgency: model.UrgencyLow, Actions: []model.Action{}},
		{CacheID: 3, SourceID: 12, AppName: "slack", Summary: "Deploy done", Urgency: model.UrgencyNormal, Actions: []model.Action{}},
		{CacheID: 4, SourceID: 13, AppName: "org.gnome.Calendar", Summary: "Standup", Urgency: model.UrgencyNormal, Actions: []model.Action{}},
	}
}

func cacheIDs(records []model.Record) []uint32 {
	out := make([]uint32, 0, len(records))
	for _, r := range records {
		out = append(out, r.CacheID)
	}
	return out
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		input    string
		expected uint32
		hasError bool
	}{
		{"12", 12, false},
		{" 7 ", 7, false},
		{"12 | ! | slack | Build: failed", 12, false},
		{"3|mail", 3, false},
		{"  42  L  mail Lunch", 42, false},
		{"slack", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := parseSelection(tt.input, nil)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestParseSelection_Stdin(t *testing.T) {
	id, err := parseSelection("-", strings.NewReader("9 | slack | hi\n10 | other\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(9), id)
}

func TestSelectRecords(t *testing.T) {
	tests := []struct {
		name     string
		opts     listOptions
		expected []uint32
	}{
		{"default newest first", listOptions{}, []uint32{4, 3, 2, 1}},
		{"app", listOptions{app: "slack"}, []uint32{3, 1}},
		{"app glob", listOptions{app: "org.gnome.*"}, []uint32{4}},
		{"urgency", listOptions{urgency: "critical"}, []uint32{1}},
		{"filter", listOptions{filter: "urgency>=normal,app!=slack"}, []uint32{4}},
		{"search", listOptions{search: "pizza"}, []uint32{2}},
		{"sort app asc", listOptions{sortBy: "app", sortOrder: "asc"}, []uint32{2, 4, 1, 3}},
		{"limit after sort", listOptions{limit: 2}, []uint32{4, 3}},
		{"ascending ids", listOptions{sortOrder: "asc", limit: 1}, []uint32{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := selectRecords(testRecords(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cacheIDs(result))
		})
	}
}

func TestSelectRecords_Errors(t *testing.T) {
	for name, opts := range map[string]listOptions{
		"urgency": {urgency: "loud"},
		"glob":    {app: "[oops"},
		"filter":  {filter: "colour=red"},
		"sort":    {sortBy: "time"},
		"order":   {sortOrder: "up"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := selectRecords(testRecords(), opts)
			assert.Error(t, err)
		})
	}
}

func TestListOptions_WithDefaults(t *testing.T) {
	opts := listOptions{limit: 3}.withDefaults(10, "app", "asc")
	assert.Equal(t, 3, opts.limit)
	assert.Equal(t, "app", opts.sortBy)
	assert.Equal(t, "asc", opts.sortOrder)

	opts = listOptions{sortBy: "urgency"}.withDefaults(10, "id", "desc")
	assert.Equal(t, 10, opts.limit)
	assert.Equal(t, "urgency", opts.sortBy)
}

func TestOutputLookup(t *testing.T) {
	records := testRecords()

	t.Run("field by id", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, outputLookup(&buf, records, nil, 2, listOptions{field: "body"}))
		assert.Equal(t, "Pizza at noon\n", buf.String())
	})

	t.Run("json by default", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, outputLookup(&buf, records, nil, 3, listOptions{bodyWidth: -1}))

		decoded, err := model.DecodeRecords(&buf)
		require.NoError(t, err)
		require.Len(t, decoded, 1)
		assert.Equal(t, uint32(3), decoded[0].CacheID)
		assert.Equal(t, "Deploy done", decoded[0].Summary)
	})

	t.Run("by index", func(t *testing.T) {
		var buf bytes.Buffer
		selected := []model.Record{records[3], records[0]}
		require.NoError(t, outputLookup(&buf, records, selected, 0, listOptions{index: 2, field: "summary"}))
		assert.Equal(t, "Build failed\n", buf.String())
	})

	t.Run("missing", func(t *testing.T) {
		assert.Error(t, outputLookup(&bytes.Buffer{}, records, nil, 99, listOptions{}))
		assert.Error(t, outputLookup(&bytes.Buffer{}, records, records, 0, listOptions{index: 9}))
	})
}

func TestReadLineIDs(t *testing.T) {
	input := "3\n\n12 | ! | slack | x\n   5  L  mail Lunch\n    body line\n-\n"
	ids, err := readLineIDs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 12, 5}, ids)
}

func TestReadJSONIDs(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, model.EncodeRecords(&buf, testRecords()[:2]))

		ids, err := readJSONIDs(&buf)
		require.NoError(t, err)
		assert.Equal(t, []uint32{1, 2}, ids)
	})

	t.Run("ndjson", func(t *testing.T) {
		ids, err := readJSONIDs(strings.NewReader("{\"cached-id\": 4}\nnot json\n{\"cached-id\": 0}\n{\"id\": 9}\n"))
		require.NoError(t, err)
		assert.Equal(t, []uint32{4, 0}, ids)
	})

	t.Run("empty", func(t *testing.T) {
		ids, err := readJSONIDs(strings.NewReader("  \n"))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []uint32{3, 1, 2}, uniqueIDs([]uint32{3, 1, 3, 2, 1}))
}

func TestRunRemove(t *testing.T) {
	client := &fakeClient{available: true}
	useFakeClient(t, client)

	var buf bytes.Buffer
	removeCmd.SetOut(&buf)
	t.Cleanup(func() { removeCmd.SetOut(nil) })

	require.NoError(t, runRemove(removeCmd, []string{"3", "5", "3"}))
	assert.Equal(t, []uint32{3, 5}, client.removed)
	assert.Equal(t, "removed 2 notifications\n", buf.String())

	assert.Error(t, runRemove(removeCmd, []string{"abc"}))
	assert.Error(t, runRemove(removeCmd, nil))
}

func TestRunRemove_DaemonUnavailable(t *testing.T) {
	useFakeClient(t, &fakeClient{available: false})

	err := runRemove(removeCmd, []string{"1"})
	assert.ErrorIs(t, err, nisbus.ErrDaemonUnavailable)
	assert.True(t, isUnavailable(err))
}

func TestRunCount_UsesDaemon(t *testing.T) {
	useFakeClient(t, &fakeClient{available: true, records: testRecords()})

	var buf bytes.Buffer
	countCmd.SetOut(&buf)
	t.Cleanup(func() { countCmd.SetOut(nil) })

	require.NoError(t, runCount(countCmd, nil))
	assert.Equal(t, "4\n", buf.String())

	countOpts.app = "slack"
	t.Cleanup(func() { countOpts.app = "" })
	buf.Reset()
	require.NoError(t, runCount(countCmd, nil))
	assert.Equal(t, "2\n", buf.String())
}

func TestRunCount_FileFallback(t *testing.T) {
	useFakeClient(t, &fakeClient{available: false})

	path := filepath.Join(t.TempDir(), "cache.json")
	_, err := store.EnsureFile(path)
	require.NoError(t, err)
	globalOpts.cacheFile = path
	t.Cleanup(func() { globalOpts.cacheFile = "" })

	var buf bytes.Buffer
	countCmd.SetOut(&buf)
	t.Cleanup(func() { countCmd.SetOut(nil) })

	require.NoError(t, runCount(countCmd, nil))
	assert.Equal(t, "0\n", buf.String())
}

func TestRunAction(t *testing.T) {
	client := &fakeClient{available: true}
	useFakeClient(t, client)

	require.NoError(t, runAction(actionCmd, []string{"4"}))
	require.NoError(t, runAction(actionCmd, []string{"4", "reply"}))
	assert.Equal(t, []string{"default", "reply"}, client.actions)

	assert.ErrorIs(t, runAction(actionCmd, []string{"0"}), store.ErrNotFound)
	assert.Error(t, runAction(actionCmd, []string{"x"}))
}

func TestRunWatch(t *testing.T) {
	count := uint32(1)
	rec := testRecords()[0]
	client := &fakeClient{available: true, events: []nisbus.CacheEvent{
		{Kind: nisbus.EventAdded, CacheID: 1, Record: &rec},
		{Kind: nisbus.EventCountChanged, Count: &count},
	}}
	useFakeClient(t, client)

	var buf bytes.Buffer
	watchCmd.SetOut(&buf)
	watchCmd.SetContext(context.Background())
	t.Cleanup(func() { watchCmd.SetOut(nil) })

	require.NoError(t, runWatch(watchCmd, nil))
	assert.Equal(t, "added 1 <slack> Build failed\ncount 1\n", buf.String())
}

func TestDnDBackends(t *testing.T) {
	t.Run("daemon", func(t *testing.T) {
		client := &fakeClient{available: true}
		backend := daemonDnD{ctx: context.Background(), client: client}

		require.NoError(t, backend.Set(true))
		enabled, err := backend.Get()
		require.NoError(t, err)
		assert.True(t, enabled)

		enabled, err = backend.Toggle()
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("state file", func(t *testing.T) {
		file := store.NewStateFile(filepath.Join(t.TempDir(), "state.json"))
		backend := fileDnD{file: file}

		enabled, err := backend.Get()
		require.NoError(t, err)
		assert.False(t, enabled)

		enabled, err = backend.Toggle()
		require.NoError(t, err)
		assert.True(t, enabled)

		saved, ok, err := file.Load()
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, saved.DnDEnabled)
		require.NotNil(t, saved.DnDLastTransition)
		assert.Equal(t, store.DnDTriggerUser, saved.DnDLastTransition.Trigger)
		assert.Equal(t, "cli", saved.DnDLastTransition.Source)
	})
}

func TestDnDChange(t *testing.T) {
	client := &fakeClient{available: true}
	useFakeClient(t, client)

	var exited []bool
	orig := exitForDnD
	exitForDnD = func(enabled bool) { exited = append(exited, enabled) }
	t.Cleanup(func() { exitForDnD = orig })

	var buf bytes.Buffer
	dndToggleCmd.SetOut(&buf)
	t.Cleanup(func() { dndToggleCmd.SetOut(nil) })

	require.NoError(t, dndToggleCmd.RunE(dndToggleCmd, nil))
	assert.True(t, client.dnd)
	assert.Equal(t, "Do Not Disturb: enabled\n", buf.String())
	assert.Equal(t, []bool{true}, exited)
}

func TestParseActions(t *testing.T) {
	actions, err := parseActions([]string{"default=Open", "reply = Reply now", "archive"})
	require.NoError(t, err)
	assert.Equal(t, []model.Action{
		{Identifier: "default", Label: "Open"},
		{Identifier: "reply", Label: " Reply now"},
		{Identifier: "archive", Label: "archive"},
	}, actions)

	_, err = parseActions([]string{"=Label"})
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	orig := sendOpts
	t.Cleanup(func() { sendOpts = orig })

	sendOpts.appName = "ci"
	sendOpts.urgency = "critical"
	sendOpts.expire = 0
	sendOpts.actions = []string{"default=Open"}

	msg, err := buildMessage([]string{"Deploy failed", "see logs"})
	require.NoError(t, err)
	assert.Equal(t, "ci", msg.AppName)
	assert.Equal(t, "Deploy failed", msg.Summary)
	assert.Equal(t, "see logs", msg.Body)
	assert.Equal(t, model.UrgencyCritical, msg.Urgency)
	assert.Equal(t, int32(0), msg.ExpireTimeout)
	assert.Len(t, msg.Actions, 1)

	sendOpts.urgency = "loud"
	_, err = buildMessage([]string{"x"})
	assert.Error(t, err)
}

func TestGenerateStatus(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		status := generateStatus(nil, false, nil, 5)
		assert.Equal(t, "", status.Text)
		assert.Equal(t, "empty", status.Class)
		assert.Equal(t, "No notifications", status.Tooltip)
	})

	t.Run("critical", func(t *testing.T) {
		status := generateStatus(testRecords(), false, nil, 5)
		assert.Equal(t, "4", status.Text)
		assert.Equal(t, "critical", status.Class)
		assert.Equal(t, 4, status.Percentage)
		assert.True(t, strings.HasPrefix(status.Tooltip, "4 notifications\n  slack: 2\n"))
	})

	t.Run("normal", func(t *testing.T) {
		status := generateStatus(testRecords()[1:], false, nil, 5)
		assert.Equal(t, "normal", status.Class)
	})

	t.Run("dnd wins", func(t *testing.T) {
		status := generateStatus(testRecords(), true, nil, 5)
		assert.Equal(t, "dnd", status.Alt)
		assert.Contains(t, status.Tooltip, "Do Not Disturb: on")
	})

	t.Run("top apps and cache info", func(t *testing.T) {
		info := &cacheFileInfo{Size: 2048, ModTime: time.Now().Add(-3 * time.Minute)}
		status := generateStatus(testRecords(), false, info, 1)
		assert.Contains(t, status.Tooltip, "slack: 2")
		assert.Contains(t, status.Tooltip, "and 2 more apps")
		assert.Contains(t, status.Tooltip, "Cache: 2.0 kB, updated 3 minutes ago")
	})
}

func TestOutputStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputStatus(&buf, WaybarStatus{Text: "2", Class: "normal"}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "2", decoded["text"])
	assert.NotContains(t, decoded, "tooltip")
}
