package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/nisfere/internal/model"
)

func TestLookupByID(t *testing.T) {
	records := []model.Record{
		{CacheID: 3, AppName: "firefox"},
		{CacheID: 7, AppName: "slack"},
		{CacheID: 12, AppName: "discord"},
	}

	t.Run("found", func(t *testing.T) {
		result := LookupByID(records, 7)
		require.NotNil(t, result)
		assert.Equal(t, "slack", result.AppName)
	})

	t.Run("not found", func(t *testing.T) {
		assert.Nil(t, LookupByID(records, 8))
	})

	t.Run("empty slice", func(t *testing.T) {
		assert.Nil(t, LookupByID(nil, 3))
	})
}

func TestLookupByIndex(t *testing.T) {
	records := []model.Record{
		{CacheID: 1, AppName: "firefox"},
		{CacheID: 2, AppName: "slack"},
		{CacheID: 3, AppName: "discord"},
	}

	t.Run("valid index 1", func(t *testing.T) {
		result := LookupByIndex(records, 1)
		require.NotNil(t, result)
		assert.Equal(t, "firefox", result.AppName)
	})

	t.Run("valid index 3", func(t *testing.T) {
		result := LookupByIndex(records, 3)
		require.NotNil(t, result)
		assert.Equal(t, "discord", result.AppName)
	})

	t.Run("out of bounds", func(t *testing.T) {
		assert.Nil(t, LookupByIndex(records, 0))
		assert.Nil(t, LookupByIndex(records, -1))
		assert.Nil(t, LookupByIndex(records, 10))
		assert.Nil(t, LookupByIndex(nil, 1))
	})
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	id, err = ParseID(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)

	for _, bad := range []string{"", "-1", "abc", "4294967296"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestSearch(t *testing.T) {
	records := []model.Record{
		{CacheID: 1, Summary: "Download Complete", Body: "file.zip finished"},
		{CacheID: 2, Summary: "New Message", Body: "Hello from John"},
		{CacheID: 3, Summary: "Update Available", Body: "Firefox has updates"},
	}

	t.Run("match in summary", func(t *testing.T) {
		result := Search(records, "download")
		require.Len(t, result, 1)
		assert.Equal(t, uint32(1), result[0].CacheID)
	})

	t.Run("match in body", func(t *testing.T) {
		result := Search(records, "john")
		require.Len(t, result, 1)
		assert.Equal(t, uint32(2), result[0].CacheID)
	})

	t.Run("case insensitive", func(t *testing.T) {
		result := Search(records, "FIREFOX")
		require.Len(t, result, 1)
		assert.Equal(t, uint32(3), result[0].CacheID)
	})

	t.Run("multiple matches", func(t *testing.T) {
		assert.Len(t, Search(records, "e"), 3)
	})

	t.Run("no matches", func(t *testing.T) {
		assert.Len(t, Search(records, "xyz123"), 0)
	})

	t.Run("empty search term returns all", func(t *testing.T) {
		assert.Len(t, Search(records, ""), 3)
	})
}

func TestUniqueApps(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		records := []model.Record{
			{AppName: "Firefox"},
			{AppName: "slack"},
			{AppName: "Firefox"},
			{AppName: "Discord"},
		}

		assert.Equal(t, []string{"Discord", "Firefox", "slack"}, UniqueApps(records))
	})

	t.Run("empty app names excluded", func(t *testing.T) {
		records := []model.Record{
			{AppName: "Firefox"},
			{AppName: ""},
			{AppName: "Slack"},
		}

		assert.Len(t, UniqueApps(records), 2)
	})

	t.Run("empty slice", func(t *testing.T) {
		assert.Len(t, UniqueApps(nil), 0)
	})
}

func TestCountByApp(t *testing.T) {
	records := []model.Record{
		{AppName: "slack"},
		{AppName: "mail"},
		{AppName: "slack"},
	}

	assert.Equal(t, map[string]int{"slack": 2, "mail": 1}, CountByApp(records))
}
