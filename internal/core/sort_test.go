package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/nisfere/internal/model"
)

func ids(records []model.Record) []uint32 {
	out := make([]uint32, 0, len(records))
	for _, r := range records {
		out = append(out, r.CacheID)
	}
	return out
}

func TestSort_Empty(t *testing.T) {
	var records []model.Record
	Sort(records, DefaultSortOptions())
	assert.Len(t, records, 0)
}

func TestSort_ByID(t *testing.T) {
	records := []model.Record{{CacheID: 4}, {CacheID: 9}, {CacheID: 6}}

	Sort(records, SortOptions{Field: SortByID, Order: SortDesc})
	assert.Equal(t, []uint32{9, 6, 4}, ids(records))

	Sort(records, SortOptions{Field: SortByID, Order: SortAsc})
	assert.Equal(t, []uint32{4, 6, 9}, ids(records))
}

func TestSort_ByApp(t *testing.T) {
	records := []model.Record{
		{CacheID: 1, AppName: "Firefox"},
		{CacheID: 2, AppName: "Slack"},
		{CacheID: 3, AppName: "Discord"},
	}

	Sort(records, SortOptions{Field: SortByApp, Order: SortDesc})
	assert.Equal(t, []uint32{2, 1, 3}, ids(records))

	Sort(records, SortOptions{Field: SortByApp, Order: SortAsc})
	assert.Equal(t, []uint32{3, 1, 2}, ids(records))
}

func TestSort_ByUrgency(t *testing.T) {
	records := []model.Record{
		{CacheID: 1, Urgency: model.UrgencyNormal},
		{CacheID: 2, Urgency: model.UrgencyLow},
		{CacheID: 3, Urgency: model.UrgencyCritical},
	}

	Sort(records, SortOptions{Field: SortByUrgency, Order: SortDesc})
	assert.Equal(t, []uint32{3, 1, 2}, ids(records))

	Sort(records, SortOptions{Field: SortByUrgency, Order: SortAsc})
	assert.Equal(t, []uint32{2, 1, 3}, ids(records))
}

func TestSort_CaseInsensitiveAppIsStable(t *testing.T) {
	records := []model.Record{
		{CacheID: 1, AppName: "firefox"},
		{CacheID: 2, AppName: "FIREFOX"},
		{CacheID: 3, AppName: "Firefox"},
	}

	Sort(records, SortOptions{Field: SortByApp, Order: SortAsc})
	assert.Equal(t, []uint32{1, 2, 3}, ids(records))

	Sort(records, SortOptions{Field: SortByApp, Order: SortDesc})
	assert.Equal(t, []uint32{1, 2, 3}, ids(records))
}

func TestDefaultSortOptions(t *testing.T) {
	opts := DefaultSortOptions()
	assert.Equal(t, SortByID, opts.Field)
	assert.Equal(t, SortDesc, opts.Order)
}

func TestParseSortField(t *testing.T) {
	tests := []struct {
		input    string
		expected SortField
		hasError bool
	}{
		{"id", SortByID, false},
		{"", SortByID, false},
		{"app", SortByApp, false},
		{"appname", SortByApp, false},
		{"a", SortByApp, false},
		{"urgency", SortByUrgency, false},
		{"U", SortByUrgency, false},
		{"timestamp", SortByID, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseSortField(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.Equal(t, tt.hasError, err != nil)
		})
	}
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected SortOrder
		hasError bool
	}{
		{"asc", SortAsc, false},
		{"ascending", SortAsc, false},
		{"a", SortAsc, false},
		{"desc", SortDesc, false},
		{"descending", SortDesc, false},
		{"d", SortDesc, false},
		{"sideways", SortDesc, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseSortOrder(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.Equal(t, tt.hasError, err != nil)
		})
	}
}
