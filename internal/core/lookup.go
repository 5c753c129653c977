package core

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jmylchreest/nisfere/internal/model"
)

// LookupByID finds a record by its cache id.
// Returns nil if not found.
func LookupByID(records []model.Record, id uint32) *model.Record {
	for i := range records {
		if records[i].CacheID == id {
			return &records[i]
		}
	}
	return nil
}

// LookupByIndex finds a record by its index (1-based for user-friendliness).
// Returns nil if index is out of bounds.
func LookupByIndex(records []model.Record, index int) *model.Record {
	idx := index - 1
	if idx < 0 || idx >= len(records) {
		return nil
	}
	return &records[idx]
}

// ParseID parses a cache id given on the command line.
func ParseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid notification id %q", s)
	}
	return uint32(id), nil
}

// Search finds records matching a search term in summary or body.
// Case-insensitive substring match.
func Search(records []model.Record, term string) []model.Record {
	if term == "" {
		return records
	}

	term = strings.ToLower(term)
	var result []model.Record

	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Summary), term) ||
			strings.Contains(strings.ToLower(r.Body), term) {
			result = append(result, r)
		}
	}

	return result
}

// UniqueApps returns a sorted list of unique app names from records.
func UniqueApps(records []model.Record) []string {
	seen := make(map[string]bool)
	var apps []string

	for _, r := range records {
		if r.AppName != "" && !seen[r.AppName] {
			seen[r.AppName] = true
			apps = append(apps, r.AppName)
		}
	}

	slices.SortFunc(apps, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return apps
}

// CountByApp returns the number of records per app name.
func CountByApp(records []model.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.AppName]++
	}
	return counts
}
