package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/nisfere/internal/model"
)

// SortField represents a field to sort by.
type SortField string

const (
	SortByID      SortField = "id"
	SortByApp     SortField = "app"
	SortByUrgency SortField = "urgency"
)

// SortOrder represents ascending or descending order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOptions specifies sorting criteria.
type SortOptions struct {
	Field SortField // Field to sort by
	Order SortOrder // Sort order (asc/desc)
}

// DefaultSortOptions returns default sort options (newest first).
func DefaultSortOptions() SortOptions {
	return SortOptions{
		Field: SortByID,
		Order: SortDesc,
	}
}

// Sort sorts records in place based on the provided options.
// Ties keep their cache order.
func Sort(records []model.Record, opts SortOptions) {
	if len(records) == 0 {
		return
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]

		var cmp int
		switch opts.Field {
		case SortByApp:
			cmp = strings.Compare(strings.ToLower(a.AppName), strings.ToLower(b.AppName))
		case SortByUrgency:
			cmp = int(a.Urgency) - int(b.Urgency)
		default:
			cmp = compareIDs(a.CacheID, b.CacheID)
		}

		if opts.Order == SortDesc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareIDs(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseSortField parses a sort field string.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "id", "cached_id", "i", "":
		return SortByID, nil
	case "app", "appname", "a":
		return SortByApp, nil
	case "urgency", "u":
		return SortByUrgency, nil
	default:
		return SortByID, fmt.Errorf("invalid sort field: %s (use id, app, or urgency)", s)
	}
}

// ParseSortOrder parses a sort order string.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending", "a":
		return SortAsc, nil
	case "desc", "descending", "d", "":
		return SortDesc, nil
	default:
		return SortDesc, fmt.Errorf("invalid sort order: %s (use asc or desc)", s)
	}
}
