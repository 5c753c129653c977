// Package core provides filtering, sorting, and lookup logic over cached records.
package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jmylchreest/nisfere/internal/model"
)

// FilterOp represents a comparison operator.
type FilterOp string

const (
	FilterOpEqual     FilterOp = "="  // Exact match
	FilterOpNotEqual  FilterOp = "!=" // Not equal
	FilterOpContains  FilterOp = "~"  // Contains substring
	FilterOpRegex     FilterOp = "~=" // Regex match
	FilterOpGreater   FilterOp = ">"  // Greater than
	FilterOpLess      FilterOp = "<"  // Less than
	FilterOpGreaterEq FilterOp = ">=" // Greater than or equal
	FilterOpLessEq    FilterOp = "<=" // Less than or equal
)

// FilterCondition represents a single filter condition.
type FilterCondition struct {
	Field    string   // Field name: app, summary, body, urgency, id, source, image
	Operator FilterOp // Comparison operator
	Value    string   // Value to compare against

	regex   *regexp.Regexp
	intVal  int
	boolVal bool
}

// FilterExpr represents a compound filter expression.
// Multiple conditions are ANDed together.
type FilterExpr struct {
	Conditions []FilterCondition
}

// FilterOptions specifies criteria for filtering records.
type FilterOptions struct {
	AppFilter string         // App name, exact or a glob such as "org.*"
	Urgency   *model.Urgency // Filter by urgency level (nil=any)
	Limit     int            // Maximum results (0=unlimited)
}

// Filter filters records based on the provided options. Order is preserved.
func Filter(records []model.Record, opts FilterOptions) ([]model.Record, error) {
	if opts.AppFilter != "" && !doublestar.ValidatePattern(opts.AppFilter) {
		return nil, fmt.Errorf("invalid app pattern: %s", opts.AppFilter)
	}

	result := make([]model.Record, 0, len(records))
	for _, r := range records {
		if opts.AppFilter != "" && !matchApp(opts.AppFilter, r.AppName) {
			continue
		}
		if opts.Urgency != nil && r.Urgency != *opts.Urgency {
			continue
		}
		result = append(result, r)
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func matchApp(pattern, app string) bool {
	if pattern == app {
		return true
	}
	ok, err := doublestar.Match(pattern, app)
	return err == nil && ok
}

// ParseUrgency parses an urgency name or ordinal.
// Accepts: low, normal, critical, 0, 1, 2
func ParseUrgency(s string) (model.Urgency, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("invalid urgency: empty (use low, normal, or critical)")
	}
	return model.ParseUrgency(s)
}

// ParseFilter parses a filter expression string into a FilterExpr.
// Format: "field=value,field2~value2,field3>value3"
// Multiple conditions are comma-separated and ANDed together.
//
// Supported fields: app, summary, body, urgency, id, source, image
// Supported operators: = (equal), != (not equal), ~ (contains), ~= (regex), >, <, >=, <=
//
// Examples:
//   - "app=discord" - exact app name match
//   - "summary~error" - summary contains "error"
//   - "urgency>=normal" - urgency is normal or higher
//   - "id>40" - records cached after record 40
//   - "body~=(?i)meeting" - body matches regex (case-insensitive "meeting")
//   - "image=true" - records carrying an image
func ParseFilter(expr string) (*FilterExpr, error) {
	if expr == "" {
		return &FilterExpr{}, nil
	}

	filter := &FilterExpr{
		Conditions: make([]FilterCondition, 0),
	}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		cond, err := parseCondition(part)
		if err != nil {
			return nil, err
		}
		filter.Conditions = append(filter.Conditions, cond)
	}

	return filter, nil
}

// parseCondition parses a single condition like "app=discord" or "body~error"
func parseCondition(s string) (FilterCondition, error) {
	// Longest operators first so "!=" is not read as "=".
	operators := []FilterOp{
		FilterOpNotEqual,
		FilterOpGreaterEq,
		FilterOpLessEq,
		FilterOpRegex,
		FilterOpEqual,
		FilterOpContains,
		FilterOpGreater,
		FilterOpLess,
	}

	for _, op := range operators {
		idx := strings.Index(s, string(op))
		if idx > 0 {
			cond := FilterCondition{
				Field:    strings.ToLower(strings.TrimSpace(s[:idx])),
				Operator: op,
				Value:    strings.TrimSpace(s[idx+len(op):]),
			}
			if err := cond.init(); err != nil {
				return FilterCondition{}, err
			}
			return cond, nil
		}
	}

	return FilterCondition{}, fmt.Errorf("invalid filter condition: %s (missing operator)", s)
}

// init pre-parses and validates the condition value.
func (c *FilterCondition) init() error {
	switch c.Field {
	case "app", "app_name", "appname":
		c.Field = "app"
	case "summary", "title":
		c.Field = "summary"
	case "body", "message":
		c.Field = "body"
	case "urgency", "priority":
		c.Field = "urgency"
		u, err := ParseUrgency(c.Value)
		if err != nil {
			return err
		}
		c.intVal = int(u)
	case "id", "cached_id", "cache_id":
		c.Field = "id"
		n, err := strconv.ParseUint(c.Value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id value: %s", c.Value)
		}
		c.intVal = int(n)
	case "source", "source_id":
		c.Field = "source"
		n, err := strconv.ParseUint(c.Value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid source value: %s", c.Value)
		}
		c.intVal = int(n)
	case "image", "has_image":
		c.Field = "image"
		c.boolVal = parseBool(c.Value)
	default:
		return fmt.Errorf("unknown filter field: %s", c.Field)
	}

	if c.Operator == FilterOpRegex {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		c.regex = re
	}

	return nil
}

// parseBool parses various boolean representations.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y", "t":
		return true
	default:
		return false
	}
}

// Match tests if a record matches the filter expression.
// All conditions must match (AND logic).
func (f *FilterExpr) Match(r model.Record) bool {
	for _, cond := range f.Conditions {
		if !cond.Match(r) {
			return false
		}
	}
	return true
}

// Match tests if a record matches this single condition.
func (c *FilterCondition) Match(r model.Record) bool {
	switch c.Field {
	case "app":
		return c.matchString(r.AppName)
	case "summary":
		return c.matchString(r.Summary)
	case "body":
		return c.matchString(r.Body)
	case "urgency":
		return c.matchInt(int(r.Urgency))
	case "id":
		return c.matchInt(int(r.CacheID))
	case "source":
		return c.matchInt(int(r.SourceID))
	case "image":
		return c.matchBool(r.ImagePixmap != nil || r.ImageFile != "")
	default:
		return false
	}
}

func (c *FilterCondition) matchString(fieldValue string) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.Value
	case FilterOpNotEqual:
		return fieldValue != c.Value
	case FilterOpContains:
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(c.Value))
	case FilterOpRegex:
		return c.regex != nil && c.regex.MatchString(fieldValue)
	default:
		return false
	}
}

func (c *FilterCondition) matchInt(fieldValue int) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.intVal
	case FilterOpNotEqual:
		return fieldValue != c.intVal
	case FilterOpGreater:
		return fieldValue > c.intVal
	case FilterOpLess:
		return fieldValue < c.intVal
	case FilterOpGreaterEq:
		return fieldValue >= c.intVal
	case FilterOpLessEq:
		return fieldValue <= c.intVal
	default:
		return false
	}
}

func (c *FilterCondition) matchBool(fieldValue bool) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.boolVal
	case FilterOpNotEqual:
		return fieldValue != c.boolVal
	default:
		return false
	}
}

// FilterWithExpr filters records using a filter expression.
func FilterWithExpr(records []model.Record, expr *FilterExpr) []model.Record {
	if expr == nil || len(expr.Conditions) == 0 {
		return records
	}

	result := make([]model.Record, 0, len(records))
	for _, r := range records {
		if expr.Match(r) {
			result = append(result, r)
		}
	}
	return result
}
