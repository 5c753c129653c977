// Package output provides output formatters for cached records.
package output

import (
	"fmt"
	"io"

	"github.com/jmylchreest/nisfere/internal/model"
)

// Formatter formats records for output.
type Formatter interface {
	// Format writes formatted records to the writer.
	Format(w io.Writer, records []model.Record) error
}

// FormatType names an output format.
type FormatType string

const (
	FormatDmenu FormatType = "dmenu"
	FormatJSON  FormatType = "json"
	FormatPlain FormatType = "plain"
	FormatYAML  FormatType = "yaml"
	FormatIDs   FormatType = "ids"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (FormatType, error) {
	switch f := FormatType(s); f {
	case FormatDmenu, FormatJSON, FormatPlain, FormatYAML, FormatIDs:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use plain, json, yaml, dmenu or ids)", s)
	}
}

// NewFormatter returns the formatter for format. Unknown formats get plain.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(opts)
	case FormatYAML:
		return NewYAMLFormatter()
	case FormatDmenu:
		return NewDmenuFormatter(opts)
	case FormatIDs:
		return NewIDsFormatter()
	case FormatPlain:
		fallthrough
	default:
		return NewPlainFormatter(opts)
	}
}

// FormatterOptions is shared by every formatter; each reads the fields it needs.
type FormatterOptions struct {
	Template       string // Custom template for dmenu/plain format
	ShowIndex      bool   // Show 1-based index prefix instead of the cache id
	ShowApp        bool   // Show app name
	ShowUrgency    bool   // Mark low and critical records
	BodyMaxLen     int    // Maximum body length (0 = no body in plain, unlimited in dmenu)
	Separator      string // Field separator for dmenu format
	IncludeNewline bool   // Include newlines in body (default: replace with space)
	Compact        bool   // Single-line JSON
}

// DefaultFormatterOptions returns sensible defaults for terminal output.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowApp:        true,
		ShowUrgency:    true,
		BodyMaxLen:     60,
		Separator:      " | ",
		IncludeNewline: false,
	}
}
