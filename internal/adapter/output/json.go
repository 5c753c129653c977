package output

import (
	"encoding/json"
	"io"

	"github.com/jmylchreest/nisfere/internal/model"
)

// JSONFormatter formats records as JSON in the durable cache layout.
type JSONFormatter struct {
	opts FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts FormatterOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Format writes records as a JSON array.
func (f *JSONFormatter) Format(w io.Writer, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	return f.encoder(w).Encode(records)
}

// FormatSingle writes a single record as JSON.
func (f *JSONFormatter) FormatSingle(w io.Writer, r *model.Record) error {
	return f.encoder(w).Encode(r)
}

func (f *JSONFormatter) encoder(w io.Writer) *json.Encoder {
	encoder := json.NewEncoder(w)
	if !f.opts.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder
}
