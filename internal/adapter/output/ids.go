package output

import (
	"fmt"
	"io"

	"github.com/jmylchreest/nisfere/internal/model"
)

// IDsFormatter outputs just the cache ids, one per line.
// Useful for piping to other commands (e.g., xargs nisfere remove).
type IDsFormatter struct{}

// NewIDsFormatter creates a new IDs formatter.
func NewIDsFormatter() *IDsFormatter {
	return &IDsFormatter{}
}

// Format writes cache ids to the writer, one per line.
func (f *IDsFormatter) Format(w io.Writer, records []model.Record) error {
	for _, r := range records {
		if _, err := fmt.Fprintln(w, r.CacheID); err != nil {
			return err
		}
	}
	return nil
}
