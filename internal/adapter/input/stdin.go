package input

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/jmylchreest/nisfere/internal/model"
)

// maxStdinSize bounds how much piped input is read.
const maxStdinSize = 10 * 1024 * 1024

// StdinSource reads a JSON record array from standard input, such as the
// output of "nisfere list -o json".
type StdinSource struct {
	reader io.Reader
}

// NewStdinSource creates a new StdinSource reading from os.Stdin.
func NewStdinSource() *StdinSource {
	return &StdinSource{reader: os.Stdin}
}

// NewStdinSourceWithReader creates a new StdinSource with a custom reader.
func NewStdinSourceWithReader(r io.Reader) *StdinSource {
	return &StdinSource{reader: r}
}

// Name returns the source identifier.
func (s *StdinSource) Name() string {
	return SourceStdin
}

// Records parses the piped array. Empty input yields no records.
func (s *StdinSource) Records(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(s.reader, maxStdinSize))
	if err != nil {
		return nil, &AdapterError{Source: SourceStdin, Message: "failed to read stdin", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Record{}, nil
	}

	records, err := model.DecodeRecords(bytes.NewReader(data))
	if err != nil {
		return nil, &AdapterError{Source: SourceStdin, Message: "failed to parse JSON input", Err: err}
	}
	return sanitizeRecords(records), nil
}

// sanitizeRecords strips control characters from text fields.
func sanitizeRecords(records []model.Record) []model.Record {
	for i := range records {
		records[i].AppName = sanitizeString(records[i].AppName)
		records[i].Summary = sanitizeString(records[i].Summary)
		records[i].Body = sanitizeString(records[i].Body)
	}
	return records
}

// sanitizeString replaces control characters other than newline and tab with spaces.
func sanitizeString(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\t' {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
