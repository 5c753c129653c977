package input

import (
	"context"
	"errors"
	"os"

	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

// FileSource reads the durable cache file directly. It never writes.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the source identifier.
func (s *FileSource) Name() string {
	return SourceFile
}

// Path returns the cache file location.
func (s *FileSource) Path() string {
	return s.path
}

// Records loads the file. A missing file is an empty cache.
func (s *FileSource) Records(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := store.NewJSONFilePersistence(s.path)
	defer p.Close()

	records, err := p.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Record{}, nil
		}
		return nil, &AdapterError{Source: SourceFile, Message: "failed to read cache", Err: errors.Join(store.ErrStorageUnavailable, err)}
	}
	return records, nil
}
