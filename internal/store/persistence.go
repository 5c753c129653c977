package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/nisfere/internal/model"
)

// Persistence defines the interface for the durable notification store.
type Persistence interface {
	// Load reads all records in file order.
	Load() ([]model.Record, error)

	// Save replaces the stored set with records.
	Save(records []model.Record) error

	// Path returns the location of the durable file.
	Path() string

	// Close releases resources.
	Close() error
}

// ErrPersistenceClosed is returned when operations are attempted on a closed persistence.
var ErrPersistenceClosed = errors.New("persistence is closed")

// JSONFilePersistence implements Persistence as a single JSON array file
// that is rewritten on every save.
type JSONFilePersistence struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// NewJSONFilePersistence creates a JSONFilePersistence for path.
// The file is not created; see EnsureFile.
func NewJSONFilePersistence(path string) *JSONFilePersistence {
	return &JSONFilePersistence{path: path}
}

// EnsureFile creates the parent directory and an empty "[]" store at path
// if no file exists yet. Existing files are left untouched.
func EnsureFile(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return false, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := model.EncodeRecords(f, nil); err != nil {
		return false, err
	}
	return true, f.Sync()
}

// Path returns the location of the durable file.
func (p *JSONFilePersistence) Path() string {
	return p.path
}

// Load reads all records from the file in file order.
func (p *JSONFilePersistence) Load() ([]model.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPersistenceClosed
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.path, err)
	}
	defer f.Close()

	records, err := model.DecodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	return records, nil
}

// Save writes records atomically via a temp file in the same directory.
func (p *JSONFilePersistence) Save(records []model.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := model.EncodeRecords(tmp, records); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", p.path, err)
	}
	return nil
}

// Close marks the persistence closed. Subsequent calls fail.
func (p *JSONFilePersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
