// Package input provides the record sources the CLI reads from.
package input

import (
	"context"
	"errors"

	"github.com/jmylchreest/nisfere/internal/model"
)

// Source names accepted by NewSource.
const (
	SourceAuto   = ""
	SourceDaemon = "daemon"
	SourceFile   = "file"
	SourceStdin  = "stdin"
)

// RecordSource fetches cached records.
type RecordSource interface {
	// Name returns the source identifier (e.g., "daemon", "file").
	Name() string

	// Records fetches the records in cache order.
	Records(ctx context.Context) ([]model.Record, error)
}

// DaemonLister is the part of the cache client a DaemonSource needs.
type DaemonLister interface {
	Available(ctx context.Context) bool
	List(ctx context.Context) ([]model.Record, error)
}

// Options configures NewSource.
type Options struct {
	Daemon    DaemonLister // nil skips the daemon
	CachePath string       // Durable file read when the daemon is unavailable
}

// NewSource creates a RecordSource for the named source.
// With SourceAuto the running daemon is preferred and the cache file is
// read directly when it is not reachable.
func NewSource(ctx context.Context, name string, opts Options) (RecordSource, error) {
	switch name {
	case SourceAuto:
		if opts.Daemon != nil && opts.Daemon.Available(ctx) {
			return NewDaemonSource(opts.Daemon), nil
		}
		if opts.CachePath == "" {
			return nil, &AdapterError{Source: "auto", Message: "daemon unavailable and no cache path configured"}
		}
		return NewFileSource(opts.CachePath), nil
	case SourceDaemon:
		if opts.Daemon == nil {
			return nil, &AdapterError{Source: name, Message: "no session bus connection", Err: ErrUnavailable}
		}
		return NewDaemonSource(opts.Daemon), nil
	case SourceFile:
		return NewFileSource(opts.CachePath), nil
	case SourceStdin:
		return NewStdinSource(), nil
	default:
		return nil, &AdapterError{
			Source:  name,
			Message: "unknown source",
		}
	}
}

// ErrUnavailable is wrapped when a source cannot be reached.
var ErrUnavailable = errors.New("source unavailable")

// AdapterError represents a source-related error.
type AdapterError struct {
	Source  string
	Message string
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Source + ": " + e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
