package input

import (
	"context"

	"github.com/jmylchreest/nisfere/internal/model"
)

// DaemonSource reads records from a running nisfered over D-Bus.
type DaemonSource struct {
	client DaemonLister
}

// NewDaemonSource creates a DaemonSource backed by client.
func NewDaemonSource(client DaemonLister) *DaemonSource {
	return &DaemonSource{client: client}
}

// Name returns the source identifier.
func (s *DaemonSource) Name() string {
	return SourceDaemon
}

// Records lists the daemon's cache.
func (s *DaemonSource) Records(ctx context.Context) ([]model.Record, error) {
	records, err := s.client.List(ctx)
	if err != nil {
		return nil, &AdapterError{Source: SourceDaemon, Message: "failed to list cache", Err: err}
	}
	return records, nil
}
