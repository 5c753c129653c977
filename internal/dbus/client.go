package dbus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

// ErrDaemonUnavailable is returned when nisfered does not own its bus name.
var ErrDaemonUnavailable = errors.New("nisfered is not running")

// CacheEventKind names a cache event broadcast by CacheService.
type CacheEventKind string

// Cache event kinds, one per CacheService signal.
const (
	EventAdded               CacheEventKind = "added"
	EventRemoved             CacheEventKind = "removed"
	EventCleared             CacheEventKind = "cleared"
	EventCountChanged        CacheEventKind = "count_changed"
	EventDoNotDisturbChanged CacheEventKind = "dnd_changed"
)

// CacheEvent is a decoded CacheService signal.
type CacheEvent struct {
	Kind         CacheEventKind `json:"event" yaml:"event"`
	CacheID      uint32         `json:"cache_id,omitempty" yaml:"cache_id,omitempty"`
	Record       *model.Record  `json:"record,omitempty" yaml:"record,omitempty"`
	Count        *uint32        `json:"count,omitempty" yaml:"count,omitempty"`
	DoNotDisturb *bool          `json:"dnd,omitempty" yaml:"dnd,omitempty"`
}

// Client talks to a running nisfered over the session bus.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewClient connects to the session bus. It does not check that the
// daemon is running; see Available.
func NewClient() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(CacheBusName, CachePath)}, nil
}

// Available reports whether nisfered currently owns its bus name.
func (c *Client) Available(ctx context.Context) bool {
	var owned bool
	err := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, CacheBusName).Store(&owned)
	return err == nil && owned
}

func (c *Client) call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.obj.CallWithContext(ctx, CacheInterface+"."+method, 0, args...)
}

// List returns the cached records in insertion order.
func (c *Client) List(ctx context.Context) ([]model.Record, error) {
	var doc string
	if err := c.call(ctx, "List").Store(&doc); err != nil {
		return nil, fromDBusError(err)
	}
	return model.DecodeRecords(strings.NewReader(doc))
}

// Count returns the number of cached records.
func (c *Client) Count(ctx context.Context) (int, error) {
	var n uint32
	if err := c.call(ctx, "Count").Store(&n); err != nil {
		return 0, fromDBusError(err)
	}
	return int(n), nil
}

// Remove deletes the record with cacheID. Unknown ids are not an error.
func (c *Client) Remove(ctx context.Context, cacheID uint32) error {
	return fromDBusError(c.call(ctx, "Remove", cacheID).Err)
}

// ClearAll empties the cache.
func (c *Client) ClearAll(ctx context.Context) error {
	return fromDBusError(c.call(ctx, "ClearAll").Err)
}

// DoNotDisturb reports the Do Not Disturb state.
func (c *Client) DoNotDisturb(ctx context.Context) (bool, error) {
	var enabled bool
	if err := c.call(ctx, "GetDoNotDisturb").Store(&enabled); err != nil {
		return false, fromDBusError(err)
	}
	return enabled, nil
}

// SetDoNotDisturb sets the Do Not Disturb state.
func (c *Client) SetDoNotDisturb(ctx context.Context, enabled bool) error {
	return fromDBusError(c.call(ctx, "SetDoNotDisturb", enabled).Err)
}

// ToggleDoNotDisturb flips Do Not Disturb and returns the new state.
func (c *Client) ToggleDoNotDisturb(ctx context.Context) (bool, error) {
	var enabled bool
	if err := c.call(ctx, "ToggleDoNotDisturb").Store(&enabled); err != nil {
		return false, fromDBusError(err)
	}
	return enabled, nil
}

// InvokeAction invokes actionKey on the live popup of a cached record.
func (c *Client) InvokeAction(ctx context.Context, cacheID uint32, actionKey string) error {
	return fromDBusError(c.call(ctx, "InvokeAction", cacheID, actionKey).Err)
}

// Watch delivers cache events to fn until ctx is done.
func (c *Client) Watch(ctx context.Context, fn func(CacheEvent)) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(CachePath),
		dbus.WithMatchInterface(CacheInterface),
	}
	if err := c.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return fmt.Errorf("failed to subscribe to cache signals: %w", err)
	}
	defer func() { _ = c.conn.RemoveMatchSignal(opts...) }()

	ch := make(chan *dbus.Signal, 32)
	c.conn.Signal(ch)
	defer c.conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return ErrDaemonUnavailable
			}
			if ev, ok := parseCacheSignal(sig); ok {
				fn(ev)
			}
		}
	}
}

// parseCacheSignal decodes a CacheService signal. ok is false for other
// signals and malformed bodies.
func parseCacheSignal(sig *dbus.Signal) (ev CacheEvent, ok bool) {
	if sig == nil || sig.Path != CachePath {
		return CacheEvent{}, false
	}
	member, found := strings.CutPrefix(sig.Name, CacheInterface+".")
	if !found {
		return CacheEvent{}, false
	}

	switch member {
	case "Added":
		if len(sig.Body) < 2 {
			return CacheEvent{}, false
		}
		id, ok1 := sig.Body[0].(uint32)
		doc, ok2 := sig.Body[1].(string)
		if !ok1 || !ok2 {
			return CacheEvent{}, false
		}
		rec, err := model.Deserialize([]byte(doc))
		if err != nil {
			return CacheEvent{}, false
		}
		return CacheEvent{Kind: EventAdded, CacheID: id, Record: &rec}, true
	case "Removed":
		if len(sig.Body) < 1 {
			return CacheEvent{}, false
		}
		id, ok := sig.Body[0].(uint32)
		return CacheEvent{Kind: EventRemoved, CacheID: id}, ok
	case "Cleared":
		return CacheEvent{Kind: EventCleared}, true
	case "CountChanged":
		if len(sig.Body) < 1 {
			return CacheEvent{}, false
		}
		n, ok := sig.Body[0].(uint32)
		return CacheEvent{Kind: EventCountChanged, Count: &n}, ok
	case "DoNotDisturbChanged":
		if len(sig.Body) < 1 {
			return CacheEvent{}, false
		}
		enabled, ok := sig.Body[0].(bool)
		return CacheEvent{Kind: EventDoNotDisturbChanged, DoNotDisturb: &enabled}, ok
	default:
		return CacheEvent{}, false
	}
}

// fromDBusError maps named D-Bus errors back to the cache sentinels.
func fromDBusError(err error) error {
	if err == nil {
		return nil
	}

	var name, msg string
	var valErr dbus.Error
	var ptrErr *dbus.Error
	switch {
	case errors.As(err, &valErr):
		name, msg = valErr.Name, valErr.Error()
	case errors.As(err, &ptrErr):
		name, msg = ptrErr.Name, ptrErr.Error()
	default:
		return err
	}

	switch name {
	case ErrorPersistence:
		return fmt.Errorf("%w: %s", store.ErrPersistence, msg)
	case ErrorNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
	case "org.freedesktop.DBus.Error.ServiceUnknown", "org.freedesktop.DBus.Error.NameHasNoOwner":
		return ErrDaemonUnavailable
	default:
		return err
	}
}
