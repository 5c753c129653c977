package dbus

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

const (
	// CacheBusName is the bus name claimed by nisfered for the cache service.
	CacheBusName = "io.github.jmylchreest.Nisfere"
	// CachePath is the cache service object path.
	CachePath = dbus.ObjectPath("/io/github/jmylchreest/Nisfere")
	// CacheInterface is the cache service interface name.
	CacheInterface = "io.github.jmylchreest.Nisfere1"

	// ErrorPersistence is returned when a mutation succeeded in memory but
	// could not be written to disk.
	ErrorPersistence = CacheInterface + ".Error.Persistence"
	// ErrorNotFound is returned for unknown cache ids where one is required.
	ErrorNotFound = CacheInterface + ".Error.NotFound"
	// ErrorFailed is returned for any other failure.
	ErrorFailed = CacheInterface + ".Error.Failed"
)

// CacheBackend is the cache as seen by the bus bridge. *store.Cache implements it.
type CacheBackend interface {
	Records() []model.Record
	Get(cacheID uint32) (model.Record, bool)
	Count() int
	Remove(cacheID uint32) error
	ClearAll() error
	DoNotDisturb() bool
	SetDoNotDisturb(enabled bool)
	ToggleDoNotDisturb() bool
	Subscribe(o store.Observer) (unsubscribe func())
}

// ActionHandler invokes an action on the live popup of a cached record.
type ActionHandler func(cacheID uint32, actionKey string) error

// signalEmitter is the part of *dbus.Conn used to broadcast cache events.
type signalEmitter interface {
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

// CacheService exports the notification cache on the session bus so bar
// widgets and the CLI can read it and react to its events.
type CacheService struct {
	cache  CacheBackend
	logger *slog.Logger

	onAction ActionHandler

	mu          sync.Mutex
	conn        *dbus.Conn
	emitter     signalEmitter
	unsubscribe func()
}

// NewCacheService creates a CacheService for cache.
func NewCacheService(cache CacheBackend, logger *slog.Logger) *CacheService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheService{cache: cache, logger: logger}
}

// SetActionHandler sets the handler used by InvokeAction.
func (s *CacheService) SetActionHandler(handler ActionHandler) {
	s.onAction = handler
}

// Start exports the service and claims CacheBusName.
func (s *CacheService) Start() error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := conn.Export(s, CachePath, CacheInterface); err != nil {
		return fmt.Errorf("failed to export cache service: %w", err)
	}

	node := &introspect.Node{
		Name: string(CachePath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    CacheInterface,
				Methods: cacheMethods(),
				Signals: cacheSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), CachePath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(CacheBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken (is another nisfered running?)", CacheBusName)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.attach(conn)

	s.logger.Info("cache service started", "bus_name", CacheBusName, "path", CachePath)
	return nil
}

// attach subscribes to the cache and forwards its events as signals.
func (s *CacheService) attach(emitter signalEmitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.emitter = emitter
	s.unsubscribe = s.cache.Subscribe(store.Observer{
		Added: func(r model.Record) {
			data, err := model.Serialize(r)
			if err != nil {
				s.logger.Warn("failed to serialize record for signal", "cache_id", r.CacheID, "error", err)
				return
			}
			s.emit("Added", r.CacheID, string(data))
		},
		Removed:             func(id uint32) { s.emit("Removed", id) },
		Cleared:             func() { s.emit("Cleared") },
		CountChanged:        func(n int) { s.emit("CountChanged", uint32(n)) },
		DoNotDisturbChanged: func(enabled bool) { s.emit("DoNotDisturbChanged", enabled) },
	})
}

func (s *CacheService) emit(member string, values ...any) {
	s.mu.Lock()
	emitter := s.emitter
	s.mu.Unlock()
	if emitter == nil {
		return
	}
	if err := emitter.Emit(CachePath, CacheInterface+"."+member, values...); err != nil {
		s.logger.Warn("failed to emit cache signal", "signal", member, "error", err)
	}
}

// Stop unsubscribes from the cache and releases the bus name.
func (s *CacheService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.emitter = nil

	if s.conn != nil {
		if _, err := s.conn.ReleaseName(CacheBusName); err != nil {
			s.logger.Warn("failed to release bus name", "error", err)
		}
		_ = s.conn.Export(nil, CachePath, CacheInterface)
		s.conn = nil
	}
	return nil
}

// List returns every cached record as a JSON array in insertion order.
// D-Bus method: List() -> s
func (s *CacheService) List() (string, *dbus.Error) {
	var buf bytes.Buffer
	if err := model.EncodeRecords(&buf, s.cache.Records()); err != nil {
		return "", toDBusError(err)
	}
	return buf.String(), nil
}

// Count returns the number of cached records.
// D-Bus method: Count() -> u
func (s *CacheService) Count() (uint32, *dbus.Error) {
	return uint32(s.cache.Count()), nil
}

// Remove deletes one record. Unknown ids are not an error.
// D-Bus method: Remove(u)
func (s *CacheService) Remove(cacheID uint32) *dbus.Error {
	s.logger.Debug("Remove called", "cache_id", cacheID)
	return toDBusError(s.cache.Remove(cacheID))
}

// ClearAll empties the cache.
// D-Bus method: ClearAll()
func (s *CacheService) ClearAll() *dbus.Error {
	s.logger.Debug("ClearAll called")
	return toDBusError(s.cache.ClearAll())
}

// GetDoNotDisturb reports the Do Not Disturb state.
// D-Bus method: GetDoNotDisturb() -> b
func (s *CacheService) GetDoNotDisturb() (bool, *dbus.Error) {
	return s.cache.DoNotDisturb(), nil
}

// SetDoNotDisturb sets the Do Not Disturb state.
// D-Bus method: SetDoNotDisturb(b)
func (s *CacheService) SetDoNotDisturb(enabled bool) *dbus.Error {
	s.cache.SetDoNotDisturb(enabled)
	return nil
}

// ToggleDoNotDisturb flips Do Not Disturb and returns the new state.
// D-Bus method: ToggleDoNotDisturb() -> b
func (s *CacheService) ToggleDoNotDisturb() (bool, *dbus.Error) {
	return s.cache.ToggleDoNotDisturb(), nil
}

// InvokeAction invokes actionKey on the live popup of a cached record.
// D-Bus method: InvokeAction(u, s)
func (s *CacheService) InvokeAction(cacheID uint32, actionKey string) *dbus.Error {
	if _, ok := s.cache.Get(cacheID); !ok {
		return dbus.NewError(ErrorNotFound, []any{fmt.Sprintf("no cached notification %d", cacheID)})
	}
	if s.onAction == nil {
		return dbus.NewError(ErrorFailed, []any{"actions are not supported in this mode"})
	}
	return toDBusError(s.onAction(cacheID, actionKey))
}

// toDBusError maps cache errors to named D-Bus errors.
func toDBusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrPersistence):
		return dbus.NewError(ErrorPersistence, []any{err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return dbus.NewError(ErrorNotFound, []any{err.Error()})
	default:
		return dbus.NewError(ErrorFailed, []any{err.Error()})
	}
}

func cacheMethods() []introspect.Method {
	return []introspect.Method{
		{Name: "List", Args: []introspect.Arg{{Name: "records", Type: "s", Direction: "out"}}},
		{Name: "Count", Args: []introspect.Arg{{Name: "count", Type: "u", Direction: "out"}}},
		{Name: "Remove", Args: []introspect.Arg{{Name: "cache_id", Type: "u", Direction: "in"}}},
		{Name: "ClearAll"},
		{Name: "GetDoNotDisturb", Args: []introspect.Arg{{Name: "enabled", Type: "b", Direction: "out"}}},
		{Name: "SetDoNotDisturb", Args: []introspect.Arg{{Name: "enabled", Type: "b", Direction: "in"}}},
		{Name: "ToggleDoNotDisturb", Args: []introspect.Arg{{Name: "enabled", Type: "b", Direction: "out"}}},
		{
			Name: "InvokeAction",
			Args: []introspect.Arg{
				{Name: "cache_id", Type: "u", Direction: "in"},
				{Name: "action_key", Type: "s", Direction: "in"},
			},
		},
	}
}

func cacheSignals() []introspect.Signal {
	return []introspect.Signal{
		{Name: "Added", Args: []introspect.Arg{{Name: "cache_id", Type: "u"}, {Name: "record", Type: "s"}}},
		{Name: "Removed", Args: []introspect.Arg{{Name: "cache_id", Type: "u"}}},
		{Name: "Cleared"},
		{Name: "CountChanged", Args: []introspect.Arg{{Name: "count", Type: "u"}}},
		{Name: "DoNotDisturbChanged", Args: []introspect.Arg{{Name: "enabled", Type: "b"}}},
	}
}
