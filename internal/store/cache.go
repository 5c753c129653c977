// Package store provides the notification cache and its durable storage.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jmylchreest/nisfere/internal/model"
)

// Source resolves daemon-assigned notification ids to their full data.
// Fetch returns an error wrapping ErrNotFound once the id is no longer live.
type Source interface {
	Fetch(sourceID uint32) (model.Notification, error)
}

// Observer receives cache lifecycle events. Nil callbacks are skipped.
// Callbacks run outside the cache lock and may call back into the cache.
type Observer struct {
	Added               func(r model.Record)
	Removed             func(cacheID uint32)
	Cleared             func()
	CountChanged        func(count int)
	DoNotDisturbChanged func(enabled bool)
}

type eventKind int

const (
	eventAdded eventKind = iota
	eventRemoved
	eventCleared
	eventCount
	eventDoNotDisturb
	eventRecordHooks
)

// String returns the event name used in logs.
func (k eventKind) String() string {
	switch k {
	case eventAdded:
		return "added"
	case eventRemoved:
		return "removed"
	case eventCleared:
		return "cleared"
	case eventCount:
		return "count_changed"
	case eventDoNotDisturb:
		return "dnd_changed"
	case eventRecordHooks:
		return "record_removed"
	default:
		return "unknown"
	}
}

type event struct {
	kind    eventKind
	record  model.Record
	cacheID uint32
	count   int
	enabled bool
	hooks   []func()
}

type subscription struct {
	id       uint64
	observer Observer
}

// Cache is the authoritative ordered set of retained notifications.
// All mutations are serialized; events are delivered in mutation order.
type Cache struct {
	mu          sync.Mutex
	source      Source
	persistence Persistence
	logger      *slog.Logger

	records []model.Record    // insertion order, oldest first
	index   map[uint32]int    // cache_id -> slice index
	hooks   map[uint32][]hook // cache_id -> removal hooks
	lastID  uint32
	dnd     bool

	subscribers []subscription
	nextSubID   uint64
	nextHookID  uint64

	pending     []event
	dispatching bool
	closed      bool
}

type hook struct {
	id uint64
	fn func()
}

// NewCache creates an empty Cache. Call Load to restore persisted records.
// A nil persistence keeps the cache in memory only.
func NewCache(source Source, persistence Persistence, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:      source,
		persistence: persistence,
		logger:      logger,
		records:     make([]model.Record, 0),
		index:       make(map[uint32]int),
		hooks:       make(map[uint32][]hook),
	}
}

// Load replaces the in-memory set with the persisted records, in file order.
// It emits a single count event when done.
func (c *Cache) Load() error {
	if c.persistence == nil {
		return nil
	}

	loaded, err := c.persistence.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}

	c.records = make([]model.Record, 0, len(loaded))
	c.index = make(map[uint32]int, len(loaded))
	c.hooks = make(map[uint32][]hook, len(loaded))
	for _, r := range loaded {
		if _, dup := c.index[r.CacheID]; dup {
			c.logger.Warn("skipping duplicate cached notification", "cache_id", r.CacheID)
			continue
		}
		c.index[r.CacheID] = len(c.records)
		c.records = append(c.records, r)
		c.hooks[r.CacheID] = nil
		c.lastID = max(c.lastID, r.CacheID)
	}
	count := len(c.records)
	c.queue(event{kind: eventCount, count: count})
	c.mu.Unlock()

	c.logger.Debug("cache loaded", "path", c.persistence.Path(), "count", count, "last_cache_id", c.lastID)
	c.flush()
	return nil
}

// OnSourceNotification captures a newly arrived source notification.
//
// With Do Not Disturb on it does nothing and reports admitted=false.
// A source miss returns an error wrapping ErrNotFound and leaves the cache
// untouched. A failed write returns the admitted record together with an
// error wrapping ErrPersistence; the in-memory insert is kept.
func (c *Cache) OnSourceNotification(sourceID uint32) (rec model.Record, admitted bool, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.Record{}, false, ErrCacheClosed
	}
	if c.dnd {
		c.mu.Unlock()
		c.logger.Debug("notification not cached: do not disturb", "source_id", sourceID)
		return model.Record{}, false, nil
	}

	n, err := c.source.Fetch(sourceID)
	if err != nil {
		c.mu.Unlock()
		if !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return model.Record{}, false, fmt.Errorf("source notification %d: %w", sourceID, err)
	}

	c.lastID++
	rec = model.NewRecord(c.lastID, n)
	c.index[rec.CacheID] = len(c.records)
	c.records = append(c.records, rec)
	c.hooks[rec.CacheID] = nil

	saveErr := c.saveLocked()
	c.queue(event{kind: eventAdded, record: rec})
	c.queue(event{kind: eventCount, count: len(c.records)})
	c.mu.Unlock()

	c.logger.Debug("notification cached", "cache_id", rec.CacheID, "source_id", sourceID, "app", rec.AppName)
	c.flush()
	return rec, true, saveErr
}

// Remove deletes the record with cacheID. Unknown ids are a silent no-op,
// so calling Remove twice is safe.
func (c *Cache) Remove(cacheID uint32) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}

	idx, exists := c.index[cacheID]
	if !exists {
		c.mu.Unlock()
		return nil
	}

	c.records = slices.Delete(c.records, idx, idx+1)
	c.rebuildIndexLocked()

	saveErr := c.saveLocked()

	hooks := c.hooks[cacheID]
	delete(c.hooks, cacheID)
	if len(hooks) > 0 {
		fns := make([]func(), len(hooks))
		for i, h := range hooks {
			fns[i] = h.fn
		}
		c.queue(event{kind: eventRecordHooks, cacheID: cacheID, hooks: fns})
	}
	c.queue(event{kind: eventRemoved, cacheID: cacheID})
	c.queue(event{kind: eventCount, count: len(c.records)})
	c.mu.Unlock()

	c.logger.Debug("notification removed from cache", "cache_id", cacheID)
	c.flush()
	return saveErr
}

// ClearAll empties the cache and persists an empty set. Observers get a
// single Cleared event instead of one Removed per record, and record
// hooks are dropped without firing.
func (c *Cache) ClearAll() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}

	cleared := len(c.records)
	c.records = make([]model.Record, 0)
	c.index = make(map[uint32]int)
	c.hooks = make(map[uint32][]hook)

	saveErr := c.saveLocked()
	c.queue(event{kind: eventCleared})
	c.queue(event{kind: eventCount, count: 0})
	c.mu.Unlock()

	c.logger.Debug("cache cleared", "count", cleared)
	c.flush()
	return saveErr
}

// SetDoNotDisturb toggles admission of new notifications. Records already
// cached are unaffected. An event is emitted only when the value changes.
func (c *Cache) SetDoNotDisturb(enabled bool) {
	c.mu.Lock()
	if c.dnd == enabled {
		c.mu.Unlock()
		return
	}
	c.dnd = enabled
	c.queue(event{kind: eventDoNotDisturb, enabled: enabled})
	c.mu.Unlock()

	c.logger.Info("do not disturb changed", "enabled", enabled)
	c.flush()
}

// ToggleDoNotDisturb flips Do Not Disturb and returns the new value.
func (c *Cache) ToggleDoNotDisturb() bool {
	c.mu.Lock()
	c.dnd = !c.dnd
	enabled := c.dnd
	c.queue(event{kind: eventDoNotDisturb, enabled: enabled})
	c.mu.Unlock()

	c.logger.Info("do not disturb changed", "enabled", enabled)
	c.flush()
	return enabled
}

// DoNotDisturb reports the current Do Not Disturb state.
func (c *Cache) DoNotDisturb() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dnd
}

// Count returns the number of cached records.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of the cached records in insertion order.
func (c *Cache) Records() []model.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.records)
}

// Get returns the record with cacheID.
func (c *Cache) Get(cacheID uint32) (model.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, exists := c.index[cacheID]
	if !exists {
		return model.Record{}, false
	}
	return c.records[idx], true
}

// LastCacheID returns the most recently allocated cache id (0 if none).
func (c *Cache) LastCacheID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

// Subscribe registers o and returns a function that unregisters it.
// The returned function is safe to call more than once.
func (c *Cache) Subscribe(o Observer) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscription{id: id, observer: o})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.subscribers = slices.DeleteFunc(c.subscribers, func(s subscription) bool {
				return s.id == id
			})
		})
	}
}

// WatchRecord registers fn to run when the record with cacheID is removed
// through Remove. ClearAll drops watchers without running them. ok is false
// if the record is not cached.
func (c *Cache) WatchRecord(cacheID uint32, fn func()) (cancel func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[cacheID]; !exists {
		return func() {}, false
	}

	c.nextHookID++
	id := c.nextHookID
	c.hooks[cacheID] = append(c.hooks[cacheID], hook{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if hooks, exists := c.hooks[cacheID]; exists {
				c.hooks[cacheID] = slices.DeleteFunc(hooks, func(h hook) bool { return h.id == id })
			}
		})
	}, true
}

// Close releases the persistence and drops all subscribers.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.subscribers = nil
	c.hooks = make(map[uint32][]hook)

	if c.persistence != nil {
		return c.persistence.Close()
	}
	return nil
}

func (c *Cache) rebuildIndexLocked() {
	c.index = make(map[uint32]int, len(c.records))
	for i, r := range c.records {
		c.index[r.CacheID] = i
	}
}

// saveLocked writes the full record set. Failures are logged and returned
// wrapped in ErrPersistence; the in-memory state is kept either way.
func (c *Cache) saveLocked() error {
	if c.persistence == nil {
		return nil
	}
	if err := c.persistence.Save(slices.Clone(c.records)); err != nil {
		c.logger.Error("failed to persist notification cache", "path", c.persistence.Path(), "error", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (c *Cache) queue(ev event) {
	c.pending = append(c.pending, ev)
}

// flush delivers queued events. Only one goroutine dispatches at a time;
// events queued by re-entrant or concurrent calls are drained by it in order.
func (c *Cache) flush() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true

	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		subscribers := slices.Clone(c.subscribers)
		c.mu.Unlock()

		c.deliver(ev, subscribers)

		c.mu.Lock()
	}

	c.pending = nil
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Cache) deliver(ev event, subscribers []subscription) {
	if ev.kind == eventRecordHooks {
		for _, fn := range ev.hooks {
			c.safeCall(ev.kind, fn)
		}
		return
	}

	for _, sub := range subscribers {
		o := sub.observer
		switch ev.kind {
		case eventAdded:
			if o.Added != nil {
				c.safeCall(ev.kind, func() { o.Added(ev.record) })
			}
		case eventRemoved:
			if o.Removed != nil {
				c.safeCall(ev.kind, func() { o.Removed(ev.cacheID) })
			}
		case eventCleared:
			if o.Cleared != nil {
				c.safeCall(ev.kind, o.Cleared)
			}
		case eventCount:
			if o.CountChanged != nil {
				c.safeCall(ev.kind, func() { o.CountChanged(ev.count) })
			}
		case eventDoNotDisturb:
			if o.DoNotDisturbChanged != nil {
				c.safeCall(ev.kind, func() { o.DoNotDisturbChanged(ev.enabled) })
			}
		}
	}
}

// safeCall runs an observer callback, recovering and logging panics.
func (c *Cache) safeCall(kind eventKind, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cache observer panicked", "event", kind.String(), "panic", r)
		}
	}()
	fn()
}
