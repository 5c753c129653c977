package daemon

import (
	"log/slog"
	"sync"
	"time"

	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
	"github.com/jmylchreest/nisfere/internal/model"
)

// PopupStatus represents the status of a live notification's popup.
type PopupStatus int

const (
	// PopupStatusActive means the notification is live.
	PopupStatusActive PopupStatus = iota
	// PopupStatusExpired means the notification timed out.
	PopupStatusExpired
	// PopupStatusDismissed means the user dismissed the notification.
	PopupStatusDismissed
	// PopupStatusClosed means the notification was closed programmatically.
	PopupStatusClosed
)

// String returns the string representation of PopupStatus.
func (s PopupStatus) String() string {
	switch s {
	case PopupStatusActive:
		return "active"
	case PopupStatusExpired:
		return "expired"
	case PopupStatusDismissed:
		return "dismissed"
	case PopupStatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func statusForReason(reason nisbus.CloseReason) PopupStatus {
	switch reason {
	case nisbus.CloseReasonExpired:
		return PopupStatusExpired
	case nisbus.CloseReasonDismissed:
		return PopupStatusDismissed
	default:
		return PopupStatusClosed
	}
}

// PopupState tracks one live notification. It maps the protocol id to the
// cache id of the record captured from it.
type PopupState struct {
	SourceID  uint32      // Protocol notification id
	CacheID   uint32      // Cache record id (0 = not cached, e.g. under DnD)
	Status    PopupStatus // Current status
	CreatedAt time.Time   // When the notification was received
	ExpiresAt time.Time   // When the popup times out (zero = never)

	generation uint64
	timer      *time.Timer
	unwatch    func()
}

// Closer closes live protocol notifications. *dbus.NotificationServer
// implements it.
type Closer interface {
	CloseWithReason(id uint32, reason nisbus.CloseReason) error
}

// RecordWatcher notifies when a cached record is removed. *store.Cache
// implements it.
type RecordWatcher interface {
	WatchRecord(cacheID uint32, fn func()) (cancel func(), ok bool)
}

// TimeoutFunc returns the configured popup timeout for an urgency.
type TimeoutFunc func(urgency model.Urgency) time.Duration

// ResolveTimeout returns how long a notification stays live. A positive
// expire_timeout (milliseconds) wins, 0 never expires and a negative value
// uses the per-urgency default.
func ResolveTimeout(expireTimeout int32, urgency model.Urgency, defaults TimeoutFunc) time.Duration {
	switch {
	case expireTimeout > 0:
		return time.Duration(expireTimeout) * time.Millisecond
	case expireTimeout == 0:
		return 0
	case defaults != nil:
		return defaults(urgency)
	default:
		return 0
	}
}

// PopupTracker expires live notifications and closes the popup of records
// removed from the cache. It never changes cache state.
type PopupTracker struct {
	mu     sync.Mutex
	logger *slog.Logger

	closer   Closer
	watcher  RecordWatcher
	timeouts TimeoutFunc
	now      func() time.Time

	bySourceID map[uint32]*PopupState
	nextGen    uint64
	stopped    bool
}

// NewPopupTracker creates a PopupTracker. watcher may be nil.
func NewPopupTracker(closer Closer, watcher RecordWatcher, timeouts TimeoutFunc, logger *slog.Logger) *PopupTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PopupTracker{
		logger:     logger,
		closer:     closer,
		watcher:    watcher,
		timeouts:   timeouts,
		now:        time.Now,
		bySourceID: make(map[uint32]*PopupState),
	}
}

// SetTimeouts replaces the per-urgency defaults. Timers already armed keep
// their deadline.
func (t *PopupTracker) SetTimeouts(fn TimeoutFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeouts = fn
}

// Track registers a live notification. rec is the record captured from it,
// or nil when the cache did not admit it. Tracking an id again (a
// replacement) discards the previous state.
func (t *PopupTracker) Track(n model.Notification, rec *model.Record) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	old := t.bySourceID[n.ID]

	t.nextGen++
	gen := t.nextGen
	timeout := ResolveTimeout(n.ExpireTimeout, n.Urgency, t.timeouts)

	state := &PopupState{
		SourceID:   n.ID,
		Status:     PopupStatusActive,
		CreatedAt:  t.now(),
		generation: gen,
	}
	if rec != nil {
		state.CacheID = rec.CacheID
	}
	if timeout > 0 {
		state.ExpiresAt = state.CreatedAt.Add(timeout)
		state.timer = time.AfterFunc(timeout, func() { t.expire(n.ID, gen) })
	}
	t.bySourceID[n.ID] = state
	t.mu.Unlock()

	// The record watch takes the cache lock; never touch it while holding ours.
	if old != nil {
		old.release()
	}
	if rec != nil && t.watcher != nil {
		cacheID := rec.CacheID
		cancel, ok := t.watcher.WatchRecord(cacheID, func() { t.dismiss(n.ID, gen) })
		if !ok {
			t.logger.Debug("record removed before its popup was tracked", "cache_id", cacheID, "source_id", n.ID)
			return
		}

		t.mu.Lock()
		if cur, exists := t.bySourceID[n.ID]; exists && cur.generation == gen {
			cur.unwatch = cancel
			cancel = nil
		}
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}

	t.logger.Debug("popup tracked", "source_id", n.ID, "cache_id", state.CacheID, "timeout", timeout)
}

// Closed forgets a notification that has been closed for any reason.
func (t *PopupTracker) Closed(sourceID uint32, reason nisbus.CloseReason) {
	t.mu.Lock()
	state, exists := t.bySourceID[sourceID]
	if exists {
		delete(t.bySourceID, sourceID)
		state.Status = statusForReason(reason)
	}
	t.mu.Unlock()

	if exists {
		state.release()
		t.logger.Debug("popup closed", "source_id", sourceID, "cache_id", state.CacheID, "status", state.Status.String())
	}
}

// expire closes a notification whose timer fired, unless it was replaced.
func (t *PopupTracker) expire(sourceID uint32, gen uint64) {
	if !t.current(sourceID, gen) {
		return
	}
	if err := t.closer.CloseWithReason(sourceID, nisbus.CloseReasonExpired); err != nil {
		t.logger.Warn("failed to close expired notification", "source_id", sourceID, "error", err)
	}
}

// dismiss closes the popup of a record that left the cache.
func (t *PopupTracker) dismiss(sourceID uint32, gen uint64) {
	if !t.current(sourceID, gen) {
		return
	}
	if err := t.closer.CloseWithReason(sourceID, nisbus.CloseReasonDismissed); err != nil {
		t.logger.Warn("failed to close dismissed notification", "source_id", sourceID, "error", err)
	}
}

func (t *PopupTracker) current(sourceID uint32, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, exists := t.bySourceID[sourceID]
	return exists && state.generation == gen
}

// Get returns a copy of the state for a protocol id.
func (t *PopupTracker) Get(sourceID uint32) (PopupState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, exists := t.bySourceID[sourceID]
	if !exists {
		return PopupState{}, false
	}
	return PopupState{
		SourceID:  state.SourceID,
		CacheID:   state.CacheID,
		Status:    state.Status,
		CreatedAt: state.CreatedAt,
		ExpiresAt: state.ExpiresAt,
	}, true
}

// SourceIDForRecord returns the live protocol id captured as cacheID.
func (t *PopupTracker) SourceIDForRecord(cacheID uint32) (uint32, bool) {
	if cacheID == 0 {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, state := range t.bySourceID {
		if state.CacheID == cacheID {
			return id, true
		}
	}
	return 0, false
}

// ActiveCount returns the number of tracked notifications.
func (t *PopupTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bySourceID)
}

// Stop disarms every timer and forgets all notifications.
func (t *PopupTracker) Stop() {
	t.mu.Lock()
	states := t.bySourceID
	t.bySourceID = make(map[uint32]*PopupState)
	t.stopped = true
	t.mu.Unlock()

	for _, state := range states {
		state.release()
	}
}

// release stops the timer and drops the record watch.
func (s *PopupState) release() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.unwatch != nil {
		s.unwatch()
	}
}
