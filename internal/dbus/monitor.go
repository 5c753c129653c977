package dbus

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

const (
	// DefaultMonitorCapacity bounds how many live notifications a Monitor remembers.
	DefaultMonitorCapacity = 256
	// maxPendingCalls bounds Notify calls still waiting for their reply.
	maxPendingCalls = 64
)

var monitorRules = []string{
	"type='method_call',interface='org.freedesktop.Notifications',member='Notify'",
	"type='method_return'",
	"type='signal',interface='org.freedesktop.Notifications',member='NotificationClosed'",
}

type callKey struct {
	sender string
	serial uint32
}

// Monitor passively observes D-Bus notification traffic without claiming ownership.
// This allows running alongside another notification daemon (like dunst).
//
// A Notify call is paired with the owning daemon's reply to learn the real
// protocol id. The notification is then live until NotificationClosed is seen
// or it is evicted to stay within capacity.
type Monitor struct {
	conn     *dbus.Conn
	logger   *slog.Logger
	now      func() time.Time
	capacity int

	onNotify NotificationHandler
	onClose  CloseHandler

	mu      sync.Mutex
	pending map[callKey]*DBusNotification
	order   []callKey
	live    map[uint32]model.Notification
	liveIDs []uint32 // oldest first
}

// NewMonitor creates a new notification monitor. A capacity <= 0 uses
// DefaultMonitorCapacity.
func NewMonitor(capacity int, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultMonitorCapacity
	}
	return &Monitor{
		logger:   logger,
		now:      time.Now,
		capacity: capacity,
		pending:  make(map[callKey]*DBusNotification),
		live:     make(map[uint32]model.Notification),
	}
}

// SetNotifyHandler sets the callback for received notifications.
func (m *Monitor) SetNotifyHandler(handler NotificationHandler) {
	m.onNotify = handler
}

// SetCloseHandler sets the callback for observed NotificationClosed signals.
func (m *Monitor) SetCloseHandler(handler CloseHandler) {
	m.onClose = handler
}

// Start begins monitoring D-Bus for notification traffic.
// A monitor needs its own private connection; the bus stops routing
// ordinary traffic to it.
func (m *Monitor) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	m.conn = conn

	err = conn.BusObject().Call(
		"org.freedesktop.DBus.Monitoring.BecomeMonitor",
		0,
		monitorRules,
		uint32(0),
	).Err
	if err != nil {
		// BecomeMonitor might not be available (older D-Bus versions)
		m.logger.Warn("BecomeMonitor not available, trying AddMatch", "error", err)
		return m.startWithAddMatch()
	}

	m.logger.Info("started D-Bus monitor using BecomeMonitor")
	go m.processMessages()
	return nil
}

// startWithAddMatch uses the older AddMatch API for eavesdropping.
func (m *Monitor) startWithAddMatch() error {
	for _, rule := range monitorRules {
		err := m.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule+",eavesdrop='true'").Err
		if err != nil {
			return fmt.Errorf("failed to add match rule (eavesdrop may require permissions): %w", err)
		}
	}

	m.logger.Info("started D-Bus monitor using AddMatch with eavesdrop")
	go m.processMessages()
	return nil
}

// processMessages reads and processes D-Bus messages.
func (m *Monitor) processMessages() {
	ch := make(chan *dbus.Message, 100)
	m.conn.Eavesdrop(ch)

	for msg := range ch {
		m.handleMessage(msg)
	}
}

func (m *Monitor) handleMessage(msg *dbus.Message) {
	switch msg.Type {
	case dbus.TypeMethodCall:
		if headerString(msg, dbus.FieldInterface) == NotificationsInterface && headerString(msg, dbus.FieldMember) == "Notify" {
			m.handleNotifyCall(msg)
		}
	case dbus.TypeMethodReply:
		m.handleReply(msg)
	case dbus.TypeSignal:
		if headerString(msg, dbus.FieldInterface) == NotificationsInterface && headerString(msg, dbus.FieldMember) == "NotificationClosed" {
			m.handleClosed(msg)
		}
	}
}

// handleNotifyCall parks a Notify call until the daemon's reply carries its id.
func (m *Monitor) handleNotifyCall(msg *dbus.Message) {
	notification, err := parseNotifyBody(msg.Body)
	if err != nil {
		m.logger.Warn("malformed Notify call", "error", err)
		return
	}

	key := callKey{sender: headerString(msg, dbus.FieldSender), serial: msg.Serial()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pending[key]; !exists {
		m.order = append(m.order, key)
	}
	m.pending[key] = notification
	for len(m.order) > maxPendingCalls {
		delete(m.pending, m.order[0])
		m.order = m.order[1:]
	}
}

// handleReply completes a parked Notify call.
func (m *Monitor) handleReply(msg *dbus.Message) {
	serial, ok := msg.Headers[dbus.FieldReplySerial].Value().(uint32)
	if !ok {
		return
	}
	key := callKey{sender: headerString(msg, dbus.FieldDestination), serial: serial}

	m.mu.Lock()
	notification, ok := m.pending[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, key)
	m.order = slices.DeleteFunc(m.order, func(k callKey) bool { return k == key })

	if len(msg.Body) < 1 {
		m.mu.Unlock()
		return
	}
	id, ok := msg.Body[0].(uint32)
	if !ok || id == 0 {
		m.mu.Unlock()
		return
	}

	n := notification.ToModel(id, m.now())
	m.storeLocked(n)
	m.mu.Unlock()

	m.logger.Debug("captured notification", "app", n.AppName, "summary", n.Summary, "id", id)

	if m.onNotify != nil {
		m.onNotify(n)
	}
}

func (m *Monitor) handleClosed(msg *dbus.Message) {
	if len(msg.Body) < 2 {
		return
	}
	id, ok := msg.Body[0].(uint32)
	if !ok {
		return
	}
	reason, _ := msg.Body[1].(uint32)

	m.mu.Lock()
	_, existed := m.live[id]
	m.dropLocked(id)
	m.mu.Unlock()

	if existed && m.onClose != nil {
		m.onClose(id, CloseReason(reason))
	}
}

// storeLocked records n as live, evicting the oldest entries past capacity.
func (m *Monitor) storeLocked(n model.Notification) {
	if _, exists := m.live[n.ID]; exists {
		m.liveIDs = slices.DeleteFunc(m.liveIDs, func(id uint32) bool { return id == n.ID })
	}
	m.live[n.ID] = n
	m.liveIDs = append(m.liveIDs, n.ID)

	for len(m.liveIDs) > m.capacity {
		delete(m.live, m.liveIDs[0])
		m.liveIDs = m.liveIDs[1:]
	}
}

func (m *Monitor) dropLocked(id uint32) {
	if _, exists := m.live[id]; !exists {
		return
	}
	delete(m.live, id)
	m.liveIDs = slices.DeleteFunc(m.liveIDs, func(x uint32) bool { return x == id })
}

// Fetch returns the observed live notification with id. The error wraps
// store.ErrNotFound once it was closed or evicted.
func (m *Monitor) Fetch(id uint32) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.live[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("notification %d: %w", id, store.ErrNotFound)
	}
	return n, nil
}

// Stop stops the monitor.
func (m *Monitor) Stop() error {
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// parseNotifyBody decodes the Notify arguments
// (app_name, replaces_id, app_icon, summary, body, actions, hints, expire_timeout).
func parseNotifyBody(body []any) (*DBusNotification, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("expected 8 arguments, got %d", len(body))
	}

	notification := &DBusNotification{}

	var ok bool
	if notification.AppName, ok = body[0].(string); !ok {
		return nil, fmt.Errorf("invalid app_name type %T", body[0])
	}
	if notification.ReplacesID, ok = body[1].(uint32); !ok {
		return nil, fmt.Errorf("invalid replaces_id type %T", body[1])
	}
	if notification.AppIcon, ok = body[2].(string); !ok {
		return nil, fmt.Errorf("invalid app_icon type %T", body[2])
	}
	if notification.Summary, ok = body[3].(string); !ok {
		return nil, fmt.Errorf("invalid summary type %T", body[3])
	}
	if notification.Body, ok = body[4].(string); !ok {
		return nil, fmt.Errorf("invalid body type %T", body[4])
	}
	if actions, ok := body[5].([]string); ok {
		notification.Actions = actions
	}
	if hints, ok := body[6].(map[string]dbus.Variant); ok {
		notification.Hints = hints
	}
	if timeout, ok := body[7].(int32); ok {
		notification.ExpireTimeout = timeout
	}
	return notification, nil
}

func headerString(msg *dbus.Message, field dbus.HeaderField) string {
	v, ok := msg.Headers[field]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}
