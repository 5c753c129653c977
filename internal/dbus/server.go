package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

// Names of the freedesktop notification service.
const (
	NotificationsName      = "org.freedesktop.Notifications"
	NotificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	NotificationsInterface = "org.freedesktop.Notifications"
)

const notificationsIntrospection = `<node>
  <interface name="org.freedesktop.Notifications">
    <method name="GetCapabilities">
      <arg name="capabilities" type="as" direction="out"/>
    </method>
    <method name="GetServerInformation">
      <arg name="name" type="s" direction="out"/>
      <arg name="vendor" type="s" direction="out"/>
      <arg name="version" type="s" direction="out"/>
      <arg name="spec_version" type="s" direction="out"/>
    </method>
    <method name="Notify">
      <arg name="app_name" type="s" direction="in"/>
      <arg name="replaces_id" type="u" direction="in"/>
      <arg name="app_icon" type="s" direction="in"/>
      <arg name="summary" type="s" direction="in"/>
      <arg name="body" type="s" direction="in"/>
      <arg name="actions" type="as" direction="in"/>
      <arg name="hints" type="a{sv}" direction="in"/>
      <arg name="expire_timeout" type="i" direction="in"/>
      <arg name="id" type="u" direction="out"/>
    </method>
    <method name="CloseNotification">
      <arg name="id" type="u" direction="in"/>
    </method>
    <signal name="NotificationClosed">
      <arg name="id" type="u"/>
      <arg name="reason" type="u"/>
    </signal>
    <signal name="ActionInvoked">
      <arg name="id" type="u"/>
      <arg name="action_key" type="s"/>
    </signal>
  </interface>` + introspect.IntrospectDeclarationString + `</node>`

var errNotConnected = errors.New("not connected to the session bus")

// NotificationHandler receives each notification once it is live. The
// notification can be fetched by id until it is closed.
type NotificationHandler func(n model.Notification)

// CloseHandler receives the id and reason of a closed notification.
type CloseHandler func(id uint32, reason CloseReason)

// NotificationServer owns org.freedesktop.Notifications and is the
// notification source in server mode. Live notifications stay in a table
// until closed; Fetch resolves ids against it.
type NotificationServer struct {
	conn   *dbus.Conn
	logger *slog.Logger
	now    func() time.Time

	lastID atomic.Uint32

	onNotify NotificationHandler
	onClose  CloseHandler

	mu      sync.RWMutex
	live    map[uint32]model.Notification
	info    ServerInfo
	claimed bool
}

// NewNotificationServer returns a server that has not claimed the bus yet.
func NewNotificationServer(logger *slog.Logger) *NotificationServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationServer{
		logger: logger,
		now:    time.Now,
		live:   make(map[uint32]model.Notification),
		info:   DefaultServerInfo(),
	}
}

// SetNotifyHandler sets the handler run for every new or replaced notification.
func (s *NotificationServer) SetNotifyHandler(handler NotificationHandler) {
	s.onNotify = handler
}

// SetCloseHandler sets the handler run when a live notification closes.
func (s *NotificationServer) SetCloseHandler(handler CloseHandler) {
	s.onClose = handler
}

// SetServerInfo sets what GetServerInformation reports.
func (s *NotificationServer) SetServerInfo(info ServerInfo) {
	s.info = info
}

// Start exports the service on the session bus and claims its name,
// replacing any current owner.
func (s *NotificationServer) Start() error {
	s.mu.RLock()
	claimed := s.claimed
	s.mu.RUnlock()
	if claimed {
		return fmt.Errorf("notification server already running")
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if err := s.export(conn); err != nil {
		return err
	}

	reply, err := conn.RequestName(NotificationsName, dbus.NameFlagDoNotQueue|dbus.NameFlagReplaceExisting)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", NotificationsName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%s is owned by another notification daemon", NotificationsName)
	}

	s.mu.Lock()
	s.conn = conn
	s.claimed = true
	s.mu.Unlock()

	s.logger.Info("notification server started", "name", NotificationsName)
	return nil
}

func (s *NotificationServer) export(conn *dbus.Conn) error {
	if err := conn.Export(s, NotificationsPath, NotificationsInterface); err != nil {
		return fmt.Errorf("failed to export %s: %w", NotificationsInterface, err)
	}
	err := conn.Export(introspect.Introspectable(notificationsIntrospection), NotificationsPath,
		"org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}
	return nil
}

// Stop gives up the bus name. The shared session connection stays open.
func (s *NotificationServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.claimed {
		return nil
	}
	s.claimed = false

	if _, err := s.conn.ReleaseName(NotificationsName); err != nil {
		s.logger.Warn("failed to release bus name", "name", NotificationsName, "error", err)
	}
	_ = s.conn.Export(nil, NotificationsPath, NotificationsInterface)

	s.logger.Info("notification server stopped")
	return nil
}

// GetCapabilities implements the D-Bus method of the same name.
func (s *NotificationServer) GetCapabilities() ([]string, *dbus.Error) {
	return ServerCapabilities, nil
}

// GetServerInformation implements the D-Bus method of the same name.
func (s *NotificationServer) GetServerInformation() (string, string, string, string, *dbus.Error) {
	return s.info.Name, s.info.Vendor, s.info.Version, s.info.SpecVersion, nil
}

// Notify implements the D-Bus method Notify(susssasa{sv}i) -> u.
func (s *NotificationServer) Notify(
	appName string,
	replacesID uint32,
	appIcon string,
	summary string,
	body string,
	actions []string,
	hints map[string]dbus.Variant,
	expireTimeout int32,
) (uint32, *dbus.Error) {
	return s.NotifyInternal(&DBusNotification{
		AppName:       appName,
		ReplacesID:    replacesID,
		AppIcon:       appIcon,
		Summary:       summary,
		Body:          body,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: expireTimeout,
	}), nil
}

// NotifyInternal makes a notification live without a bus round trip and
// returns its id. A non-zero ReplacesID keeps that id.
func (s *NotificationServer) NotifyInternal(raw *DBusNotification) uint32 {
	id := raw.ReplacesID
	if id == 0 {
		id = s.lastID.Add(1)
	}
	n := raw.ToModel(id, s.now())

	s.mu.Lock()
	s.live[id] = n
	s.mu.Unlock()

	s.logger.Debug("notification received", "id", id, "replaces_id", n.ReplacesID, "app", n.AppName, "summary", n.Summary)

	if s.onNotify != nil {
		s.onNotify(n)
	}
	return id
}

// CloseNotification implements the D-Bus method of the same name.
func (s *NotificationServer) CloseNotification(id uint32) *dbus.Error {
	if err := s.CloseWithReason(id, CloseReasonClosed); err != nil {
		s.logger.Warn("failed to signal closed notification", "id", id, "error", err)
	}
	return nil
}

// CloseWithReason takes id out of the live table, runs the close handler
// and emits NotificationClosed. Ids that are not live are ignored. The
// notification is closed even when the signal cannot be sent.
func (s *NotificationServer) CloseWithReason(id uint32, reason CloseReason) error {
	s.mu.Lock()
	_, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if s.onClose != nil {
		s.onClose(id, reason)
	}
	return s.emit("NotificationClosed", id, uint32(reason))
}

// InvokeAction emits ActionInvoked for a live notification. Non-resident
// notifications are dismissed afterwards.
func (s *NotificationServer) InvokeAction(id uint32, actionKey string) error {
	n, err := s.Fetch(id)
	if err != nil {
		return err
	}
	if err := s.emit("ActionInvoked", id, actionKey); err != nil {
		return err
	}
	if n.Resident {
		return nil
	}
	return s.CloseWithReason(id, CloseReasonDismissed)
}

func (s *NotificationServer) emit(signal string, values ...any) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("emit %s: %w", signal, errNotConnected)
	}
	if err := conn.Emit(NotificationsPath, NotificationsInterface+"."+signal, values...); err != nil {
		return fmt.Errorf("emit %s: %w", signal, err)
	}
	s.logger.Debug("emitted signal", "signal", signal, "args", values)
	return nil
}

// Fetch returns the live notification with id. After it closes the error
// wraps store.ErrNotFound.
func (s *NotificationServer) Fetch(id uint32) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.live[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("notification %d: %w", id, store.ErrNotFound)
	}
	return n, nil
}

// IsActive reports whether id is live.
func (s *NotificationServer) IsActive(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.live[id]
	return ok
}

// ActiveCount returns the number of live notifications.
func (s *NotificationServer) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}
