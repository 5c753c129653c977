package daemon

import (
	"log/slog"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"

	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
)

// NotificationLevel is the severity of a daemon-raised notification.
type NotificationLevel int

const (
	// NotificationLevelInfo maps to low urgency.
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning maps to normal urgency.
	NotificationLevelWarning
	// NotificationLevelError maps to critical urgency.
	NotificationLevelError
)

// NotifyFunc delivers an internal notification and returns its protocol id.
type NotifyFunc func(notification *nisbus.DBusNotification) uint32

// InternalNotifier raises notifications about nisfered itself. Repeats of
// the same key within the minimum interval are dropped.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time

	notifyHandler NotifyFunc

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration

	enabled bool
}

// NewInternalNotifier returns an enabled notifier with no handler.
func NewInternalNotifier(logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:         logger,
		now:            time.Now,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    30 * time.Second,
		enabled:        true,
	}
}

// SetNotifyHandler sets the function used to deliver notifications.
func (n *InternalNotifier) SetNotifyHandler(handler NotifyFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifyHandler = handler
}

// SetEnabled turns daemon-raised notifications on or off.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between notifications with the same key.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Notify sends an internal notification if not rate-limited. It returns
// the protocol id, or 0 when nothing was sent.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) uint32 {
	n.mu.Lock()
	if !n.enabled {
		n.mu.Unlock()
		return 0
	}

	handler := n.notifyHandler
	if handler == nil {
		n.mu.Unlock()
		n.logger.Debug("internal notification skipped: no handler", "summary", summary)
		return 0
	}

	now := n.now()
	if lastTime, ok := n.lastNotifyTime[key]; ok && now.Sub(lastTime) < n.minInterval {
		n.mu.Unlock()
		n.logger.Debug("internal notification rate-limited", "key", key, "summary", summary)
		return 0
	}
	n.lastNotifyTime[key] = now
	n.mu.Unlock()

	urgency := byte(1)
	icon := "dialog-warning"
	switch level {
	case NotificationLevelInfo:
		urgency, icon = 0, "dialog-information"
	case NotificationLevelError:
		urgency, icon = 2, "dialog-error"
	}

	notification := &nisbus.DBusNotification{
		AppName: "nisfered",
		AppIcon: icon,
		Summary: summary,
		Body:    body,
		Hints: map[string]godbus.Variant{
			"urgency":       godbus.MakeVariant(urgency),
			"category":      godbus.MakeVariant("device"),
			"desktop-entry": godbus.MakeVariant("nisfered"),
		},
		ExpireTimeout: 5000,
	}

	n.logger.Debug("sending internal notification", "key", key, "summary", summary, "level", level)

	// The handler may re-enter Notify through the cache, so it runs unlocked.
	return handler(notification)
}

// NotifyConfigReloaded reports a successful hot reload.
func (n *InternalNotifier) NotifyConfigReloaded() uint32 {
	return n.Notify(
		"config-reload",
		"Configuration Reloaded",
		"nisfered configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError reports a config file that failed to load or validate.
func (n *InternalNotifier) NotifyConfigError(err error) uint32 {
	return n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyPersistenceError sends a notification that the cache could not be
// written. The in-memory cache is still current.
func (n *InternalNotifier) NotifyPersistenceError(path string, err error) uint32 {
	return n.Notify(
		"persistence-error",
		"Notification Cache Not Saved",
		"Could not write "+path+": "+err.Error(),
		NotificationLevelError,
	)
}
