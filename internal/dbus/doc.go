// Package dbus connects nisfered to the session bus.
//
// NotificationServer implements org.freedesktop.Notifications and Monitor
// observes another daemon's traffic; both act as the notification source
// for the cache. CacheService exports the cache itself, and Client and
// Sender are the matching callers used by the CLI.
package dbus
