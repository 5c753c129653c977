// Package daemon provides the main orchestration for nisfered.
// It wires the notification source, the cache and its bus bridge, popup
// expiry, persisted Do Not Disturb state and configuration hot reload.
package daemon
