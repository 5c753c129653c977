package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/nisfere/internal/config"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 100 * time.Millisecond

// ConfigWatcher reloads nisfered.toml when it changes. Invalid files are
// reported and the last good config stays current.
type ConfigWatcher struct {
	mu     sync.RWMutex
	logger *slog.Logger

	configPath string

	currentConfig *config.DaemonConfig

	onReloadCallback func(newConfig *config.DaemonConfig)
	onErrorCallback  func(err error)

	watcher  *fsnotify.Watcher
	debounce *time.Timer
	doneCh   chan struct{}
	running  bool
}

// NewConfigWatcher returns a watcher for path, or the default config path
// when path is empty.
// An empty path watches the default location.
func NewConfigWatcher(path string, logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = config.DaemonConfigPath()
	}
	return &ConfigWatcher{
		logger:     logger,
		configPath: filepath.Clean(path),
	}
}

// Path returns the watched config file.
func (w *ConfigWatcher) Path() string {
	return w.configPath
}

// SetReloadCallback sets the function that receives each valid config.
func (w *ConfigWatcher) SetReloadCallback(callback func(newConfig *config.DaemonConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReloadCallback = callback
}

// SetErrorCallback sets the function that receives load and validation errors.
func (w *ConfigWatcher) SetErrorCallback(callback func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onErrorCallback = callback
}

// Start begins watching the config file for changes. The parent directory
// is watched so editors that replace the file by rename are seen.
func (w *ConfigWatcher) Start(ctx context.Context, initialConfig *config.DaemonConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.currentConfig = initialConfig

	dir := filepath.Dir(w.configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.watcher = watcher
	w.doneCh = make(chan struct{})
	w.running = true

	go w.watchLoop(ctx, watcher, w.doneCh)

	w.logger.Debug("config watcher started", "path", w.configPath)
	return nil
}

// Stop ends the watch. It is safe to call more than once.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.debounce != nil {
		w.debounce.Stop()
	}
	watcher, done := w.watcher, w.doneCh
	w.mu.Unlock()

	_ = watcher.Close()
	<-done
	w.logger.Debug("config watcher stopped")
}

// GetCurrentConfig returns the last config that loaded and validated.
func (w *ConfigWatcher) GetCurrentConfig() *config.DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentConfig
}

func (w *ConfigWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(reloadDebounce, w.Reload)
}

// Reload loads and validates the config file now. A valid config replaces
// the current one and is passed to the reload callback; otherwise the
// error callback gets the failure and the current config stays in force.
func (w *ConfigWatcher) Reload() {
	w.mu.RLock()
	reloadCallback := w.onReloadCallback
	errorCallback := w.onErrorCallback
	w.mu.RUnlock()

	if _, err := os.Stat(w.configPath); os.IsNotExist(err) {
		// Removed or mid-rename; wait for the next event.
		return
	}

	newConfig, err := config.LoadDaemonConfig(w.configPath)
	if err != nil {
		w.logger.Warn("config file changed but validation failed", "path", w.configPath, "error", err)
		if errorCallback != nil {
			errorCallback(err)
		}
		return
	}

	w.mu.Lock()
	w.currentConfig = newConfig
	w.mu.Unlock()

	w.logger.Info("config reloaded successfully", "path", w.configPath)
	if reloadCallback != nil {
		reloadCallback(newConfig)
	}
}
