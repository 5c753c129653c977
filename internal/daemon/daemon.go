package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jmylchreest/nisfere/internal/config"
	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

// Options configures a Daemon.
type Options struct {
	Config     *config.DaemonConfig // nil uses defaults
	ConfigPath string               // Watched for hot reload; empty disables it
	StatePath  string               // Empty uses config.StatePath()
	LevelVar   *slog.LevelVar       // Updated on reload when set
	Logger     *slog.Logger
	Version    string
}

// Daemon owns the notification cache and everything wired around it.
type Daemon struct {
	logger   *slog.Logger
	levelVar *slog.LevelVar

	cfgMu sync.RWMutex
	cfg   *config.DaemonConfig

	persistence *store.JSONFilePersistence
	cache       *store.Cache

	stateMu   sync.Mutex
	stateFile *store.StateFile
	shared    *store.SharedState

	server   *nisbus.NotificationServer // server mode
	monitor  *nisbus.Monitor            // monitor mode
	service  *nisbus.CacheService
	popups   *PopupTracker
	notifier *InternalNotifier
	watcher  *ConfigWatcher

	unsubscribe func()
	stopOnce    sync.Once
}

// New builds the daemon and loads the cache. Nothing touches the bus
// until Start. A cache that cannot be read is fatal.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultDaemonConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	statePath := opts.StatePath
	if statePath == "" {
		statePath = config.StatePath()
	}

	d := &Daemon{
		logger:    logger,
		levelVar:  opts.LevelVar,
		cfg:       cfg,
		stateFile: store.NewStateFile(statePath),
		notifier:  NewInternalNotifier(logger.With("component", "notifier")),
	}
	if d.levelVar != nil {
		d.levelVar.Set(cfg.LogLevel())
	}

	if cfg.Cache.CreateIfMissing {
		created, err := store.EnsureFile(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to provision notification cache: %w", err)
		}
		if created {
			logger.Info("created empty notification cache", "path", cfg.Cache.Path)
		}
	}
	d.persistence = store.NewJSONFilePersistence(cfg.Cache.Path)

	var source store.Source
	switch config.SourceMode(cfg.Source.Mode) {
	case config.SourceModeMonitor:
		d.monitor = nisbus.NewMonitor(cfg.Source.MonitorCapacity, logger.With("component", "monitor"))
		d.monitor.SetNotifyHandler(d.handleNotification)
		d.monitor.SetCloseHandler(func(id uint32, reason nisbus.CloseReason) {
			logger.Debug("monitored notification closed", "source_id", id, "reason", reason.String())
		})
		source = d.monitor
	default:
		d.server = nisbus.NewNotificationServer(logger.With("component", "server"))
		d.server.SetServerInfo(nisbus.ServerInfo{
			Name:        "nisfered",
			Vendor:      "nisfere",
			Version:     versionOr(opts.Version),
			SpecVersion: "1.2",
		})
		d.server.SetNotifyHandler(d.handleNotification)
		d.server.SetCloseHandler(d.handleClose)
		d.notifier.SetNotifyHandler(d.server.NotifyInternal)
		source = d.server
	}
	d.notifier.SetEnabled(cfg.Notify.Internal)

	d.cache = store.NewCache(source, d.persistence, logger.With("component", "cache"))
	if err := d.cache.Load(); err != nil {
		return nil, fmt.Errorf("failed to load notification cache: %w", err)
	}
	if d.server != nil {
		d.popups = NewPopupTracker(d.server, d.cache, timeoutsFrom(cfg), logger.With("component", "popups"))
	}

	d.restoreDoNotDisturb(cfg)

	d.unsubscribe = d.cache.Subscribe(store.Observer{
		Added:               d.onAdded,
		DoNotDisturbChanged: d.onDoNotDisturbChanged,
	})

	d.service = nisbus.NewCacheService(d.cache, logger.With("component", "bridge"))
	d.service.SetActionHandler(d.invokeAction)

	if opts.ConfigPath != "" {
		d.watcher = NewConfigWatcher(opts.ConfigPath, logger.With("component", "config"))
		d.watcher.SetReloadCallback(d.applyConfig)
		d.watcher.SetErrorCallback(func(err error) { d.notifier.NotifyConfigError(err) })
	}

	logger.Info("notification cache loaded",
		"path", d.persistence.Path(),
		"count", d.cache.Count(),
		"last_cache_id", d.cache.LastCacheID(),
		"dnd", d.cache.DoNotDisturb(),
	)
	return d, nil
}

func versionOr(v string) string {
	if v == "" {
		return nisbus.DefaultServerInfo().Version
	}
	return v
}

func timeoutsFrom(cfg *config.DaemonConfig) TimeoutFunc {
	return func(u model.Urgency) time.Duration {
		return cfg.GetTimeoutForUrgency(u)
	}
}

// restoreDoNotDisturb applies the persisted DnD state, falling back to the
// configured initial state when no state file exists yet.
func (d *Daemon) restoreDoNotDisturb(cfg *config.DaemonConfig) {
	shared, ok, err := d.stateFile.Load()
	if err != nil {
		d.logger.Warn("failed to load shared state", "path", d.stateFile.Path(), "error", err)
		shared = store.DefaultSharedState()
	}
	if !ok {
		shared.SetDnD(cfg.DnD.Enabled, store.DnDTriggerConfig, "initial state", "nisfered")
		if err := d.stateFile.Save(shared); err != nil {
			d.logger.Warn("failed to save shared state", "path", d.stateFile.Path(), "error", err)
		}
	}

	d.stateMu.Lock()
	d.shared = shared
	d.stateMu.Unlock()

	d.cache.SetDoNotDisturb(shared.DnDEnabled)
}

// Start claims the bus names and begins watching the config file.
func (d *Daemon) Start(ctx context.Context) error {
	switch {
	case d.server != nil:
		if err := d.server.Start(); err != nil {
			return fmt.Errorf("failed to start notification server: %w", err)
		}
	case d.monitor != nil:
		if err := d.monitor.Start(); err != nil {
			return fmt.Errorf("failed to start notification monitor: %w", err)
		}
	}

	if err := d.service.Start(); err != nil {
		d.stopSource()
		return fmt.Errorf("failed to start cache service: %w", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(ctx, d.Config()); err != nil {
			d.logger.Warn("config hot reload disabled", "error", err)
		}
	}

	d.logger.Info("nisfered ready", "mode", d.Config().Source.Mode, "count", d.cache.Count())
	return nil
}

// Run starts the daemon and blocks until ctx is done, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		_ = d.Stop()
		return err
	}
	<-ctx.Done()
	return d.Stop()
}

// Stop releases the bus names, persists shared state and closes the cache.
// It is safe to call more than once.
func (d *Daemon) Stop() error {
	var errs []error
	d.stopOnce.Do(func() {
		if d.watcher != nil {
			d.watcher.Stop()
		}
		if err := d.service.Stop(); err != nil {
			errs = append(errs, err)
		}
		if d.popups != nil {
			d.popups.Stop()
		}
		if err := d.stopSource(); err != nil {
			errs = append(errs, err)
		}
		if d.unsubscribe != nil {
			d.unsubscribe()
		}

		d.stateMu.Lock()
		if err := d.stateFile.Save(d.shared); err != nil {
			errs = append(errs, fmt.Errorf("failed to save shared state: %w", err))
		}
		d.stateMu.Unlock()

		if err := d.cache.Close(); err != nil {
			errs = append(errs, err)
		}
		d.logger.Info("nisfered stopped")
	})
	return errors.Join(errs...)
}

func (d *Daemon) stopSource() error {
	switch {
	case d.server != nil:
		return d.server.Stop()
	case d.monitor != nil:
		return d.monitor.Stop()
	}
	return nil
}

// Cache returns the notification cache.
func (d *Daemon) Cache() *store.Cache {
	return d.cache
}

// Popups returns the popup tracker, or nil in monitor mode.
func (d *Daemon) Popups() *PopupTracker {
	return d.popups
}

// Config returns the configuration currently in force.
func (d *Daemon) Config() *config.DaemonConfig {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// SharedState returns a copy of the persisted daemon state.
func (d *Daemon) SharedState() store.SharedState {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	s := *d.shared
	if s.DnDLastTransition != nil {
		t := *s.DnDLastTransition
		s.DnDLastTransition = &t
	}
	return s
}

// handleNotification captures a live notification into the cache and
// starts tracking its popup.
func (d *Daemon) handleNotification(n model.Notification) {
	rec, admitted, err := d.cache.OnSourceNotification(n.ID)
	switch {
	case errors.Is(err, store.ErrPersistence):
		d.logger.Warn("notification cached but not saved", "cache_id", rec.CacheID, "source_id", n.ID, "error", err)
		d.notifier.NotifyPersistenceError(d.persistence.Path(), err)
	case err != nil:
		d.logger.Warn("failed to cache notification", "source_id", n.ID, "error", err)
	}

	if d.popups == nil {
		return
	}
	if admitted {
		d.popups.Track(n, &rec)
	} else {
		d.popups.Track(n, nil)
	}
}

// handleClose is the server's close handler. Closing never touches the cache.
func (d *Daemon) handleClose(id uint32, reason nisbus.CloseReason) {
	if d.popups != nil {
		d.popups.Closed(id, reason)
	}
}

// invokeAction runs an action of a cached record on its live notification.
func (d *Daemon) invokeAction(cacheID uint32, actionKey string) error {
	rec, ok := d.cache.Get(cacheID)
	if !ok {
		return fmt.Errorf("record %d: %w", cacheID, store.ErrNotFound)
	}
	if !slices.ContainsFunc(rec.Actions, func(a model.Action) bool { return a.Identifier == actionKey }) {
		return fmt.Errorf("record %d has no action %q", cacheID, actionKey)
	}
	if d.server == nil || d.popups == nil {
		return errors.New("actions are only available in server mode")
	}

	sourceID, live := d.popups.SourceIDForRecord(cacheID)
	if !live {
		return fmt.Errorf("record %d is no longer live: %w", cacheID, store.ErrNotFound)
	}

	d.logger.Debug("invoking action", "cache_id", cacheID, "source_id", sourceID, "action", actionKey)
	return d.server.InvokeAction(sourceID, actionKey)
}

func (d *Daemon) onAdded(model.Record) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.shared.UpdateLastNotification()
}

func (d *Daemon) onDoNotDisturbChanged(enabled bool) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.shared.SetDnD(enabled, store.DnDTriggerUser, "", "nisfered")
	if err := d.stateFile.Save(d.shared); err != nil {
		d.logger.Warn("failed to save shared state", "path", d.stateFile.Path(), "error", err)
	}
}

// applyConfig puts a reloaded config into force. Timeouts, log level and
// internal notifications change live; cache and source settings need a restart.
func (d *Daemon) applyConfig(newCfg *config.DaemonConfig) {
	d.cfgMu.Lock()
	old := d.cfg
	d.cfg = newCfg
	d.cfgMu.Unlock()

	if d.levelVar != nil {
		d.levelVar.Set(newCfg.LogLevel())
	}
	if d.popups != nil {
		d.popups.SetTimeouts(timeoutsFrom(newCfg))
	}
	d.notifier.SetEnabled(newCfg.Notify.Internal)

	for field, changed := range map[string]bool{
		"cache.path":              old.Cache.Path != newCfg.Cache.Path,
		"cache.create_if_missing": old.Cache.CreateIfMissing != newCfg.Cache.CreateIfMissing,
		"source.mode":             old.Source.Mode != newCfg.Source.Mode,
		"source.monitor_capacity": old.Source.MonitorCapacity != newCfg.Source.MonitorCapacity,
	} {
		if changed {
			d.logger.Warn("config change requires a restart", "field", field)
		}
	}

	d.logger.Info("config applied",
		"log_level", newCfg.Log.Level,
		"timeout_low", newCfg.Timeouts.Low.Duration(),
		"timeout_normal", newCfg.Timeouts.Normal.Duration(),
		"timeout_critical", newCfg.Timeouts.Critical.Duration(),
	)
	d.notifier.NotifyConfigReloaded()
}
