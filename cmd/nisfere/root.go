// Package main provides the CLI entrypoint for nisfere.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/adapter/input"
	"github.com/jmylchreest/nisfere/internal/config"
	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
	"github.com/jmylchreest/nisfere/internal/model"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// requestTimeout bounds every call to the daemon.
const requestTimeout = 10 * time.Second

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
		cacheFile  string
	}
	logger = slog.Default()
)

// cacheClient is the part of *dbus.Client the commands use.
type cacheClient interface {
	input.DaemonLister
	Count(ctx context.Context) (int, error)
	Remove(ctx context.Context, cacheID uint32) error
	ClearAll(ctx context.Context) error
	DoNotDisturb(ctx context.Context) (bool, error)
	SetDoNotDisturb(ctx context.Context, enabled bool) error
	ToggleDoNotDisturb(ctx context.Context) (bool, error)
	InvokeAction(ctx context.Context, cacheID uint32, actionKey string) error
	Watch(ctx context.Context, fn func(nisbus.CacheEvent)) error
}

// newClient connects to nisfered. Replaced in tests.
var newClient = func() (cacheClient, error) {
	client, err := nisbus.NewClient()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nisfere",
	Short: "Notification cache client for the nisfere panel",
	Long: `nisfere reads and manages the notification cache kept by nisfered.

Every notification nisfered receives is captured into a durable cache that
survives its popup. Use nisfere to list, remove and clear cached
notifications, toggle Do Not Disturb, follow cache events and invoke
notification actions.

When nisfered is not running, read-only commands fall back to the cache file.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if isUnavailable(err) {
			fmt.Fprintln(os.Stderr, "Start nisfered, or use --source file for read-only commands.")
		}
		stop()
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/nisfere/config.toml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.cacheFile, "cache-file", "",
		"Path to the cache file read when nisfered is not running (default: from nisfered.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// getConfig returns the CLI config, falling back to defaults before
// PersistentPreRunE has run.
func getConfig() *config.Config {
	if cfg == nil {
		return config.DefaultConfig()
	}
	return cfg
}

// cachePath resolves the durable cache file: --cache-file, then the
// daemon's configured cache.path.
func cachePath() string {
	if globalOpts.cacheFile != "" {
		return globalOpts.cacheFile
	}
	daemonCfg, err := config.LoadDaemonConfig("")
	if err != nil {
		slog.Warn("failed to read daemon config, using default cache path", "error", err)
		return config.DefaultCachePath()
	}
	return daemonCfg.Cache.Path
}

// connect returns a client for a running nisfered, or an error wrapping
// nisbus.ErrDaemonUnavailable.
func connect(ctx context.Context) (cacheClient, error) {
	client, err := newClient()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", nisbus.ErrDaemonUnavailable, err)
	}
	if !client.Available(ctx) {
		return nil, nisbus.ErrDaemonUnavailable
	}
	return client, nil
}

// fetchRecords reads records from the named source. The daemon client is
// optional; without a session bus the cache file is read.
func fetchRecords(ctx context.Context, sourceName string) ([]model.Record, error) {
	opts := input.Options{CachePath: cachePath()}
	if client, err := newClient(); err != nil {
		slog.Debug("session bus unavailable", "error", err)
	} else {
		opts.Daemon = client
	}

	source, err := input.NewSource(ctx, sourceName, opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("fetching records", "source", source.Name())

	records, err := source.Records(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("fetched records", "source", source.Name(), "count", len(records))
	return records, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, requestTimeout)
}
