package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/config"
	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
	"github.com/jmylchreest/nisfere/internal/store"
)

var dndOpts struct {
	quiet bool // Suppress output, return exit code only
}

// dndCmd represents the dnd command group.
var dndCmd = &cobra.Command{
	Use:   "dnd",
	Short: "Manage Do Not Disturb mode",
	Long: `Manage Do Not Disturb (DnD) mode for nisfered.

While DnD is enabled, nisfered still shows popups but new notifications are
not captured into the cache.

When nisfered is not running the state file is changed instead; nisfered
picks it up on its next start.

Use 'nisfere dnd status' to check the current state.
Use 'nisfere dnd on' to enable DnD mode.
Use 'nisfere dnd off' to disable DnD mode.
Use 'nisfere dnd toggle' to toggle DnD mode.

The exit code reflects the resulting state: 0 = off, 1 = on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to showing status
		return dndStatusRun(cmd, args)
	},
}

var dndOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enable Do Not Disturb mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dndChange(cmd, func(b dndBackend) (bool, error) { return true, b.Set(true) })
	},
}

var dndOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disable Do Not Disturb mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dndChange(cmd, func(b dndBackend) (bool, error) { return false, b.Set(false) })
	},
}

var dndToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle Do Not Disturb mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dndChange(cmd, func(b dndBackend) (bool, error) { return b.Toggle() })
	},
}

var dndStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Do Not Disturb status",
	RunE:  dndStatusRun,
}

func init() {
	dndCmd.AddCommand(dndOnCmd)
	dndCmd.AddCommand(dndOffCmd)
	dndCmd.AddCommand(dndToggleCmd)
	dndCmd.AddCommand(dndStatusCmd)

	for _, cmd := range []*cobra.Command{dndCmd, dndOnCmd, dndOffCmd, dndToggleCmd, dndStatusCmd} {
		cmd.Flags().BoolVarP(&dndOpts.quiet, "quiet", "q", false,
			"Suppress output, return exit code only (0=off, 1=on)")
	}

	rootCmd.AddCommand(dndCmd)
}

// dndBackend reads and changes Do Not Disturb.
type dndBackend interface {
	Get() (bool, error)
	Set(enabled bool) error
	Toggle() (bool, error)
}

// daemonDnD goes through the running daemon.
type daemonDnD struct {
	ctx    context.Context
	client cacheClient
}

func (d daemonDnD) Get() (bool, error)     { return d.client.DoNotDisturb(d.ctx) }
func (d daemonDnD) Set(enabled bool) error { return d.client.SetDoNotDisturb(d.ctx, enabled) }
func (d daemonDnD) Toggle() (bool, error)  { return d.client.ToggleDoNotDisturb(d.ctx) }

// fileDnD edits the state file nisfered restores on start.
type fileDnD struct {
	file *store.StateFile
}

func (f fileDnD) load() (*store.SharedState, error) {
	state, _, err := f.file.Load()
	return state, err
}

func (f fileDnD) Get() (bool, error) {
	state, err := f.load()
	if err != nil {
		return false, err
	}
	return state.DnDEnabled, nil
}

func (f fileDnD) Set(enabled bool) error {
	state, err := f.load()
	if err != nil {
		return err
	}
	state.SetDnD(enabled, store.DnDTriggerUser, "dnd "+onOff(enabled), "cli")
	return f.file.Save(state)
}

func (f fileDnD) Toggle() (bool, error) {
	enabled, err := f.Get()
	if err != nil {
		return false, err
	}
	return !enabled, f.Set(!enabled)
}

// newDnDBackend prefers the daemon and falls back to the state file.
func newDnDBackend(ctx context.Context) dndBackend {
	client, err := connect(ctx)
	if err != nil {
		logger.Debug("nisfered unavailable, using state file", "error", err)
		return fileDnD{file: store.NewStateFile(config.StatePath())}
	}
	return daemonDnD{ctx: ctx, client: client}
}

func dndChange(cmd *cobra.Command, change func(dndBackend) (bool, error)) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	enabled, err := change(newDnDBackend(ctx))
	if err != nil {
		if !dndOpts.quiet {
			fmt.Fprintf(os.Stderr, "Failed to change Do Not Disturb: %v\n", err)
		}
		return err
	}

	if !dndOpts.quiet {
		printDnD(cmd.OutOrStdout(), enabled)
	}
	exitForDnD(enabled)
	return nil
}

func dndStatusRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	backend := newDnDBackend(ctx)
	enabled, err := backend.Get()
	if err != nil {
		if !dndOpts.quiet {
			fmt.Fprintf(os.Stderr, "Failed to read Do Not Disturb: %v\n", err)
		}
		return err
	}

	if !dndOpts.quiet {
		out := cmd.OutOrStdout()
		printDnD(out, enabled)
		if _, isFile := backend.(fileDnD); isFile {
			fmt.Fprintln(out, "  nisfered is not running")
		}

		state, ok, err := store.NewStateFile(config.StatePath()).Load()
		if err == nil && ok {
			printTransition(out, state.DnDLastTransition)
		}
	}

	exitForDnD(enabled)
	return nil
}

func printDnD(w io.Writer, enabled bool) {
	if enabled {
		fmt.Fprintln(w, "Do Not Disturb: enabled")
	} else {
		fmt.Fprintln(w, "Do Not Disturb: disabled")
	}
}

// printTransition shows details of the last recorded DnD change.
func printTransition(w io.Writer, t *store.DnDTransition) {
	if t == nil {
		return
	}
	fmt.Fprintf(w, "  Last change: %s\n", formatTransitionTime(t.Timestamp))
	fmt.Fprintf(w, "  Trigger: %s\n", t.Trigger)
	if t.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", t.Reason)
	}
	if t.Source != "" {
		fmt.Fprintf(w, "  Source: %s\n", t.Source)
	}
}

// exitForDnD exits with status 1 when DnD is on. Replaced in tests.
var exitForDnD = func(enabled bool) {
	if enabled {
		os.Exit(1)
	}
}

// formatTransitionTime formats a unix timestamp as a human-readable relative time.
func formatTransitionTime(timestamp int64) string {
	return humanize.Time(time.Unix(timestamp, 0))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// isUnavailable reports whether err means nisfered is not running.
func isUnavailable(err error) bool {
	return errors.Is(err, nisbus.ErrDaemonUnavailable)
}
