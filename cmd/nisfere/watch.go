package main

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/adapter/output"
	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
)

var watchOpts struct {
	format string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow cache events",
	Long: `Print cache events as nisfered emits them, one per line, until
interrupted.

Plain output:
  added 12 <slack> Build failed
  count 5
  removed 9
  cleared
  dnd on

JSON output emits one object per line, suitable for bar widgets:
  nisfere watch --format json | jq -c .`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchOpts.format, "format", "f", "plain",
		"Event format (plain, json)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(watchOpts.format)
	if err != nil {
		return err
	}

	connectCtx, cancel := commandContext(cmd)
	client, err := connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}

	formatter := output.NewEventFormatter(format, output.DefaultFormatterOptions())
	out := cmd.OutOrStdout()

	logger.Debug("watching cache events")
	return client.Watch(cmd.Context(), func(ev nisbus.CacheEvent) {
		if err := formatter.FormatEvent(out, ev); err != nil {
			logger.Warn("failed to write event", "event", ev.Kind, "error", err)
		}
	})
}
