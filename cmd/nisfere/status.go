package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/core"
	"github.com/jmylchreest/nisfere/internal/model"
)

var statusOpts struct {
	source string
	top    int // Apps listed in the tooltip
}

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text       string `json:"text"`
	Alt        string `json:"alt,omitempty"`
	Tooltip    string `json:"tooltip,omitempty"`
	Class      string `json:"class,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

// cacheFileInfo describes the durable cache file for the tooltip.
type cacheFileInfo struct {
	Size    int64
	ModTime time.Time
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Output Waybar-compatible JSON status",
	Long: `Output cache status in Waybar's custom module JSON format.

This is designed to be used with Waybar's custom module:

  "custom/notifications": {
    "exec": "nisfere status",
    "interval": 5,
    "return-type": "json",
    "on-click": "nisfere dnd toggle -q"
  }

The output includes:
  - text: Number of cached notifications
  - alt: dnd, critical, normal or empty
  - tooltip: Per-app breakdown and cache file details
  - class: Same as alt, for CSS`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusOpts.source, "source", "",
		"Record source (daemon, file; prefers the daemon if empty)")
	statusCmd.Flags().IntVar(&statusOpts.top, "top", 5,
		"Number of apps listed in the tooltip")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	records, err := fetchRecords(ctx, statusOpts.source)
	if err != nil {
		logger.Debug("failed to fetch records", "error", err)
		return outputStatus(cmd.OutOrStdout(), WaybarStatus{Text: "", Alt: "error", Class: "error", Tooltip: err.Error()})
	}

	dnd, err := newDnDBackend(ctx).Get()
	if err != nil {
		logger.Debug("failed to read do not disturb", "error", err)
	}

	var info *cacheFileInfo
	if fi, err := os.Stat(cachePath()); err == nil {
		info = &cacheFileInfo{Size: fi.Size(), ModTime: fi.ModTime()}
	}

	return outputStatus(cmd.OutOrStdout(), generateStatus(records, dnd, info, statusOpts.top))
}

// generateStatus creates a WaybarStatus from the cached records.
func generateStatus(records []model.Record, dnd bool, info *cacheFileInfo, top int) WaybarStatus {
	count := len(records)
	tooltip := buildTooltip(records, dnd, info, top)

	class := "normal"
	switch {
	case dnd:
		class = "dnd"
	case count == 0:
		return WaybarStatus{Text: "", Alt: "empty", Class: "empty", Tooltip: tooltip}
	case slices.ContainsFunc(records, func(r model.Record) bool { return r.Urgency == model.UrgencyCritical }):
		class = "critical"
	}

	text := ""
	if count > 0 {
		text = fmt.Sprintf("%d", count)
	}

	return WaybarStatus{
		Text:       text,
		Alt:        class,
		Tooltip:    tooltip,
		Class:      class,
		Percentage: min(count, 100),
	}
}

// buildTooltip lists the busiest apps and the cache file details.
func buildTooltip(records []model.Record, dnd bool, info *cacheFileInfo, top int) string {
	var lines []string

	switch len(records) {
	case 0:
		lines = append(lines, "No notifications")
	case 1:
		lines = append(lines, "1 notification")
	default:
		lines = append(lines, fmt.Sprintf("%d notifications", len(records)))
	}

	counts := core.CountByApp(records)
	apps := core.UniqueApps(records)
	slices.SortStableFunc(apps, func(a, b string) int { return counts[b] - counts[a] })
	for i, app := range apps {
		if top > 0 && i >= top {
			lines = append(lines, fmt.Sprintf("  and %d more apps", len(apps)-top))
			break
		}
		lines = append(lines, fmt.Sprintf("  %s: %d", app, counts[app]))
	}

	if dnd {
		lines = append(lines, "Do Not Disturb: on")
	}
	if info != nil {
		lines = append(lines, fmt.Sprintf("Cache: %s, updated %s", humanize.Bytes(uint64(info.Size)), humanize.Time(info.ModTime)))
	}

	return strings.Join(lines, "\n")
}

// outputStatus writes the status as JSON.
func outputStatus(w io.Writer, status WaybarStatus) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(status)
}
