package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/adapter/input"
)

var countOpts listOptions

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of cached notifications",
	Long: `Print the number of cached notifications.

Filters narrow the count the same way they narrow "nisfere list".

Examples:
  nisfere count
  nisfere count --urgency critical`,
	Args: cobra.NoArgs,
	RunE: runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)

	countCmd.Flags().StringVar(&countOpts.source, "source", "",
		"Record source (daemon, file, stdin; prefers the daemon if empty)")
	countCmd.Flags().StringVar(&countOpts.app, "app", "",
		"Count only this application (exact or glob)")
	countCmd.Flags().StringVar(&countOpts.urgency, "urgency", "",
		"Count only this urgency (low, normal, critical)")
	countCmd.Flags().StringVar(&countOpts.filter, "filter", "",
		"Filter expression (see nisfere list --help)")
}

func runCount(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	unfiltered := countOpts.app == "" && countOpts.urgency == "" && countOpts.filter == ""
	if unfiltered && (countOpts.source == input.SourceAuto || countOpts.source == input.SourceDaemon) {
		if client, err := connect(ctx); err == nil {
			n, err := client.Count(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		} else if countOpts.source == input.SourceDaemon {
			return err
		}
	}

	records, err := fetchRecords(ctx, countOpts.source)
	if err != nil {
		return err
	}
	selected, err := selectRecords(records, countOpts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), len(selected))
	return err
}
