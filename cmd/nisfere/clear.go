package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every notification from the cache",
	Long: `Remove every notification from the cache.

Popups still on screen are left alone; use "nisfere remove" to dismiss
individual notifications.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	if err := client.ClearAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
	return nil
}
