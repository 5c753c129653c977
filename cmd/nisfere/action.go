package main

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/core"
)

var actionCmd = &cobra.Command{
	Use:   "action ID [KEY]",
	Short: "Invoke an action of a cached notification",
	Long: `Invoke an action on the popup a cached notification came from.

KEY defaults to "default". The popup must still be live; the sending
application receives the ActionInvoked signal.

Examples:
  nisfere action 12
  nisfere action 12 reply`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAction,
}

func init() {
	rootCmd.AddCommand(actionCmd)
}

func runAction(cmd *cobra.Command, args []string) error {
	id, err := core.ParseID(args[0])
	if err != nil {
		return err
	}
	key := "default"
	if len(args) > 1 {
		key = args[1]
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	return client.InvokeAction(ctx, id, key)
}
