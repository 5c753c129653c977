package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/core"
	"github.com/jmylchreest/nisfere/internal/model"
)

var removeOpts struct {
	stdin     bool // Read ids from stdin
	stdinJSON bool // Parse stdin as JSON records
}

var removeCmd = &cobra.Command{
	Use:     "remove [id...]",
	Aliases: []string{"rm", "dismiss"},
	Short:   "Remove notifications from the cache",
	Long: `Remove notifications from the cache by id.

A removed notification that is still on screen is dismissed too. Unknown
ids are ignored.

IDs can be provided as positional arguments or via stdin (--stdin). When
using --stdin, the first field of each line is taken as the id, so the ids,
plain and dmenu formats can all be piped in.

Examples:
  # Remove a specific notification
  nisfere remove 12

  # Remove everything from one app
  nisfere list --app discord --format ids | nisfere remove --stdin

  # Remove from JSON output
  nisfere list --urgency low --format json | nisfere remove --stdin-json`,
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().BoolVar(&removeOpts.stdin, "stdin", false,
		"Read ids from stdin (first field of each line)")
	removeCmd.Flags().BoolVar(&removeOpts.stdinJSON, "stdin-json", false,
		"Read JSON records from stdin and use their cached-id")
}

func runRemove(cmd *cobra.Command, args []string) error {
	ids := make([]uint32, 0, len(args))
	for _, arg := range args {
		id, err := core.ParseID(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	if removeOpts.stdin || removeOpts.stdinJSON {
		var stdinIDs []uint32
		var err error
		if removeOpts.stdinJSON {
			stdinIDs, err = readJSONIDs(cmd.InOrStdin())
		} else {
			stdinIDs, err = readLineIDs(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		ids = append(ids, stdinIDs...)
	}

	if len(ids) == 0 {
		return fmt.Errorf("no notification ids provided")
	}
	ids = uniqueIDs(ids)

	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, err := connect(ctx)
	if err != nil {
		return err
	}

	var successCount, failCount int
	for _, id := range ids {
		if err := client.Remove(ctx, id); err != nil {
			logger.Warn("failed to remove notification", "id", id, "error", err)
			failCount++
		} else {
			successCount++
		}
	}

	if failCount > 0 {
		fmt.Fprintf(os.Stderr, "removed %d notifications, %d failed\n", successCount, failCount)
		return fmt.Errorf("%d removals failed", failCount)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d notifications\n", successCount)
	return nil
}

// readLineIDs reads one id per line, taking the first field of each line.
// Lines that do not start with an id are skipped.
func readLineIDs(r io.Reader) ([]uint32, error) {
	var ids []uint32
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "-" {
			continue
		}
		id, err := parseSelection(line, nil)
		if err != nil {
			logger.Debug("skipping line without id", "line", line)
			continue
		}
		ids = append(ids, id)
	}
	return ids, scanner.Err()
}

// readJSONIDs extracts cached-id values from a JSON array of records or
// newline-delimited JSON records.
func readJSONIDs(r io.Reader) ([]uint32, error) {
	data, err := io.ReadAll(io.LimitReader(r, 10*1024*1024))
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}

	var ids []uint32
	if strings.HasPrefix(text, "[") {
		records, err := model.DecodeRecords(strings.NewReader(text))
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			ids = append(ids, rec.CacheID)
		}
		return ids, nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var item struct {
			CacheID *uint32 `json:"cached-id"`
		}
		if err := json.Unmarshal([]byte(line), &item); err == nil && item.CacheID != nil {
			ids = append(ids, *item.CacheID)
		}
	}
	return ids, nil
}

// uniqueIDs removes duplicates, keeping first occurrence order.
func uniqueIDs(input []uint32) []uint32 {
	result := make([]uint32, 0, len(input))
	for _, id := range input {
		if !slices.Contains(result, id) {
			result = append(result, id)
		}
	}
	return result
}
