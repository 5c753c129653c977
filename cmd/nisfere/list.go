package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/adapter/output"
	"github.com/jmylchreest/nisfere/internal/core"
	"github.com/jmylchreest/nisfere/internal/model"
)

type listOptions struct {
	// Input options
	source string

	// Filter options
	app     string
	urgency string
	filter  string
	search  string
	limit   int

	// Sort options
	sortBy    string
	sortOrder string

	// Output options
	format    string
	field     string
	template  string
	bodyWidth int
	compact   bool

	// Lookup options
	index int
}

var listOpts listOptions

var listCmd = &cobra.Command{
	Use:     "list [id]",
	Aliases: []string{"ls", "get"},
	Short:   "List cached notifications",
	Long: `List the notifications held in the cache, newest first.

With an id argument, outputs that record only. The argument may also be a
full line selected from dmenu output; its first field is the id.

Examples:
  # List everything
  nisfere list

  # Only critical notifications from GNOME apps
  nisfere list --app 'org.gnome.*' --urgency critical

  # Filter expressions
  nisfere list --filter 'app=slack,summary~deploy'

  # Output as JSON
  nisfere list --format json

  # Pick one with fuzzel and copy its body
  nisfere list --format dmenu | fuzzel -d | nisfere list --field body - | wl-copy`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	addListFlags(listCmd, &listOpts)
}

func addListFlags(cmd *cobra.Command, opts *listOptions) {
	cmd.Flags().StringVar(&opts.source, "source", "",
		"Record source (daemon, file, stdin; prefers the daemon if empty)")

	cmd.Flags().StringVar(&opts.app, "app", "",
		"Filter by application name (exact or glob, e.g. 'org.gnome.*')")
	cmd.Flags().StringVar(&opts.urgency, "urgency", "",
		"Filter by urgency (low, normal, critical)")
	cmd.Flags().StringVar(&opts.filter, "filter", "",
		"Filter expression (e.g. 'app=slack,urgency>=normal,body~=(?i)meeting')")
	cmd.Flags().StringVarP(&opts.search, "search", "s", "",
		"Search in summary and body")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0,
		"Maximum number of records to show (0=config default)")

	cmd.Flags().StringVar(&opts.sortBy, "sort", "",
		"Sort by field (id, app, urgency)")
	cmd.Flags().StringVar(&opts.sortOrder, "order", "",
		"Sort order (asc, desc)")

	cmd.Flags().StringVarP(&opts.format, "format", "f", "",
		"Output format (plain, json, yaml, dmenu, ids)")
	cmd.Flags().StringVar(&opts.field, "field", "",
		"Output a single field (id, source, app, summary, body, urgency, image, all)")
	cmd.Flags().StringVar(&opts.template, "template", "",
		"Custom Go template for plain or dmenu output")
	cmd.Flags().IntVar(&opts.bodyWidth, "body-width", -1,
		"Truncate bodies to this many characters (0 hides them in plain output)")
	cmd.Flags().BoolVar(&opts.compact, "compact", false,
		"Single-line JSON output")

	cmd.Flags().IntVar(&opts.index, "index", 0,
		"Lookup record by 1-based index after filtering and sorting")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	opts := listOpts.withDefaults(getConfig().List.Limit, getConfig().List.Sort, getConfig().List.Order)

	records, err := fetchRecords(ctx, opts.source)
	if err != nil {
		return err
	}

	selected, err := selectRecords(records, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) > 0 || opts.index > 0 {
		var id uint32
		if len(args) > 0 {
			if id, err = parseSelection(args[0], cmd.InOrStdin()); err != nil {
				return err
			}
		}
		return outputLookup(out, records, selected, id, opts)
	}

	if len(selected) == 0 {
		logger.Debug("no records to output")
		return nil
	}
	return createFormatter(opts).Format(out, selected)
}

// withDefaults fills unset options from the CLI config.
func (o listOptions) withDefaults(limit int, sortBy, sortOrder string) listOptions {
	if o.limit == 0 {
		o.limit = limit
	}
	if o.sortBy == "" {
		o.sortBy = sortBy
	}
	if o.sortOrder == "" {
		o.sortOrder = sortOrder
	}
	return o
}

// selectRecords applies filters, search, sort and limit in that order.
func selectRecords(records []model.Record, opts listOptions) ([]model.Record, error) {
	filterOpts := core.FilterOptions{AppFilter: opts.app}
	if opts.urgency != "" {
		u, err := core.ParseUrgency(opts.urgency)
		if err != nil {
			return nil, err
		}
		filterOpts.Urgency = &u
	}

	result, err := core.Filter(records, filterOpts)
	if err != nil {
		return nil, err
	}

	if opts.filter != "" {
		expr, err := core.ParseFilter(opts.filter)
		if err != nil {
			return nil, err
		}
		result = core.FilterWithExpr(result, expr)
	}

	if opts.search != "" {
		result = core.Search(result, opts.search)
	}

	field, err := core.ParseSortField(opts.sortBy)
	if err != nil {
		return nil, err
	}
	order, err := core.ParseSortOrder(opts.sortOrder)
	if err != nil {
		return nil, err
	}
	core.Sort(result, core.SortOptions{Field: field, Order: order})

	if opts.limit > 0 && len(result) > opts.limit {
		result = result[:opts.limit]
	}
	return result, nil
}

// outputLookup writes a single record found by id among all records, or by
// index among the selected ones.
func outputLookup(w io.Writer, all, selected []model.Record, id uint32, opts listOptions) error {
	var r *model.Record
	if opts.index > 0 {
		r = core.LookupByIndex(selected, opts.index)
		if r == nil {
			return fmt.Errorf("no notification at index %d", opts.index)
		}
	} else {
		r = core.LookupByID(all, id)
		if r == nil {
			return fmt.Errorf("notification %d not found", id)
		}
	}

	if opts.field != "" {
		_, err := fmt.Fprintln(w, output.FormatField(r, opts.field))
		return err
	}

	// A single record defaults to JSON unless a format was asked for.
	if opts.format == "" {
		opts.format = string(output.FormatJSON)
	}
	return createFormatter(opts).Format(w, []model.Record{*r})
}

// parseSelection extracts a cache id from an argument. "-" reads one line
// from stdin. A dmenu line such as "12 | ! | slack | Build: failed" yields 12.
func parseSelection(arg string, stdin io.Reader) (uint32, error) {
	if arg == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, 64*1024))
		if err != nil {
			return 0, fmt.Errorf("failed to read selection: %w", err)
		}
		arg, _, _ = strings.Cut(string(data), "\n")
	}

	selection := strings.TrimSpace(arg)
	if i := strings.IndexAny(selection, " \t|"); i >= 0 {
		selection = selection[:i]
	}
	return core.ParseID(selection)
}

// createFormatter creates the output formatter based on options.
func createFormatter(opts listOptions) output.Formatter {
	c := getConfig()

	name := opts.format
	if name == "" {
		name = c.Output.Format
	}
	format, err := output.ParseFormat(strings.ToLower(name))
	if err != nil {
		logger.Warn("unknown format, using plain", "format", name)
		format = output.FormatPlain
	}

	fopts := output.DefaultFormatterOptions()
	fopts.Template = opts.template
	fopts.Compact = opts.compact
	fopts.BodyMaxLen = c.Output.BodyWidth
	if opts.bodyWidth >= 0 {
		fopts.BodyMaxLen = opts.bodyWidth
	}

	return output.NewFormatter(format, fopts)
}
