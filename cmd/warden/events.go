package main

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mercator-hq/warden/pkg/cli"
	"mercator-hq/warden/pkg/config"
	"mercator-hq/warden/pkg/events"
)

var eventsFlags struct {
	kind        string
	method      string
	interceptor string
	since       time.Duration
	limit       int
	offset      int
	format      string

	days       int
	maxRecords int64
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query and prune governance events",
	Long: `Query and prune the governance events recorded by a running agent.

Events are read from the SQLite database configured under events.sqlite.
The memory backend keeps events inside the agent process only.

Subcommands:
  query  - List events with filters
  prune  - Apply the retention policy now`,
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List governance events",
	Long: `List governance events, newest first.

Kinds: flow_blocked, interceptor_error, rules_reloaded, rules_reload_failed

Examples:
  # Calls blocked in the last hour
  warden events query --kind flow_blocked --since 1h

  # Interceptor failures of one plugin as CSV
  warden events query --kind interceptor_error --interceptor limits --format csv`,
	RunE: queryEvents,
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events outside the retention policy",
	Long: `Delete events older than the retention period and trim the store to the
record cap. Flags override events.retention for this run only.

Examples:
  # Apply the configured retention now
  warden events prune

  # Keep only the last week
  warden events prune --days 7`,
	RunE: pruneEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsQueryCmd, eventsPruneCmd)

	eventsQueryCmd.Flags().StringVar(&eventsFlags.kind, "kind", "", "filter by event kind")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.method, "method", "", "filter by method key")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.interceptor, "interceptor", "", "filter by interceptor name")
	eventsQueryCmd.Flags().DurationVar(&eventsFlags.since, "since", 0, "only events newer than this age (e.g. 30m, 24h)")
	eventsQueryCmd.Flags().IntVar(&eventsFlags.limit, "limit", 0, "max results (default events.query_limit)")
	eventsQueryCmd.Flags().IntVar(&eventsFlags.offset, "offset", 0, "pagination offset")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.format, "format", "text", "output format: text, json, csv")

	eventsPruneCmd.Flags().IntVar(&eventsFlags.days, "days", 0, "retention period in days (overrides events.retention.days)")
	eventsPruneCmd.Flags().Int64Var(&eventsFlags.maxRecords, "max-records", 0, "record cap (overrides events.retention.max_records)")
}

// eventList is the printable form of a query result.
type eventList []*events.Event

// Table renders one row per event with its age.
func (l eventList) Table() cli.Table {
	t := cli.Table{Headers: []string{"TIME", "AGE", "KIND", "METHOD", "INTERCEPTOR", "MESSAGE"}}
	for _, e := range l {
		t.Rows = append(t.Rows, []string{
			e.Time.UTC().Format(time.RFC3339),
			humanize.Time(e.Time),
			string(e.Kind),
			dash(e.Method),
			dash(e.Interceptor),
			e.Message,
		})
	}
	return t
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// openEvents opens the configured persistent event store.
func openEvents() (events.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Events.Enabled {
		return nil, nil, errors.New("events are disabled (events.enabled is false)")
	}
	if cfg.Events.Backend == "memory" {
		return nil, nil, errors.New("the memory event backend is not readable outside the agent, configure sqlite or sqlite3")
	}

	store, err := events.Open(&cfg.Events)
	if err != nil {
		return nil, nil, cli.NewCommandError("events", err)
	}
	return store, cfg, nil
}

func queryEvents(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(eventsFlags.format)
	if err != nil {
		return err
	}

	filter := events.Filter{
		Method:      eventsFlags.method,
		Interceptor: eventsFlags.interceptor,
		Limit:       eventsFlags.limit,
		Offset:      eventsFlags.offset,
	}
	if eventsFlags.kind != "" {
		if filter.Kind, err = events.ParseKind(eventsFlags.kind); err != nil {
			return err
		}
	}
	if eventsFlags.since > 0 {
		filter.Since = time.Now().Add(-eventsFlags.since)
	}

	store, cfg, err := openEvents()
	if err != nil {
		return err
	}
	defer store.Close()

	if filter.Limit <= 0 {
		filter.Limit = cfg.Events.QueryLimit
	}

	found, err := store.Query(commandContext(cmd), filter)
	if err != nil {
		return cli.NewCommandError("events", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatText && len(found) == 0 {
		cli.NewPrinter(out).Info("no events found")
		return nil
	}
	return cli.NewFormatter(format).FormatTo(out, eventList(found))
}

func pruneEvents(cmd *cobra.Command, args []string) error {
	store, cfg, err := openEvents()
	if err != nil {
		return err
	}
	defer store.Close()

	ret := events.RetentionConfig{
		Days:       cfg.Events.Retention.Days,
		MaxRecords: cfg.Events.Retention.MaxRecords,
	}
	if cmd.Flags().Changed("days") {
		ret.Days = eventsFlags.days
	}
	if cmd.Flags().Changed("max-records") {
		ret.MaxRecords = eventsFlags.maxRecords
	}

	removed, err := events.NewPruner(store, ret, nil).Prune(commandContext(cmd))
	if err != nil {
		return cli.NewCommandError("events", err)
	}

	cli.NewPrinter(cmd.OutOrStdout()).Success("Pruned %d events (retention %d days, max %d records)",
		removed, ret.Days, ret.MaxRecords)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
