package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolflow/bus"
)

// NewEventsCmd creates the "events" command group for inspecting the
// persisted event log.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect persisted execution events",
	}
	cmd.PersistentFlags().String("store", "", "SQLite DSN of the event store")

	cmd.AddCommand(newEventsContextsCmd())
	cmd.AddCommand(newEventsListCmd())

	return cmd
}

func newEventsContextsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List context IDs with stored events",
		Args:  cobra.NoArgs,
		RunE:  runEventsContexts,
	}
}

func newEventsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <context-id>",
		Short: "List stored events for a context",
		Args:  cobra.ExactArgs(1),
		RunE:  runEventsList,
	}
	cmd.Flags().Uint64("after", 0, "List events after this sequence number")
	cmd.Flags().Int("limit", 100, "Maximum number of events")
	return cmd
}

func openEventStore(cmd *cobra.Command) (*bus.SQLiteEventStore, error) {
	dsn, _ := cmd.Flags().GetString("store")
	if dsn == "" {
		cfg, err := loadRunConfig(cmd)
		if err == nil {
			dsn = cfg.Events.StoreDSN
		}
	}
	if dsn == "" {
		return nil, exitError(exitInputParse, "no event store configured (use --store or config events.store_dsn)")
	}
	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		return nil, exitError(exitRuntime, "opening event store: %v", err)
	}
	return store, nil
}

func runEventsContexts(cmd *cobra.Command, args []string) error {
	store, err := openEventStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := store.ContextIDs(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing contexts: %v", err)
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runEventsList(cmd *cobra.Command, args []string) error {
	store, err := openEventStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	afterSeq, _ := cmd.Flags().GetUint64("after")
	limit, _ := cmd.Flags().GetInt("limit")

	events, err := store.List(cmd.Context(), args[0], afterSeq, limit)
	if err != nil {
		return exitError(exitRuntime, "listing events: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "SEQ\tTIME\tKIND\tTOOL\tELAPSED")
	for _, e := range events {
		tool := e.ToolName
		if tool == "" {
			tool = "-"
		}
		elapsed := "-"
		if e.Elapsed > 0 {
			elapsed = e.Elapsed.String()
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.Time.Format("2006-01-02 15:04:05.000"), e.Kind, tool, elapsed)
	}
	return writer.Flush()
}
