package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/toolflow"
	"github.com/petal-labs/toolflow/bus"
	"github.com/petal-labs/toolflow/config"
	flowotel "github.com/petal-labs/toolflow/otel"
	"github.com/petal-labs/toolflow/planfile"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a plan file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("config", "c", "", "Path to a config file (default: discovered)")
	cmd.Flags().StringP("output", "o", "", "Write the plan report to file (default: stdout)")
	cmd.Flags().String("format", "pretty", "Output format: json | pretty")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Overall plan timeout")
	cmd.Flags().Bool("dry-run", false, "Validate and print the schedule, do not execute")
	cmd.Flags().Bool("events", false, "Print lifecycle events as they occur")
	cmd.Flags().String("store", "", "SQLite DSN for event persistence (overrides config)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP collector address for traces and metrics (overrides config)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	plan, err := loadPlanFile(filePath)
	if err != nil {
		return err
	}

	entries := plan.PlanEntries()
	opts := plan.PlanOptions()
	if opts.MaxParallel == 0 {
		opts.MaxParallel = cfg.Scheduler.MaxParallel
	}
	if !opts.ContinueOnError {
		opts.ContinueOnError = cfg.Scheduler.ContinueOnError
	}

	if isRunDry(cmd) {
		return printSchedule(cmd.OutOrStdout(), entries, opts)
	}

	handler, cleanup, err := buildRunEventHandler(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	opts.EventHandler = handler

	catalog, err := builtinCatalog()
	if err != nil {
		return exitError(exitRuntime, "building catalog: %v", err)
	}
	executor := toolflow.NewExecutor(toolflow.ExecutorConfig{
		DefaultTimeout: cfg.Executor.DefaultTimeout.Std(),
		Catalog:        catalog,
		DisableHistory: historyDisabled(cfg),
	})
	runner := toolflow.NewPlanRunner(executor, catalog)

	ctx, cancel := runContext(cmd)
	defer cancel()

	report, err := runner.RunPlan(ctx, entries, opts)
	if err != nil {
		return exitError(exitValidation, "plan rejected: %v", err)
	}

	if err := writeReport(cmd, report); err != nil {
		return err
	}
	if report.Failed {
		return exitError(exitPlanFailed, "plan finished with failures")
	}
	return nil
}

func loadRunConfig(cmd *cobra.Command) (config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path, found, err := config.Discover(explicit)
	if err != nil {
		return config.Config{}, exitError(exitFileNotFound, "config: %v", err)
	}
	if !found {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, exitError(exitInputParse, "loading config %s: %v", path, err)
	}
	return cfg, nil
}

func loadPlanFile(path string) (*planfile.Plan, error) {
	plan, err := planfile.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitValidation, "%v", err)
	}
	return plan, nil
}

func isRunDry(cmd *cobra.Command) bool {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	return dryRun
}

func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), timeout)
}

// historyDisabled maps the executor.track_history config knob onto the
// engine's history switch. Unset means tracking stays on.
func historyDisabled(cfg config.Config) bool {
	return cfg.Executor.TrackHistory != nil && !*cfg.Executor.TrackHistory
}

// buildRunEventHandler fans engine events through an in-memory bus to the
// configured consumers: the plain-text printer, the SQLite store, and the
// OpenTelemetry bridge. The returned cleanup drains the bus before
// releasing the consumers, so a finished run has all of its events
// persisted.
func buildRunEventHandler(cmd *cobra.Command, cfg config.Config) (toolflow.EventHandler, func(), error) {
	var consumers []toolflow.EventHandler
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if printEvents, _ := cmd.Flags().GetBool("events"); printEvents {
		consumers = append(consumers, eventPrinter(cmd.ErrOrStderr()))
	}

	dsn, _ := cmd.Flags().GetString("store")
	if dsn == "" {
		dsn = cfg.Events.StoreDSN
	}
	if dsn != "" {
		store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{
			DSN:            dsn,
			RetentionAge:   cfg.Events.RetentionAge.Std(),
			RetentionCount: cfg.Events.RetentionCount,
		})
		if err != nil {
			return nil, nil, exitError(exitRuntime, "opening event store: %v", err)
		}
		consumers = append(consumers, bus.NewStoreSubscriber(store, slog.Default()).Handle)
		closers = append(closers, func() { _ = store.Close() })
	}

	otelConsumers, otelCleanup, err := buildOtelHandlers(cmd, cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	consumers = append(consumers, otelConsumers...)
	if otelCleanup != nil {
		closers = append(closers, otelCleanup)
	}

	if len(consumers) == 0 {
		return nil, closeAll, nil
	}

	eventBus := bus.NewMemBus(bus.MemBusConfig{})
	sub := eventBus.SubscribeAll()
	fanout := toolflow.MultiEventHandler(consumers...)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range sub.Events() {
			fanout(e)
		}
	}()

	cleanup := func() {
		_ = eventBus.Close()
		<-drained
		closeAll()
	}
	return bus.Handler(eventBus), cleanup, nil
}

// buildOtelHandlers sets up the OTLP exporter and returns the tracing and
// metrics event handlers. A nil slice means the bridge is disabled.
func buildOtelHandlers(cmd *cobra.Command, cfg config.Config) ([]toolflow.EventHandler, func(), error) {
	endpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	if endpoint == "" {
		endpoint = cfg.Otel.Endpoint
	}
	if endpoint == "" {
		return nil, nil, nil
	}

	shutdown, err := flowotel.Setup(cmd.Context(), endpoint)
	if err != nil {
		return nil, nil, exitError(exitRuntime, "otel setup: %v", err)
	}
	tracing := flowotel.NewTracingHandler(otelapi.Tracer("toolflow"))
	metrics, err := flowotel.NewMetricsHandler(otelapi.Meter("toolflow"))
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, exitError(exitRuntime, "otel metrics: %v", err)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}
	return []toolflow.EventHandler{tracing.Handle, metrics.Handle}, cleanup, nil
}

func eventPrinter(out io.Writer) toolflow.EventHandler {
	return func(e toolflow.Event) {
		name := e.ToolName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(out, "[%s] %s tool=%s", e.Time.Format("15:04:05.000"), e.Kind, name)
		if e.Elapsed > 0 {
			fmt.Fprintf(out, " elapsed=%s", e.Elapsed)
		}
		fmt.Fprintln(out)
	}
}

func printSchedule(out io.Writer, entries []toolflow.PlanEntry, opts toolflow.PlanOptions) error {
	phases := opts.Phases
	var warnings []string
	if phases == nil {
		phases, warnings = toolflow.ComputeSchedule(entries)
	}
	for i, phase := range phases {
		fmt.Fprintf(out, "phase %d: %s\n", i+1, strings.Join(phase, ", "))
	}
	for _, w := range warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return nil
}

// writeReport formats and writes the plan report.
func writeReport(cmd *cobra.Command, report *toolflow.PlanReport) error {
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	var output string
	switch format {
	case "json":
		data, err := json.MarshalIndent(reportJSON(report), "", "  ")
		if err != nil {
			return exitError(exitRuntime, "marshaling report: %v", err)
		}
		output = string(data)
	case "pretty":
		output = formatPretty(report)
	default:
		return exitError(exitInputParse, "unknown format %q (use json or pretty)", format)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(output+"\n"), 0600); err != nil {
			return exitError(exitRuntime, "writing output file: %v", err)
		}
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// reportJSON flattens a PlanReport into a JSON-friendly shape, dropping
// execution contexts which do not serialize meaningfully.
func reportJSON(report *toolflow.PlanReport) map[string]any {
	results := make(map[string]any, len(report.Results))
	for name, res := range report.Results {
		entry := map[string]any{"success": res.Success}
		if res.Error != "" {
			entry["error"] = res.Error
		}
		if res.Data != nil {
			entry["data"] = res.Data
		}
		results[name] = entry
	}
	return map[string]any{
		"plan_id":  report.PlanID,
		"failed":   report.Failed,
		"phases":   report.Phases,
		"warnings": report.Warnings,
		"skipped":  report.Skipped,
		"results":  results,
		"stats": map[string]any{
			"total":            report.Stats.Total.String(),
			"estimated_serial": report.Stats.EstimatedSerial.String(),
			"estimated_saved":  report.Stats.EstimatedSaved.String(),
		},
	}
}

// formatPretty returns a human-readable summary of the report.
func formatPretty(report *toolflow.PlanReport) string {
	var sb strings.Builder

	status := "ok"
	if report.Failed {
		status = "failed"
	}
	sb.WriteString(fmt.Sprintf("=== Plan %s (%s) ===\n", report.PlanID, status))

	for i, phase := range report.Phases {
		sb.WriteString(fmt.Sprintf("  phase %d: %s\n", i+1, strings.Join(phase, ", ")))
	}

	names := make([]string, 0, len(report.Results))
	for name := range report.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("\n=== Results ===\n")
	for _, name := range names {
		res := report.Results[name]
		if res.Success {
			sb.WriteString(fmt.Sprintf("  %s: ok\n", name))
		} else {
			sb.WriteString(fmt.Sprintf("  %s: FAILED (%s)\n", name, res.Error))
		}
	}

	if len(report.Skipped) > 0 {
		sb.WriteString(fmt.Sprintf("\n=== Skipped (%d) ===\n", len(report.Skipped)))
		for _, name := range report.Skipped {
			sb.WriteString(fmt.Sprintf("  %s\n", name))
		}
	}

	if len(report.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("\n=== Warnings (%d) ===\n", len(report.Warnings)))
		for _, w := range report.Warnings {
			sb.WriteString(fmt.Sprintf("  %s\n", w))
		}
	}

	sb.WriteString("\n=== Stats ===\n")
	sb.WriteString(fmt.Sprintf("  total: %s\n", report.Stats.Total))
	sb.WriteString(fmt.Sprintf("  estimated serial: %s\n", report.Stats.EstimatedSerial))
	sb.WriteString(fmt.Sprintf("  estimated saved: %s\n", report.Stats.EstimatedSaved))

	return sb.String()
}
