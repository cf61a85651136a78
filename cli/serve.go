package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolflow"
	"github.com/petal-labs/toolflow/bus"
	"github.com/petal-labs/toolflow/config"
	"github.com/petal-labs/toolflow/daemon"
	"github.com/petal-labs/toolflow/planfile"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().StringP("config", "c", "", "Path to a config file (default: discovered)")
	cmd.Flags().String("addr", ":8723", "Listen address")
	cmd.Flags().String("store", "", "SQLite DSN for event persistence (overrides config)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP collector address for traces and metrics (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	catalog, err := builtinCatalog()
	if err != nil {
		return exitError(exitRuntime, "building catalog: %v", err)
	}

	handler, cleanup, err := buildRunEventHandler(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	executor := toolflow.NewExecutor(toolflow.ExecutorConfig{
		DefaultTimeout: cfg.Executor.DefaultTimeout.Std(),
		Catalog:        catalog,
		EventHandler:   handler,
		DisableHistory: historyDisabled(cfg),
	})
	runner := toolflow.NewPlanRunner(executor, catalog)
	selector := toolflow.NewSelector(catalog, toolflow.SelectorConfig{
		CacheTTL:      cfg.Selector.CacheTTL.Std(),
		CacheCapacity: cfg.Selector.CacheCapacity,
	})

	var store bus.EventStore
	dsn, _ := cmd.Flags().GetString("store")
	if dsn == "" {
		dsn = cfg.Events.StoreDSN
	}
	if dsn != "" {
		sqlStore, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: dsn})
		if err != nil {
			return exitError(exitRuntime, "opening event store: %v", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	scheduler, err := buildScheduler(cfg, runner, handler)
	if err != nil {
		return err
	}
	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	server, err := daemon.NewServer(daemon.ServerConfig{
		Executor:   executor,
		Catalog:    catalog,
		Selector:   selector,
		Runner:     runner,
		Scheduler:  scheduler,
		EventStore: store,
		Events:     handler,
	})
	if err != nil {
		return exitError(exitRuntime, "starting daemon: %v", err)
	}

	addr, _ := cmd.Flags().GetString("addr")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "toolflow daemon listening on %s\n", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return exitError(exitRuntime, "server: %v", err)
	}
	return nil
}

// buildScheduler loads each configured schedule's plan file and registers
// it on a daemon scheduler. Returns nil when no schedules are configured.
func buildScheduler(cfg config.Config, runner *toolflow.PlanRunner, events toolflow.EventHandler) (*daemon.Scheduler, error) {
	if len(cfg.Schedules) == 0 {
		return nil, nil
	}

	sched, err := daemon.NewScheduler(daemon.SchedulerConfig{Runner: runner})
	if err != nil {
		return nil, exitError(exitRuntime, "scheduler: %v", err)
	}
	for _, sc := range cfg.Schedules {
		plan, err := planfile.Load(sc.Plan)
		if err != nil {
			return nil, exitError(exitValidation, "schedule %q: %v", sc.Name, err)
		}
		opts := plan.PlanOptions()
		opts.EventHandler = events
		if err := sched.Add(daemon.Schedule{
			Name:    sc.Name,
			Cron:    sc.Cron,
			Entries: plan.PlanEntries(),
			Options: opts,
		}); err != nil {
			return nil, exitError(exitValidation, "%v", err)
		}
	}
	return sched, nil
}
