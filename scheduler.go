package toolflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PreviousResultsKey is the call-context key under which the runner
// exposes the accumulated results of earlier phases to each entry.
const PreviousResultsKey = "previousResults"

// PlanOptions control a plan run.
type PlanOptions struct {
	// MaxParallel bounds concurrent entries within a phase (default: 4).
	// Entries beyond the bound run in follow-up batches; a batch starts
	// only after the previous batch has fully settled.
	MaxParallel int

	// ContinueOnError disables fail-fast. By default the first phase
	// containing a failure causes the remaining phases to be skipped;
	// work already started in the failing phase is allowed to finish.
	ContinueOnError bool

	// Phases, when non-nil, is used as the schedule verbatim, bypassing
	// dependency inference entirely.
	Phases []Phase

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time

	// EventHandler receives plan-level and per-entry events.
	EventHandler EventHandler
}

// PlanStats summarizes a plan run's timing.
type PlanStats struct {
	// Total is the measured wall-clock time of the run.
	Total time.Duration

	// EstimatedSerial is the per-phase wall time multiplied by the phase
	// cardinality, summed. It approximates a fully serial run; it is a
	// heuristic, not a measured baseline.
	EstimatedSerial time.Duration

	// EstimatedSaved is EstimatedSerial minus Total. Approximate for the
	// same reason.
	EstimatedSaved time.Duration
}

// PlanReport is the outcome of a plan run: one result per entry that ran,
// the schedule used, diagnostics, and timing statistics.
type PlanReport struct {
	// PlanID identifies the run in emitted events.
	PlanID string

	// Results maps entry names to their execution results.
	Results map[string]*Result

	// Contexts maps entry names to the execution contexts that tracked
	// them, for history inspection.
	Contexts map[string]*ExecutionContext

	// Phases is the schedule that was executed.
	Phases []Phase

	// Warnings carries scheduling diagnostics (cycles, unknown tools).
	Warnings []string

	// Skipped lists entries that never ran: unknown tool references and
	// entries in phases abandoned by fail-fast.
	Skipped []string

	// Failed reports whether any executed entry produced a failure.
	Failed bool

	Stats PlanStats
}

// PlanRunner executes plans: it computes the phase schedule, then drives
// the Executor for every entry, phase by phase.
type PlanRunner struct {
	executor *Executor
	catalog  *Catalog
}

// NewPlanRunner creates a runner backed by the given executor and catalog.
// The catalog resolves entries' ToolName references; entries carrying a
// Tool directly do not need it.
func NewPlanRunner(executor *Executor, catalog *Catalog) *PlanRunner {
	return &PlanRunner{executor: executor, catalog: catalog}
}

// RunPlan executes the plan and reports per-entry results. The only
// errors returned are structural (empty plan, duplicate entry names);
// execution failures are folded into the report.
func (r *PlanRunner) RunPlan(ctx context.Context, entries []PlanEntry, opts PlanOptions) (*PlanReport, error) {
	if err := validatePlan(entries); err != nil {
		return nil, err
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	byName := make(map[string]*PlanEntry, len(entries))
	for i := range entries {
		byName[entries[i].Name] = &entries[i]
	}

	phases := opts.Phases
	var warnings []string
	if phases == nil {
		phases, warnings = ComputeSchedule(entries)
	}

	report := &PlanReport{
		PlanID:   uuid.NewString(),
		Results:  make(map[string]*Result, len(entries)),
		Contexts: make(map[string]*ExecutionContext, len(entries)),
		Phases:   phases,
		Warnings: warnings,
	}

	// Plan-level events carry their own per-plan sequence, mirroring the
	// per-context sequence the executor stamps, so stores can replay them
	// with the same exclusive afterSeq bound.
	var planSeq uint64
	emit := func(ev Event) {
		if opts.EventHandler == nil {
			return
		}
		planSeq++
		opts.EventHandler(ev.WithSeq(planSeq))
	}

	start := now()
	emit(NewEvent(EventPlanStarted, report.PlanID).
		WithPayload("entries", len(entries)).
		WithPayload("phases", len(phases)))
	for _, w := range warnings {
		emit(NewEvent(EventPlanWarning, report.PlanID).WithPayload("warning", w))
	}

	var estimatedSerial time.Duration
	aborted := false

	for pi, phase := range phases {
		if aborted {
			report.Skipped = append(report.Skipped, phase...)
			continue
		}

		phaseStart := now()
		executed := r.runPhase(ctx, phase, byName, report, opts, emit)
		phaseElapsed := now().Sub(phaseStart)
		estimatedSerial += phaseElapsed * time.Duration(executed)

		if report.Failed && !opts.ContinueOnError && pi < len(phases)-1 {
			aborted = true
		}
	}

	total := now().Sub(start)
	report.Stats = PlanStats{
		Total:           total,
		EstimatedSerial: estimatedSerial,
		EstimatedSaved:  estimatedSerial - total,
	}

	status := "completed"
	if report.Failed {
		status = "failed"
	}
	emit(NewEvent(EventPlanFinished, report.PlanID).
		WithElapsed(total).
		WithPayload("status", status).
		WithPayload("skipped", len(report.Skipped)))

	return report, nil
}

// runPhase executes one phase in batches of MaxParallel and returns the
// number of entries that actually ran.
func (r *PlanRunner) runPhase(ctx context.Context, phase Phase, byName map[string]*PlanEntry, report *PlanReport, opts PlanOptions, emit EventEmitter) int {
	// Resolve tools up front; unresolvable entries are skipped without
	// aborting the rest of the plan.
	type task struct {
		entry *PlanEntry
		tool  Tool
	}
	var tasks []task
	for _, name := range phase {
		entry, ok := byName[name]
		if !ok {
			// Manual phase override naming an unknown entry.
			report.Warnings = append(report.Warnings, fmt.Sprintf("phase references unknown entry %q", name))
			report.Skipped = append(report.Skipped, name)
			continue
		}
		tool := entry.Tool
		if tool == nil && r.catalog != nil {
			tool, _ = r.catalog.Get(entry.ToolName)
		}
		if tool == nil {
			w := fmt.Sprintf("entry %q references unregistered tool %q", entry.Name, entry.ToolName)
			report.Warnings = append(report.Warnings, w)
			report.Skipped = append(report.Skipped, entry.Name)
			report.Results[entry.Name] = &Result{
				Success:   false,
				Error:     fmt.Sprintf("%v: %s", ErrToolNotFound, entry.ToolName),
				Timestamp: time.Now(),
			}
			emit(NewEvent(EventPlanWarning, report.PlanID).WithPayload("warning", w))
			continue
		}
		tasks = append(tasks, task{entry: entry, tool: tool})
	}

	// Snapshot of earlier phases' results, shared read-only by the batch.
	previous := make(map[string]*Result, len(report.Results))
	for k, v := range report.Results {
		previous[k] = v
	}

	executed := 0
	for batchStart := 0; batchStart < len(tasks); batchStart += opts.MaxParallel {
		batchEnd := batchStart + opts.MaxParallel
		if batchEnd > len(tasks) {
			batchEnd = len(tasks)
		}
		batch := tasks[batchStart:batchEnd]

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, t := range batch {
			wg.Add(1)
			go func(t task) {
				defer wg.Done()

				callCtx := make(map[string]any, len(t.entry.Context)+1)
				for k, v := range t.entry.Context {
					callCtx[k] = v
				}
				callCtx[PreviousResultsKey] = previous

				var eo ExecuteOptions
				if t.entry.Options != nil {
					eo = *t.entry.Options
				}
				eo.CallContext = callCtx
				eo.ParentID = report.PlanID
				if eo.EventHandler == nil {
					eo.EventHandler = opts.EventHandler
				}

				res, ec := r.executor.Execute(ctx, t.tool, t.entry.Params, &eo)

				mu.Lock()
				report.Results[t.entry.Name] = res
				report.Contexts[t.entry.Name] = ec
				if !res.Success {
					report.Failed = true
				}
				mu.Unlock()
			}(t)
		}
		wg.Wait()
		executed += len(batch)

		// Fail-fast also stops follow-up batches inside the phase, but
		// never a batch already in flight.
		if report.Failed && !opts.ContinueOnError && batchEnd < len(tasks) {
			for _, t := range tasks[batchEnd:] {
				report.Skipped = append(report.Skipped, t.entry.Name)
			}
			break
		}
	}
	return executed
}
