package toolflow

import (
	"fmt"
)

// PlanEntry is one named invocation in an execution plan. DependsOn names
// other entries in the same plan that must settle in an earlier phase.
type PlanEntry struct {
	// Name uniquely identifies the entry within the plan.
	Name string

	// ToolName references a tool registered in the runner's catalog.
	// Tool, when set, is used directly and ToolName is ignored.
	ToolName string
	Tool     Tool

	// Params is the parameter payload for the invocation.
	Params map[string]any

	// Context is optional caller-supplied data merged into the call
	// context (the runner adds previous-phase results alongside it).
	Context map[string]any

	// Options are per-entry execution options.
	Options *ExecuteOptions

	// DependsOn lists entry names this entry depends on.
	DependsOn []string
}

// Phase is a set of mutually independent entry names safe to run
// concurrently. A schedule is an ordered list of phases.
type Phase []string

// ComputeSchedule groups plan entries into dependency-ordered phases by
// topological leveling: each phase contains every unvisited entry whose
// dependencies are all in earlier phases.
//
// A dependency cycle cannot be leveled; the cyclic remainder is degraded
// to singleton phases (serial execution) and reported as a warning, so
// scheduling always terminates. Dependencies naming unknown entries are
// warned about and treated as satisfied.
func ComputeSchedule(entries []PlanEntry) ([]Phase, []string) {
	n := len(entries)
	if n == 0 {
		return nil, nil
	}

	var warnings []string

	// Index-based node table with dependency adjacency, built once.
	index := make(map[string]int, n)
	for i, e := range entries {
		index[e.Name] = i
	}
	deps := make([][]int, n)
	for i, e := range entries {
		for _, dep := range e.DependsOn {
			j, ok := index[dep]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("entry %q depends on unknown entry %q", e.Name, dep))
				continue
			}
			if j == i {
				warnings = append(warnings, fmt.Sprintf("entry %q depends on itself", e.Name))
				continue
			}
			deps[i] = append(deps[i], j)
		}
	}

	visited := make([]bool, n)
	remaining := n
	var phases []Phase

	for remaining > 0 {
		var phase Phase
		for i := range entries {
			if visited[i] {
				continue
			}
			ready := true
			for _, j := range deps[i] {
				if !visited[j] {
					ready = false
					break
				}
			}
			if ready {
				phase = append(phase, entries[i].Name)
			}
		}

		if len(phase) == 0 {
			// Cycle among the remainder: force serial singleton phases.
			var cyclic []string
			for i := range entries {
				if !visited[i] {
					cyclic = append(cyclic, entries[i].Name)
					phases = append(phases, Phase{entries[i].Name})
					visited[i] = true
					remaining--
				}
			}
			warnings = append(warnings, fmt.Sprintf("dependency cycle among %v; running serially", cyclic))
			break
		}

		for _, name := range phase {
			visited[index[name]] = true
			remaining--
		}
		phases = append(phases, phase)
	}

	return phases, warnings
}

// validatePlan checks for structural programmer errors before running.
func validatePlan(entries []PlanEntry) error {
	if len(entries) == 0 {
		return ErrEmptyPlan
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("plan entry with empty name")
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}
