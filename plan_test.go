package toolflow

import (
	"errors"
	"strings"
	"testing"
)

func entryNames(phase Phase) map[string]struct{} {
	out := make(map[string]struct{}, len(phase))
	for _, name := range phase {
		out[name] = struct{}{}
	}
	return out
}

func TestComputeSchedule_Empty(t *testing.T) {
	phases, warnings := ComputeSchedule(nil)
	if phases != nil || warnings != nil {
		t.Errorf("expected nil schedule for empty plan, got %v / %v", phases, warnings)
	}
}

func TestComputeSchedule_Independent(t *testing.T) {
	entries := []PlanEntry{
		{Name: "a"},
		{Name: "b"},
		{Name: "c"},
	}
	phases, warnings := ComputeSchedule(entries)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(phases) != 1 || len(phases[0]) != 3 {
		t.Fatalf("expected one phase of three, got %v", phases)
	}
}

func TestComputeSchedule_Diamond(t *testing.T) {
	entries := []PlanEntry{
		{Name: "fetch"},
		{Name: "parse", DependsOn: []string{"fetch"}},
		{Name: "enrich", DependsOn: []string{"fetch"}},
		{Name: "report", DependsOn: []string{"parse", "enrich"}},
	}
	phases, warnings := ComputeSchedule(entries)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(phases) != 3 {
		t.Fatalf("expected 3 phases, got %v", phases)
	}

	first := entryNames(phases[0])
	if _, ok := first["fetch"]; !ok || len(first) != 1 {
		t.Errorf("expected first phase {fetch}, got %v", phases[0])
	}
	second := entryNames(phases[1])
	if len(second) != 2 {
		t.Errorf("expected second phase of two, got %v", phases[1])
	}
	if _, ok := second["parse"]; !ok {
		t.Errorf("expected parse in second phase, got %v", phases[1])
	}
	if phases[2][0] != "report" {
		t.Errorf("expected report last, got %v", phases[2])
	}
}

func TestComputeSchedule_DependencyAlwaysEarlier(t *testing.T) {
	entries := []PlanEntry{
		{Name: "e", DependsOn: []string{"d"}},
		{Name: "d", DependsOn: []string{"c"}},
		{Name: "c", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "a"},
	}
	phases, _ := ComputeSchedule(entries)

	phaseOf := make(map[string]int)
	for i, phase := range phases {
		for _, name := range phase {
			phaseOf[name] = i
		}
	}
	for _, e := range entries {
		for _, dep := range e.DependsOn {
			if phaseOf[dep] >= phaseOf[e.Name] {
				t.Errorf("dependency %s not in an earlier phase than %s", dep, e.Name)
			}
		}
	}
}

func TestComputeSchedule_UnknownDependencyWarned(t *testing.T) {
	entries := []PlanEntry{
		{Name: "a", DependsOn: []string{"ghost"}},
	}
	phases, warnings := ComputeSchedule(entries)
	if len(phases) != 1 {
		t.Fatalf("expected entry to still be scheduled, got %v", phases)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "unknown entry") {
		t.Errorf("expected unknown dependency warning, got %v", warnings)
	}
}

func TestComputeSchedule_SelfDependencyWarned(t *testing.T) {
	entries := []PlanEntry{
		{Name: "a", DependsOn: []string{"a"}},
	}
	phases, warnings := ComputeSchedule(entries)
	if len(phases) != 1 {
		t.Fatalf("expected entry to still be scheduled, got %v", phases)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "depends on itself") {
		t.Errorf("expected self dependency warning, got %v", warnings)
	}
}

func TestComputeSchedule_CycleDegradesToSerial(t *testing.T) {
	entries := []PlanEntry{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "c"},
	}
	phases, warnings := ComputeSchedule(entries)

	// c levels normally, then the cycle degrades to singleton phases.
	if len(phases) != 3 {
		t.Fatalf("expected 3 phases, got %v", phases)
	}
	if phases[0][0] != "c" {
		t.Errorf("expected c first, got %v", phases[0])
	}
	for _, phase := range phases[1:] {
		if len(phase) != 1 {
			t.Errorf("expected singleton phase for cyclic entry, got %v", phase)
		}
	}

	var cycleWarned bool
	for _, w := range warnings {
		if strings.Contains(w, "cycle") {
			cycleWarned = true
		}
	}
	if !cycleWarned {
		t.Errorf("expected cycle warning, got %v", warnings)
	}
}

func TestValidatePlan(t *testing.T) {
	tests := []struct {
		name    string
		entries []PlanEntry
		wantErr error
	}{
		{"empty", nil, ErrEmptyPlan},
		{"duplicate", []PlanEntry{{Name: "a"}, {Name: "a"}}, ErrDuplicateEntry},
		{"valid", []PlanEntry{{Name: "a"}, {Name: "b"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePlan(tt.entries)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidatePlan_EmptyName(t *testing.T) {
	err := validatePlan([]PlanEntry{{Name: ""}})
	if err == nil {
		t.Fatal("expected error for empty entry name")
	}
}
