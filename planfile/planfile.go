// Package planfile loads declarative execution plans from YAML files.
//
// A plan file names a set of entries, each referencing a cataloged tool,
// with optional parameters, dependencies, and per-entry options:
//
//	name: nightly-index
//	entries:
//	  - name: fetch
//	    tool: webFetch
//	    params:
//	      url: https://example.com
//	  - name: summarize
//	    tool: textGenerate
//	    depends_on: [fetch]
//	options:
//	  max_parallel: 2
package planfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolflow"
	"github.com/petal-labs/toolflow/config"
)

// Entry is the YAML shape of one plan entry.
type Entry struct {
	Name      string          `yaml:"name"`
	Tool      string          `yaml:"tool"`
	Params    map[string]any  `yaml:"params,omitempty"`
	Context   map[string]any  `yaml:"context,omitempty"`
	DependsOn []string        `yaml:"depends_on,omitempty"`
	Timeout   config.Duration `yaml:"timeout,omitempty"`

	SkipValidation bool `yaml:"skip_validation,omitempty"`
	DisableHistory bool `yaml:"disable_history,omitempty"`
}

// Options is the YAML shape of plan-level options.
type Options struct {
	MaxParallel     int  `yaml:"max_parallel,omitempty"`
	ContinueOnError bool `yaml:"continue_on_error,omitempty"`

	// Phases bypasses dependency inference with an explicit schedule.
	Phases [][]string `yaml:"phases,omitempty"`
}

// Plan is a parsed plan file.
type Plan struct {
	Name    string  `yaml:"name"`
	Entries []Entry `yaml:"entries"`
	Options Options `yaml:"options,omitempty"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Parse validates a plan document.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(p.Entries) == 0 {
		return nil, fmt.Errorf("plan has no entries")
	}

	seen := make(map[string]struct{}, len(p.Entries))
	for i, e := range p.Entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}
		if e.Tool == "" {
			return nil, fmt.Errorf("entry %q has no tool", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("duplicate entry name %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		for _, dep := range e.DependsOn {
			if dep == e.Name {
				return nil, fmt.Errorf("entry %q depends on itself", e.Name)
			}
		}
	}
	return &p, nil
}

// PlanEntries converts the parsed entries to engine plan entries.
func (p *Plan) PlanEntries() []toolflow.PlanEntry {
	out := make([]toolflow.PlanEntry, 0, len(p.Entries))
	for _, e := range p.Entries {
		entry := toolflow.PlanEntry{
			Name:      e.Name,
			ToolName:  e.Tool,
			Params:    e.Params,
			Context:   e.Context,
			DependsOn: e.DependsOn,
		}
		if e.Timeout != 0 || e.SkipValidation || e.DisableHistory {
			entry.Options = &toolflow.ExecuteOptions{
				Timeout:        e.Timeout.Std(),
				SkipValidation: e.SkipValidation,
				DisableHistory: e.DisableHistory,
			}
		}
		out = append(out, entry)
	}
	return out
}

// PlanOptions converts the parsed options to engine plan options.
func (p *Plan) PlanOptions() toolflow.PlanOptions {
	opts := toolflow.PlanOptions{
		MaxParallel:     p.Options.MaxParallel,
		ContinueOnError: p.Options.ContinueOnError,
	}
	for _, phase := range p.Options.Phases {
		opts.Phases = append(opts.Phases, toolflow.Phase(phase))
	}
	return opts
}
