// Package config loads toolflow engine configuration from YAML files.
//
// Discovery follows first-match semantics: an explicit path wins,
// otherwise ./toolflow.yaml, otherwise ~/.toolflow/config.yaml. A missing
// config is not an error; defaults apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "toolflow.yaml"
	homeConfigDir     = ".toolflow"
	homeConfigName    = "config.yaml"
)

// Duration wraps time.Duration with YAML string parsing ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ExecutorConfig holds lifecycle engine defaults.
type ExecutorConfig struct {
	DefaultTimeout Duration `yaml:"default_timeout,omitempty"`
	TrackHistory   *bool    `yaml:"track_history,omitempty"`
}

// SchedulerConfig holds plan runner defaults.
type SchedulerConfig struct {
	MaxParallel     int  `yaml:"max_parallel,omitempty"`
	ContinueOnError bool `yaml:"continue_on_error,omitempty"`
}

// SelectorConfig holds selection engine defaults.
type SelectorConfig struct {
	Strategy      string   `yaml:"strategy,omitempty"`
	MinScore      float64  `yaml:"min_score,omitempty"`
	MaxTools      int      `yaml:"max_tools,omitempty"`
	CacheTTL      Duration `yaml:"cache_ttl,omitempty"`
	CacheCapacity int      `yaml:"cache_capacity,omitempty"`
}

// EventsConfig holds event persistence settings.
type EventsConfig struct {
	// StoreDSN is a SQLite DSN for the event store; empty keeps events
	// in memory only.
	StoreDSN       string   `yaml:"store_dsn,omitempty"`
	RetentionAge   Duration `yaml:"retention_age,omitempty"`
	RetentionCount int      `yaml:"retention_count,omitempty"`
}

// OtelConfig holds OpenTelemetry export settings.
type OtelConfig struct {
	// Endpoint is an OTLP/HTTP collector address (host:port, no scheme);
	// empty disables the bridge.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// ScheduleConfig declares one recurring plan run for the daemon.
type ScheduleConfig struct {
	Name string `yaml:"name"`
	Cron string `yaml:"cron"`
	Plan string `yaml:"plan"`
}

// Config is the root configuration shape for toolflow.yaml.
type Config struct {
	Executor  ExecutorConfig   `yaml:"executor,omitempty"`
	Scheduler SchedulerConfig  `yaml:"scheduler,omitempty"`
	Selector  SelectorConfig   `yaml:"selector,omitempty"`
	Events    EventsConfig     `yaml:"events,omitempty"`
	Otel      OtelConfig       `yaml:"otel,omitempty"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Executor: ExecutorConfig{
			DefaultTimeout: Duration(30 * time.Second),
		},
		Scheduler: SchedulerConfig{
			MaxParallel: 4,
		},
		Selector: SelectorConfig{
			Strategy:      "hybrid",
			MinScore:      0.1,
			MaxTools:      5,
			CacheTTL:      Duration(5 * time.Minute),
			CacheCapacity: 100,
		},
	}
}

// Discover resolves the config file location with first-match semantics.
// It returns the path and whether a file was found.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	var candidates []string
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates,
			filepath.Join(cwd, projectConfigName),
			filepath.Join(homeDir, homeConfigDir, homeConfigName),
		)
	}

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if strings.TrimSpace(explicitPath) != "" {
					return "", false, fmt.Errorf("config file not found: %s", path)
				}
				continue
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			continue
		}
		return path, true, nil
	}
	return "", false, nil
}

// Load reads and parses the config at path, overlaying it on defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Scheduler.MaxParallel < 0 {
		return fmt.Errorf("scheduler.max_parallel must not be negative")
	}
	if c.Selector.MinScore < 0 || c.Selector.MinScore > 1 {
		return fmt.Errorf("selector.min_score must be in [0,1]")
	}
	if c.Selector.MaxTools < 0 {
		return fmt.Errorf("selector.max_tools must not be negative")
	}
	switch c.Selector.Strategy {
	case "", "keyword", "capability", "historical", "hybrid", "adaptive":
	default:
		return fmt.Errorf("unknown selector.strategy %q", c.Selector.Strategy)
	}
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("schedules[%d] has no name", i)
		}
		if strings.TrimSpace(s.Cron) == "" {
			return fmt.Errorf("schedule %q has no cron expression", s.Name)
		}
		if strings.TrimSpace(s.Plan) == "" {
			return fmt.Errorf("schedule %q has no plan file", s.Name)
		}
	}
	return nil
}
