package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/obsched/core/factory"
	"github.com/kilianp07/obsched/core/metrics"
	"github.com/kilianp07/obsched/core/runlog"
	"github.com/kilianp07/obsched/core/solver"
	"github.com/kilianp07/obsched/infra/logger"
	"github.com/kilianp07/obsched/infra/mqtt"
	"github.com/kilianp07/obsched/internal/dataset"
)

// EnvPrefix marks environment overrides. OBSCHED_SOLVER__TYPE=greedy sets
// solver.type.
const EnvPrefix = "OBSCHED_"

type Config struct {
	Schedule  ScheduleConfig          `json:"schedule"`
	Priority  PriorityConfig          `json:"priority"`
	Solver    factory.ModuleConfig    `json:"solver"`
	RunLog    factory.ModuleConfig    `json:"run_log"`
	Metrics   metrics.Config          `json:"metrics"`
	MQTT      mqtt.Config             `json:"mqtt"`
	Report    ReportConfig            `json:"report"`
	Log       logger.Options          `json:"log"`
	Generator dataset.GenerateOptions `json:"generator"`
}

// Load reads the configuration file at path, applies environment overrides,
// defaults and validation. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Schedule.SetDefaults()
	c.Priority.SetDefaults()
	c.Report.SetDefaults()
	if c.Solver.Type == "" {
		c.Solver.Type = solver.TypeBranchAndBound
	}
	if c.Solver.Conf == nil {
		c.Solver.Conf = map[string]any{}
	}
	if _, ok := c.Solver.Conf["time_limit"]; !ok {
		c.Solver.Conf["time_limit"] = solver.DefaultTimeLimit.String()
	}
	if c.Generator == (dataset.GenerateOptions{}) {
		c.Generator = dataset.DefaultGenerateOptions()
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if !slices.Contains(solver.Registry.Names(), c.Solver.Type) {
		return fmt.Errorf("solver: unknown type %q (known: %v)", c.Solver.Type, solver.Registry.Names())
	}
	if c.RunLog.Type != "" && !slices.Contains(runlog.Types(), c.RunLog.Type) {
		return fmt.Errorf("run_log: unknown type %q (known: %v)", c.RunLog.Type, runlog.Types())
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := c.Priority.Validate(); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	return nil
}
