// Package config loads runtime configuration from TOML or YAML files.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/heap"
	"github.com/wippyai/isolates/isolate"
)

// MainIsolate names the isolate entry that configures the main isolate.
const MainIsolate = "main"

// Config is the runtime configuration.
type Config struct {
	Log      LogConfig       `toml:"log" yaml:"log"`
	Metrics  MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Isolates []IsolateConfig `toml:"isolate" yaml:"isolates"`
	Release  ReleaseConfig   `toml:"release" yaml:"release"`
	Heap     HeapConfig      `toml:"heap" yaml:"heap"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `toml:"level" yaml:"level"`
	Development bool   `toml:"development" yaml:"development"`
}

// HeapConfig sizes every isolate heap, in 64KiB pages.
type HeapConfig struct {
	InitialPages uint32 `toml:"initial_pages" yaml:"initial_pages"`
	MaxPages     uint32 `toml:"max_pages" yaml:"max_pages"`
}

// ReleaseConfig throttles leak reports.
type ReleaseConfig struct {
	LeakReportsPerSecond float64 `toml:"leak_reports_per_second" yaml:"leak_reports_per_second"`
	LeakBurst            int     `toml:"leak_burst" yaml:"leak_burst"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// IsolateConfig declares an isolate and its initial main bindings.
type IsolateConfig struct {
	Bindings map[string]any `toml:"bindings" yaml:"bindings"`
	Name     string         `toml:"name" yaml:"name"`
	Serve    bool           `toml:"serve" yaml:"serve"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Heap: HeapConfig{
			InitialPages: 1,
			MaxPages:     256,
		},
		Release: ReleaseConfig{
			LeakReportsPerSecond: 10,
			LeakBurst:            10,
		},
		Isolates: []IsolateConfig{{Name: "worker", Serve: true}},
	}
}

// Load reads path, choosing the format from its extension. Values not
// set in the file keep their defaults. Environment overrides are applied
// before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, fmt.Sprintf("cannot read %s", path))
	}
	cfg, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data in the given format ("toml", "yaml" or "yml").
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()
	// A file that lists isolates replaces the default list.
	cfg.Isolates = nil

	switch strings.ToLower(format) {
	case "toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse toml")
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse yaml")
		}
	default:
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unsupported config format %q", format))
	}

	if len(cfg.Isolates) == 0 {
		cfg.Isolates = Default().Isolates
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from ISOLATES_LOG_LEVEL and ISOLATES_METRICS_ADDR.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("ISOLATES_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("ISOLATES_METRICS_ADDR"); ok {
		c.Metrics.Addr = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Heap.InitialPages == 0 || c.Heap.MaxPages == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "heap pages must be positive")
	}
	if c.Heap.MaxPages < c.Heap.InitialPages {
		return errors.InvalidInput(errors.PhaseConfig, "heap max_pages is below initial_pages")
	}
	if c.Release.LeakReportsPerSecond < 0 || c.Release.LeakBurst < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "leak report rate must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	if len(c.Isolates) == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "no isolates configured")
	}

	seen := make(map[string]bool, len(c.Isolates))
	for _, ic := range c.Isolates {
		if ic.Name == "" {
			return errors.InvalidInput(errors.PhaseConfig, "isolate without a name")
		}
		if seen[ic.Name] {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("duplicate isolate %q", ic.Name))
		}
		seen[ic.Name] = true
		if _, err := ic.MainBindings(); err != nil {
			return err
		}
	}
	return nil
}

// Logger builds a zap logger from the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// HeapConfig returns the heap settings for isolate.WithHeapConfig.
func (c *Config) HeapConfig() heap.Config {
	return heap.Config{
		InitialPages: c.Heap.InitialPages,
		MaxPages:     c.Heap.MaxPages,
	}
}

// LeakLimit returns the settings for xidata.WithLeakLimit.
func (c *Config) LeakLimit() (rate.Limit, int) {
	return rate.Limit(c.Release.LeakReportsPerSecond), c.Release.LeakBurst
}

// MainBindings returns the isolate's configured bindings in sorted order
// with values normalized to int, float64, string or bool.
func (ic IsolateConfig) MainBindings() (*isolate.Bindings, error) {
	values := make(map[string]any, len(ic.Bindings))
	for name, v := range ic.Bindings {
		nv, err := Normalize(v)
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseConfig,
				fmt.Sprintf("isolate %q binding %q: %v", ic.Name, name, err))
		}
		values[name] = nv
	}
	return isolate.BindingsFrom(values), nil
}

// Normalize converts a decoded scalar to the type it is shared as.
func Normalize(v any) (any, error) {
	switch n := v.(type) {
	case nil, bool, string, float64, int:
		return n, nil
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return nil, fmt.Errorf("integer %d out of range", n)
		}
		return int(n), nil
	case int32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return nil, fmt.Errorf("integer %d out of range", n)
		}
		return int(n), nil
	case float32:
		return float64(n), nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}
