package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/time/rate"

	"github.com/wippyai/isolates/errors"
)

const tomlConfig = `
[log]
level = "debug"

[heap]
initial_pages = 2
max_pages = 64

[release]
leak_reports_per_second = 1.5
leak_burst = 3

[metrics]
addr = ":9100"

[[isolate]]
name = "main"
[isolate.bindings]
greeting = "hello"

[[isolate]]
name = "worker"
serve = true
[isolate.bindings]
n = 42
ratio = 0.5
on = true
`

const yamlConfig = `
log:
  level: warn
  development: true
heap:
  max_pages: 8
isolates:
  - name: worker
    bindings:
      n: 7
      label: seven
`

func TestParse_TOML(t *testing.T) {
	cfg, err := Parse([]byte(tomlConfig), "toml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Heap.InitialPages != 2 || cfg.Heap.MaxPages != 64 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if r, b := cfg.LeakLimit(); r != rate.Limit(1.5) || b != 3 {
		t.Fatalf("LeakLimit = %v, %d", r, b)
	}
	if len(cfg.Isolates) != 2 || cfg.Isolates[0].Name != MainIsolate || !cfg.Isolates[1].Serve {
		t.Fatalf("isolates = %+v", cfg.Isolates)
	}

	b, err := cfg.Isolates[1].MainBindings()
	if err != nil {
		t.Fatalf("MainBindings failed: %v", err)
	}
	if got := b.Names(); !reflect.DeepEqual(got, []string{"n", "on", "ratio"}) {
		t.Fatalf("Names() = %v", got)
	}
	if v, _ := b.Get("n"); v != 42 {
		t.Fatalf("n = %#v, want int 42", v)
	}
	if v, _ := b.Get("ratio"); v != 0.5 {
		t.Fatalf("ratio = %#v", v)
	}
}

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse([]byte(yamlConfig), "yml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Log.Level != "warn" || !cfg.Log.Development {
		t.Fatalf("log = %+v", cfg.Log)
	}
	// Unset values keep their defaults.
	if cfg.Heap.InitialPages != 1 || cfg.Heap.MaxPages != 8 {
		t.Fatalf("heap = %+v", cfg.Heap)
	}
	b, err := cfg.Isolates[0].MainBindings()
	if err != nil {
		t.Fatalf("MainBindings failed: %v", err)
	}
	if v, _ := b.Get("label"); v != "seven" {
		t.Fatalf("label = %v", v)
	}
	if v, _ := b.Get("n"); v != 7 {
		t.Fatalf("n = %#v", v)
	}
}

func TestParse_DefaultIsolates(t *testing.T) {
	cfg, err := Parse([]byte("[log]\nlevel = \"info\"\n"), "toml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cfg.Isolates) != 1 || cfg.Isolates[0].Name != "worker" {
		t.Fatalf("isolates = %+v", cfg.Isolates)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"format", "", "ini"},
		{"syntax", "[log", "toml"},
		{"max below initial", "[heap]\ninitial_pages = 4\nmax_pages = 2\n", "toml"},
		{"negative rate", "[release]\nleak_reports_per_second = -1\n", "toml"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "toml"},
		{"duplicate", "isolates:\n  - name: a\n  - name: a\n", "yaml"},
		{"unnamed", "isolates:\n  - serve: true\n", "yaml"},
		{"bad binding", "isolates:\n  - name: a\n    bindings:\n      list: [1, 2]\n", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Heap.InitialPages = 0
	if err := cfg.Validate(); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	cfg = Default()
	cfg.Isolates = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty isolate list accepted")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "isolates.toml")
	if err := os.WriteFile(path, []byte(tomlConfig), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Metrics.Addr != ":9100" && os.Getenv("ISOLATES_METRICS_ADDR") == "" {
		t.Fatalf("metrics addr = %q", cfg.Metrics.Addr)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{"ISOLATES_LOG_LEVEL": "error", "ISOLATES_METRICS_ADDR": ":1"}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Log.Level != "error" || cfg.Metrics.Addr != ":1" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	l, err := cfg.Logger()
	if err != nil {
		t.Fatalf("Logger failed: %v", err)
	}
	if !l.Core().Enabled(-1) {
		t.Fatal("debug level not enabled")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      any
		want    any
		wantErr bool
	}{
		{int64(5), 5, false},
		{uint64(5), 5, false},
		{float32(0.5), 0.5, false},
		{"s", "s", false},
		{true, true, false},
		{nil, nil, false},
		{[]any{1}, nil, true},
		{map[string]any{}, nil, true},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Normalize(%#v) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Normalize(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
