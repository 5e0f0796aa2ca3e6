package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sweep.FMin != DefaultFMin || cfg.Sweep.FMax != DefaultFMax {
		t.Errorf("range = %s..%s, want %s..%s", cfg.Sweep.FMin, cfg.Sweep.FMax, DefaultFMin, DefaultFMax)
	}
	if cfg.Sweep.Modes != DefaultModes {
		t.Errorf("Modes = %d, want %d", cfg.Sweep.Modes, DefaultModes)
	}
	if cfg.Sweep.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %g, want %g", cfg.Sweep.Threshold, DefaultThreshold)
	}
	if cfg.Sweep.Prefix != "em_setup" {
		t.Errorf("Prefix = %q, want em_setup", cfg.Sweep.Prefix)
	}
	if cfg.Sweep.Backoff != DefaultBackoff {
		t.Errorf("Backoff = %v, want %v", cfg.Sweep.Backoff, DefaultBackoff)
	}
	if !cfg.Sweep.Convergence.RealFrequency || cfg.Sweep.Convergence.MaxPasses != 10 || cfg.Sweep.Convergence.MinPasses != 3 {
		t.Errorf("Convergence = %+v", cfg.Sweep.Convergence)
	}
	if !cfg.History.Enabled || cfg.History.Path == "" {
		t.Errorf("History = %+v, want enabled with a path", cfg.History)
	}
	if cfg.Format != "pretty" {
		t.Errorf("Format = %q, want pretty", cfg.Format)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := isolate(t)
	cfgDir := filepath.Join(dir, "config", "resweep")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
sweep:
  fmin: 500MHz
  fmax: 3GHz
  modes: 12
  threshold: 25
  timeout: 45m
solver:
  cores: 16
history:
  path: ~/runs
daemon:
  metrics_addr: 127.0.0.1:9464
`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sweep.FMin != "500MHz" || cfg.Sweep.FMax != "3GHz" {
		t.Errorf("range = %s..%s", cfg.Sweep.FMin, cfg.Sweep.FMax)
	}
	if cfg.Sweep.Modes != 12 || cfg.Sweep.Threshold != 25 {
		t.Errorf("Modes/Threshold = %d/%g", cfg.Sweep.Modes, cfg.Sweep.Threshold)
	}
	if cfg.Sweep.Timeout != 45*time.Minute {
		t.Errorf("Timeout = %v, want 45m", cfg.Sweep.Timeout)
	}
	if cfg.Solver.Cores != 16 {
		t.Errorf("Cores = %d, want 16", cfg.Solver.Cores)
	}
	if cfg.History.Path != filepath.Join(dir, "runs") {
		t.Errorf("History.Path = %q, want ~ expanded", cfg.History.Path)
	}
	// Unset keys keep their defaults.
	if cfg.Sweep.Prefix != DefaultPrefix {
		t.Errorf("Prefix = %q, want default", cfg.Sweep.Prefix)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("RESWEEP_SWEEP_MODES", "8")
	t.Setenv("RESWEEP_SWEEP_FMAX", "4GHz")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sweep.Modes != 8 {
		t.Errorf("Modes = %d, want 8", cfg.Sweep.Modes)
	}
	if cfg.Sweep.FMax != "4GHz" {
		t.Errorf("FMax = %q, want 4GHz", cfg.Sweep.FMax)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"too many modes", map[string]string{"RESWEEP_SWEEP_MODES": "21"}},
		{"zero modes", map[string]string{"RESWEEP_SWEEP_MODES": "0"}},
		{"zero threshold", map[string]string{"RESWEEP_SWEEP_THRESHOLD": "0"}},
		{"bad frequency", map[string]string{"RESWEEP_SWEEP_FMIN": "fast"}},
		{"inverted range", map[string]string{"RESWEEP_SWEEP_FMIN": "3GHz"}},
		{"equal range", map[string]string{"RESWEEP_SWEEP_FMIN": "2GHz"}},
		{"passes inverted", map[string]string{"RESWEEP_SWEEP_CONVERGENCE_MIN_PASSES": "11"}},
		{"bad log level", map[string]string{"RESWEEP_LOGGING_LEVEL": "chatty"}},
		{"bad metrics addr", map[string]string{"RESWEEP_DAEMON_METRICS_ADDR": "not an address"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() succeeded, want validation error")
			} else if !strings.Contains(err.Error(), "invalid configuration") {
				t.Errorf("Load() error = %v, want invalid configuration", err)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading default config: %v", err)
	}
	if !strings.Contains(string(data), "threshold: 10") {
		t.Errorf("default config missing threshold:\n%s", data)
	}

	// The written file must load cleanly.
	if _, err := Load(); err != nil {
		t.Errorf("Load() after WriteDefault() error = %v", err)
	}

	// A second call leaves user edits alone.
	if err := os.WriteFile(path, []byte("sweep:\n  modes: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "sweep:\n  modes: 4\n" {
		t.Errorf("WriteDefault() overwrote existing config")
	}
}

func TestRotationMaxSizeBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"10MB", 10_000_000, false},
		{"1MiB", 1 << 20, false},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		got, err := RotationConfig{MaxSize: tt.in}.MaxSizeBytes()
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("MaxSizeBytes(%q) = %d, %v; want %d, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestExpandPath(t *testing.T) {
	dir := isolate(t)
	got, err := ExpandPath("~/x/y")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "x", "y") {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got, _ := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %q", got)
	}
}

func TestDefaultBinaryPath(t *testing.T) {
	dir := isolate(t)
	t.Setenv("GOPATH", "")
	bin := filepath.Join(dir, "bin")
	t.Setenv("GOBIN", bin)

	if got := DefaultBinaryPath(); got != "" {
		t.Errorf("DefaultBinaryPath() = %q, want empty", got)
	}

	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(bin, DaemonBinary)
	if err := os.WriteFile(want, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := DefaultBinaryPath(); got != want {
		t.Errorf("DefaultBinaryPath() = %q, want %q", got, want)
	}
}

func TestLoggingConversion(t *testing.T) {
	lc := LoggingConfig{
		Level:      "debug",
		Path:       "/var/log/resweep.log",
		Rotation:   RotationConfig{MaxSize: "1MiB", MaxBackups: 2},
		Components: map[string]string{"daemon": "warn"},
	}
	got, err := lc.Logging("error")
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != "debug" || got.Path != "/var/log/resweep.log" || got.Console != "error" {
		t.Errorf("Logging() = %+v", got)
	}
	if got.Rotation.MaxSize != 1<<20 || got.Rotation.MaxBackups != 2 || got.Rotation.MaxAge != 30 {
		t.Errorf("rotation = %+v", got.Rotation)
	}
	if got.Components["daemon"] != "warn" {
		t.Errorf("components = %v", got.Components)
	}

	if _, err := (LoggingConfig{Rotation: RotationConfig{MaxSize: "huge"}}).Logging(""); err == nil {
		t.Error("expected error for unparseable max_size")
	}
}
