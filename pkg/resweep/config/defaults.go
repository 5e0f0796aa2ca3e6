// Package config provides configuration management for resweep.
package config

import "time"

// Default configuration values.
const (
	// DefaultFMin is the lower edge of the sweep range.
	DefaultFMin = "1GHz"

	// DefaultFMax is the upper edge of the sweep range.
	DefaultFMax = "2GHz"

	// DefaultModes is the number of modes solved per iteration.
	DefaultModes = 6

	// DefaultThreshold is the quality factor a mode must exceed to be kept.
	DefaultThreshold = 10.0

	// DefaultPrefix names solver configurations em_setup1, em_setup2, ...
	DefaultPrefix = "em_setup"

	// DefaultMaxIterations caps the number of solver configurations per sweep.
	DefaultMaxIterations = 100

	// DefaultRetries is the number of retries after a transient solver failure.
	DefaultRetries = 2

	// DefaultBackoff is the wait before the first retry; it doubles per retry.
	DefaultBackoff = 2 * time.Second

	// DefaultMaxPasses and DefaultMinPasses bound the adaptive passes.
	DefaultMaxPasses = 10
	DefaultMinPasses = 3

	// DefaultMaxDeltaFreq is the convergence criterion in percent.
	DefaultMaxDeltaFreq = 5.0

	// DefaultRetentionDays is how long sweep history is kept.
	DefaultRetentionDays = 90

	// DefaultFormat is the report format used when none is given.
	DefaultFormat = "pretty"
)

// defaultFile is written by WriteDefault.
const defaultFile = `# resweep configuration

sweep:
  # Frequency range to cover. Units: Hz, kHz, MHz, GHz, THz (case-insensitive).
  fmin: 1GHz
  fmax: 2GHz
  # Modes solved per iteration (1-20). More modes cost superlinearly more time.
  modes: 6
  # Modes with a quality factor above this value are reported as physical.
  threshold: 10
  # Solver configurations are named <prefix>1, <prefix>2, ...
  prefix: em_setup
  max_iterations: 100
  # Per-iteration wall-clock limit, e.g. 30m. 0 disables it.
  timeout: 0
  # Retries after a transient solver failure, with doubling backoff.
  retries: 2
  backoff: 2s
  convergence:
    real_frequency: true
    max_passes: 10
    min_passes: 3
    max_delta_freq: 5

solver:
  # CPU cores per run. 0 uses every detected core.
  cores: 0
  tasks: 0
  auto_settings: true

daemon:
  auto_start: false
  # Empty paths use $XDG_DATA_HOME/resweep/...
  socket_path: ""
  pid_path: ""
  data_dir: ""
  # Mode catalog served by resweepd's replay solver.
  catalog: ""
  # Prometheus listen address, e.g. 127.0.0.1:9464. Empty disables metrics.
  metrics_addr: ""

history:
  enabled: true
  # Empty uses $XDG_STATE_HOME/resweep/history
  path: ""
  retention_days: 90

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty uses $XDG_STATE_HOME/resweep/resweep.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
  components:
    controller: info
    daemon: info
    watcher: warn

# Report format: pretty, plain, json, jsonl, yaml, tsv
format: pretty
`
