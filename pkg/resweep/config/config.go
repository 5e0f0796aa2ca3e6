package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// ConvergenceConfig holds the adaptive-pass settings of each solver configuration.
type ConvergenceConfig struct {
	RealFrequency bool    `mapstructure:"real_frequency"`
	MaxPasses     int     `mapstructure:"max_passes" validate:"min=1"`
	MinPasses     int     `mapstructure:"min_passes" validate:"min=0,ltefield=MaxPasses"`
	MaxDeltaFreq  float64 `mapstructure:"max_delta_freq" validate:"gte=0"`
}

// SweepConfig holds the default sweep request and loop limits.
type SweepConfig struct {
	FMin          string            `mapstructure:"fmin" validate:"required,frequency"`
	FMax          string            `mapstructure:"fmax" validate:"required,frequency"`
	Modes         int               `mapstructure:"modes" validate:"min=1,max=20"`
	Threshold     float64           `mapstructure:"threshold" validate:"gt=0"`
	Prefix        string            `mapstructure:"prefix" validate:"required,excludesall=/"`
	MaxIterations int               `mapstructure:"max_iterations" validate:"min=1"`
	Timeout       time.Duration     `mapstructure:"timeout" validate:"min=0"`
	Retries       int               `mapstructure:"retries" validate:"min=0,max=10"`
	Backoff       time.Duration     `mapstructure:"backoff" validate:"min=0"`
	Convergence   ConvergenceConfig `mapstructure:"convergence"`
}

// SolverConfig holds the compute resources requested for each run.
// Zero cores means "use the detected core count".
type SolverConfig struct {
	Cores        int  `mapstructure:"cores" validate:"min=0"`
	Tasks        int  `mapstructure:"tasks" validate:"min=0"`
	AutoSettings bool `mapstructure:"auto_settings"`
}

// DaemonConfig configures resweepd and how the CLI reaches it.
type DaemonConfig struct {
	AutoStart   bool   `mapstructure:"auto_start"`
	BinaryPath  string `mapstructure:"binary_path"`
	SocketPath  string `mapstructure:"socket_path"`
	PIDPath     string `mapstructure:"pid_path"`
	DataDir     string `mapstructure:"data_dir"`
	Catalog     string `mapstructure:"catalog"`
	MetricsAddr string `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// HistoryConfig configures the saved sweep history.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days" validate:"min=0"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
}

// MaxSizeBytes parses MaxSize ("10MB", "512KiB"). Empty means zero.
func (r RotationConfig) MaxSizeBytes() (int64, error) {
	if r.MaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(r.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("parsing rotation max_size %q: %w", r.MaxSize, err)
	}
	return int64(n), nil
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Logging converts the section into a logging.Config. console sets the
// stderr mirror level; empty disables it.
func (l LoggingConfig) Logging(console string) (logging.Config, error) {
	cfg := logging.DefaultConfig()
	if l.Level != "" {
		cfg.Level = l.Level
	}
	if l.Path != "" {
		cfg.Path = l.Path
	}
	size, err := l.Rotation.MaxSizeBytes()
	if err != nil {
		return logging.Config{}, err
	}
	if size > 0 {
		cfg.Rotation.MaxSize = size
	}
	if l.Rotation.MaxBackups > 0 {
		cfg.Rotation.MaxBackups = l.Rotation.MaxBackups
	}
	if l.Rotation.MaxAge > 0 {
		cfg.Rotation.MaxAge = l.Rotation.MaxAge
	}
	cfg.Components = l.Components
	cfg.Console = console
	return cfg, nil
}

// Config represents the application configuration.
type Config struct {
	Sweep   SweepConfig   `mapstructure:"sweep"`
	Solver  SolverConfig  `mapstructure:"solver"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
	Format  string        `mapstructure:"format" validate:"required"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("frequency", validateFrequency)
}

func validateFrequency(fl validator.FieldLevel) bool {
	_, err := freq.Parse(fl.Field().String())
	return err == nil
}

// Validate checks field constraints and that FMin lies below FMax.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmin, _ := freq.Parse(c.Sweep.FMin)
	fmax, _ := freq.Parse(c.Sweep.FMax)
	if fmin >= fmax {
		return fmt.Errorf("invalid configuration: sweep.fmin (%s) must be below sweep.fmax (%s)", c.Sweep.FMin, c.Sweep.FMax)
	}
	return nil
}

// SetDefaults registers every default on v. The CLI applies it to the
// global viper instance so flags, env and file layer over the same keys.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sweep.fmin", DefaultFMin)
	v.SetDefault("sweep.fmax", DefaultFMax)
	v.SetDefault("sweep.modes", DefaultModes)
	v.SetDefault("sweep.threshold", DefaultThreshold)
	v.SetDefault("sweep.prefix", DefaultPrefix)
	v.SetDefault("sweep.max_iterations", DefaultMaxIterations)
	v.SetDefault("sweep.timeout", time.Duration(0))
	v.SetDefault("sweep.retries", DefaultRetries)
	v.SetDefault("sweep.backoff", DefaultBackoff)
	v.SetDefault("sweep.convergence.real_frequency", true)
	v.SetDefault("sweep.convergence.max_passes", DefaultMaxPasses)
	v.SetDefault("sweep.convergence.min_passes", DefaultMinPasses)
	v.SetDefault("sweep.convergence.max_delta_freq", DefaultMaxDeltaFreq)

	v.SetDefault("solver.cores", 0)
	v.SetDefault("solver.tasks", 0)
	v.SetDefault("solver.auto_settings", true)

	v.SetDefault("daemon.auto_start", false)
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.data_dir", "")
	v.SetDefault("daemon.catalog", "")
	v.SetDefault("daemon.metrics_addr", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.components", map[string]string{
		"controller": "info",
		"daemon":     "info",
		"watcher":    "warn",
	})

	v.SetDefault("format", DefaultFormat)
}

// Configure points v at the config file locations and RESWEEP_ environment
// variables:
//   - $XDG_CONFIG_HOME/resweep/config.yaml
//   - $HOME/.config/resweep/config.yaml
//
// Nested keys map to variables with dots replaced, e.g. RESWEEP_SWEEP_FMAX.
func Configure(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := ConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix("RESWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// Decode unmarshals v into a Config, expands paths and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, p := range []*string{&cfg.History.Path, &cfg.Daemon.SocketPath, &cfg.Daemon.PIDPath,
		&cfg.Daemon.DataDir, &cfg.Daemon.Catalog, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	if cfg.History.Path == "" {
		cfg.History.Path = HistoryDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from file and environment into a fresh viper
// instance. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	Configure(v)
	if err := ReadInConfig(v); err != nil {
		return nil, err
	}
	return Decode(v)
}

// ReadInConfig reads the config file, ignoring a missing one.
func ReadInConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// ConfigDir returns the configuration directory, honouring XDG_CONFIG_HOME.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "resweep"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "resweep"), nil
}

// ConfigPath returns the path of the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/resweep for the database, socket and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "resweep")
}

// StateDir returns $XDG_STATE_HOME/resweep for logs and history.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "resweep")
}

// HistoryDir returns the default sweep history directory.
func HistoryDir() string {
	return filepath.Join(StateDir(), "history")
}

// DefaultSocketPath returns the default daemon socket.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "resweepd.sock")
}

// DefaultPIDPath returns the default daemon PID file.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "resweepd.pid")
}

// DefaultDBPath returns the default daemon database directory.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "store")
}

// DefaultCatalogPath returns the default mode catalog served by the daemon.
func DefaultCatalogPath() string {
	return filepath.Join(DataDir(), "catalog.yaml")
}

// WriteDefault writes a commented default config file and returns its path.
// An existing file is left untouched.
func WriteDefault() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// DaemonBinary is the name of the daemon executable.
const DaemonBinary = "resweepd"

// DefaultBinaryPath looks for resweepd in $GOBIN, $GOPATH/bin and
// $HOME/go/bin, returning "" when it is in none of them.
func DefaultBinaryPath() string {
	var dirs []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		dirs = append(dirs, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		for _, p := range filepath.SplitList(gopath) {
			dirs = append(dirs, filepath.Join(p, "bin"))
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, DaemonBinary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
