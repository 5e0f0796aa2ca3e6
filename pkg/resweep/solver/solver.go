// Package solver defines the contract between the resonance sweep controller
// and an eigenmode Solver Service, together with the data types that cross it.
//
// A Service is an opaque, session-bound compute resource. Callers create a
// named analysis configuration, run it, then read per-mode result quantities
// in two categories (mode frequency and quality factor).
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
)

// Mode count bounds accepted by a single configuration.
const (
	MinModeCount = 1
	MaxModeCount = 20
)

// Default convergence parameters applied to new configurations.
const (
	DefaultMaxPasses           = 10
	DefaultMinPasses           = 3
	DefaultMaxDeltaFreqPercent = 5.0
)

// ErrUnavailable indicates that the service cannot execute a request right
// now (session down, licence unavailable, busy). It is transient.
var ErrUnavailable = errors.New("solver unavailable")

// ErrInvalidConfiguration indicates that a configuration was rejected.
var ErrInvalidConfiguration = errors.New("invalid solver configuration")

// ErrUnknownHandle indicates that a handle does not name a known configuration.
var ErrUnknownHandle = errors.New("unknown configuration handle")

// ErrDuplicateConfiguration indicates that a configuration name is taken.
var ErrDuplicateConfiguration = errors.New("configuration already exists")

// ErrNotSolved indicates that results were requested before a run completed.
var ErrNotSolved = errors.New("configuration has not been solved")

// ErrUnpairedMode indicates that a mode reported a value in one result
// category but not the other.
var ErrUnpairedMode = errors.New("mode missing frequency or quality factor")

// Configuration describes one eigenmode analysis. It is passed by value and
// must not change after it has been submitted.
type Configuration struct {
	// MinimumFrequency is the lower bound for the modes the solver searches.
	MinimumFrequency freq.Frequency `json:"minimum_frequency"`

	// ModeCount is the number of modes to solve for (1..20).
	ModeCount int `json:"mode_count"`

	// ConvergeOnRealFreq converges the adaptive passes on the real part of
	// the eigenfrequency only.
	ConvergeOnRealFreq bool `json:"converge_on_real_freq"`

	// MaxPasses is the upper bound on adaptive passes.
	MaxPasses int `json:"max_passes"`

	// MinPasses is the lower bound on adaptive passes.
	MinPasses int `json:"min_passes"`

	// MaxDeltaFreqPercent is the frequency change between passes, in percent,
	// below which the solution is considered converged.
	MaxDeltaFreqPercent float64 `json:"max_delta_freq_percent"`
}

// NewConfiguration returns a configuration with the default convergence
// parameters for the given minimum frequency and mode count.
func NewConfiguration(minFreq freq.Frequency, modes int) Configuration {
	return Configuration{
		MinimumFrequency:    minFreq,
		ModeCount:           modes,
		ConvergeOnRealFreq:  true,
		MaxPasses:           DefaultMaxPasses,
		MinPasses:           DefaultMinPasses,
		MaxDeltaFreqPercent: DefaultMaxDeltaFreqPercent,
	}
}

// Validate checks the configuration against the limits every service enforces.
func (c Configuration) Validate() error {
	if !c.MinimumFrequency.Valid() {
		return fmt.Errorf("%w: minimum frequency %v", ErrInvalidConfiguration, float64(c.MinimumFrequency))
	}
	if c.ModeCount < MinModeCount || c.ModeCount > MaxModeCount {
		return fmt.Errorf("%w: mode count %d outside [%d,%d]",
			ErrInvalidConfiguration, c.ModeCount, MinModeCount, MaxModeCount)
	}
	if c.MinPasses < 0 || c.MaxPasses < c.MinPasses {
		return fmt.Errorf("%w: passes min=%d max=%d", ErrInvalidConfiguration, c.MinPasses, c.MaxPasses)
	}
	if c.MaxDeltaFreqPercent < 0 {
		return fmt.Errorf("%w: max delta %g%%", ErrInvalidConfiguration, c.MaxDeltaFreqPercent)
	}
	return nil
}

// Handle identifies a configuration created on a service.
type Handle struct {
	// Name is the unique configuration name, e.g. "em_setup3".
	Name string `json:"name"`
}

// ComputeResources is the compute allocation requested for a run.
type ComputeResources struct {
	// Cores is the number of CPU cores the solver may use. Zero lets the
	// service decide.
	Cores int `json:"cores"`

	// Tasks is the number of parallel distributed tasks. Zero lets the
	// service decide.
	Tasks int `json:"tasks"`

	// AutoSettings lets the service pick its own distribution settings.
	AutoSettings bool `json:"auto_settings"`
}

// RunResult summarizes a completed run.
type RunResult struct {
	// Passes is the number of adaptive passes the solver performed.
	Passes int `json:"passes"`

	// Converged reports whether the convergence criterion was met.
	Converged bool `json:"converged"`
}

// Category selects a family of result quantities.
type Category string

// Result categories used by the sweep.
const (
	// CategoryFrequency lists the eigenmode frequencies, one quantity per mode.
	CategoryFrequency Category = "Eigen Modes"

	// CategoryQuality lists the quality factors, one quantity per mode.
	CategoryQuality Category = "Eigen Q"
)

// QuantityName names one result quantity. Mode is the 1-based mode index the
// quantity belongs to, which is the key used to pair categories.
type QuantityName struct {
	Name string `json:"name"`
	Mode int    `json:"mode"`
}

// ModeSample is one solved mode.
type ModeSample struct {
	Mode      int            `json:"mode"`
	Q         float64        `json:"q"`
	Frequency freq.Frequency `json:"frequency"`
}

// Service is the narrow interface an eigenmode solver exposes.
//
// Implementations are bound to a single solver session and are not required
// to support overlapping requests.
type Service interface {
	// CreateConfiguration registers a named configuration.
	CreateConfiguration(ctx context.Context, name string, cfg Configuration) (Handle, error)

	// Run solves the configuration and blocks until it completes.
	Run(ctx context.Context, h Handle, res ComputeResources) (RunResult, error)

	// ListResultQuantities returns the quantity names in a category, ordered
	// by mode index.
	ListResultQuantities(ctx context.Context, h Handle, c Category) ([]QuantityName, error)

	// QuantityValue returns the first value of the quantity's series, which
	// is the value at the last adaptive pass.
	QuantityValue(ctx context.Context, h Handle, q QuantityName) (float64, error)
}
