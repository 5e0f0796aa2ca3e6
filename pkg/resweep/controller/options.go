package controller

import (
	"time"

	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// Defaults filled in by New for unset Options fields.
const (
	DefaultNamePrefix    = "em_setup"
	DefaultMaxIterations = 100
	DefaultRetryAttempts = 3
	DefaultBackoff       = 2 * time.Second
	DefaultMaxBackoff    = 30 * time.Second
)

// RetryPolicy bounds retries of transient solver failures. The n-th retry
// waits Backoff << n, capped at MaxBackoff.
type RetryPolicy struct {
	// Attempts is the total number of tries per solver call, including the first.
	Attempts int

	Backoff    time.Duration
	MaxBackoff time.Duration
}

// delay returns the wait before retry number n (0-based).
func (p RetryPolicy) delay(n int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	d := p.Backoff << n
	if d <= 0 || (p.MaxBackoff > 0 && d > p.MaxBackoff) {
		return p.MaxBackoff
	}
	return d
}

// Convergence holds the adaptive-pass settings copied into every configuration.
type Convergence struct {
	ConvergeOnRealFreq  bool
	MaxPasses           int
	MinPasses           int
	MaxDeltaFreqPercent float64
}

// DefaultConvergence returns real-frequency convergence with 3 to 10 passes
// and a 5 percent delta.
func DefaultConvergence() Convergence {
	return Convergence{
		ConvergeOnRealFreq:  true,
		MaxPasses:           solver.DefaultMaxPasses,
		MinPasses:           solver.DefaultMinPasses,
		MaxDeltaFreqPercent: solver.DefaultMaxDeltaFreqPercent,
	}
}

// Options configures a Controller.
type Options struct {
	// NamePrefix is prepended to the 1-based iteration number to name each
	// configuration: em_setup1, em_setup2, ...
	NamePrefix string

	// Session, when set, is appended to every solver-side name as
	// "<setup>@<session>" so that setups from different sweeps never
	// collide in a daemon that outlived an earlier sweep. Iteration.Setup
	// keeps the bare label.
	Session string

	// MaxIterations caps the number of configurations a sweep may run.
	MaxIterations int

	// IterationTimeout bounds the wall-clock time of one iteration
	// (create, run, and result harvest). Zero disables the limit.
	IterationTimeout time.Duration

	// Retry governs transient solver failures.
	Retry RetryPolicy

	// Resources is passed to every run.
	Resources solver.ComputeResources

	// Convergence is applied to every configuration.
	Convergence Convergence

	// OnProgress, if set, is called synchronously after every iteration.
	OnProgress func(Progress)
}

// DefaultOptions returns options suitable for an interactive sweep.
func DefaultOptions() Options {
	return Options{
		NamePrefix:    DefaultNamePrefix,
		MaxIterations: DefaultMaxIterations,
		Retry: RetryPolicy{
			Attempts:   DefaultRetryAttempts,
			Backoff:    DefaultBackoff,
			MaxBackoff: DefaultMaxBackoff,
		},
		Resources:   solver.ComputeResources{AutoSettings: true},
		Convergence: DefaultConvergence(),
	}
}

// applyDefaults fills unset fields with defaults.
func (o *Options) applyDefaults() {
	if o.NamePrefix == "" {
		o.NamePrefix = DefaultNamePrefix
	}
	if o.MaxIterations < 1 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Retry.Attempts < 1 {
		o.Retry.Attempts = 1
	}
	if o.Retry.MaxBackoff <= 0 {
		o.Retry.MaxBackoff = DefaultMaxBackoff
	}
	if o.Convergence == (Convergence{}) {
		o.Convergence = DefaultConvergence()
	}
}
