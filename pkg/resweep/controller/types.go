package controller

import (
	"fmt"
	"math"
	"time"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// Phase is the state of the sweep loop.
type Phase int

const (
	// PhaseScanning means the running minimum frequency is below the range maximum.
	PhaseScanning Phase = iota
	// PhaseDone means the running minimum frequency reached the range maximum.
	PhaseDone
)

// String returns "scanning" or "done".
func (p Phase) String() string {
	if p == PhaseDone {
		return "done"
	}
	return "scanning"
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "scanning":
		*p = PhaseScanning
	case "done":
		*p = PhaseDone
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// Request is the input to a sweep.
type Request struct {
	// Min is the lowest frequency of interest.
	Min freq.Frequency `json:"fmin"`

	// Max is the highest frequency of interest.
	Max freq.Frequency `json:"fmax"`

	// ModeCount is the number of modes solved per iteration (1..20).
	ModeCount int `json:"mode_count"`

	// QualityThreshold is the quality factor a mode must exceed to be kept.
	QualityThreshold float64 `json:"quality_threshold"`
}

// Validate reports an ErrConfiguration for unusable requests.
func (r Request) Validate() error {
	if !r.Min.Valid() || !r.Max.Valid() {
		return fmt.Errorf("%w: frequencies must be finite and non-negative", ErrConfiguration)
	}
	if r.Min >= r.Max {
		return fmt.Errorf("%w: fmin (%s) must be below fmax (%s)", ErrConfiguration, r.Min, r.Max)
	}
	if r.ModeCount < solver.MinModeCount || r.ModeCount > solver.MaxModeCount {
		return fmt.Errorf("%w: mode count %d outside [%d,%d]",
			ErrConfiguration, r.ModeCount, solver.MinModeCount, solver.MaxModeCount)
	}
	if math.IsNaN(r.QualityThreshold) || r.QualityThreshold <= 0 {
		return fmt.Errorf("%w: quality threshold must be positive, got %g", ErrConfiguration, r.QualityThreshold)
	}
	return nil
}

// ResonanceSet holds accepted modes in the order they were discovered.
// It only ever grows.
type ResonanceSet []solver.ModeSample

// Frequencies returns the frequency of every resonance.
func (rs ResonanceSet) Frequencies() []freq.Frequency {
	out := make([]freq.Frequency, len(rs))
	for i, m := range rs {
		out[i] = m.Frequency
	}
	return out
}

// Display returns each resonance frequency formatted for listing, e.g. "1.3 GHz".
func (rs ResonanceSet) Display() []string {
	out := make([]string, len(rs))
	for i, m := range rs {
		out[i] = m.Frequency.Display()
	}
	return out
}

// State is threaded through the loop; each iteration produces the next one.
type State struct {
	NextMinFrequency freq.Frequency `json:"next_min_frequency"`
	Resonances       ResonanceSet   `json:"resonances"`
	Iteration        int            `json:"iteration"`
	Phase            Phase          `json:"phase"`
}

// Iteration records what one solver configuration produced.
type Iteration struct {
	Index            int                 `json:"index"`
	Setup            string              `json:"setup"`
	Name             string              `json:"name,omitempty"`
	MinimumFrequency freq.Frequency      `json:"minimum_frequency"`
	Modes            []solver.ModeSample `json:"modes"`
	Accepted         int                 `json:"accepted"`
	Attempts         int                 `json:"attempts"`
	Passes           int                 `json:"passes"`
	Converged        bool                `json:"converged"`
	Elapsed          time.Duration       `json:"elapsed"`
}

// Result is the outcome of a sweep. On failure it holds whatever was
// collected before the error.
type Result struct {
	Request    Request       `json:"request"`
	Resonances ResonanceSet  `json:"resonances"`
	Display    []string      `json:"display"`
	Iterations []Iteration   `json:"iterations"`
	State      State         `json:"state"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Setups returns the solver-side names of the configurations the sweep
// created, in order.
func (r *Result) Setups() []string {
	out := make([]string, 0, len(r.Iterations))
	for _, it := range r.Iterations {
		switch {
		case it.Name != "":
			out = append(out, it.Name)
		case it.Setup != "":
			out = append(out, it.Setup)
		}
	}
	return out
}

// Progress is reported after every iteration.
type Progress struct {
	State     State
	Iteration Iteration
	Request   Request
}

// Coverage returns the fraction of [Min, Max] swept so far, in [0, 1].
func (p Progress) Coverage() float64 {
	span := float64(p.Request.Max - p.Request.Min)
	if span <= 0 {
		return 0
	}
	done := float64(p.State.NextMinFrequency-p.Request.Min) / span
	return math.Max(0, math.Min(1, done))
}
