// Package output renders sweep reports in the formats offered by the CLI.
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jamesainslie/resweep/pkg/resweep/controller"
	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// Resonance is one accepted mode as it appears in a report.
type Resonance struct {
	Index     int            `json:"index" yaml:"index"`
	Setup     string         `json:"setup" yaml:"setup"`
	Mode      int            `json:"mode" yaml:"mode"`
	Frequency freq.Frequency `json:"frequency_hz" yaml:"frequency_hz"`
	Display   string         `json:"display" yaml:"display"`
	Q         float64        `json:"q" yaml:"q"`
}

// IterationRow summarises one solver configuration.
type IterationRow struct {
	Index     int            `json:"index" yaml:"index"`
	Setup     string         `json:"setup" yaml:"setup"`
	MinFreq   freq.Frequency `json:"min_frequency_hz" yaml:"min_frequency_hz"`
	MaxFreq   freq.Frequency `json:"max_frequency_hz" yaml:"max_frequency_hz"`
	Modes     int            `json:"modes" yaml:"modes"`
	Accepted  int            `json:"accepted" yaml:"accepted"`
	Attempts  int            `json:"attempts" yaml:"attempts"`
	Passes    int            `json:"passes" yaml:"passes"`
	Converged bool           `json:"converged" yaml:"converged"`
	Elapsed   time.Duration  `json:"elapsed" yaml:"elapsed"`
}

// Stats describes the quality factors and spacing of the accepted modes.
type Stats struct {
	Count       int            `json:"count" yaml:"count"`
	Solved      int            `json:"solved" yaml:"solved"`
	Rejected    int            `json:"rejected" yaml:"rejected"`
	QMin        float64        `json:"q_min" yaml:"q_min"`
	QMax        float64        `json:"q_max" yaml:"q_max"`
	QMean       float64        `json:"q_mean" yaml:"q_mean"`
	QMedian     float64        `json:"q_median" yaml:"q_median"`
	QStdDev     float64        `json:"q_stddev" yaml:"q_stddev"`
	MeanSpacing freq.Frequency `json:"mean_spacing_hz" yaml:"mean_spacing_hz"`
}

// Result is everything a formatter needs to render one sweep.
type Result struct {
	RunID      string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Started    time.Time      `json:"started" yaml:"started"`
	Backend    string         `json:"backend,omitempty" yaml:"backend,omitempty"`
	FMin       freq.Frequency `json:"fmin_hz" yaml:"fmin_hz"`
	FMax       freq.Frequency `json:"fmax_hz" yaml:"fmax_hz"`
	ModeCount  int            `json:"mode_count" yaml:"mode_count"`
	Threshold  float64        `json:"quality_threshold" yaml:"quality_threshold"`
	Resonances []Resonance    `json:"resonances" yaml:"resonances"`
	Rejected   []Resonance    `json:"rejected,omitempty" yaml:"rejected,omitempty"`
	Iterations []IterationRow `json:"iterations" yaml:"iterations"`
	Stats      Stats          `json:"stats" yaml:"stats"`
	Reached    freq.Frequency `json:"reached_hz" yaml:"reached_hz"`
	Complete   bool           `json:"complete" yaml:"complete"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed    time.Duration  `json:"elapsed" yaml:"elapsed"`
	Warnings   []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Meta carries report fields that the controller does not know about.
type Meta struct {
	RunID    string
	Started  time.Time
	Backend  string
	Warnings []string
}

// FromSweep builds a report from a controller result. err is the error
// returned by Sweep, if any; res may then be the partial result.
func FromSweep(res *controller.Result, err error, meta Meta) *Result {
	r := &Result{
		RunID:    meta.RunID,
		Started:  meta.Started,
		Backend:  meta.Backend,
		Warnings: meta.Warnings,
	}
	if err != nil {
		r.Error = err.Error()
	}
	if res == nil {
		return r
	}

	r.FMin = res.Request.Min
	r.FMax = res.Request.Max
	r.ModeCount = res.Request.ModeCount
	r.Threshold = res.Request.QualityThreshold
	r.Reached = res.State.NextMinFrequency
	r.Complete = err == nil && res.State.Phase == controller.PhaseDone
	r.Elapsed = res.Elapsed

	solved := 0
	for _, it := range res.Iterations {
		row := IterationRow{
			Index:     it.Index,
			Setup:     it.Setup,
			MinFreq:   it.MinimumFrequency,
			Modes:     len(it.Modes),
			Accepted:  it.Accepted,
			Attempts:  it.Attempts,
			Passes:    it.Passes,
			Converged: it.Converged,
			Elapsed:   it.Elapsed,
		}
		for _, m := range it.Modes {
			solved++
			if m.Frequency > row.MaxFreq {
				row.MaxFreq = m.Frequency
			}
			if m.Q > r.Threshold {
				r.Resonances = append(r.Resonances, Resonance{
					Index:     len(r.Resonances) + 1,
					Setup:     it.Setup,
					Mode:      m.Mode,
					Frequency: m.Frequency,
					Display:   m.Frequency.Display(),
					Q:         m.Q,
				})
			} else {
				r.Rejected = append(r.Rejected, Resonance{
					Setup:     it.Setup,
					Mode:      m.Mode,
					Frequency: m.Frequency,
					Display:   m.Frequency.Display(),
					Q:         m.Q,
				})
			}
		}
		r.Iterations = append(r.Iterations, row)
	}

	r.Stats = Summarize(r.Resonances)
	r.Stats.Solved = solved
	r.Stats.Rejected = len(r.Rejected)
	return r
}

// Summarize computes quality factor statistics and the mean spacing between
// adjacent resonances.
func Summarize(rs []Resonance) Stats {
	s := Stats{Count: len(rs)}
	if len(rs) == 0 {
		return s
	}

	qs := make([]float64, len(rs))
	fs := make([]float64, len(rs))
	for i, r := range rs {
		qs[i] = r.Q
		fs[i] = r.Frequency.Hertz()
	}
	sort.Float64s(qs)
	sort.Float64s(fs)

	s.QMin = floats.Min(qs)
	s.QMax = floats.Max(qs)
	s.QMean = stat.Mean(qs, nil)
	s.QMedian = stat.Quantile(0.5, stat.Empirical, qs, nil)
	if len(qs) > 1 {
		s.QStdDev = stat.StdDev(qs, nil)
	}
	if len(fs) > 1 {
		s.MeanSpacing = freq.Frequency((fs[len(fs)-1] - fs[0]) / float64(len(fs)-1))
	}
	return s
}

// Formatter renders a Result.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// Registry maps format names to formatter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Formatter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Formatter)}
}

// DefaultRegistry holds every built-in format.
var DefaultRegistry = NewRegistry()

var logger = logging.Get("output")

// Register adds a factory under name, replacing any existing one.
func (r *Registry) Register(name string, factory func() Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter for name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		logger.Debug("unknown format requested", "format", name)
		return nil, fmt.Errorf("unknown format %q (available: %v)", name, r.Available())
	}
	return factory(), nil
}

// Available lists the registered format names in order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a formatter to DefaultRegistry.
func Register(name string, factory func() Formatter) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from DefaultRegistry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available lists the formats in DefaultRegistry.
func Available() []string {
	return DefaultRegistry.Available()
}

// Render formats r with the named format and returns the bytes.
func Render(name string, r *Result) ([]byte, error) {
	f, err := Get(name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return nil, fmt.Errorf("formatting %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
