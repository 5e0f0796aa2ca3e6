// Package solvertest provides an in-memory solver.Service for tests.
package solvertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// ErrScriptExhausted is returned by Run once every scripted response is used.
var ErrScriptExhausted = errors.New("solvertest: no scripted response left")

// Responder produces the modes for the n-th run (0-based) of cfg.
type Responder func(n int, cfg solver.Configuration) ([]solver.ModeSample, error)

// Call records one CreateConfiguration and Run pair.
type Call struct {
	Name      string
	Config    solver.Configuration
	Resources solver.ComputeResources
}

// Fake is a scriptable solver.Service. The zero value is not usable; create
// one with New or Script.
type Fake struct {
	respond Responder

	// RunErrors are returned, in order, by the first Run calls before the
	// responder is consulted. A nil entry lets that call through.
	RunErrors []error

	// RunDelay blocks each Run for the given duration or until ctx is done.
	RunDelay time.Duration

	// ReverseQuality lists the quality category in descending mode order.
	ReverseQuality bool

	mu      sync.Mutex
	runs    int
	calls   []Call
	configs map[string]solver.Configuration
	results map[string][]solver.ModeSample
}

var _ solver.Service = (*Fake)(nil)

// New returns a fake that answers runs with respond.
func New(respond Responder) *Fake {
	return &Fake{
		respond: respond,
		configs: make(map[string]solver.Configuration),
		results: make(map[string][]solver.ModeSample),
	}
}

// Script returns a fake that answers the n-th successful run with
// iterations[n], assigning mode indexes 1..len in order when they are unset.
func Script(iterations ...[]solver.ModeSample) *Fake {
	return New(func(n int, _ solver.Configuration) ([]solver.ModeSample, error) {
		if n >= len(iterations) {
			return nil, ErrScriptExhausted
		}
		return iterations[n], nil
	})
}

// Modes builds samples from parallel frequency (Hz) and Q slices.
func Modes(freqsHz []float64, qs []float64) []solver.ModeSample {
	out := make([]solver.ModeSample, len(freqsHz))
	for i := range freqsHz {
		out[i] = solver.ModeSample{Mode: i + 1, Q: qs[i], Frequency: freq.Frequency(freqsHz[i])}
	}
	return out
}

// Calls returns the configurations that were run, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// SetRunDelay changes RunDelay for subsequent runs. It is safe to call from
// a Responder.
func (f *Fake) SetRunDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RunDelay = d
}

// CreateConfiguration implements solver.Service.
func (f *Fake) CreateConfiguration(_ context.Context, name string, cfg solver.Configuration) (solver.Handle, error) {
	if err := cfg.Validate(); err != nil {
		return solver.Handle{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.configs[name]; exists {
		return solver.Handle{}, fmt.Errorf("%w: %q", solver.ErrDuplicateConfiguration, name)
	}
	f.configs[name] = cfg
	return solver.Handle{Name: name}, nil
}

// Run implements solver.Service.
func (f *Fake) Run(ctx context.Context, h solver.Handle, res solver.ComputeResources) (solver.RunResult, error) {
	f.mu.Lock()
	cfg, ok := f.configs[h.Name]
	if !ok {
		f.mu.Unlock()
		return solver.RunResult{}, solver.ErrUnknownHandle
	}
	if len(f.RunErrors) > 0 {
		err := f.RunErrors[0]
		f.RunErrors = f.RunErrors[1:]
		if err != nil {
			f.mu.Unlock()
			return solver.RunResult{}, err
		}
	}
	n := f.runs
	f.runs++
	f.calls = append(f.calls, Call{Name: h.Name, Config: cfg, Resources: res})
	delay := f.RunDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return solver.RunResult{}, ctx.Err()
		}
	}

	scripted, err := f.respond(n, cfg)
	if err != nil {
		return solver.RunResult{}, err
	}
	modes := append([]solver.ModeSample(nil), scripted...)
	for i := range modes {
		if modes[i].Mode == 0 {
			modes[i].Mode = i + 1
		}
	}

	f.mu.Lock()
	f.results[h.Name] = modes
	f.mu.Unlock()
	return solver.RunResult{Passes: cfg.MinPasses, Converged: true}, nil
}

// ListResultQuantities implements solver.Service.
func (f *Fake) ListResultQuantities(_ context.Context, h solver.Handle, c solver.Category) ([]solver.QuantityName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	modes, ok := f.results[h.Name]
	if !ok {
		return nil, solver.ErrNotSolved
	}

	names := make([]solver.QuantityName, 0, len(modes))
	for _, m := range modes {
		switch c {
		case solver.CategoryFrequency:
			names = append(names, solver.QuantityName{Name: fmt.Sprintf("Mode(%d)", m.Mode), Mode: m.Mode})
		case solver.CategoryQuality:
			names = append(names, solver.QuantityName{Name: fmt.Sprintf("Q(%d)", m.Mode), Mode: m.Mode})
		default:
			return nil, fmt.Errorf("unknown category %q", c)
		}
	}
	if c == solver.CategoryQuality && f.ReverseQuality {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}
	return names, nil
}

// QuantityValue implements solver.Service.
func (f *Fake) QuantityValue(_ context.Context, h solver.Handle, q solver.QuantityName) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	modes, ok := f.results[h.Name]
	if !ok {
		return 0, solver.ErrNotSolved
	}
	for _, m := range modes {
		if m.Mode != q.Mode {
			continue
		}
		if q.Name == fmt.Sprintf("Q(%d)", m.Mode) {
			return m.Q, nil
		}
		return m.Frequency.Hertz(), nil
	}
	return 0, fmt.Errorf("quantity %q not found", q.Name)
}
