package replay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// Engine is a solver.Service backed by a Catalog. Runs are serialized; the
// catalog can be swapped at any time and affects only later runs.
type Engine struct {
	catalog atomic.Pointer[Catalog]
	runMu   sync.Mutex
	runs    atomic.Int64

	mu      sync.RWMutex
	configs map[string]solver.Configuration
	results map[string][]solver.ModeSample
}

var (
	_ solver.Service  = (*Engine)(nil)
	_ solver.Releaser = (*Engine)(nil)
)

// NewEngine returns an engine serving cat.
func NewEngine(cat *Catalog) *Engine {
	e := &Engine{
		configs: make(map[string]solver.Configuration),
		results: make(map[string][]solver.ModeSample),
	}
	e.catalog.Store(cat)
	return e
}

// Catalog returns the catalog currently served.
func (e *Engine) Catalog() *Catalog { return e.catalog.Load() }

// Swap replaces the catalog.
func (e *Engine) Swap(cat *Catalog) { e.catalog.Store(cat) }

// Runs returns the number of completed runs.
func (e *Engine) Runs() int64 { return e.runs.Load() }

// Configurations returns the number of live configurations.
func (e *Engine) Configurations() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.configs)
}

// CreateConfiguration implements solver.Service.
func (e *Engine) CreateConfiguration(_ context.Context, name string, cfg solver.Configuration) (solver.Handle, error) {
	if name == "" {
		return solver.Handle{}, fmt.Errorf("%w: empty name", solver.ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return solver.Handle{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.configs[name]; exists {
		return solver.Handle{}, fmt.Errorf("%w: %q", solver.ErrDuplicateConfiguration, name)
	}
	e.configs[name] = cfg
	return solver.Handle{Name: name}, nil
}

// Run implements solver.Service.
func (e *Engine) Run(ctx context.Context, h solver.Handle, _ solver.ComputeResources) (solver.RunResult, error) {
	e.mu.RLock()
	cfg, ok := e.configs[h.Name]
	e.mu.RUnlock()
	if !ok {
		return solver.RunResult{}, fmt.Errorf("%w: %q", solver.ErrUnknownHandle, h.Name)
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	cat := e.catalog.Load()
	if cat.Latency > 0 {
		select {
		case <-time.After(cat.Latency):
		case <-ctx.Done():
			return solver.RunResult{}, ctx.Err()
		}
	}

	modes := cat.Above(cfg.MinimumFrequency, cfg.ModeCount)
	samples := make([]solver.ModeSample, len(modes))
	for i, m := range modes {
		samples[i] = solver.ModeSample{Mode: i + 1, Q: m.Q, Frequency: m.Frequency}
	}

	e.mu.Lock()
	_, live := e.configs[h.Name]
	if live {
		e.results[h.Name] = samples
	}
	e.mu.Unlock()
	if !live {
		return solver.RunResult{}, fmt.Errorf("%w: %q released during run", solver.ErrUnknownHandle, h.Name)
	}
	e.runs.Add(1)

	passes := cfg.MinPasses
	if cat.Passes > 0 {
		passes = max(cfg.MinPasses, min(cat.Passes, cfg.MaxPasses))
	}
	return solver.RunResult{Passes: passes, Converged: passes < cfg.MaxPasses || cat.Passes == 0}, nil
}

// ListResultQuantities implements solver.Service.
func (e *Engine) ListResultQuantities(_ context.Context, h solver.Handle, c solver.Category) ([]solver.QuantityName, error) {
	samples, err := e.solved(h)
	if err != nil {
		return nil, err
	}

	names := make([]solver.QuantityName, len(samples))
	for i, m := range samples {
		switch c {
		case solver.CategoryFrequency:
			names[i] = solver.QuantityName{Name: fmt.Sprintf("Mode(%d)", m.Mode), Mode: m.Mode}
		case solver.CategoryQuality:
			names[i] = solver.QuantityName{Name: fmt.Sprintf("Q(%d)", m.Mode), Mode: m.Mode}
		default:
			return nil, fmt.Errorf("%w: unknown result category %q", solver.ErrInvalidConfiguration, c)
		}
	}
	return names, nil
}

// QuantityValue implements solver.Service.
func (e *Engine) QuantityValue(_ context.Context, h solver.Handle, q solver.QuantityName) (float64, error) {
	samples, err := e.solved(h)
	if err != nil {
		return 0, err
	}
	for _, m := range samples {
		if m.Mode != q.Mode {
			continue
		}
		switch q.Name {
		case fmt.Sprintf("Mode(%d)", m.Mode):
			return m.Frequency.Hertz(), nil
		case fmt.Sprintf("Q(%d)", m.Mode):
			return m.Q, nil
		}
	}
	return 0, fmt.Errorf("%w: no quantity %q on %s", solver.ErrUnknownHandle, q.Name, h.Name)
}

// Release drops a configuration and its results. Releasing an unknown
// handle is not an error.
func (e *Engine) Release(_ context.Context, h solver.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.configs, h.Name)
	delete(e.results, h.Name)
	return nil
}

// Clear drops every configuration and its results and returns how many
// configurations were dropped.
func (e *Engine) Clear() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.configs)
	clear(e.configs)
	clear(e.results)
	return n
}

// Restore reinstates a configuration and, when samples is non-nil, its
// solved results.
func (e *Engine) Restore(name string, cfg solver.Configuration, samples []solver.ModeSample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs[name] = cfg
	if samples != nil {
		e.results[name] = append([]solver.ModeSample(nil), samples...)
	}
}

// Results returns the solved samples of h.
func (e *Engine) Results(h solver.Handle) ([]solver.ModeSample, error) {
	samples, err := e.solved(h)
	if err != nil {
		return nil, err
	}
	return append([]solver.ModeSample(nil), samples...), nil
}

func (e *Engine) solved(h solver.Handle) ([]solver.ModeSample, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.configs[h.Name]; !ok {
		return nil, fmt.Errorf("%w: %q", solver.ErrUnknownHandle, h.Name)
	}
	samples, ok := e.results[h.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", solver.ErrNotSolved, h.Name)
	}
	return samples, nil
}
