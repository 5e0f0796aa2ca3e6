// Package controller implements the resonance sweep: it walks a frequency
// range by solving a bounded number of eigenmodes at a time, keeps the modes
// whose quality factor marks them as physical, and restarts each solve at the
// highest mode found so far until the range is covered.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/resweep/pkg/resweep/logging"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// Controller runs sweeps against one solver service. Sweeps must not overlap.
type Controller struct {
	svc  solver.Service
	opts Options
	log  *logging.Logger
}

// New returns a controller for svc. Unset options take their defaults.
func New(svc solver.Service, opts Options) *Controller {
	opts.applyDefaults()
	return &Controller{
		svc:  svc,
		opts: opts,
		log:  logging.Get("controller"),
	}
}

// Options returns the effective options.
func (c *Controller) Options() Options {
	return c.opts
}

// Sweep discovers the resonances in [req.Min, req.Max]. On failure the
// returned error is a *SweepError whose Result holds the resonances found
// before the failure; use Partial to retrieve it.
func (c *Controller) Sweep(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{
		Request: req,
		State:   State{NextMinFrequency: req.Min, Phase: PhaseScanning},
	}

	if err := req.Validate(); err != nil {
		return nil, c.fail(res, start, 0, "", err)
	}

	c.log.Info("sweep started",
		"fmin", req.Min.String(), "fmax", req.Max.String(),
		"modes", req.ModeCount, "threshold", req.QualityThreshold)

	state := res.State
	for state.Phase == PhaseScanning {
		if err := ctx.Err(); err != nil {
			return nil, c.fail(res, start, state.Iteration, "", fmt.Errorf("sweep cancelled: %w", err))
		}
		if state.Iteration >= c.opts.MaxIterations {
			return nil, c.fail(res, start, state.Iteration, "",
				fmt.Errorf("%w: %d iterations, reached %s of %s",
					ErrIterationLimit, state.Iteration, state.NextMinFrequency, req.Max))
		}

		next, it, err := c.step(ctx, req, state)
		res.Iterations = append(res.Iterations, it)
		res.State = next
		if err != nil {
			return nil, c.fail(res, start, it.Index, it.Setup, err)
		}
		state = next

		c.log.Info("iteration complete",
			"iteration", it.Index, "setup", it.Setup,
			"fmin", it.MinimumFrequency.String(), "next", state.NextMinFrequency.String(),
			"accepted", it.Accepted, "elapsed", it.Elapsed)

		if c.opts.OnProgress != nil {
			c.opts.OnProgress(Progress{State: state, Iteration: it, Request: req})
		}
	}

	c.finish(res, start)
	c.log.Info("sweep complete",
		"iterations", state.Iteration, "resonances", len(res.Resonances), "elapsed", res.Elapsed)
	return res, nil
}

func (c *Controller) finish(res *Result, start time.Time) {
	res.Resonances = res.State.Resonances
	res.Display = res.Resonances.Display()
	res.Elapsed = time.Since(start)
}

func (c *Controller) fail(res *Result, start time.Time, iteration int, setup string, err error) error {
	c.finish(res, start)
	c.log.Error("sweep failed", "iteration", iteration, "setup", setup,
		"resonances", len(res.Resonances), "error", err)
	return &SweepError{Iteration: iteration, Setup: setup, Result: res, Err: err}
}

// step runs one iteration and returns the state that follows it. When step
// fails, the returned state still includes any resonances the iteration
// accepted.
func (c *Controller) step(ctx context.Context, req Request, state State) (State, Iteration, error) {
	it := Iteration{
		Index:            state.Iteration + 1,
		Setup:            fmt.Sprintf("%s%d", c.opts.NamePrefix, state.Iteration+1),
		MinimumFrequency: state.NextMinFrequency,
	}
	it.Name = c.solverName(it.Setup)
	began := time.Now()

	cfg := solver.Configuration{
		MinimumFrequency:    state.NextMinFrequency,
		ModeCount:           req.ModeCount,
		ConvergeOnRealFreq:  c.opts.Convergence.ConvergeOnRealFreq,
		MaxPasses:           c.opts.Convergence.MaxPasses,
		MinPasses:           c.opts.Convergence.MinPasses,
		MaxDeltaFreqPercent: c.opts.Convergence.MaxDeltaFreqPercent,
	}

	iterCtx := ctx
	if c.opts.IterationTimeout > 0 {
		var cancel context.CancelFunc
		iterCtx, cancel = context.WithTimeout(ctx, c.opts.IterationTimeout)
		defer cancel()
	}

	modes, run, attempts, err := c.solve(iterCtx, it.Name, cfg)
	it.Attempts = attempts
	it.Passes = run.Passes
	it.Converged = run.Converged
	if err != nil {
		if iterCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: exceeded %s: %w", ErrSolverTimeout, c.opts.IterationTimeout, err)
		}
		it.Elapsed = time.Since(began)
		return state, it, err
	}
	it.Modes = modes

	next := State{
		NextMinFrequency: state.NextMinFrequency,
		Resonances:       state.Resonances,
		Iteration:        it.Index,
		Phase:            PhaseScanning,
	}
	for _, m := range modes {
		if m.Q > req.QualityThreshold {
			next.Resonances = append(next.Resonances, m)
			it.Accepted++
		}
	}

	highest, ok := solver.Highest(modes)
	if !ok {
		it.Elapsed = time.Since(began)
		return next, it, fmt.Errorf("%w: %s returned no modes", ErrNoProgress, it.Setup)
	}
	if highest.Frequency <= state.NextMinFrequency {
		it.Elapsed = time.Since(began)
		return next, it, fmt.Errorf("%w: highest mode %s does not exceed minimum %s",
			ErrNoProgress, highest.Frequency, state.NextMinFrequency)
	}

	next.NextMinFrequency = highest.Frequency
	if next.NextMinFrequency >= req.Max {
		next.Phase = PhaseDone
	}
	it.Elapsed = time.Since(began)
	return next, it, nil
}

// solverName returns the name a setup is created under on the solver side.
func (c *Controller) solverName(setup string) string {
	if c.opts.Session == "" {
		return setup
	}
	return setup + "@" + c.opts.Session
}

// solve creates, runs and harvests one configuration, retrying transient
// failures. It returns the total number of attempts made.
func (c *Controller) solve(ctx context.Context, name string, cfg solver.Configuration) ([]solver.ModeSample, solver.RunResult, int, error) {
	var (
		h      solver.Handle
		run    solver.RunResult
		modes  []solver.ModeSample
		tries  int
		create = true
	)

	err := c.retry(ctx, name, &tries, func(ctx context.Context) error {
		if create {
			var err error
			if h, err = c.svc.CreateConfiguration(ctx, name, cfg); err != nil {
				return fmt.Errorf("creating %s: %w", name, err)
			}
			create = false
		}
		var err error
		if run, err = c.svc.Run(ctx, h, c.opts.Resources); err != nil {
			return fmt.Errorf("running %s: %w", name, err)
		}
		if modes, err = solver.Harvest(ctx, c.svc, h); err != nil {
			return fmt.Errorf("harvesting %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, solver.RunResult{}, tries, err
	}
	return modes, run, tries, nil
}

// retry calls fn until it succeeds, fails permanently, or the policy is
// exhausted. Only solver.ErrUnavailable is treated as transient.
func (c *Controller) retry(ctx context.Context, name string, tries *int, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < c.opts.Retry.Attempts; attempt++ {
		*tries = attempt + 1
		if err = call(ctx, fn); err == nil {
			return nil
		}

		switch {
		case errors.Is(err, solver.ErrInvalidConfiguration):
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		case !errors.Is(err, solver.ErrUnavailable):
			return err
		}

		if attempt+1 < c.opts.Retry.Attempts {
			wait := c.opts.Retry.delay(attempt)
			c.log.Warn("solver unavailable, retrying",
				"setup", name, "attempt", attempt+1, "max", c.opts.Retry.Attempts,
				"backoff", wait, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("%w: %d attempts: %w", ErrSolverUnavailable, c.opts.Retry.Attempts, err)
}

// call runs fn but returns as soon as ctx is done, so a solver that ignores
// cancellation cannot hold the sweep past its deadline.
func call(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
