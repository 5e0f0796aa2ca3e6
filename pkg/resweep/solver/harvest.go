package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
)

// Harvest reads the frequency and quality factor of every mode of a solved
// configuration. The two categories are paired by mode index, never by list
// position, so a service that lists them in different orders still yields
// correct samples. Samples are returned in ascending mode order.
func Harvest(ctx context.Context, svc Service, h Handle) ([]ModeSample, error) {
	freqs, err := readCategory(ctx, svc, h, CategoryFrequency)
	if err != nil {
		return nil, err
	}
	qs, err := readCategory(ctx, svc, h, CategoryQuality)
	if err != nil {
		return nil, err
	}

	samples := make([]ModeSample, 0, len(freqs))
	for mode, f := range freqs {
		q, ok := qs[mode]
		if !ok {
			return nil, fmt.Errorf("%w: mode %d has no %q value", ErrUnpairedMode, mode, CategoryQuality)
		}
		samples = append(samples, ModeSample{Mode: mode, Q: q, Frequency: freq.Frequency(f)})
	}
	for mode := range qs {
		if _, ok := freqs[mode]; !ok {
			return nil, fmt.Errorf("%w: mode %d has no %q value", ErrUnpairedMode, mode, CategoryFrequency)
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Mode < samples[j].Mode })
	return samples, nil
}

// readCategory returns the values of one category keyed by mode index.
func readCategory(ctx context.Context, svc Service, h Handle, c Category) (map[int]float64, error) {
	names, err := svc.ListResultQuantities(ctx, h, c)
	if err != nil {
		return nil, fmt.Errorf("listing %q quantities of %s: %w", c, h.Name, err)
	}

	values := make(map[int]float64, len(names))
	for _, n := range names {
		if _, dup := values[n.Mode]; dup {
			return nil, fmt.Errorf("duplicate mode %d in %q quantities of %s", n.Mode, c, h.Name)
		}
		v, err := svc.QuantityValue(ctx, h, n)
		if err != nil {
			return nil, fmt.Errorf("reading %s of %s: %w", n.Name, h.Name, err)
		}
		values[n.Mode] = v
	}
	return values, nil
}

// Highest returns the sample with the greatest frequency. ok is false when
// samples is empty.
func Highest(samples []ModeSample) (s ModeSample, ok bool) {
	for i, m := range samples {
		if i == 0 || m.Frequency > s.Frequency {
			s = m
		}
	}
	return s, len(samples) > 0
}

// Releaser is implemented by services that can drop a configuration once
// its results have been read.
type Releaser interface {
	Release(ctx context.Context, h Handle) error
}

// ReleaseAll releases the named configurations when svc supports it and
// returns the first error. Services without Release are left untouched.
func ReleaseAll(ctx context.Context, svc Service, names ...string) error {
	r, ok := svc.(Releaser)
	if !ok {
		return nil
	}
	var first error
	for _, name := range names {
		if err := r.Release(ctx, Handle{Name: name}); err != nil && first == nil {
			first = fmt.Errorf("releasing %s: %w", name, err)
		}
	}
	return first
}
