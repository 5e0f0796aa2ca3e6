package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/resweep/pkg/resweep/controller"
	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

const scenario = `
passes: 4
modes:
  - {frequency: 1.9GHz, q: 20}
  - {frequency: 1.1GHz, q: 5}
  - {frequency: 1.3GHz, q: 12}
  - {frequency: 1.5GHz, q: 8}
  - {frequency: 1.7GHz, q: 15}
  - {frequency: 2.1GHz, q: 3}
`

func mustParse(t *testing.T, doc string) *Catalog {
	t.Helper()
	cat, err := Parse([]byte(doc))
	require.NoError(t, err)
	return cat
}

func TestParseSortsModes(t *testing.T) {
	cat := mustParse(t, scenario)
	require.Equal(t, 6, cat.Len())
	assert.Equal(t, 4, cat.Passes)

	modes := cat.Modes()
	for i := 1; i < len(modes); i++ {
		assert.Less(t, modes[i-1].Frequency, modes[i].Frequency)
	}
	assert.Equal(t, freq.MustParse("1.1GHz"), modes[0].Frequency)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"empty":       "modes: []\n",
		"bad freq":    "modes:\n  - {frequency: fast, q: 1}\n",
		"negative q":  "modes:\n  - {frequency: 1GHz, q: -1}\n",
		"bad latency": "latency: soon\nmodes:\n  - {frequency: 1GHz, q: 1}\n",
		"bad yaml":    "modes: [",
		"bad passes":  "passes: -2\nmodes:\n  - {frequency: 1GHz, q: 1}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("modes: []\n"))
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cat.Source)
	assert.False(t, cat.Loaded.IsZero())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAboveIsStrict(t *testing.T) {
	cat := mustParse(t, scenario)

	got := cat.Above(freq.MustParse("1.3GHz"), 2)
	require.Len(t, got, 2)
	assert.Equal(t, freq.MustParse("1.5GHz"), got[0].Frequency)
	assert.Equal(t, freq.MustParse("1.7GHz"), got[1].Frequency)

	assert.Len(t, cat.Above(freq.MustParse("2GHz"), 6), 1)
	assert.Empty(t, cat.Above(freq.MustParse("2.1GHz"), 6))
}

func TestEngineLifecycle(t *testing.T) {
	e := NewEngine(mustParse(t, scenario))
	ctx := context.Background()

	h, err := e.CreateConfiguration(ctx, "em_setup1", solver.NewConfiguration(freq.MustParse("1GHz"), 3))
	require.NoError(t, err)

	_, err = e.CreateConfiguration(ctx, "em_setup1", solver.NewConfiguration(freq.MustParse("1GHz"), 3))
	assert.ErrorIs(t, err, solver.ErrDuplicateConfiguration)

	_, err = e.ListResultQuantities(ctx, h, solver.CategoryQuality)
	assert.ErrorIs(t, err, solver.ErrNotSolved)

	run, err := e.Run(ctx, h, solver.ComputeResources{})
	require.NoError(t, err)
	assert.Equal(t, 4, run.Passes)
	assert.True(t, run.Converged)
	assert.Equal(t, int64(1), e.Runs())

	modes, err := solver.Harvest(ctx, e, h)
	require.NoError(t, err)
	require.Len(t, modes, 3)
	assert.Equal(t, freq.MustParse("1.5GHz"), modes[2].Frequency)
	assert.InDelta(t, 8.0, modes[2].Q, 1e-9)

	assert.Equal(t, 1, e.Configurations())
	require.NoError(t, e.Release(ctx, h))
	assert.Equal(t, 0, e.Configurations())
	_, err = e.QuantityValue(ctx, h, solver.QuantityName{Name: "Q(1)", Mode: 1})
	assert.ErrorIs(t, err, solver.ErrUnknownHandle)
}

func TestEngineRejectsBadConfiguration(t *testing.T) {
	e := NewEngine(mustParse(t, scenario))
	_, err := e.CreateConfiguration(context.Background(), "x", solver.NewConfiguration(freq.MustParse("1GHz"), 21))
	assert.ErrorIs(t, err, solver.ErrInvalidConfiguration)

	_, err = e.Run(context.Background(), solver.Handle{Name: "nope"}, solver.ComputeResources{})
	assert.ErrorIs(t, err, solver.ErrUnknownHandle)
}

func TestEngineLatencyHonoursContext(t *testing.T) {
	cat := mustParse(t, "latency: 1m\nmodes:\n  - {frequency: 1.5GHz, q: 50}\n")
	e := NewEngine(cat)
	h, err := e.CreateConfiguration(context.Background(), "slow", solver.NewConfiguration(freq.MustParse("1GHz"), 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Run(ctx, h, solver.ComputeResources{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineReleaseDuringRun(t *testing.T) {
	e := NewEngine(mustParse(t, "latency: 300ms\nmodes:\n  - {frequency: 1.5GHz, q: 50}\n"))
	ctx := context.Background()
	h, err := e.CreateConfiguration(ctx, "em_setup1", solver.NewConfiguration(freq.MustParse("1GHz"), 1))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx, h, solver.ComputeResources{})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Release(ctx, h))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, solver.ErrUnknownHandle)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	e.mu.RLock()
	_, orphan := e.results[h.Name]
	e.mu.RUnlock()
	assert.False(t, orphan, "a released configuration keeps no results")
	assert.Zero(t, e.Runs())
}

func TestEngineClear(t *testing.T) {
	e := NewEngine(mustParse(t, scenario))
	ctx := context.Background()
	for _, name := range []string{"em_setup1", "em_setup2"} {
		h, err := e.CreateConfiguration(ctx, name, solver.NewConfiguration(freq.MustParse("1GHz"), 2))
		require.NoError(t, err)
		_, err = e.Run(ctx, h, solver.ComputeResources{})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, e.Clear())
	assert.Zero(t, e.Configurations())
	_, err := e.Results(solver.Handle{Name: "em_setup1"})
	assert.ErrorIs(t, err, solver.ErrUnknownHandle)

	_, err = e.CreateConfiguration(ctx, "em_setup1", solver.NewConfiguration(freq.MustParse("1GHz"), 2))
	assert.NoError(t, err, "names are free again after Clear")
}

func TestEngineSwapAndRestore(t *testing.T) {
	e := NewEngine(mustParse(t, scenario))
	next, err := New(Mode{Frequency: freq.MustParse("1.05GHz"), Q: 99})
	require.NoError(t, err)
	e.Swap(next)
	assert.Equal(t, 1, e.Catalog().Len())

	e.Restore("em_setup7", solver.NewConfiguration(freq.MustParse("1GHz"), 1),
		[]solver.ModeSample{{Mode: 1, Q: 42, Frequency: freq.MustParse("1.2GHz")}})
	got, err := e.Results(solver.Handle{Name: "em_setup7"})
	require.NoError(t, err)
	assert.InDelta(t, 42.0, got[0].Q, 1e-9)
}

func TestSweepOverCatalog(t *testing.T) {
	e := NewEngine(mustParse(t, scenario))
	ctl := controller.New(e, controller.Options{})

	res, err := ctl.Sweep(context.Background(), controller.Request{
		Min:              freq.MustParse("1GHz"),
		Max:              freq.MustParse("2GHz"),
		ModeCount:        6,
		QualityThreshold: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.3 GHz", "1.7 GHz", "1.9 GHz"}, res.Display)
	assert.Len(t, res.Iterations, 1)
}

func TestSweepOverCatalogInSteps(t *testing.T) {
	e := NewEngine(mustParse(t, scenario))
	ctl := controller.New(e, controller.Options{})

	res, err := ctl.Sweep(context.Background(), controller.Request{
		Min:              freq.MustParse("1GHz"),
		Max:              freq.MustParse("2GHz"),
		ModeCount:        2,
		QualityThreshold: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.3 GHz", "1.7 GHz", "1.9 GHz"}, res.Display)
	assert.Len(t, res.Iterations, 3)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.yaml")

	wrote, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, wrote)

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cat.Len())

	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))
	wrote, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, wrote, "existing catalog must be kept")
}
