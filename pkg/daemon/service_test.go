package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	solverv1 "github.com/jamesainslie/resweep/pkg/api/solver/v1"
	"github.com/jamesainslie/resweep/pkg/daemon/metrics"
	"github.com/jamesainslie/resweep/pkg/daemon/replay"
	"github.com/jamesainslie/resweep/pkg/daemon/store"
	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

func testCatalog(t *testing.T) *replay.Catalog {
	t.Helper()
	cat, err := replay.Parse([]byte(replay.DefaultCatalog))
	require.NoError(t, err)
	return cat
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func create(t *testing.T, s *Service, name string) {
	t.Helper()
	_, err := s.CreateConfiguration(context.Background(), &solverv1.CreateConfigurationRequest{
		Name:          name,
		Configuration: solver.NewConfiguration(freq.MustParse("1GHz"), 6),
	})
	require.NoError(t, err)
}

func TestServiceRunAndRead(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	s := NewService(replay.NewEngine(testCatalog(t)), WithStore(openTestStore(t)), WithMetrics(m))

	create(t, s, "em_setup1")
	run, err := s.Run(ctx, &solverv1.RunRequest{Handle: "em_setup1", Resources: solver.ComputeResources{Cores: 8}})
	require.NoError(t, err)
	assert.Equal(t, 4, run.Passes)
	assert.True(t, run.Converged)

	list, err := s.ListResultQuantities(ctx, &solverv1.ListResultQuantitiesRequest{
		Handle:   "em_setup1",
		Category: solver.CategoryQuality,
	})
	require.NoError(t, err)
	require.Len(t, list.Quantities, 6)

	v, err := s.QuantityValue(ctx, &solverv1.QuantityValueRequest{Handle: "em_setup1", Quantity: list.Quantities[3]})
	require.NoError(t, err)
	assert.InDelta(t, 15.0, v.Value, 1e-9)

	const expected = `
# HELP resweepd_solver_modes_solved_total Eigenmodes returned by completed runs
# TYPE resweepd_solver_modes_solved_total counter
resweepd_solver_modes_solved_total 6
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"resweepd_solver_modes_solved_total"))
}

func TestServiceErrorCodes(t *testing.T) {
	ctx := context.Background()
	s := NewService(replay.NewEngine(testCatalog(t)))
	create(t, s, "em_setup1")

	_, err := s.CreateConfiguration(ctx, &solverv1.CreateConfigurationRequest{
		Name:          "em_setup1",
		Configuration: solver.NewConfiguration(freq.MustParse("1GHz"), 6),
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = s.CreateConfiguration(ctx, &solverv1.CreateConfigurationRequest{
		Name:          "em_setup2",
		Configuration: solver.NewConfiguration(freq.MustParse("1GHz"), 21),
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.QuantityValue(ctx, &solverv1.QuantityValueRequest{Handle: "em_setup1"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = s.Run(ctx, &solverv1.RunRequest{Handle: "em_setup9"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServiceSessionBusy(t *testing.T) {
	s := NewService(replay.NewEngine(testCatalog(t)))
	create(t, s, "em_setup1")

	s.session.Lock()
	_, err := s.Run(context.Background(), &solverv1.RunRequest{Handle: "em_setup1"})
	s.session.Unlock()

	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.ErrorIs(t, solverv1.FromStatus(err), solver.ErrUnavailable)

	_, err = s.Run(context.Background(), &solverv1.RunRequest{Handle: "em_setup1"})
	assert.NoError(t, err)
}

func TestServiceRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	first := NewService(replay.NewEngine(testCatalog(t)), WithStore(st))
	create(t, first, "em_setup1")
	create(t, first, "em_setup2")
	_, err := first.Run(ctx, &solverv1.RunRequest{Handle: "em_setup1"})
	require.NoError(t, err)

	// A fresh engine over the same store stands in for a restarted daemon.
	second := NewService(replay.NewEngine(testCatalog(t)), WithStore(st))
	list, err := second.ListResultQuantities(ctx, &solverv1.ListResultQuantitiesRequest{
		Handle:   "em_setup1",
		Category: solver.CategoryFrequency,
	})
	require.NoError(t, err)
	assert.Len(t, list.Quantities, 6)

	_, err = second.QuantityValue(ctx, &solverv1.QuantityValueRequest{Handle: "em_setup2"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "restored but never run")

	third := NewService(replay.NewEngine(testCatalog(t)), WithStore(st))
	n, err := third.RestoreAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, third.Engine().Configurations())
}

func TestServiceRelease(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := NewService(replay.NewEngine(testCatalog(t)), WithStore(st))
	create(t, s, "em_setup1")

	_, err := s.Release(ctx, &solverv1.ReleaseRequest{Handle: "em_setup1"})
	require.NoError(t, err)
	assert.Zero(t, s.Engine().Configurations())

	_, err = st.GetConfiguration("em_setup1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The name is free again.
	create(t, s, "em_setup1")
}

func TestServiceClearsAbandonedSetups(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	st, err := store.Open(dir)
	require.NoError(t, err)
	first := NewService(replay.NewEngine(testCatalog(t)), WithStore(st))
	create(t, first, "em_setup1")
	require.NoError(t, st.Close())

	st, err = store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	second := NewService(replay.NewEngine(testCatalog(t)), WithStore(st))
	n, err := second.RestoreAll()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = second.CreateConfiguration(ctx, &solverv1.CreateConfigurationRequest{
		Name:          "em_setup1",
		Configuration: solver.NewConfiguration(freq.MustParse("1GHz"), 6),
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	stat, err := second.Status(ctx, &solverv1.StatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Stored)

	cleared, err := second.Clear(ctx, &solverv1.ClearRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Released)
	assert.Zero(t, second.Engine().Configurations())
	configs, runs, err := st.Count()
	require.NoError(t, err)
	assert.Zero(t, configs)
	assert.Zero(t, runs)

	create(t, second, "em_setup1")
}

func TestServiceClearWhileBusy(t *testing.T) {
	s := NewService(replay.NewEngine(testCatalog(t)))
	create(t, s, "em_setup1")

	s.session.Lock()
	_, err := s.Clear(context.Background(), &solverv1.ClearRequest{})
	s.session.Unlock()
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, 1, s.Engine().Configurations())
}

func TestServiceStatus(t *testing.T) {
	s := NewService(replay.NewEngine(testCatalog(t)))
	create(t, s, "em_setup1")

	st, err := s.Status(context.Background(), &solverv1.StatusRequest{})
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, BackendReplay, st.Backend)
	assert.Equal(t, 6, st.CatalogModes)
	assert.Equal(t, 1, st.Configurations)
	assert.Positive(t, st.MemoryBytes)
}

func TestServiceShutdown(t *testing.T) {
	var called atomic.Bool
	done := make(chan struct{})
	s := NewService(replay.NewEngine(testCatalog(t)), WithShutdown(func() {
		called.Store(true)
		close(done)
	}))

	resp, err := s.Shutdown(context.Background(), &solverv1.ShutdownRequest{})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown function not called")
	}
	assert.True(t, called.Load())
}

func TestServiceReloadCatalog(t *testing.T) {
	m := metrics.New()
	s := NewService(replay.NewEngine(testCatalog(t)), WithMetrics(m))
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modes:\n  - {frequency: 3GHz, q: 30}\n"), 0o644))
	require.NoError(t, s.ReloadCatalog(path))
	assert.Equal(t, 1, s.Engine().Catalog().Len())
	assert.Equal(t, path, s.Engine().Catalog().Source)

	require.NoError(t, os.WriteFile(path, []byte("modes: [\n"), 0o644))
	assert.Error(t, s.ReloadCatalog(path))
	assert.Equal(t, 1, s.Engine().Catalog().Len(), "failed reload keeps the current catalog")
}
