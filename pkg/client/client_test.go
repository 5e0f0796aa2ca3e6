package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	solverv1 "github.com/jamesainslie/resweep/pkg/api/solver/v1"
	"github.com/jamesainslie/resweep/pkg/resweep/controller"
	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
	"github.com/jamesainslie/resweep/pkg/resweep/solver/solvertest"
)

// mockSolverServer serves a solvertest.Fake over the wire.
type mockSolverServer struct {
	solverv1.UnimplementedSolverServiceServer
	backend *solvertest.Fake

	mu            sync.Mutex
	released      []string
	clearCalls    int
	shutdownCalls int
	shutdownResp  *solverv1.ShutdownResponse
}

func (m *mockSolverServer) CreateConfiguration(ctx context.Context, in *solverv1.CreateConfigurationRequest) (*solverv1.CreateConfigurationResponse, error) {
	h, err := m.backend.CreateConfiguration(ctx, in.Name, in.Configuration)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}
	return &solverv1.CreateConfigurationResponse{Handle: h.Name}, nil
}

func (m *mockSolverServer) Run(ctx context.Context, in *solverv1.RunRequest) (*solverv1.RunResponse, error) {
	run, err := m.backend.Run(ctx, solver.Handle{Name: in.Handle}, in.Resources)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}
	return &solverv1.RunResponse{Passes: run.Passes, Converged: run.Converged}, nil
}

func (m *mockSolverServer) ListResultQuantities(ctx context.Context, in *solverv1.ListResultQuantitiesRequest) (*solverv1.ListResultQuantitiesResponse, error) {
	qs, err := m.backend.ListResultQuantities(ctx, solver.Handle{Name: in.Handle}, in.Category)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}
	return &solverv1.ListResultQuantitiesResponse{Quantities: qs}, nil
}

func (m *mockSolverServer) QuantityValue(ctx context.Context, in *solverv1.QuantityValueRequest) (*solverv1.QuantityValueResponse, error) {
	v, err := m.backend.QuantityValue(ctx, solver.Handle{Name: in.Handle}, in.Quantity)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}
	return &solverv1.QuantityValueResponse{Value: v}, nil
}

func (m *mockSolverServer) Release(_ context.Context, in *solverv1.ReleaseRequest) (*solverv1.ReleaseResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, in.Handle)
	return &solverv1.ReleaseResponse{}, nil
}

func (m *mockSolverServer) Status(context.Context, *solverv1.StatusRequest) (*solverv1.StatusResponse, error) {
	return &solverv1.StatusResponse{
		Running:        true,
		PID:            4242,
		UptimeSeconds:  100,
		Backend:        "replay",
		Catalog:        "/tmp/catalog.yaml",
		CatalogModes:   12,
		CatalogLoaded:  1_700_000_000,
		Configurations: 3,
		Stored:         2,
		Runs:           7,
	}, nil
}

func (m *mockSolverServer) Clear(context.Context, *solverv1.ClearRequest) (*solverv1.ClearResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	return &solverv1.ClearResponse{Released: 3}, nil
}

func (m *mockSolverServer) Shutdown(context.Context, *solverv1.ShutdownRequest) (*solverv1.ShutdownResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCalls++
	if m.shutdownResp != nil {
		return m.shutdownResp, nil
	}
	return &solverv1.ShutdownResponse{Success: true}, nil
}

// setupTestServer creates a test gRPC server on a Unix socket.
func setupTestServer(t *testing.T, mock *mockSolverServer) string {
	t.Helper()

	// Short temp dir: unix socket paths are length limited.
	tmpDir, err := os.MkdirTemp("", "resweep-client-*")
	require.NoError(t, err)

	socketPath := filepath.Join(tmpDir, "test.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create listener: %v", err)
	}

	srv := grpc.NewServer()
	solverv1.RegisterSolverServiceServer(srv, mock)
	go func() {
		_ = srv.Serve(listener)
	}()

	t.Cleanup(func() {
		srv.GracefulStop()
		_ = os.RemoveAll(tmpDir)
	})
	return socketPath
}

func connect(t *testing.T, mock *mockSolverServer) *Client {
	t.Helper()
	c, err := Connect(setupTestServer(t, mock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnect(t *testing.T) {
	c := connect(t, &mockSolverServer{backend: solvertest.Script()})
	assert.NotNil(t, c.conn)
}

func TestConnectInvalidSocket(t *testing.T) {
	_, err := Connect("/nonexistent/resweepd.sock")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket not found")
}

func TestConnectWithTimeout(t *testing.T) {
	socket := setupTestServer(t, &mockSolverServer{backend: solvertest.Script()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := ConnectWithContext(ctx, socket)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestSolverRoundTrip(t *testing.T) {
	backend := solvertest.Script(solvertest.Modes(
		[]float64{1.1e9, 1.2e9},
		[]float64{50, 5},
	))
	c := connect(t, &mockSolverServer{backend: backend})
	ctx := context.Background()

	cfg := solver.NewConfiguration(freq.MustParse("1GHz"), 2)
	h, err := c.CreateConfiguration(ctx, "em_setup1", cfg)
	require.NoError(t, err)
	assert.Equal(t, "em_setup1", h.Name)

	run, err := c.Run(ctx, h, solver.ComputeResources{Cores: 4, Tasks: 1})
	require.NoError(t, err)
	assert.True(t, run.Converged)

	modes, err := solver.Harvest(ctx, c, h)
	require.NoError(t, err)
	require.Len(t, modes, 2)
	assert.Equal(t, freq.Frequency(1.2e9), modes[1].Frequency)
	assert.InDelta(t, 5.0, modes[1].Q, 1e-9)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 4, calls[0].Resources.Cores)
	assert.Equal(t, cfg, calls[0].Config)
}

func TestSolverErrorsKeepTheirKind(t *testing.T) {
	backend := solvertest.Script()
	backend.RunErrors = []error{solver.ErrUnavailable}
	c := connect(t, &mockSolverServer{backend: backend})
	ctx := context.Background()

	_, err := c.CreateConfiguration(ctx, "bad", solver.NewConfiguration(freq.MustParse("1GHz"), 0))
	assert.ErrorIs(t, err, solver.ErrInvalidConfiguration)

	_, err = c.Run(ctx, solver.Handle{Name: "missing"}, solver.ComputeResources{})
	assert.ErrorIs(t, err, solver.ErrUnknownHandle)

	h, err := c.CreateConfiguration(ctx, "em_setup1", solver.NewConfiguration(freq.MustParse("1GHz"), 1))
	require.NoError(t, err)

	_, err = c.ListResultQuantities(ctx, h, solver.CategoryFrequency)
	assert.ErrorIs(t, err, solver.ErrNotSolved)

	_, err = c.Run(ctx, h, solver.ComputeResources{})
	assert.ErrorIs(t, err, solver.ErrUnavailable)
	assert.Contains(t, err.Error(), "Run RPC failed")
}

func TestSweepOverClient(t *testing.T) {
	backend := solvertest.Script(
		solvertest.Modes([]float64{1.1e9, 1.3e9}, []float64{50, 1200}),
		solvertest.Modes([]float64{1.7e9, 2.1e9}, []float64{30, 10}),
	)
	c := connect(t, &mockSolverServer{backend: backend})

	ctl := controller.New(c, controller.Options{})
	res, err := ctl.Sweep(context.Background(), controller.Request{
		Min:              freq.MustParse("1GHz"),
		Max:              freq.MustParse("2GHz"),
		ModeCount:        2,
		QualityThreshold: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1 GHz", "1.3 GHz", "1.7 GHz"}, res.Display)
	assert.Len(t, res.Iterations, 2)
}

func TestRelease(t *testing.T) {
	mock := &mockSolverServer{backend: solvertest.Script()}
	c := connect(t, mock)

	require.NoError(t, c.Release(context.Background(), solver.Handle{Name: "em_setup2"}))
	assert.Equal(t, []string{"em_setup2"}, mock.released)
}

func TestStatus(t *testing.T) {
	c := connect(t, &mockSolverServer{backend: solvertest.Script()})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 4242, st.PID)
	assert.Equal(t, 100*time.Second, st.Uptime)
	assert.Equal(t, "replay", st.Backend)
	assert.Equal(t, 12, st.CatalogModes)
	assert.Equal(t, int64(1_700_000_000), st.CatalogLoaded.Unix())
	assert.Equal(t, 2, st.Stored)
	assert.Equal(t, int64(7), st.Runs)
}

func TestClear(t *testing.T) {
	mock := &mockSolverServer{backend: solvertest.Script()}
	c := connect(t, mock)

	n, err := c.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, mock.clearCalls)
}

func TestShutdown(t *testing.T) {
	mock := &mockSolverServer{backend: solvertest.Script()}
	c := connect(t, mock)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, 1, mock.shutdownCalls)

	mock.shutdownResp = &solverv1.ShutdownResponse{Success: false}
	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not successful")
}

func TestIsDaemonRunning(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing pid file", func(t *testing.T) {
		assert.False(t, IsDaemonRunning(filepath.Join(dir, "none.pid")))
	})

	t.Run("current process", func(t *testing.T) {
		path := filepath.Join(dir, "self.pid")
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))
		assert.True(t, IsDaemonRunning(path))
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(dir, "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o600))
		assert.False(t, IsDaemonRunning(path))
	})
}

func TestStopDaemonNotRunning(t *testing.T) {
	dir := t.TempDir()
	err := StopDaemon(DaemonPaths{
		Socket: filepath.Join(dir, "resweepd.sock"),
		PID:    filepath.Join(dir, "resweepd.pid"),
	})
	assert.NoError(t, err)
}

func TestResolveBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "resweepd")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	got, err := resolveBinary(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = resolveBinary(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestStatusPathAndFile(t *testing.T) {
	assert.Equal(t, "/run/resweepd.status", StatusPath("/run/resweepd.sock"))

	path := filepath.Join(t.TempDir(), "resweepd.status")
	require.NoError(t, os.WriteFile(path, []byte(`{"status":"error","error":"catalog missing"}`), 0o600))
	st, err := readStatusFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", st.Status)
	assert.Equal(t, "catalog missing", st.Error)

	_, err = readStatusFile(filepath.Join(t.TempDir(), "none"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDaemonPathsDefaults(t *testing.T) {
	p := DaemonPaths{}.withDefaults()
	assert.True(t, filepath.IsAbs(p.Socket))
	assert.True(t, filepath.IsAbs(p.PID))

	p = DaemonPaths{Socket: "/x.sock", PID: "/x.pid"}.withDefaults()
	assert.Equal(t, "/x.sock", p.Socket)
	assert.Equal(t, "/x.pid", p.PID)
}
