package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	solverv1 "github.com/jamesainslie/resweep/pkg/api/solver/v1"
	"github.com/jamesainslie/resweep/pkg/daemon/metrics"
	"github.com/jamesainslie/resweep/pkg/daemon/replay"
	"github.com/jamesainslie/resweep/pkg/daemon/store"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// BackendReplay names the catalog replay backend in status replies.
const BackendReplay = "replay"

// ErrSessionBusy is returned when a run is requested while another run holds
// the solver session.
var ErrSessionBusy = fmt.Errorf("%w: session busy with another run", solver.ErrUnavailable)

// Service implements the SolverService gRPC service over a replay engine.
// Configurations and run results are mirrored to the store, so a restarted
// daemon can still answer for setups created before the restart.
type Service struct {
	solverv1.UnimplementedSolverServiceServer

	engine    *replay.Engine
	store     *store.Store
	metrics   *metrics.Metrics
	startTime time.Time
	log       *logging.Logger

	// session admits one run at a time.
	session sync.Mutex

	shutdownMu sync.Mutex
	shutdown   func()
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore mirrors configurations and runs to s.
func WithStore(s *store.Store) ServiceOption {
	return func(svc *Service) { svc.store = s }
}

// WithMetrics records solver activity on m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(svc *Service) { svc.metrics = m }
}

// WithShutdown sets the function the Shutdown RPC triggers.
func WithShutdown(fn func()) ServiceOption {
	return func(svc *Service) { svc.shutdown = fn }
}

// NewService creates the gRPC service for engine.
func NewService(engine *replay.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine:    engine,
		startTime: time.Now(),
		log:       logging.Get("daemon"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetShutdown replaces the function the Shutdown RPC triggers.
func (s *Service) SetShutdown(fn func()) {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	s.shutdown = fn
}

// Engine returns the backend.
func (s *Service) Engine() *replay.Engine { return s.engine }

// CreateConfiguration registers a configuration.
func (s *Service) CreateConfiguration(ctx context.Context, req *solverv1.CreateConfigurationRequest) (*solverv1.CreateConfigurationResponse, error) {
	h, err := s.engine.CreateConfiguration(ctx, req.Name, req.Configuration)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}

	if s.store != nil {
		rec := &store.ConfigRecord{Name: h.Name, Configuration: req.Configuration}
		if err := s.store.PutConfiguration(rec); err != nil {
			s.log.Warn("failed to persist configuration", "setup", h.Name, "error", err)
		}
	}
	s.metrics.SetConfigurations(s.engine.Configurations())

	s.log.Debug("configuration created", "setup", h.Name,
		"fmin", req.Configuration.MinimumFrequency.String(), "modes", req.Configuration.ModeCount)
	return &solverv1.CreateConfigurationResponse{Handle: h.Name}, nil
}

// Run solves a configuration. Only one run may hold the session at a time;
// a concurrent request fails with Unavailable.
func (s *Service) Run(ctx context.Context, req *solverv1.RunRequest) (*solverv1.RunResponse, error) {
	if !s.session.TryLock() {
		return nil, solverv1.ToStatus(ErrSessionBusy)
	}
	defer s.session.Unlock()

	h := solver.Handle{Name: req.Handle}
	s.restore(h)

	began := time.Now()
	run, err := s.engine.Run(ctx, h, req.Resources)
	if err != nil {
		s.log.Warn("run failed", "setup", h.Name, "error", err)
		return nil, solverv1.ToStatus(err)
	}
	elapsed := time.Since(began)

	samples, err := s.engine.Results(h)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}
	if s.store != nil {
		rec := &store.RunRecord{
			Name:      h.Name,
			Passes:    run.Passes,
			Converged: run.Converged,
			Modes:     samples,
			Elapsed:   elapsed,
		}
		if err := s.store.PutRun(rec); err != nil {
			s.log.Warn("failed to persist run", "setup", h.Name, "error", err)
		}
	}
	s.metrics.ObserveRun(elapsed, len(samples))

	s.log.Info("run complete", "setup", h.Name, "modes", len(samples),
		"passes", run.Passes, "cores", req.Resources.Cores, "elapsed", elapsed)
	return &solverv1.RunResponse{Passes: run.Passes, Converged: run.Converged}, nil
}

// ListResultQuantities lists the quantities of one category.
func (s *Service) ListResultQuantities(ctx context.Context, req *solverv1.ListResultQuantitiesRequest) (*solverv1.ListResultQuantitiesResponse, error) {
	h := solver.Handle{Name: req.Handle}
	s.restore(h)

	names, err := s.engine.ListResultQuantities(ctx, h, req.Category)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}
	return &solverv1.ListResultQuantitiesResponse{Quantities: names}, nil
}

// QuantityValue returns one quantity's final-pass value.
func (s *Service) QuantityValue(ctx context.Context, req *solverv1.QuantityValueRequest) (*solverv1.QuantityValueResponse, error) {
	h := solver.Handle{Name: req.Handle}
	s.restore(h)

	v, err := s.engine.QuantityValue(ctx, h, req.Quantity)
	if err != nil {
		return nil, solverv1.ToStatus(err)
	}
	return &solverv1.QuantityValueResponse{Value: v}, nil
}

// Release drops a configuration from the engine and the store.
func (s *Service) Release(ctx context.Context, req *solverv1.ReleaseRequest) (*solverv1.ReleaseResponse, error) {
	h := solver.Handle{Name: req.Handle}
	if err := s.engine.Release(ctx, h); err != nil {
		return nil, solverv1.ToStatus(err)
	}
	if s.store != nil {
		if err := s.store.Delete(h.Name); err != nil {
			s.log.Warn("failed to delete stored configuration", "setup", h.Name, "error", err)
		}
	}
	s.metrics.SetConfigurations(s.engine.Configurations())
	return &solverv1.ReleaseResponse{}, nil
}

// Status returns daemon health information.
func (s *Service) Status(context.Context, *solverv1.StatusRequest) (*solverv1.StatusResponse, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := &solverv1.StatusResponse{
		Running:        true,
		PID:            os.Getpid(),
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:    int64(mem.Alloc),
		Backend:        BackendReplay,
		Configurations: s.engine.Configurations(),
		Runs:           s.engine.Runs(),
	}
	if s.store != nil {
		stored, _, err := s.store.Count()
		if err != nil {
			s.log.Warn("failed to count stored configurations", "error", err)
		}
		resp.Stored = stored
	}
	if cat := s.engine.Catalog(); cat != nil {
		resp.Catalog = cat.Source
		resp.CatalogModes = cat.Len()
		resp.CatalogLoaded = cat.Loaded.Unix()
	}
	return resp, nil
}

// Clear drops every configuration from the engine and the store, including
// setups left behind by a sweep that never released them. It fails with
// Unavailable while a run holds the session.
func (s *Service) Clear(context.Context, *solverv1.ClearRequest) (*solverv1.ClearResponse, error) {
	if !s.session.TryLock() {
		return nil, solverv1.ToStatus(ErrSessionBusy)
	}
	defer s.session.Unlock()

	released := s.engine.Clear()
	if s.store != nil {
		stored, err := s.store.Clear()
		if err != nil {
			return nil, solverv1.ToStatus(fmt.Errorf("clearing store: %w", err))
		}
		released = max(released, stored)
	}
	s.metrics.SetConfigurations(s.engine.Configurations())

	s.log.Info("configurations cleared", "released", released)
	return &solverv1.ClearResponse{Released: released}, nil
}

// Shutdown gracefully shuts down the daemon.
func (s *Service) Shutdown(context.Context, *solverv1.ShutdownRequest) (*solverv1.ShutdownResponse, error) {
	s.shutdownMu.Lock()
	fn := s.shutdown
	s.shutdownMu.Unlock()

	s.log.Info("shutdown requested")
	if fn != nil {
		go fn()
	}
	return &solverv1.ShutdownResponse{Success: true}, nil
}

// ReloadCatalog loads the catalog at path and swaps it in. On error the
// current catalog keeps serving.
func (s *Service) ReloadCatalog(path string) error {
	cat, err := replay.Load(path)
	if err != nil {
		s.metrics.CatalogLoaded(0, err)
		s.log.Error("catalog reload failed, keeping current catalog", "path", path, "error", err)
		return err
	}
	s.engine.Swap(cat)
	s.metrics.CatalogLoaded(cat.Len(), nil)
	s.log.Info("catalog reloaded", "path", path, "modes", cat.Len())
	return nil
}

// RestoreAll reinstates every stored configuration into the engine and
// returns how many were restored.
func (s *Service) RestoreAll() (int, error) {
	if s.store == nil {
		return 0, nil
	}
	recs, err := s.store.ListConfigurations()
	if err != nil {
		return 0, fmt.Errorf("listing stored configurations: %w", err)
	}
	for _, rec := range recs {
		s.restoreRecord(rec)
	}
	s.metrics.SetConfigurations(s.engine.Configurations())
	return len(recs), nil
}

// restore loads h from the store when the engine does not know it.
func (s *Service) restore(h solver.Handle) {
	if s.store == nil {
		return
	}
	if _, err := s.engine.Results(h); !errors.Is(err, solver.ErrUnknownHandle) {
		return
	}
	rec, err := s.store.GetConfiguration(h.Name)
	if err != nil {
		return
	}
	s.restoreRecord(rec)
	s.log.Debug("configuration restored from store", "setup", h.Name)
}

func (s *Service) restoreRecord(rec *store.ConfigRecord) {
	var samples []solver.ModeSample
	if run, err := s.store.GetRun(rec.Name); err == nil {
		samples = run.Modes
		if samples == nil {
			samples = []solver.ModeSample{}
		}
	}
	s.engine.Restore(rec.Name, rec.Configuration, samples)
}
