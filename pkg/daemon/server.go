package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	solverv1 "github.com/jamesainslie/resweep/pkg/api/solver/v1"
	"github.com/jamesainslie/resweep/pkg/daemon/metrics"
	"github.com/jamesainslie/resweep/pkg/daemon/replay"
	"github.com/jamesainslie/resweep/pkg/daemon/store"
	"github.com/jamesainslie/resweep/pkg/daemon/watcher"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// Config holds daemon configuration.
type Config struct {
	SocketPath string
	DataDir    string

	// CatalogPath is the mode catalog to serve. Empty uses catalog.yaml in
	// DataDir; a missing file is created with the default catalog.
	CatalogPath string

	// MetricsAddr enables the Prometheus listener when set.
	MetricsAddr string
}

// StorePath returns the badger directory inside dataDir.
func StorePath(dataDir string) string {
	return filepath.Join(dataDir, "store")
}

// Server is the resweepd gRPC server.
type Server struct {
	cfg      Config
	grpc     *grpc.Server
	listener net.Listener
	service  *Service
	store    *store.Store
	metrics  *metrics.Metrics
	watcher  *watcher.Watcher
	log      *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	closed  bool
}

// NewServer opens the store, loads the catalog and binds the socket.
func NewServer(cfg Config) (*Server, error) {
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = filepath.Join(cfg.DataDir, "catalog.yaml")
	}
	log := logging.Get("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	if wrote, err := replay.WriteDefault(cfg.CatalogPath); err != nil {
		return nil, err
	} else if wrote {
		log.Info("wrote default catalog", "path", cfg.CatalogPath)
	}
	cat, err := replay.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(StorePath(cfg.DataDir))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if stamped, err := st.Migrate(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	} else if stamped {
		log.Info("initialized store", "path", StorePath(cfg.DataDir))
	}

	m := metrics.New()
	m.CatalogLoaded(cat.Len(), nil)

	svc := NewService(replay.NewEngine(cat), WithStore(st), WithMetrics(m))
	if n, err := svc.RestoreAll(); err != nil {
		log.Warn("failed to restore configurations", "error", err)
	} else if n > 0 {
		log.Info("restored configurations", "count", n)
	}

	w, err := watcher.New(cfg.CatalogPath)
	if err != nil {
		log.Warn("catalog hot reload disabled", "path", cfg.CatalogPath, "error", err)
		w = nil
	}

	listener, err := listenUnix(cfg.SocketPath)
	if err != nil {
		if w != nil {
			_ = w.Close()
		}
		_ = st.Close()
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		grpc:     grpc.NewServer(grpc.ChainUnaryInterceptor(m.UnaryServerInterceptor())),
		listener: listener,
		service:  svc,
		store:    st,
		metrics:  m,
		watcher:  w,
		log:      log,
	}
	svc.SetShutdown(srv.Stop)
	solverv1.RegisterSolverServiceServer(srv.grpc, svc)

	return srv, nil
}

func listenUnix(socketPath string) (net.Listener, error) {
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	return ln, nil
}

// Service returns the gRPC service implementation.
func (s *Server) Service() *Service { return s.service }

// Metrics returns the daemon's collectors.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Serve runs the gRPC server, the catalog watcher and, when configured, the
// metrics listener. It blocks until ctx is done, Stop is called or one of
// them fails.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		s.log.Info("daemon listening", "socket", s.cfg.SocketPath, "catalog", s.cfg.CatalogPath)
		if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serving grpc: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.grpc.GracefulStop()
		return nil
	})

	if s.watcher != nil {
		g.Go(func() error {
			s.watcher.Run(gctx, s.catalogChanged)
			return nil
		})
	}

	if s.cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := s.metrics.Serve(gctx, s.cfg.MetricsAddr); err != nil {
				return fmt.Errorf("serving metrics: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) catalogChanged(path string, op fsnotify.Op) {
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		if _, err := os.Stat(path); err != nil {
			s.log.Warn("catalog removed, keeping current catalog", "path", path)
			return
		}
	}
	_ = s.service.ReloadCatalog(path)
}

// Stop makes Serve return after in-flight RPCs finish.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Close stops the server and releases the store, the watcher and the socket.
func (s *Server) Close() error {
	s.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.grpc.GracefulStop()
	_ = s.listener.Close()

	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	errs = append(errs, s.store.Close())
	if err := os.RemoveAll(s.cfg.SocketPath); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
