// Package metrics exposes resweepd's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

const namespace = "resweepd"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	rpcTotal       *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	runDuration    prometheus.Histogram
	modesSolved    prometheus.Counter
	configurations prometheus.Gauge
	catalogModes   prometheus.Gauge
	catalogReloads *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		rpcTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Solver RPCs handled, by method and status code",
		}, []string{"method", "code"}),
		rpcDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "Solver RPC latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"method"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock time of completed solver runs",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 900, 3600},
		}),
		modesSolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "modes_solved_total",
			Help:      "Eigenmodes returned by completed runs",
		}),
		configurations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "configurations",
			Help:      "Live solver configurations",
		}),
		catalogModes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "modes",
			Help:      "Modes in the served catalog",
		}),
		catalogReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "reloads_total",
			Help:      "Catalog reload attempts, by result",
		}, []string{"result"}),
	}
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(d time.Duration, modes int) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.modesSolved.Add(float64(modes))
}

// SetConfigurations records the number of live configurations.
func (m *Metrics) SetConfigurations(n int) {
	if m == nil {
		return
	}
	m.configurations.Set(float64(n))
}

// CatalogLoaded records a catalog (re)load. A nil err counts as success.
func (m *Metrics) CatalogLoaded(modes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.catalogReloads.WithLabelValues("error").Inc()
		return
	}
	m.catalogReloads.WithLabelValues("ok").Inc()
	m.catalogModes.Set(float64(modes))
}

// UnaryServerInterceptor counts and times every unary RPC.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := shortMethod(info.FullMethod)
		m.rpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		m.rpcTotal.WithLabelValues(method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve listens on addr and serves /metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return m.ServeListener(ctx, ln)
}

// ServeListener serves /metrics on ln until ctx is done.
func (m *Metrics) ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Get("daemon").Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shortMethod(full string) string {
	return full[strings.LastIndex(full, "/")+1:]
}
