// Package main provides resweepd, the solver session daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/resweep/pkg/daemon"
	"github.com/jamesainslie/resweep/pkg/resweep/config"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// Build-time variables set by go build -ldflags.
var (
	version = "dev"
	commit  = "none"
)

type options struct {
	socket      string
	pid         string
	dataDir     string
	catalog     string
	metricsAddr string
	console     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "resweepd",
		Short: "Solver session daemon for resweep",
		Long: `resweepd owns the eigenmode solver session and serves it to resweep
over a unix socket. It replays modes from a YAML catalog, reloading the
catalog when it changes on disk, and persists configurations and results
so they survive a restart.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "resweepd: %v\n", err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.socket, "socket", "", "unix socket path (default from config)")
	f.StringVar(&opts.pid, "pid", "", "PID file path (default from config)")
	f.StringVar(&opts.dataDir, "data-dir", "", "data directory for the store and default catalog")
	f.StringVar(&opts.catalog, "catalog", "", "mode catalog file (default <data-dir>/catalog.yaml)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this host:port")
	f.StringVar(&opts.console, "console", "", "mirror log entries at or above this level to stderr")
	return cmd
}

// resolve layers flags over the config file over built-in defaults and
// returns the server configuration and PID file path.
func resolve(opts options, cfg config.DaemonConfig) (daemon.Config, string, error) {
	for _, p := range []*string{&opts.socket, &opts.pid, &opts.dataDir, &opts.catalog} {
		expanded, err := config.ExpandPath(*p)
		if err != nil {
			return daemon.Config{}, "", err
		}
		*p = expanded
	}
	dcfg := daemon.Config{
		SocketPath:  firstSet(opts.socket, cfg.SocketPath, config.DefaultSocketPath()),
		DataDir:     firstSet(opts.dataDir, cfg.DataDir, config.DataDir()),
		CatalogPath: firstSet(opts.catalog, cfg.Catalog),
		MetricsAddr: firstSet(opts.metricsAddr, cfg.MetricsAddr),
	}
	return dcfg, firstSet(opts.pid, cfg.PIDPath, config.DefaultPIDPath()), nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logCfg, err := cfg.Logging.Logging(opts.console)
	if err != nil {
		return err
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = logging.Close() }()
	log := logging.Get("daemon")

	dcfg, pidPath, err := resolve(opts, cfg.Daemon)
	if err != nil {
		return err
	}
	statusPath := daemon.StatusPath(dcfg.SocketPath)

	if err := daemon.RecoverFromStaleDaemon(pidPath, dcfg.SocketPath, dcfg.DataDir); err != nil {
		if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			return fmt.Errorf("%w (pid file %s)", err, pidPath)
		}
		return err
	}

	srv, err := daemon.NewServer(dcfg)
	if err != nil {
		log.Error("failed to start", "error", err)
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}

	if err := daemon.WritePIDFile(pidPath); err != nil {
		_ = srv.Close()
		_ = daemon.WriteStatusError(statusPath, err)
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			log.Warn("failed to remove PID file", "path", pidPath, "error", err)
		}
	}()

	if err := daemon.WriteStatusReady(statusPath); err != nil {
		log.Warn("failed to write status file", "path", statusPath, "error", err)
	}
	defer func() { _ = daemon.RemoveStatus(statusPath) }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("resweepd starting", "version", version, "socket", dcfg.SocketPath,
		"data_dir", dcfg.DataDir, "metrics", dcfg.MetricsAddr)

	serveErr := srv.Serve(ctx)
	if ctx.Err() != nil {
		log.Info("shutting down", "reason", "signal")
	}
	if err := srv.Close(); err != nil {
		log.Warn("error during shutdown", "error", err)
	}
	return serveErr
}
