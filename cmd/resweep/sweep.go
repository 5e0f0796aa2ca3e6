package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/resweep/cmd/resweep/tui"
	"github.com/jamesainslie/resweep/pkg/client"
	"github.com/jamesainslie/resweep/pkg/daemon/replay"
	"github.com/jamesainslie/resweep/pkg/resweep/chart"
	"github.com/jamesainslie/resweep/pkg/resweep/config"
	"github.com/jamesainslie/resweep/pkg/resweep/controller"
	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/history"
	"github.com/jamesainslie/resweep/pkg/resweep/output"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
	"github.com/jamesainslie/resweep/pkg/resweep/tuner"
)

// ErrNoBackend is returned when neither a catalog nor a daemon is available.
var ErrNoBackend = errors.New("no solver available: start it with 'resweep daemon start', set daemon.auto_start, or pass --catalog")

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep a frequency range for resonances",
	Long: `Sweep solves the model one configuration at a time, starting at --fmin,
until the highest mode found reaches --fmax. Modes whose quality factor is
above --threshold are reported.

The solver is resweepd over its unix socket, or an in-process replay of a
mode catalog when --catalog is given. --no-daemon replays the daemon's
configured catalog in-process.

On failure the resonances found so far are still printed and the command
exits non-zero.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	f := sweepCmd.Flags()
	f.String("fmin", "", "lowest frequency of interest, e.g. 1GHz")
	f.String("fmax", "", "highest frequency of interest, e.g. 2GHz")
	f.Int("modes", 0, "modes solved per iteration (1-20)")
	f.Float64("threshold", 0, "quality factor a mode must exceed to be kept")
	f.String("prefix", "", "configuration name prefix")
	f.Int("max-iterations", 0, "maximum solver configurations per sweep")
	f.Duration("timeout", 0, "wall-clock limit per iteration (0 disables)")
	f.Int("retries", 0, "retries after a transient solver failure")
	f.Int("cores", 0, "CPU cores per run (0 uses every detected core)")
	f.String("catalog", "", "replay modes from this catalog in-process")
	f.Bool("no-daemon", false, "replay the configured catalog in-process instead of using resweepd")
	f.StringP("format", "o", "", "report format: "+fmt.Sprint(output.Available()))
	f.String("template", "", "Go template for the report")
	f.String("plot", "", "write a chart of the result (.png, .svg, .pdf, .html, ...)")
	f.Bool("log-q", false, "plot the quality factor on a log axis")
	f.Bool("no-history", false, "do not save the sweep to history")
	f.Bool("tui", false, "show live progress in a terminal UI")

	for key, flag := range map[string]string{
		"sweep.fmin":           "fmin",
		"sweep.fmax":           "fmax",
		"sweep.modes":          "modes",
		"sweep.threshold":      "threshold",
		"sweep.prefix":         "prefix",
		"sweep.max_iterations": "max-iterations",
		"sweep.timeout":        "timeout",
		"sweep.retries":        "retries",
		"solver.cores":         "cores",
		"format":               "format",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(sweepCmd)
}

// sweepFlags holds the flags that have no config key.
type sweepFlags struct {
	catalog   string
	noDaemon  bool
	template  string
	plot      string
	logQ      bool
	noHistory bool
	tui       bool
}

func readSweepFlags(cmd *cobra.Command) sweepFlags {
	f := cmd.Flags()
	var sf sweepFlags
	sf.catalog, _ = f.GetString("catalog")
	sf.noDaemon, _ = f.GetBool("no-daemon")
	sf.template, _ = f.GetString("template")
	sf.plot, _ = f.GetString("plot")
	sf.logQ, _ = f.GetBool("log-q")
	sf.noHistory, _ = f.GetBool("no-history")
	sf.tui, _ = f.GetBool("tui")
	return sf
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sf := readSweepFlags(cmd)

	req, err := buildRequest(cfg.Sweep)
	if err != nil {
		return err
	}
	formatter, err := selectFormatter(cfg.Format, sf.template)
	if err != nil {
		return err
	}

	sys, err := tuner.Detect()
	if err != nil {
		printVerbose("failed to detect system resources: %v", err)
	}
	resources := tuner.Calculate(sys, tuner.Request{
		Cores:        cfg.Solver.Cores,
		Tasks:        cfg.Solver.Tasks,
		AutoSettings: cfg.Solver.AutoSettings,
	})
	warnings := tuner.Warnings(sys, resources, req.ModeCount)
	for _, w := range warnings {
		printInfo("Warning: %s", w)
	}
	printVerbose("System: %d CPUs, %s RAM, %s available",
		sys.CPUCores, humanize.IBytes(uint64(max(sys.TotalRAM, 0))), humanize.IBytes(uint64(max(sys.AvailableRAM, 0))))
	printVerbose("Run resources: %d cores, %d tasks", resources.Cores, resources.Tasks)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, backend, closeBackend, err := openBackend(ctx, cfg, sf)
	if err != nil {
		return err
	}
	defer closeBackend()

	opts := buildOptions(cfg, resources)
	started := time.Now()
	runID := history.NewID(started)
	opts.Session = runID

	var res *controller.Result
	var sweepErr error
	if sf.tui {
		if err := initTUILogging(); err != nil {
			return fmt.Errorf("failed to initialize TUI logging: %w", err)
		}
		res, sweepErr = tui.Run(ctx, tui.Options{
			Service: svc,
			Sweep:   opts,
			Request: req,
			Backend: backend,
		})
	} else {
		if !getQuiet() {
			printInfo("Sweeping %s to %s for %d modes per run (Q > %g) on %s...",
				req.Min, req.Max, req.ModeCount, req.QualityThreshold, backend)
		}
		opts.OnProgress = func(p controller.Progress) {
			printVerbose("iteration %d (%s): %d accepted, next fmin %s, %.0f%% covered",
				p.Iteration.Index, p.Iteration.Setup, p.Iteration.Accepted,
				p.State.NextMinFrequency, 100*p.Coverage())
		}
		res, sweepErr = controller.New(svc, opts).Sweep(ctx, req)
	}
	if partial, ok := controller.Partial(sweepErr); ok && res == nil {
		res = partial
	}

	report := output.FromSweep(res, sweepErr, output.Meta{
		RunID:    runID,
		Started:  started,
		Backend:  backend,
		Warnings: warnings,
	})

	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
		return err
	}

	if cfg.History.Enabled && !sf.noHistory {
		if rec, err := saveHistory(cfg.History, report); err != nil {
			printError("failed to save history: %v", err)
		} else {
			printVerbose("saved sweep %s", rec.ID)
		}
	}

	if sf.plot != "" {
		chartOpts := chart.DefaultOptions()
		chartOpts.LogQ = sf.logQ
		if err := chart.WriteFile(sf.plot, report, chartOpts); err != nil {
			printError("failed to write chart: %v", err)
		} else {
			printInfo("Chart written to %s", sf.plot)
		}
	}

	if res != nil {
		// A signal may have cancelled ctx by now.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := solver.ReleaseAll(relCtx, svc, res.Setups()...); err != nil {
			printVerbose("release: %v", err)
		}
		cancel()
	}

	return sweepErr
}

// buildRequest parses the sweep section into a controller request.
func buildRequest(sc config.SweepConfig) (controller.Request, error) {
	fmin, err := freq.Parse(sc.FMin)
	if err != nil {
		return controller.Request{}, fmt.Errorf("invalid --fmin %q: %w", sc.FMin, err)
	}
	fmax, err := freq.Parse(sc.FMax)
	if err != nil {
		return controller.Request{}, fmt.Errorf("invalid --fmax %q: %w", sc.FMax, err)
	}
	return controller.Request{
		Min:              fmin,
		Max:              fmax,
		ModeCount:        sc.Modes,
		QualityThreshold: sc.Threshold,
	}, nil
}

// buildOptions maps configuration onto controller options.
func buildOptions(cfg *config.Config, resources solver.ComputeResources) controller.Options {
	opts := controller.DefaultOptions()
	opts.NamePrefix = cfg.Sweep.Prefix
	opts.MaxIterations = cfg.Sweep.MaxIterations
	opts.IterationTimeout = cfg.Sweep.Timeout
	opts.Retry.Attempts = cfg.Sweep.Retries + 1
	opts.Retry.Backoff = cfg.Sweep.Backoff
	opts.Resources = resources
	opts.Convergence = controller.Convergence{
		ConvergeOnRealFreq:  cfg.Sweep.Convergence.RealFrequency,
		MaxPasses:           cfg.Sweep.Convergence.MaxPasses,
		MinPasses:           cfg.Sweep.Convergence.MinPasses,
		MaxDeltaFreqPercent: cfg.Sweep.Convergence.MaxDeltaFreq,
	}
	return opts
}

// selectFormatter returns the template formatter when a template is given,
// and the named formatter otherwise.
func selectFormatter(format, tmpl string) (output.Formatter, error) {
	if tmpl != "" {
		return output.NewTemplateFormatter(tmpl), nil
	}
	if format == "template" {
		return nil, errors.New("--template is required when using -o template")
	}
	if format == "" {
		format = config.DefaultFormat
	}
	return output.Get(format)
}

// openBackend picks the solver: an in-process catalog replay when asked
// for, otherwise resweepd, starting it first when daemon.auto_start is set.
// The returned backend name is recorded in the report.
func openBackend(ctx context.Context, cfg *config.Config, sf sweepFlags) (solver.Service, string, func(), error) {
	noop := func() {}

	catalog := sf.catalog
	if catalog == "" && sf.noDaemon {
		catalog = cfg.Daemon.Catalog
		if catalog == "" {
			catalog = config.DefaultCatalogPath()
		}
	}
	if catalog != "" {
		path, err := config.ExpandPath(catalog)
		if err != nil {
			return nil, "", noop, err
		}
		cat, err := replay.Load(path)
		if err != nil {
			return nil, "", noop, err
		}
		printVerbose("replaying %d modes from %s", cat.Len(), path)
		return replay.NewEngine(cat), "replay:" + path, noop, nil
	}

	paths := daemonPaths(cfg)
	if !client.IsDaemonRunning(paths.PID) {
		if !cfg.Daemon.AutoStart {
			return nil, "", noop, ErrNoBackend
		}
		printVerbose("starting daemon...")
		if err := client.StartDaemon(paths); err != nil {
			return nil, "", noop, fmt.Errorf("auto-starting daemon: %w", err)
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := client.ConnectWithContext(connCtx, paths.Socket)
	if err != nil {
		return nil, "", noop, fmt.Errorf("%w: %w", ErrNoBackend, err)
	}
	printVerbose("connected to daemon at %s", paths.Socket)
	return c, "daemon", func() { _ = c.Close() }, nil
}

// daemonPaths returns the daemon locations from configuration.
func daemonPaths(cfg *config.Config) client.DaemonPaths {
	var dc config.DaemonConfig
	if cfg != nil {
		dc = cfg.Daemon
	}
	return client.DaemonPaths{
		Binary: dc.BinaryPath,
		Socket: firstSet(dc.SocketPath, config.DefaultSocketPath()),
		PID:    firstSet(dc.PIDPath, config.DefaultPIDPath()),
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func saveHistory(hc config.HistoryConfig, report *output.Result) (*history.Record, error) {
	store, err := history.New(hc.Path)
	if err != nil {
		return nil, err
	}
	return store.Save(report)
}
