package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/resweep/pkg/resweep/controller"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// Options configures the TUI.
type Options struct {
	Service solver.Service
	Sweep   controller.Options
	Request controller.Request

	// Backend names the solver in the status line.
	Backend string
}

type outcome struct {
	result *controller.Result
	err    error
}

// Run sweeps while showing progress and returns what Sweep returned. Quitting
// early cancels the sweep and still returns its partial result.
func Run(ctx context.Context, opts Options) (*controller.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(opts.Request, opts.Backend, cancel), tea.WithAltScreen())

	logs := logging.Subscribe()
	stopLogs := make(chan struct{})
	defer func() {
		logging.Unsubscribe(logs)
		close(stopLogs)
	}()
	go func() {
		for {
			select {
			case e := <-logs:
				p.Send(LogMsg(e))
			case <-stopLogs:
				return
			}
		}
	}()

	done := make(chan outcome, 1)
	go func() {
		sweepOpts := opts.Sweep
		sweepOpts.OnProgress = func(pr controller.Progress) { p.Send(ProgressMsg(pr)) }
		res, err := controller.New(opts.Service, sweepOpts).Sweep(ctx, opts.Request)
		done <- outcome{result: res, err: err}
		p.Send(DoneMsg{Result: res, Err: err})
	}()

	_, runErr := p.Run()
	cancel()
	out := <-done

	if runErr != nil && out.err == nil {
		return out.result, fmt.Errorf("running terminal UI: %w", runErr)
	}
	return out.result, out.err
}
