package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/resweep/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the resweepd daemon",
	Long: `Manage resweepd, the daemon that owns the solver session.

resweep sweep talks to it over a unix socket. The daemon persists
configurations and results, so a sweep can be inspected after it ends.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the resweepd daemon",
	Long:  `Start resweepd in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the resweepd daemon",
	Long:  `Stop resweepd gracefully, letting a running solve finish.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the resweepd daemon",
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

var daemonCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Drop every configuration the daemon holds",
	Long: `Drop every configuration and result the daemon holds, in memory and on
disk. Use it to recover setups left behind by a sweep that was killed
before it could release them.`,
	RunE: runDaemonClean,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonCleanCmd)
}

// configuredDaemonPaths returns the daemon paths from configuration, or the
// defaults when the config cannot be loaded.
func configuredDaemonPaths() client.DaemonPaths {
	cfg, err := loadConfig()
	if err != nil {
		printVerbose("using default daemon paths: %v", err)
	}
	return daemonPaths(cfg)
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths := configuredDaemonPaths()
	if client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon already running")
		return nil
	}
	printVerbose("starting daemon...")
	if err := client.StartDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths := configuredDaemonPaths()
	printVerbose("checking PID file: %s", paths.PID)
	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon is not running")
		return nil
	}
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	if err := client.RestartDaemon(configuredDaemonPaths()); err != nil {
		return err
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	paths := configuredDaemonPaths()
	w := cmd.OutOrStdout()

	if !client.IsDaemonRunning(paths.PID) {
		fmt.Fprintln(w, "Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		fmt.Fprintln(w, "Daemon status: running (but not responding)")
		return nil
	}
	defer c.Close()

	status, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	fmt.Fprintln(w, "Daemon status: running")
	fmt.Fprintf(w, "  PID:            %d\n", status.PID)
	fmt.Fprintf(w, "  Uptime:         %s\n", formatDuration(status.Uptime))
	fmt.Fprintf(w, "  Memory:         %s\n", humanize.IBytes(uint64(max(status.MemoryBytes, 0))))
	fmt.Fprintf(w, "  Backend:        %s\n", status.Backend)
	fmt.Fprintf(w, "  Catalog:        %s (%d modes)\n", status.Catalog, status.CatalogModes)
	if !status.CatalogLoaded.IsZero() {
		fmt.Fprintf(w, "  Catalog loaded: %s\n", humanize.Time(status.CatalogLoaded))
	}
	fmt.Fprintf(w, "  Configurations: %d\n", status.Configurations)
	fmt.Fprintf(w, "  Stored:         %d\n", status.Stored)
	fmt.Fprintf(w, "  Runs:           %s\n", humanize.Comma(status.Runs))
	return nil
}

func runDaemonClean(cmd *cobra.Command, _ []string) error {
	paths := configuredDaemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		return fmt.Errorf("daemon is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w", err)
	}
	defer c.Close()

	released, err := c.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Released %d configurations\n", released)
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
