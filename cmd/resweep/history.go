package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/resweep/pkg/resweep/config"
	"github.com/jamesainslie/resweep/pkg/resweep/history"
	"github.com/jamesainslie/resweep/pkg/resweep/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View saved sweeps",
	Long: `View the sweeps resweep has saved.

Every sweep, including failed and partial ones, is stored as a JSON record
so reports and charts can be regenerated without re-running the solver.`,
	RunE: runHistory,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sweeps",
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved sweep",
	Long: `Render a saved sweep in any report format. The id may be a unique
prefix, or "latest".`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old sweeps",
	Long:  `Remove saved sweeps older than the retention period.`,
	RunE:  runHistoryClean,
}

var (
	historyLimit  int
	historyFormat string
	cleanDays     int
)

func init() {
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyShowCmd.Flags().StringVarP(&historyFormat, "format", "o", "", "report format (default from config)")
	historyCleanCmd.Flags().IntVar(&cleanDays, "days", 0, "retention in days (default history.retention_days)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getHistory returns the history store from configuration, falling back to
// the default directory when the config cannot be loaded.
func getHistory() (*history.Store, error) {
	dir := config.HistoryDir()
	if cfg, err := loadConfig(); err == nil {
		dir = cfg.History.Path
	} else {
		printVerbose("using default history directory: %v", err)
	}
	return history.New(dir)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := getHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	records, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(records) == 0 {
		printInfo("No saved sweeps found.")
		printInfo("Run 'resweep sweep' to find resonances.")
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\n%-26s  %-19s  %-8s  %-19s  %5s  %4s\n", "ID", "STARTED", "STATUS", "RANGE", "FOUND", "ITER")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, rec := range records {
		r := rec.Report
		fmt.Fprintf(w, "%-26s  %-19s  %-8s  %-19s  %5d  %4d\n",
			rec.ID,
			rec.Timestamp.Local().Format(time.DateTime),
			rec.Status,
			fmt.Sprintf("%s-%s", r.FMin.Display(), r.FMax.Display()),
			len(r.Resonances),
			len(r.Iterations),
		)
	}
	fmt.Fprintln(w, strings.Repeat("-", 90))
	fmt.Fprintf(w, "\nShowing %d entries. Use --limit to see more.\n", len(records))
	fmt.Fprintln(w, "Use 'resweep history show <id>' for details on a specific sweep.")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := getHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	var rec *history.Record
	if args[0] == "latest" {
		rec, err = store.Latest()
	} else {
		rec, err = store.Get(args[0])
	}
	if err != nil {
		return err
	}

	format := historyFormat
	if format == "" {
		format = config.DefaultFormat
		if cfg, err := loadConfig(); err == nil {
			format = cfg.Format
		}
	}
	out, err := output.Render(format, rec.Report)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runHistoryClean(_ *cobra.Command, _ []string) error {
	days := cleanDays
	if days <= 0 {
		days = config.DefaultRetentionDays
		if cfg, err := loadConfig(); err == nil {
			days = cfg.History.RetentionDays
		}
	}
	if days <= 0 {
		printInfo("History retention is disabled; nothing removed.")
		return nil
	}

	store, err := getHistory()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	removed, err := store.Cleanup(days)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d sweeps older than %d days.", removed, days)
	return nil
}
