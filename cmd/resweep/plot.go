package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/resweep/pkg/resweep/chart"
	"github.com/jamesainslie/resweep/pkg/resweep/history"
)

var plotCmd = &cobra.Command{
	Use:   "plot <id>",
	Short: "Chart a saved sweep",
	Long: `Render the quality factor of every solved mode of a saved sweep against
frequency, with the threshold drawn as a line. The output format follows
the file extension: ` + strings.Join(chart.Formats(), ", ") + `.

Examples:
  resweep plot latest -o resonances.svg
  resweep plot 20261018T1015 -o run.html --hide-rejected`,
	Args: cobra.ExactArgs(1),
	RunE: runPlot,
}

var (
	plotOutput       string
	plotTitle        string
	plotLogQ         bool
	plotHideRejected bool
	plotWidth        float64
	plotHeight       float64
)

func init() {
	defaults := chart.DefaultOptions()
	plotCmd.Flags().StringVarP(&plotOutput, "output", "o", "", "chart file to write (required)")
	plotCmd.Flags().StringVar(&plotTitle, "title", defaults.Title, "chart title")
	plotCmd.Flags().BoolVar(&plotLogQ, "log-q", false, "plot the quality factor on a log axis")
	plotCmd.Flags().BoolVar(&plotHideRejected, "hide-rejected", false, "omit modes at or below the threshold")
	plotCmd.Flags().Float64Var(&plotWidth, "width", defaults.Width, "image width in inches")
	plotCmd.Flags().Float64Var(&plotHeight, "height", defaults.Height, "image height in inches")
	rootCmd.AddCommand(plotCmd)
}

func runPlot(_ *cobra.Command, args []string) error {
	if plotOutput == "" {
		return errors.New("--output is required")
	}

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

	opts := chart.Options{
		Title:        plotTitle,
		Width:        plotWidth,
		Height:       plotHeight,
		LogQ:         plotLogQ,
		HideRejected: plotHideRejected,
	}
	if err := chart.WriteFile(plotOutput, rec.Report, opts); err != nil {
		return err
	}
	printInfo("Chart of %s written to %s", rec.ID, plotOutput)
	return nil
}
