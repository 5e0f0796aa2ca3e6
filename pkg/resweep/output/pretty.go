package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter renders a styled report for the terminal.
type PrettyFormatter struct{}

// Format writes the header, resonance table, footer, error and warnings.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))

	if r.Error != "" {
		w.WriteString("\n")
		w.WriteString(ErrorBox.Render(ErrorStyle.Bold(true).Render("Sweep failed: ") + r.Error))
	}
	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%s %s",
		LabelStyle.Render("Range:"),
		ValueStyle.Render(fmt.Sprintf("%s to %s", r.FMin.Display(), r.FMax.Display()))))

	info := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Modes:"), ValueStyle.Render(fmt.Sprintf("%d", r.ModeCount))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Q >"), ValueStyle.Render(humanize.Ftoa(r.Threshold))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Iterations:"), ValueStyle.Render(fmt.Sprintf("%d", len(r.Iterations)))),
	}
	if r.Backend != "" {
		info = append(info, fmt.Sprintf("%s %s", LabelStyle.Render("Solver:"), MutedStyle.Render(r.Backend)))
	}
	lines = append(lines, strings.Join(info, "  "))

	if !r.Complete {
		lines = append(lines, WarningStyle.Bold(true).Render(
			fmt.Sprintf("Partial result: reached %s", r.Reached.Display())))
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Resonances) == 0 {
		return MutedStyle.Render("  No resonances above the quality threshold\n")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padLeft("#", 3)),
		TableHeaderStyle.Render(padLeft("FREQUENCY", 12)),
		TableHeaderStyle.Render(padLeft("Q", 10)),
		TableHeaderStyle.Render("SETUP"))

	for _, res := range r.Resonances {
		fmt.Fprintf(&sb, "  %s  %s  %s  %s\n",
			MutedStyle.Render(padLeft(fmt.Sprintf("%d", res.Index), 3)),
			FrequencyStyle.Render(padLeft(res.Display, 12)),
			QualityStyle(res.Q, r.Threshold).Render(padLeft(formatQ(res.Q), 10)),
			MutedStyle.Render(fmt.Sprintf("%s/%d", res.Setup, res.Mode)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Resonances:"),
			ValueStyle.Render(fmt.Sprintf("%d of %d solved", r.Stats.Count, r.Stats.Solved))),
	}
	if r.Stats.Count > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Q:"),
			ValueStyle.Render(fmt.Sprintf("%s..%s (median %s)",
				formatQ(r.Stats.QMin), formatQ(r.Stats.QMax), formatQ(r.Stats.QMedian)))))
	}
	parts = append(parts,
		fmt.Sprintf("%s %s", LabelStyle.Render("Took:"), ValueStyle.Render(formatDuration(r.Elapsed))),
		MutedStyle.Render("Use --format plain for unformatted output"))

	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, w := range warnings {
		sb.WriteString(WarningStyle.Render("  " + w))
		sb.WriteString("\n")
	}
	return sb.String()
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// formatQ prints a quality factor with thousands separators and at most
// one decimal place.
func formatQ(q float64) string {
	return humanize.CommafWithDigits(q, 1)
}

// formatDuration renders d as "850ms", "42s", "3m 12s" or "2h 5m".
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func init() {
	Register("pretty", func() Formatter { return &PrettyFormatter{} })
}

var _ Formatter = (*PrettyFormatter)(nil)
