package output

import "github.com/charmbracelet/lipgloss"

// Palette shared by the pretty report and the TUI (ANSI 256 colours).
const (
	ColorPrimary = lipgloss.Color("39")
	ColorSuccess = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorDanger  = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
)

var (
	// HeaderBox frames the request summary.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox frames the statistics line.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)

	// ErrorBox frames a sweep failure.
	ErrorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDanger).
			Padding(0, 1).
			MarginTop(1)
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	LabelStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorDanger)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)

	// FrequencyStyle highlights resonance frequencies.
	FrequencyStyle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// TableHeaderStyle is used for column headings.
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorMuted).Underline(true)
)

// QualityStyle colours a quality factor by how far it clears the threshold.
func QualityStyle(q, threshold float64) lipgloss.Style {
	switch {
	case q <= threshold:
		return MutedStyle
	case q < 2*threshold:
		return WarningStyle
	default:
		return SuccessStyle
	}
}
