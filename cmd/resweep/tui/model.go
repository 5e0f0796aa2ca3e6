package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/resweep/pkg/resweep/controller"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// ProgressMsg is sent after every sweep iteration.
type ProgressMsg controller.Progress

// DoneMsg is sent when the sweep returns.
type DoneMsg struct {
	Result *controller.Result
	Err    error
}

// LogMsg carries a log entry to the log panel.
type LogMsg logging.Entry

// tickMsg refreshes the elapsed time.
type tickMsg struct{}

const logLines = 5

// Model renders a running sweep.
type Model struct {
	request controller.Request
	backend string
	cancel  context.CancelFunc

	spinner  spinner.Model
	progress progress.Model
	logs     *logRing

	last       controller.Progress
	resonances controller.ResonanceSet
	solved     int
	startTime  time.Time
	elapsed    time.Duration

	stopping bool
	done     bool
	err      error

	width  int
	height int
}

// NewModel creates a model for req. cancel stops the sweep when the user
// quits early.
func NewModel(req controller.Request, backend string, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	p := progress.New(progress.WithGradient(string(primaryColor), string(accentColor)))

	return Model{
		request:   req,
		backend:   backend,
		cancel:    cancel,
		spinner:   s,
		progress:  p,
		logs:      newLogRing(50),
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

// Init starts the spinner and the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ProgressMsg:
		m.last = controller.Progress(msg)
		m.resonances = m.last.State.Resonances
		m.solved += len(m.last.Iteration.Modes)
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.elapsed = time.Since(m.startTime)
		res := msg.Result
		if partial, ok := controller.Partial(msg.Err); ok && res == nil {
			res = partial
		}
		if res != nil {
			m.resonances = res.Resonances
			m.last.State = res.State
			m.last.Request = res.Request
		}
		if m.stopping {
			return m, tea.Quit
		}
		return m, nil

	case LogMsg:
		m.logs.Add(logging.Entry(msg))
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.startTime)
		return m, tick()

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		if m.done {
			return m, tea.Quit
		}
		// Wait for the sweep to hand back its partial result.
		m.stopping = true
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil
	case "enter":
		if m.done {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the model.
func (m Model) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus(contentWidth))
	b.WriteString("\n\n")

	m.progress.Width = max(contentWidth-4, 10)
	b.WriteString("  ")
	b.WriteString(m.progress.ViewAs(m.coverage()))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderResonances(contentWidth))

	if m.logs.Len() > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("  Log"))
		b.WriteString("\n")
		for _, e := range m.logs.Last(logLines) {
			b.WriteString("  ")
			b.WriteString(renderLogEntry(e, contentWidth-2))
			b.WriteString("\n")
		}
	}

	content := b.String()
	contentLines := strings.Count(content, "\n") + 1
	if availableLines := m.height - 2; availableLines > contentLines {
		content += strings.Repeat("\n", availableLines-contentLines)
	}
	return outerBoxStyle.Width(m.width - 2).Render(content)
}

func (m Model) coverage() float64 {
	if m.done && m.err == nil {
		return 1
	}
	if m.last.Request == (controller.Request{}) {
		return 0
	}
	return m.last.Coverage()
}

func (m Model) renderHeader(width int) string {
	title := titleStyle.Render(fmt.Sprintf("  resweep  %s - %s", m.request.Min.Display(), m.request.Max.Display()))
	var hint string
	if m.done {
		hint = keyStyle.Render("q") + keyDescStyle.Render(" quit")
	} else {
		hint = keyStyle.Render("ctrl+c") + keyDescStyle.Render(" stop")
	}
	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(hint), 1)
	return title + strings.Repeat(" ", spacing) + hint
}

func (m Model) renderStatus(width int) string {
	switch {
	case m.done && m.err != nil:
		msg := m.err.Error()
		if errors.Is(m.err, context.Canceled) {
			msg = "sweep stopped"
		}
		return errorTextStyle.Render("  " + truncate("Error: "+msg, width-2))
	case m.done:
		return successTextStyle.Render(fmt.Sprintf("  Sweep complete: %d resonances", len(m.resonances)))
	case m.stopping:
		return warningTextStyle.Render(fmt.Sprintf("  %s Stopping after the current solve...", m.spinner.View()))
	}
	next := m.request.Min
	if m.last.State.Iteration > 0 {
		next = m.last.State.NextMinFrequency
	}
	return fmt.Sprintf("  %s Solving %d modes above %s on %s",
		m.spinner.View(), m.request.ModeCount, next.Display(), m.backend)
}

func (m Model) renderStats(totalWidth int) string {
	boxWidth := max((totalWidth-16)/4, 10)

	iterations := humanize.Comma(int64(m.last.State.Iteration))
	solved := humanize.Comma(int64(m.solved))
	found := humanize.Comma(int64(len(m.resonances)))

	return lipgloss.JoinHorizontal(lipgloss.Top,
		"  ", renderStatBox("Iterations", iterations, boxWidth),
		" ", renderStatBox("Modes", solved, boxWidth),
		" ", renderStatBox("Resonances", found, boxWidth),
		" ", renderStatBox("Time", formatDuration(m.elapsed), boxWidth))
}

func renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		center(statsLabelStyle.Render(label), width-6),
		center(statsValueStyle.Render(value), width-6))
	return statsBoxStyle.Width(width).Render(content)
}

// renderResonances lists accepted modes, newest last, trimmed to fit.
func (m Model) renderResonances(width int) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("  Resonances (Q > %g)", m.request.QualityThreshold)))
	b.WriteString("\n")
	if len(m.resonances) == 0 {
		b.WriteString(mutedTextStyle.Render("  none yet"))
		b.WriteString("\n")
		return b.String()
	}

	rows := m.resonances
	limit := max(m.height-22, 3)
	if len(rows) > limit {
		b.WriteString(mutedTextStyle.Render(fmt.Sprintf("  ... %d earlier", len(rows)-limit)))
		b.WriteString("\n")
		rows = rows[len(rows)-limit:]
	}
	for _, r := range rows {
		line := frequencyStyle.Render(r.Frequency.Display()) +
			qualityStyle.Render(fmt.Sprintf("Q %.1f", r.Q)) +
			setupStyle.Render(truncate(fmt.Sprintf("mode %d", r.Mode), max(width-26, 8)))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}

// Done reports whether the sweep has returned.
func (m Model) Done() bool { return m.done }

// Err returns the error the sweep returned, if any.
func (m Model) Err() error { return m.err }
