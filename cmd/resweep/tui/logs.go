package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// logRing keeps the latest log entries, oldest first.
type logRing struct {
	entries    []logging.Entry
	maxEntries int
}

func newLogRing(maxEntries int) *logRing {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &logRing{
		entries:    make([]logging.Entry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Add appends an entry, evicting the oldest if at capacity.
func (r *logRing) Add(e logging.Entry) {
	if len(r.entries) >= r.maxEntries {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, e)
}

// Last returns up to n of the newest entries, oldest first.
func (r *logRing) Last(n int) []logging.Entry {
	n = min(max(n, 0), len(r.entries))
	return r.entries[len(r.entries)-n:]
}

func (r *logRing) Len() int { return len(r.entries) }

func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelError:
		return errorTextStyle
	case logging.LevelWarn:
		return warningTextStyle
	case logging.LevelDebug:
		return mutedTextStyle
	default:
		return lipgloss.NewStyle()
	}
}

// renderLogEntry renders one line: time, level letter, component, message.
func renderLogEntry(e logging.Entry, width int) string {
	level := strings.ToUpper(e.Level.String()[:1])
	prefix := fmt.Sprintf("%s %s %-10s ", e.Time.Format("15:04:05"), level, truncate(e.Component, 10))
	msg := truncate(e.Message, max(width-len(prefix), 10))
	return logLevelStyle(e.Level).Render(prefix + msg)
}
