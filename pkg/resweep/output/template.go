package output

import (
	"bytes"
	"strconv"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
)

// TemplateFormatter renders a Result with a user-supplied text/template.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// NewTemplateFormatter returns a formatter for templateStr.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{templateStr: templateStr}
}

// SetTemplate replaces the template; it is compiled on the next Format.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// {{ghz .Frequency}} -> "1.3"
		"ghz": func(f freq.Frequency) string {
			return strconv.FormatFloat(f.GHz(), 'g', 5, 64)
		},
		// {{hz .Frequency}} -> "1300000000"
		"hz": func(f freq.Frequency) string {
			return strconv.FormatFloat(f.Hertz(), 'f', -1, 64)
		},
		// {{si .Frequency}} -> "1.3 GHz"
		"si": func(f freq.Frequency) string {
			return f.String()
		},
		"q": formatQ,
		"duration": func(d time.Duration) string {
			return formatDuration(d)
		},
		"date": func(t time.Time, layout string) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		},
		"ago": func(t time.Time) string {
			return humanize.Time(t)
		},
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}
	return f.template.Execute(w, r)
}

const defaultTemplate = `{{range .Resonances}}{{.Display}}	Q={{q .Q}}
{{end}}`

func init() {
	Register("template", func() Formatter { return NewTemplateFormatter(defaultTemplate) })
}

var _ Formatter = (*TemplateFormatter)(nil)
