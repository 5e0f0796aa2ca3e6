package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter writes an aligned table without colours.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, "#\tFREQUENCY\tQ\tSETUP\tMODE"); err != nil {
		return err
	}
	for _, res := range r.Resonances {
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n",
			res.Index, res.Display, formatQ(res.Q), res.Setup, res.Mode); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if r.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Error)
	}
	return nil
}

// ListFormatter writes one resonance display string per line, e.g. "1.3 GHz".
type ListFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *ListFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, res := range r.Resonances {
		w.WriteString(res.Display)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("plain", func() Formatter { return &PlainFormatter{} })
	Register("list", func() Formatter { return &ListFormatter{} })
}

var (
	_ Formatter = (*PlainFormatter)(nil)
	_ Formatter = (*ListFormatter)(nil)
)
