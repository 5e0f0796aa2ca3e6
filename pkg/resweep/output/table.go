package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// TSVFormatter writes resonances as tab-separated values with raw numbers.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString("index\tsetup\tmode\tfrequency_hz\tq\n")
	for _, res := range r.Resonances {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", res.Index, res.Setup, res.Mode,
			strconv.FormatFloat(res.Frequency.Hertz(), 'g', -1, 64),
			strconv.FormatFloat(res.Q, 'g', -1, 64))
	}
	return nil
}

// CSVFormatter writes resonances as RFC 4180 CSV.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "setup", "mode", "frequency_hz", "q"}); err != nil {
		return err
	}
	for _, res := range r.Resonances {
		record := []string{
			strconv.Itoa(res.Index),
			res.Setup,
			strconv.Itoa(res.Mode),
			strconv.FormatFloat(res.Frequency.Hertz(), 'g', -1, 64),
			strconv.FormatFloat(res.Q, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func init() {
	Register("tsv", func() Formatter { return &TSVFormatter{} })
	Register("csv", func() Formatter { return &CSVFormatter{} })
}

var (
	_ Formatter = (*TSVFormatter)(nil)
	_ Formatter = (*CSVFormatter)(nil)
)
