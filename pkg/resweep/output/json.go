package output

import (
	"bytes"
	"encoding/json"
	"time"
)

type jsonOutput struct {
	Request    jsonRequest     `json:"request"`
	Resonances []jsonResonance `json:"resonances"`
	Display    []string        `json:"display"`
	Iterations []jsonIteration `json:"iterations"`
	Stats      Stats           `json:"stats"`
	Meta       jsonMeta        `json:"meta"`
}

type jsonRequest struct {
	FMin      float64 `json:"fmin_hz"`
	FMax      float64 `json:"fmax_hz"`
	ModeCount int     `json:"mode_count"`
	Threshold float64 `json:"quality_threshold"`
}

type jsonResonance struct {
	Index     int     `json:"index"`
	Setup     string  `json:"setup"`
	Mode      int     `json:"mode"`
	Frequency float64 `json:"frequency_hz"`
	Display   string  `json:"display"`
	Q         float64 `json:"q"`
}

type jsonIteration struct {
	Index     int     `json:"index"`
	Setup     string  `json:"setup"`
	MinFreq   float64 `json:"min_frequency_hz"`
	MaxFreq   float64 `json:"max_frequency_hz,omitempty"`
	Modes     int     `json:"modes"`
	Accepted  int     `json:"accepted"`
	Attempts  int     `json:"attempts"`
	Passes    int     `json:"passes,omitempty"`
	Converged bool    `json:"converged"`
	Elapsed   string  `json:"elapsed"`
}

type jsonMeta struct {
	RunID    string    `json:"run_id,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Backend  string    `json:"backend,omitempty"`
	Reached  float64   `json:"reached_hz"`
	Complete bool      `json:"complete"`
	Error    string    `json:"error,omitempty"`
	Elapsed  string    `json:"elapsed"`
	Warnings []string  `json:"warnings,omitempty"`
}

// JSONFormatter writes the whole report as one indented JSON document.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildJSON(r))
}

func buildJSON(r *Result) jsonOutput {
	out := jsonOutput{
		Request: jsonRequest{
			FMin:      r.FMin.Hertz(),
			FMax:      r.FMax.Hertz(),
			ModeCount: r.ModeCount,
			Threshold: r.Threshold,
		},
		Resonances: make([]jsonResonance, len(r.Resonances)),
		Display:    make([]string, len(r.Resonances)),
		Iterations: make([]jsonIteration, len(r.Iterations)),
		Stats:      r.Stats,
		Meta: jsonMeta{
			RunID:    r.RunID,
			Started:  r.Started,
			Backend:  r.Backend,
			Reached:  r.Reached.Hertz(),
			Complete: r.Complete,
			Error:    r.Error,
			Elapsed:  r.Elapsed.String(),
			Warnings: r.Warnings,
		},
	}
	for i, res := range r.Resonances {
		out.Resonances[i] = jsonResonanceOf(res)
		out.Display[i] = res.Display
	}
	for i, it := range r.Iterations {
		out.Iterations[i] = jsonIteration{
			Index:     it.Index,
			Setup:     it.Setup,
			MinFreq:   it.MinFreq.Hertz(),
			MaxFreq:   it.MaxFreq.Hertz(),
			Modes:     it.Modes,
			Accepted:  it.Accepted,
			Attempts:  it.Attempts,
			Passes:    it.Passes,
			Converged: it.Converged,
			Elapsed:   it.Elapsed.String(),
		}
	}
	return out
}

func jsonResonanceOf(res Resonance) jsonResonance {
	return jsonResonance{
		Index:     res.Index,
		Setup:     res.Setup,
		Mode:      res.Mode,
		Frequency: res.Frequency.Hertz(),
		Display:   res.Display,
		Q:         res.Q,
	}
}

// JSONLFormatter writes one compact JSON object per resonance.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, res := range r.Resonances {
		data, err := json.Marshal(jsonResonanceOf(res))
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("json", func() Formatter { return &JSONFormatter{} })
	Register("jsonl", func() Formatter { return &JSONLFormatter{} })
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*JSONLFormatter)(nil)
)
