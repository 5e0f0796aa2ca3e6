// Package chart draws quality factor against frequency for a sweep report,
// as a static image (gonum/plot) or an interactive HTML page (go-echarts).
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/jamesainslie/resweep/pkg/resweep/output"
)

// ErrUnsupportedFormat is returned for file extensions no renderer handles.
var ErrUnsupportedFormat = errors.New("unsupported chart format")

// Options controls chart appearance.
type Options struct {
	Title string

	// Width and Height of static images in inches.
	Width, Height float64

	// LogQ plots the quality factor on a logarithmic axis. Modes with a
	// non-positive Q are left out.
	LogQ bool

	// HideRejected omits modes at or below the threshold.
	HideRejected bool
}

// DefaultOptions returns a 10x5 inch chart with a linear Q axis.
func DefaultOptions() Options {
	return Options{Title: "Resonances", Width: 10, Height: 5}
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 10
	}
	if h <= 0 {
		h = 5
	}
	return vg.Length(w) * vg.Inch, vg.Length(h) * vg.Inch
}

var (
	acceptedColor  = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff}
	rejectedColor  = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	thresholdColor = color.RGBA{R: 0xe0, G: 0x40, B: 0x40, A: 0xff}
)

// Formats lists the file extensions WriteFile understands.
func Formats() []string {
	return []string{"html", "jpg", "jpeg", "pdf", "png", "svg", "tif", "tiff"}
}

// WriteFile renders r to path, choosing the renderer by extension.
func WriteFile(path string, r *output.Result, opts Options) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	var buf bytes.Buffer
	if err := Render(&buf, format, r, opts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}

// Render writes r to w in format ("png", "svg", "pdf", "html", ...).
func Render(w io.Writer, format string, r *output.Result, opts Options) error {
	switch format {
	case "html":
		return HTML(w, r, opts)
	case "jpg", "jpeg", "pdf", "png", "svg", "tif", "tiff":
		p, err := Static(r, opts)
		if err != nil {
			return err
		}
		width, height := opts.size()
		wt, err := p.WriterTo(width, height, format)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", format, err)
		}
		_, err = wt.WriteTo(w)
		return err
	default:
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedFormat, format, strings.Join(Formats(), ", "))
	}
}

// points converts resonances to (GHz, Q) pairs.
func points(rs []output.Resonance, logQ bool) plotter.XYs {
	pts := make(plotter.XYs, 0, len(rs))
	for _, r := range rs {
		if logQ && r.Q <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: r.Frequency.GHz(), Y: r.Q})
	}
	return pts
}

// Static builds the gonum plot: accepted and rejected modes as scatter
// series and the quality threshold as a dashed line across the range.
func Static(r *output.Result, opts Options) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = "Resonances"
	}
	p.X.Label.Text = "Frequency (GHz)"
	p.Y.Label.Text = "Q"
	p.Add(plotter.NewGrid())

	if !opts.HideRejected {
		if pts := points(r.Rejected, opts.LogQ); len(pts) > 0 {
			s, err := plotter.NewScatter(pts)
			if err != nil {
				return nil, fmt.Errorf("rejected series: %w", err)
			}
			s.GlyphStyle.Color = rejectedColor
			s.GlyphStyle.Shape = draw.CrossGlyph{}
			s.GlyphStyle.Radius = vg.Points(3)
			p.Add(s)
			p.Legend.Add("rejected", s)
		}
	}

	if pts := points(r.Resonances, opts.LogQ); len(pts) > 0 {
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("resonance series: %w", err)
		}
		s.GlyphStyle.Color = acceptedColor
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add("resonance", s)
	}

	if r.Threshold > 0 && r.FMax > r.FMin {
		line, err := plotter.NewLine(plotter.XYs{
			{X: r.FMin.GHz(), Y: r.Threshold},
			{X: r.FMax.GHz(), Y: r.Threshold},
		})
		if err != nil {
			return nil, fmt.Errorf("threshold line: %w", err)
		}
		line.Color = thresholdColor
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("Q = %g", r.Threshold), line)
	}

	// A log axis needs a strictly positive range.
	if opts.LogQ && p.Y.Min > 0 {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
