package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/jamesainslie/resweep/pkg/resweep/output"
)

func scatterData(rs []output.Resonance, logQ bool) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(rs))
	for _, r := range rs {
		if logQ && r.Q <= 0 {
			continue
		}
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("%s mode %d", r.Setup, r.Mode),
			Value: []interface{}{r.Frequency.GHz(), r.Q},
		})
	}
	return data
}

// HTML writes an interactive scatter chart of the report to w.
func HTML(w io.Writer, r *output.Result, o Options) error {
	title := o.Title
	if title == "" {
		title = "Resonances"
	}
	subtitle := fmt.Sprintf("%s to %s, %d modes per setup, %d found",
		r.FMin.Display(), r.FMax.Display(), r.ModeCount, len(r.Resonances))

	yAxis := opts.YAxis{Name: "Q", NameLocation: "middle", NameGap: 40}
	if o.LogQ {
		yAxis.Type = "log"
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "560px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "value", Name: "Frequency (GHz)", NameLocation: "middle", NameGap: 25,
			Min: r.FMin.GHz(), Max: r.FMax.GHz(),
		}),
		charts.WithYAxisOpts(yAxis),
	)

	scatter.AddSeries("resonance", scatterData(r.Resonances, o.LogQ),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#1f9e89"}),
		charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
			Name:  fmt.Sprintf("Q = %g", r.Threshold),
			YAxis: r.Threshold,
		}),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol:    []string{"none", "none"},
			LineStyle: &opts.LineStyle{Color: "#e04040", Type: "dashed"},
		}),
	)
	if !o.HideRejected {
		scatter.AddSeries("rejected", scatterData(r.Rejected, o.LogQ),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}),
		)
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("rendering html chart: %w", err)
	}
	return nil
}
