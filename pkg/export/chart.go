package export

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/gridinertia/core/dispatch"
)

// ChartOptions tunes WriteChart.
type ChartOptions struct {
	Title string
	// Bus restricts the dispatch chart to flows into one bus; empty plots
	// every output flow.
	Bus string
}

// WriteChart renders an HTML page with the stacked dispatch of the output
// flows and the kinetic energy held against the thresholds.
func WriteChart(w io.Writer, res dispatch.Results, o ChartOptions) error {
	if o.Title == "" {
		o.Title = "Dispatch"
	}
	x := make([]string, 0, len(res.Timestamps()))
	for _, t := range res.Timestamps() {
		x = append(x, t.Format("2006-01-02 15:04"))
	}

	supply := charts.NewLine()
	supply.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: o.Title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Power"}),
	)
	supply.SetXAxis(x)
	for _, k := range res.Keys() {
		if o.Bus != "" && k.To != o.Bus {
			continue
		}
		rec, err := res.Get(k.From, k.To)
		if err != nil {
			return err
		}
		if rec.Role != dispatch.RoleOutput {
			continue
		}
		supply.AddSeries(k.From, lineData(rec.Sequences[dispatch.SeriesFlow]),
			charts.WithLineChartOpts(opts.LineChart{Stack: "supply"}))
	}

	summary := res.Inertia()
	var syncE, totalE, syncT, totalT []float64
	for _, s := range summary {
		syncE = append(syncE, s.SynchronousEnergy)
		totalE = append(totalE, s.TotalEnergy())
		syncT = append(syncT, s.SynchronousThreshold)
		totalT = append(totalT, s.TotalThreshold)
	}
	inertia := charts.NewLine()
	inertia.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Kinetic energy"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Energy"}),
	)
	inertia.SetXAxis(x).
		AddSeries("synchronous", lineData(syncE)).
		AddSeries("total", lineData(totalE)).
		AddSeries("synchronous threshold", lineData(syncT)).
		AddSeries("total threshold", lineData(totalT))

	page := components.NewPage()
	page.AddCharts(supply, inertia)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func lineData(vs []float64) []opts.LineData {
	out := make([]opts.LineData, len(vs))
	for i, v := range vs {
		out[i] = opts.LineData{Value: v}
	}
	return out
}
