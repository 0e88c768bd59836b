package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/modes1090/internal/sink/sqlitestore"
)

const histogramBins = 40

// LevelSummary describes the distribution of signal levels.
type LevelSummary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	P10    float64
	Median float64
	P90    float64
	Max    float64
}

// Report is everything the HTML page shows for one run, or for the whole
// store when RunID is empty.
type Report struct {
	RunID     string
	Runs      []sqlitestore.RunSummary
	Formats   []sqlitestore.FormatCount
	Levels    []float64
	Summary   LevelSummary
	Valid     int
	Corrected int
}

func buildReport(ctx context.Context, store *sqlitestore.Store, runID string) (*Report, error) {
	runs, err := store.Runs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	formats, err := store.FormatCounts(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("format counts: %w", err)
	}
	levels, err := store.SignalLevels(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("signal levels: %w", err)
	}

	r := &Report{RunID: runID, Runs: runs, Formats: formats, Levels: levels, Summary: summarise(levels)}
	for _, f := range formats {
		r.Valid += f.Valid
		r.Corrected += f.Corrected
	}
	return r, nil
}

func summarise(levels []float64) LevelSummary {
	if len(levels) == 0 {
		return LevelSummary{}
	}
	sorted := slices.Clone(levels)
	slices.Sort(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	return LevelSummary{
		Count:  len(sorted),
		Mean:   mean,
		StdDev: std,
		Min:    sorted[0],
		P10:    stat.Quantile(0.1, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

// histogram counts levels into n equal-width bins between the minimum and
// maximum. It returns the lower edge of each bin and its count.
func histogram(levels []float64, n int) ([]float64, []float64) {
	if len(levels) == 0 || n <= 0 {
		return nil, nil
	}
	lo, hi := slices.Min(levels), slices.Max(levels)
	if hi == lo {
		return []float64{lo}, []float64{float64(len(levels))}
	}
	dividers := make([]float64, n+1)
	for i := range dividers {
		dividers[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	// The top edge must be strictly above the maximum.
	dividers[n] = hi + (hi-lo)*1e-9

	sorted := slices.Clone(levels)
	slices.Sort(sorted)
	counts := stat.Histogram(nil, dividers, sorted, nil)
	return dividers[:n], counts
}

func renderHTML(w io.Writer, r *Report) error {
	scope := "all runs"
	if r.RunID != "" {
		scope = "run " + r.RunID
	}

	page := components.NewPage()
	page.PageTitle = "Mode S yield"
	page.SetLayout(components.PageFlexLayout)

	dfs := make([]string, len(r.Formats))
	valid := make([]opts.BarData, len(r.Formats))
	corrected := make([]opts.BarData, len(r.Formats))
	for i, f := range r.Formats {
		dfs[i] = fmt.Sprintf("DF%d", f.DownlinkFormat)
		valid[i] = opts.BarData{Value: f.Valid}
		corrected[i] = opts.BarData{Value: f.Corrected}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Decodes per downlink format", Subtitle: scope}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	bar.SetXAxis(dfs).
		AddSeries("valid", valid, charts.WithBarChartOpts(opts.BarChart{Stack: "integrity"})).
		AddSeries("corrected", corrected, charts.WithBarChartOpts(opts.BarChart{Stack: "integrity"}))

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Integrity mix", Subtitle: scope}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("integrity", []opts.PieData{
		{Name: "valid", Value: r.Valid},
		{Name: "corrected", Value: r.Corrected},
	}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c} ({d}%)"}))

	edges, counts := histogram(r.Levels, histogramBins)
	bins := make([]string, len(edges))
	hist := make([]opts.BarData, len(counts))
	for i := range edges {
		bins[i] = fmt.Sprintf("%.3f", edges[i])
		hist[i] = opts.BarData{Value: counts[i]}
	}
	s := r.Summary
	levels := charts.NewBar()
	levels.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Signal level",
			Subtitle: fmt.Sprintf("n=%d mean=%.4f sd=%.4f p10=%.4f median=%.4f p90=%.4f",
				s.Count, s.Mean, s.StdDev, s.P10, s.Median, s.P90),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "level", NameLocation: "middle", NameGap: 30}),
	)
	levels.SetXAxis(bins).AddSeries("records", hist)

	page.AddCharts(bar, pie, levels)
	return page.Render(w)
}

// writeLevelPlot saves a PNG histogram of the signal levels.
func writeLevelPlot(path string, r *Report) error {
	if len(r.Levels) == 0 {
		return fmt.Errorf("no signal levels to plot")
	}
	p := plot.New()
	p.Title.Text = "Signal level"
	p.X.Label.Text = "level"
	p.Y.Label.Text = "records"

	h, err := plotter.NewHist(plotter.Values(r.Levels), histogramBins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	p.Add(h)
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
