package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/cave.view/internal/actors"
	"github.com/banshee-data/cave.view/internal/viewpoint"
)

// maxChartPoints bounds the points drawn per series.
const maxChartPoints = 2000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// renderEyePage draws raw against filtered eye height, and the eye's floor
// track, from samples.
func renderEyePage(w io.Writer, samples []viewpoint.Sample) error {
	stride := 1
	if len(samples) > maxChartPoints {
		stride = (len(samples) + maxChartPoints - 1) / maxChartPoints
	}

	var (
		xs                []string
		rawY, filteredY   []opts.LineData
		rawXZ, filteredXZ []opts.ScatterData
	)
	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		xs = append(xs, fmt.Sprintf("%.2f", s.Time.Sub(samples[0].Time).Seconds()))
		rawY = append(rawY, opts.LineData{Value: s.Raw.Position.Y()})
		filteredY = append(filteredY, opts.LineData{Value: s.Filtered.Position.Y()})
		rawXZ = append(rawXZ, opts.ScatterData{Value: []interface{}{s.Raw.Position.X(), s.Raw.Position.Z()}})
		filteredXZ = append(filteredXZ, opts.ScatterData{Value: []interface{}{s.Filtered.Position.X(), s.Filtered.Position.Z()}})
	}

	height := charts.NewLine()
	height.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Eye trace", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Eye height", Subtitle: fmt.Sprintf("samples=%d stride=%d", len(samples), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", Scale: opts.Bool(true)}),
	)
	height.SetXAxis(xs).
		AddSeries("raw", rawY).
		AddSeries("filtered", filteredY)

	floor := charts.NewScatter()
	floor.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "720px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Eye floor track", Subtitle: "X against Z"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)", NameLocation: "middle", NameGap: 30, Scale: opts.Bool(true)}),
	)
	floor.AddSeries("raw", rawXZ, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3})).
		AddSeries("filtered", filteredXZ, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	page := components.NewPage()
	page.SetPageTitle("Eye trace").AddCharts(height, floor)
	return page.Render(w)
}

// renderHeatMap draws the floor occupancy grid of hm.
func renderHeatMap(w io.Writer, hm *actors.HeatMap) error {
	cols, rows := hm.Dims()
	counts := hm.Snapshot()
	st := hm.Stats()

	xs := make([]string, cols)
	for c := range xs {
		xs[c] = fmt.Sprintf("%.2f", (float64(c)+0.5)*hm.CellSize())
	}
	ys := make([]string, rows)
	for r := range ys {
		ys[r] = fmt.Sprintf("%.2f", (float64(r)+0.5)*hm.CellSize())
	}
	data := make([]opts.HeatMapData, 0, len(counts))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, r, counts[r*cols+c]}})
		}
	}

	maxCount := st.Max
	if maxCount == 0 {
		maxCount = 1
	}
	hmChart := charts.NewHeatMap()
	hmChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Floor heat map", Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Floor heat map",
			Subtitle: fmt.Sprintf("cell=%.2fm samples=%d mean=%.2f sd=%.2f", hm.CellSize(), st.Samples, st.Mean, st.StdDev),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Z (m)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCount),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hmChart.SetXAxis(xs).AddSeries("occupancy", data)
	return hmChart.Render(w)
}
