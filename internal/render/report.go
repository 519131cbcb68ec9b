package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/powerscope/powerscope/internal/panel"
	"github.com/powerscope/powerscope/internal/timeline"
)

// connectScript links every chart on the page so zoom, pan and the axis
// pointer move together.
const connectScript = `<script>
(function () {
    var insts = [];
    document.querySelectorAll('[_echarts_instance_]').forEach(function (el) {
        var c = echarts.getInstanceByDom(el);
        if (c) { insts.push(c); }
    });
    if (insts.length > 1) { echarts.connect(insts); }
    window.addEventListener('resize', function () {
        insts.forEach(function (c) { c.resize(); });
    });
})();
</script>
`

const reportCSS = `<style>
    body { font-family: sans-serif; margin: 16px; }
    .container { display: block; }
    .item { margin: 0 auto 12px auto; }
    .alignment { color: #555; font-size: 13px; margin-bottom: 12px; }
</style>
`

// Report writes a standalone HTML page with one linked chart per frame.
// The initial zoom of every chart matches the frame window.
func Report(w io.Writer, run *timeline.Run, frames []panel.Frame) error {
	page := components.NewPage()
	page.PageTitle = "powerscope"

	domainEnd := float64(run.DomainEnd())
	for i, f := range frames {
		series, _ := run.Metric(f.Metric)
		page.AddCharts(reportChart(i, f, series, domainEnd))
	}

	var buf strings.Builder
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	html := buf.String()
	html = strings.Replace(html, "</head>", reportCSS+"</head>", 1)
	html = strings.Replace(html, "<body>", "<body>\n"+alignmentBanner(run.Alignment), 1)
	html = strings.Replace(html, "</body>", connectScript+"</body>", 1)

	_, err := io.WriteString(w, html)
	return err
}

func alignmentBanner(a timeline.Alignment) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="alignment">alignment: %s`, a.Mode)
	if a.Confidence != "" {
		fmt.Fprintf(&b, " (%s)", a.Confidence)
	}
	if msg := a.ErrorText(); msg != "" {
		fmt.Fprintf(&b, " &middot; trace overlay disabled: %s", msg)
	}
	b.WriteString("</div>\n")
	return b.String()
}

func reportChart(i int, f panel.Frame, series timeline.Series, domainEnd float64) *charts.Line {
	line := charts.NewLine()

	subtitle := f.Unit
	if f.Empty {
		subtitle = "no samples"
	}

	start, end := float32(0), float32(100)
	if f.Loaded && domainEnd > 0 {
		start = float32(f.Window[0] / domainEnd * 100)
		end = float32(f.Window[1] / domainEnd * 100)
	}

	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			ChartID: fmt.Sprintf("panel_%d_%s", i, f.Metric),
			Width:   "100%",
			Height:  "260px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    f.Label,
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "ms",
			Type: "value",
			Min:  0,
			Max:  domainEnd,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: f.Unit,
			Type: "value",
			Min:  f.Domain[0],
			Max:  f.Domain[1],
		}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "inside", Start: start, End: end},
			opts.DataZoom{Type: "slider", Start: start, End: end},
		),
		charts.WithGridOpts(opts.Grid{
			Left:   "8%",
			Right:  "4%",
			Bottom: "60",
			Top:    "60",
		}),
	)

	// The report carries every sample; the data zoom does the clipping.
	data := make([]opts.LineData, 0, len(series.Samples))
	for _, s := range series.Samples {
		data = append(data, opts.LineData{Value: []interface{}{float64(s.Time), s.Value}})
	}

	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{
			ShowSymbol: opts.Bool(false),
		}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: f.Color}),
	}
	for _, e := range f.Events {
		seriesOpts = append(seriesOpts, charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
			Name:  e.Label,
			XAxis: e.T,
		}))
	}
	if len(f.Events) > 0 {
		seriesOpts = append(seriesOpts, charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol: []string{"none", "none"},
		}))
	}
	for _, s := range f.Spans {
		seriesOpts = append(seriesOpts, charts.WithMarkAreaNameCoordItemOpts(opts.MarkAreaNameCoordItem{
			Name:        s.Name,
			Coordinate0: []interface{}{s.Start, f.Domain[0]},
			Coordinate1: []interface{}{s.End, f.Domain[1]},
		}))
	}

	line.AddSeries(f.Label, data, seriesOpts...)
	return line
}
