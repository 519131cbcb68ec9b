// Package render turns panel frames into images and reports. Frames are
// already clipped and scaled, so every panel rendered from one viewport
// state shares the same x window.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/powerscope/powerscope/internal/panel"
)

// ErrNotLoaded is returned when a frame was drawn before any data loaded.
var ErrNotLoaded = errors.New("panel has no time domain")

// Format selects the image encoding.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" or "svg".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case PNG:
		return PNG, nil
	case SVG:
		return SVG, nil
	}
	return "", fmt.Errorf("unknown image format %q (want png or svg)", s)
}

// ContentType is the MIME type of the encoding.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

var namedColors = map[string]string{
	"steelblue": "4682b4",
	"orange":    "ffa500",
	"green":     "008000",
	"red":       "ff0000",
	"gray":      "808080",
}

func colorOf(name string) drawing.Color {
	if hex, ok := namedColors[name]; ok {
		return drawing.ColorFromHex(hex)
	}
	return drawing.ColorFromHex(strings.TrimPrefix(name, "#"))
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 1.5,
		StrokeColor: col,
		DotWidth:    2,
		DotColor:    col,
	}
}

// PanelChart builds the go-chart chart for one frame. Only samples inside
// the window are plotted; go-chart does not clip to the axis range.
func PanelChart(f panel.Frame) (chart.Chart, error) {
	if !f.Loaded {
		return chart.Chart{}, ErrNotLoaded
	}
	w0, w1 := f.Window[0], f.Window[1]
	lo, hi := f.Domain[0], f.Domain[1]

	var series []chart.Series

	visible := f.VisiblePoints()
	if len(visible) > 0 {
		xs := make([]float64, len(visible))
		ys := make([]float64, len(visible))
		for i, p := range visible {
			xs[i], ys[i] = p.T, p.V
		}
		if len(xs) == 1 {
			// go-chart needs two points to draw a line
			xs = append(xs, xs[0])
			ys = append(ys, ys[0])
		}
		series = append(series, chart.ContinuousSeries{Name: f.Label, XValues: xs, YValues: ys, Style: lineStyle(colorOf(f.Color))})
	} else {
		series = append(series, chart.ContinuousSeries{
			Name:    f.Label,
			XValues: []float64{w0, w1},
			YValues: []float64{lo, lo},
			Style:   chart.Style{Hidden: true},
		})
	}

	for _, e := range f.Events {
		col := colorOf(e.Color)
		series = append(series, chart.ContinuousSeries{
			Name:    e.Label,
			XValues: []float64{e.T, e.T},
			YValues: []float64{lo, hi},
			Style:   chart.Style{StrokeWidth: 3, StrokeColor: col, StrokeDashArray: []float64{5, 5}},
		})
	}

	for _, s := range f.Spans {
		// Span rows are laid out in pixels; map the row back into value space.
		y := hi - s.Y/f.Height*(hi-lo)
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: []float64{max(s.Start, w0), min(s.End, w1)},
			YValues: []float64{y, y},
			Style: chart.Style{
				StrokeWidth:     4,
				StrokeColor:     colorOf(s.Color).WithAlpha(204),
				StrokeDashArray: []float64{2, 4},
			},
		})
	}

	title := f.Label
	if f.Empty {
		title += " (no samples)"
	}
	if f.Approximate && len(f.Spans) > 0 {
		title += " [spans approximate]"
	}

	ch := chart.Chart{
		Title:      title,
		Width:      int(f.Width),
		Height:     int(f.Height) + 80,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 24}},
		XAxis: chart.XAxis{
			Name:  "Time (ms)",
			Range: &chart.ContinuousRange{Min: w0, Max: w1},
			Ticks: chartTicks(f.TimeTicks),
		},
		YAxis: chart.YAxis{
			Name:  f.Unit,
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			Ticks: chartTicks(f.ValueTicks),
		},
		Series: series,
	}
	return ch, nil
}

func chartTicks(ticks []panel.Tick) []chart.Tick {
	if len(ticks) < 2 {
		// Fewer than two ticks: let go-chart pick its own.
		return nil
	}
	out := make([]chart.Tick, len(ticks))
	for i, t := range ticks {
		out[i] = chart.Tick{Value: t.Value, Label: t.Label}
	}
	return out
}

// WritePanel renders one frame as an image.
func WritePanel(w io.Writer, f panel.Frame, format Format) error {
	ch, err := PanelChart(f)
	if err != nil {
		return err
	}
	provider := chart.PNG
	if format == SVG {
		provider = chart.SVG
	}
	var buf bytes.Buffer
	if err := ch.Render(provider, &buf); err != nil {
		return fmt.Errorf("render %s panel: %w", f.Metric, err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
