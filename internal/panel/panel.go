// Package panel builds one panel per metric on the shared time axis. A
// panel's value domain is fixed at creation; its horizontal scale always
// comes from the shared viewport.
package panel

import (
	"sort"
	"strings"

	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/powerscope/powerscope/internal/viewport"
)

const (
	DefaultWidth      = 1090
	DefaultHeight     = 160
	DefaultSpanLimit  = 15
	DefaultValueTicks = 10
	DefaultTimeTicks  = 6

	// Span bars stack in ten rows starting 10% down the plot.
	spanRows       = 10
	spanRowTop     = 0.10
	spanRowSpacing = 0.05
)

// Event and span colours.
const (
	ColorEventStart = "green"
	ColorEventEnd   = "red"
	ColorEventOther = "gray"
)

var opColors = []struct{ op, color string }{
	{"Conv", "#ff7f0e"},
	{"MaxPool", "#2ca02c"},
	{"Gemm", "#d62728"},
	{"Reduce", "#9467bd"},
}

const defaultOpColor = "#1f77b4"

var metricColors = map[string]string{
	"power":         "steelblue",
	"cpu":           "steelblue",
	"memory":        "orange",
	"energy_joules": "green",
	"temperature":   "red",
}

var fallbackColors = []string{"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf"}

// OpColor picks a span colour from its operator name.
func OpColor(op string) string {
	for _, c := range opColors {
		if strings.Contains(op, c.op) {
			return c.color
		}
	}
	return defaultOpColor
}

// MetricColor returns the line colour for a metric key.
func MetricColor(key string, index int) string {
	if c, ok := metricColors[key]; ok {
		return c
	}
	return fallbackColors[index%len(fallbackColors)]
}

// Options sizes and styles a panel.
type Options struct {
	Width  float64
	Height float64
	Color  string
	// ZeroBaseline fixes the lower value bound at 0, as power charts do.
	ZeroBaseline bool
	ValueTicks   int
	TimeTicks    int
	// SpanLimit bounds how many spans are drawn; all remain in the model.
	SpanLimit int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.ValueTicks <= 0 {
		o.ValueTicks = DefaultValueTicks
	}
	if o.TimeTicks <= 0 {
		o.TimeTicks = DefaultTimeTicks
	}
	if o.SpanLimit <= 0 {
		o.SpanLimit = DefaultSpanLimit
	}
	if o.Color == "" {
		o.Color = defaultOpColor
	}
	return o
}

// Overlays are the shared event and span layers drawn on every panel.
type Overlays struct {
	Events      []timeline.Event
	Spans       []timeline.Span
	SpanOverlay bool
	Approximate bool
}

// Panel is one metric's view.
type Panel struct {
	series   timeline.Series
	overlays Overlays
	opts     Options

	lo, hi float64
	empty  bool
}

// New creates a panel and fixes its value domain to the nice-rounded sample
// extent. An empty series yields a usable panel with a [0, 1] domain and an
// *timeline.EmptySeriesError.
func New(series timeline.Series, overlays Overlays, opts Options) (*Panel, error) {
	p := &Panel{series: series, overlays: overlays, opts: opts.withDefaults()}

	lo, hi, ok := series.Extent()
	if !ok {
		p.lo, p.hi, p.empty = 0, 1, true
		return p, &timeline.EmptySeriesError{Metric: series.Key}
	}
	if p.opts.ZeroBaseline {
		lo = min(lo, 0)
	}
	p.lo, p.hi = Nice(lo, hi, p.opts.ValueTicks)
	return p, nil
}

// Key is the metric key.
func (p *Panel) Key() string { return p.series.Key }

// Series returns the panel's samples.
func (p *Panel) Series() timeline.Series { return p.series }

// Empty reports whether the metric had no samples.
func (p *Panel) Empty() bool { return p.empty }

// ValueDomain returns the fixed value domain.
func (p *Panel) ValueDomain() (lo, hi float64) { return p.lo, p.hi }

// ValueY maps a value to a y pixel, top = hi.
func (p *Panel) ValueY(v float64) float64 {
	return p.opts.Height - (v-p.lo)/(p.hi-p.lo)*p.opts.Height
}

// Spans returns the spans shown on this panel, bounded by the span limit.
func (p *Panel) Spans() []timeline.Span {
	if !p.overlays.SpanOverlay {
		return nil
	}
	spans := p.overlays.Spans
	if len(spans) > p.opts.SpanLimit {
		spans = spans[:p.opts.SpanLimit]
	}
	return spans
}

// Redraw produces the frame for the viewport's current state.
func (p *Panel) Redraw(vp *viewport.Viewport) Frame {
	scale, ok := vp.Effective()
	if !ok {
		return p.draw(nil, viewport.Identity, vp.Version())
	}
	return p.draw(scale, vp.Transform(), vp.Version())
}

func (p *Panel) draw(scale *viewport.Scale, t viewport.Transform, version uint64) Frame {
	f := Frame{
		Metric:      p.series.Key,
		Label:       p.series.Label,
		Unit:        p.series.Unit,
		Color:       p.opts.Color,
		Width:       p.opts.Width,
		Height:      p.opts.Height,
		Empty:       p.empty,
		Version:     version,
		Transform:   t,
		Domain:      [2]float64{p.lo, p.hi},
		SpanOverlay: p.overlays.SpanOverlay,
		Approximate: p.overlays.Approximate,
	}
	for _, v := range Ticks(p.lo, p.hi, p.opts.ValueTicks) {
		f.ValueTicks = append(f.ValueTicks, Tick{Value: v, Pos: p.ValueY(v), Label: formatTick(v)})
	}
	if scale == nil {
		return f
	}

	f.Loaded = true
	f.Window = [2]float64{scale.D0, scale.D1}
	// The viewport's range is authoritative for horizontal placement.
	xr := scale.R1 / p.opts.Width
	x := func(t float64) float64 { return scale.Apply(t) / xr }

	for _, v := range Ticks(scale.D0, scale.D1, p.opts.TimeTicks) {
		f.TimeTicks = append(f.TimeTicks, Tick{Value: v, Pos: x(v), Label: formatTimeTick(v)})
	}

	samples := p.series.Samples
	from, to := visibleRange(samples, scale.D0, scale.D1)
	for _, s := range samples[from:to] {
		t := float64(s.Time)
		f.Points = append(f.Points, Point{T: t, V: s.Value, X: x(t), Y: p.ValueY(s.Value)})
	}

	for _, e := range p.overlays.Events {
		t := float64(e.Time)
		if !scale.Covers(t) {
			continue
		}
		m := EventMarker{T: t, X: x(t), Label: e.Label}
		switch e.Kind() {
		case timeline.EventStart:
			m.Kind, m.Color = "start", ColorEventStart
		case timeline.EventEnd:
			m.Kind, m.Color = "end", ColorEventEnd
		default:
			m.Kind, m.Color = "other", ColorEventOther
		}
		f.Events = append(f.Events, m)
	}

	for i, s := range p.Spans() {
		start, end := float64(s.Start), float64(s.End)
		if end < scale.D0 || start > scale.D1 {
			continue
		}
		f.Spans = append(f.Spans, SpanMarker{
			Index:  i,
			Name:   s.Name,
			OpName: s.OpName,
			Start:  start,
			End:    end,
			X0:     max(x(start), 0),
			X1:     min(x(end), p.opts.Width),
			Y:      p.opts.Height * (spanRowTop + float64(i%spanRows)*spanRowSpacing),
			Color:  OpColor(s.OpName),
		})
	}
	return f
}

// visibleRange returns [from, to) covering samples inside [t0, t1] plus one
// neighbour on each side so lines run to the plot edges.
func visibleRange(samples []timeline.Sample, t0, t1 float64) (int, int) {
	n := len(samples)
	from := sort.Search(n, func(i int) bool { return float64(samples[i].Time) >= t0 })
	to := sort.Search(n, func(i int) bool { return float64(samples[i].Time) > t1 })
	if from > 0 {
		from--
	}
	if to < n {
		to++
	}
	return from, to
}
