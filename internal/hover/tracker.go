package hover

import (
	"fmt"

	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/powerscope/powerscope/internal/viewport"
)

// State is the per-panel hover state.
type State int

const (
	Idle State = iota
	Hovering
)

func (s State) String() string {
	if s == Hovering {
		return "hovering"
	}
	return "idle"
}

// Tooltip is what a panel shows for the current hover. A hidden tooltip has
// Visible false and nothing else set.
type Tooltip struct {
	Visible bool            `json:"visible"`
	Metric  string          `json:"metric,omitempty"`
	Index   int             `json:"index"`
	Sample  timeline.Sample `json:"sample"`
	X       float64         `json:"x"`
	Y       float64         `json:"y"`
	Span    *timeline.Span  `json:"span,omitempty"`
	Text    string          `json:"text,omitempty"`
}

// Options configures a tracker.
type Options struct {
	// Label prefixes the tooltip text, e.g. "Power (W)".
	Label string
	// ValueY maps a sample value to a pixel y. Nil leaves Y at 0.
	ValueY func(v float64) float64
	// Spans are matched by time; only the first SpanLimit take part
	// (0 means all), mirroring what is drawn.
	Spans     []timeline.Span
	SpanLimit int
	// OnUpdate is called whenever the tooltip changes, including hides.
	OnUpdate func(Tooltip)
}

// Tracker runs the Idle/Hovering state machine for one panel. It re-matches
// on every viewport change while hovering, synchronously, so the tooltip
// never points at a stale sample after a zoom.
type Tracker struct {
	vp      *viewport.Viewport
	key     string
	samples []timeline.Sample
	opts    Options

	state   State
	lastPx  float64
	tooltip Tooltip
	unsub   func()
}

// NewTracker attaches a tracker to the shared viewport.
func NewTracker(vp *viewport.Viewport, series timeline.Series, opts Options) *Tracker {
	t := &Tracker{
		vp:      vp,
		key:     series.Key,
		samples: series.Samples,
		opts:    opts,
	}
	t.unsub = vp.OnChange(func(c viewport.Change) {
		if t.state == Hovering {
			t.match(c.Scale)
		}
	})
	return t
}

// Close detaches the tracker from the viewport.
func (t *Tracker) Close() {
	if t.unsub != nil {
		t.unsub()
		t.unsub = nil
	}
}

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// Tooltip returns the current tooltip.
func (t *Tracker) Tooltip() Tooltip { return t.tooltip }

// Enter moves Idle to Hovering and matches at px.
func (t *Tracker) Enter(px float64) Tooltip {
	t.state = Hovering
	return t.Move(px)
}

// Move re-matches while hovering. Moves while idle are ignored.
func (t *Tracker) Move(px float64) Tooltip {
	if t.state != Hovering {
		return t.tooltip
	}
	t.lastPx = px
	scale, _ := t.vp.Effective()
	t.match(scale)
	return t.tooltip
}

// Leave returns to Idle and hides the tooltip.
func (t *Tracker) Leave() Tooltip {
	t.state = Idle
	t.set(Tooltip{})
	return t.tooltip
}

func (t *Tracker) match(scale *viewport.Scale) {
	if scale == nil {
		t.set(Tooltip{})
		return
	}
	smp, idx, ok := AtPixel(t.samples, scale, t.lastPx)
	if !ok {
		t.set(Tooltip{})
		return
	}

	tip := Tooltip{
		Visible: true,
		Metric:  t.key,
		Index:   idx,
		Sample:  smp,
		X:       scale.Apply(float64(smp.Time)),
	}
	if t.opts.ValueY != nil {
		tip.Y = t.opts.ValueY(smp.Value)
	}

	spans := t.opts.Spans
	if t.opts.SpanLimit > 0 && len(spans) > t.opts.SpanLimit {
		spans = spans[:t.opts.SpanLimit]
	}
	query := timeline.RelativeTime(scale.Invert(t.lastPx))
	if hits := SpansAt(spans, query); len(hits) > 0 {
		s := spans[hits[0]]
		tip.Span = &s
	}
	tip.Text = tooltipText(t.opts.Label, tip)
	t.set(tip)
}

func (t *Tracker) set(tip Tooltip) {
	t.tooltip = tip
	if t.opts.OnUpdate != nil {
		t.opts.OnUpdate(tip)
	}
}

func tooltipText(label string, tip Tooltip) string {
	if label == "" {
		label = tip.Metric
	}
	text := fmt.Sprintf("%s\n%.2f\n%.0f ms", label, tip.Sample.Value, float64(tip.Sample.Time))
	if s := tip.Span; s != nil {
		text += fmt.Sprintf("\nLayer: %s\nOperation: %s\nDuration: %.2f ms\nStart: %.0f ms",
			s.Name, s.OpName, s.Duration(), float64(s.Start))
	}
	return text
}
