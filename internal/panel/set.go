package panel

import (
	"errors"

	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/powerscope/powerscope/internal/viewport"
)

// Set is every panel of one run, attached to one shared viewport. All
// panels redraw from the same change notification so they always agree on
// the visible window.
type Set struct {
	vp       *viewport.Viewport
	panels   []*Panel
	byKey    map[string]*Panel
	warnings []error

	frames    []Frame
	listeners []func([]Frame)
	unsub     func()
}

// NewSet builds one panel per metric of run in key order. Empty metrics are
// still built; their errors are kept as warnings rather than failing.
func NewSet(run *timeline.Run, vp *viewport.Viewport, opts Options) *Set {
	s := &Set{vp: vp, byKey: make(map[string]*Panel)}

	overlays := Overlays{
		Events:      run.Events,
		Spans:       run.Spans,
		SpanOverlay: run.TraceOverlay(),
		Approximate: run.Alignment.Approximate(),
	}
	for i, series := range run.Metrics {
		po := opts
		po.Color = MetricColor(series.Key, i)
		po.ZeroBaseline = opts.ZeroBaseline || series.Key == "power"
		p, err := New(series, overlays, po)
		if err != nil {
			s.warnings = append(s.warnings, err)
		}
		s.panels = append(s.panels, p)
		s.byKey[series.Key] = p
	}

	s.redraw()
	s.unsub = vp.OnChange(func(viewport.Change) { s.redraw() })
	return s
}

func (s *Set) redraw() {
	frames := make([]Frame, len(s.panels))
	for i, p := range s.panels {
		frames[i] = p.Redraw(s.vp)
	}
	s.frames = frames
	for _, fn := range s.listeners {
		fn(frames)
	}
}

// Panels returns the panels in display order.
func (s *Set) Panels() []*Panel { return s.panels }

// Panel returns the panel for a metric key.
func (s *Set) Panel(key string) (*Panel, bool) {
	p, ok := s.byKey[key]
	return p, ok
}

// Frames returns the frames for the current viewport state.
func (s *Set) Frames() []Frame { return s.frames }

// Warnings joins the per-panel construction errors, or returns nil.
func (s *Set) Warnings() error { return errors.Join(s.warnings...) }

// OnFrames registers fn to receive every redraw.
func (s *Set) OnFrames(fn func([]Frame)) {
	s.listeners = append(s.listeners, fn)
}

// Close detaches the set from the viewport.
func (s *Set) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}
