package panel

import "github.com/powerscope/powerscope/internal/viewport"

// Frame is one panel's drawable state for one viewport state. Coordinates
// are pixels inside the plot area: x in [0, Width], y in [0, Height] with y
// growing downward. Equal inputs always give equal frames.
type Frame struct {
	Metric string `json:"metric"`
	Label  string `json:"label"`
	Unit   string `json:"unit,omitempty"`
	Color  string `json:"color"`

	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	Loaded    bool               `json:"loaded"`
	Empty     bool               `json:"empty"`
	Version   uint64             `json:"version"`
	Transform viewport.Transform `json:"transform"`
	Window    [2]float64         `json:"window"`
	Domain    [2]float64         `json:"value_domain"`

	Points     []Point       `json:"points"`
	Events     []EventMarker `json:"events,omitempty"`
	Spans      []SpanMarker  `json:"spans,omitempty"`
	ValueTicks []Tick        `json:"value_ticks"`
	TimeTicks  []Tick        `json:"time_ticks"`

	// SpanOverlay is false when trace alignment failed or no trace exists.
	SpanOverlay bool `json:"span_overlay"`
	Approximate bool `json:"approximate,omitempty"`
}

// Point is one visible sample.
type Point struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EventMarker is a vertical marker line.
type EventMarker struct {
	T     float64 `json:"t"`
	X     float64 `json:"x"`
	Label string  `json:"label"`
	Kind  string  `json:"kind"`
	Color string  `json:"color"`
}

// SpanMarker is a horizontal span bar, clipped to the plot area.
type SpanMarker struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	OpName string  `json:"op_name,omitempty"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	X0     float64 `json:"x0"`
	X1     float64 `json:"x1"`
	Y      float64 `json:"y"`
	Color  string  `json:"color"`
}

// Tick is an axis tick at a pixel position.
type Tick struct {
	Value float64 `json:"value"`
	Pos   float64 `json:"pos"`
	Label string  `json:"label"`
}

// VisiblePoints returns only points inside the window, dropping the
// neighbours kept for line continuity.
func (f Frame) VisiblePoints() []Point {
	var out []Point
	for _, p := range f.Points {
		if p.T >= f.Window[0] && p.T <= f.Window[1] {
			out = append(out, p)
		}
	}
	return out
}
