package viz

// SpanRow is one bar of the span waterfall.
type SpanRow struct {
	Name    string
	OpName  string
	StartMs float64
	EndMs   float64
}

// Point is one sample on a text strip.
type Point struct {
	T float64
	V float64
}

// Marker is an event line on a text strip.
type Marker struct {
	T     float64
	Label string
	Kind  string // "start", "end", or "other"
}

// Strip describes one metric panel for text rendering. Window is the
// visible time range in ms and [Lo, Hi] the fixed value domain.
type Strip struct {
	Label   string
	Window  [2]float64
	Lo      float64
	Hi      float64
	Points  []Point
	Markers []Marker
	Empty   bool
}

// MetricStats describes one metric for the run summary.
type MetricStats struct {
	Key     string
	Label   string
	Samples int
	Min     float64
	Max     float64
}

// RunStats describes a loaded run for the summary view.
type RunStats struct {
	Metrics        []MetricStats
	EventCount     int
	SpanCount      int
	DomainMs       float64
	Mode           string
	Confidence     string
	OriginSource   string
	AlignmentError string
	Notes          []string
}
