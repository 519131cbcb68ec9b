package viz

import (
	"github.com/powerscope/powerscope/internal/panel"
	"github.com/powerscope/powerscope/internal/timeline"
)

// StatsFromRun summarizes a loaded run for RunSummary.
func StatsFromRun(run *timeline.Run) RunStats {
	a := run.Alignment
	stats := RunStats{
		EventCount:     len(run.Events),
		DomainMs:       float64(run.DomainEnd()),
		Mode:           string(a.Mode),
		Confidence:     string(a.Confidence),
		OriginSource:   string(a.OriginSource),
		AlignmentError: a.ErrorText(),
		Notes:          a.Notes,
	}
	if run.TraceOverlay() {
		stats.SpanCount = len(run.Spans)
	}
	for _, s := range run.Metrics {
		m := MetricStats{Key: s.Key, Label: s.Label, Samples: len(s.Samples)}
		m.Min, m.Max, _ = s.Extent()
		stats.Metrics = append(stats.Metrics, m)
	}
	return stats
}

// StripFromFrame converts a panel frame into a text strip over the same
// window and value domain.
func StripFromFrame(f panel.Frame) Strip {
	s := Strip{
		Label:  f.Label,
		Window: f.Window,
		Lo:     f.Domain[0],
		Hi:     f.Domain[1],
		Empty:  f.Empty,
	}
	for _, p := range f.VisiblePoints() {
		s.Points = append(s.Points, Point{T: p.T, V: p.V})
	}
	for _, e := range f.Events {
		s.Markers = append(s.Markers, Marker{T: e.T, Label: e.Label, Kind: e.Kind})
	}
	return s
}

// RowsFromSpans converts spans for Waterfall.
func RowsFromSpans(spans []timeline.Span) []SpanRow {
	rows := make([]SpanRow, len(spans))
	for i, s := range spans {
		rows[i] = SpanRow{Name: s.Name, OpName: s.OpName, StartMs: float64(s.Start), EndMs: float64(s.End)}
	}
	return rows
}
