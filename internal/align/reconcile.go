package align

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/powerscope/powerscope/internal/parse"
	"github.com/powerscope/powerscope/internal/timeline"
)

// Input is every parsed source of one run. Reconcile only runs once all of
// them have arrived.
type Input struct {
	Telemetry []parse.TelemetryRecord
	Combined  *parse.CombinedTable
	Events    []parse.EventRecord
	Trace     *parse.TraceData
	Meta      *parse.RunMeta
	Sources   []string
}

// MetricPower is the key of the telemetry power series.
const MetricPower = "power"

var metricLabels = map[string]struct{ label, unit string }{
	MetricPower:     {"Power (W)", "W"},
	"cpu":           {"CPU (%)", "%"},
	"memory":        {"Memory (%)", "%"},
	"energy_joules": {"Energy (J)", "J"},
	"temperature":   {"Temperature (°C)", "°C"},
}

// Reconcile builds the aligned run. It fails only when no source carries a
// timestamp; trace alignment problems are recorded in Run.Alignment and
// leave telemetry and events intact.
func Reconcile(in *Input) (*timeline.Run, error) {
	clock, err := NewClock(in)
	if err != nil {
		return nil, err
	}

	run := &timeline.Run{
		Origin:  clock.Origin(),
		Metrics: buildMetrics(in, clock),
		Events:  buildEvents(in.Events, clock),
		Sources: in.Sources,
	}
	run.Alignment = timeline.Alignment{
		Mode:         timeline.ModeNone,
		Origin:       clock.Origin(),
		OriginSource: clock.OriginSource(),
		Notes:        clock.Notes(),
	}

	if in.Trace == nil {
		return run, nil
	}
	if len(in.Trace.Records) == 0 {
		run.Alignment.Notes = append(run.Alignment.Notes, "trace source has no execution spans")
		return run, nil
	}

	if clock.HasRunStart() {
		run.Spans = absoluteSpans(in.Trace.Records, clock)
		run.Alignment.Mode = timeline.ModeAbsolute
		run.Alignment.Confidence = timeline.ConfidenceExact
		if _, _, ok := anchorEvents(run.Events); ok {
			run.Alignment.Notes = append(run.Alignment.Notes,
				"run start reference present: spans translated absolutely, event anchors ignored")
		}
		return run, nil
	}

	anchor := ChooseAnchor(run.Events, lastSampleTime(run.Metrics))
	run.Alignment.AnchorStart = anchor.Start
	run.Alignment.AnchorEnd = anchor.End
	run.Alignment.AnchorStartSource = anchor.StartSource
	run.Alignment.AnchorEndSource = anchor.EndSource

	spans, err := Proportional(in.Trace.Records, anchor.Start, anchor.End)
	if err != nil {
		run.Alignment.Err = err
		run.Alignment.Notes = append(run.Alignment.Notes, "trace overlay disabled")
		return run, nil
	}
	run.Spans = spans
	run.Alignment.Mode = timeline.ModeProportional
	run.Alignment.Confidence = timeline.ConfidenceApproximate
	run.Alignment.Notes = append(run.Alignment.Notes,
		fmt.Sprintf("no run start reference: spans rescaled onto [%.0f, %.0f] ms, placement is approximate",
			float64(anchor.Start), float64(anchor.End)))
	return run, nil
}

func buildMetrics(in *Input, clock *Clock) []timeline.Series {
	var out []timeline.Series

	if len(in.Telemetry) > 0 {
		s := newSeries(MetricPower)
		s.Samples = make([]timeline.Sample, len(in.Telemetry))
		for i, rec := range in.Telemetry {
			s.Samples[i] = timeline.Sample{Time: clock.Wall(rec.At), Value: rec.Watts}
		}
		timeline.SortSamples(s.Samples)
		out = append(out, s)
	}

	if in.Combined != nil {
		for col, name := range in.Combined.Columns {
			s := newSeries(name)
			for _, row := range in.Combined.Rows {
				v := row.Values[col]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				s.Samples = append(s.Samples, timeline.Sample{Time: clock.Wall(row.At), Value: v})
			}
			timeline.SortSamples(s.Samples)
			out = append(out, s)
		}
	}
	return out
}

func newSeries(key string) timeline.Series {
	s := timeline.Series{Key: key, Label: key}
	if l, ok := metricLabels[key]; ok {
		s.Label, s.Unit = l.label, l.unit
	}
	return s
}

func buildEvents(records []parse.EventRecord, clock *Clock) []timeline.Event {
	if len(records) == 0 {
		return nil
	}
	out := make([]timeline.Event, len(records))
	for i, rec := range records {
		out[i] = timeline.Event{Time: clock.Wall(rec.At), Label: rec.Label}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func absoluteSpans(records []parse.TraceRecord, clock *Clock) []timeline.Span {
	out := make([]timeline.Span, len(records))
	for i, r := range records {
		out[i] = timeline.Span{
			Name:     r.Name,
			OpName:   r.OpName,
			Category: r.Category,
			Start:    clock.TraceTick(r.TsMicros),
			End:      clock.TraceTick(r.EndMicros()),
		}
	}
	return out
}

func lastSampleTime(metrics []timeline.Series) timeline.RelativeTime {
	var last timeline.RelativeTime
	for _, s := range metrics {
		if n := len(s.Samples); n > 0 {
			last = max(last, s.Samples[n-1].Time)
		}
	}
	return last
}

func (in *Input) dateReference() time.Time {
	if in.Meta != nil && in.Meta.HasStartTime && in.Meta.StartTime.Dated {
		return in.Meta.StartTime.Time
	}
	for _, r := range in.Telemetry {
		if r.At.Dated {
			return r.At.Time
		}
	}
	if in.Combined != nil {
		for _, r := range in.Combined.Rows {
			if r.At.Dated {
				return r.At.Time
			}
		}
	}
	for _, e := range in.Events {
		if e.At.Dated {
			return e.At.Time
		}
	}
	return time.Time{}
}

// firstSample returns the earliest telemetry or combined-table timestamp.
func (in *Input) firstSample() *parse.Timestamp {
	ref := in.dateReference()
	var best *parse.Timestamp
	consider := func(ts parse.Timestamp) {
		if best == nil || ts.On(ref).Before(best.On(ref)) {
			t := ts
			best = &t
		}
	}
	for _, r := range in.Telemetry {
		consider(r.At)
	}
	if in.Combined != nil {
		for _, r := range in.Combined.Rows {
			consider(r.At)
		}
	}
	return best
}
