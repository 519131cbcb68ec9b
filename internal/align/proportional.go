package align

import (
	"fmt"
	"math"

	"github.com/powerscope/powerscope/internal/parse"
	"github.com/powerscope/powerscope/internal/timeline"
)

// Anchor is the interval proportional spans are mapped onto.
type Anchor struct {
	Start, End             timeline.RelativeTime
	StartSource, EndSource timeline.AnchorSource
}

// ChooseAnchor takes the earliest start-labelled event and the earliest
// end-labelled event as the anchor. A missing start falls back to 0 and a
// missing end to the last sample time, so with no markers at all the anchor
// is the whole telemetry domain.
func ChooseAnchor(events []timeline.Event, lastSample timeline.RelativeTime) Anchor {
	a := Anchor{
		Start:       0,
		End:         lastSample,
		StartSource: timeline.AnchorDomainEdge,
		EndSource:   timeline.AnchorDomainEdge,
	}
	start, end, _ := anchorEvents(events)
	if start != nil {
		a.Start, a.StartSource = start.Time, timeline.AnchorEvent
	}
	if end != nil {
		a.End, a.EndSource = end.Time, timeline.AnchorEvent
	}
	return a
}

// anchorEvents finds the first start and end markers in time order.
// ok is true when at least one was found.
func anchorEvents(events []timeline.Event) (start, end *timeline.Event, ok bool) {
	for i := range events {
		switch events[i].Kind() {
		case timeline.EventStart:
			if start == nil {
				start = &events[i]
			}
		case timeline.EventEnd:
			if end == nil {
				end = &events[i]
			}
		}
	}
	return start, end, start != nil || end != nil
}

// Proportional linearly remaps spans from their own [spanMin, spanMax]
// interval onto [anchorStart, anchorEnd]:
//
//	p = (t - spanMin) / (spanMax - spanMin)
//	aligned = anchorStart + p*(anchorEnd - anchorStart)
//
// Degenerate intervals on either side return an *timeline.AlignmentError.
func Proportional(records []parse.TraceRecord, anchorStart, anchorEnd timeline.RelativeTime) ([]timeline.Span, error) {
	if len(records) == 0 {
		return nil, nil
	}

	spanMin, spanMax := records[0].TsMicros, records[0].EndMicros()
	for _, r := range records[1:] {
		spanMin = min(spanMin, r.TsMicros)
		spanMax = max(spanMax, r.EndMicros())
	}
	if !finite(spanMin) || !finite(spanMax) || !finite(float64(anchorStart)) || !finite(float64(anchorEnd)) {
		return nil, &timeline.AlignmentError{Reason: "non-finite interval bounds"}
	}
	if spanMax == spanMin {
		return nil, &timeline.AlignmentError{
			Reason: fmt.Sprintf("trace spans cover an empty interval at %g µs", spanMin),
		}
	}
	if anchorEnd <= anchorStart {
		return nil, &timeline.AlignmentError{
			Reason: fmt.Sprintf("anchor interval [%g, %g] ms is empty", float64(anchorStart), float64(anchorEnd)),
		}
	}

	width := float64(anchorEnd - anchorStart)
	extent := spanMax - spanMin
	place := func(us float64) timeline.RelativeTime {
		p := (us - spanMin) / extent
		return anchorStart + timeline.RelativeTime(p*width)
	}

	out := make([]timeline.Span, len(records))
	for i, r := range records {
		out[i] = timeline.Span{
			Name:     r.Name,
			OpName:   r.OpName,
			Category: r.Category,
			Start:    place(r.TsMicros),
			End:      place(r.EndMicros()),
		}
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
