// Package align reconciles the clocks of a run's sources onto one shared
// millisecond axis and places trace spans on it.
package align

import (
	"errors"
	"time"

	"github.com/powerscope/powerscope/internal/parse"
	"github.com/powerscope/powerscope/internal/timeline"
)

// ErrNoOrigin means no source carried a usable timestamp.
var ErrNoOrigin = errors.New("no timestamped source to take a time origin from")

// Clock converts raw source timestamps to RelativeTime. It is chosen once
// per run and shared by every source.
type Clock struct {
	origin   time.Time
	originMs float64
	source   timeline.OriginSource

	// dateRef supplies the calendar date for time-of-day stamps.
	dateRef time.Time

	// runStartMs is the absolute-mode reference for trace ticks.
	runStartMs  float64
	hasRunStart bool

	notes []string
}

// Origin is the instant every RelativeTime is measured from.
func (c *Clock) Origin() time.Time { return c.origin }

// OriginSource says which source the origin came from.
func (c *Clock) OriginSource() timeline.OriginSource { return c.source }

// Notes describes clock choices worth surfacing in the alignment report.
func (c *Clock) Notes() []string { return c.notes }

// HasRunStart reports whether trace ticks can be translated absolutely.
func (c *Clock) HasRunStart() bool { return c.hasRunStart }

// Wall converts a wall-clock stamp: raw - origin, in milliseconds.
func (c *Clock) Wall(ts parse.Timestamp) timeline.RelativeTime {
	return timeline.RelativeTime(parse.ToMillis(ts.On(c.dateRef)) - c.originMs)
}

// TraceTick converts a trace tick in microseconds in absolute mode:
// (runStart + us/1000) - origin.
func (c *Clock) TraceTick(us float64) timeline.RelativeTime {
	return timeline.RelativeTime(c.runStartMs + us/1000 - c.originMs)
}

// NewClock picks the run origin in priority order: the recorded run start,
// the earliest telemetry sample, the earliest event, and for epoch-based
// traces the earliest span. Time-of-day stamps are dated from the first
// dated stamp seen across all sources.
func NewClock(in *Input) (*Clock, error) {
	c := &Clock{dateRef: in.dateReference()}

	switch {
	case in.Trace != nil && in.Trace.Epoch:
		// Epoch ticks are already absolute; the reference is the unix epoch
		// whatever the run metadata says.
		c.runStartMs = 0
		c.hasRunStart = true
		if in.Meta != nil && in.Meta.HasStartTime {
			c.notes = append(c.notes, "trace ticks are unix times: run start used as origin only")
		}
	case in.Meta != nil && in.Meta.HasStartTime:
		c.runStartMs = parse.ToMillis(in.Meta.StartTime.On(c.dateRef))
		c.hasRunStart = true
	}

	switch {
	case in.Meta != nil && in.Meta.HasStartTime:
		c.setOrigin(in.Meta.StartTime, timeline.OriginRunStart)
	case in.firstSample() != nil:
		c.setOrigin(*in.firstSample(), timeline.OriginFirstSample)
	case len(in.Events) > 0:
		c.setOrigin(earliest(in.Events, c.dateRef), timeline.OriginFirstEvent)
	case in.Trace != nil && in.Trace.Epoch && len(in.Trace.Records) > 0:
		minTs := in.Trace.Records[0].TsMicros
		for _, r := range in.Trace.Records[1:] {
			minTs = min(minTs, r.TsMicros)
		}
		c.originMs = minTs / 1000
		c.origin = parse.FromMillis(c.originMs)
		c.source = timeline.OriginEpoch
	default:
		return nil, ErrNoOrigin
	}
	return c, nil
}

func (c *Clock) setOrigin(ts parse.Timestamp, src timeline.OriginSource) {
	c.origin = ts.On(c.dateRef)
	c.originMs = parse.ToMillis(c.origin)
	c.source = src
}

func earliest(events []parse.EventRecord, ref time.Time) parse.Timestamp {
	best := events[0].At
	for _, e := range events[1:] {
		if e.At.On(ref).Before(best.On(ref)) {
			best = e.At
		}
	}
	return best
}
