// Package parse turns raw run artifacts into typed records with normalized
// units. Timestamps stay wall-clock here; putting them on a shared axis is the
// reconciler's job.
package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a parsed wall-clock instant. Dated is false for time-of-day
// stamps such as "10:00:01.250", which only become absolute once projected
// onto a reference date.
type Timestamp struct {
	Time  time.Time
	Dated bool

	// Days counts midnights crossed before a time-of-day stamp, in file
	// order. Always 0 for dated stamps.
	Days int
}

// midnightGap is how far a time-of-day stamp must fall behind the one
// before it to be read as the next day rather than out-of-order logging.
const midnightGap = 12 * time.Hour

// dayRoller numbers the days of time-of-day stamps read in file order.
type dayRoller struct {
	prev time.Duration
	seen bool
	days int
}

func (d *dayRoller) roll(ts Timestamp) Timestamp {
	if ts.Dated {
		return ts
	}
	c := ts.Time
	tod := time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute +
		time.Duration(c.Second())*time.Second + time.Duration(c.Nanosecond())
	if d.seen && d.prev-tod > midnightGap {
		d.days++
	}
	d.prev, d.seen = tod, true
	ts.Days = d.days
	return ts
}

// Fractional seconds (with '.' or ',') are accepted after the seconds field
// even though the layouts do not spell them out.
var datedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
}

var clockLayouts = []string{
	"15:04:05",
}

// epochMsThreshold separates unix seconds from unix milliseconds in numeric
// timestamps. 1e11 seconds is roughly the year 5138.
const epochMsThreshold = 1e11

// ParseTimestamp accepts ISO-8601 style dates, common log layouts, bare
// time-of-day stamps and numeric unix seconds or milliseconds.
// Zone-less inputs are read as UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, fmt.Errorf("empty timestamp")
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Timestamp{}, fmt.Errorf("invalid numeric timestamp %q", s)
		}
		if math.Abs(f) >= epochMsThreshold {
			return Timestamp{Time: FromMillis(f), Dated: true}, nil
		}
		return Timestamp{Time: FromMillis(f * 1000), Dated: true}, nil
	}

	for _, layout := range datedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t, Dated: true}, nil
		}
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t, Dated: false}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// On projects a time-of-day stamp onto the calendar date of ref, Days
// later. Dated stamps are returned unchanged.
func (ts Timestamp) On(ref time.Time) time.Time {
	if ts.Dated {
		return ts.Time
	}
	if ref.IsZero() {
		return ts.Time.AddDate(0, 0, ts.Days)
	}
	y, m, d := ref.Date()
	c := ts.Time
	return time.Date(y, m, d+ts.Days, c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), ref.Location())
}

// ToMillis converts an instant to fractional unix milliseconds without going
// through UnixNano, which overflows for the year-zero times produced by
// time-of-day layouts.
func ToMillis(t time.Time) float64 {
	return float64(t.UnixMilli()) + float64(t.Nanosecond()%int(time.Millisecond))/1e6
}

// FromMillis is the inverse of ToMillis.
func FromMillis(ms float64) time.Time {
	whole := math.Floor(ms)
	frac := ms - whole
	return time.UnixMilli(int64(whole)).Add(time.Duration(math.Round(frac * 1e6))).UTC()
}

// splitLine splits "<timestamp>: <rest>" on the first ": ". Time-of-day
// stamps contain bare colons, never colon-space, so the split is safe.
func splitLine(line string) (ts, rest string, ok bool) {
	ts, rest, ok = strings.Cut(line, ": ")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(ts), strings.TrimSpace(rest), true
}
