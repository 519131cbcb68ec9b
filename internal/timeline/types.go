// Package timeline holds the aligned data model shared by every other
// package: samples, events and spans measured in milliseconds from a single
// run origin, plus the record of how that alignment was produced.
package timeline

import (
	"sort"
	"strings"
	"time"
)

// RelativeTime is an offset in milliseconds from the run's origin.
type RelativeTime float64

// Ms returns the offset as a plain float64.
func (t RelativeTime) Ms() float64 { return float64(t) }

// Sample is one reading of one metric.
type Sample struct {
	Time  RelativeTime `json:"t"`
	Value float64      `json:"v"`
}

// Event is a point marker on the timeline, e.g. a function start or end.
type Event struct {
	Time  RelativeTime `json:"t"`
	Label string       `json:"label"`
}

// EventKind classifies an event label for styling and anchor selection.
type EventKind int

const (
	EventOther EventKind = iota
	EventStart
	EventEnd
)

// Kind reports whether the label names a start or end marker.
// Matching is case-insensitive. A trailing "start" or "end" decides first,
// so "startup_end" is an end marker; otherwise any occurrence counts and
// "start" wins when a label contains both words.
func (e Event) Kind() EventKind {
	l := strings.ToLower(strings.TrimSpace(e.Label))
	switch {
	case strings.HasSuffix(l, "start"):
		return EventStart
	case strings.HasSuffix(l, "end"):
		return EventEnd
	case strings.Contains(l, "start"):
		return EventStart
	case strings.Contains(l, "end"):
		return EventEnd
	}
	return EventOther
}

// Span is one traced unit of execution on the shared timeline.
type Span struct {
	Name     string       `json:"name"`
	OpName   string       `json:"op_name,omitempty"`
	Category string       `json:"category,omitempty"`
	Start    RelativeTime `json:"start"`
	End      RelativeTime `json:"end"`
}

// Duration returns the span length in milliseconds.
func (s Span) Duration() float64 { return float64(s.End - s.Start) }

// Contains reports whether t falls inside the span (inclusive).
func (s Span) Contains(t RelativeTime) bool { return t >= s.Start && t <= s.End }

// Series is the sample list for one metric.
type Series struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Unit    string   `json:"unit,omitempty"`
	Samples []Sample `json:"samples"`
}

// Extent returns the minimum and maximum sample values.
// ok is false for an empty series.
func (s Series) Extent() (lo, hi float64, ok bool) {
	if len(s.Samples) == 0 {
		return 0, 0, false
	}
	lo, hi = s.Samples[0].Value, s.Samples[0].Value
	for _, smp := range s.Samples[1:] {
		lo = min(lo, smp.Value)
		hi = max(hi, smp.Value)
	}
	return lo, hi, true
}

// SortSamples orders samples by time, keeping the input order of equal times.
func SortSamples(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })
}

// Run is one fully aligned program run. It is immutable once built.
type Run struct {
	Origin    time.Time `json:"origin"`
	Metrics   []Series  `json:"metrics"`
	Events    []Event   `json:"events"`
	Spans     []Span    `json:"spans"`
	Alignment Alignment `json:"alignment"`
	Sources   []string  `json:"sources"`
}

// Metric returns the series with the given key.
func (r *Run) Metric(key string) (Series, bool) {
	for _, s := range r.Metrics {
		if s.Key == key {
			return s, true
		}
	}
	return Series{}, false
}

// MetricKeys lists metric keys in display order.
func (r *Run) MetricKeys() []string {
	keys := make([]string, len(r.Metrics))
	for i, s := range r.Metrics {
		keys[i] = s.Key
	}
	return keys
}

// TraceOverlay reports whether spans are usable on the shared axis.
func (r *Run) TraceOverlay() bool {
	return r.Alignment.Err == nil && len(r.Spans) > 0
}

// DomainEnd is the right edge of the shared time domain [0, DomainEnd].
// It covers every sample, every event and every aligned span end. A run with
// nothing past the origin gets a unit domain so scales never collapse.
func (r *Run) DomainEnd() RelativeTime {
	var end RelativeTime
	for _, s := range r.Metrics {
		if n := len(s.Samples); n > 0 {
			end = max(end, s.Samples[n-1].Time)
		}
	}
	for _, e := range r.Events {
		end = max(end, e.Time)
	}
	if r.TraceOverlay() {
		for _, s := range r.Spans {
			end = max(end, s.End)
		}
	}
	if end <= 0 {
		return 1
	}
	return end
}

// SampleCount totals the samples across all metrics.
func (r *Run) SampleCount() int {
	n := 0
	for _, s := range r.Metrics {
		n += len(s.Samples)
	}
	return n
}
