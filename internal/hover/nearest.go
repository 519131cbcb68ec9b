// Package hover answers "which sample is under the pointer" for panels that
// share a zoomed time axis, and tracks per-panel hover state.
package hover

import (
	"math"
	"sort"

	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/powerscope/powerscope/internal/viewport"
)

// Nearest returns the sample whose time is closest to t, with its index.
// Samples must be sorted by time. Exact ties between the two straddling
// candidates go to the earlier one, and among samples sharing a time the
// first is returned. ok is false for an empty slice or a NaN query.
func Nearest(samples []timeline.Sample, t timeline.RelativeTime) (timeline.Sample, int, bool) {
	n := len(samples)
	if n == 0 || math.IsNaN(float64(t)) {
		return timeline.Sample{}, -1, false
	}

	// Insertion point: first sample at or after t.
	i := sort.Search(n, func(k int) bool { return samples[k].Time >= t })

	var pick int
	switch {
	case i == 0:
		pick = 0
	case i == n:
		pick = n - 1
	default:
		d0, d1 := samples[i-1], samples[i]
		if t-d0.Time <= d1.Time-t {
			pick = i - 1
		} else {
			pick = i
		}
	}

	// i is already the leftmost of its time; i-1 or n-1 may not be.
	if pick != i {
		at := samples[pick].Time
		pick = sort.Search(pick+1, func(k int) bool { return samples[k].Time >= at })
	}
	return samples[pick], pick, true
}

// AtPixel inverts a screen x position through the effective scale and
// returns the nearest sample in time.
func AtPixel(samples []timeline.Sample, scale *viewport.Scale, px float64) (timeline.Sample, int, bool) {
	if scale == nil {
		return timeline.Sample{}, -1, false
	}
	return Nearest(samples, timeline.RelativeTime(scale.Invert(px)))
}

// SpansAt returns the indexes of spans covering t, in input order.
func SpansAt(spans []timeline.Span, t timeline.RelativeTime) []int {
	var out []int
	for i, s := range spans {
		if s.Contains(t) {
			out = append(out, i)
		}
	}
	return out
}
