package viewport

import "math"

// Transform is a horizontal zoom/pan: screen = base*K + X.
type Transform struct {
	K float64 `json:"k"`
	X float64 `json:"x"`
}

// Identity is the unzoomed, unpanned transform.
var Identity = Transform{K: 1, X: 0}

// Apply maps a base pixel position to a screen pixel position.
func (t Transform) Apply(px float64) float64 { return px*t.K + t.X }

// Invert maps a screen pixel position back to a base pixel position.
func (t Transform) Invert(px float64) float64 { return (px - t.X) / t.K }

// Rescale returns base composed with t: the visible domain is the base
// inversion of the inverted range edges. The range is unchanged.
func (t Transform) Rescale(base *Scale) *Scale {
	return &Scale{
		D0: base.Invert(t.Invert(base.R0)),
		D1: base.Invert(t.Invert(base.R1)),
		R0: base.R0,
		R1: base.R1,
	}
}

// clamp bounds K to [minK, maxK] and X so the visible window stays inside
// the base range [r0, r1]: X ∈ [r1(1-K), r0(1-K)].
func (t Transform) clamp(minK, maxK, r0, r1 float64) Transform {
	k := math.Min(math.Max(t.K, minK), maxK)
	lo, hi := r1*(1-k), r0*(1-k)
	x := math.Min(math.Max(t.X, lo), hi)
	return Transform{K: k, X: x}
}

func (t Transform) valid() bool {
	return finite(t.K) && finite(t.X) && t.K > 0
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
