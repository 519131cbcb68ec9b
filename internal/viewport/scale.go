// Package viewport holds the single zoom/pan transform shared by every panel
// of a session, and the linear time scales it produces.
package viewport

import "fmt"

// Scale maps a time domain [D0, D1] (ms) linearly onto a pixel range
// [R0, R1]. Scales are never mutated after construction.
type Scale struct {
	D0, D1 float64
	R0, R1 float64
}

// NewScale builds a linear scale. The domain must not be empty.
func NewScale(d0, d1, r0, r1 float64) (*Scale, error) {
	if !(d1 > d0) || !finite(d0) || !finite(d1) {
		return nil, fmt.Errorf("invalid scale domain [%g, %g]", d0, d1)
	}
	if !(r1 > r0) || !finite(r0) || !finite(r1) {
		return nil, fmt.Errorf("invalid scale range [%g, %g]", r0, r1)
	}
	return &Scale{D0: d0, D1: d1, R0: r0, R1: r1}, nil
}

// Apply maps a time to a pixel position.
func (s *Scale) Apply(t float64) float64 {
	return s.R0 + (t-s.D0)*(s.R1-s.R0)/(s.D1-s.D0)
}

// Invert maps a pixel position back to a time.
func (s *Scale) Invert(px float64) float64 {
	return s.D0 + (px-s.R0)*(s.D1-s.D0)/(s.R1-s.R0)
}

// Width is the pixel extent of the range.
func (s *Scale) Width() float64 { return s.R1 - s.R0 }

// Span is the time extent of the domain.
func (s *Scale) Span() float64 { return s.D1 - s.D0 }

// Covers reports whether t lies inside the domain.
func (s *Scale) Covers(t float64) bool { return t >= s.D0 && t <= s.D1 }

func (s *Scale) String() string {
	return fmt.Sprintf("[%g, %g] -> [%g, %g]", s.D0, s.D1, s.R0, s.R1)
}
