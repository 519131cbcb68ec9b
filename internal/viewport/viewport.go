package viewport

import (
	"errors"
	"fmt"
)

const (
	DefaultMinZoom = 1
	DefaultMaxZoom = 20
)

// ErrNoDomain is returned by operations that need a loaded time domain.
var ErrNoDomain = errors.New("viewport has no time domain")

// Options bounds the zoom factor.
type Options struct {
	MinZoom float64
	MaxZoom float64
}

// Change is delivered to listeners after every transform update. Scale is
// the one effective scale for this transform; every listener receives the
// same pointer.
type Change struct {
	Transform Transform
	Scale     *Scale
	Version   uint64
}

// Listener is called synchronously on every change.
type Listener func(Change)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Viewport owns the shared transform. It is not safe for concurrent use:
// one goroutine (the session loop) issues every mutation, and listeners run
// on that goroutine before the mutating call returns.
type Viewport struct {
	minZoom, maxZoom float64

	base      *Scale
	transform Transform
	effective *Scale
	version   uint64

	listeners []listenerEntry
	nextID    uint64
}

// New creates a viewport with no domain. Zero options use the defaults.
func New(opts Options) *Viewport {
	minZoom, maxZoom := opts.MinZoom, opts.MaxZoom
	if minZoom <= 0 {
		minZoom = DefaultMinZoom
	}
	if maxZoom <= 0 {
		maxZoom = DefaultMaxZoom
	}
	if maxZoom < minZoom {
		maxZoom = minZoom
	}
	return &Viewport{
		minZoom:   minZoom,
		maxZoom:   maxZoom,
		transform: Identity,
	}
}

// ZoomExtent returns the configured zoom bounds.
func (v *Viewport) ZoomExtent() (minZoom, maxZoom float64) { return v.minZoom, v.maxZoom }

// SetDomain installs the base time scale [start, end] -> [0, widthPx] and
// resets the transform.
func (v *Viewport) SetDomain(start, end, widthPx float64) error {
	base, err := NewScale(start, end, 0, widthPx)
	if err != nil {
		return fmt.Errorf("set viewport domain: %w", err)
	}
	v.base = base
	v.commit(Identity.clamp(v.minZoom, v.maxZoom, base.R0, base.R1))
	return nil
}

// ClearDomain drops the base scale; the viewport behaves as unloaded.
func (v *Viewport) ClearDomain() {
	v.base = nil
	v.effective = nil
	v.transform = Identity
	v.version++
}

// Loaded reports whether a domain is set.
func (v *Viewport) Loaded() bool { return v.base != nil }

// Transform returns the current transform.
func (v *Viewport) Transform() Transform { return v.transform }

// Version increments on every change.
func (v *Viewport) Version() uint64 { return v.version }

// Base returns the untransformed time scale.
func (v *Viewport) Base() (*Scale, bool) { return v.base, v.base != nil }

// Effective returns the current effective scale.
func (v *Viewport) Effective() (*Scale, bool) { return v.effective, v.effective != nil }

// Apply rescales base by the current transform without mutating anything.
// For the viewport's own base it returns the cached effective scale, so all
// callers share one instance per transform. Before a domain is loaded it
// returns base unchanged and false.
func (v *Viewport) Apply(base *Scale) (*Scale, bool) {
	if v.base == nil || base == nil {
		return base, false
	}
	if base == v.base {
		return v.effective, true
	}
	return v.transform.Rescale(base), true
}

// Window returns the visible time interval.
func (v *Viewport) Window() (t0, t1 float64, ok bool) {
	if v.effective == nil {
		return 0, 0, false
	}
	return v.effective.D0, v.effective.D1, true
}

// ZoomBy multiplies the zoom factor, keeping the time under anchorPx fixed.
func (v *Viewport) ZoomBy(factor, anchorPx float64) bool {
	if !finite(factor) || factor <= 0 {
		return false
	}
	return v.ZoomTo(v.transform.K*factor, anchorPx)
}

// ZoomTo sets the zoom factor, keeping the time under anchorPx fixed.
func (v *Viewport) ZoomTo(k, anchorPx float64) bool {
	if v.base == nil || !finite(k) || !finite(anchorPx) {
		return false
	}
	k = min(max(k, v.minZoom), v.maxZoom)
	t := v.transform
	world := t.Invert(anchorPx)
	return v.update(Transform{K: k, X: anchorPx - world*k})
}

// PanBy shifts the view by dx screen pixels.
func (v *Viewport) PanBy(dx float64) bool {
	if v.base == nil || !finite(dx) {
		return false
	}
	t := v.transform
	return v.update(Transform{K: t.K, X: t.X + dx})
}

// SetTransform replaces the transform, clamped.
func (v *Viewport) SetTransform(t Transform) bool {
	if v.base == nil || !t.valid() {
		return false
	}
	return v.update(t)
}

// Reset returns to the identity transform.
func (v *Viewport) Reset() bool {
	if v.base == nil {
		return false
	}
	return v.update(Identity)
}

// ZoomToWindow frames [t0, t1] as closely as the zoom bounds allow.
func (v *Viewport) ZoomToWindow(t0, t1 float64) bool {
	if v.base == nil || !finite(t0) || !finite(t1) {
		return false
	}
	t0 = max(t0, v.base.D0)
	t1 = min(t1, v.base.D1)
	if t1 <= t0 {
		return false
	}
	p0, p1 := v.base.Apply(t0), v.base.Apply(t1)
	k := v.base.Width() / (p1 - p0)
	k = min(max(k, v.minZoom), v.maxZoom)
	// Centre the requested window when the zoom bound prevents an exact fit.
	mid := (p0 + p1) / 2
	center := (v.base.R0 + v.base.R1) / 2
	return v.update(Transform{K: k, X: center - mid*k})
}

// OnChange registers a listener and returns its unsubscribe function.
// Listeners run in registration order.
func (v *Viewport) OnChange(fn Listener) func() {
	id := v.nextID
	v.nextID++
	v.listeners = append(v.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range v.listeners {
			if l.id == id {
				v.listeners = append(v.listeners[:i:i], v.listeners[i+1:]...)
				return
			}
		}
	}
}

// update clamps t and commits it when it differs from the current one.
func (v *Viewport) update(t Transform) bool {
	t = t.clamp(v.minZoom, v.maxZoom, v.base.R0, v.base.R1)
	if t == v.transform && v.effective != nil {
		return false
	}
	v.commit(t)
	return true
}

func (v *Viewport) commit(t Transform) {
	v.transform = t
	eff := t.Rescale(v.base)
	// Absorb rounding so the window never leaves the base domain.
	eff.D0 = max(eff.D0, v.base.D0)
	eff.D1 = min(eff.D1, v.base.D1)
	v.effective = eff
	v.version++

	change := Change{Transform: t, Scale: v.effective, Version: v.version}
	// Snapshot so listeners may unsubscribe while being notified.
	listeners := append([]listenerEntry(nil), v.listeners...)
	for _, l := range listeners {
		l.fn(change)
	}
}
