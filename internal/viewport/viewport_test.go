package viewport

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(t *testing.T, opts Options) *Viewport {
	t.Helper()
	v := New(opts)
	require.NoError(t, v.SetDomain(0, 10_000, 1000))
	return v
}

func TestScaleRoundTrip(t *testing.T) {
	s, err := NewScale(250, 8250, 60, 1160)
	require.NoError(t, err)
	for _, tm := range []float64{250, 1000, 4321.5, 8250} {
		got := s.Invert(s.Apply(tm))
		assert.InDelta(t, tm, got, 1e-9)
	}

	_, err = NewScale(5, 5, 0, 100)
	assert.Error(t, err)
	_, err = NewScale(0, math.NaN(), 0, 100)
	assert.Error(t, err)
}

func TestApplyBeforeLoadIsNoop(t *testing.T) {
	v := New(Options{})
	base := &Scale{D0: 0, D1: 1, R0: 0, R1: 1}

	got, ok := v.Apply(base)
	assert.False(t, ok)
	assert.Same(t, base, got)

	_, _, ok = v.Window()
	assert.False(t, ok)

	calls := 0
	v.OnChange(func(Change) { calls++ })
	assert.False(t, v.ZoomBy(2, 500))
	assert.False(t, v.PanBy(-100))
	assert.False(t, v.Reset())
	assert.False(t, v.ZoomToWindow(1, 2))
	assert.Equal(t, 0, calls)
}

func TestZoomRoundTripThroughEffectiveScale(t *testing.T) {
	v := loaded(t, Options{})
	require.True(t, v.ZoomBy(4, 300))
	require.True(t, v.PanBy(-120))

	eff, ok := v.Effective()
	require.True(t, ok)
	for _, tm := range []float64{eff.D0, (eff.D0 + eff.D1) / 2, eff.D1} {
		px := eff.Apply(tm)
		assert.InDelta(t, tm, eff.Invert(px), 1e-9*math.Max(1, math.Abs(tm)))
	}
}

func TestZoomKeepsAnchorFixed(t *testing.T) {
	v := loaded(t, Options{})
	base, _ := v.Base()
	eff, _ := v.Effective()
	before := eff.Invert(400)

	v.ZoomBy(3, 400)
	eff, _ = v.Effective()
	assert.InDelta(t, before, eff.Invert(400), 1e-9)
	assert.InDelta(t, 3, v.Transform().K, 1e-12)
	assert.InDelta(t, base.Span()/3, eff.Span(), 1e-6)
}

func TestZoomClampedToExtent(t *testing.T) {
	v := loaded(t, Options{MinZoom: 1, MaxZoom: 50})
	v.ZoomBy(1000, 500)
	assert.Equal(t, 50.0, v.Transform().K)

	v.ZoomBy(1e-6, 500)
	assert.Equal(t, 1.0, v.Transform().K)
	assert.Equal(t, 0.0, v.Transform().X)

	lo, hi := v.ZoomExtent()
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 50.0, hi)
}

func TestPanClampedToDomain(t *testing.T) {
	v := loaded(t, Options{})
	v.ZoomBy(2, 0)

	v.PanBy(1e6)
	t0, _, _ := v.Window()
	assert.Equal(t, 0.0, t0)

	v.PanBy(-1e6)
	_, t1, _ := v.Window()
	assert.Equal(t, 10_000.0, t1)
}

func TestWindowNeverLeavesDomain(t *testing.T) {
	v := loaded(t, Options{MinZoom: 1, MaxZoom: 20})
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		switch rng.Intn(4) {
		case 0:
			v.ZoomBy(math.Exp(rng.NormFloat64()), rng.Float64()*1200-100)
		case 1:
			v.PanBy(rng.NormFloat64() * 400)
		case 2:
			v.SetTransform(Transform{K: rng.Float64() * 40, X: rng.NormFloat64() * 5000})
		case 3:
			a, b := rng.Float64()*12000-1000, rng.Float64()*12000-1000
			v.ZoomToWindow(min(a, b), max(a, b))
		}
		t0, t1, ok := v.Window()
		require.True(t, ok)
		k := v.Transform().K
		if t0 < 0 || t1 > 10_000 || t1 <= t0 {
			t.Fatalf("step %d: window [%g, %g] outside domain", i, t0, t1)
		}
		if k < 1 || k > 20 {
			t.Fatalf("step %d: zoom %g outside extent", i, k)
		}
	}
}

func TestListenersShareScaleAndRunInOrder(t *testing.T) {
	v := loaded(t, Options{})

	var order []string
	var scales []*Scale
	v.OnChange(func(c Change) {
		order = append(order, "a")
		scales = append(scales, c.Scale)
	})
	v.OnChange(func(c Change) {
		order = append(order, "b")
		scales = append(scales, c.Scale)
	})

	changed := v.ZoomBy(2, 500)
	require.True(t, changed)

	// Delivered before ZoomBy returned.
	assert.Equal(t, []string{"a", "b"}, order)
	require.Len(t, scales, 2)
	assert.Same(t, scales[0], scales[1])

	eff, _ := v.Effective()
	assert.Same(t, eff, scales[0])

	base, _ := v.Base()
	applied, ok := v.Apply(base)
	assert.True(t, ok)
	assert.Same(t, eff, applied)
}

func TestUnchangedTransformDoesNotNotify(t *testing.T) {
	v := loaded(t, Options{})
	calls := 0
	v.OnChange(func(Change) { calls++ })

	assert.False(t, v.PanBy(50)) // identity cannot pan
	assert.False(t, v.Reset())
	assert.Equal(t, 0, calls)
}

func TestUnsubscribe(t *testing.T) {
	v := loaded(t, Options{})
	calls := 0
	var unsub func()
	unsub = v.OnChange(func(Change) {
		calls++
		unsub()
	})
	other := 0
	v.OnChange(func(Change) { other++ })

	v.ZoomBy(2, 0)
	v.ZoomBy(2, 0)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestZoomToWindow(t *testing.T) {
	v := loaded(t, Options{})
	require.True(t, v.ZoomToWindow(2000, 4000))
	t0, t1, _ := v.Window()
	assert.InDelta(t, 2000, t0, 1e-6)
	assert.InDelta(t, 4000, t1, 1e-6)

	// Narrower than the zoom bound allows: centred at max zoom.
	v.ZoomToWindow(5000, 5001)
	t0, t1, _ = v.Window()
	assert.Equal(t, 20.0, v.Transform().K)
	assert.InDelta(t, 500, t1-t0, 1e-6)
	assert.InDelta(t, 5000.5, (t0+t1)/2, 1e-6)
}

func TestSetDomainResets(t *testing.T) {
	v := loaded(t, Options{})
	v.ZoomBy(5, 100)
	require.NoError(t, v.SetDomain(0, 500, 1000))
	assert.Equal(t, Identity, v.Transform())

	assert.Error(t, v.SetDomain(10, 10, 1000))

	v.ClearDomain()
	assert.False(t, v.Loaded())
}
