package align

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/powerscope/powerscope/internal/parse"
	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTS(t *testing.T, s string) parse.Timestamp {
	t.Helper()
	ts, err := parse.ParseTimestamp(s)
	require.NoError(t, err)
	return ts
}

func TestReconcileTelemetryScenario(t *testing.T) {
	recs, err := parse.ReadTelemetry(strings.NewReader("10:00:00: 500000\n10:00:01: 1500000\n"))
	require.NoError(t, err)

	run, err := Reconcile(&Input{Telemetry: recs})
	require.NoError(t, err)
	require.Len(t, run.Metrics, 1)

	power := run.Metrics[0]
	assert.Equal(t, MetricPower, power.Key)
	assert.Equal(t, []timeline.Sample{{Time: 0, Value: 0.5}, {Time: 1000, Value: 1.5}}, power.Samples)
	assert.Equal(t, timeline.OriginFirstSample, run.Alignment.OriginSource)
	assert.Equal(t, timeline.ModeNone, run.Alignment.Mode)
}

func TestReconcileAbsoluteScenario(t *testing.T) {
	in := &Input{
		Telemetry: []parse.TelemetryRecord{
			{At: mustTS(t, "10:00:00"), Watts: 1},
			{At: mustTS(t, "10:00:05"), Watts: 2},
		},
		Meta:  &parse.RunMeta{StartTime: mustTS(t, "10:00:00.000"), HasStartTime: true},
		Trace: &parse.TraceData{Records: []parse.TraceRecord{{Name: "conv1", OpName: "Conv", TsMicros: 2_000_000, DurMicros: 500_000}}},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)

	require.Len(t, run.Spans, 1)
	assert.Equal(t, timeline.RelativeTime(2000), run.Spans[0].Start)
	assert.Equal(t, timeline.RelativeTime(2500), run.Spans[0].End)
	assert.Equal(t, timeline.ModeAbsolute, run.Alignment.Mode)
	assert.Equal(t, timeline.ConfidenceExact, run.Alignment.Confidence)
	assert.Equal(t, timeline.OriginRunStart, run.Alignment.OriginSource)
	assert.True(t, run.TraceOverlay())
}

func TestReconcileOriginPrefersRunStart(t *testing.T) {
	in := &Input{
		Telemetry: []parse.TelemetryRecord{{At: mustTS(t, "2024-03-01 10:00:02"), Watts: 1}},
		Meta:      &parse.RunMeta{StartTime: mustTS(t, "2024-03-01 10:00:00"), HasStartTime: true},
		Events:    []parse.EventRecord{{At: mustTS(t, "2024-03-01 10:00:03"), Label: "function_start"}},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, timeline.RelativeTime(2000), run.Metrics[0].Samples[0].Time)
	assert.Equal(t, timeline.RelativeTime(3000), run.Events[0].Time)
}

func TestReconcileProjectsClockOnlyStamps(t *testing.T) {
	in := &Input{
		Telemetry: []parse.TelemetryRecord{
			{At: mustTS(t, "10:00:01"), Watts: 1},
			{At: mustTS(t, "10:00:02"), Watts: 1},
		},
		Meta: &parse.RunMeta{StartTime: mustTS(t, "2024-03-01T10:00:00Z"), HasStartTime: true},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, timeline.RelativeTime(1000), run.Metrics[0].Samples[0].Time)
	assert.True(t, run.Origin.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)), "origin %v", run.Origin)
}

func TestReconcileSortsUnorderedTelemetry(t *testing.T) {
	in := &Input{Telemetry: []parse.TelemetryRecord{
		{At: mustTS(t, "10:00:02"), Watts: 3},
		{At: mustTS(t, "10:00:00"), Watts: 1},
		{At: mustTS(t, "10:00:01"), Watts: 2},
	}}
	run, err := Reconcile(in)
	require.NoError(t, err)
	s := run.Metrics[0].Samples
	assert.Equal(t, timeline.RelativeTime(0), s[0].Time)
	assert.Equal(t, 1.0, s[0].Value)
	assert.Equal(t, timeline.RelativeTime(2000), s[2].Time)
}

func TestReconcileProportionalWithEvents(t *testing.T) {
	in := &Input{
		Telemetry: []parse.TelemetryRecord{
			{At: mustTS(t, "10:00:00"), Watts: 1},
			{At: mustTS(t, "10:00:10"), Watts: 1},
		},
		Events: []parse.EventRecord{
			{At: mustTS(t, "10:00:02"), Label: "function_start"},
			{At: mustTS(t, "10:00:06"), Label: "function_end"},
		},
		Trace: &parse.TraceData{Records: []parse.TraceRecord{
			{Name: "a", TsMicros: 1000, DurMicros: 500},
			{Name: "b", TsMicros: 1500, DurMicros: 500},
		}},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)

	assert.Equal(t, timeline.ModeProportional, run.Alignment.Mode)
	assert.True(t, run.Alignment.Approximate())
	assert.Equal(t, timeline.AnchorEvent, run.Alignment.AnchorStartSource)
	require.Len(t, run.Spans, 2)
	assert.InDelta(t, 2000, float64(run.Spans[0].Start), 1e-9)
	assert.InDelta(t, 4000, float64(run.Spans[0].End), 1e-9)
	assert.InDelta(t, 6000, float64(run.Spans[1].End), 1e-9)
	assert.NotEmpty(t, run.Alignment.Notes)
}

func TestReconcileAnchorFallback(t *testing.T) {
	in := &Input{
		Telemetry: []parse.TelemetryRecord{
			{At: mustTS(t, "10:00:00"), Watts: 1},
			{At: mustTS(t, "10:00:08"), Watts: 1},
		},
		Trace: &parse.TraceData{Records: []parse.TraceRecord{
			{Name: "a", TsMicros: 0, DurMicros: 50},
			{Name: "b", TsMicros: 50, DurMicros: 50},
		}},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, timeline.AnchorDomainEdge, run.Alignment.AnchorStartSource)
	assert.Equal(t, timeline.AnchorDomainEdge, run.Alignment.AnchorEndSource)
	assert.InDelta(t, 4000, float64(run.Spans[1].Start), 1e-9)
	assert.InDelta(t, 8000, float64(run.Spans[1].End), 1e-9)
}

func TestReconcileDegenerateDisablesOverlayOnly(t *testing.T) {
	in := &Input{
		Telemetry: []parse.TelemetryRecord{
			{At: mustTS(t, "10:00:00"), Watts: 1},
			{At: mustTS(t, "10:00:01"), Watts: 2},
		},
		Trace: &parse.TraceData{Records: []parse.TraceRecord{{Name: "instant", TsMicros: 10}}},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)

	var ae *timeline.AlignmentError
	require.True(t, errors.As(run.Alignment.Err, &ae))
	assert.False(t, run.TraceOverlay())
	assert.Empty(t, run.Spans)
	assert.Len(t, run.Metrics[0].Samples, 2)
	assert.Equal(t, timeline.RelativeTime(1000), run.DomainEnd())
}

func TestReconcileEpochTrace(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &Input{
		Telemetry: []parse.TelemetryRecord{{At: parse.Timestamp{Time: start, Dated: true}, Watts: 1}},
		Trace: &parse.TraceData{Epoch: true, Records: []parse.TraceRecord{
			{Name: "op", TsMicros: float64(start.Add(3*time.Second).UnixMicro()), DurMicros: 250_000},
		}},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, timeline.ModeAbsolute, run.Alignment.Mode)
	assert.InDelta(t, 3000, float64(run.Spans[0].Start), 1e-6)
	assert.InDelta(t, 3250, float64(run.Spans[0].End), 1e-6)
}

func TestReconcileEpochTraceIgnoresRunStart(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := &Input{
		Telemetry: []parse.TelemetryRecord{{At: parse.Timestamp{Time: start, Dated: true}, Watts: 1}},
		Meta:      &parse.RunMeta{StartTime: parse.Timestamp{Time: start, Dated: true}, HasStartTime: true},
		Trace: &parse.TraceData{Epoch: true, Records: []parse.TraceRecord{
			{Name: "op", TsMicros: float64(start.Add(200 * time.Millisecond).UnixMicro()), DurMicros: 100_000},
		}},
	}
	run, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, timeline.ModeAbsolute, run.Alignment.Mode)
	assert.Equal(t, timeline.OriginRunStart, run.Alignment.OriginSource)
	require.Len(t, run.Spans, 1)
	assert.InDelta(t, 200, float64(run.Spans[0].Start), 1e-6)
	assert.InDelta(t, 300, float64(run.Spans[0].End), 1e-6)
	assert.InDelta(t, 300, float64(run.DomainEnd()), 1e-6)
	assert.Contains(t, strings.Join(run.Alignment.Notes, "\n"), "unix times")
}

func TestReconcileTelemetryAcrossMidnight(t *testing.T) {
	recs, err := parse.ReadTelemetry(strings.NewReader("23:59:59: 1000000\n00:00:01: 2000000\n"))
	require.NoError(t, err)

	run, err := Reconcile(&Input{Telemetry: recs})
	require.NoError(t, err)
	assert.Equal(t, []timeline.Sample{{Time: 0, Value: 1}, {Time: 2000, Value: 2}}, run.Metrics[0].Samples)
}

func TestReconcileNoOrigin(t *testing.T) {
	_, err := Reconcile(&Input{})
	assert.ErrorIs(t, err, ErrNoOrigin)
}

func TestReconcileCombinedTable(t *testing.T) {
	table := &parse.CombinedTable{
		Columns: []string{"cpu", "memory"},
		Rows: []parse.CombinedRow{
			{At: mustTS(t, "2024-03-01 10:00:00"), Values: []float64{10, math.NaN()}},
			{At: mustTS(t, "2024-03-01 10:00:01"), Values: []float64{20, 50}},
		},
	}
	run, err := Reconcile(&Input{Combined: table})
	require.NoError(t, err)
	require.Len(t, run.Metrics, 2)

	cpu, ok := run.Metric("cpu")
	require.True(t, ok)
	assert.Equal(t, "CPU (%)", cpu.Label)
	assert.Len(t, cpu.Samples, 2)

	mem, _ := run.Metric("memory")
	require.Len(t, mem.Samples, 1)
	assert.Equal(t, timeline.RelativeTime(1000), mem.Samples[0].Time)
}

func TestProportionalScenario(t *testing.T) {
	records := []parse.TraceRecord{
		{Name: "first", TsMicros: 0, DurMicros: 10},
		{Name: "middle", TsMicros: 50, DurMicros: 10},
		{Name: "last", TsMicros: 90, DurMicros: 10},
	}
	spans, err := Proportional(records, 50, 150)
	require.NoError(t, err)
	assert.Equal(t, timeline.RelativeTime(50), spans[0].Start)
	assert.Equal(t, timeline.RelativeTime(100), spans[1].Start)
	assert.Equal(t, timeline.RelativeTime(150), spans[2].End)
}

func TestProportionalPreservesOrder(t *testing.T) {
	starts := []float64{3, 17, 17.5, 100, 250, 251, 999}
	records := make([]parse.TraceRecord, len(starts))
	for i, s := range starts {
		records[i] = parse.TraceRecord{TsMicros: s, DurMicros: 1}
	}
	spans, err := Proportional(records, 12.5, 13.75)
	require.NoError(t, err)
	for i := 1; i < len(spans); i++ {
		if !(spans[i-1].Start < spans[i].Start) {
			t.Errorf("order broken at %d: %v !< %v", i, spans[i-1].Start, spans[i].Start)
		}
	}
}

func TestProportionalDegenerate(t *testing.T) {
	var ae *timeline.AlignmentError

	_, err := Proportional([]parse.TraceRecord{{TsMicros: 5}, {TsMicros: 5}}, 0, 100)
	require.True(t, errors.As(err, &ae), "expected AlignmentError, got %v", err)

	_, err = Proportional([]parse.TraceRecord{{TsMicros: 0, DurMicros: 10}}, 100, 100)
	require.True(t, errors.As(err, &ae))

	_, err = Proportional([]parse.TraceRecord{{TsMicros: 0, DurMicros: 10}}, 100, 50)
	require.True(t, errors.As(err, &ae))
}

func TestChooseAnchor(t *testing.T) {
	events := []timeline.Event{
		{Time: 10, Label: "checkpoint"},
		{Time: 20, Label: "function_start"},
		{Time: 30, Label: "function_end"},
		{Time: 40, Label: "function_start"},
	}
	a := ChooseAnchor(events, 99)
	assert.Equal(t, timeline.RelativeTime(20), a.Start)
	assert.Equal(t, timeline.RelativeTime(30), a.End)

	a = ChooseAnchor(events[:2], 99)
	assert.Equal(t, timeline.RelativeTime(99), a.End)
	assert.Equal(t, timeline.AnchorDomainEdge, a.EndSource)

	a = ChooseAnchor([]timeline.Event{
		{Time: 50, Label: "start inference"},
		{Time: 150, Label: "end inference"},
	}, 1000)
	assert.Equal(t, timeline.RelativeTime(50), a.Start)
	assert.Equal(t, timeline.AnchorEvent, a.StartSource)
	assert.Equal(t, timeline.RelativeTime(150), a.End)
}
