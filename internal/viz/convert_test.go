package viz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerscope/powerscope/internal/panel"
	"github.com/powerscope/powerscope/internal/timeline"
)

func TestStatsFromRun(t *testing.T) {
	run := &timeline.Run{
		Metrics: []timeline.Series{
			{Key: "power", Label: "Power (W)", Samples: []timeline.Sample{{Time: 0, Value: 2}, {Time: 800, Value: 5}}},
			{Key: "cpu", Label: "CPU (%)"},
		},
		Events: []timeline.Event{{Time: 100, Label: "inference_start"}},
		Spans:  []timeline.Span{{Name: "conv", Start: 0, End: 900}},
		Alignment: timeline.Alignment{
			Mode:         timeline.ModeProportional,
			Confidence:   timeline.ConfidenceApproximate,
			OriginSource: timeline.OriginFirstSample,
		},
	}

	stats := StatsFromRun(run)
	assert.Equal(t, 900.0, stats.DomainMs)
	assert.Equal(t, 1, stats.SpanCount)
	require.Len(t, stats.Metrics, 2)
	assert.Equal(t, 2.0, stats.Metrics[0].Min)
	assert.Equal(t, 5.0, stats.Metrics[0].Max)
	assert.Equal(t, 0, stats.Metrics[1].Samples)

	run.Alignment.Err = errors.New("anchor interval is empty")
	stats = StatsFromRun(run)
	assert.Equal(t, 0, stats.SpanCount, "disabled overlay hides span count")
	assert.Equal(t, "anchor interval is empty", stats.AlignmentError)
	assert.Equal(t, 800.0, stats.DomainMs)
}

func TestStripFromFrame(t *testing.T) {
	f := panel.Frame{
		Label:  "Power (W)",
		Window: [2]float64{100, 200},
		Domain: [2]float64{0, 10},
		Points: []panel.Point{{T: 50, V: 1}, {T: 150, V: 2}, {T: 250, V: 3}},
		Events: []panel.EventMarker{{T: 120, Label: "inference_start", Kind: "start"}},
	}

	s := StripFromFrame(f)
	assert.Equal(t, []Point{{T: 150, V: 2}}, s.Points, "neighbours outside the window are dropped")
	assert.Equal(t, []Marker{{T: 120, Label: "inference_start", Kind: "start"}}, s.Markers)
	assert.Equal(t, 10.0, s.Hi)
}

func TestRowsFromSpans(t *testing.T) {
	rows := RowsFromSpans([]timeline.Span{{Name: "fc", OpName: "Gemm", Start: 5, End: 9}})
	assert.Equal(t, []SpanRow{{Name: "fc", OpName: "Gemm", StartMs: 5, EndMs: 9}}, rows)
}
