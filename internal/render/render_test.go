package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/powerscope/powerscope/internal/panel"
	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/powerscope/powerscope/internal/viewport"
)

func testRun() *timeline.Run {
	power := timeline.Series{Key: "power", Label: "Power (W)", Unit: "W"}
	cpu := timeline.Series{Key: "cpu", Label: "CPU (%)", Unit: "%"}
	for i := 0; i <= 10; i++ {
		t := timeline.RelativeTime(i * 100)
		power.Samples = append(power.Samples, timeline.Sample{Time: t, Value: float64(i)})
		cpu.Samples = append(cpu.Samples, timeline.Sample{Time: t, Value: float64(i * 10)})
	}
	return &timeline.Run{
		Metrics: []timeline.Series{power, cpu, {Key: "temperature", Label: "Temperature (°C)"}},
		Events: []timeline.Event{
			{Time: 100, Label: "inference_start"},
			{Time: 900, Label: "inference_end"},
		},
		Spans: []timeline.Span{
			{Name: "conv1", OpName: "Conv", Start: 150, End: 300},
			{Name: "fc", OpName: "Gemm", Start: 600, End: 880},
		},
		Alignment: timeline.Alignment{Mode: timeline.ModeProportional, Confidence: timeline.ConfidenceApproximate},
	}
}

func testFrames(t *testing.T, zoom float64) (*timeline.Run, []panel.Frame) {
	t.Helper()
	run := testRun()
	vp := viewport.New(viewport.Options{})
	require.NoError(t, vp.SetDomain(0, float64(run.DomainEnd()), 800))
	if zoom > 1 {
		vp.ZoomBy(zoom, 400)
	}
	set := panel.NewSet(run, vp, panel.Options{Width: 800, Height: 160})
	t.Cleanup(set.Close)
	return run, set.Frames()
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("PNG")
	require.NoError(t, err)
	assert.Equal(t, PNG, f)
	f, err = ParseFormat("svg")
	require.NoError(t, err)
	assert.Equal(t, SVG, f)
	_, err = ParseFormat("gif")
	assert.Error(t, err)
}

func TestPanelChartUsesFrameWindow(t *testing.T) {
	_, frames := testFrames(t, 2)
	ch, err := PanelChart(frames[0])
	require.NoError(t, err)

	xr, ok := ch.XAxis.Range.(*chart.ContinuousRange)
	require.True(t, ok)
	assert.Equal(t, frames[0].Window[0], xr.Min)
	assert.Equal(t, frames[0].Window[1], xr.Max)

	line, ok := ch.Series[0].(chart.ContinuousSeries)
	require.True(t, ok)
	for _, x := range line.XValues {
		assert.GreaterOrEqual(t, x, xr.Min)
		assert.LessOrEqual(t, x, xr.Max)
	}
	assert.Contains(t, ch.Title, "spans approximate")
}

func TestPanelChartEmptyAndUnloaded(t *testing.T) {
	_, frames := testFrames(t, 1)
	ch, err := PanelChart(frames[2])
	require.NoError(t, err)
	assert.Contains(t, ch.Title, "no samples")
	require.Len(t, ch.Series, 5, "hidden placeholder, two event markers and two spans")
	assert.True(t, ch.Series[0].GetStyle().Hidden)

	_, err = PanelChart(panel.Frame{Metric: "power"})
	assert.True(t, errors.Is(err, ErrNotLoaded))
}

func TestWritePanel(t *testing.T) {
	_, frames := testFrames(t, 1)

	var png bytes.Buffer
	require.NoError(t, WritePanel(&png, frames[0], PNG))
	assert.True(t, bytes.HasPrefix(png.Bytes(), []byte("\x89PNG")))

	var svg bytes.Buffer
	require.NoError(t, WritePanel(&svg, frames[1], SVG))
	assert.Contains(t, svg.String(), "<svg")
}

func TestReport(t *testing.T) {
	run, frames := testFrames(t, 1)
	run.Alignment.Err = &timeline.AlignmentError{Reason: "degenerate trace interval"}

	var b strings.Builder
	require.NoError(t, Report(&b, run, frames))
	html := b.String()

	assert.Contains(t, html, "echarts.connect")
	assert.Contains(t, html, "Power (W)")
	assert.Contains(t, html, "CPU (%)")
	assert.Contains(t, html, "inference_start")
	assert.Contains(t, html, "trace overlay disabled")
	assert.Equal(t, 3, strings.Count(html, "echarts.init("))
}
