package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerscope/powerscope/internal/capture"
	"github.com/powerscope/powerscope/internal/loader"
	"github.com/powerscope/powerscope/internal/session"
)

const (
	telemetryLog = `2024-01-01 10:00:00: 1000000
2024-01-01 10:00:00.500: 3000000
2024-01-01 10:00:01: 2000000
`
	eventLog = `2024-01-01 10:00:00.200: inference_start
2024-01-01 10:00:00.800: inference_end
`
	modelProfile = `[
  {"ph": "X", "cat": "Node", "name": "conv1", "ts": 0, "dur": 300, "args": {"op_name": "Conv"}},
  {"ph": "X", "cat": "Node", "name": "fc", "ts": 300, "dur": 300, "args": {"op_name": "Gemm"}}
]`
)

func runDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"energy_log.txt":     telemetryLog,
		"event_log.txt":      eventLog,
		"model_profile.json": modelProfile,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sess := session.New(session.Config{Width: 1000, PanelHeight: 100}, loader.New(loader.Config{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv, err := NewServer(sess, ServerOptions{
		Capture:         capture.NewStore(100, false),
		CaptureEndpoint: "127.0.0.1:4317",
	})
	require.NoError(t, err)
	return srv
}

func loadedServer(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer(t)
	_, out, err := srv.handleLoadRun(context.Background(), nil, LoadRunInput{Path: runDir(t)})
	require.NoError(t, err)
	require.Equal(t, []string{"power"}, out.Metrics)
	return srv
}

func TestServerCreationNilSession(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestLoadRun(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.handleLoadRun(ctx, nil, LoadRunInput{})
	assert.Error(t, err)
	_, _, err = srv.handleLoadRun(ctx, nil, LoadRunInput{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	_, out, err := srv.handleLoadRun(ctx, nil, LoadRunInput{Path: runDir(t)})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Events)
	assert.Equal(t, 2, out.Spans)
	assert.Equal(t, "proportional (approximate)", out.Alignment)
	assert.Equal(t, 1000.0, out.DomainMs)

	_, again, err := srv.handleReloadRun(ctx, nil, ReloadRunInput{})
	require.NoError(t, err)
	assert.Greater(t, again.Generation, out.Generation)
}

func TestToolsBeforeLoad(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.handleRunSummary(ctx, nil, RunSummaryInput{})
	assert.ErrorIs(t, err, session.ErrNotLoaded)
	_, _, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "reset"})
	assert.ErrorIs(t, err, session.ErrNotLoaded)
	_, _, err = srv.handleRenderView(ctx, nil, RenderViewInput{})
	assert.ErrorIs(t, err, session.ErrNotLoaded)
}

func TestSetView(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	anchor := 0.0
	_, out, err := srv.handleSetView(ctx, nil, SetViewInput{Action: "zoom", Factor: 4, AnchorMs: &anchor})
	require.NoError(t, err)
	assert.InDelta(t, 0, out.StartMs, 1e-9)
	assert.InDelta(t, 250, out.EndMs, 1e-9)
	assert.Equal(t, 4.0, out.Zoom)

	_, out, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "pan", ShiftMs: 100})
	require.NoError(t, err)
	assert.InDelta(t, 100, out.StartMs, 1e-9)
	assert.InDelta(t, 350, out.EndMs, 1e-9)

	_, out, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "pan", ShiftMs: 10_000})
	require.NoError(t, err)
	assert.InDelta(t, 1000, out.EndMs, 1e-9, "pan stops at the end of the run")

	_, out, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "window", StartMs: 400, EndMs: 600})
	require.NoError(t, err)
	assert.InDelta(t, 400, out.StartMs, 1e-6)
	assert.InDelta(t, 600, out.EndMs, 1e-6)

	_, out, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "reset"})
	require.NoError(t, err)
	assert.Equal(t, SetViewOutput{StartMs: 0, EndMs: 1000, Zoom: 1}, out)

	_, _, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "spin"})
	assert.Error(t, err)
	_, _, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "zoom"})
	assert.Error(t, err)
}

func TestNearestSample(t *testing.T) {
	srv := loadedServer(t)

	_, out, err := srv.handleNearestSample(context.Background(), nil, NearestSampleInput{Metric: "power", TimeMs: 480})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Index)
	assert.Equal(t, 500.0, out.TimeMs)
	assert.Equal(t, 3.0, out.Value)
	// conv1 is stretched over 200..500 ms and fc over 500..800 ms.
	require.Len(t, out.Spans, 2)
	assert.Equal(t, "conv1", out.Spans[0].Name)

	_, _, err = srv.handleNearestSample(context.Background(), nil, NearestSampleInput{Metric: "voltage"})
	var unknown *session.UnknownMetricError
	assert.ErrorAs(t, err, &unknown)
}

func TestListSpans(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	_, out, err := srv.handleListSpans(ctx, nil, ListSpansInput{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Spans, 1)
	assert.Equal(t, "Conv", out.Spans[0].OpName)

	_, _, err = srv.handleSetView(ctx, nil, SetViewInput{Action: "window", StartMs: 850, EndMs: 1000})
	require.NoError(t, err)
	_, out, err = srv.handleListSpans(ctx, nil, ListSpansInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Total)
	assert.NotNil(t, out.Spans)
}

func TestRenderViewAndSummary(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	_, view, err := srv.handleRenderView(ctx, nil, RenderViewInput{Width: 60})
	require.NoError(t, err)
	assert.Contains(t, view.Text, "Power")
	assert.Contains(t, view.Text, "conv1")

	_, sum, err := srv.handleRunSummary(ctx, nil, RunSummaryInput{})
	require.NoError(t, err)
	assert.Contains(t, sum.Summary, "proportional")
}

func TestRenderPanel(t *testing.T) {
	srv := loadedServer(t)
	ctx := context.Background()

	res, out, err := srv.handleRenderPanel(ctx, nil, RenderPanelInput{Metric: "power"})
	require.NoError(t, err)
	assert.Equal(t, "png", out.Format)
	assert.Positive(t, out.Bytes)
	require.Len(t, res.Content, 1)

	_, _, err = srv.handleRenderPanel(ctx, nil, RenderPanelInput{Metric: "power", Format: "bmp"})
	assert.Error(t, err)
	_, _, err = srv.handleRenderPanel(ctx, nil, RenderPanelInput{Metric: "voltage"})
	assert.Error(t, err)
}

func TestCaptureStatus(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCaptureStatus(context.Background(), nil, CaptureStatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Enabled)
	assert.Equal(t, 100, out.Capacity)
	assert.Equal(t, "127.0.0.1:4317", out.EnvironmentVars["OTEL_EXPORTER_OTLP_ENDPOINT"])
}
