package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerscope/powerscope/internal/session"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		t0, t1  float64
		wantErr bool
	}{
		{in: "100:250", t0: 100, t1: 250},
		{in: " 0.5 , 2 ", t0: 0.5, t1: 2},
		{in: "250:100", wantErr: true},
		{in: "5:5", wantErr: true},
		{in: "100", wantErr: true},
		{in: "a:b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t0, t1, err := parseWindow(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.t0, t0)
			assert.Equal(t, tt.t1, t1)
		})
	}
}

func TestOpenRunUsesCollectorTraceFile(t *testing.T) {
	dir := writeRunDir(t, map[string]string{"energy_log.txt": checkTelemetry})
	collector := filepath.Join(t.TempDir(), "collector.yaml")
	require.NoError(t, os.WriteFile(collector, []byte("exporters:\n  file:\n    path: out/traces.jsonl\n"), 0o644))

	cfg := DefaultConfig()
	cfg.OtelConfig = collector
	m, err := openRun(dir, cfg)
	require.NoError(t, err)
	want := filepath.Join(filepath.Dir(collector), "out", "traces.jsonl")
	assert.Equal(t, want, m.CollectorTrace)
	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, want, entries[1].Path)

	// A run with its own trace file ignores the collector.
	dir = writeRunDir(t, map[string]string{"energy_log.txt": checkTelemetry, "model_profile.json": checkProfile})
	m, err = openRun(dir, cfg)
	require.NoError(t, err)
	assert.Empty(t, m.CollectorTrace)

	_, err = openRun("", cfg)
	assert.Error(t, err)
}

func loadedSession(t *testing.T) *session.Session {
	t.Helper()
	dir := writeRunDir(t, map[string]string{
		"energy_log.txt":     checkTelemetry,
		"event_log.txt":      checkEvents,
		"model_profile.json": checkProfile,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := DefaultConfig()
	s := startSession(ctx, cfg, nil)
	_, err := loadRun(ctx, s, dir, cfg)
	require.NoError(t, err)
	return s
}

func TestWriteInspection(t *testing.T) {
	s := loadedSession(t)
	at := 1000.0

	var out bytes.Buffer
	require.NoError(t, writeInspection(context.Background(), &out, s, 100, 6, &at))

	text := out.String()
	assert.Contains(t, text, "Alignment: proportional, approximate")
	assert.Contains(t, text, "Power (W)")
	assert.Contains(t, text, "conv1")
	assert.Contains(t, text, "Nearest samples to 1000 ms")
	assert.Contains(t, text, "#1 at 1000.0 ms = 1.5")
}

func TestWriteRender(t *testing.T) {
	s := loadedSession(t)
	require.NoError(t, s.ZoomToWindow(context.Background(), 500, 1500))
	snap := s.Snapshot()
	dir := filepath.Join(t.TempDir(), "out")

	files, err := writeRender(snap, dir, "svg")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "power.svg")}, files)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "<svg"))

	files, err = writeRender(snap, dir, "png")
	require.NoError(t, err)
	data, err = os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	files, err = writeRender(snap, dir, "html")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "report.html")}, files)

	_, err = writeRender(snap, dir, "gif")
	assert.Error(t, err)
}
