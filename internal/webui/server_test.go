package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerscope/powerscope/internal/capture"
	"github.com/powerscope/powerscope/internal/loader"
	"github.com/powerscope/powerscope/internal/session"
)

const telemetryLog = `2024-01-01 10:00:00: 1000000
2024-01-01 10:00:00.500: 3000000
2024-01-01 10:00:01: 2000000
`

func newTestServer(t *testing.T, load bool) (*httptest.Server, *session.Session) {
	t.Helper()
	s := session.New(session.Config{Width: 1000, PanelHeight: 100}, loader.New(loader.Config{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	if load {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "energy_log.txt"), []byte(telemetryLog), 0o644))
		m, err := loader.Discover(dir)
		require.NoError(t, err)
		require.NoError(t, s.Load(context.Background(), m))
	}

	mux := http.NewServeMux()
	New(s, capture.NewStore(16, false), false).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return ts, s
}

func TestUI(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/ui/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "<canvas")
}

func TestRunBeforeLoad(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/run")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.False(t, snap.Loaded)

	resp2, err := http.Get(ts.URL + "/api/panels/power")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestPanelImage(t *testing.T) {
	ts, _ := newTestServer(t, true)

	resp, err := http.Get(ts.URL + "/api/panels/power")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	head := make([]byte, 4)
	_, err = io.ReadFull(resp.Body, head)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), head)

	resp2, err := http.Get(ts.URL + "/api/panels/power?format=svg")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "image/svg+xml", resp2.Header.Get("Content-Type"))

	resp3, err := http.Get(ts.URL + "/api/panels/voltage")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)

	resp4, err := http.Get(ts.URL + "/api/panels/power?format=gif")
	require.NoError(t, err)
	resp4.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp4.StatusCode)
}

func TestReport(t *testing.T) {
	ts, _ := newTestServer(t, true)

	resp, err := http.Get(ts.URL + "/api/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "echarts")
}

func TestViewCommand(t *testing.T) {
	ts, _ := newTestServer(t, true)

	post := func(cmd string) *http.Response {
		resp, err := http.Post(ts.URL+"/api/view", "application/json", strings.NewReader(cmd))
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"type":"zoom","factor":2,"anchor":0}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, [2]float64{0, 500}, snap.Window)

	bad := post(`{"type":"spin"}`)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	unknown := post(`{"type":"hover_enter","metric":"voltage","x":10}`)
	unknown.Body.Close()
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}

func TestCaptureStats(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/capture")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats capture.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 16, stats.Capacity)
}

func TestReloadBeforeLoad(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, err := http.Post(ts.URL+"/api/reload", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketGestures(t *testing.T) {
	ts, _ := newTestServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func() wsUpdate {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var u wsUpdate
		require.NoError(t, json.Unmarshal(data, &u))
		return u
	}

	first := read()
	require.True(t, first.Loaded)
	require.NotNil(t, first.Capture)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"hover_enter","metric":"power","x":480}`)))
	for {
		u := read()
		if tip, ok := u.Tooltips["power"]; ok && tip.Visible {
			assert.Equal(t, 1, tip.Index)
			assert.Equal(t, 3.0, tip.Sample.Value)
			break
		}
	}

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"zoom","factor":4,"anchor":0}`)))
	for {
		u := read()
		if u.Transform.K == 4 {
			assert.Equal(t, [2]float64{0, 250}, u.Window)
			break
		}
	}
}
