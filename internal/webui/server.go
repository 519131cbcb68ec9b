package webui

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/powerscope/powerscope/internal/capture"
	"github.com/powerscope/powerscope/internal/panel"
	"github.com/powerscope/powerscope/internal/render"
	"github.com/powerscope/powerscope/internal/session"
)

//go:embed static/index.html
var staticFiles embed.FS

// Server serves the embedded web UI, chart images and the WebSocket that
// carries gestures in and snapshots out.
type Server struct {
	session *session.Session
	capture *capture.Store
	verbose bool
}

// New creates a web UI server. store may be nil when live capture is off.
func New(s *session.Session, store *capture.Store, verbose bool) *Server {
	return &Server{session: s, capture: store, verbose: verbose}
}

// RegisterRoutes attaches web UI routes to an existing ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ui/", s.handleUI)
	mux.HandleFunc("GET /ui", s.handleUIRedirect)
	mux.HandleFunc("GET /api/run", s.handleRun)
	mux.HandleFunc("GET /api/panels/{metric}", s.handlePanel)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/capture", s.handleCapture)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	mux.HandleFunc("POST /api/view", s.handleView)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// ListenAndServe starts a standalone HTTP server for the web UI.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUIRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// handleRun returns the current snapshot.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.Snapshot())
}

// handlePanel renders one panel at the current zoom as PNG (default) or SVG.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	format := render.PNG
	if f := r.URL.Query().Get("format"); f != "" {
		var err error
		if format, err = render.ParseFormat(f); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	snap := s.session.Snapshot()
	if !snap.Loaded {
		http.Error(w, session.ErrNotLoaded.Error(), http.StatusServiceUnavailable)
		return
	}
	frame, ok := findFrame(snap.Frames, r.PathValue("metric"))
	if !ok {
		http.Error(w, "unknown metric", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := render.WritePanel(&buf, frame, format); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Write(buf.Bytes())
}

// handleReport returns the linked-chart HTML report for the current view.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if !snap.Loaded {
		http.Error(w, session.ErrNotLoaded.Error(), http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	if err := render.Report(&buf, snap.Run, snap.Frames); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if s.capture == nil {
		http.Error(w, "live capture is disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, s.capture.Stats())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reload(r.Context()); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, s.session.Snapshot())
}

// handleView applies one viewCommand and returns the resulting snapshot.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var cmd viewCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid command: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.apply(r.Context(), cmd); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, s.session.Snapshot())
}

// viewCommand is a client gesture, sent over the WebSocket or POST /api/view.
type viewCommand struct {
	Type   string  `json:"type"`
	Factor float64 `json:"factor,omitempty"`
	Anchor float64 `json:"anchor,omitempty"`
	DX     float64 `json:"dx,omitempty"`
	T0     float64 `json:"t0,omitempty"`
	T1     float64 `json:"t1,omitempty"`
	Metric string  `json:"metric,omitempty"`
	X      float64 `json:"x,omitempty"`
}

var errUnknownCommand = errors.New("unknown command")

func (s *Server) apply(ctx context.Context, cmd viewCommand) error {
	var err error
	switch cmd.Type {
	case "zoom":
		err = s.session.ZoomBy(ctx, cmd.Factor, cmd.Anchor)
	case "pan":
		err = s.session.PanBy(ctx, cmd.DX)
	case "window":
		err = s.session.ZoomToWindow(ctx, cmd.T0, cmd.T1)
	case "reset":
		err = s.session.Reset(ctx)
	case "hover_enter":
		_, err = s.session.HoverEnter(ctx, cmd.Metric, cmd.X)
	case "hover_move":
		_, err = s.session.HoverMove(ctx, cmd.Metric, cmd.X)
	case "hover_leave":
		_, err = s.session.HoverLeave(ctx, cmd.Metric)
	default:
		err = errUnknownCommand
	}
	return err
}

// wsUpdate is the server-sent message on the WebSocket.
type wsUpdate struct {
	session.Snapshot
	Capture *capture.Stats `json:"capture,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// handleWebSocket upgrades to WebSocket, applies client gestures and streams
// a snapshot after every change.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	notifyCh, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	cmdCh := make(chan viewCommand, 16)
	go func() {
		defer close(cmdCh)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var cmd viewCommand
			if json.Unmarshal(data, &cmd) != nil {
				continue
			}
			select {
			case cmdCh <- cmd:
			default:
				// Drop gestures the loop cannot keep up with.
			}
		}
	}()

	s.sendWSUpdate(ctx, conn, "")

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case cmd, ok := <-cmdCh:
			if !ok {
				return
			}
			if err := s.apply(ctx, cmd); err != nil {
				if s.verbose {
					log.Printf("⚠️  webui: %s: %v\n", cmd.Type, err)
				}
				s.sendWSUpdate(ctx, conn, err.Error())
			}

		case <-notifyCh:
			s.sendWSUpdate(ctx, conn, "")

		case <-keepalive.C:
			s.sendWSUpdate(ctx, conn, "")
		}
	}
}

func (s *Server) sendWSUpdate(ctx context.Context, conn *websocket.Conn, errText string) {
	update := wsUpdate{Snapshot: s.session.Snapshot(), Error: errText}
	if s.capture != nil {
		stats := s.capture.Stats()
		update.Capture = &stats
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("webui: failed to marshal update: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		// Connection closed; the main loop will handle cleanup.
		return
	}
}

func findFrame(frames []panel.Frame, metric string) (panel.Frame, bool) {
	for _, f := range frames {
		if f.Metric == metric {
			return f, true
		}
	}
	return panel.Frame{}, false
}

func statusFor(err error) int {
	var unknown *session.UnknownMetricError
	switch {
	case errors.Is(err, session.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.Is(err, errUnknownCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "")
	if err := enc.Encode(v); err != nil {
		log.Printf("webui: failed to write JSON: %v", err)
	}
}
