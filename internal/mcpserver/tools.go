package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/powerscope/powerscope/internal/loader"
	"github.com/powerscope/powerscope/internal/render"
	"github.com/powerscope/powerscope/internal/session"
	"github.com/powerscope/powerscope/internal/timeline"
	"github.com/powerscope/powerscope/internal/viz"
)

const defaultSpanLimit = 50

// Tool: load_run

type LoadRunInput struct {
	Path string `json:"path" jsonschema:"Run directory, or a powerscope.yaml manifest"`
}

type LoadRunOutput struct {
	Generation uint64   `json:"generation" jsonschema:"Load generation number"`
	Metrics    []string `json:"metrics" jsonschema:"Metric keys, one panel each"`
	Events     int      `json:"events" jsonschema:"Number of events"`
	Spans      int      `json:"spans" jsonschema:"Number of aligned spans"`
	DomainMs   float64  `json:"domain_ms" jsonschema:"Length of the shared time domain in ms"`
	Alignment  string   `json:"alignment" jsonschema:"Alignment mode and confidence"`
	Warning    string   `json:"warning,omitempty" jsonschema:"Alignment error when the trace overlay is disabled"`
	Sources    []string `json:"sources" jsonschema:"Files the run was read from"`
}

func (s *Server) handleLoadRun(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LoadRunInput,
) (*mcp.CallToolResult, LoadRunOutput, error) {
	m, err := openManifest(input.Path)
	if err != nil {
		return nil, LoadRunOutput{}, err
	}
	if err := s.session.Load(ctx, m); err != nil {
		return nil, LoadRunOutput{}, fmt.Errorf("load %s: %w", input.Path, err)
	}
	return &mcp.CallToolResult{}, loadOutput(s.session.Snapshot()), nil
}

func openManifest(path string) (*loader.Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return loader.Open(path)
}

func loadOutput(snap session.Snapshot) LoadRunOutput {
	run := snap.Run
	out := LoadRunOutput{
		Generation: snap.Generation,
		Metrics:    run.MetricKeys(),
		Events:     len(run.Events),
		DomainMs:   float64(run.DomainEnd()),
		Alignment:  alignmentText(run.Alignment),
		Warning:    snap.AlignError,
		Sources:    run.Sources,
	}
	if run.TraceOverlay() {
		out.Spans = len(run.Spans)
	}
	return out
}

func alignmentText(a timeline.Alignment) string {
	if a.Confidence == "" {
		return string(a.Mode)
	}
	return fmt.Sprintf("%s (%s)", a.Mode, a.Confidence)
}

// Tool: reload_run

type ReloadRunInput struct{}

func (s *Server) handleReloadRun(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ReloadRunInput,
) (*mcp.CallToolResult, LoadRunOutput, error) {
	if err := s.session.Reload(ctx); err != nil {
		return nil, LoadRunOutput{}, err
	}
	return &mcp.CallToolResult{}, loadOutput(s.session.Snapshot()), nil
}

// Tool: run_summary

type RunSummaryInput struct{}

type RunSummaryOutput struct {
	Summary string `json:"summary" jsonschema:"Alignment details and per-metric sample counts"`
}

func (s *Server) handleRunSummary(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RunSummaryInput,
) (*mcp.CallToolResult, RunSummaryOutput, error) {
	snap := s.session.Snapshot()
	if !snap.Loaded {
		return nil, RunSummaryOutput{}, session.ErrNotLoaded
	}
	return &mcp.CallToolResult{}, RunSummaryOutput{Summary: viz.RunSummary(viz.StatsFromRun(snap.Run))}, nil
}

// Tool: set_view

type SetViewInput struct {
	Action   string   `json:"action" jsonschema:"One of zoom, pan, window, reset"`
	Factor   float64  `json:"factor,omitempty" jsonschema:"zoom: scale factor; >1 zooms in"`
	AnchorMs *float64 `json:"anchor_ms,omitempty" jsonschema:"zoom: time that stays fixed; defaults to the window centre"`
	ShiftMs  float64  `json:"shift_ms,omitempty" jsonschema:"pan: move the window later by this many ms (negative for earlier)"`
	StartMs  float64  `json:"start_ms,omitempty" jsonschema:"window: first visible ms"`
	EndMs    float64  `json:"end_ms,omitempty" jsonschema:"window: last visible ms"`
}

type SetViewOutput struct {
	StartMs float64 `json:"start_ms" jsonschema:"First visible ms"`
	EndMs   float64 `json:"end_ms" jsonschema:"Last visible ms"`
	Zoom    float64 `json:"zoom" jsonschema:"Current zoom factor"`
}

func (s *Server) handleSetView(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetViewInput,
) (*mcp.CallToolResult, SetViewOutput, error) {
	snap := s.session.Snapshot()
	if !snap.Loaded {
		return nil, SetViewOutput{}, session.ErrNotLoaded
	}
	w0, w1 := snap.Window[0], snap.Window[1]
	pxPerMs := plotWidth(snap) / (w1 - w0)

	var err error
	switch input.Action {
	case "zoom":
		if input.Factor <= 0 {
			return nil, SetViewOutput{}, fmt.Errorf("zoom factor must be positive")
		}
		anchor := (w0 + w1) / 2
		if input.AnchorMs != nil {
			anchor = *input.AnchorMs
		}
		err = s.session.ZoomBy(ctx, input.Factor, (anchor-w0)*pxPerMs)
	case "pan":
		err = s.session.PanBy(ctx, -input.ShiftMs*pxPerMs)
	case "window":
		err = s.session.ZoomToWindow(ctx, input.StartMs, input.EndMs)
	case "reset":
		err = s.session.Reset(ctx)
	default:
		return nil, SetViewOutput{}, fmt.Errorf("unknown action %q (want zoom, pan, window or reset)", input.Action)
	}
	if err != nil {
		return nil, SetViewOutput{}, err
	}

	snap = s.session.Snapshot()
	return &mcp.CallToolResult{}, SetViewOutput{
		StartMs: snap.Window[0],
		EndMs:   snap.Window[1],
		Zoom:    snap.Transform.K,
	}, nil
}

func plotWidth(snap session.Snapshot) float64 {
	for _, f := range snap.Frames {
		if f.Width > 0 {
			return f.Width
		}
	}
	return 1
}

// Tool: nearest_sample

type NearestSampleInput struct {
	Metric string  `json:"metric" jsonschema:"Metric key, e.g. power"`
	TimeMs float64 `json:"time_ms" jsonschema:"Query time in ms from the run origin"`
}

type NearestSampleOutput struct {
	Index  int     `json:"index" jsonschema:"Sample index in the series"`
	TimeMs float64 `json:"time_ms" jsonschema:"Sample time in ms"`
	Value  float64 `json:"value" jsonschema:"Sample value"`
	Spans  []Span  `json:"spans,omitempty" jsonschema:"Aligned spans active at the sample time"`
}

type Span struct {
	Name    string  `json:"name" jsonschema:"Span name"`
	OpName  string  `json:"op_name,omitempty" jsonschema:"Operator type"`
	StartMs float64 `json:"start_ms" jsonschema:"Start in ms"`
	EndMs   float64 `json:"end_ms" jsonschema:"End in ms"`
}

func (s *Server) handleNearestSample(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input NearestSampleInput,
) (*mcp.CallToolResult, NearestSampleOutput, error) {
	smp, idx, err := s.session.Nearest(ctx, input.Metric, input.TimeMs)
	if err != nil {
		return nil, NearestSampleOutput{}, err
	}
	out := NearestSampleOutput{Index: idx, TimeMs: float64(smp.Time), Value: smp.Value}

	if run := s.session.Snapshot().Run; run != nil && run.TraceOverlay() {
		for _, sp := range run.Spans {
			if sp.Contains(smp.Time) {
				out.Spans = append(out.Spans, toSpan(sp))
			}
		}
	}
	return &mcp.CallToolResult{}, out, nil
}

func toSpan(sp timeline.Span) Span {
	return Span{Name: sp.Name, OpName: sp.OpName, StartMs: float64(sp.Start), EndMs: float64(sp.End)}
}

// Tool: list_spans

type ListSpansInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum spans to return (default 50)"`
}

type ListSpansOutput struct {
	Spans []Span `json:"spans" jsonschema:"Spans overlapping the current window, by start time"`
	Total int    `json:"total" jsonschema:"Spans overlapping the window before the limit"`
}

func (s *Server) handleListSpans(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListSpansInput,
) (*mcp.CallToolResult, ListSpansOutput, error) {
	snap := s.session.Snapshot()
	if !snap.Loaded {
		return nil, ListSpansOutput{}, session.ErrNotLoaded
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSpanLimit
	}

	out := ListSpansOutput{Spans: []Span{}}
	if !snap.Run.TraceOverlay() {
		return &mcp.CallToolResult{}, out, nil
	}
	w0, w1 := timeline.RelativeTime(snap.Window[0]), timeline.RelativeTime(snap.Window[1])
	for _, sp := range snap.Run.Spans {
		if sp.End < w0 || sp.Start > w1 {
			continue
		}
		out.Total++
		if len(out.Spans) < limit {
			out.Spans = append(out.Spans, toSpan(sp))
		}
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool: render_view

type RenderViewInput struct {
	Metrics []string `json:"metrics,omitempty" jsonschema:"Metric keys to draw (default all)"`
	Width   int      `json:"width,omitempty" jsonschema:"Line width in characters (default 80)"`
	Height  int      `json:"height,omitempty" jsonschema:"Rows per metric strip (default 8)"`
}

type RenderViewOutput struct {
	Text string `json:"text" jsonschema:"Stacked text strips and span waterfall for the current window"`
}

func (s *Server) handleRenderView(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RenderViewInput,
) (*mcp.CallToolResult, RenderViewOutput, error) {
	snap := s.session.Snapshot()
	if !snap.Loaded {
		return nil, RenderViewOutput{}, session.ErrNotLoaded
	}

	want := make(map[string]bool, len(input.Metrics))
	for _, m := range input.Metrics {
		want[m] = true
	}

	var b strings.Builder
	for _, f := range snap.Frames {
		if len(want) > 0 && !want[f.Metric] {
			continue
		}
		b.WriteString(viz.RenderStrip(viz.StripFromFrame(f), input.Width, input.Height))
		b.WriteString("\n")
	}
	if snap.Run.TraceOverlay() {
		b.WriteString(viz.Waterfall(viz.RowsFromSpans(snap.Run.Spans), snap.Window[0], snap.Window[1], input.Width))
	} else if snap.AlignError != "" {
		fmt.Fprintf(&b, "Spans hidden: %s\n", snap.AlignError)
	}
	return &mcp.CallToolResult{}, RenderViewOutput{Text: b.String()}, nil
}

// Tool: render_panel

type RenderPanelInput struct {
	Metric string `json:"metric" jsonschema:"Metric key to draw"`
	Format string `json:"format,omitempty" jsonschema:"png (default) or svg"`
}

type RenderPanelOutput struct {
	Metric string `json:"metric" jsonschema:"Metric key"`
	Format string `json:"format" jsonschema:"Image format"`
	Bytes  int    `json:"bytes" jsonschema:"Encoded image size"`
}

func (s *Server) handleRenderPanel(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RenderPanelInput,
) (*mcp.CallToolResult, RenderPanelOutput, error) {
	format := render.PNG
	if input.Format != "" {
		var err error
		if format, err = render.ParseFormat(input.Format); err != nil {
			return nil, RenderPanelOutput{}, err
		}
	}

	snap := s.session.Snapshot()
	if !snap.Loaded {
		return nil, RenderPanelOutput{}, session.ErrNotLoaded
	}
	for _, f := range snap.Frames {
		if f.Metric != input.Metric {
			continue
		}
		var buf bytes.Buffer
		if err := render.WritePanel(&buf, f, format); err != nil {
			return nil, RenderPanelOutput{}, err
		}

		var content mcp.Content
		if format == render.SVG {
			content = &mcp.TextContent{Text: buf.String()}
		} else {
			content = &mcp.ImageContent{Data: buf.Bytes(), MIMEType: format.ContentType()}
		}
		return &mcp.CallToolResult{Content: []mcp.Content{content}}, RenderPanelOutput{
			Metric: f.Metric,
			Format: string(format),
			Bytes:  buf.Len(),
		}, nil
	}
	return nil, RenderPanelOutput{}, &session.UnknownMetricError{Metric: input.Metric}
}

// Tool: capture_status

type CaptureStatusInput struct {
	Clear bool `json:"clear,omitempty" jsonschema:"Drop every captured span after reporting"`
}

type CaptureStatusOutput struct {
	Enabled         bool              `json:"enabled" jsonschema:"Whether the OTLP receiver is running"`
	Endpoint        string            `json:"endpoint,omitempty" jsonschema:"OTLP gRPC endpoint address"`
	Spans           int               `json:"spans" jsonschema:"Buffered spans"`
	Capacity        int               `json:"capacity" jsonschema:"Buffer capacity"`
	Dropped         uint64            `json:"dropped" jsonschema:"Spans overwritten after the buffer filled"`
	EnvironmentVars map[string]string `json:"environment_vars,omitempty" jsonschema:"Environment for the traced program"`
}

func (s *Server) handleCaptureStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CaptureStatusInput,
) (*mcp.CallToolResult, CaptureStatusOutput, error) {
	if s.capture == nil {
		return &mcp.CallToolResult{}, CaptureStatusOutput{}, nil
	}
	stats := s.capture.Stats()
	if input.Clear {
		s.capture.Clear()
	}
	return &mcp.CallToolResult{}, CaptureStatusOutput{
		Enabled:  true,
		Endpoint: s.captureEndpoint,
		Spans:    stats.Spans,
		Capacity: stats.Capacity,
		Dropped:  stats.Dropped,
		EnvironmentVars: map[string]string{
			"OTEL_EXPORTER_OTLP_ENDPOINT": s.captureEndpoint,
			"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
		},
	}, nil
}

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "load_run",
		Description: "START HERE: load a recorded run from a directory (energy_log.txt, event_log.txt, model_profile.json, combined.csv, ...) or a powerscope.yaml manifest. Aligns every source onto one millisecond axis and resets the view to the whole run.",
	}, s.handleLoadRun)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "reload_run",
		Description: "Re-read the files of the loaded run. If any source fails to parse, the previous run stays loaded and the error is returned.",
	}, s.handleReloadRun)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "run_summary",
		Description: "Alignment mode and confidence, where the origin came from, and sample counts and value ranges per metric. Check this before trusting span positions: proportional alignment is approximate.",
	}, s.handleRunSummary)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_view",
		Description: "Move the shared time window. Every panel follows. Actions: zoom (factor, anchor_ms), pan (shift_ms), window (start_ms, end_ms), reset. Zoom is clamped to 1-20x and the window never leaves the run.",
	}, s.handleSetView)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "nearest_sample",
		Description: "The sample of a metric closest in time to time_ms (ties go to the earlier sample), with the trace spans active at that moment. Use to ask 'what was power doing when Conv_3 ran?'.",
	}, s.handleNearestSample)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_spans",
		Description: "Aligned trace spans overlapping the current window, ordered by start time.",
	}, s.handleListSpans)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "render_view",
		Description: "Text rendering of the current window: one character strip per metric, all on the same time columns, plus a span waterfall.",
	}, s.handleRenderView)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "render_panel",
		Description: "Render one metric panel for the current window as a PNG image (or SVG text), with event markers and span bars.",
	}, s.handleRenderPanel)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "capture_status",
		Description: "Live span capture: the OTLP endpoint to point a traced program at, and how many spans are buffered. Captured spans are used when the run has no trace file.",
	}, s.handleCaptureStatus)

	return nil
}
