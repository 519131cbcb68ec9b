package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/powerscope/powerscope/internal/viz"
)

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "powerscope://run",
		Name:        "run",
		Description: "Summary of the loaded run: sources, metrics, events, spans and the current window.",
		MIMEType:    "text/plain",
	}, s.handleRunResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "powerscope://alignment",
		Name:        "alignment",
		Description: "How trace spans were placed on the shared axis: mode, confidence, origin and anchors.",
		MIMEType:    "text/plain",
	}, s.handleAlignmentResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "powerscope://capture",
		Name:        "capture",
		Description: "OTLP span capture endpoint and buffer usage.",
		MIMEType:    "text/plain",
	}, s.handleCaptureResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "powerscope://metrics/{key}",
		Name:        "metric-samples",
		Description: "Samples of one metric as time_ms,value lines.",
		MIMEType:    "text/csv",
	}, s.handleMetricResource)
}

// ─── Static resource handlers ───────────────────────────────────────────

func (s *Server) handleRunResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	snap := s.session.Snapshot()
	if !snap.Loaded {
		return textResult(req.Params.URI, "No run loaded. Call load_run first.\n"), nil
	}
	run := snap.Run

	var b strings.Builder
	b.WriteString(viz.RunSummary(viz.StatsFromRun(run)))
	fmt.Fprintf(&b, "\nWindow: %.1f .. %.1f ms (zoom %.2fx)\n", snap.Window[0], snap.Window[1], snap.Transform.K)
	fmt.Fprintf(&b, "Origin: %s\n", run.Origin.Format("2006-01-02 15:04:05.000 MST"))
	if len(run.Sources) > 0 {
		b.WriteString("Sources:\n")
		for _, src := range run.Sources {
			fmt.Fprintf(&b, "  • %s\n", src)
		}
	}
	if snap.LoadError != "" {
		fmt.Fprintf(&b, "\nLast reload failed: %s\n", snap.LoadError)
	}
	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleAlignmentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	snap := s.session.Snapshot()
	if !snap.Loaded {
		return textResult(req.Params.URI, "No run loaded.\n"), nil
	}
	a := snap.Alignment

	var b strings.Builder
	b.WriteString("Alignment\n")
	b.WriteString("═════════\n")
	fmt.Fprintf(&b, "  Mode:        %s\n", a.Mode)
	if a.Confidence != "" {
		fmt.Fprintf(&b, "  Confidence:  %s\n", a.Confidence)
	}
	fmt.Fprintf(&b, "  Origin:      %s (%s)\n", a.Origin.Format("15:04:05.000"), a.OriginSource)
	if a.AnchorStartSource != "" || a.AnchorEndSource != "" {
		fmt.Fprintf(&b, "  Anchors:     %.1f ms (%s) .. %.1f ms (%s)\n",
			float64(a.AnchorStart), a.AnchorStartSource, float64(a.AnchorEnd), a.AnchorEndSource)
	}
	if snap.AlignError != "" {
		fmt.Fprintf(&b, "  Error:       %s\n", snap.AlignError)
	}
	for _, n := range a.Notes {
		fmt.Fprintf(&b, "  · %s\n", n)
	}
	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleCaptureResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.capture == nil {
		return textResult(req.Params.URI, "Span capture is disabled.\n"), nil
	}
	stats := s.capture.Stats()

	var b strings.Builder
	b.WriteString("Span Capture\n")
	b.WriteString("════════════\n")
	fmt.Fprintf(&b, "  Address:   %s\n", s.captureEndpoint)
	b.WriteString("  Protocol:  grpc\n")
	fmt.Fprintf(&b, "  Spans:     %s / %s (%s)\n", fmtNum(stats.Spans), fmtNum(stats.Capacity), fmtPct(stats.Spans, stats.Capacity))
	if stats.Dropped > 0 {
		fmt.Fprintf(&b, "  Dropped:   %s\n", fmtNum(int(stats.Dropped)))
	}
	b.WriteString("\n  Environment Variables:\n")
	fmt.Fprintf(&b, "    OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", s.captureEndpoint)
	b.WriteString("    OTEL_EXPORTER_OTLP_PROTOCOL=grpc\n")
	return textResult(req.Params.URI, b.String()), nil
}

// ─── Template resource handlers ─────────────────────────────────────────

func (s *Server) handleMetricResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	key, err := extractURIParam(req.Params.URI, "powerscope://metrics/")
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	snap := s.session.Snapshot()
	if !snap.Loaded {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	series, ok := snap.Run.Metric(key)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	var b strings.Builder
	b.WriteString("time_ms,value\n")
	for _, smp := range series.Samples {
		fmt.Fprintf(&b, "%g,%g\n", float64(smp.Time), smp.Value)
	}
	return textResult(req.Params.URI, b.String()), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// extractURIParam strips prefix from uri and URL-decodes the remainder.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:  uri,
			Text: text,
		}},
	}
}

// fmtNum formats an integer with comma separators (e.g. 10,000).
func fmtNum(n int) string {
	if n < 0 {
		return "-" + fmtNum(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// fmtPct formats a usage percentage like "62%".
func fmtPct(count, capacity int) string {
	if capacity == 0 {
		return "─"
	}
	return fmt.Sprintf("%.0f%%", float64(count)/float64(capacity)*100)
}
