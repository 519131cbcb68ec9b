package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/powerscope/powerscope/internal/capture"
	"github.com/powerscope/powerscope/internal/session"
)

// Server exposes a session to agents: load a run, move the shared window,
// query nearest samples and read text renderings of the panels.
type Server struct {
	mcpServer *mcp.Server
	session   *session.Session

	capture         *capture.Store
	captureEndpoint string

	verbose bool
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Verbose bool
	// Capture and CaptureEndpoint are set when the OTLP receiver runs.
	Capture         *capture.Store
	CaptureEndpoint string
}

// NewServer creates an MCP server backed by sess.
func NewServer(sess *session.Session, opts ...ServerOptions) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}

	var o ServerOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	s := &Server{
		session:         sess,
		capture:         o.Capture,
		captureEndpoint: o.CaptureEndpoint,
		verbose:         o.Verbose,
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "powerscope",
		Title:   "Power telemetry, events and trace spans on one timeline",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		Instructions: `Aligns a power-telemetry run with its event log and execution trace.

Workflow: load_run -> run_summary -> set_view (zoom/pan/window/reset) -> render_view or nearest_sample.

All panels share one time window; times are milliseconds from the run origin.
Resources: powerscope://run, powerscope://alignment, powerscope://capture, powerscope://metrics/{key}.`,
		SubscribeHandler:   func(_ context.Context, _ *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(_ context.Context, _ *mcp.UnsubscribeRequest) error { return nil },
	})

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run serves MCP on stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for use with other transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
