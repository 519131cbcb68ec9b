package capture

import (
	"context"
	"fmt"
	"net"
	"sync"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
)

// SpanReceiver stores exported spans. Export may call it concurrently.
type SpanReceiver interface {
	ReceiveSpans(ctx context.Context, spans []*tracepb.ResourceSpans) error
}

// Config holds configuration for the OTLP trace receiver.
type Config struct {
	Host string // e.g., "127.0.0.1"
	Port int    // 0 for an ephemeral port
}

// Server accepts OTLP/gRPC trace exports while a run is being recorded.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	stopOnce   sync.Once
	stopChan   chan struct{}
	stopDone   chan struct{}
}

// NewServer binds the receiver to the configured address.
func NewServer(cfg Config, receiver SpanReceiver) (*Server, error) {
	if receiver == nil {
		return nil, fmt.Errorf("span receiver cannot be nil")
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	collectortrace.RegisterTraceServiceServer(grpcServer, &traceService{receiver: receiver})

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		stopChan:   make(chan struct{}),
		stopDone:   make(chan struct{}, 1),
	}, nil
}

// Start serves until Stop is called or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	err := s.grpcServer.Serve(s.listener)
	s.stopDone <- struct{}{}
	return err
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpcServer.GracefulStop()
		close(s.stopChan)
	})
}

// StopWait stops the server and waits for Start to return.
func (s *Server) StopWait() {
	s.Stop()
	<-s.stopDone
}

// Endpoint returns the listening address as "host:port".
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	receiver SpanReceiver
}

func (t *traceService) Export(
	ctx context.Context,
	req *collectortrace.ExportTraceServiceRequest,
) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if err := t.receiver.ReceiveSpans(ctx, req.ResourceSpans); err != nil {
		return nil, fmt.Errorf("failed to receive spans: %w", err)
	}
	return &collectortrace.ExportTraceServiceResponse{}, nil
}
