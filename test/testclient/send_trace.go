package main

import (
	"context"
	"fmt"
	"os"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Sends a burst of inference operator spans to a running powerscope capture
// endpoint, as a traced model would.
// Usage: go run send_trace.go <endpoint> [start RFC3339]
// Example: go run send_trace.go 127.0.0.1:38279 2024-01-01T10:00:00Z
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <endpoint> [start]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 127.0.0.1:38279 2024-01-01T10:00:00Z\n", os.Args[0])
		os.Exit(1)
	}

	endpoint := os.Args[1]
	start := time.Now()
	if len(os.Args) > 2 {
		t, err := time.Parse(time.RFC3339Nano, os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Invalid start time: %v\n", err)
			os.Exit(1)
		}
		start = t
	}
	fmt.Printf("📡 Connecting to OTLP endpoint: %s\n", endpoint)

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create grpc client: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	client := collectortrace.NewTraceServiceClient(conn)

	traceID := []byte{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe, 0xba, 0xbe, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	ops := []struct {
		name, op string
		dur      time.Duration
	}{
		{"conv1", "Conv", 40 * time.Millisecond},
		{"relu1", "Relu", 5 * time.Millisecond},
		{"pool1", "MaxPool", 10 * time.Millisecond},
		{"conv2", "Conv", 60 * time.Millisecond},
		{"fc", "Gemm", 25 * time.Millisecond},
		{"softmax", "Softmax", 2 * time.Millisecond},
	}

	var spans []*tracepb.Span
	at := start
	for i, op := range ops {
		spans = append(spans, &tracepb.Span{
			TraceId:           traceID,
			SpanId:            []byte{0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, byte(i + 1)},
			Name:              op.name,
			Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
			StartTimeUnixNano: uint64(at.UnixNano()),
			EndTimeUnixNano:   uint64(at.Add(op.dur).UnixNano()),
			Attributes: []*commonpb.KeyValue{
				{
					Key:   "op_name",
					Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: op.op}},
				},
			},
			Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
		})
		at = at.Add(op.dur)
	}

	fmt.Printf("🚀 Sending %d operator spans...\n", len(spans))
	_, err = client.Export(context.Background(), &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						{
							Key:   "service.name",
							Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "resnet-bench"}},
						},
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{
					{
						Scope: &commonpb.InstrumentationScope{Name: "onnxruntime"},
						Spans: spans,
					},
				},
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to export spans: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Spans exported successfully!")
	fmt.Printf("   %s .. %s\n", start.Format(time.RFC3339Nano), at.Format(time.RFC3339Nano))
}
