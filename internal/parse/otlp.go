package parse

import (
	"bufio"
	"fmt"
	"io"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

const (
	// OTLP JSON lines from the collector file exporter batch many spans.
	jsonlBufferInitial = 1 * 1024 * 1024
	jsonlBufferMax     = 10 * 1024 * 1024
)

// opNameKeys are span attributes checked, in order, for an operator name.
var opNameKeys = []string{"op_name", "operator", "code.function"}

// ReadOTLPTrace parses a JSONL file of OTLP TracesData documents as written
// by the OpenTelemetry Collector file exporter. Spans carry unix-epoch
// timestamps, so the result is always Epoch.
func ReadOTLPTrace(r io.Reader) (*TraceData, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, jsonlBufferInitial)
	scanner.Buffer(buf, jsonlBufferMax)

	out := &TraceData{Epoch: true}
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var data tracepb.TracesData
		if err := protojson.Unmarshal(line, &data); err != nil {
			return nil, fmt.Errorf("line %d: parse trace JSON: %w", n, err)
		}
		out.Records = append(out.Records, RecordsFromResourceSpans(data.ResourceSpans)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading OTLP trace: %w", err)
	}
	return out, nil
}

// RecordsFromResourceSpans flattens OTLP spans into trace records with
// microsecond epoch ticks.
func RecordsFromResourceSpans(resourceSpans []*tracepb.ResourceSpans) []TraceRecord {
	var out []TraceRecord
	for _, rs := range resourceSpans {
		for _, ss := range rs.GetScopeSpans() {
			scope := ss.GetScope().GetName()
			for _, span := range ss.GetSpans() {
				start := span.GetStartTimeUnixNano()
				end := max(span.GetEndTimeUnixNano(), start)
				out = append(out, TraceRecord{
					Name:      span.GetName(),
					OpName:    opName(span.GetAttributes()),
					Category:  scope,
					TsMicros:  float64(start) / 1e3,
					DurMicros: float64(end-start) / 1e3,
				})
			}
		}
	}
	return out
}

func opName(attrs []*commonpb.KeyValue) string {
	for _, key := range opNameKeys {
		for _, kv := range attrs {
			if kv.GetKey() == key {
				if s := kv.GetValue().GetStringValue(); s != "" {
					return s
				}
			}
		}
	}
	return ""
}
