package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// TraceRecord is one execution span in trace-native units (microseconds).
type TraceRecord struct {
	Name      string
	OpName    string
	Category  string
	TsMicros  float64
	DurMicros float64
}

// EndMicros is the span end tick.
func (r TraceRecord) EndMicros() float64 { return r.TsMicros + r.DurMicros }

// TraceData is a parsed trace source. Epoch is true when the ticks are unix
// microseconds rather than offsets from an unknown trace start.
type TraceData struct {
	Records []TraceRecord
	Epoch   bool
}

// Only complete events in the Node category are execution spans.
const (
	phaseComplete = "X"
	categoryNode  = "Node"
)

type traceEvent struct {
	Ph   string  `json:"ph"`
	Cat  string  `json:"cat"`
	Name string  `json:"name"`
	Ts   float64 `json:"ts"`
	Dur  float64 `json:"dur"`
	Args struct {
		OpName string `json:"op_name"`
	} `json:"args"`
}

type traceFile struct {
	TraceEvents []traceEvent `json:"traceEvents"`
}

// ReadTrace parses a Chrome trace-event JSON document, either a bare array
// or an object with a traceEvents array, keeping only Node spans.
func ReadTrace(r io.Reader) (*TraceData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty trace document")
	}

	var events []traceEvent
	if data[0] == '[' {
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parse trace array: %w", err)
		}
	} else {
		var f traceFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse trace object: %w", err)
		}
		events = f.TraceEvents
	}

	out := &TraceData{}
	for _, ev := range events {
		if ev.Ph != phaseComplete || ev.Cat != categoryNode {
			continue
		}
		out.Records = append(out.Records, TraceRecord{
			Name:      ev.Name,
			OpName:    ev.Args.OpName,
			Category:  ev.Cat,
			TsMicros:  ev.Ts,
			DurMicros: max(ev.Dur, 0),
		})
	}
	return out, nil
}
