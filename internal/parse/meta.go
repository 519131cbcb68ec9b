package parse

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// RunMeta is the optional run-metadata record.
type RunMeta struct {
	StartTime    Timestamp
	HasStartTime bool
	Model        string
}

type runMetaJSON struct {
	StartTime   json.RawMessage `json:"start_time"`
	StartTimeMs *float64        `json:"start_time_ms"`
	Model       string          `json:"model"`
}

// ReadRunMeta parses {"start_time": "<timestamp>"} or
// {"start_time_ms": <unix ms>}. A numeric start_time is read like any other
// numeric timestamp.
func ReadRunMeta(r io.Reader) (*RunMeta, error) {
	var raw runMetaJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse run metadata: %w", err)
	}

	meta := &RunMeta{Model: raw.Model}
	switch {
	case raw.StartTimeMs != nil:
		meta.StartTime = Timestamp{Time: FromMillis(*raw.StartTimeMs), Dated: true}
		meta.HasStartTime = true
	case len(raw.StartTime) > 0 && string(raw.StartTime) != "null":
		var s string
		if err := json.Unmarshal(raw.StartTime, &s); err != nil {
			var f float64
			if err := json.Unmarshal(raw.StartTime, &f); err != nil {
				return nil, fmt.Errorf("start_time must be a string or number")
			}
			s = strconv.FormatFloat(f, 'f', -1, 64)
		}
		ts, err := ParseTimestamp(s)
		if err != nil {
			return nil, fmt.Errorf("start_time: %w", err)
		}
		meta.StartTime = ts
		meta.HasStartTime = true
	}
	return meta, nil
}
