package parse

import (
	"encoding/json"
	"fmt"
	"io"
)

// FuncWindow is one function execution window from func_events.json.
type FuncWindow struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// ReadFuncEvents parses a JSON array of {name?, start, end} windows and
// expands each into a start and an end event.
func ReadFuncEvents(r io.Reader) ([]EventRecord, error) {
	var windows []FuncWindow
	if err := json.NewDecoder(r).Decode(&windows); err != nil {
		return nil, fmt.Errorf("parse function events: %w", err)
	}

	out := make([]EventRecord, 0, 2*len(windows))
	for i, w := range windows {
		start, err := ParseTimestamp(w.Start)
		if err != nil {
			return nil, fmt.Errorf("window %d start: %w", i, err)
		}
		end, err := ParseTimestamp(w.End)
		if err != nil {
			return nil, fmt.Errorf("window %d end: %w", i, err)
		}
		name := w.Name
		if name == "" {
			name = "function"
		}
		out = append(out,
			EventRecord{At: start, Label: name + "_start"},
			EventRecord{At: end, Label: name + "_end"},
		)
	}
	return out, nil
}
