package parse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// Power logs can carry long trailing fields; match the JSONL reader's
	// generous line limits.
	lineBufferInitial = 64 * 1024
	lineBufferMax     = 4 * 1024 * 1024

	microwattsPerWatt = 1e6
)

// TelemetryRecord is one power reading.
type TelemetryRecord struct {
	At    Timestamp
	Watts float64
}

// EventRecord is one labelled marker.
type EventRecord struct {
	At    Timestamp
	Label string
}

// ReadTelemetry parses "<timestamp>: <microwatts>" lines. Blank lines and
// lines starting with '#' are skipped; anything else that does not parse is
// an error naming the line.
func ReadTelemetry(r io.Reader) ([]TelemetryRecord, error) {
	var out []TelemetryRecord
	var days dayRoller
	err := scanLines(r, func(n int, ts, rest string) error {
		at, err := ParseTimestamp(ts)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		at = days.roll(at)
		uw, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid reading %q", n, rest)
		}
		out = append(out, TelemetryRecord{At: at, Watts: uw / microwattsPerWatt})
		return nil
	})
	return out, err
}

// ReadEvents parses "<timestamp>: <label>" lines.
func ReadEvents(r io.Reader) ([]EventRecord, error) {
	var out []EventRecord
	var days dayRoller
	err := scanLines(r, func(n int, ts, rest string) error {
		at, err := ParseTimestamp(ts)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		at = days.roll(at)
		if rest == "" {
			return fmt.Errorf("line %d: empty event label", n)
		}
		out = append(out, EventRecord{At: at, Label: rest})
		return nil
	})
	return out, err
}

func scanLines(r io.Reader, handle func(n int, ts, rest string) error) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, lineBufferInitial)
	scanner.Buffer(buf, lineBufferMax)

	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ts, rest, ok := splitLine(line)
		if !ok {
			return fmt.Errorf("line %d: missing \": \" separator", n)
		}
		if err := handle(n, ts, rest); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading lines: %w", err)
	}
	return nil
}
