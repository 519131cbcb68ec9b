package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// CombinedColumns are the metric columns of the combined table, in display
// order. Extra numeric CSV columns are appended after these.
var CombinedColumns = []string{"cpu", "memory", "energy_joules", "temperature"}

const timestampColumn = "timestamp"

// CombinedTable is a multi-metric table with one row per sampling tick.
// Missing or non-numeric cells are NaN.
type CombinedTable struct {
	Columns []string
	Rows    []CombinedRow
}

// CombinedRow is one sampling tick.
type CombinedRow struct {
	At     Timestamp
	Values []float64
}

// Column returns the index of a metric column or -1.
func (t *CombinedTable) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ReadCombinedCSV parses a CSV table with a header row. The timestamp column
// is required; every other column is treated as a numeric metric.
func ReadCombinedCSV(r io.Reader) (*CombinedTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("combined table is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	tsIdx := -1
	var metricIdx []int
	table := &CombinedTable{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == timestampColumn {
			tsIdx = i
			continue
		}
		if name == "" {
			continue
		}
		metricIdx = append(metricIdx, i)
		table.Columns = append(table.Columns, name)
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("combined table has no %q column", timestampColumn)
	}

	line := 1
	var days dayRoller
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if tsIdx >= len(rec) || strings.TrimSpace(rec[tsIdx]) == "" {
			continue
		}
		at, err := ParseTimestamp(rec[tsIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		at = days.roll(at)
		row := CombinedRow{At: at, Values: make([]float64, len(metricIdx))}
		for j, idx := range metricIdx {
			row.Values[j] = math.NaN()
			if idx < len(rec) {
				if v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64); err == nil {
					row.Values[j] = v
				}
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// CombinedParquetRow is the Parquet layout of the combined table. Either
// timestamp (string) or timestamp_ms (unix milliseconds) must be set.
type CombinedParquetRow struct {
	Timestamp    string  `parquet:"timestamp,optional"`
	TimestampMs  int64   `parquet:"timestamp_ms,optional"`
	CPU          float64 `parquet:"cpu,optional"`
	Memory       float64 `parquet:"memory,optional"`
	EnergyJoules float64 `parquet:"energy_joules,optional"`
	Temperature  float64 `parquet:"temperature,optional"`
}

// ReadCombinedParquet reads the combined table from a Parquet file.
func ReadCombinedParquet(path string) (*CombinedTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat Parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	table := &CombinedTable{Columns: append([]string(nil), CombinedColumns...)}
	var days dayRoller
	for n := 1; ; n++ {
		var row CombinedParquetRow
		if err := reader.Read(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("row %d: %w", n, err)
		}

		var at Timestamp
		switch {
		case row.Timestamp != "":
			at, err = ParseTimestamp(row.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", n, err)
			}
			at = days.roll(at)
		case row.TimestampMs != 0:
			at = Timestamp{Time: FromMillis(float64(row.TimestampMs)), Dated: true}
		default:
			continue
		}
		table.Rows = append(table.Rows, CombinedRow{
			At:     at,
			Values: []float64{row.CPU, row.Memory, row.EnergyJoules, row.Temperature},
		})
	}
	return table, nil
}
