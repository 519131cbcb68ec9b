package timeline

import "fmt"

// Source identifies one input stream of a run.
type Source string

const (
	SourceTelemetry  Source = "telemetry"
	SourceEvents     Source = "events"
	SourceTrace      Source = "trace"
	SourceMeta       Source = "meta"
	SourceCombined   Source = "combined"
	SourceFuncEvents Source = "func-events"
	SourceOTLP       Source = "otlp"
	SourceCapture    Source = "capture"
)

// SourceLoadError means a required source could not be read or parsed.
// It is fatal for the run being loaded.
type SourceLoadError struct {
	Source Source
	Path   string
	Err    error
}

func (e *SourceLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load %s source: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("load %s source %s: %v", e.Source, e.Path, e.Err)
}

func (e *SourceLoadError) Unwrap() error { return e.Err }

// AlignmentError means spans could not be placed on the shared axis.
// Only the trace overlay is disabled.
type AlignmentError struct {
	Reason string
}

func (e *AlignmentError) Error() string {
	return "align trace: " + e.Reason
}

// EmptySeriesError means a metric has no samples. The panel still renders
// an empty axis.
type EmptySeriesError struct {
	Metric string
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("metric %q has no samples", e.Metric)
}
