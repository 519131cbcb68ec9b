package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/powerscope/powerscope/internal/align"
	"github.com/powerscope/powerscope/internal/parse"
	"github.com/powerscope/powerscope/internal/timeline"
)

// TraceSource supplies spans captured while the run was recorded, used when
// the manifest names no trace file.
type TraceSource interface {
	TraceSnapshot() *parse.TraceData
}

// Config holds configuration for a Loader.
type Config struct {
	Capture TraceSource
	Verbose bool
}

// Loader reads runs. Every Load takes a new generation number so callers
// can drop results overtaken by a newer load.
type Loader struct {
	capture TraceSource
	verbose bool

	generation atomic.Uint64
}

// Result is one finished load.
type Result struct {
	Generation uint64
	Manifest   *Manifest
	Run        *timeline.Run
	Err        error
	Elapsed    time.Duration
}

// New creates a loader.
func New(cfg Config) *Loader {
	return &Loader{capture: cfg.Capture, verbose: cfg.Verbose}
}

// Generation returns the number of the most recently started load.
func (l *Loader) Generation() uint64 { return l.generation.Load() }

// Stale reports whether a newer load started after res.
func (l *Loader) Stale(res Result) bool {
	return res.Generation != l.generation.Load()
}

// Load reads every source of m concurrently and reconciles them. Any source
// failure fails the whole load; all failures are joined.
func (l *Loader) Load(ctx context.Context, m *Manifest) Result {
	gen := l.generation.Add(1)
	start := time.Now()

	res := Result{Generation: gen, Manifest: m}
	in, err := l.readSources(ctx, m)
	if err == nil {
		res.Run, err = align.Reconcile(in)
	}
	res.Err = err
	res.Elapsed = time.Since(start)

	if err != nil {
		log.Printf("⚠️  Loader: load #%d failed: %v\n", gen, err)
	} else if l.verbose {
		log.Printf("📁 Loader: load #%d: %d samples, %d events, %d spans in %s\n",
			gen, res.Run.SampleCount(), len(res.Run.Events), len(res.Run.Spans), res.Elapsed.Round(time.Millisecond))
	}
	return res
}

type parsed struct {
	telemetry  []parse.TelemetryRecord
	events     []parse.EventRecord
	funcEvents []parse.EventRecord
	trace      *parse.TraceData
	meta       *parse.RunMeta
	combined   *parse.CombinedTable
}

func (l *Loader) readSources(ctx context.Context, m *Manifest) (*align.Input, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		out  parsed
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	entries := m.Entries()
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				fail(&timeline.SourceLoadError{Source: e.Source, Path: e.Path, Err: err})
				return
			}
			if err := readEntry(e, &out); err != nil {
				fail(&timeline.SourceLoadError{Source: e.Source, Path: e.Path, Err: err})
				return
			}
			if l.verbose {
				log.Printf("📁 Loader: read %s from %s\n", e.Source, filepath.Base(e.Path))
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	in := &align.Input{
		Telemetry: out.telemetry,
		Combined:  out.combined,
		Events:    append(out.events, out.funcEvents...),
		Trace:     out.trace,
		Meta:      out.meta,
	}
	for _, e := range entries {
		in.Sources = append(in.Sources, fmt.Sprintf("%s:%s", e.Source, filepath.Base(e.Path)))
	}

	if in.Trace == nil && l.capture != nil {
		if snap := l.capture.TraceSnapshot(); snap != nil && len(snap.Records) > 0 {
			in.Trace = snap
			in.Sources = append(in.Sources, string(timeline.SourceCapture))
		}
	}
	return in, nil
}

// readEntry parses one source into its own slot of out. Each source writes
// a different field, so concurrent calls do not race.
func readEntry(e Entry, out *parsed) error {
	var err error
	switch e.Source {
	case timeline.SourceTelemetry:
		err = withFile(e.Path, func(r io.Reader) (err error) {
			out.telemetry, err = parse.ReadTelemetry(r)
			return err
		})
	case timeline.SourceEvents:
		err = withFile(e.Path, func(r io.Reader) (err error) {
			out.events, err = parse.ReadEvents(r)
			return err
		})
	case timeline.SourceFuncEvents:
		err = withFile(e.Path, func(r io.Reader) (err error) {
			out.funcEvents, err = parse.ReadFuncEvents(r)
			return err
		})
	case timeline.SourceTrace:
		err = withFile(e.Path, func(r io.Reader) (err error) {
			out.trace, err = parse.ReadTrace(r)
			return err
		})
	case timeline.SourceOTLP:
		err = withFile(e.Path, func(r io.Reader) (err error) {
			out.trace, err = parse.ReadOTLPTrace(r)
			return err
		})
	case timeline.SourceMeta:
		err = withFile(e.Path, func(r io.Reader) (err error) {
			out.meta, err = parse.ReadRunMeta(r)
			return err
		})
	case timeline.SourceCombined:
		if strings.EqualFold(filepath.Ext(e.Path), ".parquet") {
			out.combined, err = parse.ReadCombinedParquet(e.Path)
		} else {
			err = withFile(e.Path, func(r io.Reader) (err error) {
				out.combined, err = parse.ReadCombinedCSV(r)
				return err
			})
		}
	default:
		err = fmt.Errorf("unknown source %q", e.Source)
	}
	return err
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
