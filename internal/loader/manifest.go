// Package loader finds a run's source files, reads them concurrently and
// hands the joined result to the clock reconciler.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/powerscope/powerscope/internal/timeline"
)

// ManifestName is the run manifest looked for in a run directory.
const ManifestName = "powerscope.yaml"

// ErrNoSources is returned when a directory holds no known source file.
var ErrNoSources = errors.New("no run sources found")

// Manifest names the files of one run. Relative paths resolve against Dir.
type Manifest struct {
	Dir string `yaml:"-"`
	// Path is the manifest file the fields were read from, if any.
	Path string `yaml:"-"`
	// CollectorTrace is an OTLP JSONL file named outside the run, by a
	// Collector file exporter. It is read when the run names no trace.
	CollectorTrace string `yaml:"-"`

	Name       string `yaml:"name,omitempty"`
	Telemetry  string `yaml:"telemetry,omitempty"`
	Events     string `yaml:"events,omitempty"`
	Trace      string `yaml:"trace,omitempty"`
	OTLPTrace  string `yaml:"otlp_trace,omitempty"`
	Meta       string `yaml:"meta,omitempty"`
	Combined   string `yaml:"combined,omitempty"`
	FuncEvents string `yaml:"func_events,omitempty"`
}

// Entry is one configured source with its resolved path.
type Entry struct {
	Source timeline.Source
	Path   string
}

// conventional file names, in discovery order. The first combined table
// found wins.
var conventional = []struct {
	source timeline.Source
	name   string
}{
	{timeline.SourceTelemetry, "energy_log.txt"},
	{timeline.SourceEvents, "event_log.txt"},
	{timeline.SourceTrace, "model_profile.json"},
	{timeline.SourceOTLP, "traces.jsonl"},
	{timeline.SourceMeta, "run_meta.json"},
	{timeline.SourceCombined, "combined.csv"},
	{timeline.SourceCombined, "combined.parquet"},
	{timeline.SourceFuncEvents, "func_events.json"},
}

// ReadManifestFile parses a YAML manifest. Dir is set to the file's directory.
func ReadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	m.Path = path
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// Discover builds the manifest for a run directory: powerscope.yaml when
// present, otherwise whichever conventional file names exist.
func Discover(dir string) (*Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access run directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	manifestPath := filepath.Join(dir, ManifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		return ReadManifestFile(manifestPath)
	}

	m := &Manifest{Dir: dir}
	for _, c := range conventional {
		if _, err := os.Stat(filepath.Join(dir, c.name)); err != nil {
			continue
		}
		if c.source == timeline.SourceOTLP && m.Trace != "" {
			continue
		}
		field := m.field(c.source)
		if *field == "" {
			*field = c.name
		}
	}
	if len(m.Entries()) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSources)
	}
	return m, nil
}

// Open accepts a run directory or a manifest file.
func Open(path string) (*Manifest, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return ReadManifestFile(path)
	}
	return Discover(path)
}

// Refresh re-reads the manifest file m came from. A discovered run is
// re-read only once a manifest file has appeared in its directory; until
// then m is returned as is. CollectorTrace carries over.
func (m *Manifest) Refresh() (*Manifest, error) {
	path := m.Path
	if path == "" && m.Dir != "" {
		candidate := filepath.Join(m.Dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path == "" {
		return m, nil
	}
	fresh, err := ReadManifestFile(path)
	if err != nil {
		return nil, err
	}
	fresh.CollectorTrace = m.CollectorTrace
	return fresh, nil
}

// Validate rejects manifests that cannot be loaded.
func (m *Manifest) Validate() error {
	if m.Trace != "" && m.OTLPTrace != "" {
		return errors.New("trace and otlp_trace are mutually exclusive")
	}
	if len(m.Entries()) == 0 {
		return ErrNoSources
	}
	return nil
}

// Entries lists the configured sources with resolved paths.
func (m *Manifest) Entries() []Entry {
	var out []Entry
	for _, src := range []timeline.Source{
		timeline.SourceTelemetry,
		timeline.SourceEvents,
		timeline.SourceTrace,
		timeline.SourceOTLP,
		timeline.SourceMeta,
		timeline.SourceCombined,
		timeline.SourceFuncEvents,
	} {
		p := *m.field(src)
		if src == timeline.SourceOTLP && p == "" && m.Trace == "" {
			p = m.CollectorTrace
		}
		if p != "" {
			out = append(out, Entry{Source: src, Path: m.resolve(p)})
		}
	}
	return out
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

func (m *Manifest) field(src timeline.Source) *string {
	switch src {
	case timeline.SourceTelemetry:
		return &m.Telemetry
	case timeline.SourceEvents:
		return &m.Events
	case timeline.SourceTrace:
		return &m.Trace
	case timeline.SourceOTLP:
		return &m.OTLPTrace
	case timeline.SourceMeta:
		return &m.Meta
	case timeline.SourceCombined:
		return &m.Combined
	case timeline.SourceFuncEvents:
		return &m.FuncEvents
	}
	panic(fmt.Sprintf("loader: no manifest field for source %q", src))
}
