package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// OtelCollectorConfig is the part of an OpenTelemetry Collector config that
// names file exporters.
type OtelCollectorConfig struct {
	Exporters map[string]FileExporter `yaml:"exporters"`
	Service   struct {
		Pipelines map[string]struct {
			Exporters []string `yaml:"exporters"`
		} `yaml:"pipelines"`
	} `yaml:"service"`
}

// FileExporter represents a file exporter configuration.
type FileExporter struct {
	Path string `yaml:"path"`
}

// ParseOtelConfig reads an OpenTelemetry Collector config and returns the
// path of the file exporter that receives traces. An exporter used by a
// traces pipeline wins; otherwise the first file exporter (by name) is used.
func ParseOtelConfig(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read otel config: %w", err)
	}

	var config OtelCollectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return "", fmt.Errorf("failed to parse otel config: %w", err)
	}

	var names []string
	for name, exporter := range config.Exporters {
		if strings.HasPrefix(name, "file") && exporter.Path != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no file exporter in %s", configPath)
	}
	sort.Strings(names)

	var pipelines []string
	for pipeline := range config.Service.Pipelines {
		if pipeline == "traces" || strings.HasPrefix(pipeline, "traces/") {
			pipelines = append(pipelines, pipeline)
		}
	}
	sort.Strings(pipelines)
	for _, pipeline := range pipelines {
		for _, name := range config.Service.Pipelines[pipeline].Exporters {
			if exp, ok := config.Exporters[name]; ok && strings.HasPrefix(name, "file") && exp.Path != "" {
				return exp.Path, nil
			}
		}
	}
	return config.Exporters[names[0]].Path, nil
}
