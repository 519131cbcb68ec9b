package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the runtime configuration for powerscope.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty"`

	// Panel geometry in pixels
	Width       int `json:"width,omitempty"`
	PanelHeight int `json:"panel_height,omitempty"`

	// Zoom limits for the shared viewport
	MinZoom float64 `json:"min_zoom,omitempty"`
	MaxZoom float64 `json:"max_zoom,omitempty"`

	// Maximum span bars drawn per panel
	SpanMarkerLimit int `json:"span_marker_limit,omitempty"`

	// Web viewer
	HTTPHost string `json:"http_host,omitempty"`
	HTTPPort int    `json:"http_port,omitempty"`

	// Live OTLP span capture
	Capture           bool   `json:"capture,omitempty"`
	OTLPHost          string `json:"otlp_host,omitempty"`
	OTLPPort          int    `json:"otlp_port,omitempty"`
	CaptureBufferSize int    `json:"capture_buffer_size,omitempty"`

	// Reload when run files change
	Watch    bool   `json:"watch,omitempty"`
	Debounce string `json:"debounce,omitempty"` // e.g. "250ms"

	// OpenTelemetry Collector config whose file exporter names the trace file
	OtelConfig string `json:"otel_config,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// DefaultConfig returns a Config with the default panel geometry, 1-20x
// zoom, 15 span bars per panel, the web viewer on 127.0.0.1:4390 and an
// ephemeral OTLP port.
func DefaultConfig() *Config {
	return &Config{
		Width:             1090,
		PanelHeight:       160,
		MinZoom:           1,
		MaxZoom:           20,
		SpanMarkerLimit:   15,
		HTTPHost:          "127.0.0.1",
		HTTPPort:          4390,
		Capture:           false,
		OTLPHost:          "127.0.0.1",
		OTLPPort:          0, // 0 means ephemeral port assignment
		CaptureBufferSize: 10_000,
		Watch:             true,
		Debounce:          "250ms",
		Verbose:           false,
	}
}

// Validate rejects settings the viewport or listeners cannot use.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.PanelHeight <= 0 {
		return fmt.Errorf("panel size must be positive, got %dx%d", c.Width, c.PanelHeight)
	}
	if c.MinZoom <= 0 || c.MaxZoom < c.MinZoom {
		return fmt.Errorf("invalid zoom range [%g, %g]", c.MinZoom, c.MaxZoom)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 || c.OTLPPort < 0 || c.OTLPPort > 65535 {
		return fmt.Errorf("ports must be between 0 and 65535")
	}
	if _, err := c.DebounceDuration(); err != nil {
		return err
	}
	return nil
}

// DebounceDuration parses Debounce; empty means the watcher default.
func (c *Config) DebounceDuration() (time.Duration, error) {
	if c.Debounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Debounce)
	if err != nil {
		return 0, fmt.Errorf("invalid debounce %q: %w", c.Debounce, err)
	}
	return d, nil
}

// LoadConfigFromFile loads configuration from a JSON file at the given path.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// FindProjectConfig searches for a .powerscope.json config file, starting in
// the current directory and walking up until it finds one, reaches a
// directory containing .git, or reaches the filesystem root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, ".powerscope.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns ~/.config/powerscope/config.json.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "powerscope", "config.json")
}

// MergeConfigs returns base with every field set in overlay taking precedence.
// Boolean fields can only be switched on by an overlay.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.Width > 0 {
		merged.Width = overlay.Width
	}
	if overlay.PanelHeight > 0 {
		merged.PanelHeight = overlay.PanelHeight
	}
	if overlay.MinZoom > 0 {
		merged.MinZoom = overlay.MinZoom
	}
	if overlay.MaxZoom > 0 {
		merged.MaxZoom = overlay.MaxZoom
	}
	if overlay.SpanMarkerLimit > 0 {
		merged.SpanMarkerLimit = overlay.SpanMarkerLimit
	}

	if overlay.HTTPHost != "" {
		merged.HTTPHost = overlay.HTTPHost
	}
	if overlay.HTTPPort > 0 {
		merged.HTTPPort = overlay.HTTPPort
	}

	if overlay.Capture {
		merged.Capture = overlay.Capture
	}
	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort != 0 {
		merged.OTLPPort = overlay.OTLPPort
	}
	if overlay.CaptureBufferSize > 0 {
		merged.CaptureBufferSize = overlay.CaptureBufferSize
	}

	if overlay.Watch {
		merged.Watch = overlay.Watch
	}
	if overlay.Debounce != "" {
		merged.Debounce = overlay.Debounce
	}
	if overlay.OtelConfig != "" {
		merged.OtelConfig = overlay.OtelConfig
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	return &merged
}

// LoadEffectiveConfig merges, in order of increasing precedence: built-in
// defaults, the global config, then either the project config or the
// explicit configPath.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if globalPath := GlobalConfigPath(); globalPath != "" {
		// The global config is optional.
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}
