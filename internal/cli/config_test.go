package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	d, err := cfg.DebounceDuration()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, "panel size"},
		{"inverted zoom", func(c *Config) { c.MinZoom, c.MaxZoom = 4, 2 }, "zoom range"},
		{"bad port", func(c *Config) { c.HTTPPort = 70000 }, "ports"},
		{"bad debounce", func(c *Config) { c.Debounce = "soon" }, "debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "comment": "wide panels for the lab monitor",
  "width": 1600,
  "max_zoom": 50,
  "capture": true,
  "debounce": "1s"
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1600, cfg.Width)
	assert.Equal(t, 50.0, cfg.MaxZoom)
	assert.True(t, cfg.Capture)
	assert.Equal(t, "1s", cfg.Debounce)

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadConfigFromFile(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestMergeConfigs(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{
		PanelHeight: 240,
		HTTPPort:    8080,
		OTLPPort:    4317,
		OtelConfig:  "collector.yaml",
		Verbose:     true,
	}

	merged := MergeConfigs(base, overlay)
	assert.Equal(t, 1090, merged.Width, "unset fields keep the base value")
	assert.Equal(t, 240, merged.PanelHeight)
	assert.Equal(t, 8080, merged.HTTPPort)
	assert.Equal(t, 4317, merged.OTLPPort)
	assert.Equal(t, "collector.yaml", merged.OtelConfig)
	assert.True(t, merged.Verbose)
	assert.True(t, merged.Watch)

	assert.Equal(t, 160, base.PanelHeight, "base is not modified")
	assert.Same(t, base, MergeConfigs(base, nil))
	assert.Equal(t, 240, MergeConfigs(nil, overlay).PanelHeight)
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "runs", "resnet")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	_, err := FindProjectConfig()
	assert.ErrorIs(t, err, os.ErrNotExist)

	want := filepath.Join(root, ".powerscope.json")
	require.NoError(t, os.WriteFile(want, []byte(`{"width": 900}`), 0o644))
	got, err := FindProjectConfig()
	require.NoError(t, err)
	gotReal, _ := filepath.EvalSymlinks(got)
	wantReal, _ := filepath.EvalSymlinks(want)
	assert.Equal(t, wantReal, gotReal)
}

func TestLoadEffectiveConfigExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explicit.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"span_marker_limit": 40}`), 0o644))

	cfg, err := LoadEffectiveConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.SpanMarkerLimit)

	_, err = LoadEffectiveConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to load config file")
}
