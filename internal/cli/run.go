package cli

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/powerscope/powerscope/internal/capture"
	"github.com/powerscope/powerscope/internal/loader"
	"github.com/powerscope/powerscope/internal/session"
)

// configFlags are shared by every command that opens a run.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file (default: project .powerscope.json, then ~/.config/powerscope/config.json)",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Panel plot width in pixels",
		},
		&cli.IntFlag{
			Name:  "panel-height",
			Usage: "Panel plot height in pixels",
		},
		&cli.FloatFlag{
			Name:  "max-zoom",
			Usage: "Maximum zoom factor",
		},
		&cli.IntFlag{
			Name:  "span-limit",
			Usage: "Maximum span bars drawn per panel",
		},
		&cli.StringFlag{
			Name:  "otel-config",
			Usage: "OpenTelemetry Collector config whose file exporter holds the run's traces",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
	}
}

// resolveConfig layers explicitly set flags over the effective config files.
func resolveConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	flags := &Config{}
	if cmd.IsSet("width") {
		flags.Width = int(cmd.Int("width"))
	}
	if cmd.IsSet("panel-height") {
		flags.PanelHeight = int(cmd.Int("panel-height"))
	}
	if cmd.IsSet("max-zoom") {
		flags.MaxZoom = cmd.Float("max-zoom")
	}
	if cmd.IsSet("span-limit") {
		flags.SpanMarkerLimit = int(cmd.Int("span-limit"))
	}
	if cmd.IsSet("otel-config") {
		flags.OtelConfig = cmd.String("otel-config")
	}
	flags.Verbose = cmd.Bool("verbose")
	cfg = MergeConfigs(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openRun reads the manifest for path, a run directory or a powerscope.yaml.
// A Collector file exporter fills in the trace source when the run names none.
func openRun(path string, cfg *Config) (*loader.Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("a run directory or manifest is required")
	}
	m, err := loader.Open(path)
	if err != nil {
		return nil, err
	}

	if cfg.OtelConfig != "" && m.Trace == "" && m.OTLPTrace == "" {
		tracePath, err := ParseOtelConfig(cfg.OtelConfig)
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(tracePath) {
			tracePath = filepath.Join(filepath.Dir(cfg.OtelConfig), tracePath)
		}
		if abs, err := filepath.Abs(tracePath); err == nil {
			tracePath = abs
		}
		m.CollectorTrace = tracePath
		if cfg.Verbose {
			log.Printf("📁 Using collector trace file %s\n", tracePath)
		}
	}
	return m, nil
}

func sessionConfig(cfg *Config) session.Config {
	return session.Config{
		Width:       float64(cfg.Width),
		PanelHeight: float64(cfg.PanelHeight),
		MinZoom:     cfg.MinZoom,
		MaxZoom:     cfg.MaxZoom,
		SpanLimit:   cfg.SpanMarkerLimit,
		Verbose:     cfg.Verbose,
	}
}

// startSession runs a session event loop until ctx is done. store may be nil.
func startSession(ctx context.Context, cfg *Config, store *capture.Store) *session.Session {
	var src loader.TraceSource
	if store != nil {
		src = store
	}
	l := loader.New(loader.Config{Capture: src, Verbose: cfg.Verbose})
	s := session.New(sessionConfig(cfg), l)
	go s.Run(ctx)
	return s
}

// loadRun opens and loads path into s.
func loadRun(ctx context.Context, s *session.Session, path string, cfg *Config) (*loader.Manifest, error) {
	m, err := openRun(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	snap := s.Snapshot()
	if snap.AlignError != "" {
		log.Printf("⚠️  Trace overlay disabled: %s\n", snap.AlignError)
	}
	if cfg.Verbose {
		log.Printf("✅ Loaded %s: %d metrics, %d events (%s alignment)\n",
			path, len(snap.Run.Metrics), len(snap.Run.Events), snap.Alignment.Mode)
	}
	return m, nil
}

// startCapture starts the OTLP receiver in the background.
func startCapture(ctx context.Context, cfg *Config) (*capture.Store, *capture.Server, error) {
	store := capture.NewStore(cfg.CaptureBufferSize, cfg.Verbose)
	server, err := capture.NewServer(capture.Config{Host: cfg.OTLPHost, Port: cfg.OTLPPort}, store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP server: %w", err)
	}
	go func() {
		if err := server.Start(ctx); err != nil {
			log.Printf("⚠️  OTLP server stopped: %v\n", err)
		}
	}()
	log.Printf("🌐 OTLP gRPC server listening on %s\n", server.Endpoint())
	if cfg.Verbose {
		log.Printf("   Traced programs can export with: OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", server.Endpoint())
	}
	return store, server, nil
}

// reloadOnCapture reloads s once spans stop arriving for a debounce
// interval, until ctx is done.
func reloadOnCapture(ctx context.Context, s *session.Session, store *capture.Store, debounce time.Duration) {
	if debounce <= 0 {
		debounce = loader.DefaultDebounce
	}
	notify, unsubscribe := store.Subscribe()
	go func() {
		defer unsubscribe()
		timer := time.NewTimer(debounce)
		timer.Stop()
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
				timer.Reset(debounce)
			case <-timer.C:
				s.ReloadAsync(ctx)
			}
		}
	}()
}
