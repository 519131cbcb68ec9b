package cli

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/powerscope/powerscope/internal/capture"
	"github.com/powerscope/powerscope/internal/loader"
	"github.com/powerscope/powerscope/internal/session"
	"github.com/powerscope/powerscope/internal/webui"
)

// captureFlags configure the live OTLP receiver.
func captureFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "capture",
			Usage: "Accept OTLP/gRPC trace exports and use them when the run has no trace file",
		},
		&cli.StringFlag{
			Name:  "otlp-host",
			Usage: "OTLP server bind address",
		},
		&cli.IntFlag{
			Name:  "otlp-port",
			Usage: "OTLP server port (0 for ephemeral)",
		},
		&cli.IntFlag{
			Name:  "capture-buffer-size",
			Usage: "Number of captured spans to keep",
		},
	}
}

func applyCaptureFlags(cmd *cli.Command, cfg *Config) {
	if cmd.IsSet("capture") {
		cfg.Capture = cmd.Bool("capture")
	}
	if cmd.IsSet("otlp-host") {
		cfg.OTLPHost = cmd.String("otlp-host")
	}
	if cmd.IsSet("otlp-port") {
		cfg.OTLPPort = int(cmd.Int("otlp-port"))
	}
	if cmd.IsSet("capture-buffer-size") {
		cfg.CaptureBufferSize = int(cmd.Int("capture-buffer-size"))
	}
}

// ServeCommand returns the 'serve' subcommand, the interactive web viewer.
func ServeCommand() *cli.Command {
	flags := append(configFlags(), captureFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "http-host",
			Usage: "Web viewer bind address",
		},
		&cli.IntFlag{
			Name:  "http-port",
			Usage: "Web viewer port",
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "Reload when run files change",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "debounce",
			Usage: "Quiet period before a file change triggers a reload",
		},
	)

	return &cli.Command{
		Name:      "serve",
		Usage:     "Serve the synchronized panel viewer",
		ArgsUsage: "<run-dir|powerscope.yaml>",
		Description: `Loads a run and serves the web viewer. Zooming or panning one panel
moves every panel; hovering shows the nearest sample. Run files are
watched and reloaded; a failed reload keeps the previous run on screen.`,
		Flags:  flags,
		Action: runServe,
	}
}

func runServe(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	applyCaptureFlags(cmd, cfg)
	if cmd.IsSet("http-host") {
		cfg.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		cfg.HTTPPort = int(cmd.Int("http-port"))
	}
	if cmd.IsSet("watch") {
		cfg.Watch = cmd.Bool("watch")
	}
	if cmd.IsSet("debounce") {
		cfg.Debounce = cmd.String("debounce")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Verbose {
		log.Println("🔧 Configuration:")
		log.Printf("  Panels: %dx%d px, zoom %g-%gx, %d span bars\n",
			cfg.Width, cfg.PanelHeight, cfg.MinZoom, cfg.MaxZoom, cfg.SpanMarkerLimit)
		log.Printf("  Web viewer: %s:%d\n", cfg.HTTPHost, cfg.HTTPPort)
		if cfg.Capture {
			log.Printf("  OTLP bind: %s:%d (%d spans)\n", cfg.OTLPHost, cfg.OTLPPort, cfg.CaptureBufferSize)
		}
		log.Println()
	}

	ctx, stop := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *capture.Store
	if cfg.Capture {
		var server *capture.Server
		store, server, err = startCapture(ctx, cfg)
		if err != nil {
			return err
		}
		defer server.Stop()
	}

	s := startSession(ctx, cfg, store)
	m, err := loadRun(ctx, s, cmd.Args().First(), cfg)
	if err != nil {
		return err
	}

	debounce, _ := cfg.DebounceDuration()
	if cfg.Watch {
		w, err := watchRun(ctx, s, m, debounce, cfg.Verbose)
		if err != nil {
			return err
		}
		defer w.Stop()
	}
	if store != nil {
		reloadOnCapture(ctx, s, store, debounce)
	}

	addr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
	log.Printf("🌐 Viewer on http://%s/ui/\n", addr)

	if err := webui.New(s, store, cfg.Verbose).ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("web viewer error: %w", err)
	}
	if cfg.Verbose {
		log.Println("📡 Shutting down")
	}
	return nil
}

// watchRun reloads s whenever a file of m changes.
func watchRun(ctx context.Context, s *session.Session, m *loader.Manifest, debounce time.Duration, verbose bool) (*loader.Watcher, error) {
	w, err := loader.NewWatcher(m, func() { s.ReloadAsync(ctx) }, loader.WatchConfig{
		Debounce: debounce,
		Verbose:  verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch run files: %w", err)
	}
	w.Start(ctx)
	return w, nil
}
