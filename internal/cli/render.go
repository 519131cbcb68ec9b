package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/powerscope/powerscope/internal/render"
	"github.com/powerscope/powerscope/internal/session"
)

// RenderCommand returns the 'render' subcommand, which writes panel images
// or the linked HTML report.
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Write panel images (png, svg) or an interactive HTML report",
		ArgsUsage: "<run-dir|powerscope.yaml>",
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "png, svg or html",
				Value: "png",
			},
			&cli.StringFlag{
				Name:  "window",
				Usage: "Visible window in ms as start:end (default: whole run)",
			},
		),
		Action: runRender,
	}
}

func runRender(ctx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := startSession(ctx, cfg, nil)
	if _, err := loadRun(ctx, s, cmd.Args().First(), cfg); err != nil {
		return err
	}
	if w := cmd.String("window"); w != "" {
		t0, t1, err := parseWindow(w)
		if err != nil {
			return err
		}
		if err := s.ZoomToWindow(ctx, t0, t1); err != nil {
			return err
		}
	}

	files, err := writeRender(s.Snapshot(), cmd.String("out"), cmd.String("format"))
	if err != nil {
		return err
	}
	for _, f := range files {
		log.Printf("✅ Wrote %s\n", f)
	}
	return nil
}

// writeRender writes one image per panel, or report.html, into dir.
func writeRender(snap session.Snapshot, dir, format string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if format == "html" {
		path := filepath.Join(dir, "report.html")
		err := writeFile(path, func(f *os.File) error {
			return render.Report(f, snap.Run, snap.Frames)
		})
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	imgFormat, err := render.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, frame := range snap.Frames {
		path := filepath.Join(dir, frame.Metric+"."+string(imgFormat))
		err := writeFile(path, func(f *os.File) error {
			return render.WritePanel(f, frame, imgFormat)
		})
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
