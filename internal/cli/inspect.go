package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/powerscope/powerscope/internal/session"
	"github.com/powerscope/powerscope/internal/viz"
)

// InspectCommand returns the 'inspect' subcommand, a text view of a run.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print alignment details and text plots of a run",
		ArgsUsage: "<run-dir|powerscope.yaml>",
		Description: `Loads a run, prints how its sources were aligned, then draws every
metric as a character strip over the same time window, followed by the
span waterfall. Use --window to zoom and --at to look up the samples
nearest to a moment.`,
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:  "window",
				Usage: "Visible window in ms as start:end (default: whole run)",
			},
			&cli.FloatFlag{
				Name:  "at",
				Usage: "Print the sample nearest to this time (ms) for every metric",
			},
			&cli.IntFlag{
				Name:  "cols",
				Usage: "Text width in characters",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "rows",
				Usage: "Rows per metric strip",
				Value: 8,
			},
		),
		Action: runInspect,
	}
}

func runInspect(ctx context.Context, cmd *cli.Command) error {
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

	var at *float64
	if cmd.IsSet("at") {
		v := cmd.Float("at")
		at = &v
	}
	return writeInspection(ctx, os.Stdout, s, int(cmd.Int("cols")), int(cmd.Int("rows")), at)
}

func writeInspection(ctx context.Context, w io.Writer, s *session.Session, cols, rows int, at *float64) error {
	snap := s.Snapshot()
	run := snap.Run

	var b strings.Builder
	b.WriteString(viz.RunSummary(viz.StatsFromRun(run)))
	b.WriteString("\n")
	for _, f := range snap.Frames {
		b.WriteString(viz.RenderStrip(viz.StripFromFrame(f), cols, rows))
		b.WriteString("\n")
	}
	if run.TraceOverlay() {
		b.WriteString(viz.Waterfall(viz.RowsFromSpans(run.Spans), snap.Window[0], snap.Window[1], cols))
	}

	if at != nil {
		fmt.Fprintf(&b, "\nNearest samples to %s ms\n", strconv.FormatFloat(*at, 'f', -1, 64))
		for _, key := range run.MetricKeys() {
			smp, idx, err := s.Nearest(ctx, key, *at)
			if err != nil {
				fmt.Fprintf(&b, "  %-12s %v\n", key, err)
				continue
			}
			fmt.Fprintf(&b, "  %-12s #%d at %.1f ms = %g\n", key, idx, float64(smp.Time), smp.Value)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// parseWindow accepts "start:end" or "start,end" in milliseconds.
func parseWindow(s string) (float64, float64, error) {
	sep := ":"
	if !strings.Contains(s, sep) {
		sep = ","
	}
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return 0, 0, fmt.Errorf("invalid window %q (want start:end)", s)
	}
	t0, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window start %q: %w", a, err)
	}
	t1, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window end %q: %w", b, err)
	}
	if !(t1 > t0) {
		return 0, 0, fmt.Errorf("invalid window %q: end must be after start", s)
	}
	return t0, t1, nil
}
