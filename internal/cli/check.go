package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/powerscope/powerscope/internal/loader"
	"github.com/powerscope/powerscope/internal/timeline"
)

// CheckCommand returns the 'check' subcommand, which diagnoses a run and the
// local setup without starting any server.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Diagnose run files, alignment and configuration",
		ArgsUsage: "<run-dir|powerscope.yaml>",
		Description: `Runs every check and reports each one:
  - Effective configuration
  - Run manifest and source discovery
  - Parsing of every source
  - Alignment mode and confidence
  - Empty metrics
  - MCP agent configuration (optional)

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config file to check instead of the project/global files",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCheck(ctx, os.Stdout, cmd.Args().First(), cmd.String("config"), &realFsUtils{})
		},
	}
}

type checkResult struct {
	Name       string
	Status     string // "pass", "warn", "fail"
	Message    string
	Suggestion string
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }

// checkEnv carries what earlier checks found to later ones.
type checkEnv struct {
	utils      fsUtils
	runPath    string
	configPath string

	cfg      *Config
	manifest *loader.Manifest
	load     *loader.Result
}

type checkFunc func(ctx context.Context, env *checkEnv) checkResult

func runCheck(ctx context.Context, w io.Writer, runPath, configPath string, utils fsUtils) error {
	fmt.Fprintf(w, "🔍 powerscope check %s\n\n", runPath)

	env := &checkEnv{utils: utils, runPath: runPath, configPath: configPath}
	checks := []checkFunc{
		checkConfig,
		checkManifest,
		checkSources,
		checkAlignment,
		checkMetrics,
		checkMCPConfig,
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		result := check(ctx, env)
		results = append(results, result)
		printCheckResult(w, result)
	}

	fmt.Fprintln(w)
	summary := summarizeResults(results)
	printSummary(w, summary)

	if summary.FailCount > 0 {
		return fmt.Errorf("found %d issues that need attention", summary.FailCount)
	}
	return nil
}

func printCheckResult(w io.Writer, result checkResult) {
	var icon string
	switch result.Status {
	case "pass":
		icon = "✓"
	case "warn":
		icon = "⚠"
	case "fail":
		icon = "✗"
	}

	fmt.Fprintf(w, "%s %s\n", icon, result.Message)
	if result.Suggestion != "" {
		fmt.Fprintf(w, "  %s\n", result.Suggestion)
	}
}

type resultSummary struct {
	PassCount int
	WarnCount int
	FailCount int
}

func summarizeResults(results []checkResult) resultSummary {
	var summary resultSummary
	for _, r := range results {
		switch r.Status {
		case "pass":
			summary.PassCount++
		case "warn":
			summary.WarnCount++
		case "fail":
			summary.FailCount++
		}
	}
	return summary
}

func printSummary(w io.Writer, summary resultSummary) {
	switch {
	case summary.FailCount > 0:
		fmt.Fprintf(w, "❌ Found %d issue(s) that need attention\n", summary.FailCount)
		if summary.WarnCount > 0 {
			fmt.Fprintf(w, "⚠️  %d warning(s)\n", summary.WarnCount)
		}
	case summary.WarnCount > 0:
		fmt.Fprintf(w, "✅ All critical checks passed!\n")
		fmt.Fprintf(w, "⚠️  %d warning(s)\n", summary.WarnCount)
		fmt.Fprintf(w, "💡 Run 'powerscope serve <run>' to open the viewer\n")
	default:
		fmt.Fprintf(w, "✅ All checks passed!\n")
		fmt.Fprintf(w, "💡 Run 'powerscope serve <run>' to open the viewer\n")
	}
}

// Check 1: effective configuration
func checkConfig(ctx context.Context, env *checkEnv) checkResult {
	cfg, err := LoadEffectiveConfig(env.configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return checkResult{
			Name:       "config",
			Status:     "fail",
			Message:    "Configuration is invalid",
			Suggestion: err.Error(),
		}
	}
	env.cfg = cfg
	return checkResult{
		Name:    "config",
		Status:  "pass",
		Message: fmt.Sprintf("Configuration OK (%dx%d px panels, zoom %g-%gx)", cfg.Width, cfg.PanelHeight, cfg.MinZoom, cfg.MaxZoom),
	}
}

// Check 2: manifest and discovery
func checkManifest(ctx context.Context, env *checkEnv) checkResult {
	if env.runPath == "" {
		return checkResult{
			Name:       "manifest",
			Status:     "fail",
			Message:    "No run given",
			Suggestion: "Usage: powerscope check <run-dir|powerscope.yaml>",
		}
	}
	cfg := env.cfg
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m, err := openRun(env.runPath, cfg)
	if err == nil {
		err = m.Validate()
	}
	if err != nil {
		suggestion := err.Error()
		if errors.Is(err, loader.ErrNoSources) {
			suggestion = fmt.Sprintf("Expected energy_log.txt, event_log.txt, model_profile.json, combined.csv, ... or a %s naming them", loader.ManifestName)
		}
		return checkResult{
			Name:       "manifest",
			Status:     "fail",
			Message:    fmt.Sprintf("Could not open run %s", env.runPath),
			Suggestion: suggestion,
		}
	}
	env.manifest = m

	var names []string
	for _, e := range m.Entries() {
		names = append(names, fmt.Sprintf("%s=%s", e.Source, filepath.Base(e.Path)))
	}
	return checkResult{
		Name:    "manifest",
		Status:  "pass",
		Message: fmt.Sprintf("Sources: %s", strings.Join(names, ", ")),
	}
}

// Check 3: every source parses
func checkSources(ctx context.Context, env *checkEnv) checkResult {
	if env.manifest == nil {
		return checkResult{Name: "sources", Status: "warn", Message: "Source parsing skipped (no manifest)"}
	}
	res := loader.New(loader.Config{}).Load(ctx, env.manifest)
	if res.Err != nil {
		return checkResult{
			Name:       "sources",
			Status:     "fail",
			Message:    "Run failed to load",
			Suggestion: describeLoadError(res.Err),
		}
	}
	env.load = &res
	return checkResult{
		Name:    "sources",
		Status:  "pass",
		Message: fmt.Sprintf("Parsed %d samples, %d events, %d spans in %s", res.Run.SampleCount(), len(res.Run.Events), len(res.Run.Spans), res.Elapsed.Round(time.Millisecond)),
	}
}

// describeLoadError lists each failed source on its own line.
func describeLoadError(err error) string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err.Error()
	}
	var lines []string
	for _, e := range joined.Unwrap() {
		var sle *timeline.SourceLoadError
		if errors.As(e, &sle) {
			lines = append(lines, fmt.Sprintf("%s (%s): %v", sle.Source, filepath.Base(sle.Path), sle.Err))
		} else {
			lines = append(lines, e.Error())
		}
	}
	return strings.Join(lines, "\n  ")
}

// Check 4: alignment quality
func checkAlignment(ctx context.Context, env *checkEnv) checkResult {
	if env.load == nil {
		return checkResult{Name: "alignment", Status: "warn", Message: "Alignment skipped (run did not load)"}
	}
	run := env.load.Run
	a := run.Alignment
	switch {
	case a.Err != nil:
		return checkResult{
			Name:       "alignment",
			Status:     "warn",
			Message:    "Trace overlay disabled",
			Suggestion: a.Err.Error(),
		}
	case a.Mode == timeline.ModeNone:
		return checkResult{
			Name:    "alignment",
			Status:  "pass",
			Message: fmt.Sprintf("No trace source; origin from %s", a.OriginSource),
		}
	case a.Approximate():
		return checkResult{
			Name:       "alignment",
			Status:     "warn",
			Message:    fmt.Sprintf("Spans placed proportionally (approximate); origin from %s", a.OriginSource),
			Suggestion: `Record the run start for exact placement: run_meta.json {"start_time": "..."}`,
		}
	default:
		return checkResult{
			Name:    "alignment",
			Status:  "pass",
			Message: fmt.Sprintf("Spans aligned %s (%s); origin from %s", a.Mode, a.Confidence, a.OriginSource),
		}
	}
}

// Check 5: empty metrics
func checkMetrics(ctx context.Context, env *checkEnv) checkResult {
	if env.load == nil {
		return checkResult{Name: "metrics", Status: "warn", Message: "Metric check skipped (run did not load)"}
	}
	var empty []string
	for _, s := range env.load.Run.Metrics {
		if len(s.Samples) == 0 {
			empty = append(empty, s.Key)
		}
	}
	if len(env.load.Run.Metrics) == 0 {
		return checkResult{Name: "metrics", Status: "warn", Message: "Run has no metrics; only events and spans will show"}
	}
	if len(empty) > 0 {
		return checkResult{
			Name:    "metrics",
			Status:  "warn",
			Message: fmt.Sprintf("Metrics without samples: %s", strings.Join(empty, ", ")),
		}
	}
	return checkResult{
		Name:    "metrics",
		Status:  "pass",
		Message: fmt.Sprintf("%d metrics: %s", len(env.load.Run.Metrics), strings.Join(env.load.Run.MetricKeys(), ", ")),
	}
}

// Check 6: MCP agent configuration
func checkMCPConfig(ctx context.Context, env *checkEnv) checkResult {
	configPath := getMCPConfigPath(env.utils)
	if configPath == "" {
		return checkResult{Name: "mcp_config", Status: "warn", Message: "Optional: could not locate MCP config"}
	}

	data, err := env.utils.ReadFile(configPath)
	if err != nil {
		executable, _ := env.utils.Executable()
		return checkResult{
			Name:    "mcp_config",
			Status:  "warn",
			Message: "Optional: MCP config not found",
			Suggestion: fmt.Sprintf(`To use powerscope from an agent, add to %s:
  {"mcpServers": {"powerscope": {"command": "%s", "args": ["mcp"]}}}`, configPath, executable),
		}
	}

	var config struct {
		MCPServers map[string]struct {
			Command string `json:"command"`
		} `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "fail",
			Message:    "MCP config is not valid JSON",
			Suggestion: fmt.Sprintf("Error parsing %s: %v", configPath, err),
		}
	}

	entry, ok := config.MCPServers["powerscope"]
	if !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    fmt.Sprintf("Optional: MCP config found: %s", configPath),
			Suggestion: "Config has no 'powerscope' server entry",
		}
	}

	executable, _ := env.utils.Executable()
	if entry.Command != "" && executable != "" && entry.Command != executable {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    fmt.Sprintf("MCP config found: %s", configPath),
			Suggestion: fmt.Sprintf("Config command (%s) differs from this binary (%s)", entry.Command, executable),
		}
	}

	return checkResult{
		Name:    "mcp_config",
		Status:  "pass",
		Message: fmt.Sprintf("MCP config found: %s", configPath),
	}
}

// getMCPConfigPaths returns candidate agent config files, project-level first.
func getMCPConfigPaths(utils fsUtils) []string {
	var paths []string
	if cwd, err := utils.Getwd(); err == nil && cwd != "" {
		paths = append(paths,
			filepath.Join(cwd, ".mcp.json"),
			filepath.Join(cwd, ".gemini", "settings.json"),
		)
	}
	if home, err := utils.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "claude-code", "mcp_settings.json"))
	}
	return paths
}

// getMCPConfigPath returns the first existing candidate, or the first
// candidate when none exists.
func getMCPConfigPath(utils fsUtils) string {
	paths := getMCPConfigPaths(utils)
	for _, path := range paths {
		if _, err := utils.Stat(path); err == nil {
			return path
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}
