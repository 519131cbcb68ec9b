package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/powerscope/powerscope/internal/capture"
	"github.com/powerscope/powerscope/internal/mcpserver"
)

// MCPCommand returns the 'mcp' subcommand, which serves agent tools on stdio.
func MCPCommand() *cli.Command {
	return &cli.Command{
		Name:      "mcp",
		Usage:     "Serve MCP tools on stdio",
		ArgsUsage: "[run-dir|powerscope.yaml]",
		Description: `Starts an MCP server on stdio. Agents load runs, move the shared
window and look up nearest samples through tools. Span capture over
OTLP/gRPC is on unless --capture=false; captured spans stand in for a
missing trace file. An optional argument is loaded at startup.`,
		Flags:  append(configFlags(), captureFlags()...),
		Action: runMCP,
	}
}

func runMCP(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Capture = true
	applyCaptureFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := mcpserver.ServerOptions{Verbose: cfg.Verbose}
	var store *capture.Store
	if cfg.Capture {
		var server *capture.Server
		store, server, err = startCapture(ctx, cfg)
		if err != nil {
			return err
		}
		defer server.Stop()
		opts.Capture = store
		opts.CaptureEndpoint = server.Endpoint()
	}

	s := startSession(ctx, cfg, store)
	if path := cmd.Args().First(); path != "" {
		if _, err := loadRun(ctx, s, path, cfg); err != nil {
			return err
		}
	}
	if store != nil {
		debounce, _ := cfg.DebounceDuration()
		reloadOnCapture(ctx, s, store, debounce)
	}

	mcpServer, err := mcpserver.NewServer(s, opts)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	log.Println("🎯 MCP server ready on stdio")
	if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
