package main

import (
	"context"
	"fmt"
	"os"

	"github.com/powerscope/powerscope/internal/cli"
	cliframework "github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "powerscope",
		Usage:   "Align power telemetry, events and traces on one zoomable timeline",
		Version: version,
		Commands: []*cliframework.Command{
			cli.InspectCommand(),
			cli.RenderCommand(),
			cli.ServeCommand(),
			cli.MCPCommand(),
			cli.CheckCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
