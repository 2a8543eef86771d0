// Package main is the entry point for the tracenav CLI.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for TRACENAV_* overrides
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tracenav"),
		kong.Description("Navigate grammar-compressed per-thread execution traces."),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Printf("tracenav version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
