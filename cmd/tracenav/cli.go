// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Show    ShowCmd    `cmd:"" help:"Print the per-thread event listing of a run"`
	Step    StepCmd    `cmd:"" help:"Step through a run interactively"`
	Inspect InspectCmd `cmd:"" help:"Show grammar statistics and skipped threads"`
	Pack    PackCmd    `cmd:"" help:"Compress a plain-text trace into the store"`
	List    ListCmd    `cmd:"" help:"List runs in the store"`
	Forget  ForgetCmd  `cmd:"" help:"Delete the saved step position of a run"`
	Serve   ServeCmd   `cmd:"" help:"Answer trace requests over NATS from the local store"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config   string `short:"c" help:"Config file path (default: ./tracenav.toml)"`
	Source   string `help:"Override source.kind (dir, pebble, nats)"`
	Store    string `help:"Override source.path"`
	LogLevel string `help:"Override logging.level"`
}

// ShowCmd prints a static listing.
type ShowCmd struct {
	Session string  `arg:"" help:"Run identifier"`
	Thread  []int64 `short:"t" help:"Thread to show (repeatable, default: all)"`
	Limit   int64   `short:"n" default:"1000" help:"Maximum events per thread (0 = all)"`
	Width   int     `short:"w" help:"Wrap output to this width"`
	Scores  string  `help:"SBFL scores YAML file"`
	Plain   bool    `help:"Print undecorated class: line text"`
}

// StepCmd runs the interactive stepper.
type StepCmd struct {
	Session string `arg:"" help:"Run identifier"`
	Follow  bool   `short:"f" help:"Reload when the run's traces change (dir store only)"`
	Resume  bool   `short:"r" help:"Restore the positions saved when this run was last stepped"`
	Scores  string `help:"SBFL scores YAML file"`
}

// InspectCmd shows per-thread grammar statistics.
type InspectCmd struct {
	Session string `arg:"" help:"Run identifier"`
	Scores  string `help:"SBFL scores YAML file; lists the most suspicious lines per class"`
	Top     int    `default:"3" help:"Lines per class to list with --scores"`
}

// PackCmd encodes "<thread> <class> <line>" lines into compressed traces.
type PackCmd struct {
	Session   string `arg:"" help:"Run identifier"`
	Input     string `arg:"" help:"Plain-text trace file, - for stdin"`
	MaxPeriod int    `default:"64" help:"Longest loop body the compressor looks for"`
}

// ListCmd lists runs.
type ListCmd struct {
	Checkpoints bool `help:"List saved step positions instead, newest first"`
}

// ForgetCmd drops a run's checkpoint.
type ForgetCmd struct {
	Session string `arg:"" help:"Run identifier"`
}

// ServeCmd answers NATS trace requests.
type ServeCmd struct {
	Subject string `help:"Override source.subject"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
