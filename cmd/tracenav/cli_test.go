package main

import (
	"testing"

	"github.com/alecthomas/kong"
)

func TestShowCmd_Basic(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"show", "run1"})
	if err != nil {
		t.Fatal(err)
	}

	if cli.Show.Session != "run1" {
		t.Errorf("expected session 'run1', got %q", cli.Show.Session)
	}
	if cli.Show.Limit != 1000 {
		t.Errorf("expected default limit 1000, got %d", cli.Show.Limit)
	}
	if len(cli.Show.Thread) != 0 {
		t.Errorf("expected no thread filter, got %v", cli.Show.Thread)
	}
}

func TestShowCmd_Threads(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"show", "-t", "1", "--thread", "7", "-n", "0", "run1"})
	if err != nil {
		t.Fatal(err)
	}

	if len(cli.Show.Thread) != 2 || cli.Show.Thread[0] != 1 || cli.Show.Thread[1] != 7 {
		t.Errorf("expected threads [1 7], got %v", cli.Show.Thread)
	}
	if cli.Show.Limit != 0 {
		t.Errorf("expected limit 0, got %d", cli.Show.Limit)
	}
}

func TestStepCmd_Follow(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"step", "-f", "-r", "--scores", "scores.yaml", "run1"})
	if err != nil {
		t.Fatal(err)
	}

	if !cli.Step.Follow || !cli.Step.Resume {
		t.Error("expected follow and resume")
	}
	if cli.Step.Scores != "scores.yaml" {
		t.Errorf("expected scores file, got %q", cli.Step.Scores)
	}
}

func TestPackCmd_Args(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"--store", "/tmp/traces", "pack", "run1", "-"})
	if err != nil {
		t.Fatal(err)
	}

	if cli.Pack.Session != "run1" || cli.Pack.Input != "-" {
		t.Errorf("unexpected args %+v", cli.Pack)
	}
	if cli.Pack.MaxPeriod != 64 {
		t.Errorf("expected default max period 64, got %d", cli.Pack.MaxPeriod)
	}
	if cli.Store != "/tmp/traces" {
		t.Errorf("expected global store flag, got %q", cli.Store)
	}
}

func TestCLI_MissingSession(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{"inspect"}); err == nil {
		t.Error("expected error without a session argument")
	}
}

func TestCheckpointCommands(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := parser.Parse([]string{"forget", "run1"})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Command() != "forget <session>" || cli.Forget.Session != "run1" {
		t.Errorf("unexpected command %q, session %q", ctx.Command(), cli.Forget.Session)
	}

	if _, err := parser.Parse([]string{"list", "--checkpoints"}); err != nil {
		t.Fatal(err)
	}
	if !cli.List.Checkpoints {
		t.Error("expected checkpoints=true")
	}

	if _, err := parser.Parse([]string{"inspect", "--scores", "s.yaml", "run1"}); err != nil {
		t.Fatal(err)
	}
	if cli.Inspect.Scores != "s.yaml" || cli.Inspect.Top != 3 {
		t.Errorf("unexpected inspect flags %+v", cli.Inspect)
	}
}
