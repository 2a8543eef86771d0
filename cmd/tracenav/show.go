package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vinayprograms/tracenav/internal/checkpoint"
	"github.com/vinayprograms/tracenav/internal/config"
	"github.com/vinayprograms/tracenav/internal/navigator"
	"github.com/vinayprograms/tracenav/internal/sbfl"
	"github.com/vinayprograms/tracenav/internal/tracedata"
	"github.com/vinayprograms/tracenav/internal/view"
)

func (c *ShowCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	return a.show(context.Background(), os.Stdout, c)
}

func (a *app) show(ctx context.Context, w io.Writer, c *ShowCmd) error {
	p, closer, err := a.openProvider()
	if err != nil {
		return err
	}
	defer closer.Close()

	sess, _, err := a.loadSession(ctx, p, c.Session)
	if err != nil {
		return err
	}
	defer sess.Close()

	if c.Plain {
		return sess.Dump(w, c.Limit, c.Thread...)
	}
	scores, err := loadScores(c.Scores)
	if err != nil {
		return err
	}
	r := view.NewRenderer(w, view.WithLimit(c.Limit), view.WithWidth(c.Width), view.WithScores(scores))
	return r.Render(sess, c.Thread...)
}

func (c *StepCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, closer, err := a.openProvider()
	if err != nil {
		return err
	}
	defer closer.Close()

	scores, err := loadScores(c.Scores)
	if err != nil {
		return err
	}
	sess, _, err := a.loadSession(ctx, p, c.Session)
	if err != nil {
		return err
	}

	if !isTerminal(os.Stdout) {
		defer sess.Close()
		return view.NewRenderer(os.Stdout, view.WithScores(scores)).Render(sess)
	}

	// Log lines would tear the alternate screen.
	a.logger.SetOutput(io.Discard)

	states, err := a.openStates()
	if err != nil {
		return err
	}

	stepper := view.NewStepper(c.Session, sess, scores)
	if c.Resume {
		resume(states, stepper, sess, c.Session)
	}

	if c.Follow {
		if a.cfg.Source.Kind != config.SourceDir {
			return fmt.Errorf("--follow needs a dir source, not %s", a.cfg.Source.Kind)
		}
		fs, ok := p.(*tracedata.FileStore)
		if !ok {
			return fmt.Errorf("--follow needs a dir source")
		}
		err = stepper.RunLive(filepath.Clean(fs.ThreadsDir(c.Session)), func() (*navigator.Session, error) {
			next, _, err := a.loadSession(ctx, p, c.Session)
			return next, err
		})
	} else {
		err = stepper.Run()
	}
	if err != nil {
		return err
	}
	return save(states, stepper, c.Session)
}

// openStates opens the checkpoint store and reads what it holds.
func (a *app) openStates() (*checkpoint.Store, error) {
	states, err := checkpoint.NewStore(a.cfg.StateDir())
	if err != nil {
		return nil, err
	}
	if err := states.Load(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	return states, nil
}

// resume restores the positions and tab saved for a run, if any.
func resume(states *checkpoint.Store, stepper *view.Stepper, sess *navigator.Session, id string) bool {
	cp := states.Get(id)
	if cp == nil {
		return false
	}
	sess.Restore(cp.Positions)
	stepper.Select(cp.Thread)
	return true
}

// save records where the stepper stopped.
func save(states *checkpoint.Store, stepper *view.Stepper, id string) error {
	thread, _ := stepper.Thread()
	return states.Save(&checkpoint.Checkpoint{
		Session:   id,
		Thread:    thread,
		Positions: stepper.Positions(),
	})
}

func loadScores(path string) (sbfl.Scores, error) {
	if path == "" {
		return nil, nil
	}
	return sbfl.LoadFile(path)
}
