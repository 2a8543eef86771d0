package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinayprograms/tracenav/internal/navigator"
	"github.com/vinayprograms/tracenav/internal/tracedata"
)

func (c *ListCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	if c.Checkpoints {
		return a.listCheckpoints(os.Stdout)
	}
	return a.list(context.Background(), os.Stdout)
}

func (a *app) list(ctx context.Context, w io.Writer) error {
	s, closer, err := a.openStore(true)
	if err != nil {
		return err
	}
	defer closer.Close()

	ids, err := s.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func (a *app) listCheckpoints(w io.Writer) error {
	states, err := a.openStates()
	if err != nil {
		return err
	}
	for _, cp := range states.Recent() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d threads\n",
			cp.Session, cp.Timestamp.Format(time.RFC3339), navigator.ThreadRef(cp.Thread), len(cp.Positions))
	}
	return nil
}

func (c *ForgetCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	return a.forget(c.Session)
}

func (a *app) forget(id string) error {
	if err := tracedata.ValidateSessionID(id); err != nil {
		return err
	}
	states, err := a.openStates()
	if err != nil {
		return err
	}
	if states.Get(id) == nil {
		return fmt.Errorf("no saved position for %s", id)
	}
	return states.Delete(id)
}

func (c *ServeCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	subject := a.cfg.Source.Subject
	if c.Subject != "" {
		subject = c.Subject
	}

	s, closer, err := a.openStore(true)
	if err != nil {
		return err
	}
	defer closer.Close()

	nc, err := a.connectNATS()
	if err != nil {
		return err
	}
	defer nc.Close()

	sub, err := tracedata.Serve(nc, subject, s, a.logger)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	a.logger.WithField("subject", subject+".*").Info("serving trace requests")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return err
	}
	return nc.Drain()
}
