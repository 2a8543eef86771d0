package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/vinayprograms/tracenav/internal/config"
	"github.com/vinayprograms/tracenav/internal/navigator"
	"github.com/vinayprograms/tracenav/internal/tracedata"
)

// app bundles what every command needs once flags and config are read.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// newApp loads config (file, then env, then flags) and builds the logger.
func newApp(g *Globals) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.Config != "" {
		cfg, err = config.LoadFile(g.Config)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if g.Source != "" {
		cfg.Source.Kind = g.Source
	}
	if g.Store != "" {
		cfg.Source.Path = g.Store
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// store is a provider that can also be written to and listed.
type store interface {
	tracedata.Provider
	tracedata.Lister
	Save(sessionID string, data *tracedata.Data) error
}

// openStore opens the configured local store. NATS sources have none.
func (a *app) openStore(readOnly bool) (store, io.Closer, error) {
	switch a.cfg.Source.Kind {
	case config.SourceDir:
		s, err := tracedata.NewFileStore(a.cfg.StorePath())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace directory: %w", err)
		}
		return s, closerFunc(func() {}), nil
	case config.SourcePebble:
		s, err := tracedata.OpenPebbleStore(a.cfg.StorePath(), readOnly, tracedata.WithStoreLogger(a.logger))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("source kind %q has no local store", a.cfg.Source.Kind)
	}
}

// openProvider opens whatever the config names as the trace source.
func (a *app) openProvider() (tracedata.Provider, io.Closer, error) {
	if a.cfg.Source.Kind != config.SourceNATS {
		s, closer, err := a.openStore(true)
		if err != nil {
			return nil, nil, err
		}
		return s, closer, nil
	}
	timeout, err := a.cfg.Timeout()
	if err != nil {
		return nil, nil, err
	}
	nc, err := a.connectNATS()
	if err != nil {
		return nil, nil, err
	}
	return tracedata.NewNATSProvider(nc, a.cfg.Source.Subject, timeout), closerFunc(nc.Close), nil
}

func (a *app) connectNATS() (*nats.Conn, error) {
	if a.cfg.Source.NATSURL == "" {
		return nil, fmt.Errorf("source.nats_url is not set")
	}
	nc, err := nats.Connect(a.cfg.Source.NATSURL,
		nats.Name("tracenav"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// loadSession loads a run from p and opens a navigation session on it.
func (a *app) loadSession(ctx context.Context, p tracedata.Provider, sessionID string) (*navigator.Session, *tracedata.Collection, error) {
	packing, err := a.cfg.PackingScheme()
	if err != nil {
		return nil, nil, err
	}
	coll, err := tracedata.Load(ctx, p, sessionID,
		tracedata.WithLogger(a.logger),
		tracedata.WithPacking(packing),
		tracedata.WithSymbolValidation(a.cfg.Load.ValidateSymbols),
	)
	if err != nil {
		return nil, nil, err
	}
	return navigator.New(coll, navigator.WithLogger(a.logger)), coll, nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
