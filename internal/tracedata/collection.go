package tracedata

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/grammar"
	"github.com/vinayprograms/tracenav/internal/symtab"
)

var tracer = otel.Tracer("github.com/vinayprograms/tracenav/internal/tracedata")

// Collection holds every successfully decoded thread trace of one run along
// with the symbol table and decoder they share. It is read-only once loaded.
type Collection struct {
	sessionID string
	traces    map[int64]*grammar.Sequence
	skipped   map[int64]error
	decoder   *event.Decoder
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	logger   logrus.FieldLogger
	packing  event.Packing
	validate bool
}

// WithLogger sets the logger used for skipped threads and load summaries.
func WithLogger(logger logrus.FieldLogger) LoadOption {
	return func(o *loadOptions) {
		o.logger = logger
	}
}

// WithPacking sets the symbol packing shared with the recorder.
func WithPacking(p event.Packing) LoadOption {
	return func(o *loadOptions) {
		o.packing = p
	}
}

// WithSymbolValidation controls whether every distinct symbol of a thread is
// decoded at load time. Threads with undecodable symbols are skipped.
func WithSymbolValidation(enabled bool) LoadOption {
	return func(o *loadOptions) {
		o.validate = enabled
	}
}

// Load reads the run's data from p and builds one sequence per thread. A
// thread whose blob is malformed, or whose symbols do not resolve, is logged
// and skipped; the rest still load. Only provider failures and an unusable
// symbol table are returned as errors.
func Load(ctx context.Context, p Provider, sessionID string, opts ...LoadOption) (*Collection, error) {
	o := loadOptions{
		logger:   logrus.StandardLogger(),
		validate: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "tracedata.Load")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	log := o.logger.WithFields(logrus.Fields{
		"component": "tracedata",
		"session":   sessionID,
	})

	data, err := p.TraceData(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider failed")
		return nil, fmt.Errorf("failed to read trace data for %s: %w", sessionID, err)
	}

	c := &Collection{
		sessionID: sessionID,
		traces:    make(map[int64]*grammar.Sequence),
		skipped:   make(map[int64]error),
	}

	if data == nil {
		log.Warn("no trace data")
		table, _ := symtab.New(nil)
		c.decoder = event.NewDecoder(table, o.packing)
		return c, nil
	}

	table, err := symtab.New(data.Symbols)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid symbol table")
		return nil, fmt.Errorf("invalid symbol table for %s: %w", sessionID, err)
	}
	c.decoder = event.NewDecoder(table, o.packing)

	for thread, blob := range data.Threads {
		seq, err := grammar.Build(blob)
		if err == nil && o.validate {
			err = validateSymbols(seq, c.decoder)
		}
		if err != nil {
			log.WithFields(logrus.Fields{
				"thread": thread,
				"error":  err.Error(),
			}).Error("could not read trace")
			c.skipped[thread] = err
			continue
		}
		c.traces[thread] = seq
	}

	span.SetAttributes(
		attribute.Int("threads.loaded", len(c.traces)),
		attribute.Int("threads.skipped", len(c.skipped)),
		attribute.Int("symbols", table.Len()),
	)
	log.WithFields(logrus.Fields{
		"threads": len(c.traces),
		"skipped": len(c.skipped),
		"symbols": table.Len(),
	}).Debug("trace data loaded")

	return c, nil
}

// validateSymbols decodes every distinct symbol the grammar can emit, which
// is proportional to the grammar size rather than the trace length.
func validateSymbols(seq *grammar.Sequence, dec *event.Decoder) error {
	for _, sym := range seq.Terminals() {
		if _, err := dec.Decode(sym); err != nil {
			return err
		}
	}
	return nil
}

// SessionID returns the run the collection was loaded for.
func (c *Collection) SessionID() string {
	return c.sessionID
}

// Threads returns the ids of all loaded threads in ascending order.
func (c *Collection) Threads() []int64 {
	ids := make([]int64, 0, len(c.traces))
	for id := range c.traces {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Trace returns the sequence of a loaded thread.
func (c *Collection) Trace(thread int64) (*grammar.Sequence, bool) {
	seq, ok := c.traces[thread]
	return seq, ok
}

// Skipped returns the threads that failed to load and why.
func (c *Collection) Skipped() map[int64]error {
	out := make(map[int64]error, len(c.skipped))
	for id, err := range c.skipped {
		out[id] = err
	}
	return out
}

// Symbols returns the run's symbol table.
func (c *Collection) Symbols() *symtab.Table {
	return c.decoder.Symbols()
}

// Decoder returns the decoder shared by all threads.
func (c *Collection) Decoder() *event.Decoder {
	return c.decoder
}

// Empty reports whether no thread loaded.
func (c *Collection) Empty() bool {
	return len(c.traces) == 0
}
