// Package navigator owns the per-thread cursors of one viewing session and
// turns forward/backward requests into events for its sinks.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/tracenav/internal/cursor"
	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/tracedata"
)

// ErrInvalidThreadReference indicates a thread reference that does not parse
// or names a thread the session has no trace for.
var ErrInvalidThreadReference = errors.New("invalid thread reference")

var tracer = otel.Tracer("github.com/vinayprograms/tracenav/internal/navigator")

const threadRefPrefix = "Thread "

// Direction of a navigation step.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Sink receives every event a successful step produces, with the thread
// that produced it.
type Sink interface {
	Show(thread int64, ev event.Event, dir Direction)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(thread int64, ev event.Event, dir Direction)

func (f SinkFunc) Show(thread int64, ev event.Event, dir Direction) { f(thread, ev, dir) }

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session is one viewing of a loaded run. It holds at most one cursor per
// thread; the first request for a thread decides where its cursor starts.
type Session struct {
	ID string

	mu      sync.Mutex
	coll    *tracedata.Collection
	cursors map[int64]*cursor.Cursor
	sinks   []Sink
	logger  logrus.FieldLogger
	closed  bool
}

// New creates a session over coll.
func New(coll *tracedata.Collection, opts ...Option) *Session {
	s := &Session{
		ID:      uuid.New().String(),
		coll:    coll,
		cursors: make(map[int64]*cursor.Cursor),
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(logrus.Fields{
		"component": "navigator",
		"session":   coll.SessionID(),
		"view":      s.ID,
	})
	return s
}

// AddSink registers another sink.
func (s *Session) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Threads returns the threads that can be navigated, in ascending order.
func (s *Session) Threads() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.coll.Threads()
}

// ThreadRef formats a thread id the way tab titles name it.
func ThreadRef(thread int64) string {
	return threadRefPrefix + strconv.FormatInt(thread, 10)
}

// ParseThreadRef is the inverse of ThreadRef.
func ParseThreadRef(ref string) (int64, error) {
	num, ok := strings.CutPrefix(ref, threadRefPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreadReference, ref)
	}
	thread, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreadReference, ref)
	}
	return thread, nil
}

// Len returns the number of events in a thread's trace.
func (s *Session) Len(thread int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	seq, ok := s.coll.Trace(thread)
	if !ok {
		return 0, false
	}
	return seq.Len(), true
}

// Position returns the position of the thread's cursor without creating
// one; ok is false until the thread has been navigated.
func (s *Session) Position(thread int64) (pos int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[thread]
	if !ok {
		return 0, false
	}
	return c.Position(), true
}

// Positions snapshots the position of every cursor created so far.
func (s *Session) Positions() map[int64]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := make(map[int64]int64, len(s.cursors))
	for thread, c := range s.cursors {
		positions[thread] = c.Position()
	}
	return positions
}

// Restore moves cursors to earlier positions, clamped to each trace. A thread
// that already has a cursor keeps it. Threads without a trace are logged and
// skipped.
func (s *Session) Restore(positions map[int64]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for thread, pos := range positions {
		seq, ok := s.coll.Trace(thread)
		if !ok {
			s.logger.WithField("thread", thread).Warn("cannot restore position of unknown thread")
			continue
		}
		c, ok := s.cursors[thread]
		if !ok {
			c = cursor.New(thread, seq, s.coll.Decoder(), cursor.Start)
			s.cursors[thread] = c
		}
		if err := c.SeekTo(min(max(pos, 0), seq.Len())); err != nil {
			s.logger.WithFields(logrus.Fields{
				"thread": thread,
				"error":  err.Error(),
			}).Warn("cannot restore position")
		}
	}
}

// Cursor returns the thread's cursor, creating it on first use at the start
// for Forward and at the end for Backward.
func (s *Session) Cursor(thread int64, dir Direction) (*cursor.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorLocked(thread, dir)
}

func (s *Session) cursorLocked(thread int64, dir Direction) (*cursor.Cursor, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: session closed", ErrInvalidThreadReference)
	}
	if c, ok := s.cursors[thread]; ok {
		return c, nil
	}
	seq, ok := s.coll.Trace(thread)
	if !ok {
		return nil, fmt.Errorf("%w: no trace for thread %d", ErrInvalidThreadReference, thread)
	}
	origin := cursor.Start
	if dir == Backward {
		origin = cursor.End
	}
	c := cursor.New(thread, seq, s.coll.Decoder(), origin)
	s.cursors[thread] = c
	return c, nil
}

// Step moves the cursor of the referenced thread one event in dir. Problems
// are logged and the step is dropped; ok is false when nothing was shown.
func (s *Session) Step(ref string, dir Direction) (event.Event, bool) {
	thread, err := ParseThreadRef(ref)
	if err != nil {
		s.logger.WithField("error", err.Error()).Warn("ignoring navigation request")
		return event.Event{}, false
	}
	return s.StepThread(thread, dir)
}

// StepThread is Step for a numeric thread id.
func (s *Session) StepThread(thread int64, dir Direction) (event.Event, bool) {
	_, span := tracer.Start(context.Background(), "navigator.Step",
		trace.WithAttributes(
			attribute.Int64("thread", thread),
			attribute.String("direction", dir.String()),
		))
	defer span.End()

	log := s.logger.WithFields(logrus.Fields{
		"thread":    thread,
		"direction": dir.String(),
	})

	s.mu.Lock()
	c, err := s.cursorLocked(thread, dir)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		log.WithField("error", err.Error()).Warn("ignoring navigation request")
		return event.Event{}, false
	}

	var ev event.Event
	switch {
	case dir == Forward && c.HasNext():
		ev, err = c.Next()
	case dir == Backward && c.HasPrevious():
		ev, err = c.Previous()
	default:
		s.mu.Unlock()
		log.Debug("at end of trace")
		return event.Event{}, false
	}
	pos := c.Position()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		log.WithField("error", err.Error()).Error("failed to decode trace event")
		return event.Event{}, false
	}
	span.SetAttributes(attribute.Int64("position", pos))

	for _, sink := range sinks {
		sink.Show(thread, ev, dir)
	}
	return ev, true
}

// Window decodes up to n events of a thread starting at from, independent
// of the thread's navigation cursor. A non-positive n reads to the end.
func (s *Session) Window(thread, from, n int64) ([]event.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session closed", ErrInvalidThreadReference)
	}
	seq, ok := s.coll.Trace(thread)
	dec := s.coll.Decoder()
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no trace for thread %d", ErrInvalidThreadReference, thread)
	}

	c := cursor.New(thread, seq, dec, cursor.Start)
	if err := c.SeekTo(from); err != nil {
		return nil, err
	}
	var events []event.Event
	for c.HasNext() && (n <= 0 || int64(len(events)) < n) {
		ev, err := c.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Lines renders a thread's events as "class: line" from the start of its
// trace. A positive limit caps the number of lines.
func (s *Session) Lines(thread int64, limit int64) ([]string, error) {
	events, err := s.Window(thread, 0, limit)
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = ev.String()
	}
	return lines, err
}

// Dump writes each thread's lines under a "Thread <id>" heading. With no
// threads given it dumps all of them.
func (s *Session) Dump(w io.Writer, limit int64, threads ...int64) error {
	if len(threads) == 0 {
		threads = s.Threads()
	}
	for _, thread := range threads {
		lines, err := s.Lines(thread, limit)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, ThreadRef(thread)); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := fmt.Fprintln(w, "  "+l); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close drops all cursors and the collection. Later steps are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cursors = nil
	s.coll = nil
}
