// Package cursor walks a decoded trace forwards and backwards.
package cursor

import (
	"errors"
	"fmt"

	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/grammar"
)

// ErrNoSuchElement indicates a step past either end of the trace.
var ErrNoSuchElement = errors.New("no such element")

// Sequence is the addressable symbol store a cursor reads from.
type Sequence interface {
	Len() int64
	At(pos int64) (int64, error)
}

// Decoder turns one symbol into an event.
type Decoder interface {
	Decode(symbol int64) (event.Event, error)
}

// Origin selects where a new cursor starts.
type Origin int

const (
	// Start places the cursor before the first event.
	Start Origin = iota
	// End places the cursor after the last event.
	End
)

// Cursor is a position in [0, Len()] over one thread's trace. Next reads the
// event at the position and then advances; Previous retreats and then reads,
// so Next followed by Previous yields the same event twice.
type Cursor struct {
	thread int64
	seq    Sequence
	dec    Decoder
	pos    int64
}

// New creates a cursor for thread at origin.
func New(thread int64, seq Sequence, dec Decoder, origin Origin) *Cursor {
	c := &Cursor{thread: thread, seq: seq, dec: dec}
	if origin == End {
		c.pos = seq.Len()
	}
	return c
}

// Thread returns the thread the cursor walks.
func (c *Cursor) Thread() int64 {
	return c.thread
}

// Position returns the number of events before the cursor.
func (c *Cursor) Position() int64 {
	return c.pos
}

// Len returns the number of events in the trace.
func (c *Cursor) Len() int64 {
	return c.seq.Len()
}

// HasNext reports whether Next would return an event.
func (c *Cursor) HasNext() bool {
	return c.pos < c.seq.Len()
}

// HasPrevious reports whether Previous would return an event.
func (c *Cursor) HasPrevious() bool {
	return c.pos > 0
}

// Next returns the event at the cursor and moves past it. On a decode error
// the cursor does not move.
func (c *Cursor) Next() (event.Event, error) {
	if !c.HasNext() {
		return event.Event{}, fmt.Errorf("%w: thread %d at end (%d)", ErrNoSuchElement, c.thread, c.pos)
	}
	ev, err := c.decodeAt(c.pos)
	if err != nil {
		return event.Event{}, err
	}
	c.pos++
	return ev, nil
}

// Previous moves back one event and returns it. On a decode error the
// cursor does not move.
func (c *Cursor) Previous() (event.Event, error) {
	if !c.HasPrevious() {
		return event.Event{}, fmt.Errorf("%w: thread %d at start", ErrNoSuchElement, c.thread)
	}
	ev, err := c.decodeAt(c.pos - 1)
	if err != nil {
		return event.Event{}, err
	}
	c.pos--
	return ev, nil
}

// SeekTo moves the cursor to pos, which may equal Len().
func (c *Cursor) SeekTo(pos int64) error {
	if pos < 0 || pos > c.seq.Len() {
		return fmt.Errorf("%w: seek to %d, length %d", grammar.ErrIndexOutOfRange, pos, c.seq.Len())
	}
	c.pos = pos
	return nil
}

func (c *Cursor) decodeAt(pos int64) (event.Event, error) {
	sym, err := c.seq.At(pos)
	if err != nil {
		return event.Event{}, fmt.Errorf("thread %d: %w", c.thread, err)
	}
	ev, err := c.dec.Decode(sym)
	if err != nil {
		return event.Event{}, fmt.Errorf("thread %d position %d: %w", c.thread, pos, err)
	}
	return ev, nil
}
