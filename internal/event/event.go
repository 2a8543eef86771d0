// Package event decodes trace symbols into (class, line) execution events.
package event

import (
	"errors"
	"fmt"

	"github.com/vinayprograms/tracenav/internal/symtab"
)

// ErrDecode indicates that a symbol does not describe a valid event.
var ErrDecode = errors.New("cannot decode trace symbol")

// Event is one executed source line.
type Event struct {
	ClassID int
	Class   string
	Line    int
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %d", e.Class, e.Line)
}

// Decoder turns raw symbols into events using a shared symbol table.
type Decoder struct {
	symbols *symtab.Table
	packing Packing
}

// NewDecoder creates a decoder. A nil packing selects the default bit packing.
func NewDecoder(symbols *symtab.Table, packing Packing) *Decoder {
	if packing == nil {
		packing = BitPacking{LineBits: DefaultLineBits}
	}
	return &Decoder{symbols: symbols, packing: packing}
}

// Decode splits symbol and resolves its class. Failures wrap ErrDecode and,
// for unresolvable classes, also symtab.ErrUnknownSymbol.
func (d *Decoder) Decode(symbol int64) (Event, error) {
	classID, line := d.packing.Unpack(symbol)
	if line < 0 {
		return Event{}, fmt.Errorf("%w %d: negative line %d", ErrDecode, symbol, line)
	}
	name, err := d.symbols.ClassName(classID)
	if err != nil {
		return Event{}, fmt.Errorf("%w %d: %w", ErrDecode, symbol, err)
	}
	return Event{ClassID: classID, Class: name, Line: line}, nil
}

// Encode packs an event back into a symbol.
func (d *Decoder) Encode(classID, line int) (int64, error) {
	return d.packing.Pack(classID, line)
}

// Packing returns the scheme used by the decoder.
func (d *Decoder) Packing() Packing {
	return d.packing
}

// Symbols returns the shared symbol table.
func (d *Decoder) Symbols() *symtab.Table {
	return d.symbols
}
