package event

import (
	"fmt"
	"math"
)

// Packing combines a class id and a line number into one trace symbol and
// splits it back. The recorder and the reader must agree on the scheme and
// its parameter, so both come from configuration.
type Packing interface {
	Pack(classID, line int) (int64, error)
	Unpack(symbol int64) (classID, line int)
	String() string
}

// Packing scheme names accepted by NewPacking.
const (
	SchemeBits  = "bits"
	SchemeRadix = "radix"
)

// DefaultLineBits is the line width used when no packing is configured.
const DefaultLineBits = 32

// NewPacking creates the packing named by scheme.
func NewPacking(scheme string, lineBits uint, base int64) (Packing, error) {
	switch scheme {
	case "", SchemeBits:
		if lineBits == 0 {
			lineBits = DefaultLineBits
		}
		if lineBits > 62 {
			return nil, fmt.Errorf("line_bits must be between 1 and 62, got %d", lineBits)
		}
		return BitPacking{LineBits: lineBits}, nil
	case SchemeRadix:
		if base < 2 {
			return nil, fmt.Errorf("radix base must be at least 2, got %d", base)
		}
		return RadixPacking{Base: base}, nil
	default:
		return nil, fmt.Errorf("unknown packing scheme %q", scheme)
	}
}

// BitPacking stores the line in the low LineBits bits and the class id above them.
type BitPacking struct {
	LineBits uint
}

func (p BitPacking) Pack(classID, line int) (int64, error) {
	mask := int64(1)<<p.LineBits - 1
	if line < 0 || int64(line) > mask {
		return 0, fmt.Errorf("line %d does not fit in %d bits", line, p.LineBits)
	}
	if classID < 0 || int64(classID) > math.MaxInt64>>p.LineBits {
		return 0, fmt.Errorf("class id %d does not fit above %d line bits", classID, p.LineBits)
	}
	return int64(classID)<<p.LineBits | int64(line), nil
}

// Unpack splits symbol. A negative symbol yields a negative class id, which
// no symbol table contains.
func (p BitPacking) Unpack(symbol int64) (classID, line int) {
	mask := int64(1)<<p.LineBits - 1
	return int(symbol >> p.LineBits), int(symbol & mask)
}

func (p BitPacking) String() string {
	return fmt.Sprintf("bits(line=%d)", p.LineBits)
}

// RadixPacking stores classID*Base + line.
type RadixPacking struct {
	Base int64
}

func (p RadixPacking) Pack(classID, line int) (int64, error) {
	if line < 0 || int64(line) >= p.Base {
		return 0, fmt.Errorf("line %d does not fit below base %d", line, p.Base)
	}
	if classID < 0 || int64(classID) > (math.MaxInt64-int64(line))/p.Base {
		return 0, fmt.Errorf("class id %d overflows base %d", classID, p.Base)
	}
	return int64(classID)*p.Base + int64(line), nil
}

// Unpack splits symbol with truncated division, so a negative symbol yields a
// negative line.
func (p RadixPacking) Unpack(symbol int64) (classID, line int) {
	return int(symbol / p.Base), int(symbol % p.Base)
}

func (p RadixPacking) String() string {
	return fmt.Sprintf("radix(base=%d)", p.Base)
}
