package grammar

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sort"
)

// Wire format constants. The recorder writes the same layout through Builder.
const (
	magic           = "SQTR"
	formatVersion   = 1
	symbolKindInt64 = 'q'
)

type elemKind uint8

const (
	kindTerminal elemKind = 0
	kindRef      elemKind = 1
	kindRepeat   elemKind = 2
)

type element struct {
	kind  elemKind
	arg   int64 // terminal symbol, or index of the referenced rule
	count int64 // repetitions of the referenced rule
}

type rule struct {
	elems []element
	ends  []int64 // ends[i] is the expanded length of elems[:i+1]
	depth int
}

func (r *rule) length() int64 {
	if len(r.ends) == 0 {
		return 0
	}
	return r.ends[len(r.ends)-1]
}

// Sequence is an immutable, addressable view of a grammar-compressed trace.
// The last rule is the start rule; every rule only references earlier ones.
type Sequence struct {
	rules     []rule
	length    int64
	size      int
	terminals []int64
}

// Stats describes the shape of a compressed trace.
type Stats struct {
	Rules     int
	Elements  int
	Terminals int
	Depth     int
	Bytes     int
	Length    int64
}

// Build decodes a grammar-encoded trace.
func Build(data []byte) (*Sequence, error) {
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformedTrace)
	}
	r := &reader{data: data, off: len(magic)}

	version, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedTrace, version)
	}
	kind, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if kind != symbolKindInt64 {
		return nil, fmt.Errorf("%w: wrong symbol type %q", ErrMalformedTrace, kind)
	}

	nrules, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	// Every rule takes at least two bytes, which bounds allocation on garbage input.
	if nrules > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: %d rules in %d bytes", ErrMalformedTrace, nrules, r.remaining())
	}

	seq := &Sequence{
		rules: make([]rule, 0, nrules),
		size:  len(data),
	}
	terminals := make(map[int64]struct{})

	for i := 0; i < int(nrules); i++ {
		ru, err := seq.readRule(r, i, terminals)
		if err != nil {
			return nil, err
		}
		seq.rules = append(seq.rules, ru)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTrace, r.remaining())
	}

	if len(seq.rules) > 0 {
		seq.length = seq.rules[len(seq.rules)-1].length()
	}
	seq.terminals = make([]int64, 0, len(terminals))
	for v := range terminals {
		seq.terminals = append(seq.terminals, v)
	}
	sort.Slice(seq.terminals, func(i, j int) bool { return seq.terminals[i] < seq.terminals[j] })

	return seq, nil
}

// readRule decodes rule index i. Referenced rules must already be decoded.
func (s *Sequence) readRule(r *reader, i int, terminals map[int64]struct{}) (rule, error) {
	nelems, err := r.uvarint()
	if err != nil {
		return rule{}, err
	}
	if nelems == 0 {
		return rule{}, fmt.Errorf("%w: rule %d is empty", ErrMalformedTrace, i)
	}
	if nelems > uint64(r.remaining()) {
		return rule{}, fmt.Errorf("%w: rule %d claims %d elements", ErrMalformedTrace, i, nelems)
	}

	ru := rule{
		elems: make([]element, nelems),
		ends:  make([]int64, nelems),
	}
	var total int64
	for j := range ru.elems {
		head, err := r.uvarint()
		if err != nil {
			return rule{}, err
		}

		var (
			e     element
			width int64
		)
		switch elemKind(head & 3) {
		case kindTerminal:
			if head != 0 {
				return rule{}, fmt.Errorf("%w: rule %d has a bad terminal header", ErrMalformedTrace, i)
			}
			v, err := r.varint()
			if err != nil {
				return rule{}, err
			}
			e = element{kind: kindTerminal, arg: v, count: 1}
			width = 1
			terminals[v] = struct{}{}

		case kindRef, kindRepeat:
			ref := head >> 2
			if ref >= uint64(i) {
				return rule{}, fmt.Errorf("%w: rule %d references rule %d", ErrMalformedTrace, i, ref)
			}
			count := uint64(1)
			if elemKind(head&3) == kindRepeat {
				if count, err = r.uvarint(); err != nil {
					return rule{}, err
				}
				if count == 0 || count > math.MaxInt64 {
					return rule{}, fmt.Errorf("%w: rule %d has repeat count %d", ErrMalformedTrace, i, count)
				}
			}
			child := &s.rules[ref]
			var ok bool
			if width, ok = mulLength(child.length(), int64(count)); !ok {
				return rule{}, fmt.Errorf("%w: rule %d overflows the expanded length", ErrMalformedTrace, i)
			}
			e = element{kind: elemKind(head & 3), arg: int64(ref), count: int64(count)}
			if child.depth+1 > ru.depth {
				ru.depth = child.depth + 1
			}

		default:
			return rule{}, fmt.Errorf("%w: rule %d has unknown element kind %d", ErrMalformedTrace, i, head&3)
		}

		if total > math.MaxInt64-width {
			return rule{}, fmt.Errorf("%w: rule %d overflows the expanded length", ErrMalformedTrace, i)
		}
		total += width
		ru.elems[j] = e
		ru.ends[j] = total
	}
	return ru, nil
}

// Len returns the number of symbols the grammar expands to.
func (s *Sequence) Len() int64 {
	return s.length
}

// At returns the symbol at the expanded position pos. The lookup walks from
// the start rule down to a terminal, so its cost depends on grammar depth and
// rule width but not on Len.
func (s *Sequence) At(pos int64) (int64, error) {
	if pos < 0 || pos >= s.length {
		return 0, fmt.Errorf("%w: position %d, length %d", ErrIndexOutOfRange, pos, s.length)
	}

	r := &s.rules[len(s.rules)-1]
	for {
		i := sort.Search(len(r.ends), func(i int) bool { return r.ends[i] > pos })
		if i > 0 {
			pos -= r.ends[i-1]
		}
		e := r.elems[i]
		if e.kind == kindTerminal {
			return e.arg, nil
		}
		r = &s.rules[e.arg]
		pos %= r.length()
	}
}

// Terminals returns every distinct symbol the trace can produce, ascending.
func (s *Sequence) Terminals() []int64 {
	out := make([]int64, len(s.terminals))
	copy(out, s.terminals)
	return out
}

// Stats reports the size of the grammar against its expansion.
func (s *Sequence) Stats() Stats {
	st := Stats{
		Rules:     len(s.rules),
		Terminals: len(s.terminals),
		Bytes:     s.size,
		Length:    s.length,
	}
	for i := range s.rules {
		st.Elements += len(s.rules[i].elems)
	}
	if len(s.rules) > 0 {
		st.Depth = s.rules[len(s.rules)-1].depth
	}
	return st
}

// mulLength multiplies two non-negative lengths, reporting overflow.
func mulLength(a, b int64) (int64, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) readByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformedTrace, r.off)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformedTrace, r.off)
	}
	r.off += n
	return v, nil
}

func (r *reader) varint() (int64, error) {
	v, n := binary.Varint(r.data[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformedTrace, r.off)
	}
	r.off += n
	return v, nil
}
