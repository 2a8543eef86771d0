package grammar

import (
	"encoding/binary"
	"fmt"
)

// Element is one right-hand-side item of a rule handed to a Builder.
type Element struct {
	kind  elemKind
	arg   int64
	count int64
}

// Terminal returns an element that emits symbol once.
func Terminal(symbol int64) Element {
	return Element{kind: kindTerminal, arg: symbol, count: 1}
}

// Ref returns an element that expands rule once.
func Ref(rule int) Element {
	return Element{kind: kindRef, arg: int64(rule), count: 1}
}

// Repeat returns an element that expands rule n times in a row.
func Repeat(rule int, n int64) Element {
	return Element{kind: kindRepeat, arg: int64(rule), count: n}
}

// Builder assembles a grammar rule by rule and serializes it in the format
// Build reads. The last rule added is the start rule.
type Builder struct {
	rules [][]Element
}

// NewBuilder creates an empty builder. An empty builder encodes the empty trace.
func NewBuilder() *Builder {
	return &Builder{}
}

// Rule appends a rule and returns its index for use in later Ref/Repeat elements.
func (b *Builder) Rule(elems ...Element) (int, error) {
	if len(elems) == 0 {
		return 0, fmt.Errorf("rule %d is empty", len(b.rules))
	}
	for _, e := range elems {
		switch e.kind {
		case kindTerminal:
		case kindRef, kindRepeat:
			if e.arg < 0 || e.arg >= int64(len(b.rules)) {
				return 0, fmt.Errorf("rule %d references undefined rule %d", len(b.rules), e.arg)
			}
			if e.count < 1 {
				return 0, fmt.Errorf("rule %d repeats rule %d %d times", len(b.rules), e.arg, e.count)
			}
		default:
			return 0, fmt.Errorf("rule %d has unknown element kind %d", len(b.rules), e.kind)
		}
	}
	return b.add(elems), nil
}

// add appends a rule that is already known to be valid.
func (b *Builder) add(elems []Element) int {
	rule := make([]Element, len(elems))
	copy(rule, elems)
	b.rules = append(b.rules, rule)
	return len(b.rules) - 1
}

// Rules returns the number of rules added so far.
func (b *Builder) Rules() int {
	return len(b.rules)
}

// Bytes serializes the grammar.
func (b *Builder) Bytes() []byte {
	buf := make([]byte, 0, 16+8*len(b.rules))
	buf = append(buf, magic...)
	buf = append(buf, formatVersion, symbolKindInt64)
	buf = binary.AppendUvarint(buf, uint64(len(b.rules)))

	for _, rule := range b.rules {
		buf = binary.AppendUvarint(buf, uint64(len(rule)))
		for _, e := range rule {
			switch {
			case e.kind == kindTerminal:
				buf = binary.AppendUvarint(buf, 0)
				buf = binary.AppendVarint(buf, e.arg)
			case e.count == 1:
				buf = binary.AppendUvarint(buf, uint64(e.arg)<<2|uint64(kindRef))
			default:
				buf = binary.AppendUvarint(buf, uint64(e.arg)<<2|uint64(kindRepeat))
				buf = binary.AppendUvarint(buf, uint64(e.count))
			}
		}
	}
	return buf
}
