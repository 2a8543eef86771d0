package grammar

import "encoding/binary"

const (
	defaultMaxPeriod = 64
	maxFoldPasses    = 8
	minRepeatCover   = 3
)

// CompressOption configures Compress.
type CompressOption func(*compressor)

// WithMaxPeriod bounds the length (in symbols or already-folded elements) of a
// loop body that Compress looks for.
func WithMaxPeriod(n int) CompressOption {
	return func(c *compressor) {
		if n > 0 {
			c.maxPeriod = n
		}
	}
}

type compressor struct {
	b         *Builder
	maxPeriod int
	blocks    map[string]int
}

// Compress encodes symbols as a grammar. Runs of a repeated block (a loop
// body executed many times) become one rule plus a repeat count, identical
// blocks share a rule, and the folding is re-applied to its own output so
// that loops nested in loops collapse as well.
func Compress(symbols []int64, opts ...CompressOption) []byte {
	c := &compressor{
		b:         NewBuilder(),
		maxPeriod: defaultMaxPeriod,
		blocks:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(symbols) == 0 {
		return c.b.Bytes()
	}

	elems := make([]Element, len(symbols))
	for i, s := range symbols {
		elems[i] = Terminal(s)
	}
	for pass := 0; pass < maxFoldPasses; pass++ {
		folded := c.fold(elems)
		if len(folded) == len(elems) {
			break
		}
		elems = folded
	}
	c.b.add(elems)
	return c.b.Bytes()
}

// fold replaces every tandem repeat in elems by a Repeat of a block rule.
func (c *compressor) fold(elems []Element) []Element {
	out := make([]Element, 0, len(elems))
	for i := 0; i < len(elems); {
		period, count := c.bestRepeat(elems[i:])
		if count < 2 {
			out = append(out, elems[i])
			i++
			continue
		}
		id := c.blockRule(elems[i : i+period])
		out = append(out, Repeat(id, int64(count)))
		i += period * count
	}
	return out
}

// blockRule returns the rule for a loop body, creating it on first use.
func (c *compressor) blockRule(block []Element) int {
	key := blockKey(block)
	if id, ok := c.blocks[key]; ok {
		return id
	}
	id := c.b.add(c.fold(block))
	c.blocks[key] = id
	return id
}

// bestRepeat finds the period and count of the tandem repeat at the start of
// s that covers the most elements. Ties go to the shorter period.
func (c *compressor) bestRepeat(s []Element) (period, count int) {
	best := 0
	for p := 1; p <= c.maxPeriod && 2*p <= len(s); p++ {
		k := 1
		for (k+1)*p <= len(s) && equalElements(s[:p], s[k*p:(k+1)*p]) {
			k++
		}
		if k >= 2 && p*k >= minRepeatCover && p*k > best {
			best, period, count = p*k, p, k
		}
	}
	return period, count
}

func equalElements(a, b []Element) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func blockKey(block []Element) string {
	buf := make([]byte, 0, 4*len(block))
	for _, e := range block {
		buf = append(buf, byte(e.kind))
		buf = binary.AppendVarint(buf, e.arg)
		buf = binary.AppendVarint(buf, e.count)
	}
	return string(buf)
}
