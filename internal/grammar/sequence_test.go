package grammar

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

func header(extra ...byte) []byte {
	return append([]byte("SQTR\x01q"), extra...)
}

func expand(t *testing.T, seq *Sequence) []int64 {
	t.Helper()
	out := make([]int64, seq.Len())
	for i := range out {
		v, err := seq.At(int64(i))
		if err != nil {
			t.Fatalf("At(%d) error: %v", i, err)
		}
		out[i] = v
	}
	return out
}

func mustBuild(t *testing.T, data []byte) *Sequence {
	t.Helper()
	seq, err := Build(data)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	return seq
}

func TestBuild_Empty(t *testing.T) {
	seq := mustBuild(t, Compress(nil))
	if seq.Len() != 0 {
		t.Errorf("expected empty sequence, got length %d", seq.Len())
	}
	if _, err := seq.At(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestSequence_LengthInvariant(t *testing.T) {
	symbols := []int64{13, 15, 1<<32 | 21}
	seq := mustBuild(t, Compress(symbols))

	if seq.Len() != int64(len(symbols)) {
		t.Fatalf("expected length %d, got %d", len(symbols), seq.Len())
	}
	for p := int64(0); p < seq.Len(); p++ {
		v, err := seq.At(p)
		if err != nil {
			t.Errorf("At(%d) error: %v", p, err)
		}
		if v != symbols[p] {
			t.Errorf("At(%d) = %d, want %d", p, v, symbols[p])
		}
	}
	for _, p := range []int64{-1, seq.Len(), seq.Len() + 1, math.MaxInt64, math.MinInt64} {
		if _, err := seq.At(p); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("At(%d): expected ErrIndexOutOfRange, got %v", p, err)
		}
	}
}

func TestBuild_Malformed(t *testing.T) {
	overflow := NewBuilder()
	r0, _ := overflow.Rule(Terminal(1))
	r1, _ := overflow.Rule(Repeat(r0, math.MaxInt64))
	overflow.Rule(Repeat(r1, 2))

	valid := Compress([]int64{1, 2, 3})

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"bad magic", []byte("XXXX\x01q\x00")},
		{"short magic", []byte("SQ")},
		{"missing version", []byte("SQTR")},
		{"bad version", []byte("SQTR\x02q\x00")},
		{"wrong symbol type", []byte("SQTR\x01s\x00")},
		{"missing rule count", header()},
		{"rule count beyond data", header(0x7f)},
		{"empty rule", header(0x01, 0x00)},
		{"truncated terminal", header(0x01, 0x01, 0x00)},
		{"bad terminal header", header(0x01, 0x01, 0x04, 0x02)},
		{"self reference", header(0x01, 0x01, 0x01)},
		{"forward reference", header(0x02, 0x01, 0x05, 0x01, 0x00, 0x02)},
		{"zero repeat count", header(0x02, 0x01, 0x00, 0x0a, 0x01, 0x02, 0x00)},
		{"unknown element kind", header(0x02, 0x01, 0x00, 0x0a, 0x01, 0x03)},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00)},
		{"truncated valid trace", valid[:len(valid)-1]},
		{"length overflow", overflow.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.data)
			if !errors.Is(err, ErrMalformedTrace) {
				t.Errorf("expected ErrMalformedTrace, got %v", err)
			}
		})
	}
}

func TestSequence_HugeGrammar(t *testing.T) {
	// Five levels of x1000 loops over a two-symbol body: 2e15 symbols.
	b := NewBuilder()
	id, err := b.Rule(Terminal(7), Terminal(9))
	if err != nil {
		t.Fatalf("rule error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if id, err = b.Rule(Repeat(id, 1000)); err != nil {
			t.Fatalf("rule error: %v", err)
		}
	}
	data := b.Bytes()
	if len(data) > 64 {
		t.Errorf("expected a tiny encoding, got %d bytes", len(data))
	}

	seq := mustBuild(t, data)
	want := int64(2) * 1000 * 1000 * 1000 * 1000 * 1000
	if seq.Len() != want {
		t.Fatalf("expected length %d, got %d", want, seq.Len())
	}

	start := time.Now()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		p := rng.Int63n(seq.Len())
		v, err := seq.At(p)
		if err != nil {
			t.Fatalf("At(%d) error: %v", p, err)
		}
		expect := int64(7)
		if p%2 == 1 {
			expect = 9
		}
		if v != expect {
			t.Fatalf("At(%d) = %d, want %d", p, v, expect)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("random access too slow: %v for 10000 lookups", elapsed)
	}

	last, err := seq.At(seq.Len() - 1)
	if err != nil || last != 9 {
		t.Errorf("last symbol = %d, %v; want 9", last, err)
	}
}

func TestSequence_Terminals(t *testing.T) {
	seq := mustBuild(t, Compress([]int64{5, 3, 5, 3, 5, 3, 9, -2}))
	got := seq.Terminals()
	want := []int64{-2, 3, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSequence_Stats(t *testing.T) {
	b := NewBuilder()
	body, _ := b.Rule(Terminal(1), Terminal(2))
	loop, _ := b.Rule(Repeat(body, 10))
	b.Rule(Terminal(0), Ref(loop), Terminal(3))
	data := b.Bytes()

	st := mustBuild(t, data).Stats()
	if st.Rules != 3 {
		t.Errorf("expected 3 rules, got %d", st.Rules)
	}
	if st.Elements != 6 {
		t.Errorf("expected 6 elements, got %d", st.Elements)
	}
	if st.Length != 22 {
		t.Errorf("expected length 22, got %d", st.Length)
	}
	if st.Depth != 2 {
		t.Errorf("expected depth 2, got %d", st.Depth)
	}
	if st.Bytes != len(data) {
		t.Errorf("expected %d bytes, got %d", len(data), st.Bytes)
	}
	if st.Terminals != 4 {
		t.Errorf("expected 4 terminals, got %d", st.Terminals)
	}
}

func TestBuilder_RejectsInvalidRules(t *testing.T) {
	b := NewBuilder()
	if _, err := b.Rule(); err == nil {
		t.Error("expected error for empty rule")
	}
	if _, err := b.Rule(Ref(0)); err == nil {
		t.Error("expected error for reference to undefined rule")
	}
	id, err := b.Rule(Terminal(1))
	if err != nil {
		t.Fatalf("rule error: %v", err)
	}
	if _, err := b.Rule(Repeat(id, 0)); err == nil {
		t.Error("expected error for zero repeat count")
	}
	if _, err := b.Rule(Ref(id + 1)); err == nil {
		t.Error("expected error for self reference")
	}
	if b.Rules() != 1 {
		t.Errorf("rejected rules must not be added, got %d rules", b.Rules())
	}
}
