package navigator

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/grammar"
	"github.com/vinayprograms/tracenav/internal/tracedata"
)

var (
	main13 = event.Event{ClassID: 0, Class: "com.company.Main", Line: 13}
	main15 = event.Event{ClassID: 0, Class: "com.company.Main", Line: 15}
	test21 = event.Event{ClassID: 1, Class: "com.company.TestClass", Line: 21}
)

func encode(t *testing.T, pairs ...[2]int) []byte {
	t.Helper()
	p := event.BitPacking{LineBits: 32}
	symbols := make([]int64, len(pairs))
	for i, pair := range pairs {
		sym, err := p.Pack(pair[0], pair[1])
		if err != nil {
			t.Fatalf("pack error: %v", err)
		}
		symbols[i] = sym
	}
	return grammar.Compress(symbols)
}

type recorder struct {
	threads []int64
	events  []event.Event
	dirs    []Direction
}

func (r *recorder) Show(thread int64, ev event.Event, dir Direction) {
	r.threads = append(r.threads, thread)
	r.events = append(r.events, ev)
	r.dirs = append(r.dirs, dir)
}

func newSession(t *testing.T, extra map[int64][]byte, loadOpts ...tracedata.LoadOption) (*Session, *recorder, *test.Hook) {
	t.Helper()
	threads := map[int64][]byte{
		1: encode(t, [2]int{0, 13}, [2]int{0, 15}, [2]int{1, 21}),
		2: encode(t, [2]int{1, 3}, [2]int{1, 4}),
	}
	for id, b := range extra {
		threads[id] = b
	}
	mem := tracedata.NewMemoryProvider()
	mem.Save("run1", &tracedata.Data{
		Threads: threads,
		Symbols: map[int]string{0: "com.company.Main", 1: "com.company.TestClass"},
	})

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	coll, err := tracedata.Load(context.Background(), mem, "run1",
		append([]tracedata.LoadOption{tracedata.WithLogger(logger)}, loadOpts...)...)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	hook.Reset()

	rec := &recorder{}
	s := New(coll, WithLogger(logger))
	s.AddSink(rec)
	return s, rec, hook
}

func TestStep_ForwardScenario(t *testing.T) {
	s, rec, _ := newSession(t, nil)

	for i := 0; i < 3; i++ {
		if _, ok := s.Step("Thread 1", Forward); !ok {
			t.Fatalf("step %d failed", i)
		}
	}
	if _, ok := s.Step("Thread 1", Forward); ok {
		t.Error("expected no event past the end")
	}

	want := []event.Event{main13, main15, test21}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("sink events mismatch (-want +got):\n%s", diff)
	}
}

func TestStep_BackwardFirstStartsAtEnd(t *testing.T) {
	s, rec, _ := newSession(t, nil)

	for {
		if _, ok := s.Step("Thread 1", Backward); !ok {
			break
		}
	}

	want := []event.Event{test21, main15, main13}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("sink events mismatch (-want +got):\n%s", diff)
	}
	for _, d := range rec.dirs {
		if d != Backward {
			t.Errorf("expected backward direction, got %v", d)
		}
	}
}

func TestStep_NextThenPreviousRepeatsEvent(t *testing.T) {
	s, _, _ := newSession(t, nil)

	s.StepThread(1, Forward)
	fwd, _ := s.StepThread(1, Forward)
	back, ok := s.StepThread(1, Backward)
	if !ok || fwd != back || fwd != main15 {
		t.Errorf("forward %v then backward %v, want %v twice", fwd, back, main15)
	}
}

func TestCursor_Identity(t *testing.T) {
	s, _, _ := newSession(t, nil)

	a, err := s.Cursor(1, Forward)
	if err != nil {
		t.Fatalf("cursor error: %v", err)
	}
	b, err := s.Cursor(1, Backward)
	if err != nil {
		t.Fatalf("cursor error: %v", err)
	}
	if a != b {
		t.Fatal("expected the same cursor for both directions")
	}
	if b.Position() != 0 {
		t.Errorf("first request was forward, expected position 0, got %d", b.Position())
	}

	s.StepThread(1, Forward)
	s.StepThread(1, Forward)
	if a.Position() != 2 {
		t.Errorf("steps must move the cached cursor, position %d", a.Position())
	}

	// A backward-first thread keeps its end origin for later forward requests.
	s.StepThread(2, Backward)
	c, _ := s.Cursor(2, Forward)
	if c.Position() != 1 {
		t.Errorf("expected position 1, got %d", c.Position())
	}
}

func TestCursor_ConcurrentFirstAccess(t *testing.T) {
	s, _, _ := newSession(t, nil)

	const n = 32
	got := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := Forward
			if i%2 == 1 {
				dir = Backward
			}
			c, err := s.Cursor(1, dir)
			if err != nil {
				t.Errorf("cursor error: %v", err)
				return
			}
			got[i] = c
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if got[i] != got[0] {
			t.Fatal("concurrent first access created more than one cursor")
		}
	}
}

func TestStep_UnknownThreadChangesNothing(t *testing.T) {
	s, rec, hook := newSession(t, nil)
	s.StepThread(1, Forward)
	c, _ := s.Cursor(1, Forward)

	for _, ref := range []string{"Thread 99", "Thread x", "Tab 1", ""} {
		if _, ok := s.Step(ref, Forward); ok {
			t.Errorf("Step(%q) reported an event", ref)
		}
	}
	if _, err := s.Cursor(99, Forward); !errors.Is(err, ErrInvalidThreadReference) {
		t.Errorf("expected ErrInvalidThreadReference, got %v", err)
	}

	if c.Position() != 1 || len(rec.events) != 1 {
		t.Errorf("existing state changed: position %d, %d events", c.Position(), len(rec.events))
	}
	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 4 {
		t.Errorf("expected 4 warnings, got %d", warnings)
	}
}

func TestStep_DecodeErrorIsDropped(t *testing.T) {
	s, rec, hook := newSession(t,
		map[int64][]byte{3: encode(t, [2]int{0, 1}, [2]int{9, 2})},
		tracedata.WithSymbolValidation(false))

	if _, ok := s.StepThread(3, Forward); !ok {
		t.Fatal("first step failed")
	}
	if _, ok := s.StepThread(3, Forward); ok {
		t.Error("expected undecodable event to be dropped")
	}
	c, _ := s.Cursor(3, Forward)
	if c.Position() != 1 {
		t.Errorf("expected position 1, got %d", c.Position())
	}
	if len(rec.events) != 1 {
		t.Errorf("expected 1 event at the sink, got %d", len(rec.events))
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.ErrorLevel {
		t.Error("expected an error log entry")
	}
}

func TestThreadRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    int64
		wantErr bool
	}{
		{"Thread 1", 1, false},
		{"Thread 140234", 140234, false},
		{"Thread -2", -2, false},
		{"Thread", 0, true},
		{"Thread ", 0, true},
		{"thread 1", 0, true},
		{"Thread 1a", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseThreadRef(tt.ref)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidThreadReference) {
				t.Errorf("ParseThreadRef(%q): expected ErrInvalidThreadReference, got %v", tt.ref, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseThreadRef(%q) = %d, %v; want %d", tt.ref, got, err, tt.want)
		}
		if ThreadRef(got) != tt.ref {
			t.Errorf("ThreadRef(%d) = %q, want %q", got, ThreadRef(got), tt.ref)
		}
	}
}

func TestDump(t *testing.T) {
	s, _, _ := newSession(t, nil)
	s.StepThread(1, Forward)

	var buf bytes.Buffer
	if err := s.Dump(&buf, 0); err != nil {
		t.Fatalf("dump error: %v", err)
	}
	want := "Thread 1\n" +
		"  com.company.Main: 13\n" +
		"  com.company.Main: 15\n" +
		"  com.company.TestClass: 21\n" +
		"Thread 2\n" +
		"  com.company.TestClass: 3\n" +
		"  com.company.TestClass: 4\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := s.Dump(&buf, 1, 2); err != nil {
		t.Fatalf("dump error: %v", err)
	}
	if diff := cmp.Diff("Thread 2\n  com.company.TestClass: 3\n", buf.String()); diff != "" {
		t.Errorf("filtered dump mismatch (-want +got):\n%s", diff)
	}
	if err := s.Dump(&buf, 0, 9); !errors.Is(err, ErrInvalidThreadReference) {
		t.Errorf("expected ErrInvalidThreadReference for unknown thread, got %v", err)
	}

	lines, err := s.Lines(1, 2)
	if err != nil || len(lines) != 2 {
		t.Errorf("expected 2 limited lines, got %v, %v", lines, err)
	}
}

func TestClose(t *testing.T) {
	s, rec, _ := newSession(t, nil)
	s.Close()

	if _, ok := s.StepThread(1, Forward); ok {
		t.Error("expected steps to be dropped after Close")
	}
	if len(s.Threads()) != 0 || len(rec.events) != 0 {
		t.Error("closed session must expose nothing")
	}
}

func TestSession_IDs(t *testing.T) {
	a, _, _ := newSession(t, nil)
	b, _, _ := newSession(t, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct session ids, got %q and %q", a.ID, b.ID)
	}

	var got []event.Event
	var from []int64
	a.AddSink(SinkFunc(func(thread int64, ev event.Event, dir Direction) {
		from = append(from, thread)
		got = append(got, ev)
	}))
	a.StepThread(2, Forward)
	if len(got) != 1 || got[0].Line != 3 {
		t.Errorf("unexpected events at added sink: %v", got)
	}
	if len(from) != 1 || from[0] != 2 {
		t.Errorf("expected the event to name thread 2, got %v", from)
	}
}

func TestPositions_Restore(t *testing.T) {
	s, _, _ := newSession(t, nil)
	s.StepThread(1, Forward)
	s.StepThread(1, Forward)
	s.StepThread(2, Backward)

	saved := s.Positions()
	if diff := cmp.Diff(map[int64]int64{1: 2, 2: 1}, saved); diff != "" {
		t.Fatalf("positions mismatch (-want +got):\n%s", diff)
	}

	next, rec, hook := newSession(t, nil)
	saved[9] = 4
	saved[2] = 99
	next.Restore(saved)

	if pos, _ := next.Position(1); pos != 2 {
		t.Errorf("thread 1 restored at %d, want 2", pos)
	}
	if pos, _ := next.Position(2); pos != 2 {
		t.Errorf("thread 2 must clamp to its length, got %d", pos)
	}
	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("expected one warning for the unknown thread, got %d entries", len(hook.Entries))
	}

	if ev, ok := next.StepThread(1, Forward); !ok || ev != test21 {
		t.Errorf("expected step after restore to show %v, got %v %v", test21, ev, ok)
	}
	if len(rec.events) != 1 {
		t.Errorf("expected one shown event, got %d", len(rec.events))
	}
}

func TestRestore_KeepsExistingCursor(t *testing.T) {
	s, rec, _ := newSession(t, nil)
	held, err := s.Cursor(1, Forward)
	if err != nil {
		t.Fatalf("cursor error: %v", err)
	}

	s.Restore(map[int64]int64{1: 2})

	again, _ := s.Cursor(1, Backward)
	if again != held {
		t.Fatal("restore replaced the thread's cursor")
	}
	if held.Position() != 2 {
		t.Errorf("expected held cursor at 2, got %d", held.Position())
	}

	s.StepThread(1, Forward)
	if held.Position() != 3 {
		t.Errorf("expected the held cursor to see the step, got %d", held.Position())
	}
	if diff := cmp.Diff([]int64{1}, rec.threads); diff != "" {
		t.Errorf("sink threads mismatch (-want +got):\n%s", diff)
	}
}
