package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/vinayprograms/tracenav/internal/config"
	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/grammar"
	"github.com/vinayprograms/tracenav/internal/sbfl"
)

const sampleTrace = `# thread class line
1 com.company.Main 13
1 com.company.Main 15
1 com.company.TestClass 21

2 com.company.TestClass 3
`

func testApp(t *testing.T, kind string) *app {
	t.Helper()
	cfg := config.New()
	cfg.Source.Kind = kind
	cfg.Source.Path = t.TempDir()
	cfg.State.Dir = t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &app{cfg: cfg, logger: logger}
}

func TestEncodeTrace(t *testing.T) {
	p := event.BitPacking{LineBits: 32}
	data, events, err := encodeTrace(strings.NewReader(sampleTrace), p, 64)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if events != 4 {
		t.Errorf("expected 4 events, got %d", events)
	}
	if diff := cmp.Diff(map[int]string{0: "com.company.Main", 1: "com.company.TestClass"}, data.Symbols); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}

	seq, err := grammar.Build(data.Threads[1])
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	want := []int64{13, 15, 1<<32 | 21}
	for i, w := range want {
		got, err := seq.At(int64(i))
		if err != nil || got != w {
			t.Errorf("At(%d) = %d, %v; want %d", i, got, err, w)
		}
	}
}

func TestEncodeTrace_Errors(t *testing.T) {
	p := event.BitPacking{LineBits: 8}
	tests := []struct {
		name  string
		input string
	}{
		{"too few fields", "1 com.company.Main\n"},
		{"bad thread", "x com.company.Main 1\n"},
		{"bad line", "1 com.company.Main y\n"},
		{"line too wide", "1 com.company.Main 300\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := encodeTrace(strings.NewReader(tt.input), p, 64); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPackShowInspect(t *testing.T) {
	for _, kind := range []string{config.SourceDir, config.SourcePebble} {
		t.Run(kind, func(t *testing.T) {
			a := testApp(t, kind)
			ctx := context.Background()

			var out bytes.Buffer
			if err := a.pack("run1", strings.NewReader(sampleTrace), 64, &out); err != nil {
				t.Fatalf("pack error: %v", err)
			}
			if !strings.Contains(out.String(), "packed 4 events in 2 threads") {
				t.Errorf("unexpected pack output %q", out.String())
			}

			out.Reset()
			if err := a.show(ctx, &out, &ShowCmd{Session: "run1", Limit: 0}); err != nil {
				t.Fatalf("show error: %v", err)
			}
			for _, want := range []string{"Thread 1", "com.company.Main: 13", "com.company.TestClass: 21", "Thread 2"} {
				if !strings.Contains(out.String(), want) {
					t.Errorf("show output missing %q:\n%s", want, out.String())
				}
			}

			out.Reset()
			if err := a.inspect(ctx, &out, "run1", nil, 3); err != nil {
				t.Fatalf("inspect error: %v", err)
			}
			for _, want := range []string{"Symbols:  2", "2 loaded, 0 skipped", "bits(line=32)"} {
				if !strings.Contains(out.String(), want) {
					t.Errorf("inspect output missing %q:\n%s", want, out.String())
				}
			}

			out.Reset()
			if err := a.show(ctx, &out, &ShowCmd{Session: "run1", Thread: []int64{2}, Plain: true}); err != nil {
				t.Fatalf("plain show error: %v", err)
			}
			if diff := cmp.Diff("Thread 2\n  com.company.TestClass: 3\n", out.String()); diff != "" {
				t.Errorf("plain show mismatch (-want +got):\n%s", diff)
			}

			out.Reset()
			if err := a.list(ctx, &out); err != nil {
				t.Fatalf("list error: %v", err)
			}
			if strings.TrimSpace(out.String()) != "run1" {
				t.Errorf("expected run1 listed, got %q", out.String())
			}
		})
	}
}

func TestPack_RejectsBadSession(t *testing.T) {
	a := testApp(t, config.SourceDir)
	if err := a.pack("../x", strings.NewReader(sampleTrace), 64, io.Discard); err == nil {
		t.Error("expected error for invalid session id")
	}
}

func TestInspect_Suspicious(t *testing.T) {
	a := testApp(t, config.SourceDir)
	if err := a.pack("run1", strings.NewReader(sampleTrace), 64, io.Discard); err != nil {
		t.Fatalf("pack error: %v", err)
	}
	scores := sbfl.Scores{
		"com/company/Main":      {{Line: 13, Value: 0.2}, {Line: 15, Value: 0.9}, {Line: 17, Value: 0.5}},
		"com/company/TestClass": {{Line: 21, Value: 0.4}},
		"com/company/Unused":    {{Line: 1, Value: 1}},
	}

	var out bytes.Buffer
	if err := a.inspect(context.Background(), &out, "run1", scores, 2); err != nil {
		t.Fatalf("inspect error: %v", err)
	}
	_, section, ok := strings.Cut(out.String(), "Suspicious lines:\n")
	if !ok {
		t.Fatalf("missing suspicious section:\n%s", out.String())
	}
	want := "  com.company.Main:15  0.90\n" +
		"  com.company.Main:17  0.50\n" +
		"  com.company.TestClass:21  0.40\n"
	if diff := cmp.Diff(want, section); diff != "" {
		t.Errorf("suspicious lines mismatch (-want +got):\n%s", diff)
	}
}
