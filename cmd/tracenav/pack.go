package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/grammar"
	"github.com/vinayprograms/tracenav/internal/tracedata"
)

func (c *PackCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if c.Input != "-" {
		f, err := os.Open(c.Input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}
	return a.pack(c.Session, in, c.MaxPeriod, os.Stdout)
}

func (a *app) pack(sessionID string, in io.Reader, maxPeriod int, w io.Writer) error {
	if err := tracedata.ValidateSessionID(sessionID); err != nil {
		return err
	}
	packing, err := a.cfg.PackingScheme()
	if err != nil {
		return err
	}
	data, events, err := encodeTrace(in, packing, maxPeriod)
	if err != nil {
		return err
	}

	s, closer, err := a.openStore(false)
	if err != nil {
		return err
	}
	defer closer.Close()
	if err := s.Save(sessionID, data); err != nil {
		return err
	}

	size := 0
	for _, b := range data.Threads {
		size += len(b)
	}
	a.logger.WithFields(map[string]interface{}{
		"session": sessionID,
		"threads": len(data.Threads),
		"events":  events,
		"bytes":   size,
	}).Info("packed trace")
	fmt.Fprintf(w, "packed %d events in %d threads into %d bytes\n", events, len(data.Threads), size)
	return nil
}

// encodeTrace reads "<thread> <class> <line>" lines, numbering classes in
// order of first appearance. Blank lines and lines starting with # are
// skipped.
func encodeTrace(in io.Reader, packing event.Packing, maxPeriod int) (*tracedata.Data, int, error) {
	classIDs := make(map[string]int)
	symbols := make(map[int64][]int64)
	data := &tracedata.Data{
		Threads: make(map[int64][]byte),
		Symbols: make(map[int]string),
	}

	scanner := bufio.NewScanner(in)
	lineNo, events := 0, 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return nil, 0, fmt.Errorf("line %d: expected <thread> <class> <line>, got %q", lineNo, text)
		}
		thread, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: invalid thread: %w", lineNo, err)
		}
		line, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: invalid line number: %w", lineNo, err)
		}

		id, ok := classIDs[fields[1]]
		if !ok {
			id = len(classIDs)
			classIDs[fields[1]] = id
			data.Symbols[id] = fields[1]
		}
		sym, err := packing.Pack(id, line)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		symbols[thread] = append(symbols[thread], sym)
		events++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read input: %w", err)
	}

	for thread, syms := range symbols {
		data.Threads[thread] = grammar.Compress(syms, grammar.WithMaxPeriod(maxPeriod))
	}
	return data, events, nil
}
