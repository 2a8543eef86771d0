package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vinayprograms/tracenav/internal/navigator"
	"github.com/vinayprograms/tracenav/internal/sbfl"
	"github.com/vinayprograms/tracenav/internal/symtab"
)

func (c *InspectCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	scores, err := loadScores(c.Scores)
	if err != nil {
		return err
	}
	return a.inspect(context.Background(), os.Stdout, c.Session, scores, c.Top)
}

func (a *app) inspect(ctx context.Context, w io.Writer, sessionID string, scores sbfl.Scores, top int) error {
	p, closer, err := a.openProvider()
	if err != nil {
		return err
	}
	defer closer.Close()

	sess, coll, err := a.loadSession(ctx, p, sessionID)
	if err != nil {
		return err
	}
	defer sess.Close()

	packing, _ := a.cfg.PackingScheme()
	fmt.Fprintf(w, "Session:  %s\n", sessionID)
	fmt.Fprintf(w, "Packing:  %s\n", packing)
	fmt.Fprintf(w, "Symbols:  %d\n", coll.Symbols().Len())
	fmt.Fprintf(w, "Threads:  %d loaded, %d skipped\n\n", len(coll.Threads()), len(coll.Skipped()))

	if !coll.Empty() {
		fmt.Fprintf(w, "%-16s %14s %6s %9s %6s %6s %9s\n",
			"THREAD", "EVENTS", "RULES", "ELEMENTS", "DEPTH", "TERMS", "BYTES")
		for _, thread := range coll.Threads() {
			seq, _ := coll.Trace(thread)
			st := seq.Stats()
			fmt.Fprintf(w, "%-16s %14d %6d %9d %6d %6d %9d\n",
				navigator.ThreadRef(thread), st.Length, st.Rules, st.Elements, st.Depth, st.Terminals, st.Bytes)
		}
	}

	skipped := coll.Skipped()
	if len(skipped) > 0 {
		ids := make([]int64, 0, len(skipped))
		for id := range skipped {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		fmt.Fprintln(w, "\nSkipped:")
		for _, id := range ids {
			fmt.Fprintf(w, "  %s: %v\n", navigator.ThreadRef(id), skipped[id])
		}
	}

	if len(scores) > 0 {
		printSuspicious(w, coll.Symbols(), scores, top)
	}
	return nil
}

// printSuspicious lists the highest-scored lines of every class in the run.
func printSuspicious(w io.Writer, symbols *symtab.Table, scores sbfl.Scores, top int) {
	fmt.Fprintln(w, "\nSuspicious lines:")
	for _, id := range symbols.IDs() {
		class, _ := symbols.ClassName(id)
		ranked := scores.Ranked(class)
		if top > 0 && len(ranked) > top {
			ranked = ranked[:top]
		}
		for _, sc := range ranked {
			fmt.Fprintf(w, "  %s:%d  %.2f\n", class, sc.Line, sc.Value)
		}
	}
}
