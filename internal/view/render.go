package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/navigator"
	"github.com/vinayprograms/tracenav/internal/sbfl"
)

// Renderer prints a session's threads as a static listing.
type Renderer struct {
	output io.Writer
	scores sbfl.Scores
	limit  int64
	width  int
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithScores annotates lines with their fault-localization score.
func WithScores(s sbfl.Scores) RendererOption {
	return func(r *Renderer) {
		r.scores = s
	}
}

// WithLimit caps the events printed per thread.
func WithLimit(n int64) RendererOption {
	return func(r *Renderer) {
		r.limit = n
	}
}

// WithWidth wraps output to width columns.
func WithWidth(w int) RendererOption {
	return func(r *Renderer) {
		r.width = w
	}
}

// NewRenderer creates a renderer writing to output.
func NewRenderer(output io.Writer, opts ...RendererOption) *Renderer {
	r := &Renderer{output: output, limit: 1000}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render prints the given threads, or all of them when threads is empty.
func (r *Renderer) Render(sess *navigator.Session, threads ...int64) error {
	if len(threads) == 0 {
		threads = sess.Threads()
	}
	if len(threads) == 0 {
		_, err := fmt.Fprintln(r.output, dimStyle.Render("no traces"))
		return err
	}

	var b strings.Builder
	for _, thread := range threads {
		n, ok := sess.Len(thread)
		if !ok {
			return fmt.Errorf("%w: no trace for thread %d", navigator.ErrInvalidThreadReference, thread)
		}
		fmt.Fprintf(&b, "%s %s\n%s\n", titleStyle.Render(navigator.ThreadRef(thread)),
			dimStyle.Render(fmt.Sprintf("(%d events)", n)), divider)

		events, err := sess.Window(thread, 0, r.limit)
		for i, ev := range events {
			b.WriteString(formatRow(int64(i), ev, r.scores, false))
			b.WriteByte('\n')
		}
		if err != nil {
			b.WriteString(errorStyle.Render("  " + err.Error()))
			b.WriteByte('\n')
		} else if int64(len(events)) < n {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", n-int64(len(events)))))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(r.output, wrapContent(b.String(), r.width))
	return err
}

// formatRow renders "   seq │ class: line  score".
func formatRow(index int64, ev event.Event, scores sbfl.Scores, current bool) string {
	seq := seqStyle.Render(fmt.Sprintf("%d", index+1))
	text := classStyle.Render(ev.Class) + ": " + lineStyle.Render(fmt.Sprintf("%d", ev.Line))
	if current {
		text = currentStyle.Render(ev.String())
	}
	if v, ok := scores.Lookup(ev.Class, ev.Line); ok {
		text += "  " + scoreStyle(v).Render(fmt.Sprintf("%.2f", v))
	}
	return seq + " │ " + text
}

// wrapContent wraps each line to width, indenting continuation lines of
// table rows to the column after the last │.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}

	lines := strings.Split(content, "\n")
	var result []string

	for _, line := range lines {
		if lipgloss.Width(line) <= width {
			result = append(result, line)
			continue
		}

		if lastPipe := strings.LastIndex(line, "│"); lastPipe > 0 && lastPipe < len(line)-len("│") {
			contentStart := lastPipe + len("│")
			for contentStart < len(line) && line[contentStart] == ' ' {
				contentStart++
			}
			prefixWidth := lipgloss.Width(line[:contentStart])
			contentWidth := max(width-prefixWidth, 20)

			wrapped := strings.Split(wordwrap.String(line[contentStart:], contentWidth), "\n")
			result = append(result, line[:contentStart]+wrapped[0])
			indent := strings.Repeat(" ", prefixWidth)
			for _, w := range wrapped[1:] {
				result = append(result, indent+w)
			}
			continue
		}

		result = append(result, strings.Split(wordwrap.String(line, width), "\n")...)
	}

	return strings.Join(result, "\n")
}
