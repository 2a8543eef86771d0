package view

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/vinayprograms/tracenav/internal/event"
	"github.com/vinayprograms/tracenav/internal/navigator"
	"github.com/vinayprograms/tracenav/internal/sbfl"
)

// ReloadFunc loads a fresh session for the same run.
type ReloadFunc func() (*navigator.Session, error)

// fileChangedMsg is sent when the watched session directory changes.
type fileChangedMsg struct{}

// shown is the last event a step produced for a thread and where it sits.
type shown struct {
	ev    event.Event
	dir   navigator.Direction
	index int64
}

// Stepper is the Bubble Tea model of the interactive trace stepper.
type Stepper struct {
	sess    *navigator.Session
	scores  sbfl.Scores
	title   string
	threads []int64
	tab     int
	current map[int64]shown

	viewport viewport.Model
	ready    bool
	status   string

	jumping   bool
	jumpInput textinput.Model

	reload     ReloadFunc
	watcher    *fsnotify.Watcher
	lastUpdate time.Time
}

// NewStepper creates a stepper over sess.
func NewStepper(title string, sess *navigator.Session, scores sbfl.Scores) *Stepper {
	m := &Stepper{
		title:   title,
		scores:  scores,
		current: make(map[int64]shown),
	}
	m.attach(sess)
	return m
}

func (m *Stepper) attach(sess *navigator.Session) {
	m.sess = sess
	m.threads = sess.Threads()
	if m.tab >= len(m.threads) {
		m.tab = 0
	}
	sess.AddSink(navigator.SinkFunc(func(thread int64, ev event.Event, dir navigator.Direction) {
		pos, _ := sess.Position(thread)
		index := pos
		if dir == navigator.Forward {
			index = pos - 1
		}
		m.current[thread] = shown{ev: ev, dir: dir, index: index}
	}))
}

// Run starts the stepper.
func (m *Stepper) Run() error {
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

// RunLive starts the stepper and reloads the session whenever dir changes.
func (m *Stepper) RunLive(dir string, reload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	m.watcher = watcher
	m.reload = reload
	return m.Run()
}

func (m *Stepper) Init() tea.Cmd {
	if m.watcher != nil {
		return m.watchFile()
	}
	return nil
}

// watchFile returns a command that waits for changes to the session.
func (m *Stepper) watchFile() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					// Let the writer finish.
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

// Thread returns the selected thread.
func (m *Stepper) Thread() (int64, bool) {
	return m.thread()
}

// Select switches to thread's tab if the session has it.
func (m *Stepper) Select(thread int64) bool {
	for i, t := range m.threads {
		if t == thread {
			m.tab = i
			return true
		}
	}
	return false
}

// Positions snapshots the cursor positions of the current session.
func (m *Stepper) Positions() map[int64]int64 {
	return m.sess.Positions()
}

func (m *Stepper) thread() (int64, bool) {
	if len(m.threads) == 0 {
		return 0, false
	}
	return m.threads[m.tab], true
}

func (m *Stepper) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.jumping {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				m.jumping = false
				m.jumpTo(m.jumpInput.Value())
				m.refresh()
				return m, nil
			case "esc", "ctrl+c":
				m.jumping = false
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.jumpInput, cmd = m.jumpInput.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case fileChangedMsg:
		m.reloadSession()
		m.refresh()
		cmds = append(cmds, m.watchFile())

	case tea.KeyMsg:
		thread, ok := m.thread()
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "right", "l":
			if ok {
				m.step(thread, navigator.Forward)
			}
		case "left", "h":
			if ok {
				m.step(thread, navigator.Backward)
			}
		case "tab":
			if len(m.threads) > 0 {
				m.tab = (m.tab + 1) % len(m.threads)
				m.status = ""
			}
		case "shift+tab":
			if len(m.threads) > 0 {
				m.tab = (m.tab + len(m.threads) - 1) % len(m.threads)
				m.status = ""
			}
		case "g":
			if ok {
				m.seek(thread, 0)
			}
		case "G":
			if ok {
				n, _ := m.sess.Len(thread)
				m.seek(thread, n)
			}
		case ":":
			m.jumping = true
			m.jumpInput = textinput.New()
			m.jumpInput.Placeholder = "position"
			m.jumpInput.CharLimit = 20
			m.jumpInput.Width = 20
			m.jumpInput.Focus()
			return m, textinput.Blink
		default:
			return m, nil
		}
		m.refresh()
		return m, nil

	case tea.WindowSizeMsg:
		headerHeight, footerHeight := 2, 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, max(1, msg.Height-headerHeight-footerHeight))
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = max(1, msg.Height-headerHeight-footerHeight)
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Stepper) step(thread int64, dir navigator.Direction) {
	if _, ok := m.sess.StepThread(thread, dir); ok {
		m.status = ""
		return
	}
	if dir == navigator.Forward {
		m.status = "end of trace"
	} else {
		m.status = "start of trace"
	}
}

func (m *Stepper) seek(thread, pos int64) {
	dir := navigator.Forward
	if pos > 0 {
		dir = navigator.Backward
	}
	c, err := m.sess.Cursor(thread, dir)
	if err != nil {
		m.status = err.Error()
		return
	}
	if err := c.SeekTo(pos); err != nil {
		m.status = err.Error()
		return
	}
	delete(m.current, thread)
	m.status = fmt.Sprintf("at %d of %d", pos, c.Len())
}

func (m *Stepper) jumpTo(value string) {
	thread, ok := m.thread()
	if !ok {
		return
	}
	pos, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		m.status = fmt.Sprintf("not a position: %q", value)
		return
	}
	m.seek(thread, pos)
}

// reloadSession swaps in a fresh session and carries every navigated
// thread's position over, clamped to the new trace length.
func (m *Stepper) reloadSession() {
	if m.reload == nil {
		return
	}
	next, err := m.reload()
	if err != nil {
		m.status = "reload failed: " + err.Error()
		return
	}
	old := m.sess
	positions := old.Positions()
	next.Restore(positions)
	for thread := range positions {
		if _, ok := next.Len(thread); !ok {
			delete(m.current, thread)
		}
	}
	old.Close()

	tab, _ := m.thread()
	m.attach(next)
	m.Select(tab)
	m.lastUpdate = time.Now()
	m.status = "reloaded"
}

// refresh re-renders the window of events around the current thread's
// cursor into the viewport.
func (m *Stepper) refresh() {
	if !m.ready {
		return
	}
	thread, ok := m.thread()
	if !ok {
		m.viewport.SetContent(dimStyle.Render("no traces"))
		return
	}

	pos, _ := m.sess.Position(thread)
	height := int64(m.viewport.Height)
	from := max(0, pos-height/2)
	events, err := m.sess.Window(thread, from, height)

	cur, hasCur := m.current[thread]
	var b strings.Builder
	for i, ev := range events {
		index := from + int64(i)
		b.WriteString(formatRow(index, ev, m.scores, hasCur && cur.index == index))
		b.WriteByte('\n')
	}
	if err != nil {
		b.WriteString(errorStyle.Render(err.Error()))
	}
	m.viewport.SetContent(wrapContent(strings.TrimSuffix(b.String(), "\n"), m.viewport.Width))
	m.viewport.GotoTop()
}

func (m *Stepper) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	// Header: title and one tab per thread.
	tabs := []string{titleStyle.Render(m.title)}
	for i, t := range m.threads {
		style := tabStyle
		if i == m.tab {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(navigator.ThreadRef(t)))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center, tabs...)
	header += "\n" + dimStyle.Render(strings.Repeat("─", m.viewport.Width))

	var footer string
	if m.jumping {
		footer = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render(":") + m.jumpInput.View()
	} else {
		footer = m.statusLine()
	}
	help := " ←/→: step │ tab: thread │ g/G: start/end │ :: jump │ q: quit "
	if m.watcher != nil {
		live := "● LIVE"
		if !m.lastUpdate.IsZero() {
			live += " " + m.lastUpdate.Format("15:04:05")
		}
		help = " " + lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Render(live) + " │" + help
	}
	return header + "\n" + m.viewport.View() + "\n" + footer + "\n" + helpStyle.Render(help)
}

func (m *Stepper) statusLine() string {
	thread, ok := m.thread()
	if !ok {
		return dimStyle.Render(" no traces")
	}
	n, _ := m.sess.Len(thread)
	pos, _ := m.sess.Position(thread)
	line := fmt.Sprintf(" %d/%d", pos, n)
	if cur, ok := m.current[thread]; ok {
		arrow := "→"
		if cur.dir == navigator.Backward {
			arrow = "←"
		}
		line += " " + arrow + " " + currentStyle.Render(cur.ev.String())
		if v, ok := m.scores.Lookup(cur.ev.Class, cur.ev.Line); ok {
			line += " " + scoreStyle(v).Render(fmt.Sprintf("%.2f", v))
		}
	}
	if m.status != "" {
		line += "  " + dimStyle.Render(m.status)
	}
	return line
}
