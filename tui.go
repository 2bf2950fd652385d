package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/sasha-s/go-deadlock"
)

// tuiView is the terminal rendering layer. Controller operations run inside
// tea.Cmds, so the view is shared between goroutines.
type tuiView struct {
	lock  deadlock.Mutex
	cells []Cell
	// index[col][row] is the cell id at that position
	index [][]int
}

var _ View = (*tuiView)(nil)

func (v *tuiView) Render(cells []Cell) {
	var index [][]int
	for _, c := range cells {
		for len(index) <= c.Col {
			index = append(index, nil)
		}
		index[c.Col] = append(index[c.Col], c.ID)
	}

	v.lock.Lock()
	v.cells = cells
	v.index = index
	v.lock.Unlock()
}

func (v *tuiView) SetSelected(id int, selected bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if id >= 0 && id < len(v.cells) {
		v.cells[id].Selected = selected
	}
}

func (v *tuiView) cell(id int) (Cell, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if id < 0 || id >= len(v.cells) {
		return Cell{}, false
	}
	return v.cells[id], true
}

// at returns the id at col/row, clamping row to the column's length.
func (v *tuiView) at(col, row int) (int, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if col < 0 || col >= len(v.index) || len(v.index[col]) == 0 {
		return 0, false
	}
	row = max(0, min(row, len(v.index[col])-1))
	return v.index[col][row], true
}

type tuiKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Left   key.Binding
	Right  key.Binding
	Toggle key.Binding
	Save   key.Binding
	Reset  key.Binding
	Reload key.Binding
	Quit   key.Binding
}

func (k tuiKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Save, k.Reset, k.Reload, k.Quit}
}

func (k tuiKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Toggle, k.Save, k.Reset, k.Reload, k.Quit},
	}
}

func defaultTUIKeyMap() tuiKeyMap {
	return tuiKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "left"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "right"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "mark"),
		),
		Save: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "save"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Reload: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "reload"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

var (
	tuiEnabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#eeeeee"))
	tuiDisabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	tuiSelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ee3333"))
	tuiCursorStyle   = lipgloss.NewStyle().Reverse(true)
	tuiStatusStyle   = lipgloss.NewStyle().Faint(true)
	tuiErrorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ee3333")).Bold(true)
)

// opDoneMsg is the result of a controller operation run as a tea.Cmd.
type opDoneMsg struct {
	op  string
	err error
}

type tuiModel struct {
	ctx  context.Context
	ctrl *Controller
	view *tuiView
	keys tuiKeyMap
	help help.Model

	cursor   int
	inFlight int
	status   string
	err      error
}

func newTUIModel(ctx context.Context, api GridAPI) tuiModel {
	view := &tuiView{}
	return tuiModel{
		ctx:  ctx,
		ctrl: NewController(api, view),
		view: view,
		keys: defaultTUIKeyMap(),
		help: help.New(),
	}
}

func (m tuiModel) run(op string, fn func(context.Context) error) (tuiModel, tea.Cmd) {
	m.inFlight++
	m.status = op + "…"
	ctx := m.ctx
	return m, func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m tuiModel) Init() tea.Cmd {
	ctx := m.ctx
	load := m.ctrl.Load
	return func() tea.Msg {
		return opDoneMsg{op: "load", err: load(ctx)}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case opDoneMsg:
		if m.inFlight > 0 {
			m.inFlight--
		}
		m.err = msg.err
		if msg.err != nil {
			log.Printf("%s failed: %s", msg.op, msg.err.Error())
			m.status = msg.op + " failed"
		} else {
			m.status = msg.op + " done"
		}
		if _, ok := m.view.cell(m.cursor); !ok {
			m.cursor = 0
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.move(0, -1)
		case key.Matches(msg, m.keys.Down):
			m.move(0, 1)
		case key.Matches(msg, m.keys.Left):
			m.move(-1, 0)
		case key.Matches(msg, m.keys.Right):
			m.move(1, 0)
		case key.Matches(msg, m.keys.Toggle):
			if c, ok := m.view.cell(m.cursor); ok && c.OnClick != nil {
				c.OnClick()
			}
		case key.Matches(msg, m.keys.Save):
			return m.run("save", m.ctrl.Save)
		case key.Matches(msg, m.keys.Reset):
			return m.run("reset", m.ctrl.Reset)
		case key.Matches(msg, m.keys.Reload):
			return m.run("load", m.ctrl.Load)
		}
	}

	return m, nil
}

func (m *tuiModel) move(dc, dr int) {
	c, ok := m.view.cell(m.cursor)
	if !ok {
		return
	}
	if id, ok := m.view.at(c.Col+dc, c.Row+dr); ok {
		m.cursor = id
	}
}

func (m tuiModel) View() string {
	m.view.lock.Lock()
	cells := make([]Cell, len(m.view.cells))
	copy(cells, m.view.cells)
	m.view.lock.Unlock()

	var b strings.Builder
	rows := newFieldData(cells, 0).Rows
	lines := make([][]string, rows)
	for _, c := range cells {
		for len(lines[c.Row]) < c.Col {
			lines[c.Row] = append(lines[c.Row], "  ")
		}
		lines[c.Row] = append(lines[c.Row], renderTUICell(c, c.ID == m.cursor))
	}
	for _, line := range lines {
		b.WriteString(strings.Join(line, ""))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	pending := len(m.ctrl.Pending())
	b.WriteString(tuiStatusStyle.Render(fmt.Sprintf("%d cells, %d marked  %s", len(cells), pending, m.status)))
	b.WriteByte('\n')
	if m.err != nil {
		b.WriteString(tuiErrorStyle.Render(m.err.Error()))
		b.WriteByte('\n')
	}
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func renderTUICell(c Cell, cursor bool) string {
	var s string
	switch {
	case c.Selected:
		s = tuiSelectedStyle.Render("◆ ")
	case c.Enabled:
		s = tuiEnabledStyle.Render("██")
	default:
		s = tuiDisabledStyle.Render("░░")
	}
	if cursor {
		s = tuiCursorStyle.Render(s)
	}
	return s
}

func runTUI(ctx context.Context, cfg Config) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return errors.New("the terminal client needs a terminal on stdout")
	}

	if cfg.LogFile != "" {
		f, err := tea.LogToFile(cfg.LogFile, "grid")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	client, err := NewClient(cfg.Connect, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(newTUIModel(ctx, client), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
