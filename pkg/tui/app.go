package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/inputs"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/render"
)

// --- Tea messages ---

// execDoneMsg is sent after a start, resume or restart returns.
type execDoneMsg struct {
	op  string
	err error
}

// fileSelectedMsg is sent after the file dialog closes.
type fileSelectedMsg struct {
	path  string
	reset bool
	err   error
}

// changedMsg is sent when the executor's state changes.
type changedMsg struct{}

// --- Model ---

// Model is the top-level Bubble Tea model for the TUI.
type Model struct {
	ctx    context.Context
	exec   *execution.Executor
	dialog execution.FileDialog
	notes  *notify.Recorder

	changes <-chan struct{}
	stop    func()

	spinner  spinner.Model
	viewport viewport.Model
	input    textinput.Model

	cursor    int
	editing   bool
	busy      bool
	autoStart bool

	message  string
	msgStyle lipgloss.Style
	lastHTML string

	width  int
	height int
}

// Config holds the parameters needed to launch the TUI.
type Config struct {
	Executor *execution.Executor
	// Dialog backs the open key. Nil outside desktop mode.
	Dialog execution.FileDialog
	// Notes should be the notifier the executor reports to; its entries
	// are shown in the status line.
	Notes *notify.Recorder
	// AutoStart starts the calculation as soon as the TUI opens.
	AutoStart bool
}

// NewModel builds the model without starting a program.
func NewModel(ctx context.Context, cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "value or expression"
	ti.CharLimit = 4096
	ti.Width = 60

	changes, stop := cfg.Executor.Changed().Subscribe()
	m := Model{
		ctx:       ctx,
		exec:      cfg.Executor,
		dialog:    cfg.Dialog,
		notes:     cfg.Notes,
		changes:   changes,
		stop:      stop,
		spinner:   sp,
		viewport:  viewport.New(80, 10),
		input:     ti,
		msgStyle:  infoStyle,
		autoStart: cfg.AutoStart,
	}
	m.refreshHTML()
	return m
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, cfg Config) error {
	m := NewModel(ctx, cfg)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// startRequest triggers a start from Init.
type startRequest struct{}

// Init returns the initial commands: start spinner, listen for changes and,
// with AutoStart, start the calculation.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.listenForChanges()}
	if m.autoStart {
		cmds = append(cmds, func() tea.Msg { return startRequest{} })
	}
	return tea.Batch(cmds...)
}

// listenForChanges waits for the next executor state change.
func (m Model) listenForChanges() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// runOp performs an execution operation off the UI loop.
func (m Model) runOp(op string) tea.Cmd {
	ctx, exec := m.ctx, m.exec
	return func() tea.Msg {
		var err error
		switch op {
		case "start":
			err = exec.Start(ctx, nil)
		case "resume":
			err = exec.Resume(ctx)
		case "restart":
			err = exec.Restart(ctx)
		}
		return execDoneMsg{op: op, err: err}
	}
}

// openFile opens the desktop file dialog.
func (m Model) openFile() tea.Cmd {
	ctx := m.ctx
	sel := &execution.LocalFileSelector{Dialog: m.dialog, Executor: m.exec}
	return func() tea.Msg {
		path, reset, err := sel.Select(ctx)
		return fileSelectedMsg{path: path, reset: reset, err: err}
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case startRequest:
		if m.exec.CanStart() {
			return m.begin("start")
		}

	case execDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setMessage(errorStyle, msg.op+" failed: "+msg.err.Error())
		} else {
			m.setMessage(infoStyle, msg.op+" done")
		}
		m.drainNotes()
		m.clampCursor()
		m.refreshHTML()

	case fileSelectedMsg:
		switch {
		case msg.err != nil:
			m.setMessage(errorStyle, msg.err.Error())
		case msg.path == "":
			m.setMessage(infoStyle, "no file selected")
		default:
			m.setMessage(infoStyle, "opened "+calc.DisplayName(msg.path))
			m.cursor = 0
		}
		m.refreshHTML()

	case changedMsg:
		m.refreshHTML()
		cmds = append(cmds, m.listenForChanges())
	}

	return m, tea.Batch(cmds...)
}

// begin issues an execution op unless one is already in flight.
func (m Model) begin(op string) (tea.Model, tea.Cmd) {
	if m.busy || m.exec.IsExecuting() {
		return m, nil
	}
	m.busy = true
	m.setMessage(infoStyle, op+"…")
	return m, tea.Batch(m.spinner.Tick, m.runOp(op))
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		return m.handleEditKey(msg)
	}

	switch {
	case matchKey(msg, keys.Quit):
		return m, tea.Quit

	case matchKey(msg, keys.Start):
		if m.exec.CanStart() {
			return m.begin("start")
		}
		m.setMessage(infoStyle, "session running; R restarts")

	case matchKey(msg, keys.Resume):
		if m.exec.CanResume() {
			return m.begin("resume")
		}

	case matchKey(msg, keys.Restart):
		if m.exec.CanRestart() {
			return m.begin("restart")
		}

	case matchKey(msg, keys.Open):
		if !m.busy {
			return m, m.openFile()
		}

	case matchKey(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case matchKey(msg, keys.Down):
		if m.cursor < len(fieldRefs(m.exec.Result().Windows))-1 {
			m.cursor++
		}

	case matchKey(msg, keys.PgUp):
		m.viewport.HalfViewUp()

	case matchKey(msg, keys.PgDown):
		m.viewport.HalfViewDown()

	case matchKey(msg, keys.Edit):
		return m.beginEdit()
	}
	return m, nil
}

// beginEdit opens the text input on the selected field.
func (m Model) beginEdit() (tea.Model, tea.Cmd) {
	if m.busy || !m.exec.CanResume() && !m.exec.CanStart() {
		return m, nil
	}
	res := m.exec.Result()
	refs := fieldRefs(res.Windows)
	if m.cursor >= len(refs) {
		return m, nil
	}
	ref := refs[m.cursor]
	f := res.Windows[ref.window].Fields[ref.field]

	m.editing = true
	m.input.Reset()
	if f.Value != nil {
		m.input.SetValue(render.FormatValue(f.Value))
	}
	m.input.Prompt = render.FieldLabel(f) + ": "
	return m, m.input.Focus()
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case matchKey(msg, keys.Cancel):
		m.editing = false
		m.input.Blur()
		return m, nil
	case matchKey(msg, keys.Edit):
		m.editing = false
		m.input.Blur()
		m.commitEdit(m.input.Value())
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// commitEdit evaluates text and stores it in the selected field.
func (m *Model) commitEdit(text string) {
	res := m.exec.Result()
	refs := fieldRefs(res.Windows)
	if m.cursor >= len(refs) {
		return
	}
	ref := refs[m.cursor]
	w := res.Windows[ref.window]
	f := w.Fields[ref.field]

	a := inputs.Assignment{Window: w.Title, Field: f.Name, Source: strings.TrimSpace(text)}
	value := a.Eval(calc.Defaults{w.Title: calc.InputValues([]calc.Window{w})[w.Title]})
	if err := m.exec.SetFieldValue(ref.window, f.Name, value); err != nil {
		m.setMessage(errorStyle, err.Error())
		return
	}
	m.setMessage(infoStyle, fmt.Sprintf("%s = %s", f.Name, render.FormatValue(value)))
}

func (m *Model) setMessage(style lipgloss.Style, text string) {
	m.msgStyle = style
	m.message = text
}

// drainNotes moves the latest notification into the status line.
func (m *Model) drainNotes() {
	if m.notes == nil {
		return
	}
	entries := m.notes.Drain()
	if len(entries) == 0 {
		return
	}
	last := entries[len(entries)-1]
	switch last.Level {
	case "success":
		m.setMessage(successStyle, notify.Text(last.Message))
	case "error":
		m.setMessage(errorStyle, notify.Text(last.Message))
	default:
		m.setMessage(infoStyle, notify.Text(last.Message))
	}
}

func (m *Model) clampCursor() {
	n := len(fieldRefs(m.exec.Result().Windows))
	if m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

// refreshHTML re-renders the report when it changed.
func (m *Model) refreshHTML() {
	html := m.exec.Result().HTML
	if html == m.lastHTML && m.viewport.TotalLineCount() > 0 {
		return
	}
	m.lastHTML = html
	if html == "" {
		m.viewport.SetContent(infoStyle.Render("No report output yet."))
		return
	}
	m.viewport.SetContent(render.HTML(html, max(m.viewport.Width-2, 20)))
}

// layout sizes the report viewport to the space below the field panel.
func (m *Model) layout() {
	w := max(m.width-2, 20)
	h := max(m.height/2-2, 3)
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = max(w-20, 10)
	m.lastHTML = "\x00"
	m.refreshHTML()
}

// View renders the whole screen.
func (m Model) View() string {
	res := m.exec.Result()
	src := m.exec.Source()

	name := src.DisplayName
	if name == "" {
		name = src.ReportOid
	}
	if name == "" {
		name = "no report selected"
	}
	status := render.Status(res, m.busy || m.exec.IsExecuting())
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	header := headerStyle.Render("uzoncalc · "+name) + "  " + status

	fieldsHeight := max(m.height-m.viewport.Height-8, 3)
	if m.height == 0 {
		fieldsHeight = 0
	}
	fields := panelTitle.Render("Inputs") + "\n" + renderFields(res.Windows, m.cursor, m.width, fieldsHeight)
	report := panelBorder.Render(m.viewport.View())

	var b strings.Builder
	b.WriteString(header + "\n\n")
	b.WriteString(fields + "\n\n")
	b.WriteString(report + "\n")
	if m.editing {
		b.WriteString(m.input.View() + "\n")
	} else if m.message != "" {
		b.WriteString(m.msgStyle.Render(m.message) + "\n")
	}
	b.WriteString(keyBarStyle.Render(keyBarText(m.editing, m.busy, m.exec.CanStart(), m.exec.CanResume(), m.exec.CanRestart())))
	return b.String()
}

// Close releases the model's change subscription.
func (m Model) Close() {
	m.stop()
}
