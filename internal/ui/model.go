// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ata/internal/commands"
	"github.com/jeranaias/ata/internal/render"
	"github.com/jeranaias/ata/internal/session"
	"github.com/jeranaias/ata/internal/ui/styles"
	"github.com/jeranaias/ata/internal/util"
)

// Layout rows outside the conversation viewport.
const (
	inputHeight   = 3
	inputChrome   = 2 // input box border
	statusHeight  = 1
	helpHeight    = 1
	minViewport   = 3
	frameInterval = 33 * time.Millisecond
)

// Options configures the full-screen interface.
type Options struct {
	Session *session.Session

	// Sink must be one of the session's sinks. Run attaches the program.
	Sink *Sink

	Parser    *commands.Parser
	Completer *commands.Completer
	Theme     *styles.Theme

	// Markdown enables rendering of finished replies. It is rebuilt for the
	// window width.
	Markdown *render.Markdown

	// Describe turns an error into the line shown to the user.
	Describe func(error) string

	Logger *slog.Logger
}

type noteKind int

const (
	noteInfo noteKind = iota
	noteError
)

// note is command output or an error shown inline, after the first
// `after` finished turns.
type note struct {
	after int
	kind  noteKind
	text  string
}

// Model is the bubbletea model of the full-screen interface.
type Model struct {
	ctx       context.Context
	session   *session.Session
	parser    *commands.Parser
	completer *commands.Completer
	theme     *styles.Theme
	markdown  *render.Markdown
	describe  func(error) string
	logger    *slog.Logger

	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	width, height int
	ready         bool

	busy     bool // a prompt or command is running
	dirty    bool // transcript changed since the last redraw
	ticking  bool
	armed    bool // first Ctrl-C seen with nothing to stop
	status   string
	notes    []note
	opCancel context.CancelFunc
}

func newModel(ctx context.Context, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(true)
	}
	if opts.Parser == nil {
		opts.Parser = commands.NewParser(commands.NewRegistry())
	}
	if opts.Describe == nil {
		opts.Describe = func(err error) string { return err.Error() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Ask anything. Enter sends, Alt+Enter adds a line, /help lists commands."
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = opts.Theme.Info

	return Model{
		ctx:       ctx,
		session:   opts.Session,
		parser:    opts.Parser,
		completer: opts.Completer,
		theme:     opts.Theme,
		markdown:  opts.Markdown,
		describe:  opts.Describe,
		logger:    opts.Logger,
		keys:      keys,
		help:      help.New(),
		input:     ta,
		spinner:   sp,
	}
}

// Init starts the cursor blink and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.update(msg)
	return m, cmd
}

func (m *Model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd

	case turnStartedMsg, fragmentMsg:
		m.dirty = true
		return m.startTicking()

	case tickMsg:
		m.ticking = false
		if m.dirty {
			m.refresh()
		}
		if m.busy {
			return m.startTicking()
		}
		return nil

	case turnFinalizedMsg:
		m.refresh()
		return nil

	case replyDoneMsg:
		m.finishOp()
		m.logger.Debug("reply finished", "status", msg.Status, "error", msg.Err)
		if msg.Err != nil {
			m.addNote(noteError, m.describe(msg.Err))
		}
		m.refresh()
		return nil

	case commandDoneMsg:
		m.finishOp()
		m.logger.Debug("command finished", "command", msg.Name, "error", msg.Err)
		if msg.Quit {
			return tea.Quit
		}
		m.pruneNotes()
		if out := strings.TrimRight(msg.Output, "\n"); out != "" {
			m.addNote(noteInfo, out)
		}
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.addNote(noteError, m.describe(msg.Err))
		}
		m.refresh()
		return nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.interrupt(true)
	case key.Matches(msg, m.keys.Cancel):
		return m.interrupt(false)
	}
	m.armed = false

	switch {
	case key.Matches(msg, m.keys.Send):
		return m.send()
	case key.Matches(msg, m.keys.Save):
		m.save()
		return nil
	case key.Matches(msg, m.keys.Complete):
		m.complete()
		return nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// interrupt stops the reply or the running command. With nothing to stop,
// Ctrl-C quits: at once, or on the second press when ui.double_ctrlc is on.
func (m *Model) interrupt(quitKey bool) tea.Cmd {
	if m.session.Engine.Cancel() {
		m.status = "Stopping the reply."
		return nil
	}
	if m.opCancel != nil {
		m.opCancel()
		m.status = "Stopping."
		return nil
	}
	if !quitKey {
		m.status = ""
		return nil
	}
	if m.session.Config.Get().UI.DoubleCtrlC && !m.armed {
		m.armed = true
		m.status = "Press Ctrl-C again to exit."
		return nil
	}
	return tea.Quit
}

// send submits the input box as a prompt or runs it as a command.
func (m *Model) send() tea.Cmd {
	text := util.NormalizeInput(m.input.Value())
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if m.busy {
		m.status = "A reply is still streaming; wait for it or press Esc."
		return nil
	}
	m.input.Reset()
	m.status = ""

	ctx, cancel := context.WithCancel(m.ctx)
	m.opCancel = cancel
	m.busy = true

	if commands.IsCommand(text) {
		return m.runCommand(ctx, strings.TrimSpace(text))
	}
	m.dirty = true
	return tea.Batch(m.submit(ctx, text), m.startTicking())
}

func (m *Model) submit(ctx context.Context, text string) tea.Cmd {
	eng := m.session.Engine
	return func() tea.Msg {
		status, err := eng.Submit(ctx, text)
		return replyDoneMsg{Status: status, Err: err}
	}
}

func (m *Model) runCommand(ctx context.Context, line string) tea.Cmd {
	sess := m.session
	parser := m.parser
	theme := m.theme
	markdown := m.markdown
	width := m.viewport.Width
	return func() tea.Msg {
		var out bytes.Buffer
		env := &commands.Env{
			Session:  sess,
			Out:      &out,
			Theme:    theme,
			Width:    width,
			Markdown: markdown,
			Retry: func(ctx context.Context) error {
				_, err := sess.Engine.Retry(ctx)
				return err
			},
		}
		_, err := parser.Execute(ctx, env, line)
		if errors.Is(err, commands.ErrQuit) {
			return commandDoneMsg{Quit: true}
		}
		return commandDoneMsg{
			Name:   commands.ExtractCommandName(line),
			Output: out.String(),
			Err:    err,
		}
	}
}

func (m *Model) finishOp() {
	if m.opCancel != nil {
		m.opCancel()
		m.opCancel = nil
	}
	m.busy = false
}

// save writes the conversation under a default name (F2).
func (m *Model) save() {
	path, err := m.session.Save("")
	if err != nil {
		m.addNote(noteError, m.describe(err))
	} else {
		m.status = "Saved to " + path
	}
	m.refresh()
}

// complete applies Tab completion to the input box. Several candidates
// extend the input to their common prefix and are listed in the status line.
func (m *Model) complete() {
	if m.completer == nil {
		return
	}
	value := m.input.Value()
	candidates := m.completer.Lines(value)
	switch len(candidates) {
	case 0:
		return
	case 1:
		m.input.SetValue(candidates[0])
		m.status = ""
	default:
		if prefix := commonPrefix(candidates); len(prefix) > len(value) {
			m.input.SetValue(prefix)
		}
		m.status = strings.Join(candidates, "  ")
	}
}

func commonPrefix(values []string) string {
	if len(values) == 0 {
		return ""
	}
	prefix := []rune(values[0])
	for _, v := range values[1:] {
		for !strings.HasPrefix(v, string(prefix)) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return string(prefix)
}

// =============================================================================
// NOTES
// =============================================================================

func (m *Model) addNote(kind noteKind, text string) {
	m.notes = append(m.notes, note{
		after: len(m.session.Transcript.Finished()),
		kind:  kind,
		text:  text,
	})
}

// pruneNotes drops notes placed after turns that no longer exist, as
// after /clear or /load.
func (m *Model) pruneNotes() {
	n := len(m.session.Transcript.Finished())
	kept := m.notes[:0]
	for _, nt := range m.notes {
		if nt.after <= n {
			kept = append(kept, nt)
		}
	}
	m.notes = kept
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	vpHeight := height - inputHeight - inputChrome - statusHeight - helpHeight
	if vpHeight < minViewport {
		vpHeight = minViewport
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(width - inputChrome)
	m.help.Width = width

	if m.markdown != nil {
		m.markdown = render.NewMarkdown(width - 4)
	}
	m.refresh()
}

// refresh redraws the conversation, following the end when the view was
// already there.
func (m *Model) refresh() {
	m.dirty = false
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) startTicking() tea.Cmd {
	if m.ticking {
		return nil
	}
	m.ticking = true
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return tickMsg{Time: t}
	})
}
