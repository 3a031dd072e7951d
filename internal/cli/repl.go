// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/ata/internal/commands"
	"github.com/jeranaias/ata/internal/engine"
	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/session"
	"github.com/jeranaias/ata/internal/ui/styles"
	"github.com/jeranaias/ata/internal/util"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader is the part of liner the prompt loop uses. Prompt returns
// liner.ErrPromptAborted on Ctrl-C and io.EOF on Ctrl-D at an empty line.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// linerInput wraps a liner.State with a persistent history file.
// USABILITY: Supports arrow keys for history navigation and line editing.
type linerInput struct {
	state       *liner.State
	historyFile string // empty when history is not saved
	closeOnce   sync.Once
}

func newLinerInput(historyFile string, complete func(string) []string) *linerInput {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetTabCompletionStyle(liner.TabPrints)
	if complete != nil {
		state.SetCompleter(complete)
	}

	in := &linerInput{state: state, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			state.ReadHistory(f)
			f.Close()
		}
	}
	return in
}

func (in *linerInput) Prompt(prompt string) (string, error) {
	return in.state.Prompt(prompt)
}

func (in *linerInput) AppendHistory(item string) {
	in.state.AppendHistory(item)
}

// Close saves the history (0600) and restores the terminal.
func (in *linerInput) Close() error {
	var err error
	in.closeOnce.Do(func() {
		if in.historyFile != "" {
			var buf bytes.Buffer
			if _, werr := in.state.WriteHistory(&buf); werr == nil {
				err = util.AtomicWriteFile(in.historyFile, buf.Bytes(), 0o600)
			}
		}
		if cerr := in.state.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// =============================================================================
// REPL
// =============================================================================

// REPL is the line-mode prompt loop. It is the only caller of Submit and
// Retry; Interrupt may be called from the signal goroutine.
type REPL struct {
	session *session.Session
	parser  *commands.Parser
	env     *commands.Env
	input   lineReader
	errOut  io.Writer
	theme   *styles.Theme
	logger  *slog.Logger

	// headers prints "Prompt:" before each turn, on a terminal only.
	headers bool

	interrupted bool // first Ctrl-C seen at the prompt

	mu       sync.Mutex
	opCancel context.CancelFunc
}

// REPLOptions configures NewREPL.
type REPLOptions struct {
	Session *session.Session
	Parser  *commands.Parser
	Env     *commands.Env
	Input   lineReader
	ErrOut  io.Writer
	Theme   *styles.Theme
	Headers bool
	Logger  *slog.Logger
}

// NewREPL builds the prompt loop.
func NewREPL(opts REPLOptions) *REPL {
	r := &REPL{
		session: opts.Session,
		parser:  opts.Parser,
		env:     opts.Env,
		input:   opts.Input,
		errOut:  opts.ErrOut,
		theme:   opts.Theme,
		headers: opts.Headers,
		logger:  opts.Logger,
	}
	if r.theme == nil {
		r.theme = styles.NewTheme(false)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.parser == nil {
		r.parser = commands.NewParser(commands.NewRegistry())
	}
	if r.env.Retry == nil {
		r.env.Retry = r.retry
	}
	return r
}

// Run reads turns until the user exits.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		r.printPromptHeader()

		text, err := r.readTurn()
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			if r.session.Config.Get().UI.DoubleCtrlC && !r.interrupted {
				r.interrupted = true
				fmt.Fprintln(r.errOut, "\nPress Ctrl-C again to exit.")
				continue
			}
			return nil
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.errOut)
			return nil
		case err != nil:
			return err
		}
		r.interrupted = false

		if quit := r.handle(ctx, text); quit {
			return nil
		}
	}
}

// RunOnce submits everything in stdin as one turn. It is used when stdin is
// not a terminal.
func (r *REPL) RunOnce(ctx context.Context, stdin io.Reader) error {
	data, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	text := util.NormalizeInput(string(data))
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if commands.IsCommand(text) {
		r.handle(ctx, text)
		return nil
	}
	_, err = r.submit(ctx, strings.TrimRight(text, "\n"))
	return err
}

// Interrupt handles Ctrl-C outside the prompt. It stops the reply being
// streamed, or else the running command, and reports false when nothing
// was running.
func (r *REPL) Interrupt() bool {
	if r.session.Engine.Cancel() {
		r.logger.Debug("reply cancelled by interrupt")
		return true
	}
	r.mu.Lock()
	cancel := r.opCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		return true
	}
	return false
}

// readTurn reads one line, or in multiline mode every line up to Ctrl-D.
// A slash command on the first line is returned at once.
func (r *REPL) readTurn() (string, error) {
	if !r.session.Config.Get().UI.MultilineInsertions {
		return r.input.Prompt("")
	}

	var lines []string
	for {
		line, err := r.input.Prompt("")
		if errors.Is(err, io.EOF) && len(lines) > 0 {
			return strings.Join(lines, "\n"), nil
		}
		if err != nil {
			return "", err
		}
		if len(lines) == 0 && commands.IsCommand(line) {
			return line, nil
		}
		lines = append(lines, line)
	}
}

// handle runs a command or submits a prompt. It reports true on /quit.
func (r *REPL) handle(ctx context.Context, text string) bool {
	text = util.NormalizeInput(text)
	if strings.TrimSpace(text) == "" {
		return false
	}
	r.input.AppendHistory(text)

	opCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.opCancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.opCancel = nil
		r.mu.Unlock()
		cancel()
	}()

	handled, err := r.parser.Execute(opCtx, r.env, text)
	if errors.Is(err, commands.ErrQuit) {
		return true
	}
	if handled {
		if err != nil && !errors.Is(err, context.Canceled) {
			printError(r.errOut, r.theme, err)
		}
		if r.headers {
			fmt.Fprintln(r.errOut)
		}
		return false
	}

	if _, err := r.submit(opCtx, text); err != nil {
		printError(r.errOut, r.theme, err)
		fmt.Fprintln(r.errOut)
	}
	return false
}

// submit sends text and reports failures. A cancelled reply is not an error.
func (r *REPL) submit(ctx context.Context, text string) (model.Status, error) {
	status, err := r.session.Engine.Submit(ctx, text)
	if err != nil {
		r.logger.Debug("submit failed", "status", status, "error", err)
		return status, err
	}
	return status, nil
}

// retry backs /retry in line mode.
func (r *REPL) retry(ctx context.Context) error {
	_, err := r.session.Engine.Retry(ctx)
	if err != nil && !engine.IsUserError(err) {
		r.logger.Debug("retry failed", "error", err)
	}
	return err
}

func (r *REPL) printPromptHeader() {
	if r.headers {
		fmt.Fprintln(r.errOut, r.theme.PromptHeader.Render("Prompt:"))
	}
}
