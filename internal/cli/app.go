// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jeranaias/ata/internal/cloud"
	"github.com/jeranaias/ata/internal/commands"
	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/engine"
	"github.com/jeranaias/ata/internal/metrics"
	"github.com/jeranaias/ata/internal/render"
	"github.com/jeranaias/ata/internal/session"
	"github.com/jeranaias/ata/internal/ui"
	"github.com/jeranaias/ata/internal/ui/styles"
)

// Main runs ata with args (without the program name) and returns the exit
// status.
func Main(args []string) int {
	tty := DetectTerminal()
	applyColorProfile(tty.Colors)
	app := &App{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: tty.Interactive,
		Headers:     tty.Headers,
		Colors:      tty.Colors,
		Width:       tty.Width,
	}
	return app.Run(context.Background(), args)
}

// App is one run of the program. Main fills it from the real terminal;
// tests fill it with buffers.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive is true when stdin is a terminal.
	Interactive bool
	// Headers prints "Prompt:" and "Response:" (stderr is a terminal).
	Headers bool
	Colors  bool
	Width   int

	// Logger overrides the log file set up from the environment.
	Logger *slog.Logger

	// newInput builds the line editor. Tests replace it.
	newInput func(historyFile string, complete func(string) []string) lineReader
}

// Run parses args, loads the configuration and runs the prompt loop or
// the TUI. It returns the exit status.
func (a *App) Run(ctx context.Context, args []string) int {
	theme := styles.NewTheme(a.Colors)

	opts, err := ParseArgs(args)
	if err != nil {
		if IsHelp(err) {
			fmt.Fprintln(a.Stdout, err.Error())
			return ExitSuccess
		}
		printError(a.Stderr, theme, err)
		return ExitUsageError
	}
	switch {
	case opts.Version:
		fmt.Fprintln(a.Stdout, "ata "+cloud.Version)
		return ExitSuccess
	case opts.PrintShortcuts:
		fmt.Fprint(a.Stdout, Shortcuts)
		return ExitSuccess
	}

	logger := a.Logger
	if logger == nil {
		l, closeLog, err := setupLogging(opts.Debug, a.Stderr)
		if err != nil {
			printWarning(a.Stderr, theme, "Logging disabled: "+err.Error())
			l, closeLog = slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
		}
		defer closeLog()
		logger = l
	}
	slog.SetDefault(logger)

	err = a.run(ctx, opts, theme, logger)
	if err != nil && !errors.Is(err, errMissingConfig) {
		logger.Error("exiting", "error", err)
		printError(a.Stderr, theme, err)
	}
	return ExitCode(err)
}

// errMissingConfig ends a first run after the setup prompt.
var errMissingConfig = errors.New("no configuration file")

func (a *App) run(ctx context.Context, opts *Options, theme *styles.Theme, logger *slog.Logger) error {
	live, err := a.loadConfig(opts, theme, logger)
	if err != nil {
		return &StartupError{Stage: "config", Code: ExitConfigError, Err: err}
	}
	cfg := live.Get()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.UI.WatchConfig && live.Path() != "" {
		if err := config.Watch(ctx, live, logger); err != nil {
			logger.Warn("config watch disabled", "error", err)
		}
	}

	var sinks []engine.Renderer
	var tuiSink *ui.Sink
	var markdown *render.Markdown
	if cfg.UI.RenderMarkdown && a.Colors {
		markdown = render.NewMarkdown(a.Width)
	}

	if opts.TUI {
		if !a.Interactive {
			return &StartupError{Stage: "tui", Code: ExitUsageError, Err: &TTYRequiredError{Operation: "run the full-screen interface"}}
		}
		tuiSink = ui.NewSink()
		sinks = append(sinks, tuiSink)
	} else {
		sinks = append(sinks, render.NewTerminal(a.Stdout, render.TerminalOptions{
			Theme:    theme,
			Header:   a.Headers,
			Markdown: markdown,
		}))
	}

	if opts.MetricsAddr != "" {
		collector := metrics.NewCollector()
		addr, err := metrics.Serve(ctx, opts.MetricsAddr, collector, logger)
		if err != nil {
			return &StartupError{Stage: "metrics", Code: ExitGeneralError, Err: err}
		}
		sinks = append(sinks, collector)
		logger.Info("serving metrics", "addr", addr.String())
		if !opts.TUI {
			fmt.Fprintf(a.Stderr, "Serving metrics on http://%s/metrics\n", addr)
		}
	}

	sess, err := session.New(session.Options{
		Config: live,
		Sinks:  sinks,
		Logger: logger,
	})
	if err != nil {
		return &StartupError{Stage: "session", Code: ExitGeneralError, Err: err}
	}
	defer sess.Close()

	parser := commands.NewParser(commands.NewRegistry())
	completer := commands.NewCompleter(parser.Registry())
	completer.FilesFn = conversationNames(sess)
	completer.SessionsFn = sessionIDs(ctx, sess)

	if opts.TUI {
		if err := a.restore(ctx, opts, sess, &commands.Env{Session: sess, Out: io.Discard}); err != nil {
			return err
		}
		return ui.Run(ctx, ui.Options{
			Session:   sess,
			Sink:      tuiSink,
			Parser:    parser,
			Completer: completer,
			Theme:     styles.NewTheme(true),
			Markdown:  markdown,
			Describe:  describe,
			Logger:    logger,
		})
	}

	if !cfg.UI.HideConfig && a.Interactive {
		if err := render.Highlight(a.Stdout, cfg.String(cfg.UI.RedactAPIKey), "toml", a.Colors); err != nil {
			logger.Warn("cannot print config", "error", err)
		}
		fmt.Fprintln(a.Stdout)
	}

	env := &commands.Env{
		Session:  sess,
		Out:      a.Stdout,
		Theme:    theme,
		Width:    a.Width,
		Markdown: markdown,
	}
	if err := a.restore(ctx, opts, sess, env); err != nil {
		return err
	}

	historyFile := ""
	if cfg.UI.SaveHistory {
		historyFile = cfg.UI.HistoryFile
	}
	var input lineReader
	if a.Interactive {
		newInput := a.newInput
		if newInput == nil {
			newInput = func(path string, complete func(string) []string) lineReader {
				return newLinerInput(path, complete)
			}
		}
		input = newInput(historyFile, completer.Lines)
		if c, ok := input.(io.Closer); ok {
			defer func() {
				if err := c.Close(); err != nil {
					logger.Warn("cannot save history", "path", historyFile, "error", err)
				}
			}()
		}
	}

	repl := NewREPL(REPLOptions{
		Session: sess,
		Parser:  parser,
		Env:     env,
		Input:   input,
		ErrOut:  a.Stderr,
		Theme:   theme,
		Headers: a.Headers && a.Interactive,
		Logger:  logger,
	})

	stop := a.handleSignals(ctx, repl, cancel)
	defer stop()

	if !a.Interactive {
		return repl.RunOnce(ctx, a.Stdin)
	}
	return repl.Run(ctx)
}

// loadConfig resolves and loads the configuration, applying flag
// overrides. A missing file on a terminal starts the first-run prompt.
func (a *App) loadConfig(opts *Options, theme *styles.Theme, logger *slog.Logger) (*config.Live, error) {
	path, deprecated, err := opts.Config.Resolve()
	if err != nil {
		return nil, err
	}
	if deprecated {
		dir, _ := config.Dir()
		printWarning(a.Stderr, theme, fmt.Sprintf(
			"Reading %s from the working directory is deprecated; move it to %s.",
			config.DefaultFileName, filepath.Join(dir, config.DefaultFileName)))
	}

	cfg, exists, err := config.Load(path)
	if err != nil {
		if !exists && a.Interactive {
			if _, serr := missingConfig(a.Stdin, a.Stderr, path); serr != nil {
				return nil, serr
			}
			return nil, errMissingConfig
		}
		return nil, err
	}
	logger.Info("config loaded", "path", path, "exists", exists)

	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.HideConfig {
		cfg.UI.HideConfig = true
	}
	if !cfg.Stream {
		printWarning(a.Stderr, theme, "stream = false is not supported; replies are always streamed.")
		cfg.Stream = true
	}
	return config.NewLive(cfg, path), nil
}

// restore applies --load and --resume.
func (a *App) restore(ctx context.Context, opts *Options, sess *session.Session, env *commands.Env) error {
	if opts.Load != "" {
		if err := commands.HandleLoad(ctx, env, []string{opts.Load}); err != nil {
			return &StartupError{Stage: "load", Err: err}
		}
	}
	if opts.Resume != "" {
		if err := commands.HandleResume(ctx, env, []string{opts.Resume}); err != nil {
			return &StartupError{Stage: "resume", Err: err}
		}
	}
	return nil
}

// handleSignals routes SIGINT to the REPL while no prompt is active, and
// ends the run on SIGTERM or on SIGINT with nothing to stop.
func (a *App) handleSignals(ctx context.Context, repl *REPL, quit context.CancelFunc) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig == os.Interrupt && repl.Interrupt() {
					continue
				}
				repl.session.Engine.Cancel()
				quit()
				if !a.Interactive || sig == syscall.SIGTERM {
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func conversationNames(sess *session.Session) func() []string {
	return func() []string {
		infos, err := sess.Conversations.List()
		if err != nil {
			return nil
		}
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name)
		}
		return names
	}
}

func sessionIDs(ctx context.Context, sess *session.Session) func() []string {
	return func() []string {
		if sess.Log == nil {
			return nil
		}
		infos, err := sess.Sessions(ctx, 50)
		if err != nil {
			return nil
		}
		ids := make([]string, 0, len(infos))
		for _, info := range infos {
			ids = append(ids, info.ID)
		}
		return ids
	}
}
