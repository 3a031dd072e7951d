// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/ata/internal/render"
	"github.com/jeranaias/ata/internal/session"
	"github.com/jeranaias/ata/internal/ui/styles"
)

// ErrQuit is returned by /quit. Front ends exit when they see it.
var ErrQuit = errors.New("quit")

// Env is what a command handler works on. The line-mode REPL and the TUI
// each build one; Out is the terminal for the former and a buffer shown in
// the transcript view for the latter.
type Env struct {
	Session *session.Session
	Out     io.Writer
	Theme   *styles.Theme

	// Width is the terminal width used for tables and markdown.
	Width int

	// Markdown renders /show output. nil prints replies as plain text.
	Markdown *render.Markdown

	// Retry replaces the last reply. Front ends stream it their own way.
	Retry func(ctx context.Context) error

	// Registry is filled in by Parser.Execute for /help.
	Registry *Registry
}

func (e *Env) theme() *styles.Theme {
	if e.Theme == nil {
		e.Theme = styles.NewTheme(false)
	}
	return e.Theme
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Out, format, args...)
}

func (e *Env) println(s string) {
	fmt.Fprintln(e.Out, s)
}

func (e *Env) success(msg string) {
	e.println(e.theme().RenderSuccess(msg))
}

func (e *Env) info(msg string) {
	e.println(e.theme().RenderInfo(msg))
}
