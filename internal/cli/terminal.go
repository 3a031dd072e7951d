// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is used when the width cannot be read.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the narrowest width listings are wrapped to.
	MinTerminalWidth = 40
)

// Terminal describes the standard streams ata was started with.
type Terminal struct {
	// Interactive is true when stdin is a terminal. Prompts, the line editor
	// and the first-run setup need it.
	Interactive bool

	// Headers is true when stderr is a terminal. The "Prompt:" and
	// "Response:" headers are only printed then.
	Headers bool

	// Colors follows NO_COLOR, FORCE_COLOR and whether stdout is a terminal.
	Colors bool

	Width int
}

// DetectTerminal inspects the process's standard streams and environment.
func DetectTerminal() Terminal {
	stdout := isTerminal(os.Stdout)
	return Terminal{
		Interactive: isTerminal(os.Stdin),
		Headers:     isTerminal(os.Stderr),
		Colors:      decideColors(os.Getenv, stdout),
		Width:       terminalWidth(os.Stdout),
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return max(width, MinTerminalWidth)
}

// decideColors applies NO_COLOR, then FORCE_COLOR, then TTY detection.
// See https://no-color.org/.
func decideColors(getenv func(string) string, tty bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if getenv("FORCE_COLOR") != "" {
		return true
	}
	return tty
}

// applyColorProfile makes lipgloss match the colour decision, so styled
// output stays plain when it is redirected.
func applyColorProfile(colors bool) {
	if !colors {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

// TTYRequiredError is returned when an operation needs a terminal on stdin.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation != "" {
		return "stdin is not a terminal; cannot " + e.Operation + " interactively"
	}
	return "stdin is not a terminal; interactive input not available"
}
