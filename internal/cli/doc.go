// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the ata program: flag parsing, configuration loading, the
// line-mode prompt loop and the hand-off to the full-screen interface.
//
// # Modes
//
//   - stdin is a terminal: a liner prompt with history and Tab completion.
//     Each line (or, with ui.multiline_insertions, each block ended by
//     Ctrl-D) is either a slash command or a prompt for the model.
//   - stdin is not a terminal: all of stdin is sent as one prompt and the
//     reply is written to stdout.
//   - --tui: the bubbletea interface in package ui.
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Main(os.Args[1:]))
//	}
//
// # Exit codes
//
// ExitCode maps failures to distinct statuses: 2 for usage errors, 3 for
// configuration errors, 4 for a missing or rejected API key, 5 for network
// failures, 7 when a saved conversation or session is not found and 8 for
// timeouts.
//
// Logs go to ata.log in the config directory. ATA_LOG=stderr or ATA_LOG=off
// change that.
package cli
