// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

// Shortcuts lists the keys of the line-mode prompt and the TUI.
const Shortcuts = `
Line mode

Ctrl-A, Home        Move cursor to the beginning of line
Ctrl-B, Left        Move cursor one character left
Ctrl-E, End         Move cursor to end of line
Ctrl-F, Right       Move cursor one character right
Ctrl-H, Backspace   Delete character before cursor
Ctrl-D              Delete character under cursor; on an empty line, exit
                    (in multiline mode, send what was typed)
Tab                 Complete slash commands and their arguments
Ctrl-K              Delete from cursor to end of line
Ctrl-U              Delete from start of line to cursor
Ctrl-W, Alt-Backspace
                    Delete the word before the cursor
Alt-D               Delete the word after the cursor
Ctrl-T              Transpose characters
Ctrl-Y              Paste the last deleted text
Ctrl-L              Clear screen
Ctrl-N, Down        Next history entry
Ctrl-P, Up          Previous history entry
Ctrl-R              Search history backwards
Alt-B, Alt-Left     Move cursor to previous word
Alt-F, Alt-Right    Move cursor to next word
Ctrl-C              Stop the reply being streamed; at the prompt, exit
                    (press twice when ui.double_ctrlc is on)

Full screen (--tui)

Enter               Send
Alt-Enter           Insert a newline
Esc, Ctrl-C         Stop the reply being streamed
Ctrl-C twice        Exit
F2                  Save the conversation (same as /save)
PgUp, PgDn          Scroll the conversation
Tab                 Complete slash commands
`
