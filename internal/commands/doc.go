// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands implements the slash commands shared by the line-mode
// prompt and the TUI.
//
// A line starting with "/" is looked up in a Registry and run against an
// Env, which carries the session and the writer output goes to:
//
//	parser := commands.NewParser(commands.NewRegistry())
//	handled, err := parser.Execute(ctx, env, line)
//	if !handled {
//	    // send line to the model
//	}
//
// Commands:
//
//	/clear /retry /show [all] /sessions [n] /resume <id>
//	/save [file] /load <file> /history
//	/config [save|reload|path] /get <key> /set <key> <value> /models
//	/help [command] /status /quit
//
// Completer offers command names and argument values for Tab completion.
package commands
