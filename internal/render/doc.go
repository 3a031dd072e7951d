// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render draws streamed replies in the terminal.
//
// Terminal implements engine.Renderer for line mode: it coalesces fragments
// into frames (15 fragments or ~33ms), repairs escaped newlines split across
// fragments, and ends each reply with a [cancelled] or [incomplete] marker
// when it did not complete. Markdown and Highlight format finished text.
package render
