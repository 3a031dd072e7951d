// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the full-screen interface started by --tui.
//
// The conversation is drawn from the session transcript in a scrollable
// viewport; the reply being streamed is redrawn at most every 33ms. Engine
// callbacks reach the program through a Sink, which is created before the
// session and attached once the program exists:
//
//	sink := ui.NewSink()
//	sess, _ := session.New(session.Options{Config: live, Sinks: []engine.Renderer{sink}})
//	err := ui.Run(ctx, ui.Options{Session: sess, Sink: sink})
//
// Slash commands run as in line mode; their output is shown inline.
package ui
