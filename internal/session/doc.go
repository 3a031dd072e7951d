// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session wires the pieces of one ata conversation together.
//
// A Session owns the transcript, the conversation engine, the cloud client
// and the conversation stores. There are no package-level singletons: the
// CLI and the TUI each build one Session and pass it around.
//
// # Usage
//
//	live := config.NewLive(cfg, path)
//	s, err := session.New(session.Options{
//	    Config: live,
//	    Sinks:  []engine.Renderer{terminal, collector},
//	})
//	defer s.Close()
//
//	status, err := s.Engine.Submit(ctx, "Hi")
//
// Configuration changes published through the Live config reach the client
// (credentials, base URL and pacing) and the next request.
package session
