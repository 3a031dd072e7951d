// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation as Markdown, HTML or JSON for
// reading outside ata. Saved conversations (package storage) are for
// loading back; exports are for people.
//
// # Usage
//
//	doc := export.NewDocument(transcript.Finished(), cfg.Model, sess.ID)
//	exporter, err := export.ForFormat("html")
//	if err != nil {
//	    return err
//	}
//	path, err := export.WriteFile(".", "", doc, exporter)
//
// Cancelled and failed replies are exported with their partial content
// and a [cancelled] or [incomplete] note.
package export
