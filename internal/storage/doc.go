// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations for ata.
//
// Two stores live here:
//
//   - Conversation files: a JSON array of {"role", "content"} objects, the
//     format written by /save and read by /load and --load. Replies that
//     did not complete carry an extra "status" field.
//   - The session log: a SQLite database (modernc.org/sqlite, no cgo) with
//     every finished turn of every session, used by /sessions and --resume.
//
// # Usage
//
//	store, err := storage.NewConversationStore(dir)
//	path, err := store.Save(transcript.Finished())
//
//	log, err := storage.OpenSessionLog(dbPath)
//	rec := storage.NewRecorder(log, transcript.Finished)
//	rec.SetSession(sessionID, modelName)
//
// Recorder is an engine sink; it writes new turns after each reply.
package storage
