// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the transcript store: the ordered turns of a
// conversation and the operations that grow it.
//
// # Key Types
//
//   - Turn: one utterance with a role, content and status
//   - Transcript: ordered, append-only history owning every Turn
//   - Handle: addresses the single assistant turn that is streaming
//
// # Usage
//
//	tr := model.NewTranscript()
//	_ = tr.Append(model.NewTurn(model.RoleUser, "hi"))
//	h, _ := tr.BeginAssistantTurn()
//	_ = tr.AppendFragment(h, "Hel")
//	_ = tr.AppendFragment(h, "lo")
//	turn, _ := tr.Finalize(h, model.StatusComplete)
//
// The transcript has a single writer (the conversation engine). Readers use
// Finished or Live, which return copies.
package model
