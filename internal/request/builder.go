// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package request turns a transcript snapshot and the active configuration
// into a chat completion request.
//
// The context window is chosen newest-first: turns are taken from the end
// of the conversation until the turn or token budget runs out. System turns
// are always kept. Cancelled and failed replies carry only a partial prefix
// and are never sent as context.
package request

import (
	"fmt"

	"github.com/jeranaias/ata/internal/cloud"
	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/model"
)

// Policy bounds the context window. Zero means unlimited.
type Policy struct {
	MaxTurns  int // non-system turns
	MaxTokens int // estimated tokens, system turns included
}

// PolicyFrom reads the context budgets out of a config snapshot.
func PolicyFrom(snap config.Snapshot) Policy {
	return Policy{MaxTurns: snap.ContextMaxTurns, MaxTokens: snap.ContextMaxTokens}
}

// EmptyContextError reports that no user turn survived truncation.
type EmptyContextError struct {
	Turns  int // turns offered to the builder
	Policy Policy
}

func (e *EmptyContextError) Error() string {
	if e.Turns == 0 {
		return "no conversation to send"
	}
	return fmt.Sprintf("context budget (%d turns, %d tokens) leaves no user message to send",
		e.Policy.MaxTurns, e.Policy.MaxTokens)
}

// Window selects the turns to send from snapshot. The result keeps
// conversation order and never aliases snapshot.
func Window(snapshot []model.Turn, p Policy) []model.Turn {
	tokens := 0
	for _, t := range snapshot {
		if t.Role == model.RoleSystem {
			tokens += t.EstimateTokens()
		}
	}

	keep := make([]bool, len(snapshot))
	turns := 0
	for i := len(snapshot) - 1; i >= 0; i-- {
		t := snapshot[i]
		switch {
		case t.Role == model.RoleSystem:
			keep[i] = true
			continue
		case t.Role == model.RoleAssistant && !t.Authoritative():
			continue
		}

		if p.MaxTurns > 0 && turns >= p.MaxTurns {
			break
		}
		cost := t.EstimateTokens()
		if p.MaxTokens > 0 && tokens+cost > p.MaxTokens {
			break
		}
		keep[i] = true
		turns++
		tokens += cost
	}

	out := make([]model.Turn, 0, len(snapshot))
	for i, k := range keep {
		if k {
			out = append(out, snapshot[i])
		}
	}
	return out
}

// Build applies the context window to snapshot and fills in the request
// settings from snap. It fails with *EmptyContextError when no user turn
// is left to send.
func Build(snapshot []model.Turn, snap config.Snapshot) (*cloud.ChatRequest, error) {
	policy := PolicyFrom(snap)
	window := Window(snapshot, policy)

	hasUser := false
	messages := make([]cloud.ChatMessage, 0, len(window))
	for _, t := range window {
		if t.Role == model.RoleUser {
			hasUser = true
		}
		messages = append(messages, cloud.ChatMessage{Role: t.Role.String(), Content: t.Content})
	}
	if !hasUser {
		return nil, &EmptyContextError{Turns: len(snapshot), Policy: policy}
	}

	req := &cloud.ChatRequest{
		Model:            snap.Model,
		Messages:         messages,
		Stream:           true,
		Temperature:      snap.Temperature,
		MaxTokens:        snap.MaxTokens,
		TopP:             snap.TopP,
		N:                snap.N,
		PresencePenalty:  snap.PresencePenalty,
		FrequencyPenalty: snap.FrequencyPenalty,
		User:             snap.User,
		Timeout:          snap.Timeout,
	}
	if len(snap.Stop) > 0 {
		req.Stop = append([]string(nil), snap.Stop...)
	}
	if len(snap.LogitBias) > 0 {
		req.LogitBias = make(map[string]float64, len(snap.LogitBias))
		for k, v := range snap.LogitBias {
			req.LogitBias[k] = v
		}
	}
	return req, nil
}
