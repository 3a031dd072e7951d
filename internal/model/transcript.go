// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// HANDLE
// =============================================================================

// Handle addresses the assistant turn opened by BeginAssistantTurn.
// It becomes stale once that turn is finalized.
type Handle struct {
	id string
}

// TurnID returns the ID of the addressed turn.
func (h Handle) TurnID() string {
	return h.id
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript owns the ordered turns of one conversation.
//
// Only the conversation engine mutates a Transcript. The lock exists so that
// readers on other goroutines get a consistent copy; it is never contended
// on the fragment path because there is one writer.
type Transcript struct {
	mu     sync.RWMutex
	turns  []Turn
	active int // index of the streaming turn, -1 when none

	// PERFORMANCE: strings.Builder avoids quadratic copies while streaming.
	stream strings.Builder
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{active: -1}
}

// Append adds a finished turn (user or system, or a loaded assistant turn).
// It fails with InvalidStateError while an assistant turn is streaming or
// when the turn would repeat the role of the previous turn.
func (t *Transcript) Append(turn Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, turn.Role)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active >= 0 {
		return &InvalidStateError{Op: "append", Reason: "an assistant turn is still streaming"}
	}
	if err := t.checkAlternation(turn.Role); err != nil {
		return err
	}

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	if !turn.Status.IsFinal() {
		turn.Status = StatusComplete
	}
	if turn.FinishedAt.IsZero() {
		turn.FinishedAt = turn.CreatedAt
	}
	t.turns = append(t.turns, turn)
	return nil
}

// BeginAssistantTurn appends an empty streaming assistant turn and returns
// the handle used to grow and finalize it.
func (t *Transcript) BeginAssistantTurn() (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active >= 0 {
		return Handle{}, &InvalidStateError{Op: "begin assistant turn", Reason: "an assistant turn is already streaming"}
	}
	if err := t.checkAlternation(RoleAssistant); err != nil {
		return Handle{}, err
	}

	turn := NewTurn(RoleAssistant, "")
	turn.Status = StatusStreaming
	t.turns = append(t.turns, turn)
	t.active = len(t.turns) - 1
	t.stream.Reset()
	return Handle{id: turn.ID}, nil
}

// AppendFragment appends delta to the streaming turn addressed by h.
func (t *Transcript) AppendFragment(h Handle, delta string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isActive(h) {
		return &StaleHandleError{TurnID: h.id}
	}
	t.stream.WriteString(delta)
	return nil
}

// Finalize closes the streaming turn with a terminal status and returns a
// copy of it. The handle is stale afterwards.
func (t *Transcript) Finalize(h Handle, status Status) (Turn, error) {
	if !status.IsFinal() {
		return Turn{}, &InvalidStateError{Op: "finalize", Reason: fmt.Sprintf("%s is not a terminal status", status)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isActive(h) {
		return Turn{}, &StaleHandleError{TurnID: h.id}
	}
	turn := &t.turns[t.active]
	turn.Content = t.stream.String()
	turn.Status = status
	turn.FinishedAt = time.Now()
	t.active = -1
	t.stream = strings.Builder{}
	return *turn, nil
}

// TruncateContext returns a read-only copy of the most recent maxTurns
// finished turns plus every system turn, in conversation order. A
// non-positive maxTurns returns every finished turn. The store is not changed.
func (t *Transcript) TruncateContext(maxTurns int) []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	finished := t.finishedLocked()
	if maxTurns <= 0 || len(finished) <= maxTurns {
		return finished
	}

	cut := len(finished) - maxTurns
	out := make([]Turn, 0, maxTurns+1)
	for i, turn := range finished {
		if i >= cut || turn.Role == RoleSystem {
			out = append(out, turn)
		}
	}
	return out
}

// Finished returns copies of every turn that is not streaming. Persistence
// uses this view so it never observes an in-progress turn as final.
func (t *Transcript) Finished() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finishedLocked()
}

// Live returns copies of every turn, with the streaming turn carrying the
// prefix received so far.
func (t *Transcript) Live() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	if t.active >= 0 {
		out[t.active].Content = t.stream.String()
	}
	return out
}

// Last returns the newest turn, including a streaming one.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.turns) == 0 {
		return Turn{}, false
	}
	last := t.turns[len(t.turns)-1]
	if t.active == len(t.turns)-1 {
		last.Content = t.stream.String()
	}
	return last, true
}

// LastAssistant returns the newest finished assistant turn.
func (t *Transcript) LastAssistant() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.turns) - 1; i >= 0; i-- {
		if i == t.active {
			continue
		}
		if t.turns[i].Role == RoleAssistant {
			return t.turns[i], true
		}
	}
	return Turn{}, false
}

// RemoveLast drops the newest turn if its ID matches. The engine uses this
// to roll back a user turn that could not be sent and to replace a failed
// assistant turn on retry.
func (t *Transcript) RemoveLast(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active >= 0 {
		return &InvalidStateError{Op: "remove", Reason: "an assistant turn is still streaming"}
	}
	if len(t.turns) == 0 || t.turns[len(t.turns)-1].ID != id {
		return &InvalidStateError{Op: "remove", Reason: fmt.Sprintf("turn %s is not the newest turn", id)}
	}
	t.turns = t.turns[:len(t.turns)-1]
	return nil
}

// Clear removes every turn, optionally keeping system turns.
func (t *Transcript) Clear(keepSystem bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active >= 0 {
		return &InvalidStateError{Op: "clear", Reason: "an assistant turn is still streaming"}
	}
	if !keepSystem {
		t.turns = nil
		return nil
	}
	kept := t.turns[:0]
	for _, turn := range t.turns {
		if turn.Role == RoleSystem {
			kept = append(kept, turn)
		}
	}
	t.turns = kept
	return nil
}

// Replace swaps the whole history for turns, e.g. when loading a saved
// conversation. Turns must alternate roles and none may be streaming.
func (t *Transcript) Replace(turns []Turn) error {
	fresh := NewTranscript()
	for _, turn := range turns {
		if turn.Status == StatusStreaming || turn.Status == StatusPending {
			turn.Status = StatusComplete
		}
		if err := fresh.Append(turn); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active >= 0 {
		return &InvalidStateError{Op: "replace", Reason: "an assistant turn is still streaming"}
	}
	t.turns = fresh.turns
	return nil
}

// Len returns the number of turns, including a streaming one.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Streaming reports whether an assistant turn is in progress.
func (t *Transcript) Streaming() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active >= 0
}

// EstimateTokens returns the estimated token count of every finished turn.
func (t *Transcript) EstimateTokens() int {
	total := 0
	for _, turn := range t.Finished() {
		total += turn.EstimateTokens()
	}
	return total
}

func (t *Transcript) isActive(h Handle) bool {
	return t.active >= 0 && h.id != "" && t.turns[t.active].ID == h.id
}

func (t *Transcript) finishedLocked() []Turn {
	out := make([]Turn, 0, len(t.turns))
	for i, turn := range t.turns {
		if i == t.active {
			continue
		}
		out = append(out, turn)
	}
	return out
}

// checkAlternation rejects a turn that would repeat the previous role.
func (t *Transcript) checkAlternation(role Role) error {
	if len(t.turns) == 0 {
		return nil
	}
	prev := t.turns[len(t.turns)-1].Role
	if prev == role {
		return &InvalidStateError{
			Op:     "append",
			Reason: fmt.Sprintf("two consecutive %s turns", role),
		}
	}
	return nil
}
