// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the transcript store and its turns.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseRole converts a wire or file value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle state of a turn.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusComplete
	StatusCancelled
	StatusFailed
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusStreaming: "streaming",
	StatusComplete:  "complete",
	StatusCancelled: "cancelled",
	StatusFailed:    "failed",
}

// String returns the lowercase name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// IsFinal reports whether s is a terminal outcome.
func (s Status) IsFinal() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a stored status name back into a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusPending, fmt.Errorf("unknown turn status %q", name)
}

// =============================================================================
// TURN TYPE
// =============================================================================

// messageOverhead approximates the per-message framing tokens of chat APIs.
const messageOverhead = 4

// Turn is one utterance in the dialogue.
type Turn struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewTurn creates a pending turn with a fresh ID.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Authoritative reports whether the turn's content is the full, accepted
// text. Cancelled and failed assistant turns keep only a partial prefix.
func (t Turn) Authoritative() bool {
	return t.Status == StatusComplete
}

// EstimateTokens returns a rough token count (~4 chars per token plus framing).
func (t Turn) EstimateTokens() int {
	return EstimateTokens(t.Content) + messageOverhead
}

// EstimateTokens returns a rough token count for text (~4 chars per token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
