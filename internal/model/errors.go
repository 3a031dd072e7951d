// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
)

// ErrInvalidRole is returned when a role string is not system, user or assistant.
var ErrInvalidRole = errors.New("invalid role")

// InvalidStateError reports a transcript mutation attempted in the wrong state,
// such as appending while an assistant turn is still streaming.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("transcript %s: %s", e.Op, e.Reason)
}

// StaleHandleError reports use of a handle whose turn is no longer streaming.
type StaleHandleError struct {
	TurnID string
}

func (e *StaleHandleError) Error() string {
	if e.TurnID == "" {
		return "transcript: stale handle"
	}
	return fmt.Sprintf("transcript: stale handle for turn %s", e.TurnID)
}

// IsInvalidState reports whether err is (or wraps) an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// IsStaleHandle reports whether err is (or wraps) a StaleHandleError.
func IsStaleHandle(err error) bool {
	var target *StaleHandleError
	return errors.As(err, &target)
}
