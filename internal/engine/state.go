// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"
	"fmt"
)

// State is the engine's position in the exchange cycle.
type State int32

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateStreaming
	StateCancelling
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateAwaitingResponse: "awaiting response",
	StateStreaming:        "streaming",
	StateCancelling:       "cancelling",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// Busy reports whether an exchange is in flight.
func (s State) Busy() bool {
	return s != StateIdle
}

// ErrEmptyInput is returned by Submit for blank user text.
var ErrEmptyInput = errors.New("nothing to send")

// ErrNothingToRetry is returned by Retry when the conversation does not end
// in an assistant reply.
var ErrNothingToRetry = errors.New("no reply to retry")

// BusyError is returned when Submit or Retry is called outside Idle.
type BusyError struct {
	State State
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("engine busy (%s): wait for the current reply or cancel it", e.State)
}

// IsBusy reports whether err is (or wraps) a BusyError.
func IsBusy(err error) bool {
	var target *BusyError
	return errors.As(err, &target)
}
