// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine drives one exchange at a time between the user and the
// completion service.
//
// State machine:
//
//	Idle -> AwaitingResponse -> Streaming -> Idle
//	                 \              \
//	                  +-> Cancelling +-> Idle
//
// Submit and Retry run on the input goroutine and block until the engine is
// Idle again. Cancel may be called from any goroutine (a signal handler or
// key handler). The transcript is only written by the goroutine inside
// Submit; the only state shared with Cancel is the cancellation gate and
// the state word.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/ata/internal/cancel"
	"github.com/jeranaias/ata/internal/cloud"
	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/request"
)

// Engine is the conversation engine. The zero value is not usable; use New.
type Engine struct {
	transcript *model.Transcript
	streamer   Streamer
	config     ConfigSource
	sink       Renderer
	logger     *slog.Logger

	state atomic.Int32

	// mu orders state transitions against Cancel. It is never taken on the
	// per-fragment path.
	mu   sync.Mutex
	gate *cancel.Gate
}

// New creates an idle engine. sink may be nil.
func New(t *model.Transcript, s Streamer, cfg ConfigSource, sink Renderer) *Engine {
	if sink == nil {
		sink = nopRenderer{}
	}
	return &Engine{
		transcript: t,
		streamer:   s,
		config:     cfg,
		sink:       sink,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// State returns the current state. Safe from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Transcript returns the transcript the engine writes.
func (e *Engine) Transcript() *model.Transcript {
	return e.transcript
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Submit appends text as a user turn and streams the reply. It returns the
// reply's final status. A Cancelled reply is not an error; a Failed one
// returns the stream error. Calling Submit outside Idle fails with
// *BusyError and leaves the transcript untouched.
func (e *Engine) Submit(ctx context.Context, text string) (model.Status, error) {
	if strings.TrimSpace(text) == "" {
		return model.StatusFailed, ErrEmptyInput
	}

	ctx, gate, err := e.begin(ctx, "submit")
	if err != nil {
		return model.StatusFailed, err
	}
	defer e.finish(gate)

	user := model.NewTurn(model.RoleUser, text)
	if err := e.transcript.Append(user); err != nil {
		e.logger.Error("cannot append user turn", "error", err)
		return model.StatusFailed, err
	}

	snap := e.config.Snapshot()
	req, err := request.Build(e.transcript.TruncateContext(0), snap)
	if err != nil {
		if rbErr := e.transcript.RemoveLast(user.ID); rbErr != nil {
			e.logger.Error("cannot roll back user turn", "error", rbErr)
		}
		e.logger.Debug("request not sent", "error", err)
		return model.StatusFailed, err
	}

	return e.exchange(ctx, gate, req)
}

// Retry replaces the last assistant reply with a fresh one for the same
// user turn. The old reply, complete or partial, is discarded and is not
// sent as context.
func (e *Engine) Retry(ctx context.Context) (model.Status, error) {
	ctx, gate, err := e.begin(ctx, "retry")
	if err != nil {
		return model.StatusFailed, err
	}
	defer e.finish(gate)

	last, ok := e.transcript.Last()
	if !ok || last.Role != model.RoleAssistant {
		return model.StatusFailed, ErrNothingToRetry
	}

	history := e.transcript.TruncateContext(0)
	req, err := request.Build(history[:len(history)-1], e.config.Snapshot())
	if err != nil {
		return model.StatusFailed, err
	}
	if err := e.transcript.RemoveLast(last.ID); err != nil {
		e.logger.Error("cannot remove reply for retry", "error", err)
		return model.StatusFailed, err
	}
	e.logger.Debug("retrying reply", "replaced", last.ID, "status", last.Status)

	return e.exchange(ctx, gate, req)
}

// Cancel stops the in-flight reply. It reports false when there is nothing
// to cancel. It never waits for the network; once it returns no further
// fragment is folded into the transcript.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch s := e.State(); s {
	case StateAwaitingResponse, StateStreaming:
		e.gate.RequestCancel()
		e.setState(StateCancelling)
		return true
	default:
		return false
	}
}

// =============================================================================
// EXCHANGE
// =============================================================================

// begin moves Idle to AwaitingResponse and creates the request's gate.
func (e *Engine) begin(ctx context.Context, op string) (context.Context, *cancel.Gate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.State(); s != StateIdle {
		e.logger.Warn("engine busy", "op", op, "state", s)
		return nil, nil, &BusyError{State: s}
	}
	ctx, gate := cancel.WithContext(ctx)
	e.gate = gate
	e.setState(StateAwaitingResponse)
	return ctx, gate, nil
}

// finish releases the gate and returns to Idle.
func (e *Engine) finish(gate *cancel.Gate) {
	gate.Release()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = nil
	e.setState(StateIdle)
}

func (e *Engine) setState(s State) {
	if old := State(e.state.Swap(int32(s))); old != s {
		e.logger.Debug("engine state", "from", old, "to", s)
	}
}

// exchange opens the reply turn and folds the stream into it.
func (e *Engine) exchange(ctx context.Context, gate *cancel.Gate, req *cloud.ChatRequest) (model.Status, error) {
	h, err := e.transcript.BeginAssistantTurn()
	if err != nil {
		e.logger.Error("cannot open assistant turn", "error", err)
		return model.StatusFailed, err
	}
	if starter, ok := e.sink.(Starter); ok {
		if turn, ok := e.transcript.Last(); ok {
			starter.OnTurnStarted(turn)
		}
	}

	frags := e.streamer.Open(ctx, req, gate)
	defer drain(frags)

	e.mu.Lock()
	if e.State() == StateAwaitingResponse {
		e.setState(StateStreaming)
	}
	e.mu.Unlock()

	status, streamErr := e.fold(ctx, h, gate, frags)

	turn, err := e.transcript.Finalize(h, status)
	if err != nil {
		e.logger.Error("cannot finalize reply", "turn", h.TurnID(), "error", err)
		return model.StatusFailed, err
	}
	e.logger.Debug("reply finalized", "turn", turn.ID, "status", turn.Status, "bytes", len(turn.Content))
	e.sink.OnTurnFinalized(turn)

	if streamErr != nil {
		if model.IsStaleHandle(streamErr) || model.IsInvalidState(streamErr) {
			e.logger.Error("transcript rejected fragment", "error", streamErr)
		}
		return status, streamErr
	}
	return status, nil
}

// fold appends fragments to the reply until the stream ends, fails, or the
// gate is cancelled.
func (e *Engine) fold(ctx context.Context, h model.Handle, gate *cancel.Gate, frags <-chan cloud.Fragment) (model.Status, error) {
	for {
		if gate.IsCancelled() {
			return model.StatusCancelled, nil
		}

		var (
			frag cloud.Fragment
			ok   bool
		)
		select {
		case frag, ok = <-frags:
		case <-ctx.Done():
			gate.RequestCancel()
			return model.StatusCancelled, nil
		}

		switch {
		case !ok:
			if gate.IsCancelled() {
				return model.StatusCancelled, nil
			}
			return model.StatusFailed, &cloud.NetworkError{Op: "read", Err: io.ErrUnexpectedEOF}
		case frag.Err != nil:
			if gate.IsCancelled() {
				return model.StatusCancelled, nil
			}
			return model.StatusFailed, frag.Err
		}

		if frag.Text != "" {
			if !gate.Enter() {
				return model.StatusCancelled, nil
			}
			err := e.transcript.AppendFragment(h, frag.Text)
			gate.Exit()
			if err != nil {
				return model.StatusFailed, fmt.Errorf("fold fragment: %w", err)
			}
			e.sink.OnFragment(frag.Text)
		}

		if frag.Final {
			return model.StatusComplete, nil
		}
	}
}

// drain consumes what is left of a stream so its producer can exit.
func drain(frags <-chan cloud.Fragment) {
	go func() {
		for range frags {
		}
	}()
}

// IsUserError reports whether err is something the user can act on
// (empty context, empty input, nothing to retry) rather than a failure.
func IsUserError(err error) bool {
	var empty *request.EmptyContextError
	return errors.As(err, &empty) || errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrNothingToRetry)
}

// Snapshot returns the settings the next exchange would use.
func (e *Engine) Snapshot() config.Snapshot {
	return e.config.Snapshot()
}
