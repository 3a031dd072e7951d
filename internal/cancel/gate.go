// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cancel provides the cooperative cancellation gate shared by the
// input loop and an in-flight stream.
//
// A Gate lives for exactly one request. The input side calls RequestCancel;
// the streaming side polls IsCancelled between fragments and brackets each
// transcript append with Enter/Exit so that no fragment is folded after
// RequestCancel has returned.
package cancel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	stateOpen int32 = iota
	stateFolding
	stateCancelled
)

// Gate is a one-shot cancellation flag. The zero value is not usable; use New.
type Gate struct {
	state atomic.Int32

	// stop drops the underlying connection. Guarded by once.
	stop context.CancelFunc
	once sync.Once
}

// New creates an open gate. stop, if non-nil, is invoked exactly once when
// cancellation is requested, typically the CancelFunc of the request context.
func New(stop context.CancelFunc) *Gate {
	return &Gate{stop: stop}
}

// WithContext derives a cancellable context and a gate bound to it.
func WithContext(parent context.Context) (context.Context, *Gate) {
	ctx, stop := context.WithCancel(parent)
	return ctx, New(stop)
}

// RequestCancel marks the gate cancelled. It is idempotent and never blocks
// on the network. If a fold is in progress it waits for that single append
// to finish, so once RequestCancel returns nothing more is folded.
func (g *Gate) RequestCancel() {
	for {
		switch g.state.Load() {
		case stateCancelled:
			return
		case stateOpen:
			if g.state.CompareAndSwap(stateOpen, stateCancelled) {
				g.once.Do(g.fireStop)
				return
			}
		default:
			runtime.Gosched()
		}
	}
}

// IsCancelled is a non-blocking poll.
func (g *Gate) IsCancelled() bool {
	return g.state.Load() == stateCancelled
}

// Enter claims the gate for one fold. It returns false if the gate is
// cancelled, in which case the fragment must be discarded and Exit not called.
func (g *Gate) Enter() bool {
	return g.state.CompareAndSwap(stateOpen, stateFolding)
}

// Exit releases a fold claimed by Enter.
func (g *Gate) Exit() {
	g.state.CompareAndSwap(stateFolding, stateOpen)
}

// Release drops the connection without marking the gate cancelled. Callers
// use it once the request has resolved to free the context.
func (g *Gate) Release() {
	g.once.Do(g.fireStop)
}

func (g *Gate) fireStop() {
	if g.stop != nil {
		g.stop()
	}
}
