// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ata/internal/model"
)

// Sink forwards engine callbacks to a running tea.Program. The session is
// built before the program exists, so the sink is created first and the
// program attached later. Callbacks before Attach are dropped.
type Sink struct {
	mu      sync.RWMutex
	program *tea.Program
}

// NewSink returns a detached sink.
func NewSink() *Sink {
	return &Sink{}
}

// Attach routes later callbacks to p. A nil p detaches.
func (s *Sink) Attach(p *tea.Program) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

func (s *Sink) send(msg tea.Msg) {
	s.mu.RLock()
	p := s.program
	s.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

// OnTurnStarted implements engine.Starter.
func (s *Sink) OnTurnStarted(turn model.Turn) {
	s.send(turnStartedMsg{Turn: turn})
}

// OnFragment implements engine.Renderer.
func (s *Sink) OnFragment(delta string) {
	s.send(fragmentMsg{Delta: delta})
}

// OnTurnFinalized implements engine.Renderer.
func (s *Sink) OnTurnFinalized(turn model.Turn) {
	s.send(turnFinalizedMsg{Turn: turn})
}
