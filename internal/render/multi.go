// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"github.com/jeranaias/ata/internal/engine"
	"github.com/jeranaias/ata/internal/model"
)

// Multi fans engine callbacks out to several renderers in order.
type Multi []engine.Renderer

// NewMulti drops nil renderers.
func NewMulti(renderers ...engine.Renderer) Multi {
	out := make(Multi, 0, len(renderers))
	for _, r := range renderers {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m Multi) OnTurnStarted(turn model.Turn) {
	for _, r := range m {
		if s, ok := r.(engine.Starter); ok {
			s.OnTurnStarted(turn)
		}
	}
}

func (m Multi) OnFragment(delta string) {
	for _, r := range m {
		r.OnFragment(delta)
	}
}

func (m Multi) OnTurnFinalized(turn model.Turn) {
	for _, r := range m {
		r.OnTurnFinalized(turn)
	}
}
