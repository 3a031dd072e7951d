// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"

	"github.com/jeranaias/ata/internal/cancel"
	"github.com/jeranaias/ata/internal/cloud"
	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/model"
)

// Renderer receives the reply as it is folded into the transcript. It is a
// pure sink; the engine ignores anything it does.
type Renderer interface {
	OnFragment(delta string)
	OnTurnFinalized(turn model.Turn)
}

// Starter is implemented by renderers that want to know when a reply begins.
type Starter interface {
	OnTurnStarted(turn model.Turn)
}

// Streamer opens a reply stream. *cloud.Client implements it.
type Streamer interface {
	Open(ctx context.Context, req *cloud.ChatRequest, gate *cancel.Gate) <-chan cloud.Fragment
}

// ConfigSource supplies the settings for one exchange. *config.Live
// implements it.
type ConfigSource interface {
	Snapshot() config.Snapshot
}

// StaticConfig is a ConfigSource that never changes.
type StaticConfig config.Snapshot

// Snapshot returns the stored settings.
func (s StaticConfig) Snapshot() config.Snapshot {
	return config.Snapshot(s)
}

type nopRenderer struct{}

func (nopRenderer) OnFragment(string)          {}
func (nopRenderer) OnTurnFinalized(model.Turn) {}
