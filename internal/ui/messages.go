// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"time"

	"github.com/jeranaias/ata/internal/model"
)

// turnStartedMsg is sent when the engine opens an assistant turn.
type turnStartedMsg struct {
	Turn model.Turn
}

// fragmentMsg carries one streamed delta. The conversation is redrawn
// from the transcript on the next tick, so only the arrival matters.
type fragmentMsg struct {
	Delta string
}

// turnFinalizedMsg is sent when the reply reaches its final status.
type turnFinalizedMsg struct {
	Turn model.Turn
}

// replyDoneMsg ends a Submit started from the input box.
type replyDoneMsg struct {
	Status model.Status
	Err    error
}

// commandDoneMsg ends a slash command. Output is what it printed.
type commandDoneMsg struct {
	Name   string
	Output string
	Err    error
	Quit   bool
}

// tickMsg redraws a streaming reply at a capped rate.
type tickMsg struct {
	Time time.Time
}
