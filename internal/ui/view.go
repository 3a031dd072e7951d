// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/render"
	"github.com/jeranaias/ata/internal/util"
)

// View draws the conversation, the status line, the input box and the key
// help.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	input := m.theme.InputBox.Width(m.width - inputChrome).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.statusLine(),
		input,
		m.help.ShortHelpView(m.keys.ShortHelp()),
	)
}

// renderConversation draws every turn of the transcript, including the one
// being streamed, with notes interleaved where they were posted.
func (m *Model) renderConversation() string {
	turns := m.session.Transcript.Live()
	var b strings.Builder

	next := 0
	flushNotes := func(upTo int) {
		for next < len(m.notes) && m.notes[next].after <= upTo {
			b.WriteString(m.renderNote(m.notes[next]))
			b.WriteString("\n\n")
			next++
		}
	}

	for i, turn := range turns {
		flushNotes(i)
		b.WriteString(m.renderTurn(turn))
		b.WriteString("\n\n")
	}
	flushNotes(math.MaxInt)

	if len(turns) == 0 && len(m.notes) == 0 {
		b.WriteString(m.theme.Dim.Render("No messages yet. Type a prompt below, or /help."))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) contentWidth() int {
	w := m.viewport.Width - 2
	if w < 10 {
		w = 10
	}
	return w
}

func (m *Model) renderTurn(turn model.Turn) string {
	width := m.contentWidth()

	switch turn.Role {
	case model.RoleUser:
		return m.theme.PromptHeader.Render("You") + "\n" +
			m.theme.UserBubble.Width(width).Render(turn.Content)

	case model.RoleSystem:
		return m.theme.SystemBubble.Width(width).Render(turn.Content)
	}

	header := m.theme.ResponseHeader.Render(m.session.Config.Get().Model)
	body := turn.Content
	switch {
	case turn.Status == model.StatusComplete && m.markdown != nil && strings.TrimSpace(body) != "":
		body = strings.Trim(m.markdown.Render(body), "\n")
	case !turn.Status.IsFinal() && body == "":
		body = m.spinner.View() + " " + m.theme.Dim.Render("waiting for the reply")
	default:
		body = m.theme.AssistantBubble.Width(width).Render(body)
	}

	switch turn.Status {
	case model.StatusCancelled:
		body += "\n" + m.theme.Cancelled.Render(render.CancelledMarker)
	case model.StatusFailed:
		body += "\n" + m.theme.Incomplete.Render(render.IncompleteMarker)
	}
	return header + "\n" + body
}

func (m *Model) renderNote(n note) string {
	width := m.contentWidth()
	if n.kind == noteError {
		return m.theme.RenderError(n.text)
	}
	return m.theme.SystemBubble.Width(width).Render(n.text)
}

// statusLine shows the model, the engine state, the size of the context and
// the last status message.
func (m *Model) statusLine() string {
	cfg := m.session.Config.Get()
	state := m.session.Engine.State().String()
	if m.busy {
		state = m.spinner.View() + " " + state
	}
	left := fmt.Sprintf("%s | %s | %d turns | ~%d tokens",
		cfg.Model, state, m.session.Transcript.Len(), m.session.Transcript.EstimateTokens())

	right := util.OneLine(m.status)
	room := m.width - lipgloss.Width(left) - 4
	if room < 0 {
		room = 0
	}
	right = util.TruncateWidth(right, room)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
