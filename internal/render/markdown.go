// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"sync"

	"github.com/charmbracelet/glamour"
)

// Markdown renders finished replies for the terminal.
// USABILITY: Renders markdown responses with syntax highlighting and formatting.
type Markdown struct {
	width int

	once     sync.Once
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer wrapping at width columns.
func NewMarkdown(width int) *Markdown {
	if width <= 0 {
		width = 80
	}
	return &Markdown{width: width}
}

// Render returns content as styled terminal text. It falls back to the
// original content if glamour cannot be initialised or fails.
func (m *Markdown) Render(content string) string {
	m.once.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.width),
		)
		if err == nil {
			m.renderer = r
		}
	})
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
