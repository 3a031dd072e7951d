// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme holds every style used to draw prompts, replies and status lines.
type Theme struct {
	Colors bool

	// Line mode
	PromptHeader   lipgloss.Style // "Prompt:"
	ResponseHeader lipgloss.Style // "Response:"
	Cancelled      lipgloss.Style // [cancelled] marker
	Incomplete     lipgloss.Style // [incomplete] marker

	// Messages
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style

	// TUI
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	SystemBubble    lipgloss.Style
	InputBox        lipgloss.Style
	StatusBar       lipgloss.Style
}

// NewTheme builds the theme. With colors false every style is plain so
// output piped to a file carries no escape codes.
func NewTheme(colors bool) *Theme {
	t := &Theme{Colors: colors}
	if !colors {
		plain := lipgloss.NewStyle()
		t.PromptHeader, t.ResponseHeader = plain, plain
		t.Cancelled, t.Incomplete = plain, plain
		t.Success, t.Error, t.Warning, t.Info = plain, plain, plain, plain
		t.Dim, t.Label, t.Value = plain, plain.Width(22), plain
		t.UserBubble = plain.PaddingLeft(2)
		t.AssistantBubble = plain.PaddingLeft(2)
		t.SystemBubble = plain.PaddingLeft(2)
		t.InputBox = plain.Border(lipgloss.NormalBorder())
		t.StatusBar = plain
		return t
	}

	t.PromptHeader = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.ResponseHeader = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Cancelled = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.Incomplete = lipgloss.NewStyle().Foreground(Rose).Italic(true)

	t.Success = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.Error = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Warning = lipgloss.NewStyle().Foreground(Amber)
	t.Info = lipgloss.NewStyle().Foreground(Cyan)
	t.Dim = lipgloss.NewStyle().Foreground(TextMuted)
	t.Label = lipgloss.NewStyle().Foreground(TextSecondary).Width(22)
	t.Value = lipgloss.NewStyle().Foreground(TextPrimary)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)
	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(AssistantBubbleBorder).
		PaddingLeft(1)
	t.SystemBubble = lipgloss.NewStyle().
		Foreground(SystemBubbleFg).
		Italic(true).
		PaddingLeft(2)
	t.InputBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan)
	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(Overlay).
		PaddingLeft(1).
		PaddingRight(1)
	return t
}

// RenderError renders an error message with its shape indicator.
// ACCESSIBILITY: Includes shape indicator for colorblind users.
func (t *Theme) RenderError(message string) string {
	return t.Error.Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders a warning with its shape indicator.
func (t *Theme) RenderWarning(message string) string {
	return t.Warning.Render(StatusIndicators.Warning + " " + message)
}

// RenderSuccess renders a success message with its shape indicator.
func (t *Theme) RenderSuccess(message string) string {
	return t.Success.Render(StatusIndicators.Success + " " + message)
}

// RenderInfo renders an informational message with its shape indicator.
func (t *Theme) RenderInfo(message string) string {
	return t.Info.Render(StatusIndicators.Info + " " + message)
}
