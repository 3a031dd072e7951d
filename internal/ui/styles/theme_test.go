// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestNewTheme_PlainHasNoEscapes(t *testing.T) {
	theme := NewTheme(false)

	rendered := []string{
		theme.PromptHeader.Render("Prompt:"),
		theme.ResponseHeader.Render("Response:"),
		theme.Cancelled.Render("[cancelled]"),
		theme.RenderError("boom"),
		theme.RenderWarning("careful"),
	}
	for _, s := range rendered {
		if strings.Contains(s, "\x1b[") {
			t.Errorf("plain theme rendered escape codes: %q", s)
		}
	}
}

func TestRenderHelpers_IncludeIndicators(t *testing.T) {
	theme := NewTheme(false)

	tests := []struct {
		got, want string
	}{
		{theme.RenderError("e"), "[X] e"},
		{theme.RenderWarning("w"), "[!] w"},
		{theme.RenderSuccess("s"), "[OK] s"},
		{theme.RenderInfo("i"), "[i] i"},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.got, tt.want) {
			t.Errorf("got %q, want it to contain %q", tt.got, tt.want)
		}
	}
}

func TestNewTheme_Colors(t *testing.T) {
	theme := NewTheme(true)
	if !theme.Colors {
		t.Error("Colors flag not set")
	}
	if theme.Label.GetWidth() != 22 {
		t.Errorf("label width = %d", theme.Label.GetWidth())
	}
}
