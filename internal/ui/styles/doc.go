// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the colour palette and lipgloss styles shared by
// the line-mode renderer and the full-screen TUI.
//
// # Key Types
//
//   - Theme: every style ata renders with, plain when colours are disabled
//   - StatusIndicators: ASCII markers that carry meaning without colour
//
// # Usage
//
//	theme := styles.NewTheme(colorsEnabled)
//	fmt.Println(theme.Error.Render("request failed"))
package styles
