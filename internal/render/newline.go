// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import "strings"

// newlineFixer repairs replies that stream an escaped newline as two
// fragments, `\` then `n`. A fragment ending in a backslash is held back;
// the next fragment that does not is joined to everything held, and every
// `\n` in the joined text is displayed as a newline. Fragments that arrive
// with nothing held are shown as they are. The transcript keeps the raw
// text.
type newlineFixer struct {
	held strings.Builder
}

// Push returns the text to display for fragment.
func (f *newlineFixer) Push(fragment string) string {
	if fragment == "" {
		return ""
	}
	if strings.HasSuffix(fragment, `\`) {
		f.held.WriteString(fragment)
		return ""
	}
	if f.held.Len() == 0 {
		return fragment
	}
	joined := f.held.String() + fragment
	f.held.Reset()
	return strings.ReplaceAll(joined, `\n`, "\n")
}

// Flush returns anything still held back, unchanged.
func (f *newlineFixer) Flush() string {
	out := f.held.String()
	f.held.Reset()
	return out
}
