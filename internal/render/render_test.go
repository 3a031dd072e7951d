// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ata/internal/model"
)

// =============================================================================
// COALESCER
// =============================================================================

func TestCoalescer_FlushesOnBatchSize(t *testing.T) {
	c := NewCoalescerWithConfig(3, time.Hour)

	c.Write("a")
	c.Write("b")
	_, ok := c.Flush()
	assert.False(t, ok, "below both thresholds")
	assert.Equal(t, 2, c.Pending())

	c.Write("c")
	text, ok := c.Flush()
	require.True(t, ok)
	assert.Equal(t, "abc", text)
	assert.Equal(t, 0, c.Pending())
}

func TestCoalescer_FlushesOnInterval(t *testing.T) {
	c := NewCoalescerWithConfig(100, 10*time.Millisecond)
	c.Write("x")
	time.Sleep(15 * time.Millisecond)
	text, ok := c.Flush()
	require.True(t, ok)
	assert.Equal(t, "x", text)
}

func TestCoalescer_ForceFlushAndReset(t *testing.T) {
	c := NewCoalescer()
	_, ok := c.ForceFlush()
	assert.False(t, ok)

	c.Write("keep")
	text, ok := c.ForceFlush()
	require.True(t, ok)
	assert.Equal(t, "keep", text)

	c.Write("drop")
	c.Reset()
	_, ok = c.ForceFlush()
	assert.False(t, ok)
}

func TestCoalescer_PreservesOrder(t *testing.T) {
	c := NewCoalescerWithConfig(4, time.Hour)
	var out strings.Builder
	var in strings.Builder
	for i := 0; i < 103; i++ {
		s := string(rune('a' + i%26))
		in.WriteString(s)
		c.Write(s)
		if text, ok := c.Flush(); ok {
			out.WriteString(text)
		}
	}
	if text, ok := c.ForceFlush(); ok {
		out.WriteString(text)
	}
	assert.Equal(t, in.String(), out.String())
}

// =============================================================================
// NEWLINE FIX
// =============================================================================

func TestNewlineFixer(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      string
	}{
		{"no escapes", []string{"Hel", "lo"}, "Hello"},
		{"split escape", []string{"one\\", "ntwo"}, "one\ntwo"},
		{"backslash then other", []string{"a\\", "b"}, "a\\b"},
		{"double backslash held too", []string{"a\\\\", "n"}, "a\\\n"},
		{"joined text fixes every escape", []string{"one\\", "ntwo\\nthree"}, "one\ntwo\nthree"},
		{"several held fragments", []string{"x\\", "\\", "n more \\n"}, "x\\\n more \n"},
		{"trailing backslash flushed", []string{"end\\"}, "end\\"},
		{"backslash alone", []string{"\\", "n"}, "\n"},
		{"inline escape untouched", []string{"a\\nb"}, "a\\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f newlineFixer
			var b strings.Builder
			for _, frag := range tt.fragments {
				b.WriteString(f.Push(frag))
			}
			b.WriteString(f.Flush())
			assert.Equal(t, tt.want, b.String())
		})
	}
}

// =============================================================================
// TERMINAL
// =============================================================================

func finished(status model.Status, content string) model.Turn {
	turn := model.NewTurn(model.RoleAssistant, content)
	turn.Status = status
	return turn
}

func TestTerminal_Complete(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{Header: true})

	term.OnTurnStarted(model.Turn{})
	for _, f := range []string{"Hel", "lo", "!"} {
		term.OnFragment(f)
	}
	term.OnTurnFinalized(finished(model.StatusComplete, "Hello!"))

	assert.Equal(t, "Response:\nHello!\n\n", out.String())
}

func TestTerminal_NoHeader(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{})

	term.OnFragment("line\n")
	term.OnTurnFinalized(finished(model.StatusComplete, "line\n"))

	assert.Equal(t, "line\n\n", out.String())
}

func TestTerminal_CancelledMarker(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{})

	term.OnTurnStarted(model.Turn{})
	term.OnFragment("Hel")
	term.OnTurnFinalized(finished(model.StatusCancelled, "Hel"))

	assert.Equal(t, "Hel\n"+CancelledMarker+"\n\n", out.String())
}

func TestTerminal_IncompleteMarker(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{})

	term.OnTurnStarted(model.Turn{})
	term.OnTurnFinalized(finished(model.StatusFailed, ""))

	assert.Equal(t, IncompleteMarker+"\n\n", out.String())
}

func TestTerminal_HeaderWaitsForFirstFragment(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{Header: true})

	term.OnTurnStarted(model.Turn{})
	term.OnTurnFinalized(finished(model.StatusFailed, ""))
	assert.Equal(t, IncompleteMarker+"\n\n", out.String())

	out.Reset()
	term.OnTurnStarted(model.Turn{})
	term.OnFragment("ok")
	term.OnTurnFinalized(finished(model.StatusComplete, "ok"))
	assert.Equal(t, "Response:\nok\n\n", out.String())
}

func TestTerminal_SlowStreamFlushedByTicker(t *testing.T) {
	var out syncBuffer
	term := NewTerminal(&out, TerminalOptions{BatchSize: 100, FlushInterval: 5 * time.Millisecond})

	term.OnTurnStarted(model.Turn{})
	term.OnFragment("slow")
	assert.Eventually(t, func() bool { return out.String() == "slow" }, time.Second, time.Millisecond)
	term.OnTurnFinalized(finished(model.StatusComplete, "slow"))
	assert.Equal(t, "slow\n\n", out.String())
}

func TestTerminal_DisplaysJoinedNewline(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{})

	term.OnFragment("a\\")
	term.OnFragment("nb")
	term.OnTurnFinalized(finished(model.StatusComplete, "a\\nb"))

	assert.Equal(t, "a\nb\n\n", out.String())
}

func TestTerminal_ManyTurns(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, TerminalOptions{})

	for i := 0; i < 3; i++ {
		term.OnTurnStarted(model.Turn{})
		term.OnFragment("x")
		term.OnTurnFinalized(finished(model.StatusComplete, "x"))
	}
	assert.Equal(t, strings.Repeat("x\n\n", 3), out.String())
}

// =============================================================================
// MULTI / FORMATTERS
// =============================================================================

type countingRenderer struct {
	started, fragments, finalized int
}

func (c *countingRenderer) OnTurnStarted(model.Turn)   { c.started++ }
func (c *countingRenderer) OnFragment(string)          { c.fragments++ }
func (c *countingRenderer) OnTurnFinalized(model.Turn) { c.finalized++ }

func TestMulti(t *testing.T) {
	a, b := &countingRenderer{}, &countingRenderer{}
	m := NewMulti(a, nil, b)
	require.Len(t, m, 2)

	m.OnTurnStarted(model.Turn{})
	m.OnFragment("x")
	m.OnFragment("y")
	m.OnTurnFinalized(model.Turn{})

	for _, r := range []*countingRenderer{a, b} {
		assert.Equal(t, 1, r.started)
		assert.Equal(t, 2, r.fragments)
		assert.Equal(t, 1, r.finalized)
	}
}

func TestHighlight_NoColors(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Highlight(&out, "model = \"gpt\"\n", "toml", false))
	assert.Equal(t, "model = \"gpt\"\n", out.String())
}

func TestHighlight_Colors(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Highlight(&out, "model = \"gpt\"\n", "toml", true))
	assert.Contains(t, out.String(), "gpt")
	assert.Contains(t, out.String(), "\x1b[")
}

func TestMarkdown_KeepsText(t *testing.T) {
	md := NewMarkdown(60)
	assert.Contains(t, md.Render("# Title\n\nsome **bold** text"), "bold")
}
