// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/ui/styles"
)

// Markers printed after a reply that did not complete.
const (
	CancelledMarker  = "[cancelled]"
	IncompleteMarker = "[incomplete]"
)

// TerminalOptions configures a Terminal renderer.
type TerminalOptions struct {
	Theme *styles.Theme

	// Header prints "Response:" before the first fragment of a reply.
	Header bool

	// Markdown, when set, re-renders completed replies below the raw stream.
	Markdown *Markdown

	BatchSize     int
	FlushInterval time.Duration
}

// Terminal streams replies to a writer in line mode.
type Terminal struct {
	out   io.Writer
	opts  TerminalOptions
	theme *styles.Theme

	mu      sync.Mutex // serializes writes to out
	buf     *Coalescer
	fixer   newlineFixer
	active  bool
	headed  bool // "Response:" printed for the current reply
	endedNL bool // last byte written was a newline
	stop    chan struct{}
	ticker  sync.WaitGroup
}

// NewTerminal creates a renderer writing to out.
func NewTerminal(out io.Writer, opts TerminalOptions) *Terminal {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(false)
	}
	return &Terminal{
		out:     out,
		opts:    opts,
		theme:   theme,
		buf:     NewCoalescerWithConfig(opts.BatchSize, opts.FlushInterval),
		endedNL: true,
	}
}

// OnTurnStarted starts the time-based flusher.
func (t *Terminal) OnTurnStarted(model.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startLocked()
}

// OnFragment buffers delta and writes it once a flush threshold is hit.
func (t *Terminal) OnFragment(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startLocked()
	if !t.headed {
		t.headed = true
		if t.opts.Header {
			t.writeLocked(t.theme.ResponseHeader.Render("Response:") + "\n")
		}
	}
	t.buf.Write(t.fixer.Push(delta))
	if text, ok := t.buf.Flush(); ok {
		t.writeLocked(text)
	}
}

// OnTurnFinalized flushes what is left and prints the status marker.
func (t *Terminal) OnTurnFinalized(turn model.Turn) {
	t.stopTicker()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Write(t.fixer.Flush())
	if text, ok := t.buf.ForceFlush(); ok {
		t.writeLocked(text)
	}

	switch turn.Status {
	case model.StatusCancelled:
		t.markerLocked(t.theme.Cancelled.Render(CancelledMarker))
	case model.StatusFailed:
		t.markerLocked(t.theme.Incomplete.Render(IncompleteMarker))
	case model.StatusComplete:
		if t.opts.Markdown != nil && strings.TrimSpace(turn.Content) != "" {
			t.newlineLocked()
			t.writeLocked(t.opts.Markdown.Render(turn.Content))
		}
	}
	t.newlineLocked()
	t.writeLocked("\n")
	t.active = false
	t.headed = false
}

func (t *Terminal) startLocked() {
	if t.active {
		return
	}
	t.active = true
	t.fixer = newlineFixer{}
	t.buf.Reset()

	t.stop = make(chan struct{})
	t.ticker.Add(1)
	go t.tick(t.stop)
}

// tick flushes slow streams so text never waits for the next fragment.
func (t *Terminal) tick(stop <-chan struct{}) {
	defer t.ticker.Done()
	ticker := time.NewTicker(t.buf.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if text, ok := t.buf.Flush(); ok {
				t.writeLocked(text)
			}
			t.mu.Unlock()
		}
	}
}

func (t *Terminal) stopTicker() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		close(stop)
		t.ticker.Wait()
	}
}

func (t *Terminal) markerLocked(marker string) {
	t.newlineLocked()
	t.writeLocked(marker)
}

// newlineLocked ends the current line if text is on it.
func (t *Terminal) newlineLocked() {
	if !t.endedNL {
		t.writeLocked("\n")
	}
}

func (t *Terminal) writeLocked(s string) {
	if s == "" {
		return
	}
	io.WriteString(t.out, s)
	t.endedNL = strings.HasSuffix(s, "\n")
}
