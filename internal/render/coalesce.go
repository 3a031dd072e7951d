// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// COALESCER
// =============================================================================

// Default flush thresholds: 15 fragments or ~33ms (30 frames per second).
const (
	DefaultBatchSize     = 15
	DefaultFlushInterval = time.Second / 30
)

// Coalescer batches fragments for display. Flushed text is always the
// in-order concatenation of what was written.
//
// Thread-safety: fragments are written from the engine goroutine while a
// ticker or the TUI loop flushes, so every method locks.
type Coalescer struct {
	mu        sync.Mutex
	buffer    strings.Builder
	pending   int
	lastFlush time.Time

	batchSize int
	interval  time.Duration
}

// NewCoalescer creates a coalescer with the default thresholds.
func NewCoalescer() *Coalescer {
	return NewCoalescerWithConfig(DefaultBatchSize, DefaultFlushInterval)
}

// NewCoalescerWithConfig creates a coalescer that flushes after batchSize
// fragments or interval, whichever comes first.
func NewCoalescerWithConfig(batchSize int, interval time.Duration) *Coalescer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Coalescer{
		batchSize: batchSize,
		interval:  interval,
		lastFlush: time.Now(),
	}
}

// Write adds a fragment.
func (c *Coalescer) Write(fragment string) {
	if fragment == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.WriteString(fragment)
	c.pending++
}

// Flush returns the buffered text if a threshold has been reached.
func (c *Coalescer) Flush() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffer.Len() == 0 {
		return "", false
	}
	if c.pending < c.batchSize && time.Since(c.lastFlush) < c.interval {
		return "", false
	}
	return c.takeLocked(), true
}

// ForceFlush returns all buffered text regardless of thresholds.
func (c *Coalescer) ForceFlush() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffer.Len() == 0 {
		return "", false
	}
	return c.takeLocked(), true
}

// Pending returns the number of fragments waiting to be flushed.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Reset drops buffered text without returning it.
func (c *Coalescer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.Reset()
	c.pending = 0
	c.lastFlush = time.Now()
}

func (c *Coalescer) takeLocked() string {
	content := c.buffer.String()
	c.buffer.Reset()
	c.pending = 0
	c.lastFlush = time.Now()
	return content
}
