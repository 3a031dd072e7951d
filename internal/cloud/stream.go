// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jeranaias/ata/internal/cancel"
)

// STREAMING: Robust SSE parsing with error handling

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxChunkSize is the maximum allowed size for a single SSE event (64KB)
const MaxChunkSize = 64 * 1024

// fragmentBuffer is the capacity of the channel returned by Open.
const fragmentBuffer = 100

// Finish reasons reported by the server.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishDone          = "done" // [DONE] or end of body without a reason
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// Fragment is one element of a reply stream. Exactly one element per stream
// has Final set or Err non-nil, and it is the last one.
type Fragment struct {
	Text         string
	Final        bool
	FinishReason string
	Err          error
}

// StreamChunk represents a single chunk of a chat completion stream.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiErrorBody `json:"error,omitempty"`
}

// GetContent returns the content delta of choice 0.
func (c *StreamChunk) GetContent() string {
	for _, ch := range c.Choices {
		if ch.Index == 0 {
			return ch.Delta.Content
		}
	}
	return ""
}

// GetFinishReason returns the finish reason of choice 0, if any.
func (c *StreamChunk) GetFinishReason() string {
	for _, ch := range c.Choices {
		if ch.Index == 0 && ch.FinishReason != nil {
			return *ch.FinishReason
		}
	}
	return ""
}

// RateLimitError represents a rate limit error with retry information.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter.Round(time.Second))
	}
	return "rate limited"
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// parseRetryAfter reads a Retry-After header as seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		return time.Until(t)
	}
	return 0
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type, data, and any error.
// Returns io.EOF when the stream ends and ErrChunkTooLarge when an event
// exceeds MaxChunkSize.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(err == io.EOF && len(line) > 0) {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		size += len(line)
		if size > MaxChunkSize {
			return "", nil, ErrChunkTooLarge
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[5:]
			if len(data) > 0 && data[0] == ' ' {
				data = data[1:]
			}
			dataLines = append(dataLines, append([]byte(nil), data...))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Open starts a streaming chat completion and returns its fragments. The
// channel is closed after the terminal fragment. If gate is cancelled the
// stream stops without a terminal fragment and the connection is dropped
// through the context the gate was created with.
//
// The caller must keep receiving until the channel is closed.
func (c *Client) Open(ctx context.Context, req *ChatRequest, gate *cancel.Gate) <-chan Fragment {
	out := make(chan Fragment, fragmentBuffer)
	go func() {
		defer close(out)
		c.stream(ctx, req, gate, out)
	}()
	return out
}

func (c *Client) stream(ctx context.Context, req *ChatRequest, gate *cancel.Gate, out chan<- Fragment) {
	if req.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, req.Timeout)
		defer stop()
	}
	fail := func(err error) {
		if gate != nil && gate.IsCancelled() {
			return
		}
		c.logger.Debug("stream failed", "model", req.Model, "error", err)
		out <- Fragment{Err: c.classify(ctx, req, err)}
	}

	if err := c.wait(ctx); err != nil {
		fail(err)
		return
	}

	start := time.Now()
	resp, err := c.sendStreamRequest(ctx, req)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	reader := NewSSEReader(resp.Body)
	delivered := 0
	finish := func(reason string) {
		if delivered == 0 {
			fail(ErrEmptyResponse)
			return
		}
		c.logger.Debug("stream finished", "model", req.Model, "reason", reason,
			"fragments", delivered, "duration", time.Since(start))
		out <- Fragment{Final: true, FinishReason: reason}
	}

	for {
		if gate != nil && gate.IsCancelled() {
			return
		}

		_, data, err := reader.ReadEvent()
		if err == io.EOF {
			finish(FinishDone)
			return
		}
		if err != nil {
			fail(err)
			return
		}

		if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
			finish(FinishDone)
			return
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			c.logger.Debug("skipping malformed stream chunk", "error", err)
			continue
		}
		if chunk.Error != nil {
			fail(&APIError{Message: chunk.Error.Message, Type: chunk.Error.Type, Code: fmt.Sprint(chunk.Error.Code), Status: resp.StatusCode})
			return
		}

		if text := chunk.GetContent(); text != "" {
			delivered++
			out <- Fragment{Text: text}
		}

		switch reason := chunk.GetFinishReason(); reason {
		case "":
			continue
		case FinishContentFilter:
			fail(ErrContentFiltered)
			return
		default:
			finish(reason)
			return
		}
	}
}

// classify maps a stream failure onto NetworkError or TimeoutError.
func (c *Client) classify(ctx context.Context, req *ChatRequest, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{After: req.Timeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &TimeoutError{After: req.Timeout, Err: err}
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrContentFiltered), errors.Is(err, ErrEmptyResponse):
		return err
	}

	var (
		nErr   *NetworkError
		apiErr *APIError
	)
	switch {
	case errors.As(err, &nErr):
		return err
	case errors.As(err, &apiErr):
		return &NetworkError{Op: "request", Status: apiErr.Status, Err: err}
	default:
		return &NetworkError{Op: "read", Err: err}
	}
}

// sendStreamRequest sends the streaming HTTP request and returns the response.
func (c *Client) sendStreamRequest(ctx context.Context, req *ChatRequest) (*http.Response, error) {
	req.Stream = true

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Connection", "keep-alive")

	c.logger.Debug("api request", "path", "/chat/completions", "model", req.Model,
		"messages", len(req.Messages), "key", c.KeyFingerprint())

	// PERFORMANCE: Use shared streaming client with connection pooling (timeout handled via context)
	// SECURITY: TLS 1.2+ enforced via shared client configuration
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		err := handleErrorResponse(resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests && errors.Is(err, ErrRateLimited) {
			if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
				err = fmt.Errorf("%w: %w", &RateLimitError{RetryAfter: after}, err)
			}
		}
		return nil, &NetworkError{Op: "request", Status: resp.StatusCode, Err: err}
	}
	return resp, nil
}
