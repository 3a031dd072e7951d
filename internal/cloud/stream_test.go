// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/ata/internal/cancel"
)

func sseChunk(content, finish string) string {
	chunk := map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-3.5-turbo",
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"content": content},
			"finish_reason": func() any {
				if finish == "" {
					return nil
				}
				return finish
			}(),
		}},
	}
	data, _ := json.Marshal(chunk)
	return "data: " + string(data) + "\n\n"
}

// sseHandler writes events one by one, flushing after each.
func sseHandler(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			io.WriteString(w, e)
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, ch <-chan Fragment) []Fragment {
	t.Helper()
	var out []Fragment
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func texts(frags []Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		b.WriteString(f.Text)
	}
	return b.String()
}

func testRequest() *ChatRequest {
	return &ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []ChatMessage{{Role: "user", Content: "Hi"}},
		Timeout:  5 * time.Second,
	}
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_ReadEvent(t *testing.T) {
	input := ": keep-alive\n\nevent: message\ndata: one\ndata: two\n\ndata:three\r\n\r\nid: 4\ndata: four"
	r := NewSSEReader(strings.NewReader(input))

	want := []struct{ event, data string }{
		{"message", "one\ntwo"},
		{"", "three"},
		{"", "four"},
	}
	for i, w := range want {
		event, data, err := r.ReadEvent()
		if err != nil {
			t.Fatalf("event %d: error = %v", i, err)
		}
		if event != w.event || string(data) != w.data {
			t.Errorf("event %d = (%q, %q), want (%q, %q)", i, event, data, w.event, w.data)
		}
	}
	if _, _, err := r.ReadEvent(); err != io.EOF {
		t.Errorf("final error = %v, want io.EOF", err)
	}
}

func TestSSEReader_ChunkTooLarge(t *testing.T) {
	input := "data: " + strings.Repeat("x", MaxChunkSize+1) + "\n\n"
	_, _, err := NewSSEReader(strings.NewReader(input)).ReadEvent()
	if !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("error = %v, want ErrChunkTooLarge", err)
	}
}

// =============================================================================
// OPEN TESTS
// =============================================================================

func TestOpen_StreamsFragmentsThenFinal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("stream flag not set")
		}
		sseHandler(
			sseChunk("Hel", ""),
			sseChunk("lo", ""),
			sseChunk("!", "stop"),
			"data: [DONE]\n\n",
		)(w, r)
	})

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	if got := texts(frags); got != "Hello!" {
		t.Errorf("text = %q, want Hello!", got)
	}
	last := frags[len(frags)-1]
	if !last.Final || last.FinishReason != FinishStop {
		t.Errorf("last fragment = %+v, want final stop", last)
	}
	for _, f := range frags[:len(frags)-1] {
		if f.Final || f.Err != nil {
			t.Errorf("non-terminal fragment marked terminal: %+v", f)
		}
	}
}

func TestOpen_DoneWithoutFinishReason(t *testing.T) {
	c := newTestClient(t, sseHandler(sseChunk("a", ""), sseChunk("b", ""), "data: [DONE]\n\n"))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	last := frags[len(frags)-1]
	if !last.Final || last.FinishReason != FinishDone {
		t.Errorf("last = %+v", last)
	}
	if texts(frags) != "ab" {
		t.Errorf("text = %q", texts(frags))
	}
}

func TestOpen_EOFCountsAsFinal(t *testing.T) {
	c := newTestClient(t, sseHandler(sseChunk("a", "")))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	if last := frags[len(frags)-1]; !last.Final {
		t.Errorf("last = %+v, want final", last)
	}
}

func TestOpen_LengthFinish(t *testing.T) {
	c := newTestClient(t, sseHandler(sseChunk("partial", "length")))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	if last := frags[len(frags)-1]; !last.Final || last.FinishReason != FinishLength {
		t.Errorf("last = %+v", last)
	}
}

func TestOpen_ContentFilter(t *testing.T) {
	c := newTestClient(t, sseHandler(sseChunk("x", ""), sseChunk("", "content_filter")))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	last := frags[len(frags)-1]
	if !errors.Is(last.Err, ErrContentFiltered) {
		t.Errorf("last.Err = %v, want ErrContentFiltered", last.Err)
	}
}

func TestOpen_EmptyResponse(t *testing.T) {
	c := newTestClient(t, sseHandler(sseChunk("", "stop")))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	if len(frags) != 1 || !errors.Is(frags[0].Err, ErrEmptyResponse) {
		t.Errorf("frags = %+v, want single ErrEmptyResponse", frags)
	}
}

func TestOpen_SkipsMalformedChunks(t *testing.T) {
	c := newTestClient(t, sseHandler("data: {not json\n\n", sseChunk("ok", "stop")))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	if texts(frags) != "ok" {
		t.Errorf("text = %q", texts(frags))
	}
}

func TestOpen_IgnoresOtherChoices(t *testing.T) {
	other := `data: {"choices":[{"index":1,"delta":{"content":"zzz"},"finish_reason":null}]}` + "\n\n"
	c := newTestClient(t, sseHandler(other, sseChunk("a", "stop")))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	if texts(frags) != "a" {
		t.Errorf("text = %q, want only choice 0", texts(frags))
	}
}

func TestOpen_ErrorEventInStream(t *testing.T) {
	c := newTestClient(t, sseHandler(
		sseChunk("a", ""),
		`data: {"error":{"message":"overloaded","type":"server_error"}}`+"\n\n",
	))

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	last := frags[len(frags)-1]
	var netErr *NetworkError
	if !errors.As(last.Err, &netErr) {
		t.Fatalf("last.Err = %T %v, want *NetworkError", last.Err, last.Err)
	}
	if !strings.Contains(last.Err.Error(), "overloaded") {
		t.Errorf("error %q does not carry server message", last.Err)
	}
}

func TestOpen_HTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusNotFound, ErrModelNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrServer},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":{"message":"nope"}}`)
			})

			frags := collect(t, c.Open(context.Background(), testRequest(), nil))
			if len(frags) != 1 {
				t.Fatalf("got %d fragments, want 1", len(frags))
			}
			var netErr *NetworkError
			if !errors.As(frags[0].Err, &netErr) || netErr.Status != tt.status {
				t.Fatalf("Err = %v, want *NetworkError with status %d", frags[0].Err, tt.status)
			}
			if !errors.Is(frags[0].Err, tt.want) {
				t.Errorf("Err = %v, want %v", frags[0].Err, tt.want)
			}
		})
	}
}

func TestOpen_RetryAfterIsReported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	var rl *RateLimitError
	if !errors.As(frags[0].Err, &rl) || rl.RetryAfter != 7*time.Second {
		t.Errorf("Err = %v, want RateLimitError after 7s", frags[0].Err)
	}
}

func TestOpen_NotConfigured(t *testing.T) {
	frags := collect(t, NewClient("").Open(context.Background(), testRequest(), nil))
	if len(frags) != 1 || !errors.Is(frags[0].Err, ErrNotConfigured) {
		t.Errorf("frags = %+v", frags)
	}
}

func TestOpen_ConnectionRefused(t *testing.T) {
	c := NewClient(testKey).WithBaseURL("http://127.0.0.1:1")

	frags := collect(t, c.Open(context.Background(), testRequest(), nil))
	var netErr *NetworkError
	if len(frags) != 1 || !errors.As(frags[0].Err, &netErr) {
		t.Errorf("frags = %+v, want single NetworkError", frags)
	}
}

func TestOpen_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("slow", ""))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	req := testRequest()
	req.Timeout = 100 * time.Millisecond
	frags := collect(t, c.Open(context.Background(), req, nil))

	last := frags[len(frags)-1]
	var timeoutErr *TimeoutError
	if !errors.As(last.Err, &timeoutErr) {
		t.Fatalf("last.Err = %T %v, want *TimeoutError", last.Err, last.Err)
	}
	if timeoutErr.After != 100*time.Millisecond {
		t.Errorf("After = %v", timeoutErr.After)
	}
}

func TestOpen_CancelStopsWithoutTerminal(t *testing.T) {
	started := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, sseChunk("Hel", ""))
		flusher.Flush()
		close(started)
		for {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
				io.WriteString(w, sseChunk("x", ""))
				flusher.Flush()
			}
		}
	})

	ctx, gate := cancel.WithContext(context.Background())
	ch := c.Open(ctx, testRequest(), gate)
	<-started
	first := <-ch
	if first.Text != "Hel" {
		t.Fatalf("first = %+v", first)
	}
	gate.RequestCancel()

	for _, f := range collect(t, ch) {
		if f.Final || f.Err != nil {
			t.Errorf("terminal fragment after cancel: %+v", f)
		}
	}
}
