// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/engine"
	"github.com/jeranaias/ata/internal/model"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type headerLog struct {
	mu   sync.Mutex
	seen []string
}

func (h *headerLog) add(v string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, v)
}

func (h *headerLog) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

// replyServer streams words as one SSE chunk each and records the
// Authorization header of every request.
func replyServer(t *testing.T, words ...string) (*httptest.Server, *headerLog) {
	t.Helper()
	auth := &headerLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.add(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, word := range words {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", word)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, auth
}

func newTestSession(t *testing.T, baseURL string, mutate func(*config.Config)) *Session {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.APIKey = "sk-first"
	cfg.BaseURL = baseURL
	cfg.SessionDB = filepath.Join(dir, "sessions.db")
	if mutate != nil {
		mutate(cfg)
	}

	s, err := New(Options{
		Config:          config.NewLive(cfg, ""),
		ConversationDir: filepath.Join(dir, "conversations"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_SeedsSystemPrompt(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:1", func(c *config.Config) {
		c.SystemPrompt = "be brief"
	})

	turns := s.Transcript.Finished()
	require.Len(t, turns, 1)
	assert.Equal(t, model.RoleSystem, turns[0].Role)
	assert.Equal(t, "be brief", turns[0].Content)
	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Log)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSession_SubmitRecordsAndResumes(t *testing.T) {
	srv, _ := replyServer(t, "Hel", "lo!")
	s := newTestSession(t, srv.URL, nil)
	ctx := context.Background()

	status, err := s.Engine.Submit(ctx, "Hi")
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, status)

	first := s.ID
	sessions, err := s.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, 2, sessions[0].Turns)

	require.NoError(t, s.Reset())
	assert.NotEqual(t, first, s.ID)
	assert.Equal(t, 0, s.Transcript.Len())

	require.NoError(t, s.Resume(ctx, first))
	turns := s.Transcript.Finished()
	require.Len(t, turns, 2)
	assert.Equal(t, "Hello!", turns[1].Content)
	assert.Equal(t, first, s.ID)
}

func TestSession_SaveAndLoadFile(t *testing.T) {
	srv, _ := replyServer(t, "Hello!")
	s := newTestSession(t, srv.URL, nil)

	_, err := s.Engine.Submit(context.Background(), "Hi")
	require.NoError(t, err)

	path, err := s.Save("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "conversation-"))

	require.NoError(t, s.Reset())
	before := s.ID
	n, err := s.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotEqual(t, before, s.ID)
	assert.Equal(t, 2, s.Transcript.Len())
}

func writeConversation(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSession_LoadFileDropsUnansweredPrompt(t *testing.T) {
	srv, _ := replyServer(t, "sure")
	s := newTestSession(t, srv.URL, nil)
	path := writeConversation(t, `[
		{"role": "user", "content": "hi"},
		{"role": "assistant", "content": "yo"},
		{"role": "user", "content": "unanswered"}
	]`)

	n, err := s.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	turns := s.Transcript.Finished()
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)

	for _, prompt := range []string{"next", "again"} {
		status, err := s.Engine.Submit(context.Background(), prompt)
		require.NoError(t, err)
		assert.Equal(t, model.StatusComplete, status)
	}
	assert.Equal(t, 6, s.Transcript.Len())
}

func TestSession_LoadFileSeedsSystemPrompt(t *testing.T) {
	t.Run("file without system turn", func(t *testing.T) {
		s := newTestSession(t, "http://127.0.0.1:1", func(c *config.Config) { c.SystemPrompt = "be brief" })
		path := writeConversation(t, `[{"role": "user", "content": "hi"}, {"role": "assistant", "content": "yo"}]`)

		n, err := s.LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		turns := s.Transcript.Finished()
		require.Len(t, turns, 3)
		assert.Equal(t, model.RoleSystem, turns[0].Role)
		assert.Equal(t, "be brief", turns[0].Content)
	})

	t.Run("file with its own system turn", func(t *testing.T) {
		s := newTestSession(t, "http://127.0.0.1:1", func(c *config.Config) { c.SystemPrompt = "be brief" })
		path := writeConversation(t, `[
			{"role": "system", "content": "be verbose"},
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "yo"}
		]`)

		_, err := s.LoadFile(path)
		require.NoError(t, err)

		turns := s.Transcript.Finished()
		require.Len(t, turns, 3)
		assert.Equal(t, "be verbose", turns[0].Content)
	})
}

func TestSession_ConfigChangeReachesClient(t *testing.T) {
	srv, auth := replyServer(t, "ok")
	s := newTestSession(t, srv.URL, nil)
	ctx := context.Background()

	_, err := s.Engine.Submit(ctx, "one")
	require.NoError(t, err)
	require.NoError(t, s.Config.Set("api_key", "sk-second"))
	_, err = s.Engine.Submit(ctx, "two")
	require.NoError(t, err)

	seen := auth.all()
	require.Len(t, seen, 2)
	assert.Equal(t, "Bearer sk-first", seen[0])
	assert.Equal(t, "Bearer sk-second", seen[1])
}

func TestSession_SessionLogDisabled(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:1", func(c *config.Config) { c.SessionDB = "" })
	assert.Nil(t, s.Log)

	_, err := s.Sessions(context.Background(), 0)
	assert.Error(t, err)
	assert.Error(t, s.Resume(context.Background(), "x"))
}

func TestSession_BusyRejectsReset(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	s := newTestSession(t, srv.URL, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Engine.Submit(context.Background(), "Hi")
	}()

	require.Eventually(t, func() bool { return s.Engine.State() == engine.StateStreaming }, timeout, tick)
	assert.True(t, engine.IsBusy(s.Reset()))

	s.Engine.Cancel()
	<-done
	assert.NoError(t, s.Reset())
}
