// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ata/internal/cloud"
	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/engine"
	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/render"
	"github.com/jeranaias/ata/internal/storage"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures New.
type Options struct {
	// Config is required.
	Config *config.Live

	// Client is built from Config when nil.
	Client *cloud.Client

	// Sinks receive engine callbacks in order, before the session recorder.
	Sinks []engine.Renderer

	// ConversationDir defaults to <config dir>/conversations.
	ConversationDir string

	// SessionDB overrides the configured session database. "-" disables it.
	SessionDB string

	Logger *slog.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session wires one conversation: its transcript, the engine that drives
// it, the client the engine streams from and the stores it persists to.
//
// ID and Started change on Reset, Resume and LoadFile; those run on the
// input goroutine, the same one that calls Engine.Submit.
type Session struct {
	ID      string
	Started time.Time

	Config        *config.Live
	Transcript    *model.Transcript
	Client        *cloud.Client
	Engine        *engine.Engine
	Log           *storage.SessionLog // nil when the session log is disabled
	Conversations *storage.ConversationStore

	recorder *storage.Recorder
	logger   *slog.Logger
}

// New builds a session from opts and seeds the configured system prompt.
func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config.Get()

	client := opts.Client
	if client == nil {
		client = cloud.NewClient(cfg.APIKey).
			WithBaseURL(cfg.BaseURL).
			WithRateLimit(cfg.RequestsPerMinute).
			WithLogger(logger)
	}
	opts.Config.OnChange(func(c *config.Config) {
		client.SetCredentials(c.BaseURL, c.APIKey)
		client.SetRateLimit(c.RequestsPerMinute)
	})

	convDir := opts.ConversationDir
	if convDir == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		convDir = filepath.Join(dir, "conversations")
	}
	conversations, err := storage.NewConversationStore(convDir)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Config:        opts.Config,
		Transcript:    model.NewTranscript(),
		Client:        client,
		Conversations: conversations,
		logger:        logger,
	}

	dbPath := opts.SessionDB
	if dbPath == "" {
		dbPath = cfg.SessionDB
	}
	if dbPath != "" && dbPath != "-" {
		log, err := storage.OpenSessionLog(dbPath)
		if err != nil {
			logger.Warn("session log disabled", "path", dbPath, "error", err)
		} else {
			s.Log = log
			s.recorder = storage.NewRecorder(log, s.Transcript.Finished).WithLogger(logger)
		}
	}

	sinks := append([]engine.Renderer{}, opts.Sinks...)
	if s.recorder != nil {
		sinks = append(sinks, s.recorder)
	}
	s.Engine = engine.New(s.Transcript, client, opts.Config, render.NewMulti(sinks...)).WithLogger(logger)

	if err := s.start(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// start gives the session a fresh id and seeds the system prompt.
func (s *Session) start() error {
	s.ID = uuid.NewString()
	s.Started = time.Now()
	snap := s.Config.Snapshot()
	if s.recorder != nil {
		s.recorder.SetSession(s.ID, snap.Model)
	}
	if snap.SystemPrompt != "" {
		if err := s.Transcript.Append(model.NewTurn(model.RoleSystem, snap.SystemPrompt)); err != nil {
			return fmt.Errorf("seed system prompt: %w", err)
		}
	}
	s.logger.Info("session started", "session", s.ID, "model", snap.Model)
	return nil
}

// Close releases the session log.
func (s *Session) Close() error {
	if s.Log == nil {
		return nil
	}
	return s.Log.Close()
}

// Reset starts a new conversation under a new id. The system prompt is
// re-seeded from the current configuration.
func (s *Session) Reset() error {
	if err := s.idle(); err != nil {
		return err
	}
	if err := s.Transcript.Clear(false); err != nil {
		return err
	}
	return s.start()
}

// Resume replaces the transcript with a logged session and continues it
// under that session's id.
func (s *Session) Resume(ctx context.Context, id string) error {
	if s.Log == nil {
		return fmt.Errorf("session log is disabled")
	}
	if err := s.idle(); err != nil {
		return err
	}
	turns, err := s.Log.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	turns = s.dropUnanswered(turns, id)
	if err := s.Transcript.Replace(turns); err != nil {
		return fmt.Errorf("resume %s: %w", id, err)
	}

	s.ID = id
	s.Started = time.Now()
	s.recorder.SetSession(id, s.Config.Snapshot().Model)
	s.recorder.MarkRecorded(s.Transcript.Finished())
	s.logger.Info("session resumed", "session", id, "turns", len(turns))
	return nil
}

// LoadFile replaces the transcript with a saved conversation and returns
// the number of turns taken from it. The loaded conversation continues as a
// new session. name may be a path or a name in the conversation store.
//
// A trailing prompt that was never answered is dropped, and the configured
// system prompt is seeded when the file has none.
func (s *Session) LoadFile(name string) (int, error) {
	if err := s.idle(); err != nil {
		return 0, err
	}
	turns, err := s.Conversations.Load(name)
	if err != nil {
		return 0, err
	}
	turns = s.dropUnanswered(turns, name)
	loaded := len(turns)

	if prompt := s.Config.Snapshot().SystemPrompt; prompt != "" && !hasSystemTurn(turns) {
		turns = append([]model.Turn{model.NewTurn(model.RoleSystem, prompt)}, turns...)
	}
	if err := s.Transcript.Replace(turns); err != nil {
		return 0, fmt.Errorf("load %s: %w", name, err)
	}

	s.ID = uuid.NewString()
	s.Started = time.Now()
	if s.recorder != nil {
		s.recorder.SetSession(s.ID, s.Config.Snapshot().Model)
	}
	s.logger.Info("conversation loaded", "session", s.ID, "file", name, "turns", loaded)
	return loaded, nil
}

// dropUnanswered removes user turns at the end of turns. The next prompt
// must follow an assistant turn, so an unanswered one would block it.
func (s *Session) dropUnanswered(turns []model.Turn, source string) []model.Turn {
	end := len(turns)
	for end > 0 && turns[end-1].Role == model.RoleUser {
		end--
	}
	if end < len(turns) {
		s.logger.Warn("dropped unanswered prompt", "source", source, "turns", len(turns)-end)
	}
	return turns[:end]
}

func hasSystemTurn(turns []model.Turn) bool {
	for _, t := range turns {
		if t.Role == model.RoleSystem {
			return true
		}
	}
	return false
}

// Save writes the finished turns to the conversation store under name, or
// under a default name when name is empty. It returns the file path.
func (s *Session) Save(name string) (string, error) {
	path, err := s.Conversations.SaveAs(name, s.Transcript.Finished())
	if err != nil {
		return "", err
	}
	s.logger.Info("conversation saved", "session", s.ID, "path", path)
	return path, nil
}

// Sessions lists logged sessions, newest first.
func (s *Session) Sessions(ctx context.Context, limit int) ([]storage.SessionInfo, error) {
	if s.Log == nil {
		return nil, fmt.Errorf("session log is disabled")
	}
	return s.Log.ListSessions(ctx, limit)
}

func (s *Session) idle() error {
	if st := s.Engine.State(); st != engine.StateIdle {
		return &engine.BusyError{State: st}
	}
	return nil
}
