// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/util"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// sessionSchema is applied on every open.
const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    model      TEXT NOT NULL DEFAULT '',
    title      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS turns (
    id         TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    role       TEXT NOT NULL,
    status     TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, id)
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
`

// titleWidth bounds the session title taken from the first user turn.
const titleWidth = 60

// ErrSessionNotFound is returned by LoadSession for an unknown id.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo summarises one logged session.
type SessionInfo struct {
	ID        string
	StartedAt time.Time
	Model     string
	Title     string
	Turns     int
}

// SessionLog records every finished turn of every session in SQLite so a
// session can be listed and resumed later.
type SessionLog struct {
	db *sql.DB
}

// OpenSessionLog opens (creating if needed) the session database at path.
func OpenSessionLog(path string) (*SessionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SessionLog{db: db}, nil
}

// Close closes the database.
func (l *SessionLog) Close() error {
	return l.db.Close()
}

// StartSession registers a session. Starting an existing id is a no-op.
func (l *SessionLog) StartSession(ctx context.Context, id, modelName string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, model) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, time.Now().UnixMilli(), modelName)
	if err != nil {
		return fmt.Errorf("start session %s: %w", id, err)
	}
	return nil
}

// RecordTurn stores turn at position seq of the session, replacing an
// earlier row of the session with the same turn id. The first user turn becomes the
// session title.
func (l *SessionLog) RecordTurn(ctx context.Context, sessionID string, seq int, turn model.Turn) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	defer tx.Rollback()

	// A retried reply takes the seq of the one it replaced.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM turns WHERE session_id = ? AND seq = ? AND id <> ?`,
		sessionID, seq, turn.ID); err != nil {
		return fmt.Errorf("record turn: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, seq, role, status, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, id) DO UPDATE SET
		     seq = excluded.seq,
		     status = excluded.status,
		     content = excluded.content`,
		turn.ID, sessionID, seq, string(turn.Role), turn.Status.String(), turn.Content, turn.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record turn %s: %w", turn.ID, err)
	}

	if turn.Role == model.RoleUser {
		title := util.TruncateWidth(util.OneLine(turn.Content), titleWidth)
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET title = ? WHERE id = ? AND title = ''`, title, sessionID); err != nil {
			return fmt.Errorf("record turn: %w", err)
		}
	}
	return tx.Commit()
}

// ListSessions returns up to limit sessions, newest first. limit <= 0
// returns all of them.
func (l *SessionLog) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	query := `
		SELECT s.id, s.started_at, s.model, s.title, COUNT(t.id)
		FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info    SessionInfo
			started int64
		)
		if err := rows.Scan(&info.ID, &started, &info.Model, &info.Title, &info.Turns); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		info.StartedAt = time.UnixMilli(started)
		out = append(out, info)
	}
	return out, rows.Err()
}

// LoadSession returns the turns of a session in order.
func (l *SessionLog) LoadSession(ctx context.Context, id string) ([]model.Turn, error) {
	var exists int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, role, status, content, created_at FROM turns
		 WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var (
			turn            model.Turn
			role, status    string
			createdUnixMsec int64
		)
		if err := rows.Scan(&turn.ID, &role, &status, &turn.Content, &createdUnixMsec); err != nil {
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
		if turn.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
		if turn.Status, err = model.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
		turn.CreatedAt = time.UnixMilli(createdUnixMsec)
		turn.FinishedAt = turn.CreatedAt
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder is an engine sink that writes finished turns to a SessionLog
// after each reply is finalized. The session row is created lazily so
// sessions without a single turn never show up in listings.
type Recorder struct {
	log     *SessionLog
	source  func() []model.Turn
	logger  *slog.Logger
	timeout time.Duration

	mu        sync.Mutex
	sessionID string
	modelName string
	started   bool
	recorded  map[string]model.Status
}

// NewRecorder creates a recorder with no session. source returns the
// finished turns of the transcript, usually Transcript.Finished.
func NewRecorder(log *SessionLog, source func() []model.Turn) *Recorder {
	return &Recorder{
		log:      log,
		source:   source,
		logger:   slog.Default(),
		timeout:  5 * time.Second,
		recorded: make(map[string]model.Status),
	}
}

// WithLogger sets the logger.
func (r *Recorder) WithLogger(logger *slog.Logger) *Recorder {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// SetSession switches to session id and forgets what was recorded.
func (r *Recorder) SetSession(id, modelName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
	r.modelName = modelName
	r.started = false
	r.recorded = make(map[string]model.Status)
}

// MarkRecorded treats turns as already stored, e.g. after resuming.
func (r *Recorder) MarkRecorded(turns []model.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range turns {
		r.recorded[t.ID] = t.Status
	}
	if len(turns) > 0 {
		r.started = true
	}
}

// OnFragment implements engine.Renderer.
func (r *Recorder) OnFragment(string) {}

// OnTurnFinalized implements engine.Renderer.
func (r *Recorder) OnTurnFinalized(model.Turn) {
	if err := r.Sync(context.Background()); err != nil {
		r.logger.Warn("session log write failed", "error", err)
	}
}

// Sync writes every finished turn not yet recorded, in order.
func (r *Recorder) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		return nil
	}
	for seq, turn := range r.source() {
		if status, ok := r.recorded[turn.ID]; ok && status == turn.Status {
			continue
		}
		if !r.started {
			if err := r.log.StartSession(ctx, r.sessionID, r.modelName); err != nil {
				return err
			}
			r.started = true
		}
		if err := r.log.RecordTurn(ctx, r.sessionID, seq, turn); err != nil {
			return err
		}
		r.recorded[turn.ID] = turn.Status
	}
	return nil
}
