// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/util"
)

// =============================================================================
// CONVERSATION FILE FORMAT
// =============================================================================

// storedTurn is one element of a saved conversation. Status is written only
// for replies that did not complete, so files from plain {role, content}
// writers load unchanged.
type storedTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Status  string `json:"status,omitempty"`
}

// previewWidth is the display width of List previews.
const previewWidth = 60

// DefaultConversationName returns the file name used when the user saves
// without naming a file.
func DefaultConversationName(now time.Time) string {
	return "conversation-" + strconv.FormatInt(now.Unix(), 10) + ".json"
}

// SaveConversation writes the finished turns to path as a JSON array.
// Streaming and pending turns are skipped.
func SaveConversation(path string, turns []model.Turn) error {
	data, err := encodeConversation(turns)
	if err != nil {
		return &ConversationError{Name: path, Op: "save", Err: err}
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
		return &ConversationError{Name: path, Op: "save", Err: err}
	}
	return nil
}

// LoadConversation reads a saved conversation. Unknown roles are rejected;
// turns without a status load as complete.
func LoadConversation(path string) ([]model.Turn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConversationError{Name: path, Op: "load", Err: ErrConversationNotFound}
		}
		return nil, &ConversationError{Name: path, Op: "load", Err: err}
	}
	turns, err := decodeConversation(data)
	if err != nil {
		return nil, &ConversationError{Name: path, Op: "load", Err: err}
	}
	return turns, nil
}

func encodeConversation(turns []model.Turn) ([]byte, error) {
	stored := make([]storedTurn, 0, len(turns))
	for _, turn := range turns {
		if !turn.Status.IsFinal() {
			continue
		}
		st := storedTurn{Role: string(turn.Role), Content: turn.Content}
		if turn.Status != model.StatusComplete {
			st.Status = turn.Status.String()
		}
		stored = append(stored, st)
	}
	return json.MarshalIndent(stored, "", "  ")
}

func decodeConversation(data []byte) ([]model.Turn, error) {
	var stored []storedTurn
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("not a conversation file: %w", err)
	}

	turns := make([]model.Turn, 0, len(stored))
	for i, st := range stored {
		role, err := model.ParseRole(st.Role)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		turn := model.NewTurn(role, st.Content)
		turn.Status = model.StatusComplete
		if st.Status != "" {
			status, err := model.ParseStatus(st.Status)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", i, err)
			}
			if status.IsFinal() {
				turn.Status = status
			}
		}
		turn.FinishedAt = turn.CreatedAt
		turns = append(turns, turn)
	}
	return turns, nil
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationInfo describes one saved conversation for listings.
type ConversationInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Turns   int
	Preview string // first user turn, one line
}

// ConversationStore keeps saved conversations in one directory.
type ConversationStore struct {
	dir string
}

// NewConversationStore returns a store rooted at dir, creating it if needed.
func NewConversationStore(dir string) (*ConversationStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	return &ConversationStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *ConversationStore) Dir() string {
	return s.dir
}

// Path resolves name inside the store. Absolute paths and paths with a
// directory component are returned unchanged.
func (s *ConversationStore) Path(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) || strings.Contains(name, "/") {
		return name
	}
	if filepath.Ext(name) == "" {
		name += ".json"
	}
	return filepath.Join(s.dir, name)
}

// Save writes turns under a fresh default name and returns the path.
func (s *ConversationStore) Save(turns []model.Turn) (string, error) {
	return s.SaveAs("", turns)
}

// SaveAs writes turns under name, or under a fresh default name when name
// is empty.
func (s *ConversationStore) SaveAs(name string, turns []model.Turn) (string, error) {
	var path string
	if name == "" {
		path = s.freshPath(time.Now())
	} else {
		path = s.Path(name)
	}
	if err := SaveConversation(path, turns); err != nil {
		return "", err
	}
	return path, nil
}

// freshPath avoids clobbering a file saved earlier in the same second.
func (s *ConversationStore) freshPath(now time.Time) string {
	base := DefaultConversationName(now)
	path := filepath.Join(s.dir, base)
	stem := strings.TrimSuffix(base, ".json")
	for n := 2; fileExists(path); n++ {
		path = filepath.Join(s.dir, stem+"-"+strconv.Itoa(n)+".json")
	}
	return path
}

// Load reads a conversation by name or path.
func (s *ConversationStore) Load(name string) ([]model.Turn, error) {
	return LoadConversation(s.Path(name))
}

// List returns the saved conversations, most recent first. Files that do
// not parse are skipped.
func (s *ConversationStore) List() ([]ConversationInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ConversationInfo{}, nil
		}
		return nil, err
	}

	infos := make([]ConversationInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		turns, err := LoadConversation(path)
		if err != nil {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, ConversationInfo{
			Name:    entry.Name(),
			Path:    path,
			ModTime: fi.ModTime(),
			Turns:   len(turns),
			Preview: preview(turns),
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].ModTime.Equal(infos[j].ModTime) {
			return infos[i].Name > infos[j].Name
		}
		return infos[i].ModTime.After(infos[j].ModTime)
	})
	return infos, nil
}

// Delete removes a saved conversation.
func (s *ConversationStore) Delete(name string) error {
	path := s.Path(name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ConversationError{Name: name, Op: "delete", Err: ErrConversationNotFound}
		}
		return &ConversationError{Name: name, Op: "delete", Err: err}
	}
	return nil
}

func preview(turns []model.Turn) string {
	for _, turn := range turns {
		if turn.Role == model.RoleUser && turn.Content != "" {
			return util.TruncateWidth(util.OneLine(turn.Content), previewWidth)
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation file doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationError reports a failed operation on a named conversation.
type ConversationError struct {
	Name string
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return fmt.Sprintf("%s conversation %s: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConversationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// LISTING
// =============================================================================

// FormatConversationList formats conversations as a table for /history-style
// listings.
func FormatConversationList(infos []ConversationInfo) string {
	if len(infos) == 0 {
		return "No saved conversations."
	}

	var sb strings.Builder
	sb.WriteString(util.PadWidth("Name", 32) + " " + util.PadWidth("Saved", 16) + " " + util.PadWidth("Turns", 5) + " Preview\n")
	for _, info := range infos {
		sb.WriteString(util.PadWidth(util.TruncateWidth(info.Name, 32), 32) + " " +
			util.PadWidth(info.ModTime.Format("2006-01-02 15:04"), 16) + " " +
			util.PadWidth(strconv.Itoa(info.Turns), 5) + " " +
			util.TruncateWidth(info.Preview, 40) + "\n")
	}
	return sb.String()
}
