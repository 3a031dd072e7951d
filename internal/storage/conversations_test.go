// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/ata/internal/model"
)

func finished(role model.Role, content string, status model.Status) model.Turn {
	t := model.NewTurn(role, content)
	t.Status = status
	return t
}

func sampleTurns() []model.Turn {
	return []model.Turn{
		finished(model.RoleSystem, "be brief", model.StatusComplete),
		finished(model.RoleUser, "Hi", model.StatusComplete),
		finished(model.RoleAssistant, "Hello!", model.StatusComplete),
	}
}

// =============================================================================
// CONVERSATION FILE TESTS
// =============================================================================

func TestDefaultConversationName(t *testing.T) {
	got := DefaultConversationName(time.Unix(1700000000, 0))
	if got != "conversation-1700000000.json" {
		t.Errorf("DefaultConversationName() = %q", got)
	}
}

func TestSaveConversation_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	if err := SaveConversation(path, sampleTurns()); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"role": "user"`, `"content": "Hi"`, `"role": "assistant"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("saved file missing %s:\n%s", want, data)
		}
	}
	if strings.Contains(string(data), `"status"`) {
		t.Errorf("complete turns should not carry a status:\n%s", data)
	}
}

func TestSaveConversation_SkipsStreamingTurns(t *testing.T) {
	turns := append(sampleTurns(),
		finished(model.RoleUser, "more", model.StatusComplete),
		finished(model.RoleAssistant, "part", model.StatusStreaming))
	path := filepath.Join(t.TempDir(), "c.json")
	if err := SaveConversation(path, turns); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadConversation(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 4 {
		t.Fatalf("loaded %d turns, want 4", len(loaded))
	}
}

func TestSaveLoad_RoundTripKeepsCancelledStatus(t *testing.T) {
	turns := []model.Turn{
		finished(model.RoleUser, "Tell me a story", model.StatusComplete),
		finished(model.RoleAssistant, "Once upon", model.StatusCancelled),
	}
	path := filepath.Join(t.TempDir(), "c.json")
	if err := SaveConversation(path, turns); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadConversation(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded[0].Status != model.StatusComplete {
		t.Errorf("user turn status = %v", loaded[0].Status)
	}
	if loaded[1].Status != model.StatusCancelled || loaded[1].Authoritative() {
		t.Errorf("cancelled reply loaded as %v", loaded[1].Status)
	}
	if loaded[1].Content != "Once upon" {
		t.Errorf("content = %q", loaded[1].Content)
	}
}

func TestLoadConversation_PlainFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.json")
	body := `[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	turns, err := LoadConversation(path)
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns", len(turns))
	}
	for _, turn := range turns {
		if turn.Status != model.StatusComplete {
			t.Errorf("turn %q status = %v, want complete", turn.Content, turn.Status)
		}
		if turn.ID == "" {
			t.Error("loaded turn has no ID")
		}
	}
}

func TestLoadConversation_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConversation(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("missing file: error = %v, want ErrConversationNotFound", err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`[{"role":"tool","content":"x"}]`), 0o600)
	_, err = LoadConversation(bad)
	if !errors.Is(err, model.ErrInvalidRole) {
		t.Errorf("unknown role: error = %v, want ErrInvalidRole", err)
	}

	garbage := filepath.Join(dir, "garbage.json")
	os.WriteFile(garbage, []byte(`{"not":"a list"}`), 0o600)
	_, err = LoadConversation(garbage)
	var convErr *ConversationError
	if !errors.As(err, &convErr) || convErr.Op != "load" {
		t.Errorf("garbage: error = %v, want *ConversationError", err)
	}
}

// =============================================================================
// CONVERSATION STORE TESTS
// =============================================================================

func TestConversationStore_SaveListDelete(t *testing.T) {
	store, err := NewConversationStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewConversationStore() error = %v", err)
	}

	first, err := store.Save(sampleTurns())
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Save(sampleTurns())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("two saves in the same second share a path: %s", first)
	}
	if !strings.HasPrefix(filepath.Base(first), "conversation-") {
		t.Errorf("default name = %s", filepath.Base(first))
	}

	older := time.Now().Add(-time.Hour)
	os.Chtimes(first, older, older)

	infos, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("List() returned %d entries", len(infos))
	}
	if infos[0].Path != second {
		t.Errorf("List() not newest first: %+v", infos)
	}
	if infos[0].Turns != 3 || infos[0].Preview != "Hi" {
		t.Errorf("info = %+v", infos[0])
	}

	if err := store.Delete(filepath.Base(first)); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(filepath.Base(first)); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestConversationStore_SaveAsAndLoadByName(t *testing.T) {
	store, err := NewConversationStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := store.SaveAs("notes", sampleTurns())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "notes.json" {
		t.Errorf("SaveAs path = %s", path)
	}
	turns, err := store.Load("notes")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(turns) != 3 {
		t.Errorf("Load() = %d turns", len(turns))
	}
}

func TestConversationStore_ListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewConversationStore(dir)
	store.Save(sampleTurns())
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600)
	os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o600)

	infos, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Errorf("List() = %d entries, want 1", len(infos))
	}
}

func TestFormatConversationList(t *testing.T) {
	if got := FormatConversationList(nil); got != "No saved conversations." {
		t.Errorf("empty list = %q", got)
	}
	out := FormatConversationList([]ConversationInfo{{Name: "a.json", Turns: 2, Preview: "hello"}})
	if !strings.Contains(out, "a.json") || !strings.Contains(out, "hello") {
		t.Errorf("listing = %q", out)
	}
}
