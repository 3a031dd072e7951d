// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/util"
)

// =============================================================================
// DOCUMENT
// =============================================================================

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation is empty")

// ErrUnsupportedFormat is returned by ForFormat.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Document is a conversation prepared for export.
type Document struct {
	Title     string
	Model     string
	SessionID string
	Created   time.Time
	Exported  time.Time
	Turns     []model.Turn
}

// NewDocument builds a document from finished turns. The title is the
// first user prompt on one line.
func NewDocument(turns []model.Turn, modelName, sessionID string) *Document {
	doc := &Document{
		Title:     "Conversation",
		Model:     modelName,
		SessionID: sessionID,
		Exported:  time.Now(),
		Turns:     turns,
	}
	for _, t := range turns {
		if doc.Created.IsZero() || (!t.CreatedAt.IsZero() && t.CreatedAt.Before(doc.Created)) {
			doc.Created = t.CreatedAt
		}
		if t.Role == model.RoleUser && doc.Title == "Conversation" {
			if title := util.TruncateWidth(util.OneLine(t.Content), 60); title != "" {
				doc.Title = title
			}
		}
	}
	if doc.Created.IsZero() {
		doc.Created = doc.Exported
	}
	return doc
}

func (d *Document) validate() error {
	if d == nil || len(d.Turns) == 0 {
		return ErrEmpty
	}
	return nil
}

// =============================================================================
// EXPORTERS
// =============================================================================

// Exporter renders a document in one format.
type Exporter interface {
	Export(doc *Document) ([]byte, error)

	// FileExtension includes the dot, e.g. ".md".
	FileExtension() string

	MimeType() string
}

// Formats lists the names accepted by ForFormat, primary names first.
var Formats = []string{"md", "html", "json"}

// ForFormat returns the exporter for a format name.
func ForFormat(name string) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "md", "markdown":
		return &MarkdownExporter{}, nil
	case "html", "htm":
		return &HTMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s (use %s)", ErrUnsupportedFormat, name, strings.Join(Formats, ", "))
	}
}

// WriteFile exports doc into dir. An empty name is derived from the title
// and the time; a name without extension gets the exporter's. The file is
// written atomically with mode 0600 and its path returned.
func WriteFile(dir, name string, doc *Document, exporter Exporter) (string, error) {
	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if name == "" {
		name = fmt.Sprintf("conversation_%s_%s", sanitizeFilename(doc.Title), doc.Exported.Format("20060102_150405"))
	}
	if filepath.Ext(name) == "" {
		name += exporter.FileExtension()
	}
	path := name
	if !filepath.IsAbs(path) && !strings.ContainsRune(name, filepath.Separator) {
		path = filepath.Join(dir, name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// sanitizeFilename makes s safe as part of a file name on every platform.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			out = append(out, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = append(out, '_')
		case r < 32 || r == 127:
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "conversation"
	}
	return string(out)
}

// roleLabel is the heading used for a turn.
func roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "You"
	case model.RoleAssistant:
		return "Assistant"
	case model.RoleSystem:
		return "System"
	default:
		return r.DisplayName()
	}
}

// statusNote marks partial replies.
func statusNote(t model.Turn) string {
	switch t.Status {
	case model.StatusCancelled:
		return "[cancelled]"
	case model.StatusFailed:
		return "[incomplete]"
	default:
		return ""
	}
}
