// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/ata/internal/model"
)

// JSONExporter writes the whole document, turns included, as indented JSON.
type JSONExporter struct{}

type jsonDocument struct {
	Title     string       `json:"title"`
	Model     string       `json:"model"`
	SessionID string       `json:"session_id,omitempty"`
	Created   time.Time    `json:"created"`
	Exported  time.Time    `json:"exported"`
	Turns     []model.Turn `json:"turns"`
}

// Export implements Exporter.
func (e *JSONExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(jsonDocument{
		Title:     doc.Title,
		Model:     doc.Model,
		SessionID: doc.SessionID,
		Created:   doc.Created,
		Exported:  doc.Exported,
		Turns:     doc.Turns,
	}, "", "  ")
}

func (e *JSONExporter) FileExtension() string { return ".json" }

func (e *JSONExporter) MimeType() string { return "application/json" }
