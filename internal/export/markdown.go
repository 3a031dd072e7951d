// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MarkdownExporter writes the document as Markdown with YAML front matter.
// Reply content is already Markdown and is copied as is.
type MarkdownExporter struct {
	// NoFrontMatter drops the YAML header.
	NoFrontMatter bool
}

type frontMatter struct {
	Title     string `yaml:"title"`
	Model     string `yaml:"model"`
	Session   string `yaml:"session,omitempty"`
	Date      string `yaml:"date"`
	Turns     int    `yaml:"turns"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	if !e.NoFrontMatter {
		header, err := yaml.Marshal(frontMatter{
			Title:     doc.Title,
			Model:     doc.Model,
			Session:   doc.SessionID,
			Date:      doc.Created.Format(time.RFC3339),
			Turns:     len(doc.Turns),
			Exported:  doc.Exported.Format(time.RFC3339),
			Generator: "ata",
		})
		if err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(doc.Title))

	for i, turn := range doc.Turns {
		fmt.Fprintf(&sb, "### %s\n\n", roleLabel(turn.Role))
		sb.WriteString(strings.TrimSpace(turn.Content))
		sb.WriteString("\n\n")
		if note := statusNote(turn); note != "" {
			fmt.Fprintf(&sb, "*%s*\n\n", note)
		}
		if i < len(doc.Turns)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n*Exported from ata on %s*\n", doc.Exported.Format("January 2, 2006 at 3:04 PM"))
	return []byte(sb.String()), nil
}

func (e *MarkdownExporter) FileExtension() string { return ".md" }

func (e *MarkdownExporter) MimeType() string { return "text/markdown" }

// escapeMarkdown escapes the characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	)
	return r.Replace(s)
}
