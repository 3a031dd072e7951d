// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/ata/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone HTML page. Turn content is converted
// from Markdown and sanitized, so a reply cannot inject markup.
type HTMLExporter struct {
	// Theme is "dark" (default) or "light".
	Theme string
}

type htmlTurn struct {
	Class string
	Label string
	Body  template.HTML
	Note  string
}

type htmlPage struct {
	Title    string
	Model    string
	Created  string
	Exported string
	Count    int
	Theme    string
	Turns    []htmlTurn
	CSS      template.CSS
}

var (
	markdownToHTML = goldmark.New(goldmark.WithExtensions(extension.GFM))
	sanitizer      = bluemonday.UGCPolicy()
	pageTemplate   = template.Must(template.New("page").Parse(pageHTML))
)

// Export implements Exporter.
func (e *HTMLExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	theme := e.Theme
	if theme != "light" {
		theme = "dark"
	}
	page := htmlPage{
		Title:    doc.Title,
		Model:    doc.Model,
		Created:  doc.Created.Format("Jan 2, 2006 3:04 PM"),
		Exported: doc.Exported.Format("January 2, 2006 at 3:04 PM"),
		Count:    len(doc.Turns),
		Theme:    theme,
		CSS:      template.CSS(pageCSS),
	}
	for _, turn := range doc.Turns {
		body, err := renderContent(turn.Content)
		if err != nil {
			return nil, fmt.Errorf("turn %s: %w", turn.ID, err)
		}
		page.Turns = append(page.Turns, htmlTurn{
			Class: roleClass(turn.Role),
			Label: roleLabel(turn.Role),
			Body:  body,
			Note:  statusNote(turn),
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *HTMLExporter) FileExtension() string { return ".html" }

func (e *HTMLExporter) MimeType() string { return "text/html" }

// renderContent converts Markdown to sanitized HTML.
func renderContent(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdownToHTML.Convert([]byte(strings.TrimSpace(content)), &buf); err != nil {
		return "", err
	}
	return template.HTML(sanitizer.SanitizeBytes(buf.Bytes())), nil
}

func roleClass(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "user-message"
	case model.RoleAssistant:
		return "assistant-message"
	default:
		return "system-message"
	}
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="generator" content="ata">
    <title>{{.Title}}</title>
    <style>{{.CSS}}</style>
</head>
<body class="{{.Theme}}-theme">
    <div class="container">
        <header class="header">
            <h1>{{.Title}}</h1>
            <div class="metadata">
                <span><strong>Model:</strong> {{.Model}}</span>
                <span><strong>Created:</strong> {{.Created}}</span>
                <span><strong>Turns:</strong> {{.Count}}</span>
            </div>
        </header>
        <main class="conversation">
{{- range .Turns}}
            <div class="message {{.Class}}">
                <div class="role">{{.Label}}</div>
                <div class="content">{{.Body}}</div>
{{- if .Note}}
                <div class="note">{{.Note}}</div>
{{- end}}
            </div>
{{- end}}
        </main>
        <footer class="footer">Exported from <strong>ata</strong> on {{.Exported}}</footer>
    </div>
</body>
</html>
`

const pageCSS = `
* { margin: 0; padding: 0; box-sizing: border-box; }
.dark-theme {
    --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
    --text-primary: #c0caf5; --text-muted: #565f89;
    --user-bg: #1f2335; --code-bg: #1a1b26;
    --accent-blue: #7aa2f7; --accent-purple: #bb9af7; --accent-red: #f7768e;
}
.light-theme {
    --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
    --text-primary: #24292e; --text-muted: #6a737d;
    --user-bg: #f6f8fa; --code-bg: #f6f8fa;
    --accent-blue: #0366d6; --accent-purple: #6f42c1; --accent-red: #d73a49;
}
body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px;
}
.container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
.header { padding: 32px; background: var(--bg-tertiary); }
.header h1 { font-size: 28px; margin-bottom: 12px; }
.metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }
.conversation { padding: 24px 32px; }
.message { margin-bottom: 24px; padding: 16px; border-radius: 8px; border-left: 4px solid var(--accent-purple); }
.user-message { background: var(--user-bg); border-left-color: var(--accent-blue); }
.system-message { font-style: italic; border-left-color: var(--text-muted); }
.role { font-weight: 600; margin-bottom: 8px; }
.content pre { background: var(--code-bg); padding: 12px; border-radius: 6px; overflow-x: auto; }
.content code { font-family: "SF Mono", Monaco, "Fira Code", monospace; }
.content p + p { margin-top: 8px; }
.note { margin-top: 8px; color: var(--accent-red); font-style: italic; }
.footer { padding: 16px 32px; font-size: 13px; color: var(--text-muted); }
`
