// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// USABILITY: Syntax highlighting for config dumps and saved conversations

// Highlight writes source to w with terminal syntax highlighting. language
// is a chroma lexer name ("toml", "json", "yaml"); an unknown name is
// guessed from the source. With colors false the source is copied as is.
func Highlight(w io.Writer, source, language string, colors bool) error {
	if !colors {
		_, err := io.WriteString(w, source)
		return err
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		_, werr := io.WriteString(w, source)
		return werr
	}
	return formatter.Format(w, style, iterator)
}
