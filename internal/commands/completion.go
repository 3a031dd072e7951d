// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"

	"github.com/jeranaias/ata/internal/config"
)

// Completion is one candidate for the word being typed.
type Completion struct {
	// Value replaces the partial word.
	Value string

	// Display is shown in completion lists.
	Display string

	Description string
}

// Completer completes command names and their arguments. The Fn hooks
// supply dynamic values; nil hooks complete nothing for their type.
type Completer struct {
	registry *Registry

	ModelsFn   func() []string
	SessionsFn func() []string
	FilesFn    func() []string
}

// NewCompleter creates a completer over registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns candidates for the last word of input. Plain prompts get
// nothing.
func (c *Completer) Complete(input string) []Completion {
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := strings.Fields(input)
	trailingSpace := strings.HasSuffix(input, " ")
	if len(parts) == 1 && !trailingSpace {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}
	argIndex := len(parts) - 2
	partial := parts[len(parts)-1]
	if trailingSpace {
		argIndex++
		partial = ""
	}
	return c.completeArg(cmd, argIndex, partial)
}

// Lines returns whole-line candidates, the form liner's completer wants.
func (c *Completer) Lines(line string) []string {
	completions := c.Complete(line)
	if len(completions) == 0 {
		return nil
	}
	head := line
	if i := strings.LastIndexByte(line, ' '); i >= 0 {
		head = line[:i+1]
	} else {
		head = ""
	}
	out := make([]string, 0, len(completions))
	for _, comp := range completions {
		out = append(out, head+comp.Value)
	}
	return out
}

// CommonPrefix returns the longest prefix shared by every candidate value.
func CommonPrefix(completions []Completion) string {
	if len(completions) == 0 {
		return ""
	}
	prefix := completions[0].Value
	for _, comp := range completions[1:] {
		for !strings.HasPrefix(comp.Value, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

func (c *Completer) completeCommands(partial string) []Completion {
	partial = strings.ToLower(partial)
	var completions []Completion
	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Usage,
				Description: cmd.Description,
			})
		}
	}
	// Aliases only when no primary name matches.
	if len(completions) == 0 {
		for _, cmd := range c.registry.All() {
			for _, alias := range cmd.Aliases {
				if strings.HasPrefix(alias, partial) {
					completions = append(completions, Completion{
						Value:       alias,
						Display:     alias + " -> " + cmd.Name,
						Description: cmd.Description,
					})
				}
			}
		}
	}
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}
	arg := cmd.Args[argIndex]

	switch arg.Type {
	case ArgTypeModel:
		return fromList(call(c.ModelsFn), partial)
	case ArgTypeSession:
		return fromList(call(c.SessionsFn), partial)
	case ArgTypeFile:
		return fromList(call(c.FilesFn), partial)
	case ArgTypeEnum:
		return fromList(arg.Values, partial)
	case ArgTypeConfig:
		return fromList(config.Settings.Keys(), partial)
	default:
		return nil
	}
}

func call(fn func() []string) []string {
	if fn == nil {
		return nil
	}
	return fn()
}

func fromList(values []string, partial string) []Completion {
	lower := strings.ToLower(partial)
	var out []Completion
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lower) {
			out = append(out, Completion{Value: v, Display: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
