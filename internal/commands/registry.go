// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Handler executes a command. Errors are printed by the front end; the
// prompt stays alive unless the error is ErrQuit.
type Handler func(ctx context.Context, env *Env, args []string) error

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/exit", "/q")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/save [file]")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	Handler Handler

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name     string
	Required bool

	// Type determines completion behavior
	Type ArgType

	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeModel                  // Model ID from the completion service
	ArgTypeSession                // Session ID from the session log
	ArgTypeFile                   // Saved conversation
	ArgTypeEnum                   // One of predefined values
	ArgTypeConfig                 // Setting key
)

// Categories, in help order.
const (
	CategoryConversation = "Conversation"
	CategoryStorage      = "Saved conversations"
	CategorySettings     = "Settings"
	CategoryGeneral      = "General"
)

var categoryOrder = []string{CategoryConversation, CategoryStorage, CategorySettings, CategoryGeneral}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]string
}

// NewRegistry creates a registry with the built-in commands.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for _, cmd := range builtins() {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
	return r
}

// NewEmptyRegistry creates a registry with no commands.
func NewEmptyRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a command. Names and aliases must be unique.
func (r *Registry) Register(cmd *Command) error {
	name := normalizeName(cmd.Name)
	if name == "/" {
		return fmt.Errorf("command without a name")
	}
	if r.Get(name) != nil {
		return fmt.Errorf("command %s already registered", name)
	}
	for _, alias := range cmd.Aliases {
		if r.Get(alias) != nil {
			return fmt.Errorf("alias %s of %s already registered", alias, name)
		}
	}

	cmd.Name = name
	r.commands[name] = cmd
	for i, alias := range cmd.Aliases {
		alias = normalizeName(alias)
		cmd.Aliases[i] = alias
		r.aliases[alias] = name
	}
	return nil
}

// Get returns the command for a name or alias, with or without the leading
// slash. It returns nil for unknown names.
func (r *Registry) Get(name string) *Command {
	name = normalizeName(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if target, ok := r.aliases[name]; ok {
		return r.commands[target]
	}
	return nil
}

// All returns every command sorted by name.
func (r *Registry) All() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCategory groups the visible commands by category.
func (r *Registry) ByCategory() map[string][]*Command {
	out := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		out[cmd.Category] = append(out[cmd.Category], cmd)
	}
	return out
}

// Categories returns the categories that have visible commands, in help
// order.
func (r *Registry) Categories() []string {
	groups := r.ByCategory()
	var out []string
	for _, c := range categoryOrder {
		if len(groups[c]) > 0 {
			out = append(out, c)
		}
	}
	var extra []string
	for c := range groups {
		known := false
		for _, k := range categoryOrder {
			known = known || k == c
		}
		if !known {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}
