// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/export"
	"github.com/jeranaias/ata/internal/model"
	"github.com/jeranaias/ata/internal/render"
	"github.com/jeranaias/ata/internal/storage"
	"github.com/jeranaias/ata/internal/util"
)

// defaultSessionLimit bounds /sessions without an argument.
const defaultSessionLimit = 20

// builtins returns the built-in command set.
func builtins() []*Command {
	return []*Command{
		// Conversation
		{
			Name:        "/clear",
			Aliases:     []string{"/new", "/reset"},
			Description: "Start a new conversation",
			Usage:       "/clear",
			Handler:     HandleClear,
			Category:    CategoryConversation,
		},
		{
			Name:        "/retry",
			Aliases:     []string{"/r"},
			Description: "Replace the last reply with a fresh one",
			Usage:       "/retry",
			Handler:     HandleRetry,
			Category:    CategoryConversation,
		},
		{
			Name:        "/show",
			Description: "Show the last reply, or the whole conversation",
			Usage:       "/show [all]",
			Args: []ArgDef{
				{Name: "what", Type: ArgTypeEnum, Values: []string{"last", "all"}, Description: "last or all"},
			},
			Handler:  HandleShow,
			Category: CategoryConversation,
		},
		{
			Name:        "/sessions",
			Description: "List logged sessions",
			Usage:       "/sessions [limit]",
			Args:        []ArgDef{{Name: "limit", Description: "how many to list"}},
			Handler:     HandleSessions,
			Category:    CategoryConversation,
		},
		{
			Name:        "/resume",
			Description: "Continue a logged session",
			Usage:       "/resume <id>",
			Args: []ArgDef{
				{Name: "id", Required: true, Type: ArgTypeSession, Description: "session id or unique prefix"},
			},
			Handler:  HandleResume,
			Category: CategoryConversation,
		},

		// Saved conversations
		{
			Name:        "/save",
			Description: "Save the conversation as JSON",
			Usage:       "/save [file]",
			Args:        []ArgDef{{Name: "file", Type: ArgTypeFile, Description: "file name or path"}},
			Handler:     HandleSave,
			Category:    CategoryStorage,
		},
		{
			Name:        "/load",
			Description: "Replace the conversation with a saved one",
			Usage:       "/load <file>",
			Args: []ArgDef{
				{Name: "file", Required: true, Type: ArgTypeFile, Description: "file name or path"},
			},
			Handler:  HandleLoad,
			Category: CategoryStorage,
		},
		{
			Name:        "/history",
			Aliases:     []string{"/ls"},
			Description: "List saved conversations",
			Usage:       "/history",
			Handler:     HandleHistory,
			Category:    CategoryStorage,
		},
		{
			Name:        "/export",
			Description: "Write the conversation as Markdown, HTML or JSON",
			Usage:       "/export [md|html|json] [file]",
			Args: []ArgDef{
				{Name: "format", Type: ArgTypeEnum, Values: export.Formats, Description: "md, html or json"},
				{Name: "file", Type: ArgTypeString, Description: "output file (default: derived from the first prompt)"},
			},
			Handler:  HandleExport,
			Category: CategoryStorage,
		},

		// Settings
		{
			Name:        "/config",
			Description: "Show, save or reload the configuration",
			Usage:       "/config [save|reload|path]",
			Args: []ArgDef{
				{Name: "action", Type: ArgTypeEnum, Values: []string{"save", "reload", "path"}, Description: "save, reload or path"},
			},
			Handler:  HandleConfig,
			Category: CategorySettings,
		},
		{
			Name:        "/get",
			Description: "Show one setting",
			Usage:       "/get <key>",
			Args: []ArgDef{
				{Name: "key", Required: true, Type: ArgTypeConfig, Description: "setting key"},
			},
			Handler:  HandleGet,
			Category: CategorySettings,
		},
		{
			Name:        "/set",
			Description: "Change one setting for this session",
			Usage:       "/set <key> <value>",
			Args: []ArgDef{
				{Name: "key", Required: true, Type: ArgTypeConfig, Description: "setting key"},
				{Name: "value", Required: true, Description: "new value"},
			},
			Handler:  HandleSet,
			Category: CategorySettings,
		},
		{
			Name:        "/models",
			Description: "List models offered by the service",
			Usage:       "/models",
			Handler:     HandleModels,
			Category:    CategorySettings,
		},

		// General
		{
			Name:        "/help",
			Aliases:     []string{"/h", "/?"},
			Description: "Show commands",
			Usage:       "/help [command]",
			Args:        []ArgDef{{Name: "command", Description: "command to describe"}},
			Handler:     HandleHelp,
			Category:    CategoryGeneral,
		},
		{
			Name:        "/status",
			Description: "Show model, session and context usage",
			Usage:       "/status",
			Handler:     HandleStatus,
			Category:    CategoryGeneral,
		},
		{
			Name:        "/quit",
			Aliases:     []string{"/exit", "/q"},
			Description: "Exit ata",
			Usage:       "/quit",
			Handler:     HandleQuit,
			Category:    CategoryGeneral,
		},
	}
}

// =============================================================================
// CONVERSATION
// =============================================================================

// HandleClear starts a new conversation.
func HandleClear(_ context.Context, env *Env, _ []string) error {
	if err := env.Session.Reset(); err != nil {
		return err
	}
	env.success("Started a new conversation.")
	return nil
}

// HandleRetry replaces the last reply.
func HandleRetry(ctx context.Context, env *Env, _ []string) error {
	if env.Retry == nil {
		return errors.New("retry is not available here")
	}
	return env.Retry(ctx)
}

// HandleShow prints the last reply, rendered as markdown when enabled, or
// the whole conversation with "all".
func HandleShow(_ context.Context, env *Env, args []string) error {
	if len(args) > 0 && strings.EqualFold(args[0], "all") {
		turns := env.Session.Transcript.Finished()
		if len(turns) == 0 {
			env.info("The conversation is empty.")
			return nil
		}
		writeTranscript(env, turns)
		return nil
	}

	last, ok := env.Session.Transcript.LastAssistant()
	if !ok || last.Content == "" {
		env.info("No reply yet.")
		return nil
	}
	if env.Markdown != nil {
		env.printf("%s", env.Markdown.Render(last.Content))
	} else {
		env.println(last.Content)
	}
	writeMarker(env, last.Status)
	return nil
}

// HandleSessions lists logged sessions.
func HandleSessions(ctx context.Context, env *Env, args []string) error {
	limit := defaultSessionLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return &ValidationError{Command: "/sessions", Arg: "limit", Message: "invalid value", Got: args[0], Expected: "a number"}
		}
		limit = n
	}
	infos, err := env.Session.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	env.printf("%s", FormatSessionList(infos, env.Session.ID))
	return nil
}

// HandleResume continues a logged session. The id may be a unique prefix.
func HandleResume(ctx context.Context, env *Env, args []string) error {
	all, err := env.Session.Sessions(ctx, 0)
	if err != nil {
		return err
	}
	id, err := matchSession(all, args[0])
	if err != nil {
		return err
	}
	if err := env.Session.Resume(ctx, id); err != nil {
		return err
	}
	writeTranscript(env, env.Session.Transcript.Finished())
	env.success("Resumed session " + shortID(id) + ".")
	return nil
}

func matchSession(infos []storage.SessionInfo, prefix string) (string, error) {
	var matches []string
	for _, info := range infos {
		if info.ID == prefix {
			return info.ID, nil
		}
		if strings.HasPrefix(info.ID, prefix) {
			matches = append(matches, info.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", storage.ErrSessionNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("session prefix %s is ambiguous (%d matches)", prefix, len(matches))
	}
}

// =============================================================================
// SAVED CONVERSATIONS
// =============================================================================

// HandleSave writes the finished turns as JSON.
func HandleSave(_ context.Context, env *Env, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	path, err := env.Session.Save(name)
	if err != nil {
		return err
	}
	env.success("Saved conversation to " + path)
	return nil
}

// HandleLoad replaces the transcript with a saved conversation.
func HandleLoad(_ context.Context, env *Env, args []string) error {
	n, err := env.Session.LoadFile(args[0])
	if err != nil {
		return err
	}
	writeTranscript(env, env.Session.Transcript.Finished())
	env.success(fmt.Sprintf("Loaded %d turns from %s.", n, args[0]))
	return nil
}

// HandleHistory lists saved conversations.
func HandleHistory(_ context.Context, env *Env, _ []string) error {
	infos, err := env.Session.Conversations.List()
	if err != nil {
		return err
	}
	env.printf("%s", storage.FormatConversationList(infos))
	if len(infos) == 0 {
		env.println("")
	}
	return nil
}

// HandleExport writes the finished turns to the working directory in a
// readable format.
func HandleExport(_ context.Context, env *Env, args []string) error {
	format, name := "", ""
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		name = args[1]
	}
	exporter, err := export.ForFormat(format)
	if err != nil {
		return err
	}

	s := env.Session
	doc := export.NewDocument(s.Transcript.Finished(), s.Config.Get().Model, s.ID)
	path, err := export.WriteFile(".", name, doc, exporter)
	if err != nil {
		return err
	}
	env.success(fmt.Sprintf("Exported %d turns to %s", len(doc.Turns), path))
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// HandleConfig prints the configuration, or saves or reloads it.
func HandleConfig(_ context.Context, env *Env, args []string) error {
	live := env.Session.Config
	action := ""
	if len(args) > 0 {
		action = strings.ToLower(args[0])
	}

	switch action {
	case "save":
		if err := live.Save(); err != nil {
			return err
		}
		env.success("Saved configuration to " + live.Path())
	case "reload":
		if err := live.Reload(); err != nil {
			return err
		}
		env.success("Reloaded configuration from " + live.Path())
	case "path":
		if live.Path() == "" {
			env.info("No configuration file.")
		} else {
			env.println(live.Path())
		}
	default:
		cfg := live.Get()
		return render.Highlight(env.Out, cfg.String(cfg.UI.RedactAPIKey), "toml", env.theme().Colors)
	}
	return nil
}

// HandleGet prints one setting.
func HandleGet(_ context.Context, env *Env, args []string) error {
	value, err := config.Settings.Get(env.Session.Config.Get(), args[0])
	if err != nil {
		return err
	}
	env.println(args[0] + " = " + value)
	return nil
}

// HandleSet changes one setting. The rest of the line is the value, so
// system prompts need no quoting.
func HandleSet(_ context.Context, env *Env, args []string) error {
	key := args[0]
	value := strings.Join(args[1:], " ")
	if err := env.Session.Config.Set(key, value); err != nil {
		return err
	}
	shown, err := config.Settings.Get(env.Session.Config.Get(), key)
	if err != nil {
		return err
	}
	env.success(key + " = " + shown)
	return nil
}

// HandleModels lists the models the service offers, marking the current one.
func HandleModels(ctx context.Context, env *Env, _ []string) error {
	models, err := env.Session.Client.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		env.info("The service returned no models.")
		return nil
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)

	current := env.Session.Config.Get().Model
	for _, id := range ids {
		mark := "  "
		if id == current {
			mark = "* "
		}
		env.println(mark + id)
	}
	return nil
}

// =============================================================================
// GENERAL
// =============================================================================

// HandleHelp lists commands, or describes one.
func HandleHelp(_ context.Context, env *Env, args []string) error {
	r := env.Registry
	if r == nil {
		r = NewRegistry()
	}
	if len(args) > 0 {
		cmd := r.Get(args[0])
		if cmd == nil {
			return &UnknownCommandError{Name: normalizeName(args[0])}
		}
		env.printf("%s", commandHelp(cmd))
		return nil
	}
	env.printf("%s", GenerateHelpText(r))
	return nil
}

// GenerateHelpText lists the visible commands grouped by category.
func GenerateHelpText(r *Registry) string {
	var sb strings.Builder
	groups := r.ByCategory()
	for i, category := range r.Categories() {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(category + ":\n")
		for _, cmd := range groups[category] {
			sb.WriteString("  " + util.PadWidth(cmd.Usage, 28) + cmd.Description + "\n")
		}
	}
	sb.WriteString("\nAnything else is sent to the model. Type /help <command> for details.\n")
	return sb.String()
}

func commandHelp(cmd *Command) string {
	var sb strings.Builder
	sb.WriteString(cmd.Usage + "\n  " + cmd.Description + "\n")
	if len(cmd.Aliases) > 0 {
		sb.WriteString("  Aliases: " + strings.Join(cmd.Aliases, ", ") + "\n")
	}
	for _, arg := range cmd.Args {
		req := "optional"
		if arg.Required {
			req = "required"
		}
		sb.WriteString("  " + util.PadWidth(arg.Name, 10) + arg.Description + " (" + req + ")\n")
	}
	return sb.String()
}

// HandleStatus prints what the next request would use.
func HandleStatus(_ context.Context, env *Env, _ []string) error {
	s := env.Session
	cfg := s.Config.Get()
	th := env.theme()

	row := func(label, value string) {
		env.println(th.Label.Render(label) + th.Value.Render(value))
	}
	row("Model", cfg.Model)
	row("Endpoint", s.Client.BaseURL())
	row("API key", s.Client.KeyFingerprint())
	row("Session", s.ID)
	row("Started", s.Started.Format("2006-01-02 15:04:05"))
	row("Turns", strconv.Itoa(s.Transcript.Len()))
	row("Estimated tokens", strconv.Itoa(s.Transcript.EstimateTokens()))
	row("Context budget", contextBudget(cfg))
	row("Engine", s.Engine.State().String())
	if path := s.Config.Path(); path != "" {
		row("Config", path)
	}
	if s.Log != nil {
		row("Session log", "on")
	} else {
		row("Session log", "off")
	}
	return nil
}

func contextBudget(cfg *config.Config) string {
	turns, tokens := "unlimited", "unlimited"
	if cfg.ContextMaxTurns > 0 {
		turns = strconv.Itoa(cfg.ContextMaxTurns)
	}
	if cfg.ContextMaxTokens > 0 {
		tokens = strconv.Itoa(cfg.ContextMaxTokens)
	}
	return turns + " turns, " + tokens + " tokens"
}

// HandleQuit exits.
func HandleQuit(context.Context, *Env, []string) error {
	return ErrQuit
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// FormatSessionList formats logged sessions as a table. current is marked.
func FormatSessionList(infos []storage.SessionInfo, current string) string {
	if len(infos) == 0 {
		return "No logged sessions.\n"
	}
	var sb strings.Builder
	sb.WriteString("  " + util.PadWidth("ID", 10) + util.PadWidth("Started", 18) +
		util.PadWidth("Turns", 7) + util.PadWidth("Model", 18) + "Title\n")
	for _, info := range infos {
		mark := "  "
		if info.ID == current {
			mark = "* "
		}
		sb.WriteString(mark +
			util.PadWidth(shortID(info.ID), 10) +
			util.PadWidth(info.StartedAt.Format("2006-01-02 15:04"), 18) +
			util.PadWidth(strconv.Itoa(info.Turns), 7) +
			util.PadWidth(util.TruncateWidth(info.Model, 16), 18) +
			util.TruncateWidth(info.Title, 40) + "\n")
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeTranscript prints turns the way they were shown when streamed.
func writeTranscript(env *Env, turns []model.Turn) {
	th := env.theme()
	var buf bytes.Buffer
	for _, turn := range turns {
		switch turn.Role {
		case model.RoleUser:
			buf.WriteString(th.PromptHeader.Render("Prompt:") + "\n")
		case model.RoleAssistant:
			buf.WriteString(th.ResponseHeader.Render("Response:") + "\n")
		default:
			buf.WriteString(th.Dim.Render("System:") + "\n")
		}
		buf.WriteString(strings.TrimRight(turn.Content, "\n") + "\n")
		switch turn.Status {
		case model.StatusCancelled:
			buf.WriteString(th.Cancelled.Render(render.CancelledMarker) + "\n")
		case model.StatusFailed:
			buf.WriteString(th.Incomplete.Render(render.IncompleteMarker) + "\n")
		}
		buf.WriteString("\n")
	}
	env.Out.Write(buf.Bytes())
}

func writeMarker(env *Env, status model.Status) {
	th := env.theme()
	switch status {
	case model.StatusCancelled:
		env.println(th.Cancelled.Render(render.CancelledMarker))
	case model.StatusFailed:
		env.println(th.Incomplete.Render(render.IncompleteMarker))
	}
}
