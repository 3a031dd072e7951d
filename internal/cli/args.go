// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"

	"github.com/jessevdk/go-flags"

	"github.com/jeranaias/ata/internal/config"
)

// Options are the command-line flags.
type Options struct {
	Config         config.Location `short:"c" long:"config" value-name:"LOCATION" description:"Config file path, or a name looked up in the config directory"`
	HideConfig     bool            `long:"hide-config" description:"Do not print the configuration on start"`
	PrintShortcuts bool            `long:"print-shortcuts" description:"Print the keyboard shortcuts and exit"`
	Load           string          `short:"l" long:"load" value-name:"FILE" description:"Conversation file to load"`
	Resume         string          `long:"resume" value-name:"SESSION" description:"Continue a logged session (id or unique prefix)"`
	TUI            bool            `long:"tui" description:"Use the full-screen interface"`
	Model          string          `short:"m" long:"model" description:"Model for this run (overrides the config file)"`
	MetricsAddr    string          `long:"metrics-addr" value-name:"ADDR" description:"Serve Prometheus metrics on ADDR, e.g. 127.0.0.1:9464"`
	Debug          bool            `long:"debug" description:"Log at debug level"`
	Version        bool            `short:"v" long:"version" description:"Print the version and exit"`
}

// ParseArgs parses args (without the program name). Help is returned as a
// *flags.Error of type flags.ErrHelp.
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "ata"
	parser.ShortDescription = "Ask the Terminal Anything"
	parser.LongDescription = "An interactive chat client for OpenAI-compatible completion services."

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, &flags.Error{
			Type:    flags.ErrUnknownFlag,
			Message: "unexpected argument " + rest[0],
		}
	}
	return opts, nil
}

// IsHelp reports whether err is a request for --help.
func IsHelp(err error) bool {
	var flagErr *flags.Error
	return errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp
}
