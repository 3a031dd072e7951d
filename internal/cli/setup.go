// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/util"
)

// missingConfigHelp is printed when no config file exists. %[1]s is the
// path, %[2]s the example.
const missingConfigHelp = `
Could not find %[1]s.

Create it with content like this (between the lines):

----
%[2]s----

Replace <YOUR SECRET API KEY> with your API key, or leave api_key out and
set OPENAI_API_KEY instead.

max_tokens caps the length of a reply; longer replies are cut off.
temperature is the sampling temperature: higher values give more varied
replies, 0 gives the most likely one.

`

// missingConfig explains how to create the config file at path and offers
// to write the example there. It reports whether the file was written.
func missingConfig(in io.Reader, out io.Writer, path string) (bool, error) {
	fmt.Fprintf(out, missingConfigHelp, path, config.ExampleTOML)
	fmt.Fprintf(out, "Do you want me to write this example file to %s for you to edit?\n", path)
	if !promptYesNo(bufio.NewReader(in), out, "", false) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	// SECURITY: the file will hold an API key.
	if err := util.AtomicWriteFile(path, []byte(config.ExampleTOML), 0o600); err != nil {
		return false, fmt.Errorf("write example config: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s. Add your API key and start ata again.\n", path)
	return true, nil
}

// promptYesNo asks a yes/no question. Anything other than an answer
// starting with y or n takes the default.
func promptYesNo(in *bufio.Reader, out io.Writer, prompt string, defaultYes bool) bool {
	suffix := "[Y/n]"
	if !defaultYes {
		suffix = "[y/N]"
	}
	if prompt != "" {
		fmt.Fprintf(out, "%s %s ", prompt, suffix)
	} else {
		fmt.Fprintf(out, "%s ", suffix)
	}

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return defaultYes
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(answer, "y"):
		return true
	case strings.HasPrefix(answer, "n"):
		return false
	default:
		return defaultYes
	}
}
