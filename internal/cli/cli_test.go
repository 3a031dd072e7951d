// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ata/internal/cloud"
	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/engine"
	"github.com/jeranaias/ata/internal/storage"
)

// =============================================================================
// ARGS
// =============================================================================

func TestParseArgs(t *testing.T) {
	opts, err := ParseArgs([]string{"-c", "work", "--hide-config", "-m", "gpt-4o", "--load", "notes", "--debug"})
	require.NoError(t, err)

	assert.Equal(t, config.LocationNamed, opts.Config.Kind)
	assert.Equal(t, "work", opts.Config.Value)
	assert.True(t, opts.HideConfig)
	assert.Equal(t, "gpt-4o", opts.Model)
	assert.Equal(t, "notes", opts.Load)
	assert.True(t, opts.Debug)
	assert.False(t, opts.TUI)
}

func TestParseArgs_ConfigPath(t *testing.T) {
	opts, err := ParseArgs([]string{"--config", "./custom.toml"})
	require.NoError(t, err)
	assert.Equal(t, config.LocationPath, opts.Config.Kind)
}

func TestParseArgs_Defaults(t *testing.T) {
	opts, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, config.LocationAuto, opts.Config.Kind)
	assert.Empty(t, opts.Model)
}

func TestParseArgs_Errors(t *testing.T) {
	t.Run("unknown flag", func(t *testing.T) {
		_, err := ParseArgs([]string{"--bogus"})
		require.Error(t, err)
		assert.False(t, IsHelp(err))
		assert.Equal(t, ExitUsageError, ExitCode(err))
	})

	t.Run("positional argument", func(t *testing.T) {
		_, err := ParseArgs([]string{"hello"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected argument hello")
		assert.Equal(t, ExitUsageError, ExitCode(err))
	})

	t.Run("help", func(t *testing.T) {
		_, err := ParseArgs([]string{"--help"})
		require.Error(t, err)
		assert.True(t, IsHelp(err))
		assert.Contains(t, err.Error(), "--config")
	})
}

// =============================================================================
// ERRORS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitGeneralError},
		{"flags", &flags.Error{Type: flags.ErrUnknownFlag}, ExitUsageError},
		{"validation", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "n", Message: "bad"}}), ExitConfigError},
		{"auth", fmt.Errorf("%w: nope", cloud.ErrAuthFailed), ExitAuthError},
		{"no key", cloud.ErrNotConfigured, ExitAuthError},
		{"timeout", &cloud.TimeoutError{}, ExitTimeoutError},
		{"network", &cloud.NetworkError{Op: "dial", Err: io.ErrUnexpectedEOF}, ExitNetworkError},
		{"conversation missing", storage.ErrConversationNotFound, ExitNotFoundError},
		{"session missing", fmt.Errorf("resume: %w", storage.ErrSessionNotFound), ExitNotFoundError},
		{"startup code", &StartupError{Stage: "metrics", Code: ExitConfigError, Err: errors.New("x")}, ExitConfigError},
		{"startup unwraps", &StartupError{Stage: "load", Err: storage.ErrConversationNotFound}, ExitNotFoundError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, describe(cloud.ErrNotConfigured), "OPENAI_API_KEY")
	assert.Contains(t, describe(cloud.ErrEmptyResponse), "Empty response")
	assert.Contains(t, describe(&engine.BusyError{State: engine.StateStreaming}), "still streaming")
	assert.Contains(t, describe(engine.ErrNothingToRetry), "no reply to retry")
	assert.Contains(t, describe(fmt.Errorf("%w: x", config.ErrUnknownSetting)), "/config")
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestStartupError(t *testing.T) {
	err := &StartupError{Stage: "config", Err: errors.New("missing")}
	assert.Equal(t, "config: missing", err.Error())
	assert.ErrorIs(t, fmt.Errorf("wrap: %w", err), err.Err)
}

// =============================================================================
// TERMINAL
// =============================================================================

func TestDecideColors(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}
	tests := []struct {
		name string
		vars map[string]string
		tty  bool
		want bool
	}{
		{"tty", nil, true, true},
		{"pipe", nil, false, false},
		{"no color wins", map[string]string{"NO_COLOR": "1", "FORCE_COLOR": "1"}, true, false},
		{"force color", map[string]string{"FORCE_COLOR": "1"}, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, decideColors(env(tc.vars), tc.tty))
		})
	}
}

func TestTTYRequiredError(t *testing.T) {
	err := &TTYRequiredError{Operation: "run the full-screen interface"}
	assert.Contains(t, err.Error(), "cannot run the full-screen interface")
	assert.Contains(t, (&TTYRequiredError{}).Error(), "not a terminal")
}

// =============================================================================
// SETUP
// =============================================================================

func TestPromptYesNo(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"Yes\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\n", false, false},
		{"", true, true},
	}
	for _, tc := range tests {
		var out bytes.Buffer
		got := promptYesNo(bufio.NewReader(strings.NewReader(tc.input)), &out, "Continue?", tc.defaultYes)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
		assert.Contains(t, out.String(), "Continue?")
	}
}

func TestMissingConfig(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ata", "ata.toml")
		var out bytes.Buffer

		wrote, err := missingConfig(strings.NewReader("n\n"), &out, path)
		require.NoError(t, err)
		assert.False(t, wrote)
		assert.Contains(t, out.String(), "Could not find "+path)
		assert.Contains(t, out.String(), "<YOUR SECRET API KEY>")
		assert.NoFileExists(t, path)
	})

	t.Run("accepted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ata", "ata.toml")
		var out bytes.Buffer

		wrote, err := missingConfig(strings.NewReader("y\n"), &out, path)
		require.NoError(t, err)
		assert.True(t, wrote)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, config.ExampleTOML, string(data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})
}

// =============================================================================
// LOGGING
// =============================================================================

func TestSetupLogging(t *testing.T) {
	t.Run("stderr", func(t *testing.T) {
		t.Setenv("ATA_LOG", "stderr")
		var stderr bytes.Buffer

		logger, closeLog, err := setupLogging(true, &stderr)
		require.NoError(t, err)
		defer closeLog()

		logger.Debug("hello", "k", "v")
		assert.Contains(t, stderr.String(), "hello")
	})

	t.Run("off", func(t *testing.T) {
		t.Setenv("ATA_LOG", "off")
		var stderr bytes.Buffer

		logger, closeLog, err := setupLogging(false, &stderr)
		require.NoError(t, err)
		defer closeLog()

		logger.Error("hidden")
		assert.Empty(t, stderr.String())
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("ATA_LOG", "")
		t.Setenv("ATA_CONFIG_DIR", dir)

		logger, closeLog, err := setupLogging(false, io.Discard)
		require.NoError(t, err)
		logger.Debug("not at info level")
		logger.Info("written")
		closeLog()

		data, err := os.ReadFile(filepath.Join(dir, LogFileName))
		require.NoError(t, err)
		assert.Contains(t, string(data), "written")
		assert.NotContains(t, string(data), "not at info level")
	})
}

// =============================================================================
// APP
// =============================================================================

type appFixture struct {
	app    *App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	dir    string
}

func newApp(t *testing.T, stdin string) *appFixture {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ATA_CONFIG_DIR", dir)
	for _, k := range []string{"OPENAI_API_KEY", "ATA_API_KEY", "ATA_BASE_URL", "ATA_MODEL", "ATA_SESSION_DB"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Chdir(dir)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &appFixture{
		app: &App{
			Stdin:  strings.NewReader(stdin),
			Stdout: stdout,
			Stderr: stderr,
			Width:  80,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		stdout: stdout,
		stderr: stderr,
		dir:    dir,
	}
}

func (f *appFixture) writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestApp_VersionAndHelp(t *testing.T) {
	f := newApp(t, "")
	assert.Equal(t, ExitSuccess, f.app.Run(context.Background(), []string{"--version"}))
	assert.Equal(t, "ata "+cloud.Version+"\n", f.stdout.String())

	f.stdout.Reset()
	assert.Equal(t, ExitSuccess, f.app.Run(context.Background(), []string{"--help"}))
	assert.Contains(t, f.stdout.String(), "Usage:")

	f.stdout.Reset()
	assert.Equal(t, ExitSuccess, f.app.Run(context.Background(), []string{"--print-shortcuts"}))
	assert.Contains(t, f.stdout.String(), "Ctrl-C twice")
}

func TestApp_UsageError(t *testing.T) {
	f := newApp(t, "")
	assert.Equal(t, ExitUsageError, f.app.Run(context.Background(), []string{"--nope"}))
	assert.NotEmpty(t, f.stderr.String())
}

func TestApp_PipedPrompt(t *testing.T) {
	srv := chatServer(t, "Hello from the model", nil)
	f := newApp(t, "What is Go?\n")
	f.writeConfig(t, "ata.toml", fmt.Sprintf(
		"api_key = \"sk-test\"\nbase_url = %q\nsession_db = \"\"\n[ui]\nwatch_config = false\n", srv.URL))

	code := f.app.Run(context.Background(), nil)

	assert.Equal(t, ExitSuccess, code, f.stderr.String())
	assert.Contains(t, f.stdout.String(), "Hello from the model")
	assert.NotContains(t, f.stdout.String(), "api_key", "config is only printed on a terminal")
}

func TestApp_MissingKeyIsConfigError(t *testing.T) {
	f := newApp(t, "hi")

	code := f.app.Run(context.Background(), nil)

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, f.stderr.String(), "api_key")
}

func TestApp_FirstRunOffersExample(t *testing.T) {
	f := newApp(t, "y\n")
	f.app.Interactive = true

	code := f.app.Run(context.Background(), nil)

	assert.Equal(t, ExitConfigError, code)
	assert.FileExists(t, filepath.Join(f.dir, config.DefaultFileName))
	assert.Contains(t, f.stderr.String(), "Wrote ")
}

func TestApp_NamedConfigAndModelFlag(t *testing.T) {
	srv := chatServer(t, "ok", nil)
	f := newApp(t, "hi")
	f.writeConfig(t, "work.toml", fmt.Sprintf(
		"api_key = \"sk-test\"\nbase_url = %q\nsession_db = \"\"\n[ui]\nwatch_config = false\n", srv.URL))

	code := f.app.Run(context.Background(), []string{"-c", "work", "-m", "gpt-4o"})
	assert.Equal(t, ExitSuccess, code, f.stderr.String())
	assert.Contains(t, f.stdout.String(), "ok")
}

func TestApp_LoadMissingConversation(t *testing.T) {
	srv := chatServer(t, "ok", nil)
	f := newApp(t, "hi")
	f.writeConfig(t, "ata.toml", fmt.Sprintf(
		"api_key = \"sk-test\"\nbase_url = %q\nsession_db = \"\"\n[ui]\nwatch_config = false\n", srv.URL))

	code := f.app.Run(context.Background(), []string{"--load", "nope"})
	assert.Equal(t, ExitNotFoundError, code)
}

func TestApp_TUIRequiresTerminal(t *testing.T) {
	srv := chatServer(t, "ok", nil)
	f := newApp(t, "")
	f.writeConfig(t, "ata.toml", fmt.Sprintf(
		"api_key = \"sk-test\"\nbase_url = %q\nsession_db = \"\"\n", srv.URL))

	code := f.app.Run(context.Background(), []string{"--tui"})
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, f.stderr.String(), "not a terminal")
}

func TestApp_InteractiveLoop(t *testing.T) {
	srv := chatServer(t, "Hello!", nil)
	f := newApp(t, "")
	f.writeConfig(t, "ata.toml", fmt.Sprintf(
		"api_key = \"sk-test-abcdef\"\nbase_url = %q\nsession_db = \"\"\n[ui]\nwatch_config = false\nsave_history = false\n", srv.URL))

	input := &scriptedInput{steps: lines("hello", "/save first")}
	f.app.Interactive = true
	f.app.newInput = func(string, func(string) []string) lineReader { return input }

	code := f.app.Run(context.Background(), nil)

	require.Equal(t, ExitSuccess, code, f.stderr.String())
	assert.Contains(t, f.stdout.String(), "api_key", "config is printed at start")
	assert.NotContains(t, f.stdout.String(), "sk-test-abcdef", "the key is redacted")
	assert.Contains(t, f.stdout.String(), "Hello!")
	assert.FileExists(t, filepath.Join(f.dir, "conversations", "first.json"))
}
