// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/ata/internal/config"
)

// LogFileName is the log file inside the config directory.
const LogFileName = "ata.log"

// setupLogging builds the process logger. The log goes to
// <config dir>/ata.log so it never mixes with streamed replies; ATA_LOG=stderr
// sends it to stderr and ATA_LOG=off discards it. The returned func closes
// the file.
func setupLogging(debug bool, stderr io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(os.Getenv("ATA_LOG")) {
	case "stderr":
		return slog.New(slog.NewTextHandler(stderr, handlerOpts)), func() {}, nil
	case "off", "none":
		return slog.New(slog.NewTextHandler(io.Discard, handlerOpts)), func() {}, nil
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, handlerOpts)), func() { f.Close() }, nil
}
