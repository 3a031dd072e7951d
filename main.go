// ata - A streaming terminal chat client for OpenAI-compatible services.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/ata/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
