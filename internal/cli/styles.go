// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/jeranaias/ata/internal/ui/styles"
)

// printError writes err in the error style.
func printError(w io.Writer, th *styles.Theme, err error) {
	fmt.Fprintln(w, th.RenderError(describe(err)))
}

// printWarning writes msg in the warning style.
func printWarning(w io.Writer, th *styles.Theme, msg string) {
	fmt.Fprintln(w, th.RenderWarning(msg))
}
