// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by ata's packages.
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//
// Text:
//   - TruncateWidth, PadWidth, StringWidth: display-width aware layout
//   - OneLine: collapse whitespace for single-line previews
//   - NormalizeInput: NFC normalisation of typed or pasted input
package util
