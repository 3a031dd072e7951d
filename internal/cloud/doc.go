// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud talks to OpenAI-compatible chat completion endpoints.
//
// # Key Types
//
//   - Client: HTTP client with TLS 1.2+, request pacing and swappable credentials
//   - ChatRequest / ChatMessage: the chat completion payload
//   - Fragment: one element of a reply stream
//   - SSEReader: Server-Sent Events parser with a per-event size limit
//
// # Usage
//
//	client := cloud.NewClient(apiKey).WithBaseURL(baseURL)
//	ctx, gate := cancel.WithContext(ctx)
//	for frag := range client.Open(ctx, req, gate) {
//	    ...
//	}
//
// # Errors
//
// Stream failures arrive as the terminal Fragment's Err and are either a
// *NetworkError or a *TimeoutError; the sentinel errors (ErrAuthFailed,
// ErrRateLimited, ...) can be matched through them with errors.Is.
//
// # Security
//
// API keys are never logged; KeyFingerprint is logged instead.
package cloud
