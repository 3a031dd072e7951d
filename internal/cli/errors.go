// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/jeranaias/ata/internal/cloud"
	"github.com/jeranaias/ata/internal/config"
	"github.com/jeranaias/ata/internal/engine"
	"github.com/jeranaias/ata/internal/request"
	"github.com/jeranaias/ata/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the API rejected the key
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a conversation or session was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// StartupError wraps a failure that ends the program before the prompt.
type StartupError struct {
	Stage string // "config", "session", "load", ...
	Code  int
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var startup *StartupError
	if errors.As(err, &startup) && startup.Code != 0 {
		return startup.Code
	}

	var flagErr *flags.Error
	var validate config.ValidateErrors
	var timeout *cloud.TimeoutError
	var network *cloud.NetworkError
	switch {
	case errors.As(err, &flagErr):
		return ExitUsageError
	case errors.As(err, &validate):
		return ExitConfigError
	case errors.Is(err, cloud.ErrAuthFailed), errors.Is(err, cloud.ErrNotConfigured):
		return ExitAuthError
	case errors.As(err, &timeout):
		return ExitTimeoutError
	case errors.As(err, &network):
		return ExitNetworkError
	case errors.Is(err, storage.ErrConversationNotFound), errors.Is(err, storage.ErrSessionNotFound):
		return ExitNotFoundError
	default:
		return ExitGeneralError
	}
}

// describe turns err into the line shown to the user. Known failures get a
// hint on what to do about them.
func describe(err error) string {
	var (
		busy     *engine.BusyError
		empty    *request.EmptyContextError
		validate config.ValidateErrors
		limited  *cloud.RateLimitError
	)
	switch {
	case errors.Is(err, cloud.ErrNotConfigured):
		return "No API key configured. Set api_key in the config file or OPENAI_API_KEY."
	case errors.Is(err, cloud.ErrAuthFailed):
		return fmt.Sprintf("%v. Check api_key (try /set api_key <key>).", err)
	case errors.Is(err, cloud.ErrModelNotFound):
		return fmt.Sprintf("%v. List the available models with /models.", err)
	case errors.As(err, &limited):
		return err.Error() + "."
	case errors.Is(err, cloud.ErrEmptyResponse):
		return "Empty response, nothing was generated."
	case errors.As(err, &busy):
		return "A reply is still streaming; wait for it or press Ctrl-C."
	case errors.As(err, &empty):
		return err.Error() + ". Raise context_max_tokens or context_max_turns."
	case errors.Is(err, engine.ErrNothingToRetry):
		return "There is no reply to retry."
	case errors.As(err, &validate):
		return "Invalid setting: " + validate.Error()
	case errors.Is(err, config.ErrUnknownSetting):
		return err.Error() + ". /config lists every setting."
	default:
		return err.Error()
	}
}
