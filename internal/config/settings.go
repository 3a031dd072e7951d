// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SETTING DESCRIPTORS
// =============================================================================

// ErrUnknownSetting is returned for a key that is not in the registry.
var ErrUnknownSetting = errors.New("unknown setting")

// Setting describes one user-editable configuration field.
type Setting struct {
	Key  string
	Help string

	// Get renders the current value for display.
	Get func(c *Config) string
	// Set parses value, checks its range and stores it on c.
	Set func(c *Config, value string) error
}

// Registry is an ordered set of settings addressed by dotted key.
type Registry struct {
	byKey map[string]Setting
	keys  []string
}

// NewRegistry builds a registry from settings. Duplicate keys panic.
func NewRegistry(settings ...Setting) *Registry {
	r := &Registry{byKey: make(map[string]Setting, len(settings))}
	for _, s := range settings {
		if _, dup := r.byKey[s.Key]; dup {
			panic("config: duplicate setting " + s.Key)
		}
		r.byKey[s.Key] = s
		r.keys = append(r.keys, s.Key)
	}
	sort.Strings(r.keys)
	return r
}

// Keys returns every key in sorted order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Lookup returns the setting for key.
func (r *Registry) Lookup(key string) (Setting, bool) {
	s, ok := r.byKey[normalizeKey(key)]
	return s, ok
}

// Get returns the display value of key on c.
func (r *Registry) Get(c *Config, key string) (string, error) {
	s, ok := r.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return s.Get(c), nil
}

// Set parses and stores value for key on c. The rest of c is not validated;
// Live.Update does that for the whole config.
func (r *Registry) Set(c *Config, key, value string) error {
	s, ok := r.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := s.Set(c, strings.TrimSpace(value)); err != nil {
		return ValidationError{Field: s.Key, Message: err.Error()}
	}
	return nil
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.ReplaceAll(key, "-", "_")
}

// =============================================================================
// DESCRIPTOR CONSTRUCTORS
// =============================================================================

func stringSetting(key, help string, field func(*Config) *string, required bool) Setting {
	return Setting{
		Key:  key,
		Help: help,
		Get:  func(c *Config) string { return *field(c) },
		Set: func(c *Config, v string) error {
			if required && v == "" {
				return errors.New("must not be empty")
			}
			*field(c) = v
			return nil
		},
	}
}

func intSetting(key, help string, field func(*Config) *int, lo, hi int) Setting {
	return Setting{
		Key:  key,
		Help: help,
		Get:  func(c *Config) string { return strconv.Itoa(*field(c)) },
		Set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			if n < lo || n > hi {
				return fmt.Errorf("must be between %d and %d", lo, hi)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatSetting(key, help string, field func(*Config) *float64, lo, hi float64) Setting {
	return Setting{
		Key:  key,
		Help: help,
		Get:  func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		Set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("not a number: %q", v)
			}
			if f < lo || f > hi {
				return fmt.Errorf("must be between %g and %g", lo, hi)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolSetting(key, help string, field func(*Config) *bool) Setting {
	return Setting{
		Key:  key,
		Help: help,
		Get:  func(c *Config) string { return strconv.FormatBool(*field(c)) },
		Set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				switch strings.ToLower(v) {
				case "on", "yes":
					b = true
				case "off", "no":
					b = false
				default:
					return fmt.Errorf("not a boolean: %q", v)
				}
			}
			*field(c) = b
			return nil
		},
	}
}

// =============================================================================
// BUILT-IN SETTINGS
// =============================================================================

// Settings is the registry of every user-editable setting.
var Settings = NewRegistry(
	Setting{
		Key:  "api_key",
		Help: "API key (shown masked)",
		Get:  func(c *Config) string { return MaskKey(c.APIKey) },
		Set: func(c *Config, v string) error {
			if v == "" {
				return errors.New("must not be empty")
			}
			c.APIKey = v
			return nil
		},
	},
	stringSetting("base_url", "API root URL", func(c *Config) *string { return &c.BaseURL }, true),
	stringSetting("model", "model ID", func(c *Config) *string { return &c.Model }, true),
	intSetting("max_tokens", "maximum tokens in a reply", func(c *Config) *int { return &c.MaxTokens }, 1, MaxTokensLimit),
	floatSetting("temperature", "sampling temperature", func(c *Config) *float64 { return &c.Temperature }, 0, 1),
	floatSetting("top_p", "nucleus sampling mass", func(c *Config) *float64 { return &c.TopP }, 0, 1),
	intSetting("n", "completions per request", func(c *Config) *int { return &c.N }, 1, 10),
	floatSetting("presence_penalty", "presence penalty", func(c *Config) *float64 { return &c.PresencePenalty }, 0, 1),
	floatSetting("frequency_penalty", "frequency penalty", func(c *Config) *float64 { return &c.FrequencyPenalty }, 0, 1),
	stringSetting("suffix", "text appended after the completion", func(c *Config) *string { return &c.Suffix }, false),
	stringSetting("user_id", "end-user identifier sent with requests", func(c *Config) *string { return &c.UserID }, false),
	stringSetting("system_prompt", "system turn seeded into new conversations", func(c *Config) *string { return &c.SystemPrompt }, false),
	Setting{
		Key:  "stop",
		Help: `stop sequences as a JSON array, e.g. ["\n\n"]`,
		Get: func(c *Config) string {
			data, _ := json.Marshal(c.Stop)
			return string(data)
		},
		Set: func(c *Config, v string) error {
			var stop []string
			if err := json.Unmarshal([]byte(v), &stop); err != nil {
				return fmt.Errorf("not a JSON array of strings: %w", err)
			}
			if len(stop) > MaxStopSequences {
				return fmt.Errorf("at most %d stop sequences", MaxStopSequences)
			}
			for _, s := range stop {
				if s == "" {
					return errors.New("stop sequences must not be empty")
				}
			}
			c.Stop = stop
			return nil
		},
	},
	Setting{
		Key:  "logit_bias",
		Help: `token biases as a JSON object, e.g. {"50256": -2}`,
		Get: func(c *Config) string {
			data, _ := json.Marshal(c.LogitBias)
			return string(data)
		},
		Set: func(c *Config, v string) error {
			bias := map[string]float64{}
			if err := json.Unmarshal([]byte(v), &bias); err != nil {
				return fmt.Errorf("not a JSON object of numbers: %w", err)
			}
			for token, b := range bias {
				if b < -2 || b > 2 {
					return fmt.Errorf("bias for %s must be between -2 and 2", token)
				}
			}
			c.LogitBias = bias
			return nil
		},
	},
	Setting{
		Key:  "timeout",
		Help: "request timeout, e.g. 90s or 2m",
		Get:  func(c *Config) string { return c.Timeout.String() },
		Set: func(c *Config, v string) error {
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return err
			}
			if d.Duration <= 0 || d.Duration > time.Hour {
				return errors.New("must be between 1ns and 1h")
			}
			c.Timeout = d
			return nil
		},
	},
	intSetting("requests_per_minute", "request pacing, 0 for unlimited", func(c *Config) *int { return &c.RequestsPerMinute }, 0, 10000),
	intSetting("context_max_turns", "turns sent per request, 0 for unlimited", func(c *Config) *int { return &c.ContextMaxTurns }, 0, 100000),
	intSetting("context_max_tokens", "estimated tokens sent per request, 0 for unlimited", func(c *Config) *int { return &c.ContextMaxTokens }, 0, 10000000),
	boolSetting("ui.double_ctrlc", "require Ctrl-C twice to exit", func(c *Config) *bool { return &c.UI.DoubleCtrlC }),
	boolSetting("ui.hide_config", "do not print the config on start", func(c *Config) *bool { return &c.UI.HideConfig }),
	boolSetting("ui.redact_api_key", "mask the key when printing the config", func(c *Config) *bool { return &c.UI.RedactAPIKey }),
	boolSetting("ui.multiline_insertions", "Enter adds a line, Ctrl-D sends", func(c *Config) *bool { return &c.UI.MultilineInsertions }),
	boolSetting("ui.save_history", "persist prompt history", func(c *Config) *bool { return &c.UI.SaveHistory }),
	stringSetting("ui.history_file", "prompt history file", func(c *Config) *string { return &c.UI.HistoryFile }, false),
	boolSetting("ui.render_markdown", "re-render finished replies as markdown", func(c *Config) *bool { return &c.UI.RenderMarkdown }),
	boolSetting("ui.watch_config", "reload the config file when it changes", func(c *Config) *bool { return &c.UI.WatchConfig }),
)

// MaskKey shows only the last four characters of an API key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
