// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ata.
//
// Supports TOML (default), JSON and YAML files, chosen by extension, with
// built-in defaults, environment variable overrides and validation.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/ata/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the OpenAI-compatible API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gpt-3.5-turbo"

	// DefaultFileName is the config file looked up in the config directory.
	DefaultFileName = "ata.toml"

	// MaxTokensLimit is the upper bound accepted for max_tokens.
	MaxTokensLimit = 2048

	// MaxStopSequences is the number of stop sequences the API accepts.
	MaxStopSequences = 4

	// RedactedValue replaces secrets in printed configuration.
	RedactedValue = "[redacted]"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ata configuration.
type Config struct {
	APIKey  string `toml:"api_key" json:"api_key" yaml:"api_key"`
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// Completion parameters
	Model            string             `toml:"model" json:"model" yaml:"model"`
	MaxTokens        int                `toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	Temperature      float64            `toml:"temperature" json:"temperature" yaml:"temperature"`
	Suffix           string             `toml:"suffix,omitempty" json:"suffix,omitempty" yaml:"suffix,omitempty"`
	TopP             float64            `toml:"top_p" json:"top_p" yaml:"top_p"`
	N                int                `toml:"n" json:"n" yaml:"n"`
	Stream           bool               `toml:"stream" json:"stream" yaml:"stream"`
	Stop             []string           `toml:"stop" json:"stop" yaml:"stop"`
	PresencePenalty  float64            `toml:"presence_penalty" json:"presence_penalty" yaml:"presence_penalty"`
	FrequencyPenalty float64            `toml:"frequency_penalty" json:"frequency_penalty" yaml:"frequency_penalty"`
	LogitBias        map[string]float64 `toml:"logit_bias" json:"logit_bias" yaml:"logit_bias"`
	UserID           string             `toml:"user_id,omitempty" json:"user_id,omitempty" yaml:"user_id,omitempty"`
	SystemPrompt     string             `toml:"system_prompt,omitempty" json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// Transport
	Timeout           Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
	RequestsPerMinute int      `toml:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"`

	// Context window budget sent with each request
	ContextMaxTurns  int `toml:"context_max_turns" json:"context_max_turns" yaml:"context_max_turns"`
	ContextMaxTokens int `toml:"context_max_tokens" json:"context_max_tokens" yaml:"context_max_tokens"`

	// SessionDB is the SQLite session log; empty disables it.
	SessionDB string `toml:"session_db" json:"session_db" yaml:"session_db"`

	UI UIConfig `toml:"ui" json:"ui" yaml:"ui"`
}

// UIConfig contains terminal behaviour settings.
type UIConfig struct {
	// DoubleCtrlC requires pressing Ctrl-C twice at the prompt to exit.
	DoubleCtrlC bool `toml:"double_ctrlc" json:"double_ctrlc" yaml:"double_ctrlc"`
	// HideConfig skips printing the configuration on start.
	HideConfig bool `toml:"hide_config" json:"hide_config" yaml:"hide_config"`
	// RedactAPIKey hides the key when printing the configuration.
	RedactAPIKey bool `toml:"redact_api_key" json:"redact_api_key" yaml:"redact_api_key"`
	// MultilineInsertions makes Enter insert a newline; Ctrl-D sends.
	MultilineInsertions bool `toml:"multiline_insertions" json:"multiline_insertions" yaml:"multiline_insertions"`
	SaveHistory         bool `toml:"save_history" json:"save_history" yaml:"save_history"`
	HistoryFile         string `toml:"history_file" json:"history_file" yaml:"history_file"`
	// RenderMarkdown re-renders finished replies as markdown on a TTY.
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown" yaml:"render_markdown"`
	// WatchConfig reloads the config file when it changes on disk.
	WatchConfig bool `toml:"watch_config" json:"watch_config" yaml:"watch_config"`
}

// Duration is a time.Duration that encodes as a string such as "90s".
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Bare numbers are seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with built-in defaults.
func Default() *Config {
	historyFile := ""
	if dir, err := Dir(); err == nil {
		historyFile = filepath.Join(dir, "history")
	}
	sessionDB := ""
	if dir, err := Dir(); err == nil {
		sessionDB = filepath.Join(dir, "sessions.db")
	}

	return &Config{
		BaseURL:          DefaultBaseURL,
		Model:            DefaultModel,
		MaxTokens:        MaxTokensLimit,
		Temperature:      0.8,
		TopP:             1.0,
		N:                1,
		Stream:           true,
		Stop:             []string{},
		LogitBias:        map[string]float64{},
		Timeout:          Duration{2 * time.Minute},
		ContextMaxTokens: 3000,
		SessionDB:        sessionDB,
		UI: UIConfig{
			DoubleCtrlC:  true,
			RedactAPIKey: true,
			SaveHistory:  true,
			HistoryFile:  historyFile,
			WatchConfig:  true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the ata configuration directory. ATA_CONFIG_DIR overrides it.
func Dir() (string, error) {
	if dir := os.Getenv("ATA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, "ata"), nil
}

// EnsureDir creates the configuration directory if needed.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens a config file that holds an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0077 != 0 {
		return os.Chmod(path, 0600)
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Format identifies a config file encoding.
type Format int

const (
	FormatTOML Format = iota
	FormatJSON
	FormatYAML
)

// FormatFor picks the encoding from a file extension; unknown means TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates. A missing file is not an error: defaults and
// environment still apply. The returned bool reports whether the file existed.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			exists = true
			if err := LoadFile(cfg, path); err != nil {
				return nil, true, err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, exists, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, exists, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, exists, nil
}

// LoadFile decodes path into cfg using the encoding implied by its extension.
func LoadFile(cfg *Config, path string) error {
	// SECURITY: the file may hold an API key.
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := Decode(cfg, data, FormatFor(path)); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Decode parses data in the given format over cfg.
func Decode(cfg *Config, data []byte, format Format) error {
	switch format {
	case FormatJSON:
		return json.Unmarshal(data, cfg)
	case FormatYAML:
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

// normalize fills zero values that must never be zero.
func (c *Config) normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Stop == nil {
		c.Stop = []string{}
	}
	if c.LogitBias == nil {
		c.LogitBias = map[string]float64{}
	}
}

// =============================================================================
// SAVING
// =============================================================================

// header is written above TOML files.
const header = `# ata configuration file
# See "ata --help" and /help for the settings available.

`

// Save writes cfg to path atomically with owner-only permissions.
func Save(cfg *Config, path string) error {
	data, err := Encode(cfg, FormatFor(path))
	if err != nil {
		return err
	}
	if FormatFor(path) == FormatTOML {
		data = append([]byte(header), data...)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Encode renders cfg in the given format.
func Encode(cfg *Config, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(cfg, "", "  ")
	case FormatYAML:
		return yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode TOML: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies ATA_* environment variables and OPENAI_API_KEY.
// Unparsable values are reported together and leave the field unchanged.
func (c *Config) ApplyEnvOverrides() error {
	var errs []error
	parse := func(name string, apply func(string) error) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		if err := apply(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	flag := func(dst *bool) func(string) error {
		return func(v string) error { *dst = envBool(v); return nil }
	}

	parse("OPENAI_API_KEY", str(&c.APIKey))
	parse("ATA_API_KEY", str(&c.APIKey))
	parse("ATA_BASE_URL", str(&c.BaseURL))
	parse("ATA_MODEL", str(&c.Model))
	parse("ATA_SUFFIX", str(&c.Suffix))
	parse("ATA_USER_ID", str(&c.UserID))
	parse("ATA_SYSTEM_PROMPT", str(&c.SystemPrompt))
	parse("ATA_MAX_TOKENS", func(v string) error { return parseInt(v, &c.MaxTokens) })
	parse("ATA_N", func(v string) error { return parseInt(v, &c.N) })
	parse("ATA_TEMPERATURE", func(v string) error { return parseFloat(v, &c.Temperature) })
	parse("ATA_TOP_P", func(v string) error { return parseFloat(v, &c.TopP) })
	parse("ATA_PRESENCE_PENALTY", func(v string) error { return parseFloat(v, &c.PresencePenalty) })
	parse("ATA_FREQUENCY_PENALTY", func(v string) error { return parseFloat(v, &c.FrequencyPenalty) })
	parse("ATA_STOP", func(v string) error { return json.Unmarshal([]byte(v), &c.Stop) })
	parse("ATA_LOGIT_BIAS", func(v string) error { return json.Unmarshal([]byte(v), &c.LogitBias) })
	parse("ATA_TIMEOUT", func(v string) error { return c.Timeout.UnmarshalText([]byte(v)) })
	parse("ATA_DOUBLE_CTRLC", flag(&c.UI.DoubleCtrlC))
	parse("ATA_HIDE_CONFIG", flag(&c.UI.HideConfig))
	parse("ATA_REDACT_API_KEY", flag(&c.UI.RedactAPIKey))
	parse("ATA_MULTILINE_INSERTIONS", flag(&c.UI.MultilineInsertions))
	parse("ATA_SAVE_HISTORY", flag(&c.UI.SaveHistory))
	parse("ATA_HISTORY_FILE", str(&c.UI.HistoryFile))

	return errors.Join(errs...)
}

func envBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every problem found by Validate.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e ValidateErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validate checks every field and returns ValidateErrors when any fails.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}
	inRange := func(field string, v, lo, hi float64) {
		if v < lo || v > hi {
			add(field, fmt.Sprintf("must be between %g and %g", lo, hi))
		}
	}

	if strings.TrimSpace(c.APIKey) == "" {
		add("api_key", "API key is missing")
	}
	if strings.TrimSpace(c.Model) == "" {
		add("model", "model ID is missing")
	}
	if c.MaxTokens < 1 || c.MaxTokens > MaxTokensLimit {
		add("max_tokens", fmt.Sprintf("must be between 1 and %d", MaxTokensLimit))
	}
	inRange("temperature", c.Temperature, 0, 1)
	inRange("top_p", c.TopP, 0, 1)
	if c.N < 1 || c.N > 10 {
		add("n", "must be between 1 and 10")
	}
	if len(c.Stop) > MaxStopSequences || slices.Contains(c.Stop, "") {
		add("stop", fmt.Sprintf("at most %d non-empty stop sequences", MaxStopSequences))
	}
	inRange("presence_penalty", c.PresencePenalty, 0, 1)
	inRange("frequency_penalty", c.FrequencyPenalty, 0, 1)
	for _, token := range slices.Sorted(maps.Keys(c.LogitBias)) {
		if v := c.LogitBias[token]; v < -2 || v > 2 {
			add("logit_bias", fmt.Sprintf("bias for %s must be between -2 and 2", token))
		}
	}
	if c.Timeout.Duration <= 0 {
		add("timeout", "must be positive")
	}
	if c.RequestsPerMinute < 0 {
		add("requests_per_minute", "must not be negative")
	}
	if c.ContextMaxTurns < 0 {
		add("context_max_turns", "must not be negative")
	}
	if c.ContextMaxTokens < 0 {
		add("context_max_tokens", "must not be negative")
	}
	if c.UI.SaveHistory && c.UI.HistoryFile != "" {
		if info, err := os.Stat(filepath.Dir(c.UI.HistoryFile)); err == nil && !info.IsDir() {
			add("ui.history_file", "parent is not a directory")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// COPIES AND DISPLAY
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Stop = slices.Clone(c.Stop)
	out.LogitBias = maps.Clone(c.LogitBias)
	return &out
}

// String renders the configuration as TOML. When redact is set the API key
// is replaced by RedactedValue.
func (c *Config) String(redact bool) string {
	shown := c.Clone()
	if redact && shown.APIKey != "" {
		shown.APIKey = RedactedValue
	}
	data, err := Encode(shown, FormatTOML)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the immutable view of the settings one request needs.
type Snapshot struct {
	BaseURL string
	APIKey  string

	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	N                int
	Stop             []string
	PresencePenalty  float64
	FrequencyPenalty float64
	LogitBias        map[string]float64
	User             string
	SystemPrompt     string

	ContextMaxTurns  int
	ContextMaxTokens int
	Timeout          time.Duration
}

// Snapshot copies the request settings out of c.
func (c *Config) Snapshot() Snapshot {
	return Snapshot{
		BaseURL:          c.BaseURL,
		APIKey:           c.APIKey,
		Model:            c.Model,
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		N:                c.N,
		Stop:             slices.Clone(c.Stop),
		PresencePenalty:  c.PresencePenalty,
		FrequencyPenalty: c.FrequencyPenalty,
		LogitBias:        maps.Clone(c.LogitBias),
		User:             c.UserID,
		SystemPrompt:     c.SystemPrompt,
		ContextMaxTurns:  c.ContextMaxTurns,
		ContextMaxTokens: c.ContextMaxTokens,
		Timeout:          c.Timeout.Duration,
	}
}
