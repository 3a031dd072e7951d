// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the client for OpenAI-compatible chat completion APIs.
//
// CLOUD: Secure logging, retry logic for metadata calls, request pacing
package cloud

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants.
const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultTimeout bounds non-streaming API calls.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of attempts for retryable metadata calls.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed non-streaming response body.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// Version is reported in the User-Agent header; set by the cli package.
var Version = "dev"

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedHTTPClient = &http.Client{
		Transport: newTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streams are bounded by context.
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// Error variables for common API failures. Match with errors.Is.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates an invalid or expired API key.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account cannot pay for the request.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("server error")

	// ErrContentFiltered indicates the reply was stopped by a content filter.
	ErrContentFiltered = errors.New("reply stopped by content filter")

	// ErrEmptyResponse indicates the stream finished without any text.
	ErrEmptyResponse = errors.New("empty response")

	// ErrChunkTooLarge indicates an SSE event above MaxChunkSize.
	ErrChunkTooLarge = errors.New("stream chunk too large")
)

// APIError is an error object returned by the API.
type APIError struct {
	Code    string
	Type    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// NetworkError is a transport or protocol failure of a request or stream.
type NetworkError struct {
	Op     string // "request", "read", "decode"
	Status int    // HTTP status when the server answered
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that the configured request timeout elapsed.
type TimeoutError struct {
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("request timed out after %s", e.After)
	}
	return "request timed out"
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is a single message of a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload of a chat completion request.
type ChatRequest struct {
	Model            string             `json:"model"`
	Messages         []ChatMessage      `json:"messages"`
	Stream           bool               `json:"stream"`
	Temperature      float64            `json:"temperature"`
	MaxTokens        int                `json:"max_tokens,omitempty"`
	TopP             float64            `json:"top_p"`
	N                int                `json:"n,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	PresencePenalty  float64            `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64            `json:"frequency_penalty,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	User             string             `json:"user,omitempty"`

	// Timeout bounds the whole request including the stream. Not sent.
	Timeout time.Duration `json:"-"`
}

// ModelInfo describes a model returned by ListModels.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

type modelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// apiErrorBody is the error envelope used by OpenAI-compatible servers.
type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type apiErrorResponse struct {
	Error *apiErrorBody `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one OpenAI-compatible endpoint. Credentials and pacing
// can be changed while the client is in use.
type Client struct {
	mu      sync.RWMutex
	apiKey  string
	baseURL string
	limiter *rate.Limiter

	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	logger       *slog.Logger
}

// NewClient creates a client for apiKey against DefaultBaseURL.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		maxRetries:   DefaultMaxRetries,
		logger:       slog.Default(),
	}
}

// WithBaseURL sets the API root.
func (c *Client) WithBaseURL(url string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// WithHTTPClient replaces both the metadata and streaming HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithMaxRetries sets the attempts for retryable metadata calls.
func (c *Client) WithMaxRetries(n int) *Client {
	if n < 1 {
		n = 1
	}
	c.maxRetries = n
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithRateLimit paces requests to perMinute; zero disables pacing.
func (c *Client) WithRateLimit(perMinute int) *Client {
	c.SetRateLimit(perMinute)
	return c
}

// SetCredentials swaps the API key and root, e.g. after a config change.
func (c *Client) SetCredentials(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	c.apiKey = apiKey
}

// SetRateLimit changes request pacing; zero disables it.
func (c *Client) SetRateLimit(perMinute int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if perMinute <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key.
// SECURITY: Never log key fragments; log the fingerprint instead.
func (c *Client) KeyFingerprint() string {
	c.mu.RLock()
	key := c.apiKey
	c.mu.RUnlock()
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

// wait blocks until the pacing limiter admits a request.
func (c *Client) wait(ctx context.Context) error {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// newRequest builds an authenticated request against the API root.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	c.mu.RLock()
	baseURL, apiKey := c.baseURL, c.apiKey
	c.mu.RUnlock()

	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ata/"+Version)
	return req, nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// handleErrorResponse converts a non-2xx response into an error that
// matches the sentinel errors above.
func handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{Status: statusCode, Message: strings.TrimSpace(string(body))}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
		if parsed.Error.Code != nil {
			apiErr.Code = fmt.Sprint(parsed.Error.Code)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAuthFailed, apiErr)
	case statusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %w", ErrInsufficientCredits, apiErr)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrModelNotFound, apiErr)
	case statusCode == http.StatusTooManyRequests:
		if apiErr.Code == "insufficient_quota" {
			return fmt.Errorf("%w: %w", ErrInsufficientCredits, apiErr)
		}
		return fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
	case statusCode >= 500:
		return fmt.Errorf("%w: %w", ErrServer, apiErr)
	default:
		return apiErr
	}
}

// isRetryable reports whether a metadata call should be attempted again.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer)
}

// calculateBackoff returns the delay before retry attempt (0-based).
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// readResponse reads a body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels returns the models the endpoint serves. Rate limiting and 5xx
// responses are retried with exponential backoff.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt - 1)):
			}
		}

		models, err := c.listModelsOnce(ctx)
		if err == nil {
			return models, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		c.logger.Debug("retrying model listing", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) listModelsOnce(ctx context.Context) ([]ModelInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "request", Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("api response", "path", "/models", "status", resp.StatusCode, "duration", time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, &NetworkError{Op: "read", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	var parsed modelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}
	return parsed.Data, nil
}
