// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testKey = "sk-test-abcdefghijklmnopqrstuvwxyz0123456789"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(testKey).WithBaseURL(server.URL).WithHTTPClient(server.Client())
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestHandleErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", 401, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, ErrAuthFailed},
		{"forbidden", 403, ``, ErrAuthFailed},
		{"payment", 402, ``, ErrInsufficientCredits},
		{"not found", 404, `{"error":{"message":"no such model","code":"model_not_found"}}`, ErrModelNotFound},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, ErrRateLimited},
		{"quota", 429, `{"error":{"message":"quota","code":"insufficient_quota"}}`, ErrInsufficientCredits},
		{"server", 503, `upstream unavailable`, ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handleErrorResponse(tt.status, []byte(tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("handleErrorResponse(%d) = %v, want %v", tt.status, err, tt.want)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError in chain, got %T", err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
		})
	}
}

func TestHandleErrorResponse_ParsesMessage(t *testing.T) {
	err := handleErrorResponse(400, []byte(`{"error":{"message":"max_tokens is too large","type":"invalid_request_error","code":null}}`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "max_tokens is too large" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Code != "" {
		t.Errorf("Code = %q, want empty for null code", apiErr.Code)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := calculateBackoff(0); got != retryBaseDelay {
		t.Errorf("calculateBackoff(0) = %v, want %v", got, retryBaseDelay)
	}
	if got := calculateBackoff(1); got != 2*retryBaseDelay {
		t.Errorf("calculateBackoff(1) = %v, want %v", got, 2*retryBaseDelay)
	}
	if got := calculateBackoff(30); got != retryMaxDelay {
		t.Errorf("calculateBackoff(30) = %v, want cap %v", got, retryMaxDelay)
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestKeyFingerprint_DoesNotLeakKey(t *testing.T) {
	c := NewClient(testKey)
	fp := c.KeyFingerprint()
	if len(fp) != 8 {
		t.Errorf("fingerprint length = %d, want 8", len(fp))
	}
	if strings.Contains(testKey, fp) {
		t.Errorf("fingerprint %q is a substring of the key", fp)
	}
	if NewClient("").KeyFingerprint() != "none" {
		t.Error("empty key should fingerprint as none")
	}
}

func TestSetCredentials(t *testing.T) {
	c := NewClient("")
	if c.IsConfigured() {
		t.Fatal("client without key reports configured")
	}
	c.SetCredentials("http://localhost:8080/v1/", "k")
	if !c.IsConfigured() {
		t.Fatal("client with key reports unconfigured")
	}
	if got := c.BaseURL(); got != "http://localhost:8080/v1" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %s, want /models", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testKey {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"data":[{"id":"gpt-4o","owned_by":"openai"},{"id":"gpt-3.5-turbo","owned_by":"openai"}]}`))
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0].ID != "gpt-4o" {
		t.Errorf("ListModels() = %+v", models)
	}
}

func TestListModels_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":[{"id":"m"}]}`))
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 1 {
		t.Errorf("got %d models", len(models))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestListModels_AuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListModels(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("error = %v, want ErrAuthFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestListModels_NotConfigured(t *testing.T) {
	_, err := NewClient("").ListModels(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}

// TestClient_ConcurrentCredentialSwap exercises SetCredentials while
// requests are in flight. Run with -race.
func TestClient_ConcurrentCredentialSwap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	base := c.BaseURL()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.SetCredentials(base, testKey)
			c.SetRateLimit(0)
		}()
		go func() {
			defer wg.Done()
			if _, err := c.ListModels(context.Background()); err != nil {
				t.Errorf("ListModels() error = %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestRateLimit_PacesRequests(t *testing.T) {
	c := NewClient(testKey).WithRateLimit(600) // one per 100ms, burst 1

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := c.wait(ctx); err != nil {
			t.Fatalf("wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("three paced requests took %v, want >= 150ms", elapsed)
	}

	c.SetRateLimit(0)
	start = time.Now()
	for i := 0; i < 10; i++ {
		_ = c.wait(ctx)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unpaced requests took %v", elapsed)
	}
}
