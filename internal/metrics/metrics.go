// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics records reply statistics as Prometheus metrics. The
// Collector is an engine sink; Serve exposes it on /metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeranaias/ata/internal/model"
)

// LLMBuckets covers reply latencies from 100ms to two minutes.
var LLMBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Collector counts replies and fragments. It owns its registry so several
// collectors (one per test, say) never collide.
type Collector struct {
	registry *prometheus.Registry

	turns     *prometheus.CounterVec
	fragments prometheus.Counter
	firstByte prometheus.Histogram
	duration  prometheus.Histogram
	streaming prometheus.Gauge

	mu      sync.Mutex
	started time.Time
	seen    bool // first fragment of the current reply observed
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ata_turns_total",
				Help: "Assistant replies by final status",
			},
			[]string{"status"},
		),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ata_fragments_total",
			Help: "Stream fragments folded into replies",
		}),
		firstByte: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ata_time_to_first_fragment_seconds",
			Help:    "Time from request to first fragment",
			Buckets: LLMBuckets,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ata_turn_duration_seconds",
			Help:    "Time from request to final status",
			Buckets: LLMBuckets,
		}),
		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ata_streaming_active",
			Help: "1 while a reply is streaming",
		}),
	}
	c.registry.MustRegister(c.turns, c.fragments, c.firstByte, c.duration, c.streaming)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// OnTurnStarted starts timing a reply.
func (c *Collector) OnTurnStarted(turn model.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = turn.CreatedAt
	if c.started.IsZero() {
		c.started = time.Now()
	}
	c.seen = false
	c.streaming.Set(1)
}

// OnFragment counts a fragment.
func (c *Collector) OnFragment(string) {
	c.fragments.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seen && !c.started.IsZero() {
		c.seen = true
		c.firstByte.Observe(time.Since(c.started).Seconds())
	}
}

// OnTurnFinalized records the reply's status and duration.
func (c *Collector) OnTurnFinalized(turn model.Turn) {
	c.turns.WithLabelValues(turn.Status.String()).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started.IsZero() {
		end := turn.FinishedAt
		if end.IsZero() {
			end = time.Now()
		}
		c.duration.Observe(end.Sub(c.started).Seconds())
	}
	c.started = time.Time{}
	c.streaming.Set(0)
}

// Serve exposes /metrics on addr until ctx is done. Bind errors are
// returned immediately; serving happens in the background.
func Serve(ctx context.Context, addr string, c *Collector, logger *slog.Logger) (net.Addr, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	return ln.Addr(), nil
}
