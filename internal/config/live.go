// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// LIVE CONFIG
// =============================================================================

// Live holds the current configuration of a session. Readers get an
// immutable pointer; writers publish a validated copy.
type Live struct {
	cur  atomic.Pointer[Config]
	path string

	mu       sync.Mutex // serializes writers
	onChange []func(*Config)
}

// NewLive wraps cfg, which was loaded from path (may be empty).
func NewLive(cfg *Config, path string) *Live {
	l := &Live{path: path}
	l.cur.Store(cfg.Clone())
	return l
}

// Get returns the current configuration. Callers must not modify it.
func (l *Live) Get() *Config {
	return l.cur.Load()
}

// Path returns the file the configuration came from.
func (l *Live) Path() string {
	return l.path
}

// Snapshot returns the request settings of the current configuration.
func (l *Live) Snapshot() Snapshot {
	return l.cur.Load().Snapshot()
}

// Update applies fn to a copy of the current configuration and publishes it
// if the result validates.
func (l *Live) Update(fn func(*Config) error) error {
	l.mu.Lock()
	next := l.cur.Load().Clone()
	if err := fn(next); err != nil {
		l.mu.Unlock()
		return err
	}
	next.normalize()
	if err := next.Validate(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.cur.Store(next)
	listeners := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// Set is Update through the settings registry.
func (l *Live) Set(key, value string) error {
	return l.Update(func(c *Config) error {
		return Settings.Set(c, key, value)
	})
}

// OnChange registers fn to run after every published change.
func (l *Live) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads the backing file. On any error the current configuration
// is kept.
func (l *Live) Reload() error {
	if l.path == "" {
		return nil
	}
	fresh, _, err := Load(l.path)
	if err != nil {
		return err
	}
	return l.Update(func(c *Config) error {
		*c = *fresh
		return nil
	})
}

// Save writes the current configuration back to its file.
func (l *Live) Save() error {
	if l.path == "" {
		return fmt.Errorf("no config file to save to")
	}
	return Save(l.Get(), l.path)
}

// =============================================================================
// FILE WATCHER
// =============================================================================

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 250 * time.Millisecond

// Watch reloads l whenever its file changes, until ctx is done. The parent
// directory is watched because editors often replace the file by rename.
func Watch(ctx context.Context, l *Live, logger *slog.Logger) error {
	if l.path == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(l.path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		reload := func() {
			if err := l.Reload(); err != nil {
				logger.Warn("config reload rejected, keeping previous settings", "path", abs, "error", err)
				return
			}
			logger.Info("config reloaded", "path", abs)
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
