// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ata.
//
// # Key Types
//
//   - Config: every setting, encodable as TOML, JSON or YAML
//   - Location: the parsed --config flag (auto, path or profile name)
//   - Registry / Setting: typed get/set/validate accessors per key
//   - Live: the session's current config, updated copy-on-write
//   - Snapshot: the immutable request settings handed to the engine
//
// # Configuration Precedence
//
//   - Environment variables (ATA_*, OPENAI_API_KEY)
//   - The config file (<config dir>/ata.toml unless --config says otherwise)
//   - Built-in defaults
//
// # Usage
//
//	path, _, _ := config.ParseLocation(flag).Resolve()
//	cfg, _, err := config.Load(path)
//	live := config.NewLive(cfg, path)
//	_ = live.Set("temperature", "0.2")
//	snap := live.Snapshot()
package config
