// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lorebook-cli.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation. A file watcher reloads the config on change.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Lorebook server connection (URL, token, timeout)
//   - ChatConfig: Retrieval and answer settings for queries
//   - Watcher: Hot-reloads the config file on disk changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LOREBOOK_*)
//   - ~/.lorebook/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	url := cfg.Server.BaseURL
//	streaming := cfg.Chat.Streaming
package config
