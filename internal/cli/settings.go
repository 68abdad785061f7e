// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"sync"

	"github.com/jeranaias/lorebook-cli/internal/config"
	"github.com/jeranaias/lorebook-cli/internal/engine"
)

// =============================================================================
// RUNTIME SETTINGS
// =============================================================================

// SettingsState layers session-scoped toggles over the config file. The
// engine reads it per query, so /stream and a config reload both take
// effect on the next query without rebuilding anything.
type SettingsState struct {
	mu        sync.Mutex
	streaming *bool
}

// SetStreaming overrides the streaming setting for the session.
func (s *SettingsState) SetStreaming(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = &v
}

// Resolve produces the effective settings from the given config plus any
// session overrides.
func (s *SettingsState) Resolve(cfg *config.Config) engine.Settings {
	out := engine.Settings{
		Streaming:     cfg.Chat.Streaming,
		MaxSources:    cfg.Chat.MaxSources,
		MinSimilarity: cfg.Chat.MinSimilarity,
		IncludeImages: cfg.Chat.IncludeImages,
		IncludeGraph:  cfg.Chat.IncludeGraph,
		Temperature:   cfg.Chat.Temperature,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming != nil {
		out.Streaming = *s.streaming
	}
	return out
}
