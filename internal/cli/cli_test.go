// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"

	"github.com/jeranaias/lorebook-cli/internal/config"
)

func TestParse_Defaults(t *testing.T) {
	args, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if args.Query != "" {
		t.Errorf("Query = %q, want empty", args.Query)
	}
	if args.NoStream || args.ShowVersion || args.Watch {
		t.Error("boolean flags should default to false")
	}
}

func TestParse_Flags(t *testing.T) {
	args, err := Parse([]string{
		"--server", "https://notes.example.com",
		"--no-stream",
		"--config", "/tmp/custom.toml",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if args.Server != "https://notes.example.com" {
		t.Errorf("Server = %q", args.Server)
	}
	if !args.NoStream {
		t.Error("NoStream should be set")
	}
	if args.ConfigPath != "/tmp/custom.toml" {
		t.Errorf("ConfigPath = %q", args.ConfigPath)
	}
}

func TestParse_QueryFromPositionals(t *testing.T) {
	args, err := Parse([]string{"--no-stream", "what", "links", "to", "this", "note?"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if args.Query != "what links to this note?" {
		t.Errorf("Query = %q", args.Query)
	}
}

func TestParse_UnknownFlag(t *testing.T) {
	if _, err := Parse([]string{"--bogus"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestSettingsState_Resolve(t *testing.T) {
	cfg := config.Default()
	var s SettingsState

	got := s.Resolve(cfg)
	if !got.Streaming {
		t.Error("Streaming should follow the config default")
	}
	if got.MaxSources != cfg.Chat.MaxSources {
		t.Errorf("MaxSources = %d, want %d", got.MaxSources, cfg.Chat.MaxSources)
	}

	s.SetStreaming(false)
	if s.Resolve(cfg).Streaming {
		t.Error("session override should win over the config")
	}

	// The override persists across config changes.
	cfg.Chat.Streaming = true
	if s.Resolve(cfg).Streaming {
		t.Error("override should persist across config reloads")
	}

	s.SetStreaming(true)
	if !s.Resolve(cfg).Streaming {
		t.Error("override back to on should apply")
	}
}
