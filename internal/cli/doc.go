// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the lorebook command line interface: argument
// parsing, the interactive REPL, and the one-shot ask path.
//
// The REPL reads queries with line editing and history (peterh/liner),
// streams answers to stdout as tokens arrive, and exposes conversation
// management through slash commands (/list, /load, /new, /rename,
// /delete, /regen, /sources, /history).
//
// Colors are disabled automatically for non-TTY output and when NO_COLOR
// is set.
package cli
