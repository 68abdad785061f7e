// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the Lorebook server.
//
// Two request families live here: the retrieval-augmented query endpoints
// (one-shot Query and SSE-based QueryStream) and conversation CRUD. Every
// request carries the bearer token; a client without one fails each
// operation synchronously with ErrNotConfigured.
//
// The streaming endpoint pushes data: <json> frames with a type
// discriminator. QueryStream parses them into the sealed StreamEvent
// union (Token, Citations, Metadata, Error, Done) and hands each event to
// a callback in arrival order, so higher layers never touch raw frames.
// Malformed frames are logged and skipped rather than aborting the
// stream.
//
// The package never retries: a failed call surfaces immediately, and the
// user-facing retry mechanism is regeneration.
package api
