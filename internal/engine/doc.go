// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine runs queries and keeps the conversation store consistent.
//
// The engine owns the full lifecycle of a turn: it appends the optimistic
// user message and assistant placeholder, drives the server's event
// stream, folds events through a pure reducer (Reduce over EngineState),
// and finalizes the placeholder exactly once on every return path —
// success, failure, or cancellation. Cancellation keeps the partial
// answer, appends CancelMarker, and is not an error.
//
// One stream runs at a time: issuing a query while the store's streaming
// flag is set fails with ErrStreamActive. Regeneration reuses the same
// stream driving but targets an existing assistant message in place.
//
// Conversation lifecycle operations (create, load, list, rename, delete)
// live here too; list fetches coordinate through the injected FetchGuard.
package engine
