// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable conversation state.
//
// A single Store instance owns the active conversation: its messages, the
// loading/streaming flags, the last operation error, and the citation and
// preview panels. All writes go through the store's mutators, which are
// synchronous, never block on observers, and publish a cloned Snapshot to
// every subscriber after each change.
//
// Subscribers receive snapshots on a buffered channel; a slow subscriber
// misses intermediate states but always receives the latest one delivered
// after it drains. The query engines are the only writers in practice.
package store
