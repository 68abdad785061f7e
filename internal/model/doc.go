// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing knowledge-base chat: messages with their retrieval
// citations and confidence metadata, conversation summaries, and the
// preview selection shown alongside an answer.
//
// # Key Types
//
//   - Message: single turn with role, content, citations, and lifecycle flags
//   - MessagePatch: partial in-place update applied by the store
//   - Citation: one retrieval source (note, chunk, image, analysis artifact)
//   - PreviewItem: the source currently selected for inspection
//   - ConversationMeta: server-side conversation summary
//
// # Usage
//
// Start a turn optimistically:
//
//	user := model.NewUserMessage("What did I write about sourdough?")
//	placeholder := model.NewAssistantPlaceholder()
//
// Messages are mutated only through MessagePatch so every change flows
// through the store's single writer.
package model
