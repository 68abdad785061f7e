// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// CONVERSATION METADATA
// =============================================================================

// ConversationMeta is the server-side summary of a conversation, as
// returned by the list and detail endpoints. Message history itself is
// authoritative on the server and fetched on demand.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// DisplayTitle returns the title, or a placeholder when the server has
// not derived one yet.
func (c ConversationMeta) DisplayTitle() string {
	if c.Title == "" {
		return "Untitled conversation"
	}
	return c.Title
}

// TitleFromQuery derives a provisional local title from the first user
// query, truncated on rune boundaries.
func TitleFromQuery(query string) string {
	const maxTitle = 50
	runes := []rune(query)
	if len(runes) <= maxTitle {
		return query
	}
	return string(runes[:maxTitle-3]) + "..."
}
