// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// ParseRole maps a wire role string onto a Role, defaulting to assistant
// for anything unrecognized so loaded history never drops a turn.
func ParseRole(s string) Role {
	if Role(s) == RoleUser {
		return RoleUser
	}
	return RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Retrieval grounding (assistant messages)
	Citations           []Citation `json:"citations,omitempty"`
	UsedCitationIndices []int      `json:"used_citation_indices,omitempty"`
	ConfidenceScore     *float64   `json:"confidence_score,omitempty"`
	ConfidenceLevel     string     `json:"confidence_level,omitempty"`

	// Lifecycle flags
	IsStreaming bool `json:"-"`
	IsError     bool `json:"is_error,omitempty"`

	// Performance metrics (for assistant messages)
	TTFT          time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`
	TokensPerSec  float64       `json:"tokens_per_sec,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantPlaceholder creates the empty assistant message that a query
// streams into. Content stays empty until tokens arrive.
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:          generateID(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// =============================================================================
// MESSAGE PATCH
// =============================================================================

// MessagePatch is a partial update applied to an existing message. Nil
// fields are left untouched, so callers patch only what changed.
type MessagePatch struct {
	Content             *string
	AppendContent       *string
	Citations           *[]Citation
	UsedCitationIndices *[]int
	ConfidenceScore     **float64
	ConfidenceLevel     *string
	IsStreaming         *bool
	IsError             *bool
	TTFT                *time.Duration
	TotalDuration       *time.Duration
	TokensPerSec        *float64
}

// Apply writes the patch onto the message.
func (p MessagePatch) Apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.AppendContent != nil {
		m.Content += *p.AppendContent
	}
	if p.Citations != nil {
		m.Citations = *p.Citations
	}
	if p.UsedCitationIndices != nil {
		m.UsedCitationIndices = *p.UsedCitationIndices
	}
	if p.ConfidenceScore != nil {
		m.ConfidenceScore = *p.ConfidenceScore
	}
	if p.ConfidenceLevel != nil {
		m.ConfidenceLevel = *p.ConfidenceLevel
	}
	if p.IsStreaming != nil {
		m.IsStreaming = *p.IsStreaming
	}
	if p.IsError != nil {
		m.IsError = *p.IsError
	}
	if p.TTFT != nil {
		m.TTFT = *p.TTFT
	}
	if p.TotalDuration != nil {
		m.TotalDuration = *p.TotalDuration
	}
	if p.TokensPerSec != nil {
		m.TokensPerSec = *p.TokensPerSec
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Clone returns a copy of the message with its own citation slices, so
// snapshots handed to readers cannot alias store-owned state.
func (m *Message) Clone() *Message {
	c := *m
	if m.Citations != nil {
		c.Citations = make([]Citation, len(m.Citations))
		copy(c.Citations, m.Citations)
	}
	if m.UsedCitationIndices != nil {
		c.UsedCitationIndices = make([]int, len(m.UsedCitationIndices))
		copy(c.UsedCitationIndices, m.UsedCitationIndices)
	}
	if m.ConfidenceScore != nil {
		v := *m.ConfidenceScore
		c.ConfidenceScore = &v
	}
	return &c
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}

// NewID returns a fresh message ID for turns that arrive without one.
func NewID() string {
	return generateID()
}
