// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// STREAM EVENT UNION
// =============================================================================

// StreamEvent is one parsed frame from the streaming query endpoint. The
// union is sealed: the five variants below are the whole protocol, and
// consumers switch over them rather than over raw frame JSON.
type StreamEvent interface {
	streamEvent()
}

// TokenEvent carries the next answer fragment.
type TokenEvent struct {
	Content string
}

// CitationsEvent carries the full citation list for the answer. It arrives
// once, near the end of the stream.
type CitationsEvent struct {
	Citations           []model.Citation
	UsedCitationIndices []int
}

// MetadataEvent carries confidence metadata and, authoritatively, the
// server-resolved conversation ID.
type MetadataEvent struct {
	ConversationID  string
	ConfidenceScore *float64
	ConfidenceLevel string
}

// ErrorEvent signals a fatal mid-stream failure.
type ErrorEvent struct {
	Message string
}

// DoneEvent is the terminal marker.
type DoneEvent struct{}

func (TokenEvent) streamEvent()     {}
func (CitationsEvent) streamEvent() {}
func (MetadataEvent) streamEvent()  {}
func (ErrorEvent) streamEvent()     {}
func (DoneEvent) streamEvent()      {}

// =============================================================================
// FRAME DECODING
// =============================================================================

// streamFrame is the raw wire shape of one data: payload.
type streamFrame struct {
	Type                string           `json:"type"`
	Content             string           `json:"content,omitempty"`
	Citations           []model.Citation `json:"citations,omitempty"`
	UsedCitationIndices []int            `json:"used_citation_indices,omitempty"`
	ConversationID      string           `json:"conversation_id,omitempty"`
	ConfidenceScore     *float64         `json:"confidence_score,omitempty"`
	ConfidenceLevel     string           `json:"confidence_level,omitempty"`
	Error               string           `json:"error,omitempty"`
	Message             string           `json:"message,omitempty"`
}

// decodeFrame parses one data: payload into a typed event. Unknown type
// discriminators are an error so callers can log and skip them the same
// way as malformed JSON.
func decodeFrame(data []byte) (StreamEvent, error) {
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch frame.Type {
	case "token":
		return TokenEvent{Content: frame.Content}, nil
	case "citations":
		return CitationsEvent{
			Citations:           frame.Citations,
			UsedCitationIndices: frame.UsedCitationIndices,
		}, nil
	case "metadata":
		return MetadataEvent{
			ConversationID:  frame.ConversationID,
			ConfidenceScore: frame.ConfidenceScore,
			ConfidenceLevel: frame.ConfidenceLevel,
		}, nil
	case "error":
		msg := frame.Error
		if msg == "" {
			msg = frame.Message
		}
		return ErrorEvent{Message: msg}, nil
	case "done":
		return DoneEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}
