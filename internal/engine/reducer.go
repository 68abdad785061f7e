// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"github.com/jeranaias/lorebook-cli/internal/api"
	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// ENGINE STATE
// =============================================================================

// EngineState is the accumulated result of one streaming query. It is a
// plain value: Reduce never mutates its input, so event handling can be
// tested without a network connection or a store.
type EngineState struct {
	// Answer is the concatenation of token fragments in arrival order.
	Answer string

	// Citations and UsedCitationIndices arrive once, near the end.
	Citations           []model.Citation
	UsedCitationIndices []int

	ConfidenceScore *float64
	ConfidenceLevel string

	// ConversationID is the server-resolved conversation, authoritative
	// over whatever the request carried.
	ConversationID string

	Done          bool
	Failed        bool
	FailureReason string
}

// Reduce folds one stream event into the state.
func Reduce(s EngineState, ev api.StreamEvent) EngineState {
	switch e := ev.(type) {
	case api.TokenEvent:
		s.Answer += e.Content
	case api.CitationsEvent:
		s.Citations = e.Citations
		s.UsedCitationIndices = e.UsedCitationIndices
	case api.MetadataEvent:
		if e.ConversationID != "" {
			s.ConversationID = e.ConversationID
		}
		if e.ConfidenceScore != nil {
			s.ConfidenceScore = e.ConfidenceScore
		}
		if e.ConfidenceLevel != "" {
			s.ConfidenceLevel = e.ConfidenceLevel
		}
	case api.ErrorEvent:
		s.Failed = true
		s.FailureReason = e.Message
	case api.DoneEvent:
		s.Done = true
	}
	return s
}
