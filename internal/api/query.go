// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// QUERY TYPES
// =============================================================================

// QueryRequest is the request body shared by the one-shot and streaming
// query endpoints.
type QueryRequest struct {
	Query          string  `json:"query"`
	ConversationID string  `json:"conversation_id,omitempty"`
	MaxSources     int     `json:"max_sources,omitempty"`
	IncludeImages  bool    `json:"include_images"`
	IncludeGraph   bool    `json:"include_graph"`
	MinSimilarity  float64 `json:"min_similarity,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
}

// QueryResponse is the one-shot answer with its retrieval grounding.
type QueryResponse struct {
	Answer              string           `json:"answer"`
	Citations           []model.Citation `json:"citations"`
	UsedCitationIndices []int            `json:"used_citation_indices"`
	ConfidenceScore     *float64         `json:"confidence_score,omitempty"`
	ConfidenceLevel     string           `json:"confidence_level,omitempty"`
	ConversationID      string           `json:"conversation_id,omitempty"`
	RetrievalMetadata   map[string]any   `json:"retrieval_metadata,omitempty"`
}

// =============================================================================
// ONE-SHOT QUERY
// =============================================================================

// Query runs a retrieval-augmented query and waits for the complete
// answer. Used when streaming is disabled.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
