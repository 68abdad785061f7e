// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// =============================================================================
// SOURCE TYPES
// =============================================================================

// SourceType identifies what kind of knowledge-base artifact a citation
// points at. The set is open: the server may introduce new kinds, and
// clients must carry unknown values through untouched.
type SourceType string

const (
	SourceNote             SourceType = "note"
	SourceChunk            SourceType = "chunk"
	SourceImage            SourceType = "image"
	SourceImageAnalysis    SourceType = "image_analysis"
	SourceDocumentAnalysis SourceType = "document_analysis"
)

// =============================================================================
// CITATION TYPE
// =============================================================================

// Citation is a single retrieval source that grounded an assistant answer.
type Citation struct {
	SourceType       SourceType `json:"source_type"`
	SourceID         string     `json:"source_id"`
	Title            string     `json:"title"`
	RelevanceScore   float64    `json:"relevance_score"`
	RetrievalMethod  string     `json:"retrieval_method,omitempty"`
	OriginType       string     `json:"origin_type,omitempty"`
	ArtifactID       string     `json:"artifact_id,omitempty"`
	ArtifactFilename string     `json:"artifact_filename,omitempty"`
}

// UnmarshalJSON tolerates numeric source and artifact IDs. The server emits
// them as numbers for some source kinds and strings for others.
func (c *Citation) UnmarshalJSON(data []byte) error {
	type citationAlias Citation
	aux := struct {
		SourceID   any `json:"source_id"`
		ArtifactID any `json:"artifact_id"`
		*citationAlias
	}{citationAlias: (*citationAlias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.SourceID = flexID(aux.SourceID)
	c.ArtifactID = flexID(aux.ArtifactID)
	return nil
}

// flexID renders a wire identifier as a string whether it arrived as a
// JSON string or number.
func flexID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// =============================================================================
// PREVIEW SELECTION
// =============================================================================

// PreviewItem is the source currently selected for inspection in the
// side panel. It mirrors the citation it came from.
type PreviewItem struct {
	Type     string    `json:"type"`
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Citation *Citation `json:"citation,omitempty"`
}

// PreviewFromCitation builds the preview selection for a citation.
func PreviewFromCitation(c Citation) *PreviewItem {
	cc := c
	return &PreviewItem{
		Type:     string(c.SourceType),
		ID:       c.SourceID,
		Title:    c.Title,
		Citation: &cc,
	}
}
