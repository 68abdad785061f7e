// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"

	"github.com/jeranaias/lorebook-cli/internal/api"
	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// REGENERATION
// =============================================================================

// Regenerate reruns the query that produced the given assistant message
// and replaces the message in place. The preceding message must be a user
// turn; when it is not (including the message being first, or unknown),
// the call is a no-op. Regeneration is the user-facing retry mechanism.
func (e *Engine) Regenerate(ctx context.Context, messageID string) error {
	if !e.client.IsConfigured() {
		return api.ErrNotConfigured
	}
	if e.store.IsStreaming() {
		return ErrStreamActive
	}

	target, idx := e.store.MessageByID(messageID)
	if target == nil || target.Role != model.RoleAssistant || idx == 0 {
		return nil
	}
	preceding := e.store.MessageAt(idx - 1)
	if preceding == nil || preceding.Role != model.RoleUser {
		return nil
	}
	query := preceding.Content

	settings := e.settings()

	e.store.SetError(nil)
	e.store.SetLoading(true)
	e.store.SetStreaming(true)
	e.resetMessage(messageID)

	if settings.Streaming {
		return e.streamInto(ctx, messageID, query, settings)
	}
	return e.regenerateSync(ctx, messageID, query, settings)
}

// resetMessage returns an assistant message to the empty streaming state
// before its replacement answer arrives.
func (e *Engine) resetMessage(id string) {
	empty := ""
	noCitations := []model.Citation{}
	noIndices := []int{}
	var noScore *float64
	streaming := true
	notError := false
	e.store.UpdateMessage(id, model.MessagePatch{
		Content:             &empty,
		Citations:           &noCitations,
		UsedCitationIndices: &noIndices,
		ConfidenceScore:     &noScore,
		ConfidenceLevel:     &empty,
		IsStreaming:         &streaming,
		IsError:             &notError,
	})
}

// regenerateSync replaces the target with a one-shot answer. The target
// stays in its reset streaming state until the full response lands.
func (e *Engine) regenerateSync(ctx context.Context, targetID, query string, settings Settings) error {
	resp, err := e.client.Query(ctx, e.buildRequest(query, settings))
	if err != nil {
		e.finalizeError(targetID, err)
		return err
	}

	notStreaming := false
	citations := resp.Citations
	if citations == nil {
		citations = []model.Citation{}
	}
	indices := resp.UsedCitationIndices
	if indices == nil {
		indices = []int{}
	}
	e.store.UpdateMessage(targetID, model.MessagePatch{
		Content:             &resp.Answer,
		Citations:           &citations,
		UsedCitationIndices: &indices,
		ConfidenceScore:     &resp.ConfidenceScore,
		ConfidenceLevel:     &resp.ConfidenceLevel,
		IsStreaming:         &notStreaming,
	})

	e.adoptConversation(resp.ConversationID)
	e.commitCitations(resp.Citations)
	e.settle()
	return nil
}
