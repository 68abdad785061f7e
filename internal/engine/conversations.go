// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeranaias/lorebook-cli/internal/api"
	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// CreateConversation creates a conversation on the server and switches the
// store to it, clearing the message list. On failure the store is left
// exactly as it was, apart from the recorded error.
func (e *Engine) CreateConversation(ctx context.Context, title string) (*model.ConversationMeta, error) {
	meta, err := e.client.CreateConversation(ctx, title)
	if err != nil {
		e.store.SetError(err)
		return nil, err
	}
	e.store.Load(meta.ID, nil)
	return meta, nil
}

// LoadConversation fetches the full history for a conversation and adopts
// it: the store's conversation ID and message list are replaced in one
// atomic update, never partially.
func (e *Engine) LoadConversation(ctx context.Context, id string) error {
	e.store.SetLoading(true)
	defer e.store.SetLoading(false)

	detail, err := e.client.GetConversation(ctx, id)
	if err != nil {
		e.store.SetError(err)
		return err
	}

	msgs := mapWireMessages(detail.Messages)
	e.store.Load(detail.ID, msgs)

	if e.history != nil {
		if err := e.history.Put(detail.ConversationMeta, msgs); err != nil {
			e.logger.Warn("history cache write failed", zap.Error(err))
		}
	}
	return nil
}

// ListConversations returns a page of conversation summaries, coordinated
// through the fetch guard. A suppressed attempt returns an empty list and
// no error. The store is not touched except to record a failure.
func (e *Engine) ListConversations(ctx context.Context, skip, limit int, force bool) ([]model.ConversationMeta, error) {
	if !e.guard.Attempt(force) {
		return nil, nil
	}
	defer e.guard.Done()

	list, err := e.client.ListConversations(ctx, skip, limit)
	if err != nil {
		e.store.SetError(err)
		return nil, err
	}
	return list, nil
}

// RenameConversation renames a conversation on the server. The caller is
// responsible for refreshing any cached list.
func (e *Engine) RenameConversation(ctx context.Context, id, title string) (*model.ConversationMeta, error) {
	meta, err := e.client.UpdateConversation(ctx, id, api.ConversationPatch{Title: &title})
	if err != nil {
		e.store.SetError(err)
		return nil, err
	}
	return meta, nil
}

// DeleteConversation deletes a conversation on the server. Deleting the
// active conversation also resets the store, so the user is not left
// staring at a deleted conversation's remnants; deleting any other
// conversation leaves the store untouched.
func (e *Engine) DeleteConversation(ctx context.Context, id string) error {
	if err := e.client.DeleteConversation(ctx, id); err != nil {
		e.store.SetError(err)
		return err
	}

	if e.store.ConversationID() == id {
		e.store.Load("", nil)
	}
	if e.history != nil {
		if err := e.history.Delete(id); err != nil {
			e.logger.Warn("history cache delete failed", zap.Error(err))
		}
	}
	return nil
}

// mapWireMessages converts stored turns into domain messages. Citations
// default to an empty list so panels can range over them unconditionally.
func mapWireMessages(wire []api.WireMessage) []*model.Message {
	msgs := make([]*model.Message, 0, len(wire))
	for _, wm := range wire {
		m := &model.Message{
			ID:        wm.ID,
			Role:      model.ParseRole(wm.Role),
			Content:   wm.Content,
			Citations: wm.Citations,
			Timestamp: wm.CreatedAt,
		}
		if m.ID == "" {
			m.ID = model.NewID()
		}
		if m.Citations == nil {
			m.Citations = []model.Citation{}
		}
		msgs = append(msgs, m)
	}
	return msgs
}
