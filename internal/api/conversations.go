// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// CONVERSATION WIRE TYPES
// =============================================================================

// WireMessage is one stored turn as the server returns it.
type WireMessage struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Citations []model.Citation `json:"citations,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// ConversationDetail is a conversation with its full message history.
type ConversationDetail struct {
	model.ConversationMeta
	Messages []WireMessage `json:"messages"`
}

// ConversationPatch is a partial server-side conversation update.
type ConversationPatch struct {
	Title *string `json:"title,omitempty"`
}

type createConversationRequest struct {
	Title string `json:"title,omitempty"`
}

type listConversationsResponse struct {
	Conversations []model.ConversationMeta `json:"conversations"`
	Total         int                      `json:"total"`
}

// =============================================================================
// CONVERSATION CRUD
// =============================================================================

// CreateConversation creates a conversation on the server, optionally with
// an initial title.
func (c *Client) CreateConversation(ctx context.Context, title string) (*model.ConversationMeta, error) {
	var meta model.ConversationMeta
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/conversations",
		createConversationRequest{Title: title}, &meta)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetConversation fetches a conversation and its full message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var detail ConversationDetail
	err := c.doJSON(ctx, http.MethodGet,
		"/api/v1/conversations/"+url.PathEscape(id), nil, &detail)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListConversations returns a page of conversation summaries, newest first.
func (c *Client) ListConversations(ctx context.Context, skip, limit int) ([]model.ConversationMeta, error) {
	var resp listConversationsResponse
	path := fmt.Sprintf("/api/v1/conversations?skip=%d&limit=%d", skip, limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// UpdateConversation applies a partial update (rename) on the server.
func (c *Client) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (*model.ConversationMeta, error) {
	var meta model.ConversationMeta
	err := c.doJSON(ctx, http.MethodPut,
		"/api/v1/conversations/"+url.PathEscape(id), patch, &meta)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// DeleteConversation deletes a conversation on the server.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete,
		"/api/v1/conversations/"+url.PathEscape(id), nil, nil)
}
