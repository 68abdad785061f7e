// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
)

// Error variables for common server errors.
var (
	// ErrNotConfigured indicates the bearer token is not set.
	ErrNotConfigured = errors.New("API token not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired token).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrConversationNotFound indicates the conversation does not exist on
	// the server.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrStreamFailed indicates the server reported a fatal mid-stream
	// failure via an error frame.
	ErrStreamFailed = errors.New("stream failed")
)

// APIError represents an error response from the Lorebook server.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("lorebook error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("lorebook error (HTTP %d): %s", e.Status, e.Message)
}
