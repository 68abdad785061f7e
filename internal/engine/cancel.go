// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL MANAGER
// =============================================================================

// cancelManager guards the cancel function of the in-flight stream. At
// most one stream runs at a time; Cancel from another goroutine races
// only against set/clear, never against the stream body itself.
type cancelManager struct {
	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// set installs the cancel function for a newly started stream.
func (c *cancelManager) set(fn context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFunc = fn
}

// cancel aborts the in-flight stream, if any.
func (c *cancelManager) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
}

// clear drops the stored cancel function without invoking it.
func (c *cancelManager) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFunc = nil
}
