// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package guard deduplicates conversation-list fetches.
package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCooldown is the minimum spacing between completed list fetches.
const DefaultCooldown = 5 * time.Second

// =============================================================================
// FETCH GUARD
// =============================================================================

// FetchGuard suppresses redundant fetches of the conversation list. At
// most one fetch runs at a time, and after one completes the next
// non-forced attempt is suppressed until the cooldown elapses. The guard
// is a process-wide service: construct one instance and inject it
// everywhere the list is refreshed.
type FetchGuard struct {
	mu            sync.Mutex
	inFlight      bool
	lastCompleted time.Time

	// limiter holds the cooldown clock: one token, refilled over the
	// cooldown window. Done consumes the token, so the window is
	// measured from completion rather than from the attempt.
	limiter *rate.Limiter
}

// New creates a guard with the given cooldown. A non-positive cooldown
// falls back to DefaultCooldown.
func New(cooldown time.Duration) *FetchGuard {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &FetchGuard{
		limiter: rate.NewLimiter(rate.Every(cooldown), 1),
	}
}

// Attempt reports whether a fetch may proceed and, when it may, marks the
// guard in-flight. force bypasses the cooldown but never the in-flight
// check. Callers that get true MUST call Done when the fetch finishes,
// normally via defer, so an error path cannot wedge the guard.
func (g *FetchGuard) Attempt(force bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return false
	}
	if !force && g.limiter.Tokens() < 1 {
		return false
	}
	g.inFlight = true
	return true
}

// Done marks the in-flight fetch finished and restarts the cooldown. Safe
// to call when nothing is in flight.
func (g *FetchGuard) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inFlight {
		return
	}
	g.inFlight = false
	g.lastCompleted = time.Now()
	g.limiter.AllowN(g.lastCompleted, 1)
}

// InFlight reports whether a fetch is currently running.
func (g *FetchGuard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// LastCompleted returns when the most recent fetch finished (zero when
// none has).
func (g *FetchGuard) LastCompleted() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastCompleted
}
