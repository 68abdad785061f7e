// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine runs queries and keeps the conversation store consistent.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/lorebook-cli/internal/api"
	"github.com/jeranaias/lorebook-cli/internal/guard"
	"github.com/jeranaias/lorebook-cli/internal/history"
	"github.com/jeranaias/lorebook-cli/internal/model"
	"github.com/jeranaias/lorebook-cli/internal/store"
)

// CancelMarker is appended to the partial answer when the user stops a
// stream mid-flight.
const CancelMarker = "\n\n*Response stopped by user.*"

// Error variables for engine preconditions.
var (
	// ErrEmptyQuery indicates the query was empty after trimming.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrStreamActive indicates a query was issued while an earlier
	// answer is still streaming. Streams are never queued or superseded;
	// the caller retries after the active one finishes or is cancelled.
	ErrStreamActive = errors.New("a query is already streaming")
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings are the per-query retrieval knobs.
type Settings struct {
	Streaming     bool
	MaxSources    int
	MinSimilarity float64
	IncludeImages bool
	IncludeGraph  bool
	Temperature   float64
}

// DefaultSettings returns the retrieval defaults.
func DefaultSettings() Settings {
	return Settings{
		Streaming:     true,
		MaxSources:    5,
		MinSimilarity: 0.35,
		Temperature:   0.2,
	}
}

// SettingsSource supplies the settings in effect for each new query, so
// a config reload applies to the next query without rebuilding the engine.
type SettingsSource func() Settings

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates queries against the store: it appends the optimistic
// messages, drives the stream, and guarantees that every placeholder is
// finalized on every return path.
type Engine struct {
	store    *store.Store
	client   *api.Client
	guard    *guard.FetchGuard
	settings SettingsSource
	logger   *zap.Logger
	history  *history.Cache

	cancel cancelManager
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHistory attaches a local history cache, updated on conversation
// load and delete.
func WithHistory(cache *history.Cache) Option {
	return func(e *Engine) {
		e.history = cache
	}
}

// New creates an engine. The guard is shared process-wide and injected so
// every caller that lists conversations coordinates through the same gate.
func New(st *store.Store, client *api.Client, g *guard.FetchGuard, settings SettingsSource, opts ...Option) *Engine {
	if settings == nil {
		settings = DefaultSettings
	}
	e := &Engine{
		store:    st,
		client:   client,
		guard:    g,
		settings: settings,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cancel aborts the in-flight stream, if any. The read loop observes the
// abort at its next frame read; the partial answer is kept and marked.
func (e *Engine) Cancel() {
	e.cancel.cancel()
}

// =============================================================================
// ASK
// =============================================================================

// Ask sends a query and streams the answer into the store. When the
// streaming setting is off it falls through to the one-shot path.
//
// Exactly one user message and one assistant message are appended per
// call, and the assistant message's IsStreaming flag is false on every
// return path. Cancellation is not an error.
func (e *Engine) Ask(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}
	if !e.client.IsConfigured() {
		return api.ErrNotConfigured
	}
	if e.store.IsStreaming() {
		return ErrStreamActive
	}

	settings := e.settings()
	if !settings.Streaming {
		return e.askSync(ctx, query, settings)
	}

	e.store.SetError(nil)
	e.store.SetLoading(true)
	e.store.SetStreaming(true)
	e.store.AddMessage(model.NewUserMessage(query))

	placeholder := model.NewAssistantPlaceholder()
	e.store.AddMessage(placeholder)

	return e.streamInto(ctx, placeholder.ID, query, settings)
}

// askSync runs the one-shot path: the assistant message is appended only
// once the full answer is available, so no partial-content mutation ever
// happens.
func (e *Engine) askSync(ctx context.Context, query string, settings Settings) error {
	e.store.SetError(nil)
	e.store.SetLoading(true)
	e.store.SetStreaming(true)
	e.store.AddMessage(model.NewUserMessage(query))

	resp, err := e.client.Query(ctx, e.buildRequest(query, settings))
	if err != nil {
		msg := model.NewMessage(model.RoleAssistant, err.Error())
		msg.IsError = true
		e.store.AddMessage(msg)
		e.failStore(err)
		return err
	}

	msg := model.NewMessage(model.RoleAssistant, resp.Answer)
	msg.Citations = resp.Citations
	msg.UsedCitationIndices = resp.UsedCitationIndices
	msg.ConfidenceScore = resp.ConfidenceScore
	msg.ConfidenceLevel = resp.ConfidenceLevel
	e.store.AddMessage(msg)

	e.adoptConversation(resp.ConversationID)
	e.commitCitations(resp.Citations)
	e.settle()
	return nil
}

// =============================================================================
// STREAM DRIVING
// =============================================================================

// buildRequest assembles the wire request for a query.
func (e *Engine) buildRequest(query string, settings Settings) api.QueryRequest {
	return api.QueryRequest{
		Query:          query,
		ConversationID: e.store.ConversationID(),
		MaxSources:     settings.MaxSources,
		IncludeImages:  settings.IncludeImages,
		IncludeGraph:   settings.IncludeGraph,
		MinSimilarity:  settings.MinSimilarity,
		Temperature:    settings.Temperature,
	}
}

// streamInto drives one stream against the message with the given ID,
// which must already be in the store with IsStreaming=true. Shared by Ask
// and Regenerate.
func (e *Engine) streamInto(ctx context.Context, targetID, query string, settings Settings) error {
	streamCtx, cancelFn := context.WithCancel(ctx)
	e.cancel.set(cancelFn)
	defer func() {
		e.cancel.clear()
		cancelFn()
	}()

	start := time.Now()
	state := EngineState{ConversationID: e.store.ConversationID()}

	err := e.client.QueryStream(streamCtx, e.buildRequest(query, settings), func(ev api.StreamEvent) {
		state = Reduce(state, ev)
		switch ev.(type) {
		case api.TokenEvent:
			// The only high-frequency mutation: patch content in place.
			e.store.UpdateMessage(targetID, model.MessagePatch{Content: &state.Answer})
		case api.MetadataEvent:
			e.adoptConversation(state.ConversationID)
		}
	})

	switch {
	case err == nil:
		e.finalizeDone(targetID, state, time.Since(start))
		return nil
	case errors.Is(err, context.Canceled):
		// The single finalization site for user cancellation.
		e.finalizeCancel(targetID, state)
		return nil
	default:
		e.finalizeError(targetID, err)
		return err
	}
}

// =============================================================================
// FINALIZATION
// =============================================================================

// finalizeDone commits the completed answer and its grounding in one
// patch, then updates the citation panel state.
func (e *Engine) finalizeDone(targetID string, state EngineState, elapsed time.Duration) {
	notStreaming := false
	notError := false
	citations := state.Citations
	if citations == nil {
		citations = []model.Citation{}
	}
	indices := state.UsedCitationIndices
	if indices == nil {
		indices = []int{}
	}
	total := elapsed

	e.store.UpdateMessage(targetID, model.MessagePatch{
		Content:             &state.Answer,
		Citations:           &citations,
		UsedCitationIndices: &indices,
		ConfidenceScore:     &state.ConfidenceScore,
		ConfidenceLevel:     &state.ConfidenceLevel,
		IsStreaming:         &notStreaming,
		IsError:             &notError,
		TotalDuration:       &total,
	})

	e.commitCitations(state.Citations)
	e.settle()
}

// finalizeCancel keeps the partial answer, appends the cancellation
// marker, and clears the streaming flag. Cancellation is a distinct
// terminal state, not an error.
func (e *Engine) finalizeCancel(targetID string, state EngineState) {
	content := state.Answer + CancelMarker
	notStreaming := false
	e.store.UpdateMessage(targetID, model.MessagePatch{
		Content:     &content,
		IsStreaming: &notStreaming,
	})
	e.settle()
}

// finalizeError replaces the placeholder content with the failure reason
// and flags both the message and the store.
func (e *Engine) finalizeError(targetID string, err error) {
	content := err.Error()
	notStreaming := false
	isError := true
	e.store.UpdateMessage(targetID, model.MessagePatch{
		Content:     &content,
		IsStreaming: &notStreaming,
		IsError:     &isError,
	})
	e.failStore(err)
}

// commitCitations publishes a non-empty citation set to the sources panel
// and selects the top citation for preview. An empty set leaves both
// panels untouched.
func (e *Engine) commitCitations(citations []model.Citation) {
	if len(citations) == 0 {
		return
	}
	e.store.SetActiveCitations(citations)
	e.store.SetPreview(model.PreviewFromCitation(citations[0]))
}

// adoptConversation records the server-resolved conversation ID. This is
// the single path by which a server-created conversation becomes known.
func (e *Engine) adoptConversation(id string) {
	if id != "" && id != e.store.ConversationID() {
		e.store.SetConversation(id)
	}
}

// settle clears the transient flags after a terminal outcome.
func (e *Engine) settle() {
	e.store.SetLoading(false)
	e.store.SetStreaming(false)
}

// failStore records the failure and clears the transient flags.
func (e *Engine) failStore(err error) {
	e.logger.Warn("query failed", zap.Error(err))
	e.store.SetError(err)
	e.settle()
}
