// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/lorebook-cli/internal/api"
	"github.com/jeranaias/lorebook-cli/internal/guard"
	"github.com/jeranaias/lorebook-cli/internal/model"
	"github.com/jeranaias/lorebook-cli/internal/store"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

func fixedSettings(s Settings) SettingsSource {
	return func() Settings { return s }
}

func streamingSettings() SettingsSource {
	s := DefaultSettings()
	return fixedSettings(s)
}

func oneShotSettings() SettingsSource {
	s := DefaultSettings()
	s.Streaming = false
	return fixedSettings(s)
}

func newTestEngine(t *testing.T, handler http.Handler, settings SettingsSource) (*Engine, *store.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	st := store.New()
	client := api.NewClient(server.URL, "test-token")
	return New(st, client, guard.New(time.Hour), settings), st
}

// sseHandler streams the given frames on the streaming query endpoint.
func sseHandler(frames ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	})
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================
// STREAMING ASK TESTS
// =============================================================================

func TestAsk_StreamingSuccess(t *testing.T) {
	e, st := newTestEngine(t, sseHandler(
		`{"type":"token","content":"You have "}`,
		`{"type":"token","content":"3 notes."}`,
		`{"type":"citations","citations":[{"source_type":"note","source_id":7,"title":"Trip","relevance_score":0.9}],"used_citation_indices":[0]}`,
		`{"type":"metadata","conversation_id":"conv-42","confidence_level":"high"}`,
		`{"type":"done"}`,
	), streamingSettings())

	if err := e.Ask(context.Background(), "What are my notes about?"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Messages))
	}
	user, assistant := snap.Messages[0], snap.Messages[1]
	if user.Role != model.RoleUser || user.Content != "What are my notes about?" {
		t.Errorf("user message = %+v", user)
	}
	if assistant.Role != model.RoleAssistant {
		t.Errorf("assistant role = %q", assistant.Role)
	}
	if assistant.Content != "You have 3 notes." {
		t.Errorf("assistant content = %q, want token concatenation", assistant.Content)
	}
	if assistant.IsStreaming {
		t.Error("assistant message left streaming after done")
	}
	if assistant.ConfidenceLevel != "high" {
		t.Errorf("ConfidenceLevel = %q", assistant.ConfidenceLevel)
	}
	if len(assistant.Citations) != 1 || len(assistant.UsedCitationIndices) != 1 {
		t.Errorf("citations = %+v, indices = %+v", assistant.Citations, assistant.UsedCitationIndices)
	}

	if snap.ConversationID != "conv-42" {
		t.Errorf("ConversationID = %q, want server-resolved id", snap.ConversationID)
	}
	if len(snap.ActiveCitations) != 1 {
		t.Errorf("ActiveCitations = %+v", snap.ActiveCitations)
	}
	if snap.Preview == nil || snap.Preview.ID != "7" {
		t.Errorf("Preview = %+v, want first citation (id 7)", snap.Preview)
	}
	if snap.IsLoading || snap.IsStreaming {
		t.Error("loading/streaming flags must be false after completion")
	}
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil", snap.Err)
	}
}

func TestAsk_NoCitationsLeavesPanelsUntouched(t *testing.T) {
	e, st := newTestEngine(t, sseHandler(
		`{"type":"token","content":"Nothing relevant."}`,
		`{"type":"done"}`,
	), streamingSettings())

	st.SetActiveCitations([]model.Citation{{SourceID: "old"}})
	st.SetPreview(&model.PreviewItem{ID: "old"})

	if err := e.Ask(context.Background(), "anything?"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	snap := st.Snapshot()
	if len(snap.ActiveCitations) != 1 || snap.ActiveCitations[0].SourceID != "old" {
		t.Errorf("ActiveCitations = %+v, must be unchanged", snap.ActiveCitations)
	}
	if snap.Preview == nil || snap.Preview.ID != "old" {
		t.Errorf("Preview = %+v, must be unchanged", snap.Preview)
	}
	// Finalization still defaults the message's own lists to empty.
	assistant := snap.Messages[1]
	if assistant.Citations == nil || len(assistant.Citations) != 0 {
		t.Errorf("assistant citations = %#v, want empty list", assistant.Citations)
	}
}

func TestAsk_Preconditions(t *testing.T) {
	e, st := newTestEngine(t, sseHandler(`{"type":"done"}`), streamingSettings())

	if err := e.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query error = %v, want ErrEmptyQuery", err)
	}
	if len(st.Snapshot().Messages) != 0 {
		t.Error("rejected query must not append messages")
	}

	st.SetStreaming(true)
	if err := e.Ask(context.Background(), "q"); !errors.Is(err, ErrStreamActive) {
		t.Errorf("error = %v, want ErrStreamActive while streaming", err)
	}
	st.SetStreaming(false)

	unconfigured := New(store.New(), api.NewClient("http://localhost:1", ""), guard.New(0), streamingSettings())
	if err := unconfigured.Ask(context.Background(), "q"); !errors.Is(err, api.ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestAsk_ErrorFrameFinalizesAsError(t *testing.T) {
	e, st := newTestEngine(t, sseHandler(
		`{"type":"token","content":"partial"}`,
		`{"type":"error","error":"vector index unavailable"}`,
	), streamingSettings())

	err := e.Ask(context.Background(), "q")
	if !errors.Is(err, api.ErrStreamFailed) {
		t.Fatalf("Ask error = %v, want ErrStreamFailed", err)
	}

	snap := st.Snapshot()
	assistant := snap.Messages[1]
	if assistant.IsStreaming {
		t.Error("assistant message left streaming after error")
	}
	if !assistant.IsError {
		t.Error("assistant message should be error-flagged")
	}
	if !strings.Contains(assistant.Content, "vector index unavailable") {
		t.Errorf("content = %q, want the failure reason", assistant.Content)
	}
	if snap.Err == nil {
		t.Error("store error should be set")
	}
	if snap.IsLoading || snap.IsStreaming {
		t.Error("flags must be cleared on the error path")
	}
}

func TestAsk_Non2xxFinalizesAsError(t *testing.T) {
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"expired token"}`))
	}), streamingSettings())

	err := e.Ask(context.Background(), "q")
	if !errors.Is(err, api.ErrAuthFailed) {
		t.Fatalf("Ask error = %v, want ErrAuthFailed", err)
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want user + error-flagged assistant", len(snap.Messages))
	}
	if !snap.Messages[1].IsError || snap.Messages[1].IsStreaming {
		t.Errorf("assistant = %+v, want finalized error message", snap.Messages[1])
	}
}

func TestAsk_CancelKeepsPartialWithMarker(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"token\",\"content\":\"You have \"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"token\",\"content\":\"3 \"}\n\n")
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	e, st := newTestEngine(t, handler, streamingSettings())
	defer close(release)

	result := make(chan error, 1)
	go func() {
		result <- e.Ask(context.Background(), "q")
	}()

	waitFor(t, func() bool {
		snap := st.Snapshot()
		return len(snap.Messages) == 2 && snap.Messages[1].Content == "You have 3 "
	}, "partial tokens to land")

	e.Cancel()

	var err error
	select {
	case err = <-result:
	case <-time.After(5 * time.Second):
		t.Fatal("Ask did not return after cancel")
	}
	if err != nil {
		t.Fatalf("cancellation must not be an error, got %v", err)
	}

	snap := st.Snapshot()
	assistant := snap.Messages[1]
	if assistant.Content != "You have 3 "+CancelMarker {
		t.Errorf("content = %q, want partial answer plus marker", assistant.Content)
	}
	if assistant.IsStreaming || assistant.IsError {
		t.Errorf("assistant flags = streaming:%v error:%v, want both false", assistant.IsStreaming, assistant.IsError)
	}
	if snap.IsLoading || snap.IsStreaming {
		t.Error("store flags must be cleared after cancel")
	}
	if snap.Err != nil {
		t.Errorf("store error = %v, cancellation is not an error", snap.Err)
	}
}

// =============================================================================
// ONE-SHOT ASK TESTS
// =============================================================================

func TestAskSync_ExampleScenario(t *testing.T) {
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			t.Errorf("path = %q, the one-shot path must not hit the stream endpoint", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"answer": "You have 3 notes.",
			"citations": [{"source_type":"note","source_id":7,"title":"Trip","relevance_score":0.9}],
			"confidence_level": "high"
		}`))
	}), oneShotSettings())

	if err := e.Ask(context.Background(), "What are my notes about?"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Messages))
	}
	assistant := snap.Messages[1]
	if assistant.Content != "You have 3 notes." || assistant.IsStreaming {
		t.Errorf("assistant = %+v", assistant)
	}
	if assistant.ConfidenceLevel != "high" {
		t.Errorf("ConfidenceLevel = %q", assistant.ConfidenceLevel)
	}
	if len(snap.ActiveCitations) != 1 {
		t.Errorf("ActiveCitations = %+v, want 1", snap.ActiveCitations)
	}
	if snap.Preview == nil || snap.Preview.ID != "7" {
		t.Errorf("Preview = %+v, want id 7", snap.Preview)
	}
	if snap.IsLoading || snap.IsStreaming {
		t.Error("flags must be false after one-shot completion")
	}
}

func TestAskSync_FailureAppendsErrorMessage(t *testing.T) {
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"retrieval backend down"}}`))
	}), oneShotSettings())

	err := e.Ask(context.Background(), "q")
	if err == nil {
		t.Fatal("Ask should fail")
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want user + error message", len(snap.Messages))
	}
	if !snap.Messages[1].IsError || snap.Messages[1].IsStreaming {
		t.Errorf("assistant = %+v", snap.Messages[1])
	}
	if snap.Err == nil {
		t.Error("store error should be set")
	}
}

// =============================================================================
// REGENERATION TESTS
// =============================================================================

func seedConversation(st *store.Store) (userID, assistantID string) {
	user := model.NewUserMessage("What are my notes about?")
	assistant := model.NewMessage(model.RoleAssistant, "Old answer.")
	st.AddMessage(user)
	st.AddMessage(assistant)
	return user.ID, assistant.ID
}

func TestRegenerate_ReplacesInPlace(t *testing.T) {
	e, st := newTestEngine(t, sseHandler(
		`{"type":"token","content":"New answer."}`,
		`{"type":"done"}`,
	), streamingSettings())

	_, assistantID := seedConversation(st)

	if err := e.Regenerate(context.Background(), assistantID); err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, regeneration must not append", len(snap.Messages))
	}
	assistant := snap.Messages[1]
	if assistant.ID != assistantID {
		t.Error("regeneration must keep the message identity")
	}
	if assistant.Content != "New answer." || assistant.IsStreaming || assistant.IsError {
		t.Errorf("assistant = %+v", assistant)
	}
}

func TestRegenerate_FirstMessageIsNoop(t *testing.T) {
	var calls atomic.Int32
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), streamingSettings())

	orphan := model.NewMessage(model.RoleAssistant, "I came first.")
	st.AddMessage(orphan)

	if err := e.Regenerate(context.Background(), orphan.ID); err != nil {
		t.Fatalf("no-op regenerate returned %v", err)
	}

	snap := st.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Content != "I came first." {
		t.Errorf("messages = %+v, must be unchanged", snap.Messages)
	}
	if calls.Load() != 0 {
		t.Error("precondition violation must not reach the network")
	}
}

func TestRegenerate_NoPrecedingUserTurnIsNoop(t *testing.T) {
	var calls atomic.Int32
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), streamingSettings())

	st.AddMessage(model.NewMessage(model.RoleAssistant, "first"))
	second := model.NewMessage(model.RoleAssistant, "second")
	st.AddMessage(second)

	if err := e.Regenerate(context.Background(), second.ID); err != nil {
		t.Fatalf("no-op regenerate returned %v", err)
	}
	if calls.Load() != 0 {
		t.Error("regenerate without a preceding user turn must be a no-op")
	}

	if err := e.Regenerate(context.Background(), "msg_unknown"); err != nil {
		t.Fatalf("unknown id regenerate returned %v", err)
	}
}

func TestRegenerate_OneShotFailureFlagsTarget(t *testing.T) {
	e, st := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}), oneShotSettings())

	_, assistantID := seedConversation(st)

	if err := e.Regenerate(context.Background(), assistantID); err == nil {
		t.Fatal("Regenerate should surface the failure")
	}

	assistant, _ := st.MessageByID(assistantID)
	if !assistant.IsError || assistant.IsStreaming {
		t.Errorf("assistant = %+v, want error-finalized in place", assistant)
	}
	if len(st.Snapshot().Messages) != 2 {
		t.Error("failure must not change the message count")
	}
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func conversationBackend(t *testing.T, listCalls *atomic.Int32) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/conversations":
			w.Write([]byte(`{"id":"conv-new","title":"Fresh"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/conversations":
			listCalls.Add(1)
			w.Write([]byte(`{"conversations":[{"id":"conv-1","title":"One"}],"total":1}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/conversations/"):
			w.Write([]byte(`{"id":"conv-1","title":"One","messages":[
				{"id":"m1","role":"user","content":"hi"},
				{"id":"m2","role":"assistant","content":"hello"},
				{"id":"m3","role":"tool","content":"odd role"}
			]}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPut:
			w.Write([]byte(`{"id":"conv-1","title":"Renamed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newLifecycleEngine(t *testing.T, cooldown time.Duration, listCalls *atomic.Int32) (*Engine, *store.Store) {
	t.Helper()
	server := httptest.NewServer(conversationBackend(t, listCalls))
	t.Cleanup(server.Close)

	st := store.New()
	client := api.NewClient(server.URL, "test-token")
	return New(st, client, guard.New(cooldown), streamingSettings()), st
}

func TestCreateConversation_AdoptsIDAndClearsMessages(t *testing.T) {
	var listCalls atomic.Int32
	e, st := newLifecycleEngine(t, time.Hour, &listCalls)

	st.AddMessage(model.NewUserMessage("stale"))

	meta, err := e.CreateConversation(context.Background(), "Fresh")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if meta.ID != "conv-new" {
		t.Errorf("meta = %+v", meta)
	}

	snap := st.Snapshot()
	if snap.ConversationID != "conv-new" || len(snap.Messages) != 0 {
		t.Errorf("store = id %q, %d messages; want adopted id and cleared list", snap.ConversationID, len(snap.Messages))
	}
}

func TestLoadConversation_MapsRolesAndIsIdempotent(t *testing.T) {
	var listCalls atomic.Int32
	e, st := newLifecycleEngine(t, time.Hour, &listCalls)

	if err := e.LoadConversation(context.Background(), "conv-1"); err != nil {
		t.Fatalf("LoadConversation failed: %v", err)
	}

	first := st.Snapshot()
	if first.ConversationID != "conv-1" || len(first.Messages) != 3 {
		t.Fatalf("store = id %q, %d messages", first.ConversationID, len(first.Messages))
	}
	if first.Messages[0].Role != model.RoleUser || first.Messages[1].Role != model.RoleAssistant {
		t.Errorf("roles = %q, %q", first.Messages[0].Role, first.Messages[1].Role)
	}
	// Unknown wire roles map to assistant rather than dropping the turn.
	if first.Messages[2].Role != model.RoleAssistant {
		t.Errorf("unknown role mapped to %q", first.Messages[2].Role)
	}
	if first.Messages[0].Citations == nil {
		t.Error("citations must default to an empty list")
	}

	if err := e.LoadConversation(context.Background(), "conv-1"); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	second := st.Snapshot()
	if len(second.Messages) != len(first.Messages) {
		t.Fatalf("reload changed message count: %d vs %d", len(second.Messages), len(first.Messages))
	}
	for i := range second.Messages {
		if second.Messages[i].ID != first.Messages[i].ID || second.Messages[i].Content != first.Messages[i].Content {
			t.Errorf("message %d differs across reloads", i)
		}
	}
}

func TestLoadConversation_FailureLeavesStoreUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"gone"}`))
	}))
	defer server.Close()

	st := store.New()
	st.SetConversation("keep-me")
	st.AddMessage(model.NewUserMessage("keep this too"))
	e := New(st, api.NewClient(server.URL, "test-token"), guard.New(0), streamingSettings())

	err := e.LoadConversation(context.Background(), "missing")
	if !errors.Is(err, api.ErrConversationNotFound) {
		t.Fatalf("error = %v, want ErrConversationNotFound", err)
	}

	snap := st.Snapshot()
	if snap.ConversationID != "keep-me" || len(snap.Messages) != 1 {
		t.Error("failed load must not partially mutate the store")
	}
	if snap.Err == nil {
		t.Error("failure must surface through the store error")
	}
}

func TestListConversations_GuardDeduplicates(t *testing.T) {
	var listCalls atomic.Int32
	e, _ := newLifecycleEngine(t, time.Hour, &listCalls)
	ctx := context.Background()

	list, err := e.ListConversations(ctx, 0, 20, false)
	if err != nil || len(list) != 1 {
		t.Fatalf("first list = %+v, %v", list, err)
	}

	// Within the cooldown the second call is suppressed without error.
	list, err = e.ListConversations(ctx, 0, 20, false)
	if err != nil || list != nil {
		t.Fatalf("suppressed list = %+v, %v; want nil, nil", list, err)
	}
	if listCalls.Load() != 1 {
		t.Errorf("network calls = %d, want 1", listCalls.Load())
	}

	// Force bypasses the cooldown.
	if _, err := e.ListConversations(ctx, 0, 20, true); err != nil {
		t.Fatalf("forced list failed: %v", err)
	}
	if listCalls.Load() != 2 {
		t.Errorf("network calls = %d, want 2 after force", listCalls.Load())
	}
}

func TestDeleteConversation_ClearsOnlyActive(t *testing.T) {
	var listCalls atomic.Int32
	e, st := newLifecycleEngine(t, time.Hour, &listCalls)
	ctx := context.Background()

	st.Load("conv-active", []*model.Message{model.NewUserMessage("hi")})

	if err := e.DeleteConversation(ctx, "conv-other"); err != nil {
		t.Fatalf("delete non-active failed: %v", err)
	}
	if snap := st.Snapshot(); len(snap.Messages) != 1 || snap.ConversationID != "conv-active" {
		t.Error("deleting a non-active conversation must not touch the store")
	}

	if err := e.DeleteConversation(ctx, "conv-active"); err != nil {
		t.Fatalf("delete active failed: %v", err)
	}
	if snap := st.Snapshot(); len(snap.Messages) != 0 || snap.ConversationID != "" {
		t.Error("deleting the active conversation must clear the store")
	}
}

func TestRenameConversation(t *testing.T) {
	var listCalls atomic.Int32
	e, _ := newLifecycleEngine(t, time.Hour, &listCalls)

	meta, err := e.RenameConversation(context.Background(), "conv-1", "Renamed")
	if err != nil || meta.Title != "Renamed" {
		t.Fatalf("RenameConversation = %+v, %v", meta, err)
	}
}
