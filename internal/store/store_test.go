// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// MUTATOR TESTS
// =============================================================================

func TestStore_AddAndUpdateMessage(t *testing.T) {
	s := New()
	msg := model.NewAssistantPlaceholder()
	s.AddMessage(msg)

	tok := "hi"
	ok := s.UpdateMessage(msg.ID, model.MessagePatch{AppendContent: &tok})
	require.True(t, ok)

	got, idx := s.MessageByID(msg.ID)
	require.NotNil(t, got)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "hi", got.Content)
}

func TestStore_UpdateUnknownIDIsNoop(t *testing.T) {
	s := New()
	s.AddMessage(model.NewUserMessage("q"))

	tok := "x"
	ok := s.UpdateMessage("msg_missing", model.MessagePatch{AppendContent: &tok})

	assert.False(t, ok)
	assert.Equal(t, "q", s.Snapshot().Messages[0].Content)
}

func TestStore_LoadReplacesAtomically(t *testing.T) {
	s := New()
	s.SetConversation("old")
	s.AddMessage(model.NewUserMessage("stale"))
	s.SetError(errors.New("stale error"))
	s.SetPreview(&model.PreviewItem{ID: "p"})

	msgs := []*model.Message{model.NewUserMessage("a"), model.NewMessage(model.RoleAssistant, "b")}
	s.Load("conv-2", msgs)

	snap := s.Snapshot()
	assert.Equal(t, "conv-2", snap.ConversationID)
	require.Len(t, snap.Messages, 2)
	assert.NoError(t, snap.Err)
	assert.Nil(t, snap.Preview)
	assert.Empty(t, snap.ActiveCitations)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := New()
	msg := model.NewUserMessage("original")
	s.AddMessage(msg)
	s.SetActiveCitations([]model.Citation{{SourceID: "c1"}})

	snap := s.Snapshot()
	snap.Messages[0].Content = "mutated"
	snap.ActiveCitations[0].SourceID = "mutated"

	fresh := s.Snapshot()
	assert.Equal(t, "original", fresh.Messages[0].Content)
	assert.Equal(t, "c1", fresh.ActiveCitations[0].SourceID)
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestStore_SubscribePublishesOnMutation(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.SetStreaming(true)

	select {
	case snap := <-ch:
		assert.True(t, snap.IsStreaming)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestStore_SlowSubscriberDoesNotBlockWriter(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			s.AddMessage(model.NewUserMessage("m"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked on a slow subscriber")
	}
}

func TestStore_CancelClosesChannel(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
}

// =============================================================================
// CONCURRENCY REGRESSION
// =============================================================================

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	s := New()
	msg := model.NewAssistantPlaceholder()
	s.AddMessage(msg)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		tok := "t"
		for i := 0; i < 500; i++ {
			s.UpdateMessage(msg.ID, model.MessagePatch{AppendContent: &tok})
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = s.Snapshot()
					_ = s.IsStreaming()
				}
			}
		}()
	}

	wg.Wait()
	got, _ := s.MessageByID(msg.ID)
	require.NotNil(t, got)
	assert.Len(t, got.Content, 500)
}
