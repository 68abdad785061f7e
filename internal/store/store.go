// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable conversation state.
package store

import (
	"sync"

	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// SNAPSHOT TYPE
// =============================================================================

// Snapshot is an immutable copy of the conversation state at one point in
// time. Messages and citations are cloned, so readers can hold a snapshot
// across store mutations.
type Snapshot struct {
	ConversationID  string
	Messages        []*model.Message
	IsLoading       bool
	IsStreaming     bool
	Err             error
	ActiveCitations []model.Citation
	Preview         *model.PreviewItem
}

// LastMessage returns the newest message, or nil for an empty conversation.
func (s Snapshot) LastMessage() *model.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// =============================================================================
// STORE TYPE
// =============================================================================

// Store is the single writer for conversation state. All mutators are
// synchronous and total: they never block on subscribers and never panic
// on unknown message IDs. Every mutation publishes a fresh snapshot to
// all subscribers.
type Store struct {
	mu sync.RWMutex

	conversationID  string
	messages        []*model.Message
	isLoading       bool
	isStreaming     bool
	err             error
	activeCitations []model.Citation
	preview         *model.PreviewItem

	subs    map[int]chan Snapshot
	nextSub int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		subs: make(map[int]chan Snapshot),
	}
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// subscriberBuffer bounds how many pending snapshots a slow subscriber can
// hold before newer ones are dropped. Subscribers always converge on the
// latest state because every later mutation publishes again.
const subscriberBuffer = 16

// Subscribe registers a listener for state snapshots. The returned cancel
// function removes the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, subscriberBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publishLocked fans the current state out to subscribers. Sends are
// non-blocking: a full subscriber queue drops the update rather than
// stalling the writer. Callers must hold s.mu.
func (s *Store) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]*model.Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.Clone()
	}
	var cites []model.Citation
	if s.activeCitations != nil {
		cites = make([]model.Citation, len(s.activeCitations))
		copy(cites, s.activeCitations)
	}
	var preview *model.PreviewItem
	if s.preview != nil {
		p := *s.preview
		preview = &p
	}
	return Snapshot{
		ConversationID:  s.conversationID,
		Messages:        msgs,
		IsLoading:       s.isLoading,
		IsStreaming:     s.isStreaming,
		Err:             s.err,
		ActiveCitations: cites,
		Preview:         preview,
	}
}

// Snapshot returns a copy of the current state for pull-style readers.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// =============================================================================
// MESSAGE MUTATORS
// =============================================================================

// AddMessage appends a message to the conversation.
func (s *Store) AddMessage(msg *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.publishLocked()
}

// UpdateMessage applies a patch to the message with the given ID. Returns
// false without side effects when no such message exists.
func (s *Store) UpdateMessage(id string, patch model.MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			patch.Apply(m)
			s.publishLocked()
			return true
		}
	}
	return false
}

// SetMessages replaces the whole message list.
func (s *Store) SetMessages(msgs []*model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = msgs
	s.publishLocked()
}

// ClearMessages removes all messages.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.publishLocked()
}

// MessageByID returns a clone of the message with the given ID, plus its
// position, or (nil, -1) when absent.
func (s *Store) MessageByID(id string) (*model.Message, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, m := range s.messages {
		if m.ID == id {
			return m.Clone(), i
		}
	}
	return nil, -1
}

// MessageAt returns a clone of the message at index i, or nil when out of
// range.
func (s *Store) MessageAt(i int) *model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.messages) {
		return nil
	}
	return s.messages[i].Clone()
}

// =============================================================================
// CONVERSATION MUTATORS
// =============================================================================

// SetConversation changes the active conversation ID without touching
// messages. Used when the server resolves an ID mid-stream.
func (s *Store) SetConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
	s.publishLocked()
}

// ConversationID returns the active conversation ID ("" when none).
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// Load atomically replaces both the active conversation ID and the full
// message list in one published update, so observers never see a mixed
// state during a conversation switch.
func (s *Store) Load(id string, msgs []*model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
	s.messages = msgs
	s.err = nil
	s.activeCitations = nil
	s.preview = nil
	s.publishLocked()
}

// =============================================================================
// FLAG AND PANEL MUTATORS
// =============================================================================

// SetLoading sets the history-loading flag.
func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = v
	s.publishLocked()
}

// SetStreaming sets the answer-streaming flag.
func (s *Store) SetStreaming(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isStreaming = v
	s.publishLocked()
}

// IsStreaming reports whether an answer stream is active.
func (s *Store) IsStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isStreaming
}

// SetError records the most recent operation error (nil clears it).
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.publishLocked()
}

// Err returns the most recent operation error.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// SetActiveCitations replaces the citation set backing the sources panel.
func (s *Store) SetActiveCitations(cites []model.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCitations = cites
	s.publishLocked()
}

// SetPreview selects a source for inspection.
func (s *Store) SetPreview(p *model.PreviewItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = p
	s.publishLocked()
}

// ClearPreview deselects the previewed source.
func (s *Store) ClearPreview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = nil
	s.publishLocked()
}
