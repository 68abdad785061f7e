// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history caches loaded conversations in a local SQLite file.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotCached = errors.New("conversation not cached")
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP,
	updated_at    TIMESTAMP,
	message_count INTEGER NOT NULL DEFAULT 0,
	cached_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT NOT NULL,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	citations       TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP,
	PRIMARY KEY (conversation_id, position)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// =============================================================================
// CACHE
// =============================================================================

// Cache is a read-through local copy of conversations the user has opened.
// The server stays authoritative; the cache only makes relisting and
// offline inspection cheap.
type Cache struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// modernc.org/sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY under interleaved use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// =============================================================================
// WRITES
// =============================================================================

// Put stores a conversation and its messages, replacing any cached copy.
func (c *Cache) Put(meta model.ConversationMeta, msgs []*model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, created_at, updated_at, message_count, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			cached_at = excluded.cached_at`,
		meta.ID, meta.Title, meta.CreatedAt, meta.UpdatedAt, len(msgs), time.Now())
	if err != nil {
		return fmt.Errorf("failed to cache conversation: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, meta.ID); err != nil {
		return fmt.Errorf("failed to clear cached messages: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (id, conversation_id, position, role, content, citations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		citations, err := json.Marshal(m.Citations)
		if err != nil {
			return fmt.Errorf("failed to encode citations: %w", err)
		}
		if _, err := stmt.Exec(m.ID, meta.ID, i, m.Role.String(), m.Content, string(citations), m.Timestamp); err != nil {
			return fmt.Errorf("failed to cache message: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes a conversation from the cache. Unknown IDs are a no-op.
func (c *Cache) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cached messages: %w", err)
	}
	if _, err := c.db.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cached conversation: %w", err)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a cached conversation and its ordered messages.
func (c *Cache) Get(id string) (*model.ConversationMeta, []*model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var meta model.ConversationMeta
	err := c.db.QueryRow(`
		SELECT id, title, created_at, updated_at, message_count
		FROM conversations WHERE id = ?`, id).
		Scan(&meta.ID, &meta.Title, &meta.CreatedAt, &meta.UpdatedAt, &meta.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotCached, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cached conversation: %w", err)
	}

	rows, err := c.db.Query(`
		SELECT id, role, content, citations, created_at
		FROM messages WHERE conversation_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cached messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		var m model.Message
		var role, citations string
		if err := rows.Scan(&m.ID, &role, &m.Content, &citations, &m.Timestamp); err != nil {
			return nil, nil, fmt.Errorf("failed to scan cached message: %w", err)
		}
		m.Role = model.ParseRole(role)
		if err := json.Unmarshal([]byte(citations), &m.Citations); err != nil {
			m.Citations = []model.Citation{}
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate cached messages: %w", err)
	}

	return &meta, msgs, nil
}

// List returns cached conversation summaries, most recently cached first.
func (c *Cache) List(limit int) ([]model.ConversationMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.Query(`
		SELECT id, title, created_at, updated_at, message_count
		FROM conversations ORDER BY cached_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached conversations: %w", err)
	}
	defer rows.Close()

	var out []model.ConversationMeta
	for rows.Next() {
		var meta model.ConversationMeta
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.CreatedAt, &meta.UpdatedAt, &meta.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan cached conversation: %w", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}
