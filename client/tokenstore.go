// Package client implements the editor-side core of drawdeck: the
// canonical in-memory document with undo/redo, the realtime broadcast
// reducer, presence tracking, and the authenticated session lifecycle
// (access/refresh token pair, single-flight renewal, reconnect on
// rotation) that keeps the realtime channel authorized.
package client

import (
	"context"
	"database/sql"
	"sync"

	_ "modernc.org/sqlite"
)

// Keys used in the token store. These are plain key/value entries, not a
// structured document; anything the client must remember across restarts
// goes here.
const (
	KeyAccessToken    = "access_token"
	KeyRefreshToken   = "refresh_token"
	KeyGuestID        = "guest_id"
	KeyGuestExpiresAt = "guest_expires_at"

	// KeyGuestProjectPrefix maps a locally generated project id to the
	// server-side id for documents authored while in guest mode.
	KeyGuestProjectPrefix = "guest_project:"
)

// TokenStore is durable key/value storage for credentials and guest
// identity. Get returns "" without error for absent keys.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryTokenStore keeps entries in process memory. It satisfies the
// interface for tests and throwaway sessions; nothing survives a restart.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]string)}
}

func (s *MemoryTokenStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key], nil
}

func (s *MemoryTokenStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *MemoryTokenStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// SQLiteTokenStore persists entries in a local sqlite database so the
// session survives restarts.
type SQLiteTokenStore struct {
	db *sql.DB
}

// NewSQLiteTokenStore opens (or creates) the database at path and
// ensures the metadata table exists.
func NewSQLiteTokenStore(path string) (*SQLiteTokenStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteTokenStore{db: db}, nil
}

func (s *SQLiteTokenStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *SQLiteTokenStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

func (s *SQLiteTokenStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM metadata WHERE key = ?", key)
	return err
}

func (s *SQLiteTokenStore) Close() error {
	return s.db.Close()
}
