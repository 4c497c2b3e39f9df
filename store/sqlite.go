package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteMetadataStore stores metadata in a single SQLite table.
type SQLiteMetadataStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path. ":memory:" gives
// a private in-memory database.
func OpenSQLite(path string) (*SQLiteMetadataStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create sqlite schema: %w", err)
	}
	return &SQLiteMetadataStore{db: db}, nil
}

func (s *SQLiteMetadataStore) Get(ctx context.Context, tokenID string) (json.RawMessage, bool, error) {
	key := MetadataKey(tokenID)
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: sqlite get %q: %w", key, err)
	}
	return decodeStored(key, []byte(raw))
}

func (s *SQLiteMetadataStore) Set(ctx context.Context, tokenID string, value json.RawMessage) error {
	if err := checkValue(value); err != nil {
		return err
	}
	key := MetadataKey(tokenID)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: sqlite set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)
