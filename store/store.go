// Package store persists the editor's lyrics, settings and font metadata as
// JSON blobs keyed by string.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type Config struct {
	Path string
}

// DefaultConfig honours LYRICSCANVAS_DB_PATH, else ~/.lyricscanvas/data.db.
func DefaultConfig() Config {
	if p := os.Getenv("LYRICSCANVAS_DB_PATH"); p != "" {
		return Config{Path: p}
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{Path: filepath.Join(home, ".lyricscanvas", "data.db")}
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// Open opens (creating if needed) the sqlite database at cfg.Path and
// applies the schema.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.Path == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// SQLite is a key/value store in a single sqlite table.
type SQLite struct {
	DB     *sql.DB
	Logger *zap.Logger
}

func NewSQLite(db *sql.DB, logger *zap.Logger) *SQLite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLite{DB: db, Logger: logger}
}

func (s *SQLite) Save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		s.Logger.Warn("encode value", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(b), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.Logger.Warn("save value", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, key string, dst any) bool {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		s.Logger.Warn("load value", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.Logger.Warn("decode value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		s.Logger.Warn("remove value", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Memory keeps values as JSON in a map, so Load behaves as it does against
// sqlite.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	Logger *zap.Logger
}

func NewMemory() *Memory {
	return &Memory{values: map[string][]byte{}, Logger: zap.NewNop()}
}

func (m *Memory) Save(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.values[key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, key string, dst any) bool {
	m.mu.Lock()
	b, ok := m.values[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		m.Logger.Warn("decode value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// SetRaw stores b verbatim, e.g. a record written by an older version.
func (m *Memory) SetRaw(key string, b []byte) {
	m.mu.Lock()
	m.values[key] = append([]byte(nil), b...)
	m.mu.Unlock()
}
