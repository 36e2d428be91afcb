// Package storage provides SQLite-backed persistence for users, filters,
// watchlists, price alerts, and the monitoring dedup state.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/polydictions/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polydictions", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id   INTEGER NOT NULL UNIQUE,
			is_paused     INTEGER NOT NULL DEFAULT 0,
			news_interval INTEGER NOT NULL DEFAULT 300,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seen_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS keywords (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			keyword TEXT NOT NULL,
			UNIQUE(user_id, keyword)
		)`,
		`CREATE TABLE IF NOT EXISTS user_categories (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			UNIQUE(user_id, category)
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			event_slug TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(user_id, event_slug)
		)`,
		`CREATE TABLE IF NOT EXISTS price_alerts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			event_slug    TEXT NOT NULL,
			condition     TEXT NOT NULL,
			threshold     REAL NOT NULL,
			outcome_index INTEGER NOT NULL DEFAULT 0,
			is_triggered  INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL,
			triggered_at  INTEGER,
			UNIQUE(user_id, event_slug, condition, threshold, outcome_index)
		)`,
		`CREATE TABLE IF NOT EXISTS news_cache (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			event_slug      TEXT NOT NULL UNIQUE,
			context_hash    TEXT NOT NULL,
			context_preview TEXT,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS posted_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL,
			event_slug TEXT NOT NULL,
			title      TEXT,
			volume     REAL,
			liquidity  REAL,
			posted_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_slug ON price_alerts(event_slug)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_created ON seen_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_posted_at ON posted_events(posted_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
