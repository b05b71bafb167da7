package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStats is a StatsRepo backed by a local SQLite database.
type SQLiteStats struct {
	db *sql.DB
}

// Compile-time check that SQLiteStats implements StatsRepo.
var _ StatsRepo = (*SQLiteStats)(nil)

// NewSQLiteStats opens (and migrates) a SQLite-backed stats repository.
// The DSN is a file path; its directory is created when missing.
func NewSQLiteStats(opts ...Option) (*SQLiteStats, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite stats database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("SQLite ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite stats store ready", "path", cfg.DSN)
	return &SQLiteStats{db: db}, nil
}

func (s *SQLiteStats) IncrementSent(address string) error {
	_, err := s.db.Exec(
		`INSERT INTO contact_stats (address, sent, received) VALUES (?, 1, 0)
		 ON CONFLICT(address) DO UPDATE SET sent = sent + 1, updated_at = CURRENT_TIMESTAMP`,
		address,
	)
	if err != nil {
		return fmt.Errorf("failed to increment sent count for %s: %w", address, err)
	}
	return nil
}

func (s *SQLiteStats) IncrementReceived(address string) error {
	_, err := s.db.Exec(
		`INSERT INTO contact_stats (address, sent, received) VALUES (?, 0, 1)
		 ON CONFLICT(address) DO UPDATE SET received = received + 1, updated_at = CURRENT_TIMESTAMP`,
		address,
	)
	if err != nil {
		return fmt.Errorf("failed to increment received count for %s: %w", address, err)
	}
	return nil
}

func (s *SQLiteStats) GetStats() ([]ContactStats, error) {
	rows, err := s.db.Query(`SELECT address, sent, received FROM contact_stats ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact stats: %w", err)
	}
	defer rows.Close()

	var out []ContactStats
	for rows.Next() {
		var c ContactStats
		if err := rows.Scan(&c.Address, &c.Sent, &c.Received); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats rows: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStats) Close() error {
	return s.db.Close()
}
