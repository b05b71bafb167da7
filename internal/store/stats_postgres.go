package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Connection pool configuration for the Postgres stats store.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStats is a StatsRepo backed by PostgreSQL.
type PostgresStats struct {
	db *sql.DB
}

// Compile-time check that PostgresStats implements StatsRepo.
var _ StatsRepo = (*PostgresStats)(nil)

// NewPostgresStats opens (and migrates) a Postgres-backed stats repository.
func NewPostgresStats(opts ...Option) (*PostgresStats, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres stats database: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("Postgres ping failed: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres stats store ready")
	return &PostgresStats{db: db}, nil
}

func (s *PostgresStats) IncrementSent(address string) error {
	_, err := s.db.Exec(
		`INSERT INTO contact_stats (address, sent, received) VALUES ($1, 1, 0)
		 ON CONFLICT (address) DO UPDATE SET sent = contact_stats.sent + 1, updated_at = NOW()`,
		address,
	)
	if err != nil {
		return fmt.Errorf("failed to increment sent count for %s: %w", address, err)
	}
	return nil
}

func (s *PostgresStats) IncrementReceived(address string) error {
	_, err := s.db.Exec(
		`INSERT INTO contact_stats (address, sent, received) VALUES ($1, 0, 1)
		 ON CONFLICT (address) DO UPDATE SET received = contact_stats.received + 1, updated_at = NOW()`,
		address,
	)
	if err != nil {
		return fmt.Errorf("failed to increment received count for %s: %w", address, err)
	}
	return nil
}

func (s *PostgresStats) GetStats() ([]ContactStats, error) {
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
func (s *PostgresStats) Close() error {
	return s.db.Close()
}
