// Package store provides storage backends for conversation sessions.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveSession inserts or replaces the user's live session.
func (s *PostgresStore) SaveSession(sess models.Session, expiresAt time.Time) error {
	payload, err := marshalSession(sess)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "userID", sess.UserID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (user_id, session_id, payload, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET session_id = $2, payload = $3, expires_at = $4`,
		sess.UserID, sess.SessionID, payload, expiresAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to save session for user %d: %w", sess.UserID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "userID", sess.UserID, "state", sess.CurrentState)
	return nil
}

// GetSession returns the user's live session, or nil if absent or expired.
func (s *PostgresStore) GetSession(userID int64) (*models.Session, error) {
	var payload string
	var expiresAt time.Time
	err := s.db.QueryRow(
		`SELECT payload, expires_at FROM sessions WHERE user_id = $1`, userID,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for user %d: %w", userID, err)
	}
	if !expiresAt.After(time.Now()) {
		slog.Debug("PostgresStore GetSession expired", "userID", userID)
		return nil, nil
	}
	return unmarshalSession(payload)
}

// DeleteSession removes the user's live session.
func (s *PostgresStore) DeleteSession(userID int64) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for user %d: %w", userID, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "userID", userID)
	return nil
}

// ListSessions returns every unexpired live session.
func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT payload FROM sessions WHERE expires_at > $1`, time.Now())
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ArchiveSession writes a finished session to the archive.
func (s *PostgresStore) ArchiveSession(sess models.Session, expiresAt time.Time) error {
	payload, err := marshalSession(sess)
	if err != nil {
		slog.Error("PostgresStore ArchiveSession marshal failed", "error", err, "userID", sess.UserID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO session_archive (user_id, session_id, payload, archived_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.UserID, sess.SessionID, payload, time.Now(), expiresAt,
	)
	if err != nil {
		slog.Error("PostgresStore ArchiveSession failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to archive session for user %d: %w", sess.UserID, err)
	}
	slog.Debug("PostgresStore ArchiveSession succeeded", "userID", sess.UserID, "sessionID", sess.SessionID)
	return nil
}

// GetLatestArchive returns the user's most recent unexpired archive entry.
func (s *PostgresStore) GetLatestArchive(userID int64) (*models.Session, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM session_archive WHERE user_id = $1 AND expires_at > $2 ORDER BY archived_at DESC, id DESC LIMIT 1`,
		userID, time.Now(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetLatestArchive not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestArchive failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query archive for user %d: %w", userID, err)
	}
	return unmarshalSession(payload)
}

// IncrCounter increments a windowed counter, creating it with the given TTL
// when absent or expired. The upsert restarts the window when the stored
// expiry has passed.
func (s *PostgresStore) IncrCounter(key string, ttl time.Duration) (int64, error) {
	now := time.Now()
	var value int64
	err := s.db.QueryRow(
		`INSERT INTO counters (key, value, expires_at) VALUES ($1, 1, $2)
		 ON CONFLICT (key) DO UPDATE SET
		     value = CASE WHEN counters.expires_at <= $3 THEN 1 ELSE counters.value + 1 END,
		     expires_at = CASE WHEN counters.expires_at <= $3 THEN $2 ELSE counters.expires_at END
		 RETURNING value`,
		key, now.Add(ttl), now,
	).Scan(&value)
	if err != nil {
		slog.Error("PostgresStore IncrCounter failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to update counter %s: %w", key, err)
	}
	return value, nil
}

// GetCounter returns the current counter value, 0 if absent or expired.
func (s *PostgresStore) GetCounter(key string) (int64, error) {
	var value int64
	err := s.db.QueryRow(
		`SELECT value FROM counters WHERE key = $1 AND expires_at > $2`, key, time.Now(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCounter failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return value, nil
}

// CleanupExpired removes expired sessions, archives, and counters.
func (s *PostgresStore) CleanupExpired() error {
	now := time.Now()
	for _, q := range []string{
		`DELETE FROM sessions WHERE expires_at <= $1`,
		`DELETE FROM session_archive WHERE expires_at <= $1`,
		`DELETE FROM counters WHERE expires_at <= $1`,
	} {
		if _, err := s.db.Exec(q, now); err != nil {
			slog.Error("PostgresStore CleanupExpired failed", "error", err)
			return fmt.Errorf("cleanup failed: %w", err)
		}
	}
	slog.Debug("PostgresStore CleanupExpired succeeded")
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
