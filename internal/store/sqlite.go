// Package store provides storage backends for conversation sessions.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; missing directories are
// created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveSession inserts or replaces the user's live session.
func (s *SQLiteStore) SaveSession(sess models.Session, expiresAt time.Time) error {
	payload, err := marshalSession(sess)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "userID", sess.UserID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (user_id, session_id, payload, expires_at) VALUES (?, ?, ?, ?)`,
		sess.UserID, sess.SessionID, payload, expiresAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to save session for user %d: %w", sess.UserID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "userID", sess.UserID, "state", sess.CurrentState)
	return nil
}

// GetSession returns the user's live session, or nil if absent or expired.
func (s *SQLiteStore) GetSession(userID int64) (*models.Session, error) {
	var payload string
	var expiresAt time.Time
	err := s.db.QueryRow(
		`SELECT payload, expires_at FROM sessions WHERE user_id = ?`, userID,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for user %d: %w", userID, err)
	}
	if !expiresAt.After(time.Now()) {
		slog.Debug("SQLiteStore GetSession expired", "userID", userID)
		return nil, nil
	}
	sess, err := unmarshalSession(payload)
	if err != nil {
		slog.Error("SQLiteStore GetSession unmarshal failed", "error", err, "userID", userID)
		return nil, err
	}
	return sess, nil
}

// DeleteSession removes the user's live session.
func (s *SQLiteStore) DeleteSession(userID int64) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for user %d: %w", userID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "userID", userID)
	return nil
}

// ListSessions returns every unexpired live session.
func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT payload FROM sessions WHERE expires_at > ?`, time.Now())
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ArchiveSession writes a finished session to the archive.
func (s *SQLiteStore) ArchiveSession(sess models.Session, expiresAt time.Time) error {
	payload, err := marshalSession(sess)
	if err != nil {
		slog.Error("SQLiteStore ArchiveSession marshal failed", "error", err, "userID", sess.UserID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO session_archive (user_id, session_id, payload, archived_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		sess.UserID, sess.SessionID, payload, time.Now(), expiresAt,
	)
	if err != nil {
		slog.Error("SQLiteStore ArchiveSession failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to archive session for user %d: %w", sess.UserID, err)
	}
	slog.Debug("SQLiteStore ArchiveSession succeeded", "userID", sess.UserID, "sessionID", sess.SessionID)
	return nil
}

// GetLatestArchive returns the user's most recent unexpired archive entry.
func (s *SQLiteStore) GetLatestArchive(userID int64) (*models.Session, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM session_archive WHERE user_id = ? AND expires_at > ? ORDER BY archived_at DESC, id DESC LIMIT 1`,
		userID, time.Now(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetLatestArchive not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestArchive failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query archive for user %d: %w", userID, err)
	}
	return unmarshalSession(payload)
}

// IncrCounter increments a windowed counter, creating it with the given TTL
// when absent or expired.
func (s *SQLiteStore) IncrCounter(key string, ttl time.Duration) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore IncrCounter begin failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to begin counter transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var value int64
	var expiresAt time.Time
	err = tx.QueryRow(`SELECT value, expires_at FROM counters WHERE key = ?`, key).Scan(&value, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		value = 1
		expiresAt = now.Add(ttl)
		_, err = tx.Exec(`INSERT INTO counters (key, value, expires_at) VALUES (?, ?, ?)`, key, value, expiresAt)
	case err != nil:
		slog.Error("SQLiteStore IncrCounter select failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	case !expiresAt.After(now):
		// Expired window: restart the counter.
		value = 1
		expiresAt = now.Add(ttl)
		_, err = tx.Exec(`UPDATE counters SET value = ?, expires_at = ? WHERE key = ?`, value, expiresAt, key)
	default:
		value++
		_, err = tx.Exec(`UPDATE counters SET value = ? WHERE key = ?`, value, key)
	}
	if err != nil {
		slog.Error("SQLiteStore IncrCounter write failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to update counter %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore IncrCounter commit failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to commit counter %s: %w", key, err)
	}
	return value, nil
}

// GetCounter returns the current counter value, 0 if absent or expired.
func (s *SQLiteStore) GetCounter(key string) (int64, error) {
	var value int64
	var expiresAt time.Time
	err := s.db.QueryRow(`SELECT value, expires_at FROM counters WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCounter failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	if !expiresAt.After(time.Now()) {
		return 0, nil
	}
	return value, nil
}

// CleanupExpired removes expired sessions, archives, and counters.
func (s *SQLiteStore) CleanupExpired() error {
	now := time.Now()
	for _, q := range []string{
		`DELETE FROM sessions WHERE expires_at <= ?`,
		`DELETE FROM session_archive WHERE expires_at <= ?`,
		`DELETE FROM counters WHERE expires_at <= ?`,
	} {
		if _, err := s.db.Exec(q, now); err != nil {
			slog.Error("SQLiteStore CleanupExpired failed", "error", err)
			return fmt.Errorf("cleanup failed: %w", err)
		}
	}
	slog.Debug("SQLiteStore CleanupExpired succeeded")
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
