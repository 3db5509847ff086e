// Package store provides storage backends for conversation sessions.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends with embedded migrations. All backends share the same
// TTL semantics: rows past their expiry are treated as absent on read and
// removed by CleanupExpired.
package store

import (
	"strings"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// Store defines the persistence operations used by the conversation manager,
// rate limiter, and analytics recorder.
type Store interface {
	// SaveSession inserts or replaces the user's live session.
	SaveSession(s models.Session, expiresAt time.Time) error
	// GetSession returns the user's live session, or nil if absent or expired.
	GetSession(userID int64) (*models.Session, error)
	// DeleteSession removes the user's live session.
	DeleteSession(userID int64) error
	// ListSessions returns every unexpired live session.
	ListSessions() ([]models.Session, error)
	// ArchiveSession writes a finished session to the archive.
	ArchiveSession(s models.Session, expiresAt time.Time) error
	// GetLatestArchive returns the user's most recent unexpired archive entry,
	// or nil if none exists.
	GetLatestArchive(userID int64) (*models.Session, error)
	// IncrCounter increments a windowed counter and returns the new value.
	// The expiry is set only when the counter is created, so the window is
	// anchored at the first increment.
	IncrCounter(key string, ttl time.Duration) (int64, error)
	// GetCounter returns the current value of a counter, 0 if absent or expired.
	GetCounter(key string) (int64, error)
	// CleanupExpired removes expired sessions, archives, and counters.
	CleanupExpired() error
	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite".
// PostgreSQL DSNs use URL or key=value form; anything else is treated as an
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// New builds a store for the configured DSN: Postgres for PostgreSQL DSNs,
// SQLite for file paths, in-memory when no DSN is set.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
