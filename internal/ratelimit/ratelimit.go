// Package ratelimit implements a store-backed fixed-window rate limiter.
//
// Counts survive restarts because they live in the session store; the window
// is anchored at the first request in it.
package ratelimit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/store"
)

// Default limiter configuration.
const (
	// DefaultLimit is the allowed number of requests per window.
	DefaultLimit = 30
	// DefaultWindow is the length of the counting window.
	DefaultWindow = time.Minute
)

// Opts holds configuration options for the limiter.
type Opts struct {
	Limit  int64
	Window time.Duration
}

// Option defines a configuration option for the limiter.
type Option func(*Opts)

// WithLimit sets the allowed number of requests per window.
func WithLimit(n int64) Option {
	return func(o *Opts) {
		o.Limit = n
	}
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(o *Opts) {
		o.Window = d
	}
}

// Limiter enforces a per-user request budget.
type Limiter struct {
	store  store.Store
	limit  int64
	window time.Duration
}

// New creates a limiter backed by the given store.
func New(st store.Store, opts ...Option) *Limiter {
	cfg := Opts{Limit: DefaultLimit, Window: DefaultWindow}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Limiter created", "limit", cfg.Limit, "window", cfg.Window)
	return &Limiter{store: st, limit: cfg.Limit, window: cfg.Window}
}

// Allow counts a request for the user. It returns a *models.RateLimitedError
// once the budget for the current window is exceeded; the over-limit request
// itself is not served.
func (l *Limiter) Allow(userID int64) error {
	key := fmt.Sprintf("rate:%d", userID)
	count, err := l.store.IncrCounter(key, l.window)
	if err != nil {
		// Fail open: a broken counter must not lock users out.
		slog.Error("Limiter counter increment failed", "error", err, "userID", userID)
		return nil
	}
	if count > l.limit {
		slog.Warn("Limiter rejected request", "userID", userID, "count", count, "limit", l.limit)
		return &models.RateLimitedError{RetryAfter: l.window}
	}
	return nil
}
