// Package api exposes the conversation flows over HTTP.
//
// Inbound events (start, answer, select, edit, confirm, cancel) are mapped to
// conversation manager operations; replies carry the next prompt. Rate
// limiting runs before any session state is touched.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/analytics"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/conversation"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/coordinator"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/genai"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/ratelimit"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/scheduler"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/store"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	RateLimit    int64
	RateWindow   time.Duration
	Conversation conversation.Config
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithRateLimit sets the per-user request budget and its window.
func WithRateLimit(limit int64, window time.Duration) Option {
	return func(o *Opts) {
		o.RateLimit = limit
		o.RateWindow = window
	}
}

// WithConversationConfig overrides the manager's timing and retry settings.
func WithConversationConfig(cfg conversation.Config) Option {
	return func(o *Opts) {
		o.Conversation = cfg
	}
}

// Server handles the HTTP event surface.
type Server struct {
	manager  *conversation.Manager
	limiter  *ratelimit.Limiter
	recorder *analytics.Recorder
	addr     string
}

// NewServer creates an API server over the given components.
func NewServer(manager *conversation.Manager, limiter *ratelimit.Limiter, recorder *analytics.Recorder, opts ...Option) *Server {
	cfg := defaultOpts()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		manager:  manager,
		limiter:  limiter,
		recorder: recorder,
		addr:     cfg.Addr,
	}
}

func defaultOpts() Opts {
	return Opts{
		Addr:         DefaultAddr,
		RateLimit:    ratelimit.DefaultLimit,
		RateWindow:   ratelimit.DefaultWindow,
		Conversation: conversation.DefaultConfig(),
	}
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/flows/start", s.startFlowHandler)
	mux.HandleFunc("/v1/events/answer", s.answerHandler)
	mux.HandleFunc("/v1/events/select", s.selectHandler)
	mux.HandleFunc("/v1/events/edit", s.editHandler)
	mux.HandleFunc("/v1/events/confirm", s.confirmHandler)
	mux.HandleFunc("/v1/events/cancel", s.cancelHandler)
	mux.HandleFunc("/v1/sessions/current", s.currentSessionHandler)
	mux.HandleFunc("/v1/sessions/last", s.lastSessionHandler)
	mux.HandleFunc("/v1/stats/daily", s.dailyStatsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run wires the configured modules together and serves the API until the
// process receives an interrupt or termination signal.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, backendOpts []coordinator.HTTPOption, coordOpts []coordinator.Option, apiOpts []Option) error {
	cfg := defaultOpts()
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var svc coordinator.PlanService
	if len(backendOpts) > 0 {
		svc, err = coordinator.NewHTTPPlanService(backendOpts...)
		slog.Info("API using HTTP plan backend")
	} else {
		svc, err = genai.New(genaiOpts...)
		slog.Info("API using GenAI plan service")
	}
	if err != nil {
		return fmt.Errorf("failed to initialize plan service: %w", err)
	}

	planner := coordinator.New(svc, coordOpts...)
	recorder := analytics.New(st)
	limiter := ratelimit.New(st, ratelimit.WithLimit(cfg.RateLimit), ratelimit.WithWindow(cfg.RateWindow))
	manager := conversation.NewManager(st, planner,
		conversation.WithConfig(cfg.Conversation),
		conversation.WithAnalytics(recorder))

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(scheduler.ExpirySweepSchedule, func() {
		if n, err := manager.ExpireStale(context.Background()); err != nil {
			slog.Error("Session expiry sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("Session expiry sweep finished", "expired", n)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	if err := sched.AddJob(scheduler.CleanupSchedule, func() {
		if err := st.CleanupExpired(); err != nil {
			slog.Error("Store cleanup failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule store cleanup: %w", err)
	}

	server := NewServer(manager, limiter, recorder, apiOpts...)
	httpServer := &http.Server{
		Addr:              server.addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", server.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("API server shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}

// allowRequest enforces the per-user rate limit, writing the 429 response on
// rejection. It reports whether the request may proceed.
func (s *Server) allowRequest(w http.ResponseWriter, userID int64) bool {
	if s.limiter == nil {
		return true
	}
	err := s.limiter.Allow(userID)
	if err == nil {
		return true
	}
	var rl *models.RateLimitedError
	if errors.As(err, &rl) {
		if s.recorder != nil {
			s.recorder.RateLimited()
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.RetryAfter.Seconds())))
		writeJSONResponse(w, http.StatusTooManyRequests, models.Error(err.Error()))
		return false
	}
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	return false
}

// writeManagerError maps conversation manager errors to HTTP responses.
func writeManagerError(w http.ResponseWriter, err error) {
	var (
		ferr *models.FlowError
		uerr *models.UpstreamError
	)
	switch {
	case errors.Is(err, models.ErrNoActiveSession):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrSessionExpired):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrRetryLimitExceeded):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case errors.As(err, &ferr):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, models.ErrUpstreamUnavailable), errors.As(err, &uerr):
		writeJSONResponse(w, http.StatusBadGateway, models.Error("plan backend unavailable, please try again"))
	default:
		slog.Error("Server unhandled manager error", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
