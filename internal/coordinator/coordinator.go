// Package coordinator mediates between the conversation flows and the plan
// backend.
//
// It wraps every backend call with bounded exponential backoff, distinguishes
// retryable from terminal upstream failures, and enforces the macro-equivalence
// tolerance on meal replacements.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// Default retry and tolerance configuration.
const (
	// DefaultMaxRetries is the total number of attempts per backend call.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the backoff unit; attempt n waits base * 2^n.
	DefaultBaseDelay = time.Second
	// DefaultTolerance is the allowed relative deviation per macro metric.
	DefaultTolerance = 0.05
)

// PlanService is the interface to the plan backend. Implementations must
// return *models.UpstreamError for failed calls so retryability can be
// classified.
type PlanService interface {
	// CreatePatient registers the intake data and returns the patient id.
	CreatePatient(ctx context.Context, req models.PlanRequest) (string, error)
	// GeneratePlan produces a plan (or adjusted plan) for the patient.
	GeneratePlan(ctx context.Context, req models.PlanRequest) (*models.PlanResult, error)
	// ReplaceMeal resolves a single-meal replacement candidate.
	ReplaceMeal(ctx context.Context, req models.ReplacementRequest) (*models.ReplacementResult, error)
	// RenderDocument produces a shareable document for a generated plan.
	RenderDocument(ctx context.Context, planID string) (string, error)
}

// Opts holds configuration options for the coordinator.
type Opts struct {
	MaxRetries int
	BaseDelay  time.Duration
	Tolerance  float64
}

// Option defines a configuration option for the coordinator.
type Option func(*Opts)

// WithMaxRetries sets the total number of attempts per backend call.
func WithMaxRetries(n int) Option {
	return func(o *Opts) {
		o.MaxRetries = n
	}
}

// WithBaseDelay sets the backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.BaseDelay = d
	}
}

// WithTolerance sets the allowed relative macro deviation for replacements.
func WithTolerance(t float64) Option {
	return func(o *Opts) {
		o.Tolerance = t
	}
}

// Coordinator executes plan backend operations with retry and tolerance
// enforcement.
type Coordinator struct {
	svc        PlanService
	maxRetries int
	baseDelay  time.Duration
	tolerance  float64
}

// New creates a coordinator around the given plan service.
func New(svc PlanService, opts ...Option) *Coordinator {
	cfg := Opts{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Tolerance:  DefaultTolerance,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Coordinator created", "maxRetries", cfg.MaxRetries, "baseDelay", cfg.BaseDelay, "tolerance", cfg.Tolerance)
	return &Coordinator{
		svc:        svc,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		tolerance:  cfg.Tolerance,
	}
}

// Tolerance returns the configured macro tolerance.
func (c *Coordinator) Tolerance() float64 {
	return c.tolerance
}

// Execute runs fn with bounded exponential backoff. Only retryable upstream
// errors are re-attempted; terminal errors and context cancellation are
// returned immediately. When every attempt fails the returned error wraps
// models.ErrUpstreamUnavailable.
func (c *Coordinator) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * (1 << (attempt - 1))
			slog.Debug("Coordinator Execute backing off", "op", op, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("Coordinator Execute succeeded after retry", "op", op, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		var ue *models.UpstreamError
		if !errors.As(err, &ue) || !ue.Retryable {
			slog.Error("Coordinator Execute terminal failure", "op", op, "error", err)
			return err
		}
		slog.Warn("Coordinator Execute retryable failure", "op", op, "attempt", attempt, "error", err)
	}
	slog.Error("Coordinator Execute exhausted retries", "op", op, "attempts", c.maxRetries, "error", lastErr)
	return fmt.Errorf("%s after %d attempts: %w", op, c.maxRetries, models.ErrUpstreamUnavailable)
}

// CheckEquivalence accepts a candidate only when each macro metric is within
// the configured tolerance of the original. Violations are returned as a
// *models.OutOfToleranceError carrying the per-metric deltas.
func (c *Coordinator) CheckEquivalence(orig, cand models.NutrientTotals) error {
	deltas := orig.Deltas(cand)
	violations := make(map[string]float64)
	for metric, d := range deltas {
		if d > c.tolerance {
			violations[metric] = d
		}
	}
	if len(violations) > 0 {
		return &models.OutOfToleranceError{Tolerance: c.tolerance, Deltas: violations}
	}
	return nil
}

// CreatePlan registers a new patient from intake data and generates their
// first plan. Document rendering is attempted but its failure does not fail
// the call.
func (c *Coordinator) CreatePlan(ctx context.Context, data models.CollectedData) (*models.PlanResult, string, error) {
	req := models.PlanRequest{FlowKind: models.FlowNewPatient, Data: data}

	var patientID string
	err := c.Execute(ctx, "create patient", func(ctx context.Context) error {
		id, err := c.svc.CreatePatient(ctx, req)
		if err != nil {
			return err
		}
		patientID = id
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	req.PatientID = patientID
	result, err := c.generate(ctx, "generate plan", req)
	if err != nil {
		return nil, patientID, err
	}
	return result, patientID, nil
}

// AdjustPlan regenerates a plan from control data for an existing patient.
func (c *Coordinator) AdjustPlan(ctx context.Context, patientID string, data models.CollectedData) (*models.PlanResult, error) {
	req := models.PlanRequest{PatientID: patientID, FlowKind: models.FlowControl, Data: data}
	return c.generate(ctx, "adjust plan", req)
}

func (c *Coordinator) generate(ctx context.Context, op string, req models.PlanRequest) (*models.PlanResult, error) {
	var result *models.PlanResult
	err := c.Execute(ctx, op, func(ctx context.Context) error {
		r, err := c.svc.GeneratePlan(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.DocumentURL == "" {
		// Rendering failure leaves the plan usable; the handle stays empty.
		renderErr := c.Execute(ctx, "render document", func(ctx context.Context) error {
			url, err := c.svc.RenderDocument(ctx, result.PlanID)
			if err != nil {
				return err
			}
			result.DocumentURL = url
			return nil
		})
		if renderErr != nil {
			slog.Warn("Coordinator document rendering failed", "planID", result.PlanID, "error", renderErr)
		}
	}
	return result, nil
}

// ReplaceMeal resolves a replacement candidate and enforces the equivalence
// tolerance on it.
func (c *Coordinator) ReplaceMeal(ctx context.Context, req models.ReplacementRequest) (*models.ReplacementResult, error) {
	var result *models.ReplacementResult
	err := c.Execute(ctx, "replace meal", func(ctx context.Context) error {
		r, err := c.svc.ReplaceMeal(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.CheckEquivalence(result.Original, result.Candidate); err != nil {
		slog.Info("Coordinator replacement out of tolerance", "day", req.Day, "meal", req.Meal)
		return nil, err
	}
	return result, nil
}
