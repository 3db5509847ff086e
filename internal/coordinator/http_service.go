// Package coordinator mediates between the conversation flows and the plan
// backend.
//
// This file implements the HTTP client for the plan backend.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// DefaultRequestTimeout bounds each individual backend request.
const DefaultRequestTimeout = 30 * time.Second

// HTTPOpts holds configuration options for the HTTP plan service.
type HTTPOpts struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPOption defines a configuration option for the HTTP plan service.
type HTTPOption func(*HTTPOpts)

// WithBaseURL sets the plan backend base URL.
func WithBaseURL(url string) HTTPOption {
	return func(o *HTTPOpts) {
		o.BaseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(o *HTTPOpts) {
		o.Timeout = d
	}
}

// WithHTTPClient overrides the HTTP client (for tests).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *HTTPOpts) {
		o.Client = c
	}
}

// HTTPPlanService talks JSON over HTTP to the plan backend.
type HTTPPlanService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPlanService creates a plan service client for the given backend.
func NewHTTPPlanService(opts ...HTTPOption) (*HTTPPlanService, error) {
	var cfg HTTPOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("plan backend base URL not set")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	slog.Debug("HTTPPlanService created", "baseURL", cfg.BaseURL)
	return &HTTPPlanService{baseURL: cfg.BaseURL, client: client}, nil
}

// CreatePatient registers the intake data and returns the patient id.
func (s *HTTPPlanService) CreatePatient(ctx context.Context, req models.PlanRequest) (string, error) {
	var resp struct {
		PatientID string `json:"patient_id"`
	}
	if err := s.postJSON(ctx, "create patient", "/api/v1/patients", req, &resp); err != nil {
		return "", err
	}
	return resp.PatientID, nil
}

// GeneratePlan produces a plan for the patient.
func (s *HTTPPlanService) GeneratePlan(ctx context.Context, req models.PlanRequest) (*models.PlanResult, error) {
	var resp models.PlanResult
	if err := s.postJSON(ctx, "generate plan", "/api/v1/plans/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReplaceMeal resolves a single-meal replacement candidate.
func (s *HTTPPlanService) ReplaceMeal(ctx context.Context, req models.ReplacementRequest) (*models.ReplacementResult, error) {
	var resp models.ReplacementResult
	if err := s.postJSON(ctx, "replace meal", "/api/v1/plans/replace-meal", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RenderDocument produces a shareable document for a generated plan.
func (s *HTTPPlanService) RenderDocument(ctx context.Context, planID string) (string, error) {
	var resp struct {
		DocumentURL string `json:"document_url"`
	}
	body := map[string]string{"plan_id": planID}
	if err := s.postJSON(ctx, "render document", "/api/v1/documents/render", body, &resp); err != nil {
		return "", err
	}
	return resp.DocumentURL, nil
}

// postJSON sends a JSON request and decodes the JSON response. Transport
// failures and 5xx responses are retryable; 4xx responses are terminal.
func (s *HTTPPlanService) postJSON(ctx context.Context, op, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &models.UpstreamError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &models.UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("HTTPPlanService request failed", "op", op, "error", err)
		return &models.UpstreamError{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		retryable := resp.StatusCode >= 500
		slog.Warn("HTTPPlanService request rejected", "op", op, "status", resp.StatusCode, "retryable", retryable)
		return &models.UpstreamError{Op: op, StatusCode: resp.StatusCode, Retryable: retryable}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Error("HTTPPlanService response decode failed", "op", op, "error", err)
		return &models.UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
