// Package analytics records daily usage counters in the session store.
//
// Counters are bucketed per day under analytics:{bucket}:{YYYY-MM-DD} keys
// and expire after the retention period. Recording is best-effort: a failed
// counter write never fails the user operation that triggered it.
package analytics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/store"
)

// DefaultRetention is how long daily buckets are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Bucket names recorded per flow event.
const (
	BucketFlowStarted   = "flow_started"
	BucketFlowCompleted = "flow_completed"
	BucketFlowCancelled = "flow_cancelled"
	BucketFlowExpired   = "flow_expired"
	BucketFlowFailed    = "flow_failed"
	BucketValidationErr = "validation_errors"
	BucketUpstreamErr   = "upstream_errors"
	BucketRateLimited   = "rate_limited"
)

// DailyStats holds one day's counters.
type DailyStats struct {
	Date     string           `json:"date"`
	Counters map[string]int64 `json:"counters"`
}

// Opts holds configuration options for the recorder.
type Opts struct {
	Retention time.Duration
}

// Option defines a configuration option for the recorder.
type Option func(*Opts)

// WithRetention sets how long daily buckets are kept.
func WithRetention(d time.Duration) Option {
	return func(o *Opts) {
		o.Retention = d
	}
}

// Recorder writes daily usage counters.
type Recorder struct {
	store     store.Store
	retention time.Duration
}

// New creates a recorder backed by the given store.
func New(st store.Store, opts ...Option) *Recorder {
	cfg := Opts{Retention: DefaultRetention}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Recorder{store: st, retention: cfg.Retention}
}

// FlowStarted counts a flow start.
func (r *Recorder) FlowStarted(kind models.FlowKind) {
	r.incr(BucketFlowStarted)
	r.incr(BucketFlowStarted + ":" + string(kind))
}

// FlowCompleted counts a flow completion.
func (r *Recorder) FlowCompleted(kind models.FlowKind) {
	r.incr(BucketFlowCompleted)
	r.incr(BucketFlowCompleted + ":" + string(kind))
}

// FlowCancelled counts a user cancellation.
func (r *Recorder) FlowCancelled(kind models.FlowKind) {
	r.incr(BucketFlowCancelled)
}

// FlowExpired counts a session expired by the sweep.
func (r *Recorder) FlowExpired(kind models.FlowKind) {
	r.incr(BucketFlowExpired)
}

// FlowFailed counts a session that hit a non-recoverable error.
func (r *Recorder) FlowFailed(kind models.FlowKind) {
	r.incr(BucketFlowFailed)
}

// ValidationError counts a rejected input.
func (r *Recorder) ValidationError() {
	r.incr(BucketValidationErr)
}

// UpstreamError counts a failed backend call.
func (r *Recorder) UpstreamError() {
	r.incr(BucketUpstreamErr)
}

// RateLimited counts a rejected over-budget request.
func (r *Recorder) RateLimited() {
	r.incr(BucketRateLimited)
}

// Stats returns the counters recorded for the given day.
func (r *Recorder) Stats(date time.Time) (*DailyStats, error) {
	day := date.UTC().Format("2006-01-02")
	stats := &DailyStats{Date: day, Counters: make(map[string]int64)}

	buckets := []string{
		BucketFlowStarted, BucketFlowCompleted, BucketFlowCancelled,
		BucketFlowExpired, BucketFlowFailed,
		BucketValidationErr, BucketUpstreamErr, BucketRateLimited,
	}
	for _, kind := range []models.FlowKind{models.FlowNewPatient, models.FlowControl, models.FlowReplacement} {
		buckets = append(buckets,
			BucketFlowStarted+":"+string(kind),
			BucketFlowCompleted+":"+string(kind),
		)
	}

	for _, b := range buckets {
		v, err := r.store.GetCounter(key(b, day))
		if err != nil {
			return nil, fmt.Errorf("failed to read analytics bucket %s: %w", b, err)
		}
		if v > 0 {
			stats.Counters[b] = v
		}
	}
	return stats, nil
}

func (r *Recorder) incr(bucket string) {
	day := time.Now().UTC().Format("2006-01-02")
	if _, err := r.store.IncrCounter(key(bucket, day), r.retention); err != nil {
		slog.Error("Analytics counter increment failed", "bucket", bucket, "error", err)
	}
}

func key(bucket, day string) string {
	return fmt.Sprintf("analytics:%s:%s", bucket, day)
}
