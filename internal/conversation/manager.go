// Package conversation implements the session lifecycle over the flow tables.
//
// The manager owns every state transition: it validates input, advances the
// state machine, serializes all operations per user, enforces idle timeouts
// and retry budgets, and runs the backend call on confirmation. Flow-specific
// knowledge lives entirely in the flow tables; the manager only dispatches on
// the table's flags.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/analytics"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/coordinator"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/flow"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/store"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/validate"
)

// SkipKeyword advances an optional state without an answer.
const SkipKeyword = "skip"

// Config holds the named timing and retry settings of the manager.
type Config struct {
	// SessionTTL is how long a live session row is kept in the store.
	SessionTTL time.Duration
	// ArchiveTTL is how long finished sessions stay readable.
	ArchiveTTL time.Duration
	// IdleTimeout expires sessions with no activity.
	IdleTimeout time.Duration
	// MaxRetries bounds consecutive invalid inputs per state.
	MaxRetries int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:  30 * time.Minute,
		ArchiveTTL:  7 * 24 * time.Hour,
		IdleTimeout: 30 * time.Minute,
		MaxRetries:  3,
	}
}

// Opts holds configuration options for the manager.
type Opts struct {
	Config    Config
	Analytics *analytics.Recorder
	Clock     func() time.Time
}

// Option defines a configuration option for the manager.
type Option func(*Opts)

// WithConfig overrides the timing and retry settings.
func WithConfig(cfg Config) Option {
	return func(o *Opts) {
		o.Config = cfg
	}
}

// WithAnalytics attaches a usage recorder.
func WithAnalytics(r *analytics.Recorder) Option {
	return func(o *Opts) {
		o.Analytics = r
	}
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = now
	}
}

// Result carries the backend outcome surfaced on completion.
type Result struct {
	Text        string `json:"text"`
	PlanID      string `json:"plan_id,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

// Reply is the manager's answer to an inbound event: the state the session is
// now in and what to show the user.
type Reply struct {
	SessionID string                  `json:"session_id"`
	FlowKind  models.FlowKind         `json:"flow_kind"`
	State     models.StateType        `json:"state"`
	Prompt    string                  `json:"prompt"`
	Progress  models.Progress         `json:"progress"`
	Summary   map[models.Field]string `json:"summary,omitempty"`
	Done      bool                    `json:"done,omitempty"`
	Result    *Result                 `json:"result,omitempty"`
}

// Manager drives conversation sessions.
type Manager struct {
	store     store.Store
	planner   *coordinator.Coordinator
	analytics *analytics.Recorder
	cfg       Config
	now       func() time.Time

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// NewManager creates a conversation manager over the given store and
// coordinator.
func NewManager(st store.Store, planner *coordinator.Coordinator, opts ...Option) *Manager {
	cfg := Opts{Config: DefaultConfig(), Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating conversation manager",
		"sessionTTL", cfg.Config.SessionTTL, "idleTimeout", cfg.Config.IdleTimeout, "maxRetries", cfg.Config.MaxRetries)
	return &Manager{
		store:     st,
		planner:   planner,
		analytics: cfg.Analytics,
		cfg:       cfg.Config,
		now:       cfg.Clock,
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex serializing one user's session operations.
// Locks are never freed; the map is bounded by the user population.
func (m *Manager) userLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}

// Create starts a fresh session for the user. A user has at most one live
// session: starting while one exists is rejected, the caller must cancel
// first. An idle session past the timeout does not block a new start.
func (m *Manager) Create(ctx context.Context, userID int64, kind models.FlowKind) (*Reply, error) {
	def, err := flow.ForKind(kind)
	if err != nil {
		return nil, err
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.GetSession(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !m.isStale(existing) {
			slog.Warn("Manager Create rejected, live session exists", "userID", userID, "flow", existing.FlowKind, "state", existing.CurrentState)
			return nil, &models.FlowError{
				Kind: existing.FlowKind, State: existing.CurrentState, Op: "start",
				Reason: "an active session already exists, cancel it first",
			}
		}
		slog.Info("Manager Create expiring idle session", "userID", userID, "oldFlow", existing.FlowKind)
		existing.Status = models.SessionStatusExpired
		if err := m.finishSession(existing); err != nil {
			return nil, err
		}
		if m.analytics != nil {
			m.analytics.FlowExpired(existing.FlowKind)
		}
	}

	now := m.now()
	sess := models.Session{
		UserID:        userID,
		SessionID:     uuid.NewString(),
		FlowKind:      kind,
		CurrentState:  def.Initial,
		Status:        models.SessionStatusActive,
		StartedAt:     now,
		LastUpdatedAt: now,
		MaxRetries:    m.cfg.MaxRetries,
	}
	if kind != models.FlowNewPatient {
		m.seedPlanRefs(&sess)
	}
	if err := m.saveSession(&sess); err != nil {
		return nil, err
	}

	if m.analytics != nil {
		m.analytics.FlowStarted(kind)
	}
	slog.Info("Manager Create succeeded", "userID", userID, "flow", kind, "sessionID", sess.SessionID)
	return m.reply(&sess, def), nil
}

// seedPlanRefs copies the patient and plan identifiers from the user's most
// recent completed session into a fresh one. Control and replacement flows
// start after the intake flow has been archived, so the references live in
// the archive, not in any live session.
func (m *Manager) seedPlanRefs(sess *models.Session) {
	archived, err := m.store.GetLatestArchive(sess.UserID)
	if err != nil || archived == nil {
		return
	}
	if id := archived.GetContext(models.ContextKeyPatientID); id != "" {
		sess.SetContext(models.ContextKeyPatientID, id)
	}
	if id := archived.GetContext(models.ContextKeyPlanID); id != "" {
		sess.SetContext(models.ContextKeyPlanID, id)
	}
}

// Advance applies user input to the current collecting state. Optional states
// accept the skip keyword in place of an answer. Invalid input re-prompts the
// same state until the retry budget is exhausted, which fails the session.
func (m *Manager) Advance(ctx context.Context, userID int64, input string) (*Reply, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, def, err := m.loadActive(userID)
	if err != nil {
		return nil, err
	}

	spec, ok := def.Spec(sess.CurrentState)
	if !ok {
		return nil, fmt.Errorf("session %s in state outside its flow: %s", sess.SessionID, sess.CurrentState)
	}
	if spec.Field == "" {
		return nil, &models.FlowError{
			Kind: sess.FlowKind, State: sess.CurrentState, Op: "advance",
			Reason: "state does not accept answers",
		}
	}

	var value models.FieldValue
	if spec.Optional && strings.EqualFold(strings.TrimSpace(input), SkipKeyword) {
		value = validate.Skipped(spec.Field)
	} else {
		value, err = validate.Field(spec.Field, input)
		if err != nil {
			return m.handleInvalidInput(sess, def, spec, err)
		}
	}

	sess.Data.Set(spec.Field, value)
	sess.ResetRetries()
	sess.PreviousState = sess.CurrentState

	if ret := sess.GetContext(models.ContextKeyEditReturn); ret != "" {
		// Mid-edit answers return straight to the review state.
		sess.ClearContext(models.ContextKeyEditReturn)
		sess.CurrentState = models.StateType(ret)
	} else {
		next, err := def.Next(sess.CurrentState)
		if err != nil {
			return nil, err
		}
		sess.CurrentState = next
	}

	if err := m.saveSession(sess); err != nil {
		return nil, err
	}
	slog.Debug("Manager Advance succeeded", "userID", userID, "field", spec.Field, "state", sess.CurrentState)
	return m.reply(sess, def), nil
}

// handleInvalidInput counts a validation failure against the retry budget.
// The reply re-prompts the unchanged state; once the budget is exhausted the
// session fails and is archived.
func (m *Manager) handleInvalidInput(sess *models.Session, def *flow.Definition, spec flow.StateSpec, verr error) (*Reply, error) {
	if m.analytics != nil {
		m.analytics.ValidationError()
	}
	if !sess.RecordError(verr.Error()) {
		slog.Warn("Manager Advance retry budget exhausted", "userID", sess.UserID, "state", sess.CurrentState)
		sess.Status = models.SessionStatusFailed
		if err := m.finishSession(sess); err != nil {
			return nil, err
		}
		if m.analytics != nil {
			m.analytics.FlowFailed(sess.FlowKind)
		}
		return nil, models.ErrRetryLimitExceeded
	}
	if err := m.saveSession(sess); err != nil {
		return nil, err
	}
	slog.Debug("Manager Advance rejected input", "userID", sess.UserID, "state", sess.CurrentState, "retries", sess.Retries, "error", verr)
	return m.reply(sess, def), verr
}

// RequestEdit rewinds a review state to the state collecting the given field.
// The next valid answer returns directly to the review state, with all other
// collected data preserved.
func (m *Manager) RequestEdit(ctx context.Context, userID int64, field models.Field) (*Reply, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, def, err := m.loadActive(userID)
	if err != nil {
		return nil, err
	}

	spec, _ := def.Spec(sess.CurrentState)
	if !spec.Confirmation || spec.Generating {
		return nil, &models.FlowError{
			Kind: sess.FlowKind, State: sess.CurrentState, Op: "edit",
			Reason: "editing is only available while reviewing",
		}
	}

	target, ok := def.StateFor(field)
	if !ok {
		return nil, &models.FlowError{
			Kind: sess.FlowKind, State: sess.CurrentState, Op: "edit",
			Reason: fmt.Sprintf("field %s does not belong to this flow", field),
		}
	}
	if targetSpec, _ := def.Spec(target); !targetSpec.Editable {
		return nil, &models.FlowError{
			Kind: sess.FlowKind, State: sess.CurrentState, Op: "edit",
			Reason: fmt.Sprintf("field %s cannot be edited", field),
		}
	}

	sess.SetContext(models.ContextKeyEditReturn, string(sess.CurrentState))
	sess.PreviousState = sess.CurrentState
	sess.CurrentState = target
	if err := m.saveSession(sess); err != nil {
		return nil, err
	}
	slog.Info("Manager RequestEdit succeeded", "userID", userID, "field", field, "state", target)
	return m.reply(sess, def), nil
}

// Confirm accepts the reviewed data and runs the backend call. On success the
// session is archived and removed as one retryable unit; repeating a confirm
// after success returns the cached result without calling the backend again.
func (m *Manager) Confirm(ctx context.Context, userID int64) (*Reply, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, def, err := m.loadActive(userID)
	if errors.Is(err, models.ErrNoActiveSession) {
		// The session may already be archived; serve the cached outcome.
		if reply, ok := m.completedReply(userID); ok {
			return reply, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	spec, _ := def.Spec(sess.CurrentState)
	switch {
	case spec.Terminal:
		// Result already cached; only the archive step is outstanding.
		return m.finalize(sess, def)
	case spec.Generating:
		// A previous confirm failed mid-call; run the backend again.
	case spec.Confirmation:
		if missing := sess.Data.MissingFields(def.Required()); len(missing) > 0 {
			return nil, &models.FlowError{
				Kind: sess.FlowKind, State: sess.CurrentState, Op: "confirm",
				Reason: fmt.Sprintf("missing required fields: %v", missing),
			}
		}
		next, err := def.Next(sess.CurrentState)
		if err != nil {
			return nil, err
		}
		sess.PreviousState = sess.CurrentState
		sess.CurrentState = next
		if err := m.saveSession(sess); err != nil {
			return nil, err
		}
	default:
		return nil, &models.FlowError{
			Kind: sess.FlowKind, State: sess.CurrentState, Op: "confirm",
			Reason: "nothing to confirm in this state",
		}
	}

	if sess.GetContext(models.ContextKeyResultText) == "" {
		if reply, err := m.runBackend(ctx, sess, def); err != nil {
			return reply, err
		}
	}

	sess.PreviousState = sess.CurrentState
	sess.CurrentState = def.TerminalState()
	sess.Status = models.SessionStatusCompleted
	if err := m.saveSession(sess); err != nil {
		return nil, err
	}
	return m.finalize(sess, def)
}

// runBackend executes the flow's coordinator call and caches the outcome on
// the session context. Failures rewind the session so the user can retry:
// upstream errors return to the review state, out-of-tolerance replacements
// return to the specific-request question.
func (m *Manager) runBackend(ctx context.Context, sess *models.Session, def *flow.Definition) (*Reply, error) {
	var (
		result *models.PlanResult
		err    error
	)
	switch sess.FlowKind {
	case models.FlowNewPatient:
		var patientID string
		result, patientID, err = m.planner.CreatePlan(ctx, sess.Data)
		if patientID != "" {
			sess.SetContext(models.ContextKeyPatientID, patientID)
		}
	case models.FlowControl:
		result, err = m.planner.AdjustPlan(ctx, sess.GetContext(models.ContextKeyPatientID), sess.Data)
	case models.FlowReplacement:
		var rep *models.ReplacementResult
		rep, err = m.planner.ReplaceMeal(ctx, replacementRequest(sess))
		if err == nil {
			result = &models.PlanResult{Text: rep.Text}
		}
	default:
		return nil, fmt.Errorf("unknown flow kind: %s", sess.FlowKind)
	}

	if err != nil {
		return m.handleBackendFailure(sess, def, err)
	}

	sess.SetContext(models.ContextKeyResultText, result.Text)
	if result.PlanID != "" {
		sess.SetContext(models.ContextKeyPlanID, result.PlanID)
	}
	if result.DocumentURL != "" {
		sess.SetContext(models.ContextKeyDocumentURL, result.DocumentURL)
	}
	return nil, nil
}

// handleBackendFailure rewinds the session after a failed backend call and
// surfaces the error. The session stays live so the user can retry.
func (m *Manager) handleBackendFailure(sess *models.Session, def *flow.Definition, err error) (*Reply, error) {
	sess.Errors = append(sess.Errors, err.Error())

	var oot *models.OutOfToleranceError
	if errors.As(err, &oot) {
		// Ask for a different candidate rather than failing the session.
		target, _ := def.StateFor(models.FieldSpecificRequest)
		sess.PreviousState = sess.CurrentState
		sess.CurrentState = target
		if saveErr := m.saveSession(sess); saveErr != nil {
			return nil, saveErr
		}
		slog.Info("Manager Confirm replacement out of tolerance", "userID", sess.UserID, "deltas", oot.Deltas)
		return m.reply(sess, def), err
	}

	if m.analytics != nil {
		m.analytics.UpstreamError()
	}
	sess.PreviousState = sess.CurrentState
	sess.CurrentState = def.ReviewState()
	if saveErr := m.saveSession(sess); saveErr != nil {
		return nil, saveErr
	}
	slog.Error("Manager Confirm backend call failed", "userID", sess.UserID, "flow", sess.FlowKind, "error", err)
	return m.reply(sess, def), err
}

// finalize archives and removes a completed session. The cached result makes
// this step idempotent: if the archive write fails the session stays live in
// its terminal state and a later confirm retries only this step.
func (m *Manager) finalize(sess *models.Session, def *flow.Definition) (*Reply, error) {
	if err := m.finishSession(sess); err != nil {
		slog.Error("Manager Confirm archive failed, session kept for retry", "userID", sess.UserID, "error", err)
		return nil, fmt.Errorf("failed to archive completed session: %w", err)
	}
	if m.analytics != nil {
		m.analytics.FlowCompleted(sess.FlowKind)
	}
	slog.Info("Manager Confirm succeeded", "userID", sess.UserID, "flow", sess.FlowKind, "sessionID", sess.SessionID)

	reply := m.reply(sess, def)
	reply.Done = true
	reply.Result = resultFrom(sess)
	return reply, nil
}

// completedReply serves a confirm that races or repeats after completion from
// the archive.
func (m *Manager) completedReply(userID int64) (*Reply, bool) {
	archived, err := m.store.GetLatestArchive(userID)
	if err != nil || archived == nil || archived.Status != models.SessionStatusCompleted {
		return nil, false
	}
	if archived.GetContext(models.ContextKeyResultText) == "" {
		return nil, false
	}
	def, err := flow.ForKind(archived.FlowKind)
	if err != nil {
		return nil, false
	}
	slog.Debug("Manager Confirm served from archive", "userID", userID, "sessionID", archived.SessionID)
	reply := m.reply(archived, def)
	reply.Done = true
	reply.Result = resultFrom(archived)
	return reply, true
}

// Cancel abandons the user's live session.
func (m *Manager) Cancel(ctx context.Context, userID int64) (*Reply, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, def, err := m.loadActive(userID)
	if err != nil {
		return nil, err
	}

	sess.Status = models.SessionStatusCancelled
	if err := m.finishSession(sess); err != nil {
		return nil, err
	}
	if m.analytics != nil {
		m.analytics.FlowCancelled(sess.FlowKind)
	}
	slog.Info("Manager Cancel succeeded", "userID", userID, "flow", sess.FlowKind)

	reply := m.reply(sess, def)
	reply.Prompt = "Flow cancelled. Start a new one whenever you like."
	return reply, nil
}

// Current returns the user's live session state for resumption.
func (m *Manager) Current(ctx context.Context, userID int64) (*Reply, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, def, err := m.loadActive(userID)
	if err != nil {
		return nil, err
	}
	return m.reply(sess, def), nil
}

// LastCompleted returns the user's most recent archived session outcome.
func (m *Manager) LastCompleted(ctx context.Context, userID int64) (*Reply, error) {
	if reply, ok := m.completedReply(userID); ok {
		return reply, nil
	}
	return nil, models.ErrNoActiveSession
}

// ExpireStale expires every live session idle past the timeout. It returns
// the number of sessions expired and is safe to run concurrently with user
// traffic.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	sessions, err := m.store.ListSessions()
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range sessions {
		userID := sessions[i].UserID

		lock := m.userLock(userID)
		lock.Lock()
		// Re-load under the lock: the user may have acted since the listing.
		sess, err := m.store.GetSession(userID)
		if err == nil && sess != nil && m.isStale(sess) {
			sess.Status = models.SessionStatusExpired
			if err := m.finishSession(sess); err != nil {
				slog.Error("Manager ExpireStale failed to expire session", "userID", userID, "error", err)
			} else {
				expired++
				if m.analytics != nil {
					m.analytics.FlowExpired(sess.FlowKind)
				}
				slog.Info("Manager ExpireStale expired session", "userID", userID, "flow", sess.FlowKind, "idle", m.now().Sub(sess.LastUpdatedAt))
			}
		}
		lock.Unlock()
	}
	return expired, nil
}

func (m *Manager) isStale(sess *models.Session) bool {
	return m.now().Sub(sess.LastUpdatedAt) > m.cfg.IdleTimeout
}

// loadActive returns the user's live session and flow, expiring it inline
// when idle past the timeout.
func (m *Manager) loadActive(userID int64) (*models.Session, *flow.Definition, error) {
	sess, err := m.store.GetSession(userID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, models.ErrNoActiveSession
	}
	if m.isStale(sess) {
		slog.Info("Manager expiring idle session", "userID", userID, "flow", sess.FlowKind)
		sess.Status = models.SessionStatusExpired
		if err := m.finishSession(sess); err != nil {
			return nil, nil, err
		}
		if m.analytics != nil {
			m.analytics.FlowExpired(sess.FlowKind)
		}
		return nil, nil, models.ErrSessionExpired
	}
	def, err := flow.ForKind(sess.FlowKind)
	if err != nil {
		return nil, nil, err
	}
	return sess, def, nil
}

// saveSession touches and persists a live session with a fresh TTL.
func (m *Manager) saveSession(sess *models.Session) error {
	now := m.now()
	sess.Touch(now)
	return m.store.SaveSession(*sess, now.Add(m.cfg.SessionTTL))
}

// finishSession archives a finished session and removes the live row.
func (m *Manager) finishSession(sess *models.Session) error {
	sess.Touch(m.now())
	if err := m.store.ArchiveSession(*sess, m.now().Add(m.cfg.ArchiveTTL)); err != nil {
		return err
	}
	return m.store.DeleteSession(sess.UserID)
}

// reply builds the user-facing view of a session's current state.
func (m *Manager) reply(sess *models.Session, def *flow.Definition) *Reply {
	spec, _ := def.Spec(sess.CurrentState)
	r := &Reply{
		SessionID: sess.SessionID,
		FlowKind:  sess.FlowKind,
		State:     sess.CurrentState,
		Prompt:    spec.Prompt,
		Progress:  sess.ProgressFor(def.Required()),
	}
	if spec.Confirmation && !spec.Generating {
		r.Summary = summarize(sess, def)
	}
	return r
}

// summarize renders every answered field for the review screen.
func summarize(sess *models.Session, def *flow.Definition) map[models.Field]string {
	summary := make(map[models.Field]string)
	for _, f := range def.Fields() {
		v, ok := sess.Data.Get(f)
		if !ok {
			continue
		}
		summary[f] = renderValue(f, v)
	}
	return summary
}

func renderValue(f models.Field, v models.FieldValue) string {
	switch {
	case v.List != nil:
		if len(v.List) == 0 {
			return "none"
		}
		return strings.Join(v.List, ", ")
	case v.Text != "":
		return v.Text
	case v.Float != 0:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case v.Int != 0:
		return strconv.Itoa(v.Int)
	default:
		// Zero is a legal answer for some numeric fields (collations).
		if f == models.FieldCollations {
			return "0"
		}
		return ""
	}
}

func resultFrom(sess *models.Session) *Result {
	return &Result{
		Text:        sess.GetContext(models.ContextKeyResultText),
		PlanID:      sess.GetContext(models.ContextKeyPlanID),
		DocumentURL: sess.GetContext(models.ContextKeyDocumentURL),
	}
}

func replacementRequest(sess *models.Session) models.ReplacementRequest {
	d := sess.Data
	req := models.ReplacementRequest{
		PatientID:         sess.GetContext(models.ContextKeyPatientID),
		PlanID:            sess.GetContext(models.ContextKeyPlanID),
		SpecialConditions: d.SpecialConditions,
	}
	if d.Day != nil {
		req.Day = *d.Day
	}
	if d.Meal != nil {
		req.Meal = *d.Meal
	}
	if d.MealOption != nil {
		req.MealOption = *d.MealOption
	}
	if d.ReplacementType != nil {
		req.ReplacementType = *d.ReplacementType
	}
	if d.ReplacementReason != nil {
		req.Reason = *d.ReplacementReason
	}
	if d.SpecificRequest != nil {
		req.SpecificRequest = *d.SpecificRequest
	}
	return req
}
