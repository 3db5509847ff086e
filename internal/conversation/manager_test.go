package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/coordinator"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/store"
)

// fakePlanService answers backend calls with canned results and counts calls.
type fakePlanService struct {
	createCalls   int
	generateCalls int
	replaceCalls  int

	generateErr error
	replaceErr  error
	candidate   *models.NutrientTotals

	lastPlanReq    models.PlanRequest
	lastReplaceReq models.ReplacementRequest
}

func (f *fakePlanService) CreatePatient(ctx context.Context, req models.PlanRequest) (string, error) {
	f.createCalls++
	f.lastPlanReq = req
	return "patient-1", nil
}

func (f *fakePlanService) GeneratePlan(ctx context.Context, req models.PlanRequest) (*models.PlanResult, error) {
	f.generateCalls++
	f.lastPlanReq = req
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &models.PlanResult{
		PlanID: "plan-1",
		Text:   "Day 1: oats. Day 2: rice. Day 3: pasta.",
		Totals: models.NutrientTotals{Calories: 1800, Protein: 120, Carbs: 180, Fat: 60},
	}, nil
}

func (f *fakePlanService) ReplaceMeal(ctx context.Context, req models.ReplacementRequest) (*models.ReplacementResult, error) {
	f.replaceCalls++
	f.lastReplaceReq = req
	if f.replaceErr != nil {
		return nil, f.replaceErr
	}
	original := models.NutrientTotals{Calories: 500, Protein: 30, Carbs: 50, Fat: 20}
	candidate := original
	if f.candidate != nil {
		candidate = *f.candidate
	}
	return &models.ReplacementResult{
		Text:      "Replacement: grilled chicken salad.",
		Original:  original,
		Candidate: candidate,
	}, nil
}

func (f *fakePlanService) RenderDocument(ctx context.Context, planID string) (string, error) {
	return "https://docs.example.test/" + planID + ".pdf", nil
}

func newTestManager(svc coordinator.PlanService, opts ...Option) *Manager {
	planner := coordinator.New(svc, coordinator.WithBaseDelay(time.Millisecond), coordinator.WithMaxRetries(1))
	return NewManager(store.NewInMemoryStore(), planner, opts...)
}

// answer advances the session with one input, failing the test on rejection.
func answer(t *testing.T, m *Manager, userID int64, input string) *Reply {
	t.Helper()
	reply, err := m.Advance(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("Advance(%q) failed: %v", input, err)
	}
	return reply
}

var replacementAnswers = []string{"2", "lunch", "1", "equivalent", "too heavy", "something lighter", "skip"}

var newPatientAnswers = []string{
	"Maria Lopez", "34", "F", "165", "68.5",
	"lose_one_kg", "weights", "three_times_week", "60", "raw", "medium",
	"skip", "none", "skip", "chicken, rice", "skip", "skip",
	"4", "2", "skip", "skip",
}

// completeNewPatient walks the full intake flow through confirmation, leaving
// an archived completed session behind.
func completeNewPatient(t *testing.T, m *Manager, userID int64) *Reply {
	t.Helper()
	if _, err := m.Create(context.Background(), userID, models.FlowNewPatient); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, in := range newPatientAnswers {
		answer(t, m, userID, in)
	}
	reply, err := m.Confirm(context.Background(), userID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	return reply
}

func walkToReplacementReview(t *testing.T, m *Manager, userID int64) *Reply {
	t.Helper()
	reply, err := m.Create(context.Background(), userID, models.FlowReplacement)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, in := range replacementAnswers {
		reply = answer(t, m, userID, in)
	}
	return reply
}

func TestReplacementFlowEndToEnd(t *testing.T) {
	svc := &fakePlanService{}
	m := newTestManager(svc)

	reply := walkToReplacementReview(t, m, 1)
	if reply.State != models.StateReviewingReplacement {
		t.Fatalf("expected review state after all answers, got %s", reply.State)
	}
	if reply.Summary[models.FieldMeal] != "lunch" {
		t.Errorf("expected summary to show the chosen meal, got %q", reply.Summary[models.FieldMeal])
	}
	if reply.Summary[models.FieldSpecialConditions] != "none" {
		t.Errorf("expected skipped list rendered as none, got %q", reply.Summary[models.FieldSpecialConditions])
	}

	reply, err := m.Confirm(context.Background(), 1)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !reply.Done || reply.Result == nil {
		t.Fatalf("expected completed reply with result, got %+v", reply)
	}
	if reply.Result.Text == "" {
		t.Error("expected replacement text in result")
	}
	if svc.lastReplaceReq.Day != 2 || svc.lastReplaceReq.Meal != "lunch" || svc.lastReplaceReq.ReplacementType != "equivalent" {
		t.Errorf("backend received wrong request: %+v", svc.lastReplaceReq)
	}

	if _, err := m.Current(context.Background(), 1); !errors.Is(err, models.ErrNoActiveSession) {
		t.Errorf("expected session removed after completion, got %v", err)
	}
}

func TestNewPatientFlowEndToEnd(t *testing.T) {
	svc := &fakePlanService{}
	m := newTestManager(svc)

	if _, err := m.Create(context.Background(), 7, models.FlowNewPatient); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	var reply *Reply
	for _, in := range newPatientAnswers {
		reply = answer(t, m, 7, in)
	}
	if reply.State != models.StateReviewingData {
		t.Fatalf("expected review state, got %s", reply.State)
	}
	if reply.Progress.Answered != reply.Progress.Required {
		t.Errorf("expected all required fields answered, got %+v", reply.Progress)
	}

	reply, err := m.Confirm(context.Background(), 7)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if svc.createCalls != 1 || svc.generateCalls != 1 {
		t.Errorf("expected one create and one generate call, got %d and %d", svc.createCalls, svc.generateCalls)
	}
	if svc.lastPlanReq.PatientID != "patient-1" {
		t.Errorf("expected generate to carry the created patient id, got %q", svc.lastPlanReq.PatientID)
	}
	if got := svc.lastPlanReq.Data; got.Name == nil || *got.Name != "Maria Lopez" {
		t.Errorf("backend did not receive collected name: %+v", got.Name)
	}
	if reply.Result == nil || reply.Result.PlanID != "plan-1" {
		t.Fatalf("expected plan id in result, got %+v", reply.Result)
	}
	if reply.Result.DocumentURL == "" {
		t.Error("expected rendered document URL in result")
	}
}

func TestControlFlowEndToEnd(t *testing.T) {
	svc := &fakePlanService{}
	m := newTestManager(svc)

	if _, err := m.Create(context.Background(), 3, models.FlowControl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	var reply *Reply
	for _, in := range []string{"82.5", "better", "high", "skip", "none", "none", "more vegetables", "skip"} {
		reply = answer(t, m, 3, in)
	}
	if reply.State != models.StateReviewingChanges {
		t.Fatalf("expected review state, got %s", reply.State)
	}

	if _, err := m.Confirm(context.Background(), 3); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if svc.generateCalls != 1 {
		t.Errorf("expected one generate call, got %d", svc.generateCalls)
	}
	if svc.lastPlanReq.FlowKind != models.FlowControl {
		t.Errorf("expected adjustment request, got %s", svc.lastPlanReq.FlowKind)
	}
}

func TestInvalidInputRepromptsSameState(t *testing.T) {
	m := newTestManager(&fakePlanService{})
	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	reply, err := m.Advance(context.Background(), 1, "9")
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for day 9, got %v", err)
	}
	if reply == nil || reply.State != models.StateSelectingDay {
		t.Fatalf("expected re-prompt of the same state, got %+v", reply)
	}

	reply = answer(t, m, 1, "2")
	if reply.State != models.StateSelectingMeal {
		t.Errorf("expected valid input to advance, got %s", reply.State)
	}
}

func TestRetryBudgetFailsSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	m := newTestManager(&fakePlanService{}, WithConfig(cfg))
	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Advance(context.Background(), 1, "not a day"); err == nil {
			t.Fatalf("expected rejection on attempt %d", i+1)
		}
	}
	if _, err := m.Advance(context.Background(), 1, "still not a day"); !errors.Is(err, models.ErrRetryLimitExceeded) {
		t.Fatalf("expected retry limit error on final attempt, got %v", err)
	}
	if _, err := m.Current(context.Background(), 1); !errors.Is(err, models.ErrNoActiveSession) {
		t.Errorf("expected failed session removed, got %v", err)
	}
}

func TestSkipRejectedOnRequiredState(t *testing.T) {
	m := newTestManager(&fakePlanService{})
	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Advance(context.Background(), 1, "skip"); err == nil {
		t.Error("expected skip to be rejected on a required state")
	}
}

func TestEditFromReviewReturnsToReview(t *testing.T) {
	m := newTestManager(&fakePlanService{})
	walkToReplacementReview(t, m, 1)

	reply, err := m.RequestEdit(context.Background(), 1, models.FieldDay)
	if err != nil {
		t.Fatalf("RequestEdit failed: %v", err)
	}
	if reply.State != models.StateSelectingDay {
		t.Fatalf("expected edit to rewind to the day question, got %s", reply.State)
	}

	reply = answer(t, m, 1, "3")
	if reply.State != models.StateReviewingReplacement {
		t.Fatalf("expected answer mid-edit to return to review, got %s", reply.State)
	}
	if reply.Summary[models.FieldDay] != "3" {
		t.Errorf("expected edited day in summary, got %q", reply.Summary[models.FieldDay])
	}
	if reply.Summary[models.FieldMeal] != "lunch" {
		t.Errorf("expected other answers preserved, got %q", reply.Summary[models.FieldMeal])
	}
}

func TestEditOutsideReviewRejected(t *testing.T) {
	m := newTestManager(&fakePlanService{})
	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := m.RequestEdit(context.Background(), 1, models.FieldDay)
	var ferr *models.FlowError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected flow error when editing outside review, got %v", err)
	}
}

func TestConfirmOutsideReviewRejected(t *testing.T) {
	m := newTestManager(&fakePlanService{})
	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := m.Confirm(context.Background(), 1)
	var ferr *models.FlowError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected flow error when confirming mid-collection, got %v", err)
	}
}

func TestCreateRejectedWhileSessionLive(t *testing.T) {
	m := newTestManager(&fakePlanService{})

	first, err := m.Create(context.Background(), 9, models.FlowNewPatient)
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err = m.Create(context.Background(), 9, models.FlowControl)
	var ferr *models.FlowError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected flow error while a session is live, got %v", err)
	}
	if ferr.Op != "start" {
		t.Errorf("expected start rejection, got op %q", ferr.Op)
	}

	// The live session is untouched by the rejected start.
	current, err := m.Current(context.Background(), 9)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current.SessionID != first.SessionID || current.FlowKind != models.FlowNewPatient {
		t.Errorf("expected original session still live, got %+v", current)
	}

	// Cancelling frees the slot for a new flow.
	if _, err := m.Cancel(context.Background(), 9); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	fresh, err := m.Create(context.Background(), 9, models.FlowControl)
	if err != nil {
		t.Fatalf("Create after cancel failed: %v", err)
	}
	if fresh.SessionID == first.SessionID || fresh.State != models.StateAskingCurrentWeight {
		t.Errorf("expected a fresh control session, got %+v", fresh)
	}
}

func TestCreateAfterIdleSessionSucceeds(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	st := store.NewInMemoryStoreWithClock(func() time.Time { return clock() })
	planner := coordinator.New(&fakePlanService{}, coordinator.WithBaseDelay(time.Millisecond))

	cfg := DefaultConfig()
	cfg.SessionTTL = 2 * time.Hour
	cfg.IdleTimeout = 30 * time.Minute
	m := NewManager(st, planner, WithConfig(cfg), WithClock(func() time.Time { return clock() }))

	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	later := now.Add(31 * time.Minute)
	clock = func() time.Time { return later }

	reply, err := m.Create(context.Background(), 1, models.FlowControl)
	if err != nil {
		t.Fatalf("Create after idle timeout failed: %v", err)
	}
	if reply.State != models.StateAskingCurrentWeight {
		t.Errorf("expected new control session, got %s", reply.State)
	}
	archived, err := st.GetLatestArchive(1)
	if err != nil || archived == nil || archived.Status != models.SessionStatusExpired {
		t.Errorf("expected idle session archived as expired, got %+v, %v", archived, err)
	}
}

func TestControlFlowCarriesPatientRef(t *testing.T) {
	svc := &fakePlanService{}
	m := newTestManager(svc)
	completeNewPatient(t, m, 5)

	if _, err := m.Create(context.Background(), 5, models.FlowControl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, in := range []string{"82.5", "better", "high", "skip", "none", "none", "more vegetables", "skip"} {
		answer(t, m, 5, in)
	}
	if _, err := m.Confirm(context.Background(), 5); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if svc.lastPlanReq.PatientID != "patient-1" {
		t.Errorf("expected adjustment to carry the archived patient id, got %q", svc.lastPlanReq.PatientID)
	}
}

func TestReplacementCarriesPlanRefs(t *testing.T) {
	svc := &fakePlanService{}
	m := newTestManager(svc)
	completeNewPatient(t, m, 6)

	walkToReplacementReview(t, m, 6)
	if _, err := m.Confirm(context.Background(), 6); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if svc.lastReplaceReq.PatientID != "patient-1" {
		t.Errorf("expected replacement to carry the archived patient id, got %q", svc.lastReplaceReq.PatientID)
	}
	if svc.lastReplaceReq.PlanID != "plan-1" {
		t.Errorf("expected replacement to carry the archived plan id, got %q", svc.lastReplaceReq.PlanID)
	}
}

func TestCancelArchivesSession(t *testing.T) {
	st := store.NewInMemoryStore()
	planner := coordinator.New(&fakePlanService{}, coordinator.WithBaseDelay(time.Millisecond))
	m := NewManager(st, planner)

	if _, err := m.Create(context.Background(), 1, models.FlowControl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := m.Cancel(context.Background(), 1); !errors.Is(err, models.ErrNoActiveSession) {
		t.Errorf("expected no session after cancel, got %v", err)
	}
	archived, err := st.GetLatestArchive(1)
	if err != nil || archived == nil || archived.Status != models.SessionStatusCancelled {
		t.Errorf("expected cancelled archive, got %+v, %v", archived, err)
	}
}

func TestIdleSessionExpiresOnNextEvent(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	st := store.NewInMemoryStoreWithClock(func() time.Time { return clock() })
	planner := coordinator.New(&fakePlanService{}, coordinator.WithBaseDelay(time.Millisecond))

	cfg := DefaultConfig()
	cfg.SessionTTL = 2 * time.Hour
	cfg.IdleTimeout = 30 * time.Minute
	m := NewManager(st, planner, WithConfig(cfg), WithClock(func() time.Time { return clock() }))

	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	later := now.Add(31 * time.Minute)
	clock = func() time.Time { return later }

	if _, err := m.Advance(context.Background(), 1, "2"); !errors.Is(err, models.ErrSessionExpired) {
		t.Fatalf("expected idle session to expire, got %v", err)
	}
	archived, err := st.GetLatestArchive(1)
	if err != nil || archived == nil || archived.Status != models.SessionStatusExpired {
		t.Errorf("expected expired archive, got %+v, %v", archived, err)
	}
}

func TestExpireStaleSweep(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	st := store.NewInMemoryStoreWithClock(func() time.Time { return clock() })
	planner := coordinator.New(&fakePlanService{}, coordinator.WithBaseDelay(time.Millisecond))

	cfg := DefaultConfig()
	cfg.SessionTTL = 2 * time.Hour
	cfg.IdleTimeout = 30 * time.Minute
	m := NewManager(st, planner, WithConfig(cfg), WithClock(func() time.Time { return clock() }))

	for userID := int64(1); userID <= 2; userID++ {
		if _, err := m.Create(context.Background(), userID, models.FlowControl); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	later := now.Add(31 * time.Minute)
	clock = func() time.Time { return later }

	expired, err := m.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("ExpireStale failed: %v", err)
	}
	if expired != 2 {
		t.Errorf("expected 2 sessions expired, got %d", expired)
	}
	sessions, err := st.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no live sessions after sweep, got %d", len(sessions))
	}
}

func TestBackendFailureReturnsToReview(t *testing.T) {
	svc := &fakePlanService{
		replaceErr: &models.UpstreamError{Op: "replace_meal", StatusCode: 400, Retryable: false},
	}
	m := newTestManager(svc)
	walkToReplacementReview(t, m, 1)

	reply, err := m.Confirm(context.Background(), 1)
	if err == nil {
		t.Fatal("expected confirm to surface the backend failure")
	}
	if reply == nil || reply.State != models.StateReviewingReplacement {
		t.Fatalf("expected session back at review for retry, got %+v", reply)
	}

	svc.replaceErr = nil
	reply, err = m.Confirm(context.Background(), 1)
	if err != nil {
		t.Fatalf("retried Confirm failed: %v", err)
	}
	if !reply.Done {
		t.Error("expected retried confirm to complete the flow")
	}
}

func TestOutOfToleranceRewindsToSpecificRequest(t *testing.T) {
	svc := &fakePlanService{
		candidate: &models.NutrientTotals{Calories: 560, Protein: 30, Carbs: 50, Fat: 20},
	}
	m := newTestManager(svc)
	walkToReplacementReview(t, m, 1)

	reply, err := m.Confirm(context.Background(), 1)
	var oot *models.OutOfToleranceError
	if !errors.As(err, &oot) {
		t.Fatalf("expected out-of-tolerance error, got %v", err)
	}
	if reply == nil || reply.State != models.StateAskingSpecificRequest {
		t.Fatalf("expected rewind to the specific-request question, got %+v", reply)
	}

	// A new request walks the tail of the flow and confirms again.
	svc.candidate = nil
	answer(t, m, 1, "a lighter salad")
	reply = answer(t, m, 1, "skip")
	if reply.State != models.StateReviewingReplacement {
		t.Fatalf("expected to be back at review, got %s", reply.State)
	}
	reply, err = m.Confirm(context.Background(), 1)
	if err != nil {
		t.Fatalf("Confirm after new request failed: %v", err)
	}
	if !reply.Done {
		t.Error("expected flow to complete with the new candidate")
	}
	if svc.lastReplaceReq.SpecificRequest != "a lighter salad" {
		t.Errorf("expected updated request sent to backend, got %q", svc.lastReplaceReq.SpecificRequest)
	}
}

func TestConfirmIdempotentAfterCompletion(t *testing.T) {
	svc := &fakePlanService{}
	m := newTestManager(svc)
	walkToReplacementReview(t, m, 1)

	first, err := m.Confirm(context.Background(), 1)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	second, err := m.Confirm(context.Background(), 1)
	if err != nil {
		t.Fatalf("repeated Confirm failed: %v", err)
	}
	if !second.Done || second.Result == nil || second.Result.Text != first.Result.Text {
		t.Errorf("expected cached result on repeat, got %+v", second)
	}
	if svc.replaceCalls != 1 {
		t.Errorf("expected backend called once, got %d", svc.replaceCalls)
	}
}

func TestCurrentResumesSession(t *testing.T) {
	m := newTestManager(&fakePlanService{})
	if _, err := m.Create(context.Background(), 1, models.FlowReplacement); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	answer(t, m, 1, "2")

	reply, err := m.Current(context.Background(), 1)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if reply.State != models.StateSelectingMeal {
		t.Errorf("expected resume at the meal question, got %s", reply.State)
	}
	if reply.Prompt == "" {
		t.Error("expected resume reply to carry the state prompt")
	}
}
