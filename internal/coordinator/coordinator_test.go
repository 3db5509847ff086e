package coordinator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// fakePlanService scripts backend behavior per call.
type fakePlanService struct {
	createPatientErrs []error
	generateErrs      []error
	replaceResult     *models.ReplacementResult
	replaceErr        error
	renderErr         error
	createCalls       int
	generateCalls     int
	replaceCalls      int
	renderCalls       int
}

func (f *fakePlanService) CreatePatient(ctx context.Context, req models.PlanRequest) (string, error) {
	f.createCalls++
	if len(f.createPatientErrs) > 0 {
		err := f.createPatientErrs[0]
		f.createPatientErrs = f.createPatientErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "patient-1", nil
}

func (f *fakePlanService) GeneratePlan(ctx context.Context, req models.PlanRequest) (*models.PlanResult, error) {
	f.generateCalls++
	if len(f.generateErrs) > 0 {
		err := f.generateErrs[0]
		f.generateErrs = f.generateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.PlanResult{PlanID: "plan-1", Text: "three day plan"}, nil
}

func (f *fakePlanService) ReplaceMeal(ctx context.Context, req models.ReplacementRequest) (*models.ReplacementResult, error) {
	f.replaceCalls++
	if f.replaceErr != nil {
		return nil, f.replaceErr
	}
	return f.replaceResult, nil
}

func (f *fakePlanService) RenderDocument(ctx context.Context, planID string) (string, error) {
	f.renderCalls++
	if f.renderErr != nil {
		return "", f.renderErr
	}
	return "https://docs.example/" + planID, nil
}

func retryableErr() error {
	return &models.UpstreamError{Op: "test", StatusCode: 503, Retryable: true}
}

func terminalErr() error {
	return &models.UpstreamError{Op: "test", StatusCode: 422, Retryable: false}
}

func newTestCoordinator(svc PlanService) *Coordinator {
	return New(svc, WithBaseDelay(time.Millisecond))
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	svc := &fakePlanService{createPatientErrs: []error{retryableErr(), retryableErr(), nil}}
	c := newTestCoordinator(svc)

	_, _, err := c.CreatePlan(context.Background(), models.CollectedData{})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if svc.createCalls != 3 {
		t.Errorf("expected 3 create attempts, got %d", svc.createCalls)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	svc := &fakePlanService{createPatientErrs: []error{retryableErr(), retryableErr(), retryableErr()}}
	c := newTestCoordinator(svc)

	_, _, err := c.CreatePlan(context.Background(), models.CollectedData{})
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if svc.createCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", svc.createCalls)
	}
}

func TestExecuteStopsOnTerminalError(t *testing.T) {
	svc := &fakePlanService{createPatientErrs: []error{terminalErr()}}
	c := newTestCoordinator(svc)

	_, _, err := c.CreatePlan(context.Background(), models.CollectedData{})
	var ue *models.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != 422 {
		t.Fatalf("expected terminal upstream error, got %v", err)
	}
	if svc.createCalls != 1 {
		t.Errorf("expected a single attempt for terminal error, got %d", svc.createCalls)
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	svc := &fakePlanService{createPatientErrs: []error{retryableErr(), retryableErr(), retryableErr()}}
	c := New(svc, WithBaseDelay(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := c.CreatePlan(ctx, models.CollectedData{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
}

func TestCheckEquivalence(t *testing.T) {
	c := newTestCoordinator(&fakePlanService{})
	orig := models.NutrientTotals{Calories: 500, Protein: 30, Carbs: 50, Fat: 20}

	// Within tolerance on every metric: +4%, +3%, -2%, +1%.
	within := models.NutrientTotals{Calories: 520, Protein: 30.9, Carbs: 49, Fat: 20.2}
	if err := c.CheckEquivalence(orig, within); err != nil {
		t.Errorf("expected candidate within tolerance, got %v", err)
	}

	// Calories off by +8%.
	outside := models.NutrientTotals{Calories: 540, Protein: 30, Carbs: 50, Fat: 20}
	err := c.CheckEquivalence(orig, outside)
	var oot *models.OutOfToleranceError
	if !errors.As(err, &oot) {
		t.Fatalf("expected OutOfToleranceError, got %v", err)
	}
	if _, ok := oot.Deltas["calories"]; !ok {
		t.Errorf("expected calories delta reported, got %v", oot.Deltas)
	}
	if _, ok := oot.Deltas["protein"]; ok {
		t.Errorf("protein within tolerance should not be reported, got %v", oot.Deltas)
	}
}

func TestReplaceMealEnforcesTolerance(t *testing.T) {
	svc := &fakePlanService{replaceResult: &models.ReplacementResult{
		Text:      "lentil salad",
		Original:  models.NutrientTotals{Calories: 500, Protein: 30, Carbs: 50, Fat: 20},
		Candidate: models.NutrientTotals{Calories: 560, Protein: 30, Carbs: 50, Fat: 20},
	}}
	c := newTestCoordinator(svc)

	_, err := c.ReplaceMeal(context.Background(), models.ReplacementRequest{Day: 1, Meal: "lunch"})
	var oot *models.OutOfToleranceError
	if !errors.As(err, &oot) {
		t.Fatalf("expected OutOfToleranceError, got %v", err)
	}

	svc.replaceResult.Candidate = models.NutrientTotals{Calories: 510, Protein: 29, Carbs: 51, Fat: 20}
	result, err := c.ReplaceMeal(context.Background(), models.ReplacementRequest{Day: 1, Meal: "lunch"})
	if err != nil {
		t.Fatalf("expected acceptable candidate, got %v", err)
	}
	if result.Text != "lentil salad" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCreatePlanRendersDocument(t *testing.T) {
	svc := &fakePlanService{}
	c := newTestCoordinator(svc)

	result, patientID, err := c.CreatePlan(context.Background(), models.CollectedData{})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if patientID != "patient-1" {
		t.Errorf("expected patient-1, got %s", patientID)
	}
	if result.DocumentURL != "https://docs.example/plan-1" {
		t.Errorf("expected rendered document url, got %q", result.DocumentURL)
	}
}

func TestCreatePlanSurvivesRenderFailure(t *testing.T) {
	svc := &fakePlanService{renderErr: terminalErr()}
	c := newTestCoordinator(svc)

	result, _, err := c.CreatePlan(context.Background(), models.CollectedData{})
	if err != nil {
		t.Fatalf("expected plan despite render failure, got %v", err)
	}
	if result.DocumentURL != "" {
		t.Errorf("expected empty document url, got %q", result.DocumentURL)
	}
}

func TestHTTPPlanServiceClassifiesStatusCodes(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"patient_id":"p-9"}`))
	}))
	defer srv.Close()

	svc, err := NewHTTPPlanService(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewHTTPPlanService failed: %v", err)
	}

	status = http.StatusOK
	id, err := svc.CreatePatient(context.Background(), models.PlanRequest{})
	if err != nil || id != "p-9" {
		t.Errorf("expected p-9, got %q / %v", id, err)
	}

	status = http.StatusInternalServerError
	_, err = svc.CreatePatient(context.Background(), models.PlanRequest{})
	var ue *models.UpstreamError
	if !errors.As(err, &ue) || !ue.Retryable {
		t.Errorf("expected retryable upstream error for 500, got %v", err)
	}

	status = http.StatusNotFound
	_, err = svc.CreatePatient(context.Background(), models.PlanRequest{})
	if !errors.As(err, &ue) || ue.Retryable {
		t.Errorf("expected terminal upstream error for 404, got %v", err)
	}
}

func TestHTTPPlanServiceRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPPlanService(); err == nil {
		t.Error("expected error when base URL is missing")
	}
}
