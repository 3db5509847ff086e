// Package models defines the core data structures for the plan bot.
//
// It includes the conversation session, the data collected across flows, and
// the payload/result types exchanged with the plan backend. These types are
// shared across modules.
package models

import "time"

// SessionStatus represents the lifecycle status of a conversation session.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is accepting user events.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted indicates the flow reached its terminal state.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusCancelled indicates the user cancelled the flow.
	SessionStatusCancelled SessionStatus = "cancelled"
	// SessionStatusExpired indicates the session was idle past the timeout.
	SessionStatusExpired SessionStatus = "expired"
	// SessionStatusFailed indicates the session hit a non-recoverable error.
	SessionStatusFailed SessionStatus = "failed"
)

// Context keys stored on a session.
const (
	// ContextKeyPatientID holds the backend patient identifier once created.
	ContextKeyPatientID = "patient_id"
	// ContextKeyPlanID holds the backend plan identifier once generated.
	ContextKeyPlanID = "plan_id"
	// ContextKeyDocumentURL holds the rendered document handle, when available.
	ContextKeyDocumentURL = "document_url"
	// ContextKeyResultText holds the generated plan or replacement text.
	ContextKeyResultText = "result_text"
	// ContextKeyEditReturn holds the review state to return to after an edit.
	ContextKeyEditReturn = "edit_return_state"
)

// Session represents one user's progress through a single flow.
// A user has at most one live session at a time.
type Session struct {
	UserID        int64             `json:"user_id"`
	SessionID     string            `json:"session_id"`
	FlowKind      FlowKind          `json:"flow_kind"`
	CurrentState  StateType         `json:"current_state"`
	PreviousState StateType         `json:"previous_state,omitempty"`
	Status        SessionStatus     `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
	Errors        []string          `json:"errors,omitempty"`
	Retries       int               `json:"retries"`
	MaxRetries    int               `json:"max_retries"`
	Data          CollectedData     `json:"data"`
	Context       map[string]string `json:"context,omitempty"`
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastUpdatedAt = now
}

// RecordError appends an error message and bumps the retry counter.
// It reports whether the session is still within its retry budget.
func (s *Session) RecordError(msg string) bool {
	s.Errors = append(s.Errors, msg)
	s.Retries++
	return s.Retries < s.MaxRetries
}

// ResetRetries clears the retry counter after a successful advance.
func (s *Session) ResetRetries() {
	s.Retries = 0
}

// SetContext stores a key/value pair on the session context.
func (s *Session) SetContext(key, value string) {
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	s.Context[key] = value
}

// GetContext retrieves a context value, returning "" when absent.
func (s *Session) GetContext(key string) string {
	if s.Context == nil {
		return ""
	}
	return s.Context[key]
}

// ClearContext removes a context key.
func (s *Session) ClearContext(key string) {
	if s.Context != nil {
		delete(s.Context, key)
	}
}

// Progress summarizes how far a session has advanced through its flow.
type Progress struct {
	Answered int `json:"answered"`
	Required int `json:"required"`
}

// ProgressFor reports answered-vs-required counts over the given required fields.
func (s *Session) ProgressFor(required []Field) Progress {
	p := Progress{Required: len(required)}
	for _, f := range required {
		if _, ok := s.Data.Get(f); ok {
			p.Answered++
		}
	}
	return p
}

// FieldValue is the typed result of validating a raw user input.
// Exactly one of the value fields is meaningful for a given Field.
type FieldValue struct {
	Text  string   `json:"text,omitempty"`
	Int   int      `json:"int,omitempty"`
	Float float64  `json:"float,omitempty"`
	List  []string `json:"list,omitempty"`
}

// CollectedData holds everything gathered during a flow. Scalar fields are
// pointers so that "not yet answered" is distinguishable from a zero value.
type CollectedData struct {
	// New-patient intake.
	Name              *string  `json:"name,omitempty"`
	Age               *int     `json:"age,omitempty"`
	Sex               *string  `json:"sex,omitempty"`
	HeightCM          *float64 `json:"height_cm,omitempty"`
	WeightKG          *float64 `json:"weight_kg,omitempty"`
	Objective         *string  `json:"objective,omitempty"`
	ActivityType      *string  `json:"activity_type,omitempty"`
	ActivityFrequency *string  `json:"activity_frequency,omitempty"`
	ActivityDuration  *int     `json:"activity_duration,omitempty"`
	WeightType        *string  `json:"weight_type,omitempty"`
	EconomicLevel     *string  `json:"economic_level,omitempty"`
	Supplements       []string `json:"supplements,omitempty"`
	Pathologies       []string `json:"pathologies,omitempty"`
	Restrictions      []string `json:"restrictions,omitempty"`
	Preferences       []string `json:"preferences,omitempty"`
	Dislikes          []string `json:"dislikes,omitempty"`
	Allergies         []string `json:"allergies,omitempty"`
	MainMeals         *int     `json:"main_meals,omitempty"`
	Collations        *int     `json:"collations,omitempty"`
	Schedule          *string  `json:"schedule,omitempty"`
	Notes             *string  `json:"notes,omitempty"`

	// Control/adjustment.
	CurrentWeightKG  *float64 `json:"current_weight_kg,omitempty"`
	Progress         *string  `json:"progress,omitempty"`
	Compliance       *string  `json:"compliance,omitempty"`
	Difficulties     []string `json:"difficulties,omitempty"`
	ObjectiveChange  *string  `json:"objective_change,omitempty"`
	ActivityChange   *string  `json:"activity_change,omitempty"`
	PreferenceChange *string  `json:"preference_change,omitempty"`
	Instructions     *string  `json:"instructions,omitempty"`

	// Meal replacement.
	Day               *int     `json:"day,omitempty"`
	Meal              *string  `json:"meal,omitempty"`
	MealOption        *int     `json:"meal_option,omitempty"`
	ReplacementType   *string  `json:"replacement_type,omitempty"`
	ReplacementReason *string  `json:"replacement_reason,omitempty"`
	SpecificRequest   *string  `json:"specific_request,omitempty"`
	SpecialConditions []string `json:"special_conditions,omitempty"`
}

// Set stores a validated field value under the given field.
func (d *CollectedData) Set(f Field, v FieldValue) {
	switch f {
	case FieldName:
		d.Name = &v.Text
	case FieldAge:
		d.Age = &v.Int
	case FieldSex:
		d.Sex = &v.Text
	case FieldHeight:
		d.HeightCM = &v.Float
	case FieldWeight:
		d.WeightKG = &v.Float
	case FieldObjective:
		d.Objective = &v.Text
	case FieldActivityType:
		d.ActivityType = &v.Text
	case FieldActivityFrequency:
		d.ActivityFrequency = &v.Text
	case FieldActivityDuration:
		d.ActivityDuration = &v.Int
	case FieldWeightType:
		d.WeightType = &v.Text
	case FieldEconomicLevel:
		d.EconomicLevel = &v.Text
	case FieldSupplements:
		d.Supplements = v.List
	case FieldPathologies:
		d.Pathologies = v.List
	case FieldRestrictions:
		d.Restrictions = v.List
	case FieldPreferences:
		d.Preferences = v.List
	case FieldDislikes:
		d.Dislikes = v.List
	case FieldAllergies:
		d.Allergies = v.List
	case FieldMainMeals:
		d.MainMeals = &v.Int
	case FieldCollations:
		d.Collations = &v.Int
	case FieldSchedule:
		d.Schedule = &v.Text
	case FieldNotes:
		d.Notes = &v.Text
	case FieldCurrentWeight:
		d.CurrentWeightKG = &v.Float
	case FieldProgress:
		d.Progress = &v.Text
	case FieldCompliance:
		d.Compliance = &v.Text
	case FieldDifficulties:
		d.Difficulties = v.List
	case FieldObjectiveChange:
		d.ObjectiveChange = &v.Text
	case FieldActivityChange:
		d.ActivityChange = &v.Text
	case FieldPreferenceChange:
		d.PreferenceChange = &v.Text
	case FieldInstructions:
		d.Instructions = &v.Text
	case FieldDay:
		d.Day = &v.Int
	case FieldMeal:
		d.Meal = &v.Text
	case FieldMealOption:
		d.MealOption = &v.Int
	case FieldReplacementType:
		d.ReplacementType = &v.Text
	case FieldReplacementReason:
		d.ReplacementReason = &v.Text
	case FieldSpecificRequest:
		d.SpecificRequest = &v.Text
	case FieldSpecialConditions:
		d.SpecialConditions = v.List
	}
}

// Get retrieves the stored value for a field, reporting whether it was set.
// List fields report set when non-nil, so an explicitly skipped list (empty
// but non-nil) still counts as answered.
func (d *CollectedData) Get(f Field) (FieldValue, bool) {
	switch f {
	case FieldName:
		return textValue(d.Name)
	case FieldAge:
		return intValue(d.Age)
	case FieldSex:
		return textValue(d.Sex)
	case FieldHeight:
		return floatValue(d.HeightCM)
	case FieldWeight:
		return floatValue(d.WeightKG)
	case FieldObjective:
		return textValue(d.Objective)
	case FieldActivityType:
		return textValue(d.ActivityType)
	case FieldActivityFrequency:
		return textValue(d.ActivityFrequency)
	case FieldActivityDuration:
		return intValue(d.ActivityDuration)
	case FieldWeightType:
		return textValue(d.WeightType)
	case FieldEconomicLevel:
		return textValue(d.EconomicLevel)
	case FieldSupplements:
		return listValue(d.Supplements)
	case FieldPathologies:
		return listValue(d.Pathologies)
	case FieldRestrictions:
		return listValue(d.Restrictions)
	case FieldPreferences:
		return listValue(d.Preferences)
	case FieldDislikes:
		return listValue(d.Dislikes)
	case FieldAllergies:
		return listValue(d.Allergies)
	case FieldMainMeals:
		return intValue(d.MainMeals)
	case FieldCollations:
		return intValue(d.Collations)
	case FieldSchedule:
		return textValue(d.Schedule)
	case FieldNotes:
		return textValue(d.Notes)
	case FieldCurrentWeight:
		return floatValue(d.CurrentWeightKG)
	case FieldProgress:
		return textValue(d.Progress)
	case FieldCompliance:
		return textValue(d.Compliance)
	case FieldDifficulties:
		return listValue(d.Difficulties)
	case FieldObjectiveChange:
		return textValue(d.ObjectiveChange)
	case FieldActivityChange:
		return textValue(d.ActivityChange)
	case FieldPreferenceChange:
		return textValue(d.PreferenceChange)
	case FieldInstructions:
		return textValue(d.Instructions)
	case FieldDay:
		return intValue(d.Day)
	case FieldMeal:
		return textValue(d.Meal)
	case FieldMealOption:
		return intValue(d.MealOption)
	case FieldReplacementType:
		return textValue(d.ReplacementType)
	case FieldReplacementReason:
		return textValue(d.ReplacementReason)
	case FieldSpecificRequest:
		return textValue(d.SpecificRequest)
	case FieldSpecialConditions:
		return listValue(d.SpecialConditions)
	}
	return FieldValue{}, false
}

// IsComplete reports whether every required field has been answered.
func (d *CollectedData) IsComplete(required []Field) bool {
	return len(d.MissingFields(required)) == 0
}

// MissingFields returns the required fields that have not been answered yet,
// in the order given.
func (d *CollectedData) MissingFields(required []Field) []Field {
	var missing []Field
	for _, f := range required {
		if _, ok := d.Get(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

func textValue(p *string) (FieldValue, bool) {
	if p == nil {
		return FieldValue{}, false
	}
	return FieldValue{Text: *p}, true
}

func intValue(p *int) (FieldValue, bool) {
	if p == nil {
		return FieldValue{}, false
	}
	return FieldValue{Int: *p}, true
}

func floatValue(p *float64) (FieldValue, bool) {
	if p == nil {
		return FieldValue{}, false
	}
	return FieldValue{Float: *p}, true
}

func listValue(l []string) (FieldValue, bool) {
	if l == nil {
		return FieldValue{}, false
	}
	return FieldValue{List: l}, true
}

// NutrientTotals holds the macro totals of a meal or plan.
type NutrientTotals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Deltas computes the relative per-metric deviation of a candidate against
// the receiver. A zero original metric with a non-zero candidate counts as a
// full deviation.
func (n NutrientTotals) Deltas(candidate NutrientTotals) map[string]float64 {
	return map[string]float64{
		"calories": relativeDelta(n.Calories, candidate.Calories),
		"protein":  relativeDelta(n.Protein, candidate.Protein),
		"carbs":    relativeDelta(n.Carbs, candidate.Carbs),
		"fat":      relativeDelta(n.Fat, candidate.Fat),
	}
}

func relativeDelta(orig, cand float64) float64 {
	if orig == 0 {
		if cand == 0 {
			return 0
		}
		return 1
	}
	d := (cand - orig) / orig
	if d < 0 {
		return -d
	}
	return d
}

// PlanRequest is the payload sent to the plan backend to generate or
// regenerate a nutrition plan.
type PlanRequest struct {
	PatientID string        `json:"patient_id,omitempty"`
	FlowKind  FlowKind      `json:"flow_kind"`
	Data      CollectedData `json:"data"`
}

// PlanResult is the backend's answer to a plan generation request.
type PlanResult struct {
	PlanID      string         `json:"plan_id"`
	Text        string         `json:"text"`
	Totals      NutrientTotals `json:"totals"`
	DocumentURL string         `json:"document_url,omitempty"`
}

// ReplacementRequest is the payload for a single-meal replacement.
type ReplacementRequest struct {
	PatientID         string   `json:"patient_id,omitempty"`
	PlanID            string   `json:"plan_id,omitempty"`
	Day               int      `json:"day"`
	Meal              string   `json:"meal"`
	MealOption        int      `json:"meal_option"`
	ReplacementType   string   `json:"replacement_type"`
	Reason            string   `json:"reason,omitempty"`
	SpecificRequest   string   `json:"specific_request,omitempty"`
	SpecialConditions []string `json:"special_conditions,omitempty"`
}

// ReplacementResult is the backend's answer to a meal replacement request,
// carrying the original and candidate macro totals for the equivalence check.
type ReplacementResult struct {
	Text      string         `json:"text"`
	Original  NutrientTotals `json:"original"`
	Candidate NutrientTotals `json:"candidate"`
}
