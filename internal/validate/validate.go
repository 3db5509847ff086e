// Package validate implements per-field validation of raw user input.
//
// Validators are pure: they take the raw text for a field and either return a
// typed value or a ValidationError describing why the input was rejected.
// All range limits mirror the intake rules used by the nutrition practice.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// Range limits for numeric fields.
const (
	MinNameLength      = 2
	MaxNameLength      = 50
	MinAge             = 16
	MaxAge             = 80
	MinWeightKG        = 40
	MaxWeightKG        = 200
	MinHeightCM        = 140
	MaxHeightCM        = 220
	MinActivityMinutes = 15
	MaxActivityMinutes = 300
	MinMainMeals       = 2
	MaxMainMeals       = 4
	MinCollations      = 0
	MaxCollations      = 3
	MaxNotesLength     = 500
	MaxListItems       = 10
	MaxListItemLength  = 50
	MaxFreeTextLength  = 200
	MinDay             = 1
	MaxDay             = 3
	MinMealOption      = 1
	MaxMealOption      = 3
)

var nameRe = regexp.MustCompile(`^[\p{L} ]+$`)

// Enumerated vocabularies for selection fields.
var (
	Objectives       = []string{"maintenance", "lose_half_kg", "lose_one_kg", "lose_two_kg", "gain_half_kg", "gain_one_kg"}
	Activities       = []string{"sedentary", "walking", "weights", "cardio", "mixed", "athlete"}
	Frequencies      = []string{"never", "once_week", "twice_week", "three_times_week", "four_times_week", "five_times_week", "daily"}
	WeightTypes      = []string{"raw", "cooked"}
	EconomicLevels   = []string{"low", "medium", "high"}
	Sexes            = []string{"M", "F"}
	MealTypes        = []string{"breakfast", "lunch", "snack", "dinner", "collation"}
	ProgressLevels   = []string{"better", "same", "worse"}
	ComplianceLevels = []string{"high", "medium", "low"}
	ReplacementTypes = []string{"equivalent", "lighter", "heartier"}
)

// Markers a user may type to answer a list question with "nothing".
var emptyListMarkers = map[string]bool{
	"none": true,
	"no":   true,
	"-":    true,
}

// Field validates raw input for the given field and returns its typed value.
// Errors are always *models.ValidationError.
func Field(f models.Field, raw string) (models.FieldValue, error) {
	raw = strings.TrimSpace(raw)
	switch f {
	case models.FieldName:
		return name(f, raw)
	case models.FieldAge:
		return intInRange(f, raw, MinAge, MaxAge, "years")
	case models.FieldSex:
		return oneOf(f, strings.ToUpper(raw), Sexes)
	case models.FieldHeight:
		return floatInRange(f, raw, MinHeightCM, MaxHeightCM, "cm")
	case models.FieldWeight, models.FieldCurrentWeight:
		return floatInRange(f, raw, MinWeightKG, MaxWeightKG, "kg")
	case models.FieldObjective:
		return oneOf(f, raw, Objectives)
	case models.FieldActivityType:
		return oneOf(f, raw, Activities)
	case models.FieldActivityFrequency:
		return oneOf(f, raw, Frequencies)
	case models.FieldActivityDuration:
		return intInRange(f, raw, MinActivityMinutes, MaxActivityMinutes, "minutes")
	case models.FieldWeightType:
		return oneOf(f, raw, WeightTypes)
	case models.FieldEconomicLevel:
		return oneOf(f, raw, EconomicLevels)
	case models.FieldSupplements, models.FieldPathologies, models.FieldRestrictions,
		models.FieldPreferences, models.FieldDislikes, models.FieldAllergies,
		models.FieldDifficulties, models.FieldSpecialConditions:
		return list(f, raw)
	case models.FieldMainMeals:
		return intInRange(f, raw, MinMainMeals, MaxMainMeals, "meals")
	case models.FieldCollations:
		return intInRange(f, raw, MinCollations, MaxCollations, "collations")
	case models.FieldSchedule, models.FieldPreferenceChange,
		models.FieldReplacementReason, models.FieldSpecificRequest:
		return freeText(f, raw, MaxFreeTextLength)
	case models.FieldNotes, models.FieldInstructions:
		return freeText(f, raw, MaxNotesLength)
	case models.FieldProgress:
		return oneOf(f, raw, ProgressLevels)
	case models.FieldCompliance:
		return oneOf(f, raw, ComplianceLevels)
	case models.FieldObjectiveChange:
		return oneOfOrNone(f, raw, Objectives)
	case models.FieldActivityChange:
		return oneOfOrNone(f, raw, Activities)
	case models.FieldDay:
		return intInRange(f, raw, MinDay, MaxDay, "")
	case models.FieldMeal:
		return oneOf(f, raw, MealTypes)
	case models.FieldMealOption:
		return intInRange(f, raw, MinMealOption, MaxMealOption, "")
	case models.FieldReplacementType:
		return oneOf(f, raw, ReplacementTypes)
	}
	return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "unknown field"}
}

// Skipped returns the value stored when an optional field is skipped.
// List fields get an empty non-nil list so they count as answered.
func Skipped(f models.Field) models.FieldValue {
	switch f {
	case models.FieldSupplements, models.FieldPathologies, models.FieldRestrictions,
		models.FieldPreferences, models.FieldDislikes, models.FieldAllergies,
		models.FieldDifficulties, models.FieldSpecialConditions:
		return models.FieldValue{List: []string{}}
	default:
		return models.FieldValue{}
	}
}

func name(f models.Field, raw string) (models.FieldValue, error) {
	if raw == "" {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "required"}
	}
	if len([]rune(raw)) < MinNameLength {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "must be at least 2 characters"}
	}
	if len([]rune(raw)) > MaxNameLength {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "must be at most 50 characters"}
	}
	if !nameRe.MatchString(raw) {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "only letters and spaces allowed"}
	}
	return models.FieldValue{Text: raw}, nil
}

func intInRange(f models.Field, raw string, min, max int, unit string) (models.FieldValue, error) {
	if raw == "" {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "required"}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "must be a whole number"}
	}
	if n < min || n > max {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: rangeReason(min, max, unit)}
	}
	return models.FieldValue{Int: n}, nil
}

func floatInRange(f models.Field, raw string, min, max float64, unit string) (models.FieldValue, error) {
	if raw == "" {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "required"}
	}
	// Accept a decimal comma as well as a decimal point.
	raw = strings.ReplaceAll(raw, ",", ".")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "must be a number"}
	}
	if v < min || v > max {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: rangeReason(int(min), int(max), unit)}
	}
	return models.FieldValue{Float: v}, nil
}

func oneOf(f models.Field, raw string, allowed []string) (models.FieldValue, error) {
	if raw == "" {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "required"}
	}
	lowered := strings.ToLower(raw)
	if f == models.FieldSex {
		lowered = raw
	}
	for _, a := range allowed {
		if lowered == a {
			return models.FieldValue{Text: a}, nil
		}
	}
	return models.FieldValue{}, &models.ValidationError{
		Field:  f,
		Reason: "must be one of: " + strings.Join(allowed, ", "),
	}
}

func oneOfOrNone(f models.Field, raw string, allowed []string) (models.FieldValue, error) {
	if strings.ToLower(raw) == "none" {
		return models.FieldValue{Text: "none"}, nil
	}
	return oneOf(f, raw, allowed)
}

func list(f models.Field, raw string) (models.FieldValue, error) {
	if raw == "" {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "required"}
	}
	if emptyListMarkers[strings.ToLower(raw)] {
		return models.FieldValue{List: []string{}}, nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len([]rune(p)) > MaxListItemLength {
			return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "each item must be at most 50 characters"}
		}
		items = append(items, p)
	}
	if len(items) == 0 {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "required"}
	}
	if len(items) > MaxListItems {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "at most 10 items allowed"}
	}
	return models.FieldValue{List: items}, nil
}

func freeText(f models.Field, raw string, max int) (models.FieldValue, error) {
	if raw == "" {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "required"}
	}
	if len([]rune(raw)) > max {
		return models.FieldValue{}, &models.ValidationError{Field: f, Reason: "too long"}
	}
	return models.FieldValue{Text: raw}, nil
}

func rangeReason(min, max int, unit string) string {
	if unit == "" {
		return "must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)
	}
	return "must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max) + " " + unit
}
