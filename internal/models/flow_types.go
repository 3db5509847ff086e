// Package models defines flow and state type definitions to avoid circular imports.
package models

// FlowKind identifies one of the guided conversation flows.
type FlowKind string

// StateType represents a specific state within a flow.
type StateType string

// Field identifies a single piece of collected data within a flow.
type Field string

// Flow kind constants.
const (
	// FlowNewPatient collects a full intake and produces a new nutrition plan.
	FlowNewPatient FlowKind = "new_patient"
	// FlowControl collects progress data and produces an adjusted plan.
	FlowControl FlowKind = "control"
	// FlowReplacement swaps a single meal for an equivalent alternative.
	FlowReplacement FlowKind = "replacement"
)

// IsValidFlowKind checks if the given flow kind is supported.
func IsValidFlowKind(k FlowKind) bool {
	switch k {
	case FlowNewPatient, FlowControl, FlowReplacement:
		return true
	default:
		return false
	}
}

// State constants for the new-patient intake flow.
const (
	StateAskingName              StateType = "ASKING_NAME"
	StateAskingAge               StateType = "ASKING_AGE"
	StateAskingSex               StateType = "ASKING_SEX"
	StateAskingHeight            StateType = "ASKING_HEIGHT"
	StateAskingWeight            StateType = "ASKING_WEIGHT"
	StateAskingObjective         StateType = "ASKING_OBJECTIVE"
	StateAskingActivityType      StateType = "ASKING_ACTIVITY_TYPE"
	StateAskingActivityFrequency StateType = "ASKING_ACTIVITY_FREQUENCY"
	StateAskingActivityDuration  StateType = "ASKING_ACTIVITY_DURATION"
	StateAskingWeightType        StateType = "ASKING_WEIGHT_TYPE"
	StateAskingEconomicLevel     StateType = "ASKING_ECONOMIC_LEVEL"
	StateAskingSupplements       StateType = "ASKING_SUPPLEMENTS"
	StateAskingPathologies       StateType = "ASKING_PATHOLOGIES"
	StateAskingRestrictions      StateType = "ASKING_RESTRICTIONS"
	StateAskingPreferences       StateType = "ASKING_PREFERENCES"
	StateAskingDislikes          StateType = "ASKING_DISLIKES"
	StateAskingAllergies         StateType = "ASKING_ALLERGIES"
	StateAskingMainMeals         StateType = "ASKING_MAIN_MEALS"
	StateAskingCollations        StateType = "ASKING_COLLATIONS"
	StateAskingSchedule          StateType = "ASKING_SCHEDULE"
	StateAskingNotes             StateType = "ASKING_NOTES"
	StateReviewingData           StateType = "REVIEWING_DATA"
	StateGeneratingPlan          StateType = "GENERATING_PLAN"
	StatePlanReady               StateType = "PLAN_READY"
)

// State constants for the control/adjustment flow.
const (
	StateAskingCurrentWeight    StateType = "ASKING_CURRENT_WEIGHT"
	StateAskingProgress         StateType = "ASKING_PROGRESS"
	StateAskingCompliance       StateType = "ASKING_COMPLIANCE"
	StateAskingDifficulties     StateType = "ASKING_DIFFICULTIES"
	StateAskingObjectiveChange  StateType = "ASKING_OBJECTIVE_CHANGE"
	StateAskingActivityChange   StateType = "ASKING_ACTIVITY_CHANGE"
	StateAskingPreferenceChange StateType = "ASKING_PREFERENCE_CHANGE"
	StateAskingInstructions     StateType = "ASKING_SPECIFIC_INSTRUCTIONS"
	StateReviewingChanges       StateType = "REVIEWING_CHANGES"
	StateRegeneratingPlan       StateType = "REGENERATING_PLAN"
	StateAdjustmentReady        StateType = "ADJUSTMENT_READY"
)

// State constants for the meal-replacement flow.
const (
	StateSelectingDay            StateType = "SELECTING_DAY"
	StateSelectingMeal           StateType = "SELECTING_MEAL"
	StateSelectingMealOption     StateType = "SELECTING_MEAL_OPTION"
	StateAskingReplacementType   StateType = "ASKING_REPLACEMENT_TYPE"
	StateAskingReplacementReason StateType = "ASKING_REPLACEMENT_REASON"
	StateAskingSpecificRequest   StateType = "ASKING_SPECIFIC_REQUEST"
	StateAskingSpecialConditions StateType = "ASKING_SPECIAL_CONDITIONS"
	StateReviewingReplacement    StateType = "REVIEWING_REPLACEMENT"
	StateGeneratingReplacement   StateType = "GENERATING_REPLACEMENT"
	StateReplacementReady        StateType = "REPLACEMENT_READY"
)

// Field constants for the new-patient intake flow.
const (
	FieldName              Field = "name"
	FieldAge               Field = "age"
	FieldSex               Field = "sex"
	FieldHeight            Field = "height"
	FieldWeight            Field = "weight"
	FieldObjective         Field = "objective"
	FieldActivityType      Field = "activity_type"
	FieldActivityFrequency Field = "activity_frequency"
	FieldActivityDuration  Field = "activity_duration"
	FieldWeightType        Field = "weight_type"
	FieldEconomicLevel     Field = "economic_level"
	FieldSupplements       Field = "supplements"
	FieldPathologies       Field = "pathologies"
	FieldRestrictions      Field = "restrictions"
	FieldPreferences       Field = "preferences"
	FieldDislikes          Field = "dislikes"
	FieldAllergies         Field = "allergies"
	FieldMainMeals         Field = "main_meals"
	FieldCollations        Field = "collations"
	FieldSchedule          Field = "schedule"
	FieldNotes             Field = "notes"
)

// Field constants for the control/adjustment flow.
const (
	FieldCurrentWeight    Field = "current_weight"
	FieldProgress         Field = "progress"
	FieldCompliance       Field = "compliance"
	FieldDifficulties     Field = "difficulties"
	FieldObjectiveChange  Field = "objective_change"
	FieldActivityChange   Field = "activity_change"
	FieldPreferenceChange Field = "preference_change"
	FieldInstructions     Field = "instructions"
)

// Field constants for the meal-replacement flow.
const (
	FieldDay               Field = "day"
	FieldMeal              Field = "meal"
	FieldMealOption        Field = "meal_option"
	FieldReplacementType   Field = "replacement_type"
	FieldReplacementReason Field = "replacement_reason"
	FieldSpecificRequest   Field = "specific_request"
	FieldSpecialConditions Field = "special_conditions"
)
