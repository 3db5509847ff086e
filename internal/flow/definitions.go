package flow

import "github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"

// NewPatient is the full intake flow for a first nutrition plan.
var NewPatient = &Definition{
	Kind:    models.FlowNewPatient,
	Initial: models.StateAskingName,
	Order: []models.StateType{
		models.StateAskingName,
		models.StateAskingAge,
		models.StateAskingSex,
		models.StateAskingHeight,
		models.StateAskingWeight,
		models.StateAskingObjective,
		models.StateAskingActivityType,
		models.StateAskingActivityFrequency,
		models.StateAskingActivityDuration,
		models.StateAskingWeightType,
		models.StateAskingEconomicLevel,
		models.StateAskingSupplements,
		models.StateAskingPathologies,
		models.StateAskingRestrictions,
		models.StateAskingPreferences,
		models.StateAskingDislikes,
		models.StateAskingAllergies,
		models.StateAskingMainMeals,
		models.StateAskingCollations,
		models.StateAskingSchedule,
		models.StateAskingNotes,
		models.StateReviewingData,
		models.StateGeneratingPlan,
		models.StatePlanReady,
	},
	States: map[models.StateType]StateSpec{
		models.StateAskingName: {
			Next: models.StateAskingAge, Field: models.FieldName, Editable: true,
			Prompt: "What is your full name?",
		},
		models.StateAskingAge: {
			Next: models.StateAskingSex, Field: models.FieldAge, Editable: true,
			Prompt: "How old are you?",
		},
		models.StateAskingSex: {
			Next: models.StateAskingHeight, Field: models.FieldSex, Editable: true,
			Prompt: "What is your sex? (M/F)",
		},
		models.StateAskingHeight: {
			Next: models.StateAskingWeight, Field: models.FieldHeight, Editable: true,
			Prompt: "What is your height in cm?",
		},
		models.StateAskingWeight: {
			Next: models.StateAskingObjective, Field: models.FieldWeight, Editable: true,
			Prompt: "What is your current weight in kg?",
		},
		models.StateAskingObjective: {
			Next: models.StateAskingActivityType, Field: models.FieldObjective, Editable: true,
			Prompt: "What is your objective? (maintenance, lose_half_kg, lose_one_kg, lose_two_kg, gain_half_kg, gain_one_kg)",
		},
		models.StateAskingActivityType: {
			Next: models.StateAskingActivityFrequency, Field: models.FieldActivityType, Editable: true,
			Prompt: "What kind of physical activity do you do? (sedentary, walking, weights, cardio, mixed, athlete)",
		},
		models.StateAskingActivityFrequency: {
			Next: models.StateAskingActivityDuration, Field: models.FieldActivityFrequency, Editable: true,
			Prompt: "How often do you train? (never, once_week, twice_week, three_times_week, four_times_week, five_times_week, daily)",
		},
		models.StateAskingActivityDuration: {
			Next: models.StateAskingWeightType, Field: models.FieldActivityDuration, Editable: true,
			Prompt: "How long is each session, in minutes?",
		},
		models.StateAskingWeightType: {
			Next: models.StateAskingEconomicLevel, Field: models.FieldWeightType, Editable: true,
			Prompt: "Should food weights be expressed raw or cooked? (raw, cooked)",
		},
		models.StateAskingEconomicLevel: {
			Next: models.StateAskingSupplements, Field: models.FieldEconomicLevel, Editable: true,
			Prompt: "What budget should the plan target? (low, medium, high)",
		},
		models.StateAskingSupplements: {
			Next: models.StateAskingPathologies, Field: models.FieldSupplements, Optional: true, Editable: true,
			Prompt: "Do you take any supplements? List them separated by commas, or type 'skip'.",
		},
		models.StateAskingPathologies: {
			Next: models.StateAskingRestrictions, Field: models.FieldPathologies, Optional: true, Editable: true,
			Prompt: "Any pathologies or medical conditions? Separate with commas, or type 'skip'.",
		},
		models.StateAskingRestrictions: {
			Next: models.StateAskingPreferences, Field: models.FieldRestrictions, Optional: true, Editable: true,
			Prompt: "Any dietary restrictions? Separate with commas, or type 'skip'.",
		},
		models.StateAskingPreferences: {
			Next: models.StateAskingDislikes, Field: models.FieldPreferences, Optional: true, Editable: true,
			Prompt: "Foods you especially like? Separate with commas, or type 'skip'.",
		},
		models.StateAskingDislikes: {
			Next: models.StateAskingAllergies, Field: models.FieldDislikes, Optional: true, Editable: true,
			Prompt: "Foods you dislike? Separate with commas, or type 'skip'.",
		},
		models.StateAskingAllergies: {
			Next: models.StateAskingMainMeals, Field: models.FieldAllergies, Optional: true, Editable: true,
			Prompt: "Any food allergies or intolerances? Separate with commas, or type 'skip'.",
		},
		models.StateAskingMainMeals: {
			Next: models.StateAskingCollations, Field: models.FieldMainMeals, Editable: true,
			Prompt: "How many main meals per day? (2-4)",
		},
		models.StateAskingCollations: {
			Next: models.StateAskingSchedule, Field: models.FieldCollations, Editable: true,
			Prompt: "How many snacks between meals? (0-3)",
		},
		models.StateAskingSchedule: {
			Next: models.StateAskingNotes, Field: models.FieldSchedule, Optional: true, Editable: true,
			Prompt: "Any schedule constraints for your meals? Describe them, or type 'skip'.",
		},
		models.StateAskingNotes: {
			Next: models.StateReviewingData, Field: models.FieldNotes, Optional: true, Editable: true,
			Prompt: "Anything else I should know? Type your notes, or 'skip'.",
		},
		models.StateReviewingData: {
			Next: models.StateGeneratingPlan, Confirmation: true,
			Prompt: "Here is everything you told me. Confirm to generate your plan, or edit any field.",
		},
		models.StateGeneratingPlan: {
			Next: models.StatePlanReady, Confirmation: true, Generating: true,
			Prompt: "Generating your plan, this can take a moment.",
		},
		models.StatePlanReady: {
			Terminal: true,
			Prompt:   "Your plan is ready.",
		},
	},
}

// Control is the follow-up flow that adjusts an existing plan.
var Control = &Definition{
	Kind:    models.FlowControl,
	Initial: models.StateAskingCurrentWeight,
	Order: []models.StateType{
		models.StateAskingCurrentWeight,
		models.StateAskingProgress,
		models.StateAskingCompliance,
		models.StateAskingDifficulties,
		models.StateAskingObjectiveChange,
		models.StateAskingActivityChange,
		models.StateAskingPreferenceChange,
		models.StateAskingInstructions,
		models.StateReviewingChanges,
		models.StateRegeneratingPlan,
		models.StateAdjustmentReady,
	},
	States: map[models.StateType]StateSpec{
		models.StateAskingCurrentWeight: {
			Next: models.StateAskingProgress, Field: models.FieldCurrentWeight, Editable: true,
			Prompt: "What is your current weight in kg?",
		},
		models.StateAskingProgress: {
			Next: models.StateAskingCompliance, Field: models.FieldProgress, Editable: true,
			Prompt: "How do you feel you are progressing? (better, same, worse)",
		},
		models.StateAskingCompliance: {
			Next: models.StateAskingDifficulties, Field: models.FieldCompliance, Editable: true,
			Prompt: "How closely did you follow the plan? (high, medium, low)",
		},
		models.StateAskingDifficulties: {
			Next: models.StateAskingObjectiveChange, Field: models.FieldDifficulties, Optional: true, Editable: true,
			Prompt: "Any difficulties with the current plan? Separate with commas, or type 'skip'.",
		},
		models.StateAskingObjectiveChange: {
			Next: models.StateAskingActivityChange, Field: models.FieldObjectiveChange, Editable: true,
			Prompt: "Do you want to change your objective? Pick a new one, or 'none' to keep it.",
		},
		models.StateAskingActivityChange: {
			Next: models.StateAskingPreferenceChange, Field: models.FieldActivityChange, Editable: true,
			Prompt: "Has your activity changed? Pick the new type, or 'none' to keep it.",
		},
		models.StateAskingPreferenceChange: {
			Next: models.StateAskingInstructions, Field: models.FieldPreferenceChange, Editable: true,
			Prompt: "Any changes to your food preferences? Describe them, or 'none'.",
		},
		models.StateAskingInstructions: {
			Next: models.StateReviewingChanges, Field: models.FieldInstructions, Optional: true, Editable: true,
			Prompt: "Any specific instructions for the adjustment? Type them, or 'skip'.",
		},
		models.StateReviewingChanges: {
			Next: models.StateRegeneratingPlan, Confirmation: true,
			Prompt: "Here are your reported changes. Confirm to regenerate the plan, or edit any field.",
		},
		models.StateRegeneratingPlan: {
			Next: models.StateAdjustmentReady, Confirmation: true, Generating: true,
			Prompt: "Adjusting your plan, this can take a moment.",
		},
		models.StateAdjustmentReady: {
			Terminal: true,
			Prompt:   "Your adjusted plan is ready.",
		},
	},
}

// Replacement is the flow that swaps one meal for an equivalent alternative.
var Replacement = &Definition{
	Kind:    models.FlowReplacement,
	Initial: models.StateSelectingDay,
	Order: []models.StateType{
		models.StateSelectingDay,
		models.StateSelectingMeal,
		models.StateSelectingMealOption,
		models.StateAskingReplacementType,
		models.StateAskingReplacementReason,
		models.StateAskingSpecificRequest,
		models.StateAskingSpecialConditions,
		models.StateReviewingReplacement,
		models.StateGeneratingReplacement,
		models.StateReplacementReady,
	},
	States: map[models.StateType]StateSpec{
		models.StateSelectingDay: {
			Next: models.StateSelectingMeal, Field: models.FieldDay, Editable: true,
			Prompt: "Which day of the plan? (1-3)",
		},
		models.StateSelectingMeal: {
			Next: models.StateSelectingMealOption, Field: models.FieldMeal, Editable: true,
			Prompt: "Which meal do you want to replace? (breakfast, lunch, snack, dinner, collation)",
		},
		models.StateSelectingMealOption: {
			Next: models.StateAskingReplacementType, Field: models.FieldMealOption, Editable: true,
			Prompt: "Which option of that meal? (1-3)",
		},
		models.StateAskingReplacementType: {
			Next: models.StateAskingReplacementReason, Field: models.FieldReplacementType, Editable: true,
			Prompt: "What kind of replacement? (equivalent, lighter, heartier)",
		},
		models.StateAskingReplacementReason: {
			Next: models.StateAskingSpecificRequest, Field: models.FieldReplacementReason, Editable: true,
			Prompt: "Why do you want to replace it?",
		},
		models.StateAskingSpecificRequest: {
			Next: models.StateAskingSpecialConditions, Field: models.FieldSpecificRequest, Editable: true,
			Prompt: "What would you like instead?",
		},
		models.StateAskingSpecialConditions: {
			Next: models.StateReviewingReplacement, Field: models.FieldSpecialConditions, Optional: true, Editable: true,
			Prompt: "Any special conditions for the replacement? Separate with commas, or type 'skip'.",
		},
		models.StateReviewingReplacement: {
			Next: models.StateGeneratingReplacement, Confirmation: true,
			Prompt: "Here is your replacement request. Confirm to generate it, or edit any field.",
		},
		models.StateGeneratingReplacement: {
			Next: models.StateReplacementReady, Confirmation: true, Generating: true,
			Prompt: "Looking for an equivalent option, this can take a moment.",
		},
		models.StateReplacementReady: {
			Terminal: true,
			Prompt:   "Your replacement is ready.",
		},
	},
}
