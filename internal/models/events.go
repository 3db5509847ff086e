// Package models defines the inbound event shapes accepted by the API.
package models

import "errors"

// Validation constants for inbound events.
const (
	// MaxAnswerLength bounds free-text answers before field validation runs.
	MaxAnswerLength = 1000
)

// Event validation errors.
var (
	ErrMissingUserID    = errors.New("user id is required")
	ErrInvalidFlowKind  = errors.New("invalid flow kind")
	ErrEmptyAnswer      = errors.New("answer text cannot be empty")
	ErrAnswerTooLong    = errors.New("answer text exceeds maximum length")
	ErrEmptySelection   = errors.New("selection value cannot be empty")
	ErrMissingEditField = errors.New("edit field is required")
)

// StartFlow requests a fresh session for the given flow.
type StartFlow struct {
	UserID int64    `json:"user_id"`
	Flow   FlowKind `json:"flow"`
}

// Validate checks the start request.
func (e *StartFlow) Validate() error {
	if e.UserID == 0 {
		return ErrMissingUserID
	}
	if !IsValidFlowKind(e.Flow) {
		return ErrInvalidFlowKind
	}
	return nil
}

// TextAnswer carries a free-text answer for the current state.
type TextAnswer struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// Validate checks the answer envelope; field-level validation happens later.
func (e *TextAnswer) Validate() error {
	if e.UserID == 0 {
		return ErrMissingUserID
	}
	if e.Text == "" {
		return ErrEmptyAnswer
	}
	if len(e.Text) > MaxAnswerLength {
		return ErrAnswerTooLong
	}
	return nil
}

// Selection carries a button-style choice for the current state.
type Selection struct {
	UserID int64  `json:"user_id"`
	Value  string `json:"value"`
}

// Validate checks the selection envelope.
func (e *Selection) Validate() error {
	if e.UserID == 0 {
		return ErrMissingUserID
	}
	if e.Value == "" {
		return ErrEmptySelection
	}
	return nil
}

// EditRequest asks to re-answer a previously collected field from a review state.
type EditRequest struct {
	UserID int64 `json:"user_id"`
	Field  Field `json:"field"`
}

// Validate checks the edit request.
func (e *EditRequest) Validate() error {
	if e.UserID == 0 {
		return ErrMissingUserID
	}
	if e.Field == "" {
		return ErrMissingEditField
	}
	return nil
}

// ConfirmRequest accepts the reviewed data and triggers the backend call.
type ConfirmRequest struct {
	UserID int64 `json:"user_id"`
}

// Validate checks the confirm request.
func (e *ConfirmRequest) Validate() error {
	if e.UserID == 0 {
		return ErrMissingUserID
	}
	return nil
}

// CancelRequest abandons the current session.
type CancelRequest struct {
	UserID int64 `json:"user_id"`
}

// Validate checks the cancel request.
func (e *CancelRequest) Validate() error {
	if e.UserID == 0 {
		return ErrMissingUserID
	}
	return nil
}
