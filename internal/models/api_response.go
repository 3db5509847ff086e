package models

// APIStatus classifies an API response envelope.
type APIStatus string

const (
	// APIStatusOK indicates the request completed.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates the request failed.
	APIStatusError APIStatus = "error"
	// APIStatusRetry indicates the input was rejected and the same state is
	// re-prompted.
	APIStatusRetry APIStatus = "retry"
)

// APIResponse is the envelope every handler writes: a status, an optional
// message, and the operation result when there is one.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder assembles an APIResponse step by step.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder returns an empty builder.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the envelope status.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the envelope message.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the envelope result payload.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build returns the assembled APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success wraps a result in an ok envelope.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage wraps a result in an ok envelope with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error builds an error envelope with the given message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Retry builds a retry envelope carrying the validation message and the
// re-prompt for the unchanged state.
func Retry(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRetry).
		WithMessage(message).
		WithResult(result).
		Build()
}
