package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeProtocolViolation = "PROTOCOL_VIOLATION"
	ErrCodeExecutionLimit    = "EXECUTION_LIMIT_EXCEEDED"
	ErrCodeUnknownNode       = "UNKNOWN_NODE"
)

// StepwardError is the structured error type for all stepward operations.
type StepwardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Step    string         `json:"step,omitempty"`
	Cause   error          `json:"-"`
}

func (e *StepwardError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StepwardError) Unwrap() error {
	return e.Cause
}

// NewError creates a new StepwardError.
func NewError(code, message string) *StepwardError {
	return &StepwardError{Code: code, Message: message}
}

// NewErrorf creates a new StepwardError with a formatted message.
func NewErrorf(code, format string, args ...any) *StepwardError {
	return &StepwardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step name to the error.
func (e *StepwardError) WithStep(step string) *StepwardError {
	e.Step = step
	return e
}

// WithCause attaches an underlying cause.
func (e *StepwardError) WithCause(err error) *StepwardError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *StepwardError) WithDetails(details map[string]any) *StepwardError {
	e.Details = details
	return e
}
