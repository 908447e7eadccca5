// File: internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrorCode is a string type used for structured error reporting from tool
// handlers. Using a custom type ensures only predefined constants can be used
// where an ErrorCode is expected.
type ErrorCode string

const (
	// -- General execution errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownTool       ErrorCode = "UNKNOWN_TOOL"

	// -- Browser/DOM errors --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError ErrorCode = "NAVIGATION_ERROR"

	// -- Run lifecycle errors --
	ErrCodeRunInProgress        ErrorCode = "RUN_IN_PROGRESS"
	ErrCodeMaxIterations        ErrorCode = "MAX_ITERATIONS_REACHED"
	ErrCodeConsecutiveFailures  ErrorCode = "CONSECUTIVE_FAILURES"
	ErrCodeCriticalStepFailed   ErrorCode = "CRITICAL_STEP_FAILED"
	ErrCodeRunCancelled         ErrorCode = "RUN_CANCELLED"
	ErrCodeModelRequestFailed   ErrorCode = "MODEL_REQUEST_FAILED"
	ErrCodeRecordingUnavailable ErrorCode = "RECORDING_UNAVAILABLE"

	// -- Internal system errors --
	ErrCodeToolPanic ErrorCode = "TOOL_PANIC"
)

// ErrRunInProgress is returned when Run is called while another automation
// holds the single-run gate.
var ErrRunInProgress = errors.New("an automation run is already in progress")

// ToolError pairs an ErrorCode with a human-readable message. Tool handlers
// return it so the model receives actionable, classified failures.
type ToolError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError builds a classified tool failure.
func NewToolError(code ErrorCode, message string, err error) *ToolError {
	return &ToolError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err, defaulting to EXECUTION_FAILURE.
func CodeOf(err error) ErrorCode {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrCodeExecutionFailure
}
