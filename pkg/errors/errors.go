// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Strategos.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Strategos errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates a malformed playbook or invalid input.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeRoleNotFound indicates a role name with no configuration.
	CodeRoleNotFound ErrorCode = "ROLE_NOT_FOUND"

	// CodeRoleNotBound indicates a step references a role with no bound agent.
	CodeRoleNotBound ErrorCode = "ROLE_NOT_BOUND"

	// CodeUnknownStepType indicates a step carries an unrecognized type tag.
	CodeUnknownStepType ErrorCode = "UNKNOWN_STEP_TYPE"

	// CodeCyclicWorkflow indicates the next-step chain revisited a step id.
	CodeCyclicWorkflow ErrorCode = "CYCLIC_WORKFLOW"

	// CodeMissingToolDependency indicates static capability validation failed.
	CodeMissingToolDependency ErrorCode = "MISSING_TOOL_DEPENDENCY"

	// CodeStepTimeout indicates a step exceeded its time limit.
	CodeStepTimeout ErrorCode = "STEP_TIMEOUT"

	// CodeStepExecution wraps an underlying agent failure during a step.
	CodeStepExecution ErrorCode = "STEP_EXECUTION_ERROR"

	// CodeRunCancelled indicates the run was cancelled between steps.
	CodeRunCancelled ErrorCode = "RUN_CANCELLED"

	// CodeToolFailure indicates a capability (tool) call failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// StrategosError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type StrategosError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *StrategosError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *StrategosError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *StrategosError) MarshalJSON() ([]byte, error) {
	type Alias StrategosError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new StrategosError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *StrategosError {
	return &StrategosError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *StrategosError) WithContext(key string, value interface{}) *StrategosError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *StrategosError) WithAttribute(key, value string) *StrategosError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *StrategosError) WithRecoverable(recoverable bool) *StrategosError {
	e.Recoverable = recoverable
	return e
}

// AsStrategosError attempts to convert an error to a StrategosError.
// Returns the error as StrategosError if it is one, or wraps it otherwise.
func AsStrategosError(err error) *StrategosError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*StrategosError); ok {
		return se
	}
	return New(CodeInternal, "wrapped error", err)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *StrategosError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeRoleNotFound, CodeRoleNotBound:
		return 404
	case CodeInvalidInput, CodeUnknownStepType, CodeCyclicWorkflow, CodeMissingToolDependency:
		return 400
	case CodeStepTimeout:
		return 408
	case CodeRunCancelled:
		return 499
	default:
		return 500
	}
}
