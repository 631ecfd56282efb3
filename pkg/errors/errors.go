// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy shared by the crew runtime.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies crew errors for reporting and recovery decisions.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeConfiguration indicates a bad task graph, template or missing credentials.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeCapability indicates a capability invocation failed.
	CodeCapability ErrorCode = "CAPABILITY_FAILURE"

	// CodeSchemaValidation indicates corrective retries were exhausted.
	CodeSchemaValidation ErrorCode = "SCHEMA_VALIDATION"

	// CodeReasoningExhausted indicates the step budget ran out without a final answer.
	CodeReasoningExhausted ErrorCode = "REASONING_EXHAUSTED"

	// CodeBackendUnavailable indicates the reasoning backend could not be reached.
	CodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"

	// CodeExecution wraps the first task failure of a run.
	CodeExecution ErrorCode = "EXECUTION_ERROR"

	// CodeCancelled indicates the run was interrupted externally.
	CodeCancelled ErrorCode = "CANCELLED"
)

// CrewError is a typed error with context for logs and CLI reporting.
// It implements the error interface and can be unwrapped with errors.As().
type CrewError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *CrewError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *CrewError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *CrewError) MarshalJSON() ([]byte, error) {
	out := struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new CrewError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *CrewError {
	return &CrewError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// Newf creates a CrewError without a cause from a format string.
func Newf(code ErrorCode, format string, args ...any) *CrewError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *CrewError) WithContext(key string, value interface{}) *CrewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *CrewError) WithRecoverable(recoverable bool) *CrewError {
	e.Recoverable = recoverable
	return e
}

// AsCrewError returns the outermost CrewError in the chain, or wraps err as internal.
func AsCrewError(err error) *CrewError {
	if err == nil {
		return nil
	}
	var ce *CrewError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the outermost CrewError in the chain.
func CodeOf(err error) ErrorCode {
	var ce *CrewError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// HasCode reports whether any CrewError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if ce, ok := err.(*CrewError); ok && ce.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// TaskID returns the id of the failed task recorded on an execution error.
func TaskID(err error) (string, bool) {
	for err != nil {
		if ce, ok := err.(*CrewError); ok {
			if id, ok := ce.Context["task_id"].(string); ok && id != "" {
				return id, true
			}
		}
		err = stderrors.Unwrap(err)
	}
	return "", false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *CrewError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
