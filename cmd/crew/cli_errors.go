// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/schema"
)

// Process exit codes.
const (
	exitOK            = 0
	exitExecution     = 1
	exitConfiguration = 2
	exitCancelled     = 130
)

// CLIError wraps CrewError with a hint for the operator.
type CLIError struct {
	*errors.CrewError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ce *errors.CrewError, hint string) *CLIError {
	return &CLIError{CrewError: ce, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.CrewError == nil {
		return "unknown error"
	}
	msg := e.CrewError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the CrewError to errors.As.
func (e *CLIError) Unwrap() error { return e.CrewError }

func usageError(reason string) *CLIError {
	ce := errors.Newf(errors.CodeConfiguration, "invalid arguments: %s", reason)
	return NewCLIError(ce, "run 'crew help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ce := errors.New(errors.CodeConfiguration, "configuration error", err).
		WithContext("config_path", configPath)
	hint := "check your configuration file and CREW_ environment variables"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for errors", configPath)
	}
	return NewCLIError(ce, hint)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.HasCode(err, errors.CodeCancelled):
		return exitCancelled
	case errors.CodeOf(err) == errors.CodeConfiguration:
		return exitConfiguration
	default:
		return exitExecution
	}
}

type errorReport struct {
	Code   string   `json:"code"`
	Task   string   `json:"task,omitempty"`
	Cause  string   `json:"cause,omitempty"`
	Schema string   `json:"schema,omitempty"`
	Fields []string `json:"fields,omitempty"`
	Error  string   `json:"message"`
	Hint   string   `json:"hint,omitempty"`
}

func buildReport(err error) errorReport {
	r := errorReport{Code: string(errors.CodeOf(err)), Error: err.Error()}
	if r.Code == "" {
		r.Code = string(errors.CodeInternal)
	}
	if id, ok := errors.TaskID(err); ok {
		r.Task = id
	}
	// The outer code is EXECUTION_ERROR; report the agent failure underneath.
	if r.Code == string(errors.CodeExecution) {
		if ce := errors.AsCrewError(err); ce.Err != nil {
			if cause := errors.CodeOf(ce.Err); cause != "" {
				r.Cause = string(cause)
			}
		}
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		r.Schema = verr.Schema
		for _, fe := range verr.Errors {
			r.Fields = append(r.Fields, fe.String())
		}
	}
	var cli *CLIError
	if errors.As(err, &cli) {
		r.Hint = cli.Hint
		r.Error = cli.CrewError.Error()
	}
	return r
}

// reportError prints err to w and returns the exit code for it.
func reportError(w io.Writer, err error, jsonOutput bool) int {
	r := buildReport(err)
	if jsonOutput {
		_ = printJSON(w, map[string]errorReport{"error": r})
		return exitCode(err)
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", r.Code, r.Error)
	if r.Task != "" {
		fmt.Fprintf(w, "  Task: %s\n", r.Task)
	}
	if r.Cause != "" {
		fmt.Fprintf(w, "  Cause: %s\n", r.Cause)
	}
	if len(r.Fields) > 0 {
		fmt.Fprintf(w, "  Schema %s:\n", r.Schema)
		for _, f := range r.Fields {
			fmt.Fprintf(w, "    - %s\n", f)
		}
	}
	if r.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", r.Hint)
	}
	return exitCode(err)
}
