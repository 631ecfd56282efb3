// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"

	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/schema"
)

// WrapBackendError reports an unreachable or failing reasoning backend.
// The agent never retries these.
func WrapBackendError(err error, agentID, model string, step int) *errors.CrewError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeBackendUnavailable, "reasoning backend call failed", err).
		WithContext("agent_id", agentID).
		WithContext("model", model).
		WithContext("step", step).
		WithRecoverable(false)
}

// NewReasoningExhaustedError reports a step budget spent without a final answer.
func NewReasoningExhaustedError(agentID string, maxSteps int) *errors.CrewError {
	return errors.Newf(errors.CodeReasoningExhausted, "no final answer after %d steps", maxSteps).
		WithContext("agent_id", agentID).
		WithContext("max_steps", maxSteps).
		WithRecoverable(false)
}

// WrapSchemaError reports exhausted corrective retries. The cause is the last
// *schema.ValidationError so callers can print the field diagnostics.
func WrapSchemaError(verr *schema.ValidationError, agentID string, retries int) *errors.CrewError {
	if verr == nil {
		return nil
	}
	msg := fmt.Sprintf("answer still invalid after %d corrective retries", retries)
	return errors.New(errors.CodeSchemaValidation, msg, verr).
		WithContext("agent_id", agentID).
		WithContext("schema", verr.Schema).
		WithContext("fields", verr.Fields()).
		WithRecoverable(false)
}

// WrapCancelled reports a run interrupted between reasoning steps.
func WrapCancelled(err error, agentID string, step int) *errors.CrewError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeCancelled, "agent stopped after cancellation", err).
		WithContext("agent_id", agentID).
		WithContext("step", step).
		WithRecoverable(false)
}
