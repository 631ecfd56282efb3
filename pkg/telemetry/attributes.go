// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing and metrics for crew runs.
package telemetry

import (
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	// Run attributes
	AttrRunID      = "crew.run.id"
	AttrRunTasks   = "crew.run.task_count"
	AttrRunOrder   = "crew.run.order"
	AttrRunOutcome = "crew.run.outcome"

	// Task attributes
	AttrTaskID       = "crew.task.id"
	AttrTaskStatus   = "crew.task.status"
	AttrTaskUpstream = "crew.task.upstream"
	AttrTaskSchema   = "crew.task.schema"

	// Agent attributes
	AttrAgentID       = "crew.agent.id"
	AttrAgentRole     = "crew.agent.role"
	AttrAgentModel    = "crew.agent.model"
	AttrAgentStep     = "crew.agent.step"
	AttrAgentMaxSteps = "crew.agent.max_steps"
	AttrSchemaRetry   = "crew.agent.schema_retry"

	// Capability attributes
	AttrCapabilityName       = "crew.capability.name"
	AttrCapabilityCallID     = "crew.capability.call_id"
	AttrCapabilityArgument   = "crew.capability.argument"
	AttrCapabilityDurationMs = "crew.capability.duration_ms"
	AttrCapabilitySuccess    = "crew.capability.success"
	AttrCapabilityErrorKind  = "crew.capability.error_kind"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"

	// Error attributes
	AttrErrorCode = "crew.error.code"
)

// RunAttributes returns attributes for the run span.
func RunAttributes(runID string, order []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrRunTasks, len(order)),
		attribute.StringSlice(AttrRunOrder, order),
	}
}

// TaskAttributes returns attributes for a task span.
func TaskAttributes(taskID, agentID string, upstream []string, schemaName string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrAgentID, agentID),
	}
	if len(upstream) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrTaskUpstream, upstream))
	}
	if schemaName != "" {
		attrs = append(attrs, attribute.String(AttrTaskSchema, schemaName))
	}
	return attrs
}

// AgentAttributes returns common attributes for agent spans.
func AgentAttributes(agentID, role, model string, maxSteps int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
	}
	if role != "" {
		attrs = append(attrs, attribute.String(AttrAgentRole, role))
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	if maxSteps > 0 {
		attrs = append(attrs, attribute.Int(AttrAgentMaxSteps, maxSteps))
	}
	return attrs
}

// CapabilityAttributes returns attributes for a capability invocation span.
// The argument is truncated to maxLen characters.
func CapabilityAttributes(name, callID, argument string, maxLen int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrCapabilityName, name),
	}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrCapabilityCallID, callID))
	}
	if argument != "" {
		attrs = append(attrs, attribute.String(AttrCapabilityArgument, Truncate(argument, maxLen)))
	}
	return attrs
}

// CapabilityResultAttributes describes how an invocation ended.
func CapabilityResultAttributes(durationMs float64, success bool, errorKind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Float64(AttrCapabilityDurationMs, durationMs),
		attribute.Bool(AttrCapabilitySuccess, success),
	}
	if errorKind != "" {
		attrs = append(attrs, attribute.String(AttrCapabilityErrorKind, errorKind))
	}
	return attrs
}

// LLMAttributes returns attributes for backend call spans.
func LLMAttributes(model string, step, msgCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrAgentStep, step),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens, toolCalls int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if toolCalls > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCalls))
	}
	return attrs
}

// Truncate shortens s to maxLen characters, appending "..." when cut.
// maxLen <= 0 uses 500.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 500
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
