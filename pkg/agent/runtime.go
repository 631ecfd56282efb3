// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/crew/pkg/capability"
	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/llm"
	"github.com/jllopis/crew/pkg/resilience"
	"github.com/jllopis/crew/pkg/schema"
	"github.com/jllopis/crew/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Execute runs the reasoning loop for prompt. When s is non-nil the final
// answer must validate against it; invalid answers are fed back with the
// field diagnostics and retried. The returned Output always carries the step
// and retry counters, also when err is non-nil.
//
// Cancellation of ctx is observed between steps: backend and capability calls
// already in flight run to completion on a detached context.
func (a *Agent) Execute(ctx context.Context, prompt string, s *schema.Schema) (*core.Output, error) {
	ctx, span := a.tracer.Start(ctx, "Agent.Execute")
	defer span.End()
	span.SetAttributes(telemetry.AgentAttributes(a.id, a.role, a.model, a.maxSteps)...)

	log := a.logger.With(slog.String("agent_id", a.id))
	if runID, ok := core.RunID(ctx); ok {
		log = log.With(slog.String("run_id", runID))
	}
	if taskID, ok := core.TaskID(ctx); ok {
		log = log.With(slog.String("task_id", taskID))
	}

	out, err := a.loop(ctx, log, prompt, s)
	a.metrics.RecordSteps(ctx, a.id, out.Steps)
	span.SetAttributes(
		attribute.Int(telemetry.AttrAgentStep, out.Steps),
		attribute.Int(telemetry.AttrSchemaRetry, out.SchemaRetries),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "agent")
		log.ErrorContext(ctx, "agent.execute.error",
			slog.Int("steps", out.Steps),
			slog.Int("schema_retries", out.SchemaRetries),
			slog.String("error", err.Error()),
		)
		return out, err
	}
	log.InfoContext(ctx, "agent.execute.complete",
		slog.Int("steps", out.Steps),
		slog.Int("schema_retries", out.SchemaRetries),
		slog.Int("tool_calls", out.ToolCalls),
	)
	return out, nil
}

func (a *Agent) loop(ctx context.Context, log *slog.Logger, prompt string, s *schema.Schema) (*core.Output, error) {
	out := &core.Output{}
	messages := a.transcript(prompt, s)
	tools := a.toolDefinitions()
	round := 0

	for {
		if err := ctx.Err(); err != nil {
			return out, WrapCancelled(err, a.id, out.Steps)
		}
		if round >= a.maxSteps {
			return out, NewReasoningExhaustedError(a.id, a.maxSteps)
		}
		round++
		out.Steps++

		log.DebugContext(ctx, "agent.step",
			slog.Int("step", out.Steps),
			slog.Int("messages", len(messages)),
		)
		resp, err := a.chat(ctx, messages, tools, out.Steps)
		if err != nil {
			return out, WrapBackendError(err, a.id, a.model, out.Steps)
		}

		if len(resp.ToolCalls) > 0 {
			messages = append(messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			for _, call := range resp.ToolCalls {
				out.ToolCalls++
				result := a.invoke(ctx, log, call)
				messages = append(messages, llm.ToolMessage(call.ID, result))
			}
			continue
		}

		if s == nil {
			out.Text = strings.TrimSpace(resp.Content)
			return out, nil
		}

		obj, verr := parseAnswer(resp.Content, s)
		if verr == nil {
			out.Structured = obj
			out.Text = schema.Canonical(obj)
			return out, nil
		}
		if out.SchemaRetries >= a.maxSchemaRetries {
			return out, WrapSchemaError(verr, a.id, out.SchemaRetries)
		}
		out.SchemaRetries++
		a.metrics.RecordSchemaRetry(ctx, a.id, s.Name)
		a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventSchemaRetry, a.id, map[string]any{
			"attempt": out.SchemaRetries,
			"schema":  s.Name,
			"fields":  verr.Fields(),
		}))
		log.WarnContext(ctx, "agent.schema.retry",
			slog.Int("attempt", out.SchemaRetries),
			slog.String("schema", s.Name),
			slog.String("error", verr.Error()),
		)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.UserMessage(correction(verr)),
		)
		// A corrective retry gets a fresh step budget.
		round = 0
	}
}

func (a *Agent) chat(ctx context.Context, messages []llm.Message, tools []llm.Tool, step int) (*llm.ChatResponse, error) {
	callCtx, span := a.tracer.Start(context.WithoutCancel(ctx), "Agent.LLM.Chat", trace.WithAttributes(
		telemetry.LLMAttributes(a.model, step, len(messages))...,
	))
	defer span.End()

	req := llm.ChatRequest{
		Model:       a.model,
		Messages:    append([]llm.Message(nil), messages...),
		Tools:       tools,
		Temperature: a.temperature,
	}
	call := func(ctx context.Context) (*llm.ChatResponse, error) {
		return a.llm.Chat(ctx, req)
	}
	var (
		resp *llm.ChatResponse
		err  error
	)
	if a.stepTimeout > 0 {
		resp, err = resilience.WithTimeout(callCtx, a.stepTimeout, call)
	} else {
		resp, err = call(callCtx)
	}
	if err == nil && resp == nil {
		err = fmt.Errorf("backend returned no response")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, len(resp.ToolCalls))...)
	return resp, nil
}

// invoke runs one tool call and returns the text fed back to the backend.
// Failures never stop the loop; they are described in the tool message.
func (a *Agent) invoke(ctx context.Context, log *slog.Logger, call llm.ToolCall) string {
	name := call.Function.Name
	arg := capabilityArgument(call.Function.Arguments)

	c, ok := a.byName[name]
	if !ok {
		log.WarnContext(ctx, "agent.capability.unknown",
			slog.String("capability", name),
			slog.String("call_id", call.ID),
		)
		a.emitCapability(ctx, name, call.ID, false, "unknown")
		return fmt.Sprintf("error: unknown capability %q; available capabilities: %s", name, strings.Join(a.capabilityNames(), ", "))
	}

	start := time.Now()
	callCtx, span := a.tracer.Start(context.WithoutCancel(ctx), "Agent.Capability.Invoke", trace.WithAttributes(
		telemetry.CapabilityAttributes(name, call.ID, arg, 0)...,
	))
	invoke := func(ctx context.Context) (string, error) {
		return c.Invoke(ctx, arg)
	}
	var (
		result string
		err    error
	)
	if a.capabilityTimeout > 0 {
		result, err = resilience.WithTimeout(callCtx, a.capabilityTimeout, invoke)
	} else {
		result, err = invoke(callCtx)
	}
	elapsed := time.Since(start)

	kind := ""
	if err != nil {
		kind = failureKind(err)
	}
	span.SetAttributes(telemetry.CapabilityResultAttributes(float64(elapsed.Microseconds())/1000, err == nil, kind)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	a.metrics.RecordCapability(ctx, name, elapsed, kind)
	a.emitCapability(ctx, name, call.ID, err == nil, kind)

	if err != nil {
		log.WarnContext(ctx, "agent.capability.error",
			slog.String("capability", name),
			slog.String("call_id", call.ID),
			slog.String("error_kind", kind),
			slog.String("error", err.Error()),
		)
		return fmt.Sprintf("error (%s): %v", kind, err)
	}
	log.InfoContext(ctx, "agent.capability.complete",
		slog.String("capability", name),
		slog.String("call_id", call.ID),
		slog.Duration("duration", elapsed),
		slog.Int("chars", len(result)),
	)
	if strings.TrimSpace(result) == "" {
		return "(no output)"
	}
	return result
}

func (a *Agent) emitCapability(ctx context.Context, name, callID string, success bool, kind string) {
	payload := map[string]any{
		"capability": name,
		"call_id":    callID,
		"success":    success,
	}
	if kind != "" {
		payload["error_kind"] = kind
	}
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventCapabilityInvoked, a.id, payload))
}

func (a *Agent) capabilityNames() []string {
	names := make([]string, 0, len(a.byName))
	for name := range a.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// failureKind classifies err; timeouts and unclassified errors from external
// capabilities count as unreachable.
func failureKind(err error) string {
	if kind, ok := capability.KindOf(err); ok {
		return string(kind)
	}
	return string(capability.KindUnreachable)
}
