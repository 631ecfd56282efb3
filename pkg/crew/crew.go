// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package crew orchestrates a statically declared graph of tasks, each
// executed by an agent, propagating validated outputs to downstream tasks.
package crew

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Crew owns an ordered set of tasks and the agents that execute them.
// It is immutable after New; Run may be called repeatedly.
type Crew struct {
	name   string
	tasks  map[string]core.Task
	decl   []string
	agents map[string]core.Agent
	order  []string

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	audit   AuditStore
	emitter core.EventEmitter
}

// Option configures a Crew.
type Option func(*Crew)

// WithName labels the crew in logs and spans.
func WithName(name string) Option {
	return func(c *Crew) { c.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crew) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Crew) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithMetrics records task outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Crew) { c.metrics = m }
}

// WithAuditStore records task transitions in store. Store failures are
// logged and never fail the run.
func WithAuditStore(store AuditStore) Option {
	return func(c *Crew) { c.audit = store }
}

// WithEventEmitter receives run and task events.
func WithEventEmitter(e core.EventEmitter) Option {
	return func(c *Crew) {
		if e != nil {
			c.emitter = e
		}
	}
}

// New validates the task graph against the agents and builds a crew. Every
// problem is reported as a configuration error before anything runs.
func New(tasks []core.Task, agents []core.Agent, opts ...Option) (*Crew, error) {
	c := &Crew{
		tasks:   make(map[string]core.Task, len(tasks)),
		agents:  make(map[string]core.Agent, len(agents)),
		logger:  slog.Default(),
		tracer:  otel.Tracer("crew"),
		emitter: core.NoopEventEmitter{},
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, a := range agents {
		if a == nil || strings.TrimSpace(a.ID()) == "" {
			return nil, errors.Newf(errors.CodeConfiguration, "agent id is required")
		}
		if strings.TrimSpace(a.ID()) != a.ID() {
			return nil, errors.Newf(errors.CodeConfiguration, "agent id %q has surrounding whitespace", a.ID())
		}
		if _, dup := c.agents[a.ID()]; dup {
			return nil, errors.Newf(errors.CodeConfiguration, "duplicate agent id %q", a.ID())
		}
		c.agents[a.ID()] = a
	}

	order, err := ResolveOrder(tasks)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if _, ok := c.agents[t.Agent]; !ok {
			return nil, errors.Newf(errors.CodeConfiguration, "task %q references unknown agent %q", t.ID, t.Agent).
				WithContext("task_id", t.ID)
		}
		if _, err := Placeholders(t.Description); err != nil {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("task %q has an invalid description template", t.ID), err).
				WithContext("task_id", t.ID)
		}
		t.Context = append([]string(nil), t.Context...)
		c.tasks[t.ID] = t
		c.decl = append(c.decl, t.ID)
	}
	c.order = order
	return c, nil
}

// Name returns the crew name.
func (c *Crew) Name() string { return c.name }

// Order returns the execution order.
func (c *Crew) Order() []string { return append([]string(nil), c.order...) }

// Tasks returns the tasks in declaration order.
func (c *Crew) Tasks() []core.Task {
	out := make([]core.Task, 0, len(c.decl))
	for _, id := range c.decl {
		out = append(out, c.tasks[id])
	}
	return out
}

// Agent returns the agent registered under id.
func (c *Crew) Agent(id string) (core.Agent, bool) {
	a, ok := c.agents[id]
	return a, ok
}

// Validate checks that every placeholder of every task resolves against the
// given input names or the task's upstream ids.
func (c *Crew) Validate(inputs map[string]string) error {
	for _, id := range c.order {
		t := c.tasks[id]
		missing, err := checkTemplates(t, inputs)
		if err != nil {
			return errors.New(errors.CodeConfiguration, fmt.Sprintf("task %q has an invalid template", id), err).
				WithContext("task_id", id)
		}
		if len(missing) > 0 {
			return errors.Newf(errors.CodeConfiguration, "task %q has unresolved placeholders: %s", id, strings.Join(missing, ", ")).
				WithContext("task_id", id).
				WithContext("placeholders", missing)
		}
	}
	return nil
}

// Run executes every task in order. It stops at the first failure and
// returns an execution error naming the failed task; tasks after it are
// never dispatched. The returned Result is never nil.
func (c *Crew) Run(ctx context.Context, inputs map[string]string) (*Result, error) {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := c.tracer.Start(ctx, "Crew.Run")
	defer span.End()
	span.SetAttributes(telemetry.RunAttributes(runID, c.order)...)

	res := &Result{
		RunID:   runID,
		Order:   c.Order(),
		Outputs: map[string]*core.Output{},
		Tasks:   make(map[string]*core.TaskState, len(c.order)),
	}
	for _, id := range c.order {
		res.Tasks[id] = core.NewTaskState(id)
	}
	log := c.logger.With(slog.String("run_id", runID))
	if c.name != "" {
		log = log.With(slog.String("crew", c.name))
	}

	finish := func(err error) (*Result, error) {
		outcome := "succeeded"
		if err != nil {
			outcome = strings.ToLower(string(errors.CodeOf(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.metrics.RecordError(ctx, err, "crew")
		}
		span.SetAttributes(attribute.String(telemetry.AttrRunOutcome, outcome))
		c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRunFinished, "", map[string]any{
			"outcome":   outcome,
			"completed": len(res.Outputs),
		}))
		if err != nil {
			log.ErrorContext(ctx, "crew.run.error",
				slog.String("outcome", outcome),
				slog.String("error", err.Error()),
			)
		} else {
			log.InfoContext(ctx, "crew.run.complete", slog.Int("tasks", len(res.Outputs)))
		}
		return res, err
	}

	if err := c.Validate(inputs); err != nil {
		return finish(err)
	}

	log.InfoContext(ctx, "crew.run.start",
		slog.Int("tasks", len(c.order)),
		slog.String("order", strings.Join(c.order, ",")),
	)
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRunStarted, "", map[string]any{
		"order": c.Order(),
	}))

	ectx := NewExecutionContext()
	for _, id := range c.order {
		if err := ctx.Err(); err != nil {
			return finish(errors.New(errors.CodeCancelled, fmt.Sprintf("run cancelled before task %q", id), err).
				WithContext("next_task", id))
		}
		out, err := c.runTask(ctx, log, c.tasks[id], inputs, ectx, res)
		if err != nil {
			return finish(err)
		}
		if err := ectx.Set(id, out); err != nil {
			return finish(errors.New(errors.CodeInternal, "store task result", err).WithContext("task_id", id))
		}
		res.Outputs[id] = out
		res.Final = out
	}
	return finish(nil)
}

func (c *Crew) runTask(ctx context.Context, log *slog.Logger, t core.Task, inputs map[string]string, ectx *ExecutionContext, res *Result) (*core.Output, error) {
	ag := c.agents[t.Agent]
	state := res.Tasks[t.ID]
	ctx = core.WithTaskID(ctx, t.ID)
	schemaName := ""
	if t.OutputSchema != nil {
		schemaName = t.OutputSchema.Name
	}
	ctx, span := c.tracer.Start(ctx, "Crew.Task", trace.WithAttributes(
		telemetry.TaskAttributes(t.ID, t.Agent, t.Context, schemaName)...,
	))
	defer span.End()
	log = log.With(slog.String("task_id", t.ID), slog.String("agent_id", t.Agent))

	rec := TaskRecord{TaskID: t.ID, AgentID: t.Agent}
	fail := func(err error) (*core.Output, error) {
		_ = state.Fail(err)
		rec.End = state.FinishedAt
		rec.Status = state.Status
		rec.Error = err.Error()
		res.Records = append(res.Records, rec)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(telemetry.AttrTaskStatus, string(state.Status)))
		c.metrics.RecordTask(ctx, t.ID, string(state.Status))
		c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskFailed, t.Agent, map[string]any{
			"error":      err.Error(),
			"error_code": string(errors.CodeOf(err)),
		}))
		c.recordAudit(ctx, log, rec, nil)
		log.ErrorContext(ctx, "crew.task.error",
			slog.String("error", err.Error()),
			slog.String("error_code", string(errors.CodeOf(err))),
		)

		code := errors.CodeExecution
		msg := fmt.Sprintf("task %q failed", t.ID)
		if errors.HasCode(err, errors.CodeCancelled) {
			code = errors.CodeCancelled
			msg = fmt.Sprintf("run cancelled during task %q", t.ID)
		}
		return nil, errors.New(code, msg, err).
			WithContext("task_id", t.ID).
			WithContext("agent_id", t.Agent)
	}

	if err := state.Start(); err != nil {
		return fail(err)
	}
	rec.Start = state.StartedAt
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskStarted, t.Agent, map[string]any{
		"upstream": append([]string(nil), t.Context...),
	}))
	c.recordAudit(ctx, log, TaskRecord{TaskID: t.ID, AgentID: t.Agent, Start: rec.Start, Status: core.TaskStatusRunning}, nil)

	prompt, err := renderPrompt(t, inputs, ectx.View(t.Context))
	if err != nil {
		return fail(errors.New(errors.CodeConfiguration, "render task prompt", err))
	}
	log.InfoContext(ctx, "crew.task.start",
		slog.Int("upstream", len(t.Context)),
		slog.Int("prompt_chars", len(prompt)),
	)

	out, err := ag.Execute(ctx, prompt, t.OutputSchema)
	if out != nil {
		rec.Steps = out.Steps
		rec.RetryCount = out.SchemaRetries
		rec.ToolCalls = out.ToolCalls
	}
	if err != nil {
		return fail(err)
	}
	if out == nil {
		return fail(errors.Newf(errors.CodeInternal, "agent %q returned no output", t.Agent))
	}
	if err := state.Succeed(out); err != nil {
		return fail(err)
	}
	rec.End = state.FinishedAt
	rec.Status = state.Status
	res.Records = append(res.Records, rec)

	span.SetAttributes(attribute.String(telemetry.AttrTaskStatus, string(state.Status)))
	c.metrics.RecordTask(ctx, t.ID, string(state.Status))
	c.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskSucceeded, t.Agent, map[string]any{
		"steps":          out.Steps,
		"schema_retries": out.SchemaRetries,
		"tool_calls":     out.ToolCalls,
	}))
	c.recordAudit(ctx, log, rec, out)
	log.InfoContext(ctx, "crew.task.complete",
		slog.Int("steps", out.Steps),
		slog.Int("schema_retries", out.SchemaRetries),
		slog.Duration("duration", rec.Duration()),
	)
	return out, nil
}

func (c *Crew) recordAudit(ctx context.Context, log *slog.Logger, rec TaskRecord, out *core.Output) {
	if c.audit == nil {
		return
	}
	runID, _ := core.RunID(ctx)
	ev := AuditEvent{
		RunID:      runID,
		TaskID:     rec.TaskID,
		AgentID:    rec.AgentID,
		Status:     string(rec.Status),
		Error:      rec.Error,
		RetryCount: rec.RetryCount,
		Steps:      rec.Steps,
		StartedAt:  rec.Start,
		FinishedAt: rec.End,
	}
	if out != nil {
		if out.Structured != nil {
			ev.Output = map[string]any(out.Structured)
		} else {
			ev.Output = out.Text
		}
	}
	// Audit writes must not be cut short by run cancellation.
	if err := c.audit.Record(context.WithoutCancel(ctx), ev); err != nil {
		log.WarnContext(ctx, "crew.audit.error",
			slog.String("status", ev.Status),
			slog.String("error", err.Error()),
		)
	}
}
