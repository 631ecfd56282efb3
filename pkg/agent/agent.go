// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the bounded reasoning loop that turns a rendered
// task prompt into a final answer, optionally calling capabilities and
// validating structured output.
package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/llm"
	"github.com/jllopis/crew/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxSteps bounds the backend turns of one reasoning round.
	DefaultMaxSteps = 8
	// DefaultMaxSchemaRetries bounds corrective retries after invalid answers.
	DefaultMaxSchemaRetries = 3
)

// Agent couples a role configuration, a reasoning backend and an ordered set
// of capabilities. It is immutable after New and safe to share among tasks.
type Agent struct {
	id        string
	role      string
	goal      string
	backstory string

	llm         llm.Provider
	model       string
	temperature *float64

	capabilities []core.Capability
	byName       map[string]core.Capability

	maxSteps          int
	maxSchemaRetries  int
	stepTimeout       time.Duration
	capabilityTimeout time.Duration

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	emitter core.EventEmitter
}

// ErrMissingProvider is returned when no reasoning backend is configured.
var ErrMissingProvider = errors.New("agent provider is required")

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an agent with a required id and backend.
func New(id string, provider llm.Provider, opts ...Option) (*Agent, error) {
	a := &Agent{
		id:               strings.TrimSpace(id),
		llm:              provider,
		maxSteps:         DefaultMaxSteps,
		maxSchemaRetries: DefaultMaxSchemaRetries,
		byName:           map[string]core.Capability{},
		emitter:          core.NoopEventEmitter{},
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.id == "" {
		return nil, errors.New("agent id is required")
	}
	if a.llm == nil {
		return nil, ErrMissingProvider
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer("crew/agent")
	}
	return a, nil
}

// WithRole sets the agent role.
func WithRole(role string) Option {
	return func(a *Agent) error {
		a.role = role
		return nil
	}
}

// WithGoal sets the agent goal.
func WithGoal(goal string) Option {
	return func(a *Agent) error {
		a.goal = goal
		return nil
	}
}

// WithBackstory sets the persona text placed in the system message.
func WithBackstory(backstory string) Option {
	return func(a *Agent) error {
		a.backstory = backstory
		return nil
	}
}

// WithModel sets the model name passed to the backend.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature. Without it the backend
// default applies; zero is sent as an explicit value.
func WithTemperature(t float64) Option {
	return func(a *Agent) error {
		if t < 0 {
			return fmt.Errorf("temperature must be >= 0, got %v", t)
		}
		a.temperature = &t
		return nil
	}
}

// WithCapabilities appends capabilities in order. Names must be unique.
func WithCapabilities(caps ...core.Capability) Option {
	return func(a *Agent) error {
		for _, c := range caps {
			if c == nil {
				return errors.New("capability is nil")
			}
			name := c.Name()
			if name == "" {
				return errors.New("capability name is required")
			}
			if _, dup := a.byName[name]; dup {
				return fmt.Errorf("duplicate capability %q", name)
			}
			a.byName[name] = c
			a.capabilities = append(a.capabilities, c)
		}
		return nil
	}
}

// WithMaxSteps sets the step budget of a reasoning round. The budget applies
// per schema attempt: each corrective retry starts a fresh round, so a task
// may reach the backend up to n*(max schema retries+1) times.
func WithMaxSteps(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return fmt.Errorf("max steps must be >= 1, got %d", n)
		}
		a.maxSteps = n
		return nil
	}
}

// WithMaxSchemaRetries sets how many corrective retries follow an invalid
// structured answer. Zero fails on the first invalid answer.
func WithMaxSchemaRetries(n int) Option {
	return func(a *Agent) error {
		if n < 0 {
			return fmt.Errorf("max schema retries must be >= 0, got %d", n)
		}
		a.maxSchemaRetries = n
		return nil
	}
}

// WithStepTimeout bounds each backend call. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(a *Agent) error {
		a.stepTimeout = d
		return nil
	}
}

// WithCapabilityTimeout bounds each capability invocation. Zero disables the bound.
func WithCapabilityTimeout(d time.Duration) Option {
	return func(a *Agent) error {
		a.capabilityTimeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) error {
		a.logger = l
		return nil
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Agent) error {
		a.tracer = t
		return nil
	}
}

// WithMetrics records steps, schema retries and capability latency on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) error {
		a.metrics = m
		return nil
	}
}

// WithEventEmitter receives capability and schema retry events.
func WithEventEmitter(e core.EventEmitter) Option {
	return func(a *Agent) error {
		if e != nil {
			a.emitter = e
		}
		return nil
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Role returns the agent role.
func (a *Agent) Role() string { return a.role }

// Goal returns the agent goal.
func (a *Agent) Goal() string { return a.goal }

// Backstory returns the persona text.
func (a *Agent) Backstory() string { return a.backstory }

// Model returns the configured model name.
func (a *Agent) Model() string { return a.model }

// MaxSteps returns the step budget.
func (a *Agent) MaxSteps() int { return a.maxSteps }

// MaxSchemaRetries returns the corrective retry limit.
func (a *Agent) MaxSchemaRetries() int { return a.maxSchemaRetries }

// Capabilities returns the capabilities in declaration order.
func (a *Agent) Capabilities() []core.Capability {
	return append([]core.Capability(nil), a.capabilities...)
}

var _ core.Agent = (*Agent)(nil)
