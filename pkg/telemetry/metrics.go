// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/crew/pkg/errors"
)

// Metric names.
const (
	MetricTasks             = "crew.tasks.total"
	MetricAgentSteps        = "crew.agent.steps"
	MetricSchemaRetries     = "crew.schema.retries"
	MetricCapabilityLatency = "crew.capability.latency_ms"
	MetricErrors            = "crew.errors.total"
)

const meterName = "crew"

// Metrics records run, agent and capability measurements. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	tasks             metric.Int64Counter
	steps             metric.Int64Histogram
	schemaRetries     metric.Int64Counter
	capabilityLatency metric.Float64Histogram
	errors            metric.Int64Counter
}

// NewMetrics creates the crew instruments on mp, or on the global meter
// provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	tasks, err := meter.Int64Counter(MetricTasks,
		metric.WithDescription("Finished tasks by status"))
	if err != nil {
		return nil, err
	}
	steps, err := meter.Int64Histogram(MetricAgentSteps,
		metric.WithDescription("Reasoning steps used per agent execution"))
	if err != nil {
		return nil, err
	}
	schemaRetries, err := meter.Int64Counter(MetricSchemaRetries,
		metric.WithDescription("Corrective retries after schema validation failures"))
	if err != nil {
		return nil, err
	}
	capabilityLatency, err := meter.Float64Histogram(MetricCapabilityLatency,
		metric.WithDescription("Capability invocation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(MetricErrors,
		metric.WithDescription("Errors by code and component"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tasks:             tasks,
		steps:             steps,
		schemaRetries:     schemaRetries,
		capabilityLatency: capabilityLatency,
		errors:            errorCounter,
	}, nil
}

// RecordTask counts a task that reached status.
func (m *Metrics) RecordTask(ctx context.Context, taskID, status string) {
	if m == nil {
		return
	}
	m.tasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrTaskStatus, status),
	))
}

// RecordSteps records how many steps an agent execution used.
func (m *Metrics) RecordSteps(ctx context.Context, agentID string, steps int) {
	if m == nil {
		return
	}
	m.steps.Record(ctx, int64(steps), metric.WithAttributes(attribute.String(AttrAgentID, agentID)))
}

// RecordSchemaRetry counts a corrective retry.
func (m *Metrics) RecordSchemaRetry(ctx context.Context, agentID, schemaName string) {
	if m == nil {
		return
	}
	m.schemaRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrTaskSchema, schemaName),
	))
}

// RecordCapability records the latency and outcome of an invocation.
func (m *Metrics) RecordCapability(ctx context.Context, name string, d time.Duration, errorKind string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrCapabilityName, name),
		attribute.Bool(AttrCapabilitySuccess, errorKind == ""),
	}
	if errorKind != "" {
		attrs = append(attrs, attribute.String(AttrCapabilityErrorKind, errorKind))
	}
	m.capabilityLatency.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attrs...))
}

// RecordError counts err under its crew error code.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	recoverable := "unknown"
	if code == "" {
		code = "UNKNOWN"
	} else {
		recoverable = errors.AsCrewError(err).RecoverableString()
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}
