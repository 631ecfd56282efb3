package core

import (
	"context"
	"time"
)

// EventType identifies a progress event emitted while a crew runs.
type EventType string

const (
	EventRunStarted        EventType = "run.started"
	EventRunFinished       EventType = "run.finished"
	EventTaskStarted       EventType = "task.started"
	EventTaskSucceeded     EventType = "task.succeeded"
	EventTaskFailed        EventType = "task.failed"
	EventCapabilityInvoked EventType = "capability.invoked"
	EventSchemaRetry       EventType = "schema.retry"
)

// Event captures a progress event.
type Event struct {
	Type      EventType
	RunID     string
	TaskID    string
	Agent     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives progress events. Implementations must be cheap; they
// are called synchronously from the run loop.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter discards events.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NewEvent builds an event stamped with the current time and the run and task
// ids carried by ctx.
func NewEvent(ctx context.Context, eventType EventType, agent string, payload map[string]any) Event {
	ev := Event{
		Type:      eventType,
		Agent:     agent,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if id, ok := RunID(ctx); ok {
		ev.RunID = id
	}
	if id, ok := TaskID(ctx); ok {
		ev.TaskID = id
	}
	return ev
}
