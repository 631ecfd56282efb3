package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jllopis/crew/pkg/schema"
)

func TestTaskStateLifecycle(t *testing.T) {
	state := NewTaskState("scrape")
	if state.Status != TaskStatusPending {
		t.Fatalf("expected pending status")
	}
	if err := state.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Status != TaskStatusRunning || state.StartedAt.IsZero() {
		t.Fatalf("expected running status with start time")
	}
	out := &Output{Text: "done"}
	if err := state.Succeed(out); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if state.Status != TaskStatusSucceeded || state.Output != out {
		t.Fatalf("expected succeeded status with output")
	}
	if err := state.Fail(errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal state to be immutable, got %v", err)
	}
	if state.Status != TaskStatusSucceeded || state.Err != nil {
		t.Fatalf("terminal state was modified")
	}
}

func TestTaskStateFailFromPending(t *testing.T) {
	state := NewTaskState("write")
	cause := errors.New("cancelled")
	if err := state.Fail(cause); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if state.Status != TaskStatusFailed || state.Err != cause {
		t.Fatalf("expected failed state with cause")
	}
	if err := state.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestOutputString(t *testing.T) {
	var nilOut *Output
	if nilOut.String() != "" {
		t.Fatalf("nil output should render empty")
	}
	text := &Output{Text: "plain"}
	if text.String() != "plain" {
		t.Fatalf("unexpected text rendering %q", text.String())
	}
	structured := &Output{Structured: schema.Object{"title": "Web scraping"}}
	if !strings.Contains(structured.String(), `"title": "Web scraping"`) {
		t.Fatalf("unexpected structured rendering %q", structured.String())
	}
}

func TestEnsureRunID(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("unexpected run id %q", id)
	}
	_, again := EnsureRunID(ctx)
	if again != id {
		t.Fatalf("expected existing run id to be kept")
	}
}

func TestNewEventCarriesContextIDs(t *testing.T) {
	ctx := WithTaskID(WithRunID(context.Background(), "run-1"), "scrape")
	var got Event
	emitter := EmitterFunc(func(_ context.Context, ev Event) { got = ev })
	emitter.Emit(ctx, NewEvent(ctx, EventTaskStarted, "scraper", nil))
	if got.RunID != "run-1" || got.TaskID != "scrape" || got.Agent != "scraper" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatalf("expected timestamp")
	}
}
