package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/jllopis/crew/pkg/schema"
)

// TaskStatus describes the lifecycle state of a task within one run.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// ErrInvalidTransition is returned when a task state change is not allowed.
var ErrInvalidTransition = errors.New("invalid task status transition")

// Task is a unit of work assigned to one agent. Tasks are declared once at
// crew build time and never mutated; per-run state lives in TaskState.
type Task struct {
	ID string
	// Description is a template; {name} placeholders resolve to run inputs
	// or to upstream task ids.
	Description    string
	ExpectedOutput string
	Agent          string
	// Context lists upstream task ids whose outputs this task consumes.
	Context      []string
	OutputSchema *schema.Schema
}

// TaskState is the orchestrator-owned state of a task during one run.
type TaskState struct {
	TaskID     string
	Status     TaskStatus
	Output     *Output
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewTaskState returns a pending state for the task id.
func NewTaskState(taskID string) *TaskState {
	return &TaskState{TaskID: taskID, Status: TaskStatusPending}
}

// Start moves a pending task to running.
func (s *TaskState) Start() error {
	if s.Status != TaskStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, TaskStatusRunning)
	}
	s.Status = TaskStatusRunning
	s.StartedAt = time.Now().UTC()
	return nil
}

// Succeed records the output of a running task.
func (s *TaskState) Succeed(out *Output) error {
	if s.Status != TaskStatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, TaskStatusSucceeded)
	}
	s.Status = TaskStatusSucceeded
	s.Output = out
	s.FinishedAt = time.Now().UTC()
	return nil
}

// Fail records the failure cause. Terminal states are never overwritten.
func (s *TaskState) Fail(err error) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, TaskStatusFailed)
	}
	s.Status = TaskStatusFailed
	s.Err = err
	s.FinishedAt = time.Now().UTC()
	return nil
}

// Output is the result an agent produced for a task.
type Output struct {
	// Text is the free-text answer, or the canonical JSON of Structured.
	Text string
	// Structured is set when the task declared an output schema.
	Structured schema.Object

	Steps         int
	SchemaRetries int
	ToolCalls     int
}

// String returns the textual form used when the output is substituted into
// a downstream prompt.
func (o *Output) String() string {
	if o == nil {
		return ""
	}
	if o.Structured != nil {
		return schema.Canonical(o.Structured)
	}
	return o.Text
}
