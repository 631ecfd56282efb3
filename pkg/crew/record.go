// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"time"

	"github.com/jllopis/crew/pkg/core"
)

// TaskRecord is the observable outcome of one dispatched task.
type TaskRecord struct {
	TaskID     string          `json:"task_id"`
	AgentID    string          `json:"agent_id"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Status     core.TaskStatus `json:"status"`
	RetryCount int             `json:"retry_count"`
	Steps      int             `json:"steps"`
	ToolCalls  int             `json:"tool_calls"`
	Error      string          `json:"error,omitempty"`
}

// Duration returns the wall time of the task.
func (r TaskRecord) Duration() time.Duration {
	if r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Result is the outcome of one run. It is returned also when the run fails,
// so callers can inspect what completed.
type Result struct {
	RunID string
	// Order is the resolved execution order.
	Order []string
	// Final is the output of the last succeeded task.
	Final   *core.Output
	Outputs map[string]*core.Output
	Tasks   map[string]*core.TaskState
	// Records lists dispatched tasks in execution order.
	Records []TaskRecord
}

// Status returns the status of taskID, or pending if the task is unknown.
func (r *Result) Status(taskID string) core.TaskStatus {
	if r == nil {
		return core.TaskStatusPending
	}
	if st, ok := r.Tasks[taskID]; ok {
		return st.Status
	}
	return core.TaskStatusPending
}

// Record returns the record of taskID, if it was dispatched.
func (r *Result) Record(taskID string) (TaskRecord, bool) {
	if r == nil {
		return TaskRecord{}, false
	}
	for _, rec := range r.Records {
		if rec.TaskID == taskID {
			return rec, true
		}
	}
	return TaskRecord{}, false
}

// Elapsed returns the wall time from the first dispatched task to the last.
func (r *Result) Elapsed() time.Duration {
	if r == nil || len(r.Records) == 0 {
		return 0
	}
	return r.Records[len(r.Records)-1].End.Sub(r.Records[0].Start)
}
