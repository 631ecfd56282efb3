// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"fmt"
	"sync"

	"github.com/jllopis/crew/pkg/core"
)

// ExecutionContext holds the outputs of completed tasks within one run.
// Entries are append-only: a task id is written once and never removed.
type ExecutionContext struct {
	mu      sync.RWMutex
	entries map[string]*core.Output
	order   []string
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{entries: make(map[string]*core.Output)}
}

// Set stores the output of a succeeded task.
func (c *ExecutionContext) Set(taskID string, out *core.Output) error {
	if out == nil {
		return fmt.Errorf("task %q: nil output", taskID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[taskID]; ok {
		return fmt.Errorf("task %q already has a stored result", taskID)
	}
	c.entries[taskID] = out
	c.order = append(c.order, taskID)
	return nil
}

// Get returns the stored output for taskID.
func (c *ExecutionContext) Get(taskID string) (*core.Output, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.entries[taskID]
	return out, ok
}

// View returns the stored outputs of ids only. Ids without an entry are
// omitted.
func (c *ExecutionContext) View(ids []string) map[string]*core.Output {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*core.Output, len(ids))
	for _, id := range ids {
		if v, ok := c.entries[id]; ok {
			out[id] = v
		}
	}
	return out
}

// IDs returns the stored task ids in completion order.
func (c *ExecutionContext) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of stored outputs.
func (c *ExecutionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
