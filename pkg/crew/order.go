// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"strings"

	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/errors"
)

// ResolveOrder validates the task graph and returns a topological order.
// Among tasks that are ready at the same time, the one declared first runs
// first, so the order is deterministic.
func ResolveOrder(tasks []core.Task) ([]string, error) {
	if len(tasks) == 0 {
		return nil, errors.Newf(errors.CodeConfiguration, "crew has no tasks")
	}
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		id := t.ID
		if strings.TrimSpace(id) == "" {
			return nil, errors.Newf(errors.CodeConfiguration, "task at position %d has no id", i)
		}
		// Ids key results and placeholders verbatim.
		if strings.TrimSpace(id) != id {
			return nil, errors.Newf(errors.CodeConfiguration, "task id %q has surrounding whitespace", id).
				WithContext("task_id", id)
		}
		if _, dup := index[id]; dup {
			return nil, errors.Newf(errors.CodeConfiguration, "duplicate task id %q", id).
				WithContext("task_id", id)
		}
		index[id] = i
	}

	indegree := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))
	for i, t := range tasks {
		seen := make(map[string]struct{}, len(t.Context))
		for _, up := range t.Context {
			if up == t.ID {
				return nil, errors.Newf(errors.CodeConfiguration, "task %q lists itself as upstream", t.ID).
					WithContext("task_id", t.ID)
			}
			j, ok := index[up]
			if !ok {
				return nil, errors.Newf(errors.CodeConfiguration, "task %q references unknown upstream %q", t.ID, up).
					WithContext("task_id", t.ID)
			}
			if _, dup := seen[up]; dup {
				continue
			}
			seen[up] = struct{}{}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// ready holds declaration indexes; picking the smallest keeps ties in
	// declaration order.
	var ready []int
	for i := range tasks {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]string, 0, len(tasks))
	for len(ready) > 0 {
		best := 0
		for k := range ready {
			if ready[k] < ready[best] {
				best = k
			}
		}
		next := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, tasks[next].ID)
		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(order) != len(tasks) {
		cycle := findCycle(tasks, index, indegree)
		return nil, errors.Newf(errors.CodeConfiguration, "task graph has a cycle: %s", strings.Join(cycle, " -> ")).
			WithContext("cycle", cycle)
	}
	return order, nil
}

// findCycle walks upstream edges from a task left with unresolved
// dependencies until a task repeats.
func findCycle(tasks []core.Task, index map[string]int, indegree []int) []string {
	start := -1
	for i, d := range indegree {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	pos := map[int]int{}
	var path []string
	cur := start
	for {
		if p, ok := pos[cur]; ok {
			cycle := append([]string(nil), path[p:]...)
			// Report in dependency direction: each task runs before the next.
			for l, r := 0, len(cycle)-1; l < r; l, r = l+1, r-1 {
				cycle[l], cycle[r] = cycle[r], cycle[l]
			}
			return append(cycle, cycle[0])
		}
		pos[cur] = len(path)
		path = append(path, tasks[cur].ID)
		next := -1
		for _, up := range tasks[cur].Context {
			if j := index[up]; indegree[j] > 0 {
				next = j
				break
			}
		}
		if next < 0 {
			return path
		}
		cur = next
	}
}
