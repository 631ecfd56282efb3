// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/errors"
)

func TestResolveOrderDeclarationTieBreak(t *testing.T) {
	tasks := []core.Task{
		{ID: "c", Context: []string{"a"}},
		{ID: "b"},
		{ID: "a"},
	}
	order, err := ResolveOrder(tasks)
	if err != nil {
		t.Fatalf("ResolveOrder error: %v", err)
	}
	if got := strings.Join(order, ","); got != "b,a,c" {
		t.Fatalf("order %s, want b,a,c", got)
	}
}

func TestResolveOrderRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(9)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("t%d", i)
		}
		// Edges only point to lower ranks, so the graph is acyclic.
		tasks := make([]core.Task, n)
		for i := range tasks {
			tasks[i] = core.Task{ID: ids[i]}
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					tasks[i].Context = append(tasks[i].Context, ids[j])
				}
			}
		}
		rng.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })

		order, err := ResolveOrder(tasks)
		if err != nil {
			t.Fatalf("iteration %d: %v", iter, err)
		}
		if len(order) != n {
			t.Fatalf("iteration %d: order has %d of %d tasks", iter, len(order), n)
		}
		pos := make(map[string]int, n)
		for i, id := range order {
			pos[id] = i
		}
		for _, task := range tasks {
			for _, up := range task.Context {
				if pos[up] >= pos[task.ID] {
					t.Fatalf("iteration %d: %s runs before its upstream %s in %v", iter, task.ID, up, order)
				}
			}
		}
	}
}

func TestResolveOrderCycle(t *testing.T) {
	tasks := []core.Task{
		{ID: "start"},
		{ID: "A", Context: []string{"start", "C"}},
		{ID: "B", Context: []string{"A"}},
		{ID: "C", Context: []string{"B"}},
	}
	_, err := ResolveOrder(tasks)
	if !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	for _, id := range []string{"A", "B", "C"} {
		if !strings.Contains(err.Error(), id) {
			t.Fatalf("cycle error %q does not name %s", err.Error(), id)
		}
	}
	if strings.Contains(err.Error(), "start") {
		t.Fatalf("cycle error %q names a task outside the cycle", err.Error())
	}
}

func TestResolveOrderDuplicateUpstream(t *testing.T) {
	order, err := ResolveOrder([]core.Task{
		{ID: "b", Context: []string{"a", "a"}},
		{ID: "a"},
	})
	if err != nil {
		t.Fatalf("ResolveOrder error: %v", err)
	}
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("unexpected order %v", order)
	}
}
