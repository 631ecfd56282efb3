// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/crew"
)

type graphResult struct {
	Format  string   `json:"format"`
	Content string   `json:"content"`
	Crew    string   `json:"crew,omitempty"`
	Order   []string `json:"order"`
	Tasks   int      `json:"tasks"`
	Edges   int      `json:"edges"`
}

func runGraph(global globalFlags, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	output := fs.String("output", "mermaid", "Output format: mermaid, dot")
	crewPath := fs.String("crew", "", "Crew definition file; default is the built-in scenario")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	def, err := loadDefinition(*crewPath)
	if err != nil {
		return err
	}
	tasks, err := def.CoreTasks(nil)
	if err != nil {
		return err
	}
	order, err := crew.ResolveOrder(tasks)
	if err != nil {
		return err
	}

	result := graphResult{
		Format: *output,
		Crew:   def.Name,
		Order:  order,
		Tasks:  len(tasks),
	}
	for _, t := range tasks {
		result.Edges += len(t.Context)
	}

	switch *output {
	case "mermaid":
		result.Content = toMermaid(tasks)
	case "dot":
		result.Content = toDot(tasks)
	default:
		return usageError(fmt.Sprintf("unknown output format %q; use mermaid or dot", *output))
	}

	if global.JSON {
		return printJSON(stdout, result)
	}
	fmt.Fprintln(stdout, result.Content)
	return nil
}

func taskLabel(t core.Task) string {
	label := t.ID + ": " + t.Agent
	if t.OutputSchema != nil {
		label += " / " + t.OutputSchema.Name
	}
	return label
}

func toMermaid(tasks []core.Task) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "    %s[%s]\n", t.ID, taskLabel(t))
	}
	for _, t := range tasks {
		for _, up := range t.Context {
			fmt.Fprintf(&sb, "    %s --> %s\n", up, t.ID)
		}
	}
	// Roots have no upstream and run first.
	for _, t := range tasks {
		if len(t.Context) == 0 {
			fmt.Fprintf(&sb, "    style %s fill:#90EE90\n", t.ID)
		}
	}
	return sb.String()
}

func toDot(tasks []core.Task) string {
	var sb strings.Builder
	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TB;\n")
	sb.WriteString("    node [shape=box, style=rounded];\n")
	for _, t := range tasks {
		attrs := fmt.Sprintf("label=\"%s\"", strings.Replace(taskLabel(t), ": ", "\\n", 1))
		if len(t.Context) == 0 {
			attrs += ", style=\"rounded,filled\", fillcolor=\"#90EE90\""
		}
		fmt.Fprintf(&sb, "    %q [%s];\n", t.ID, attrs)
	}
	for _, t := range tasks {
		for _, up := range t.Context {
			fmt.Fprintf(&sb, "    %q -> %q;\n", up, t.ID)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
