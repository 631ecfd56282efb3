// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/schema"
)

func sampleTasks() []core.Task {
	return []core.Task{
		{ID: "scrape", Agent: "scraper", OutputSchema: schema.ArticleSchema},
		{ID: "write", Agent: "writer", Context: []string{"scrape"}},
	}
}

func TestToMermaid(t *testing.T) {
	result := toMermaid(sampleTasks())

	if !strings.Contains(result, "graph TD") {
		t.Error("expected graph TD directive")
	}
	if !strings.Contains(result, "scrape[scrape: scraper / ScrapedArticle]") {
		t.Errorf("expected scrape node:\n%s", result)
	}
	if !strings.Contains(result, "scrape --> write") {
		t.Error("expected edge scrape --> write")
	}
	if !strings.Contains(result, "style scrape fill:#90EE90") || strings.Contains(result, "style write") {
		t.Errorf("expected only the root highlighted:\n%s", result)
	}
}

func TestToDot(t *testing.T) {
	result := toDot(sampleTasks())

	if !strings.HasPrefix(result, "digraph G {") {
		t.Error("expected digraph header")
	}
	if !strings.Contains(result, `"scrape" -> "write";`) {
		t.Errorf("expected edge:\n%s", result)
	}
	if !strings.Contains(result, `label="write\nwriter"`) {
		t.Errorf("expected write label:\n%s", result)
	}
}

func TestRunGraphScenario(t *testing.T) {
	var out bytes.Buffer
	if err := runGraph(globalFlags{}, []string{"-output", "mermaid"}, &out); err != nil {
		t.Fatalf("runGraph: %v", err)
	}
	if !strings.Contains(out.String(), "scrape --> write") {
		t.Fatalf("unexpected graph:\n%s", out.String())
	}
	if err := runGraph(globalFlags{}, []string{"-output", "png"}, &out); exitCode(err) != exitConfiguration {
		t.Fatalf("expected usage error for unknown format, got %v", err)
	}
}
