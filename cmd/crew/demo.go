// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jllopis/crew/pkg/llm"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// demoProvider is the offline backend behind llm.provider=mock. It calls the
// first offered capability with the first URL of the prompt, then answers from
// the capability output: a JSON article when a schema is requested, a short
// text otherwise.
func demoProvider() llm.Provider {
	return &llm.MockProvider{ChatFunc: func(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		prompt := lastContent(req.Messages, llm.RoleUser)
		observation, called := lastToolResult(req.Messages)

		if !called && len(req.Tools) > 0 {
			if u := urlPattern.FindString(prompt); u != "" {
				args, _ := json.Marshal(map[string]string{"input": u})
				return &llm.ChatResponse{ToolCalls: []llm.ToolCall{{
					ID:   "demo-1",
					Type: llm.ToolTypeFunction,
					Function: llm.FunctionCall{
						Name:      req.Tools[0].Function.Name,
						Arguments: string(args),
					},
				}}}, nil
			}
		}

		source := observation
		if source == "" {
			source = prompt
		}
		if strings.Contains(prompt, "JSON Schema") {
			return &llm.ChatResponse{Content: demoArticle(source)}, nil
		}
		return &llm.ChatResponse{Content: demoPost(source)}, nil
	}}
}

func lastContent(msgs []llm.Message, role llm.Role) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i].Content
		}
	}
	return ""
}

func lastToolResult(msgs []llm.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleTool {
			return msgs[i].Content, true
		}
	}
	return "", false
}

func demoArticle(text string) string {
	article := map[string]any{"title": "Untitled", "paragraphs": []string{}}
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if title, ok := strings.CutPrefix(block, "Title: "); ok {
			title, _, _ = strings.Cut(title, "\n")
			article["title"] = title
			continue
		}
		paragraphs = append(paragraphs, block)
	}
	if len(paragraphs) == 0 {
		paragraphs = []string{strings.TrimSpace(text)}
	}
	article["paragraphs"] = paragraphs
	data, _ := json.Marshal(article)
	return string(data)
}

func demoPost(text string) string {
	var article struct {
		Title      string   `json:"title"`
		Paragraphs []string `json:"paragraphs"`
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start && json.Unmarshal([]byte(text[start:end+1]), &article) == nil && article.Title != "" {
		return fmt.Sprintf("# %s\n\n%s", article.Title, strings.Join(article.Paragraphs, "\n\n"))
	}
	return strings.TrimSpace(text)
}
