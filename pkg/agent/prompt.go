// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/jllopis/crew/pkg/llm"
	"github.com/jllopis/crew/pkg/schema"
)

// inputProperty is the single argument every capability tool accepts.
const inputProperty = "input"

func (a *Agent) systemPrompt() string {
	var b strings.Builder
	if a.role != "" {
		fmt.Fprintf(&b, "You are %s.", a.role)
	}
	if a.backstory != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(a.backstory))
	}
	if a.goal != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Your personal goal is: %s", strings.TrimSpace(a.goal))
	}
	if len(a.capabilities) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Call the available tools when you need external data. ")
		b.WriteString("If a tool fails, decide whether to retry with a different input or continue without it. ")
		b.WriteString("When you have the final answer, reply with it directly without calling a tool.")
	}
	return b.String()
}

func userPrompt(prompt string, s *schema.Schema) string {
	if s == nil {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nYour final answer must be a single JSON object conforming to this JSON Schema")
	if s.Name != "" {
		fmt.Fprintf(&b, " (%s)", s.Name)
	}
	b.WriteString(". Reply with the JSON object only.\n")
	b.WriteString(s.JSONSchemaText())
	return b.String()
}

func (a *Agent) transcript(prompt string, s *schema.Schema) []llm.Message {
	messages := make([]llm.Message, 0, 2+2*a.maxSteps)
	if sys := a.systemPrompt(); sys != "" {
		messages = append(messages, llm.SystemMessage(sys))
	}
	return append(messages, llm.UserMessage(userPrompt(prompt, s)))
}

func correction(verr *schema.ValidationError) string {
	var b strings.Builder
	b.WriteString("Your answer does not satisfy the required schema")
	if verr.Schema != "" {
		fmt.Fprintf(&b, " %s", verr.Schema)
	}
	b.WriteString(":\n")
	for _, fe := range verr.Errors {
		fmt.Fprintf(&b, "- %s\n", fe.String())
	}
	b.WriteString("Reply with the corrected JSON object only.")
	return b.String()
}

func (a *Agent) toolDefinitions() []llm.Tool {
	if len(a.capabilities) == 0 {
		return nil
	}
	tools := make([]llm.Tool, 0, len(a.capabilities))
	for _, c := range a.capabilities {
		tools = append(tools, llm.NewFunctionTool(c.Name(), c.Description(), inputParameters()))
	}
	return tools
}

func inputParameters() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set(inputProperty, &jsonschema.Schema{
		Type:        "string",
		Description: "Argument passed to the capability",
	})
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{inputProperty},
	}
}

// capabilityArgument extracts the argument from tool call arguments. Backends
// send {"input": "..."}; a lone string value under another key, a bare JSON
// string and non-JSON text are accepted as-is.
func capabilityArgument(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		if v, ok := obj[inputProperty].(string); ok {
			return v
		}
		if len(obj) == 1 {
			for _, v := range obj {
				if s, ok := v.(string); ok {
					return s
				}
			}
		}
		return raw
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	return raw
}

// parseAnswer validates a final answer against s. A reply without JSON is
// reported as a whole-answer field error so it can be fed back.
func parseAnswer(content string, s *schema.Schema) (schema.Object, *schema.ValidationError) {
	candidate, err := schema.ParseCandidate(content)
	if err != nil {
		return nil, &schema.ValidationError{Schema: s.Name, Errors: []schema.FieldError{{
			Expected: "object",
			Observed: "text",
			Problem:  "answer is not a JSON object",
		}}}
	}
	obj, err := schema.Validate(candidate, s)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, &schema.ValidationError{Schema: s.Name, Errors: []schema.FieldError{{Problem: err.Error()}}}
	}
	return obj, nil
}
