// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/crew/pkg/agent"
	"github.com/jllopis/crew/pkg/capability"
	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/llm"
	"github.com/jllopis/crew/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Definition is the file form of a crew.
type Definition struct {
	Name   string      `json:"name" yaml:"name"`
	Agents []AgentSpec `json:"agents" yaml:"agents"`
	Tasks  []TaskSpec  `json:"tasks" yaml:"tasks"`
}

// AgentSpec declares one agent. Zero values fall back to Defaults.
type AgentSpec struct {
	ID               string   `json:"id" yaml:"id"`
	Role             string   `json:"role" yaml:"role"`
	Goal             string   `json:"goal" yaml:"goal"`
	Backstory        string   `json:"backstory,omitempty" yaml:"backstory,omitempty"`
	Model            string   `json:"model,omitempty" yaml:"model,omitempty"`
	Capabilities     []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	MaxSteps         int      `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	MaxSchemaRetries *int     `json:"max_schema_retries,omitempty" yaml:"max_schema_retries,omitempty"`
}

// TaskSpec declares one task. Schema names a registered schema; Fields
// declares an inline one. At most one of them may be set.
type TaskSpec struct {
	ID             string      `json:"id" yaml:"id"`
	Description    string      `json:"description" yaml:"description"`
	ExpectedOutput string      `json:"expected_output,omitempty" yaml:"expected_output,omitempty"`
	Agent          string      `json:"agent" yaml:"agent"`
	Context        []string    `json:"context,omitempty" yaml:"context,omitempty"`
	Schema         string      `json:"schema,omitempty" yaml:"schema,omitempty"`
	Fields         []FieldSpec `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// FieldSpec declares one inline schema field. Type uses the spellings
// accepted by schema.ParseType.
type FieldSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Defaults are applied to every agent a Definition assembles.
type Defaults struct {
	Model            string
	MaxSteps         int
	MaxSchemaRetries int
	// Temperature is left to the backend when nil.
	Temperature *float64
	// AgentOptions apply to every agent before its own settings, e.g.
	// logger, metrics or timeouts.
	AgentOptions []agent.Option
}

// ParseJSON loads a crew definition from JSON and validates it.
func ParseJSON(data []byte) (*Definition, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse json crew: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseYAML loads a crew definition from YAML and validates it.
func ParseYAML(data []byte) (*Definition, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse yaml crew: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinition loads a crew definition from a YAML or JSON file.
func LoadDefinition(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("crew path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			return ParseJSON(data)
		}
		return ParseYAML(data)
	}
}

// Validate checks the definition is structurally complete. Graph checks
// (unknown references, cycles) run when the crew is assembled.
func (d *Definition) Validate() error {
	if d == nil {
		return errors.Newf(errors.CodeConfiguration, "crew definition is nil")
	}
	if len(d.Agents) == 0 {
		return errors.Newf(errors.CodeConfiguration, "crew %q declares no agents", d.Name)
	}
	if len(d.Tasks) == 0 {
		return errors.Newf(errors.CodeConfiguration, "crew %q declares no tasks", d.Name)
	}
	for i, a := range d.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return errors.Newf(errors.CodeConfiguration, "agent at position %d has no id", i)
		}
	}
	for i, t := range d.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return errors.Newf(errors.CodeConfiguration, "task at position %d has no id", i)
		}
		if strings.TrimSpace(t.Description) == "" {
			return errors.Newf(errors.CodeConfiguration, "task %q has no description", t.ID).WithContext("task_id", t.ID)
		}
		if t.Schema != "" && len(t.Fields) > 0 {
			return errors.Newf(errors.CodeConfiguration, "task %q sets both schema and fields", t.ID).WithContext("task_id", t.ID)
		}
	}
	return nil
}

// CoreTasks converts the task specs, resolving schema names against schemas.
func (d *Definition) CoreTasks(schemas *schema.Registry) ([]core.Task, error) {
	if schemas == nil {
		schemas = schema.DefaultRegistry()
	}
	out := make([]core.Task, 0, len(d.Tasks))
	for _, ts := range d.Tasks {
		t := core.Task{
			ID:             ts.ID,
			Description:    ts.Description,
			ExpectedOutput: ts.ExpectedOutput,
			Agent:          ts.Agent,
			Context:        append([]string(nil), ts.Context...),
		}
		switch {
		case ts.Schema != "":
			s, ok := schemas.Lookup(ts.Schema)
			if !ok {
				return nil, errors.Newf(errors.CodeConfiguration, "task %q references unknown schema %q", ts.ID, ts.Schema).
					WithContext("task_id", ts.ID)
			}
			t.OutputSchema = s
		case len(ts.Fields) > 0:
			s, err := inlineSchema(ts)
			if err != nil {
				return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("task %q has an invalid schema", ts.ID), err).
					WithContext("task_id", ts.ID)
			}
			t.OutputSchema = s
		}
		out = append(out, t)
	}
	return out, nil
}

func inlineSchema(ts TaskSpec) (*schema.Schema, error) {
	fields := make([]schema.Field, 0, len(ts.Fields))
	for _, fs := range ts.Fields {
		typ, err := schema.ParseType(fs.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fs.Name, err)
		}
		fields = append(fields, schema.Field{
			Name:        fs.Name,
			Type:        typ,
			Required:    fs.Required,
			Description: fs.Description,
		})
	}
	return schema.New(ts.ID+"_output", fields...)
}

// Assemble builds the agents and the crew. Capabilities are resolved by
// name from caps; schemas defaults to schema.DefaultRegistry().
func (d *Definition) Assemble(provider llm.Provider, caps *capability.Registry, schemas *schema.Registry, defaults Defaults, opts ...Option) (*Crew, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if caps == nil {
		caps, _ = capability.NewRegistry()
	}
	tasks, err := d.CoreTasks(schemas)
	if err != nil {
		return nil, err
	}

	agents := make([]core.Agent, 0, len(d.Agents))
	for _, spec := range d.Agents {
		a, err := assembleAgent(spec, provider, caps, defaults)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	if d.Name != "" {
		opts = append([]Option{WithName(d.Name)}, opts...)
	}
	return New(tasks, agents, opts...)
}

func assembleAgent(spec AgentSpec, provider llm.Provider, caps *capability.Registry, defaults Defaults) (*agent.Agent, error) {
	resolved, err := caps.Resolve(spec.Capabilities)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("agent %q", spec.ID), err).
			WithContext("agent_id", spec.ID)
	}

	model := defaults.Model
	if spec.Model != "" {
		model = spec.Model
	}
	opts := append([]agent.Option(nil), defaults.AgentOptions...)
	opts = append(opts,
		agent.WithRole(spec.Role),
		agent.WithGoal(spec.Goal),
		agent.WithBackstory(spec.Backstory),
		agent.WithModel(model),
		agent.WithCapabilities(resolved...),
	)
	if defaults.Temperature != nil {
		opts = append(opts, agent.WithTemperature(*defaults.Temperature))
	}
	if n := firstPositive(spec.MaxSteps, defaults.MaxSteps); n > 0 {
		opts = append(opts, agent.WithMaxSteps(n))
	}
	switch {
	case spec.MaxSchemaRetries != nil:
		opts = append(opts, agent.WithMaxSchemaRetries(*spec.MaxSchemaRetries))
	case defaults.MaxSchemaRetries > 0:
		opts = append(opts, agent.WithMaxSchemaRetries(defaults.MaxSchemaRetries))
	}

	a, err := agent.New(spec.ID, provider, opts...)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("agent %q", spec.ID), err).
			WithContext("agent_id", spec.ID)
	}
	return a, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
