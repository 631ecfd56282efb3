// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// JSONSchema renders s as a JSON Schema document for prompts and tool definitions.
func (s *Schema) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	for _, f := range s.Fields {
		prop := f.Type.jsonSchema()
		prop.Description = f.Description
		props.Set(f.Name, prop)
	}
	return &jsonschema.Schema{
		Type:        "object",
		Title:       s.Name,
		Description: s.Description,
		Properties:  props,
		Required:    s.Required(),
	}
}

// JSONSchemaText returns the indented JSON Schema text.
func (s *Schema) JSONSchemaText() string {
	data, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func (t Type) jsonSchema() *jsonschema.Schema {
	switch t.Shape {
	case ShapeList:
		return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: string(t.Kind)}}
	case ShapeMap:
		return &jsonschema.Schema{Type: "object", AdditionalProperties: &jsonschema.Schema{Type: string(t.Kind)}}
	default:
		return &jsonschema.Schema{Type: string(t.Kind)}
	}
}
