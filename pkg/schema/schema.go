// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema declares structured output contracts and validates candidate
// answers against them, producing field-level diagnostics usable as
// corrective feedback for a reasoning backend.
package schema

import (
	"fmt"
	"strings"
)

// Kind is the scalar kind of a field or of its elements.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Shape is the container shape of a field.
type Shape string

const (
	ShapeScalar Shape = "scalar"
	ShapeList   Shape = "list"
	ShapeMap    Shape = "map"
)

// Type describes the declared type of a field.
type Type struct {
	Shape Shape
	Kind  Kind
}

// Scalar declares a single value of kind.
func Scalar(kind Kind) Type { return Type{Shape: ShapeScalar, Kind: kind} }

// ListOf declares an ordered sequence of kind.
func ListOf(kind Kind) Type { return Type{Shape: ShapeList, Kind: kind} }

// MapOf declares a mapping of string keys to kind.
func MapOf(kind Kind) Type { return Type{Shape: ShapeMap, Kind: kind} }

// String renders the type as used in diagnostics, e.g. list<string>.
func (t Type) String() string {
	switch t.Shape {
	case ShapeList:
		return "list<" + string(t.Kind) + ">"
	case ShapeMap:
		return "map<string," + string(t.Kind) + ">"
	default:
		return string(t.Kind)
	}
}

// ParseType parses the textual form produced by Type.String. It also accepts
// the []kind and map[string]kind spellings used in crew files.
func ParseType(raw string) (Type, error) {
	value := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	switch {
	case value == "":
		return Type{}, fmt.Errorf("empty field type")
	case strings.HasPrefix(value, "list<") && strings.HasSuffix(value, ">"):
		kind, err := parseKind(value[len("list<") : len(value)-1])
		return ListOf(kind), err
	case strings.HasPrefix(value, "[]"):
		kind, err := parseKind(value[2:])
		return ListOf(kind), err
	case strings.HasPrefix(value, "map<string,") && strings.HasSuffix(value, ">"):
		kind, err := parseKind(value[len("map<string,") : len(value)-1])
		return MapOf(kind), err
	case strings.HasPrefix(value, "map[string]"):
		kind, err := parseKind(value[len("map[string]"):])
		return MapOf(kind), err
	default:
		kind, err := parseKind(value)
		return Scalar(kind), err
	}
}

func parseKind(raw string) (Kind, error) {
	switch raw {
	case "string", "str":
		return KindString, nil
	case "number", "float", "int", "integer":
		return KindNumber, nil
	case "boolean", "bool":
		return KindBoolean, nil
	default:
		return "", fmt.Errorf("unsupported scalar kind %q", raw)
	}
}

// Field is a single named entry of a schema.
type Field struct {
	Name        string
	Type        Type
	Required    bool
	Description string
}

// Schema is a declarative contract a structured answer must satisfy.
// Field order is preserved for prompts and diagnostics.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// New builds a schema and rejects empty or duplicate field names.
func New(name string, fields ...Field) (*Schema, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("schema name is required")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("schema %q: field name is required", name)
		}
		if _, ok := seen[f.Name]; ok {
			return nil, fmt.Errorf("schema %q: duplicate field %q", name, f.Name)
		}
		if f.Type.Kind == "" {
			return nil, fmt.Errorf("schema %q: field %q missing type", name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return &Schema{Name: name, Fields: append([]Field(nil), fields...)}, nil
}

// MustNew is like New but panics on error. Intended for package-level schemas.
func MustNew(name string, fields ...Field) *Schema {
	s, err := New(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Required returns the names of required fields in declaration order.
func (s *Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}
