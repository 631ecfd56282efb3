// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Object is a validated structured value containing only declared fields.
type Object map[string]any

// FieldError is a single diagnostic produced by Validate.
type FieldError struct {
	// Field is the path of the offending value: title, keywords[2], metadata.lang.
	// Empty when the candidate as a whole is wrong.
	Field    string
	Expected string
	Observed string
	Problem  string
}

// String renders the diagnostic as a single line.
func (e FieldError) String() string {
	subject := e.Field
	if subject == "" {
		subject = "(answer)"
	}
	if e.Problem != "" {
		return subject + ": " + e.Problem
	}
	return fmt.Sprintf("%s: expected %s, got %s", subject, e.Expected, e.Observed)
}

// ValidationError reports every field that failed validation.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	return fmt.Sprintf("schema %s: %s", e.Schema, strings.Join(parts, "; "))
}

// Fields returns the offending field paths in report order.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		out = append(out, fe.Field)
	}
	return out
}

// Validate checks candidate against s. Unknown fields are ignored and
// dropped from the returned Object. On failure the error is a
// *ValidationError listing every problem found.
func Validate(candidate any, s *Schema) (Object, error) {
	if s == nil {
		return nil, fmt.Errorf("schema is nil")
	}
	obj, ok := asObject(candidate)
	if !ok {
		return nil, &ValidationError{Schema: s.Name, Errors: []FieldError{{
			Expected: "object",
			Observed: shapeOf(candidate),
			Problem:  "expected a JSON object, got " + shapeOf(candidate),
		}}}
	}

	out := make(Object, len(s.Fields))
	var errs []FieldError
	for _, field := range s.Fields {
		raw, present := obj[field.Name]
		if !present || raw == nil {
			if field.Required {
				problem := "required field is missing"
				if present {
					problem = "required field is null"
				}
				errs = append(errs, FieldError{
					Field:    field.Name,
					Expected: field.Type.String(),
					Observed: shapeOf(raw),
					Problem:  problem,
				})
			}
			continue
		}
		value, fieldErrs := checkValue(field.Name, field.Type, raw)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}
		out[field.Name] = value
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Schema: s.Name, Errors: errs}
	}
	return out, nil
}

func checkValue(path string, t Type, raw any) (any, []FieldError) {
	switch t.Shape {
	case ShapeList:
		items, ok := asList(raw)
		if !ok {
			return nil, []FieldError{mismatch(path, t.String(), raw)}
		}
		out := make([]any, 0, len(items))
		var errs []FieldError
		for i, item := range items {
			if !matchesKind(t.Kind, item) {
				errs = append(errs, mismatch(fmt.Sprintf("%s[%d]", path, i), string(t.Kind), item))
				continue
			}
			out = append(out, item)
		}
		return out, errs
	case ShapeMap:
		entries, ok := asObject(raw)
		if !ok {
			return nil, []FieldError{mismatch(path, t.String(), raw)}
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(entries))
		var errs []FieldError
		for _, k := range keys {
			v := entries[k]
			if !matchesKind(t.Kind, v) {
				errs = append(errs, mismatch(path+"."+k, string(t.Kind), v))
				continue
			}
			out[k] = v
		}
		return out, errs
	default:
		if !matchesKind(t.Kind, raw) {
			return nil, []FieldError{mismatch(path, t.String(), raw)}
		}
		return raw, nil
	}
}

func mismatch(path, expected string, raw any) FieldError {
	return FieldError{Field: path, Expected: expected, Observed: shapeOf(raw)}
}

func matchesKind(kind Kind, v any) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	default:
		return false
	}
}

func asObject(v any) (map[string]any, bool) {
	switch value := v.(type) {
	case map[string]any:
		return value, true
	case Object:
		return value, true
	case map[string]string:
		out := make(map[string]any, len(value))
		for k, s := range value {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func asList(v any) ([]any, bool) {
	switch value := v.(type) {
	case []any:
		return value, true
	case []string:
		out := make([]any, len(value))
		for i, s := range value {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func shapeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64:
		return "number"
	case []any, []string:
		return "list"
	case map[string]any, map[string]string, Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
