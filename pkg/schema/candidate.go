// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ErrNoJSON is returned when a model answer carries no parsable JSON object.
var ErrNoJSON = errors.New("answer does not contain a JSON object")

// ParseCandidate extracts a JSON value from free model text. It accepts bare
// JSON, fenced code blocks and an object embedded in surrounding prose.
func ParseCandidate(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &v); err == nil {
			return v, nil
		}
	}
	return nil, ErrNoJSON
}

// Canonical serializes obj with sorted keys and two-space indentation so the
// same object always renders to the same text.
func Canonical(obj Object) string {
	if obj == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(map[string]any(obj), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
