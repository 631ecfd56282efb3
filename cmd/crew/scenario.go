// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	_ "embed"
	"strings"

	"github.com/jllopis/crew/pkg/crew"
)

//go:embed scenario.yaml
var defaultScenario []byte

// loadDefinition loads the crew file at path, or the built-in scenario when
// path is empty.
func loadDefinition(path string) (*crew.Definition, error) {
	if strings.TrimSpace(path) == "" {
		return crew.ParseYAML(defaultScenario)
	}
	return crew.LoadDefinition(path)
}
