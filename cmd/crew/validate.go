// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jllopis/crew/pkg/config"
	"github.com/jllopis/crew/pkg/crew"
	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/telemetry"
)

type validateResult struct {
	Config  checkResult `json:"config"`
	Crew    checkResult `json:"crew"`
	Inputs  checkResult `json:"inputs"`
	Order   []string    `json:"order,omitempty"`
	Needs   []string    `json:"needs_inputs,omitempty"`
	Overall string      `json:"overall"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "error", "skip"
	Message string `json:"message,omitempty"`
}

// runValidate loads config and crew, builds the task graph and reports the
// execution order. The reasoning backend is never contacted; configured MCP
// servers are, so their tools resolve.
func runValidate(global globalFlags, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	crewPath := fs.String("crew", "", "Crew definition file; default is the built-in scenario")
	pageURL := fs.String("url", "", "Shortcut for -input url=<url>")
	var inputFlags multiFlag
	fs.Var(&inputFlags, "input", "Run input key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	inputs, err := parseInputs(inputFlags, *pageURL)
	if err != nil {
		return err
	}

	result := validateResult{
		Config: checkResult{Name: "config", Status: "ok"},
		Crew:   checkResult{Name: "crew", Status: "skip"},
		Inputs: checkResult{Name: "inputs", Status: "skip"},
	}
	var firstErr error
	fail := func(c *checkResult, err error) {
		c.Status = "error"
		c.Message = err.Error()
		if firstErr == nil {
			firstErr = err
		}
	}

	cfg, err := loadConfig(global)
	if err != nil {
		fail(&result.Config, err)
	} else if err := cfg.Validate(); err != nil {
		// Missing credentials do not prevent checking the crew.
		result.Config.Status = "warn"
		result.Config.Message = err.Error()
	}

	if cfg != nil {
		c, err := buildOffline(cfg, *crewPath)
		if err != nil {
			fail(&result.Crew, err)
		} else {
			result.Crew.Status = "ok"
			result.Crew.Message = fmt.Sprintf("%s: %d tasks", c.Name(), len(c.Order()))
			result.Order = c.Order()
			result.Needs = requiredInputs(c)
			if len(inputs) > 0 {
				if err := c.Validate(inputs); err != nil {
					fail(&result.Inputs, err)
				} else {
					result.Inputs.Status = "ok"
				}
			}
		}
	}

	switch {
	case firstErr != nil:
		result.Overall = "error"
	case result.Config.Status == "warn":
		result.Overall = "warn"
	default:
		result.Overall = "ok"
	}

	if global.JSON {
		if err := printJSON(stdout, result); err != nil {
			return err
		}
	} else {
		printValidation(stdout, result)
	}
	if firstErr != nil {
		return silentError{firstErr}
	}
	return nil
}

// buildOffline assembles the crew on the offline backend so that validation
// never needs credentials.
func buildOffline(cfg *config.Config, crewPath string) (*crew.Crew, error) {
	def, err := loadDefinition(crewPath)
	if err != nil {
		return nil, err
	}
	offline := *cfg
	offline.LLM.Provider = "mock"
	a, err := newApp(context.Background(), &offline, telemetry.DiscardLogger())
	if err != nil {
		return nil, err
	}
	defer a.Close()
	c, err := a.assemble(def, nil)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "crew does not build", err)
	}
	return c, nil
}

// requiredInputs lists the placeholders no upstream task satisfies.
func requiredInputs(c *crew.Crew) []string {
	seen := map[string]struct{}{}
	for _, t := range c.Tasks() {
		upstream := make(map[string]struct{}, len(t.Context))
		for _, id := range t.Context {
			upstream[id] = struct{}{}
		}
		for _, tmpl := range []string{t.Description, t.ExpectedOutput} {
			names, _ := crew.Placeholders(tmpl)
			for _, name := range names {
				if _, ok := upstream[name]; !ok {
					seen[name] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func printValidation(w io.Writer, r validateResult) {
	for _, c := range []checkResult{r.Config, r.Crew, r.Inputs} {
		line := fmt.Sprintf("[%s] %s", strings.ToUpper(c.Status), c.Name)
		if c.Message != "" {
			line += ": " + c.Message
		}
		fmt.Fprintln(w, line)
	}
	if len(r.Order) > 0 {
		fmt.Fprintf(w, "Order: %s\n", strings.Join(r.Order, " -> "))
	}
	if len(r.Needs) > 0 {
		fmt.Fprintf(w, "Inputs: %s\n", strings.Join(r.Needs, ", "))
	}
	fmt.Fprintf(w, "Overall: %s\n", r.Overall)
}
