// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/jllopis/crew/pkg/core"
	"github.com/valyala/fasttemplate"
)

const (
	tagStart = "{"
	tagEnd   = "}"
)

// Only identifier-like tags are placeholders. Anything else between braces,
// such as an inline JSON example, is copied through untouched.
var placeholderPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// splitTag returns the placeholder name closing a fasttemplate tag and the
// literal text before it. fasttemplate ends a tag at the first closing brace,
// so a placeholder nested in other braces, as in {"url": "{url}"}, arrives as
// the tail of the tag `"url": "{url`.
func splitTag(tag string) (literal, name string, ok bool) {
	if i := strings.LastIndex(tag, tagStart); i >= 0 {
		literal, tag = tagStart+tag[:i], tag[i+len(tagStart):]
	}
	name = strings.TrimSpace(tag)
	if !placeholderPattern.MatchString(name) {
		return "", "", false
	}
	return literal, name, true
}

// Placeholders returns the distinct placeholder names of tmpl in order of
// first appearance, including placeholders nested inside other braces.
func Placeholders(tmpl string) ([]string, error) {
	t, err := fasttemplate.NewTemplate(tmpl, tagStart, tagEnd)
	if err != nil {
		return nil, err
	}
	var names []string
	seen := map[string]struct{}{}
	t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		_, name, ok := splitTag(tag)
		if !ok {
			return 0, nil
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			names = append(names, name)
		}
		return 0, nil
	})
	return names, nil
}

// renderTemplate substitutes placeholders with values. Unknown placeholders
// are an error.
func renderTemplate(tmpl string, values map[string]string) (string, error) {
	t, err := fasttemplate.NewTemplate(tmpl, tagStart, tagEnd)
	if err != nil {
		return "", err
	}
	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		literal, name, ok := splitTag(tag)
		if !ok {
			return io.WriteString(w, tagStart+tag+tagEnd)
		}
		v, found := values[name]
		if !found {
			return 0, fmt.Errorf("unresolved placeholder {%s}", name)
		}
		return io.WriteString(w, literal+v)
	})
}

// checkTemplates reports the placeholders of t that neither an input nor one
// of its upstream ids can satisfy.
func checkTemplates(t core.Task, inputs map[string]string) ([]string, error) {
	allowed := make(map[string]struct{}, len(inputs)+len(t.Context))
	for k := range inputs {
		allowed[k] = struct{}{}
	}
	for _, up := range t.Context {
		allowed[up] = struct{}{}
	}
	var missing []string
	for _, tmpl := range []string{t.Description, t.ExpectedOutput} {
		names, err := Placeholders(tmpl)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if _, ok := allowed[name]; !ok {
				missing = append(missing, name)
			}
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// renderPrompt builds the prompt dispatched for t. Upstream results win over
// inputs of the same name. Upstream results the description does not
// reference are appended so the agent always sees every declared upstream.
func renderPrompt(t core.Task, inputs map[string]string, upstream map[string]*core.Output) (string, error) {
	values := make(map[string]string, len(inputs)+len(upstream))
	for k, v := range inputs {
		values[k] = v
	}
	for id, out := range upstream {
		values[id] = out.String()
	}

	prompt, err := renderTemplate(t.Description, values)
	if err != nil {
		return "", err
	}
	referenced, err := Placeholders(t.Description)
	if err != nil {
		return "", err
	}
	used := make(map[string]struct{}, len(referenced))
	for _, name := range referenced {
		used[name] = struct{}{}
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	wroteHeader := false
	for _, id := range t.Context {
		if _, ok := used[id]; ok {
			continue
		}
		out, ok := upstream[id]
		if !ok {
			continue
		}
		if !wroteHeader {
			b.WriteString("\n\nContext from previous tasks:")
			wroteHeader = true
		}
		fmt.Fprintf(&b, "\n\n[%s]\n%s", id, out.String())
	}

	if strings.TrimSpace(t.ExpectedOutput) != "" {
		expected, err := renderTemplate(t.ExpectedOutput, values)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n\nExpected output: %s", strings.TrimSpace(expected))
	}
	return b.String(), nil
}
