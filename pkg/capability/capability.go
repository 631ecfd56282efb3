// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability provides the failure taxonomy, adapters and registry for
// external operations agents invoke.
package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/jllopis/crew/pkg/core"
)

// Kind classifies a capability failure surfaced to the agent.
type Kind string

const (
	// KindUnreachable is a network, resolution or timeout failure.
	KindUnreachable Kind = "unreachable"
	// KindUnsupported is a resource or argument the capability cannot process.
	KindUnsupported Kind = "unsupported"
	// KindEmpty is a resource that was fetched but yielded no usable text.
	KindEmpty Kind = "empty"
)

// Error is a classified capability failure.
type Error struct {
	Kind       Kind
	Capability string
	Argument   string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Capability, e.Kind)
	if e.Argument != "" {
		msg += fmt.Sprintf(" (%s)", e.Argument)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Unreachable builds a KindUnreachable error.
func Unreachable(name, argument string, err error) *Error {
	return &Error{Kind: KindUnreachable, Capability: name, Argument: argument, Err: err}
}

// Unsupported builds a KindUnsupported error.
func Unsupported(name, argument string, err error) *Error {
	return &Error{Kind: KindUnsupported, Capability: name, Argument: argument, Err: err}
}

// Empty builds a KindEmpty error.
func Empty(name, argument string) *Error {
	return &Error{Kind: KindEmpty, Capability: name, Argument: argument, Err: errors.New("no usable text")}
}

// KindOf returns the kind of a capability error in the chain.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// InvokeFunc is the body of a function-backed capability.
type InvokeFunc func(ctx context.Context, argument string) (string, error)

// Func adapts a plain function into a core.Capability.
type Func struct {
	name        string
	description string
	fn          InvokeFunc
}

// NewFunc creates a function-backed capability.
func NewFunc(name, description string, fn InvokeFunc) *Func {
	return &Func{name: name, description: description, fn: fn}
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }

// Invoke calls the wrapped function.
func (f *Func) Invoke(ctx context.Context, argument string) (string, error) {
	if f.fn == nil {
		return "", fmt.Errorf("capability %q has no implementation", f.name)
	}
	return f.fn(ctx, argument)
}

var _ core.Capability = (*Func)(nil)
