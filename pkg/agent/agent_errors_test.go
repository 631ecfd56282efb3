// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/schema"
)

func TestWrapBackendError(t *testing.T) {
	if WrapBackendError(nil, "a", "m", 1) != nil {
		t.Fatalf("nil error must stay nil")
	}
	cause := stderrors.New("dial tcp: connection refused")
	ce := WrapBackendError(cause, "scraper", "gpt-4o-mini", 3)
	if ce.Code != errors.CodeBackendUnavailable {
		t.Errorf("Code = %v, want %v", ce.Code, errors.CodeBackendUnavailable)
	}
	if ce.Context["model"] != "gpt-4o-mini" || ce.Context["step"] != 3 {
		t.Errorf("unexpected context %v", ce.Context)
	}
	if ce.Recoverable {
		t.Errorf("backend errors are not recoverable by the agent")
	}
	if !stderrors.Is(ce, cause) {
		t.Errorf("cause must be unwrappable")
	}
}

func TestNewReasoningExhaustedError(t *testing.T) {
	ce := NewReasoningExhaustedError("scraper", 8)
	if ce.Code != errors.CodeReasoningExhausted {
		t.Errorf("Code = %v", ce.Code)
	}
	if ce.Context["max_steps"] != 8 {
		t.Errorf("unexpected context %v", ce.Context)
	}
}

func TestWrapSchemaError(t *testing.T) {
	if WrapSchemaError(nil, "a", 0) != nil {
		t.Fatalf("nil validation error must stay nil")
	}
	verr := &schema.ValidationError{Schema: "ScrapedArticle", Errors: []schema.FieldError{
		{Field: "title", Problem: "required field is missing"},
	}}
	ce := WrapSchemaError(verr, "scraper", 3)
	if ce.Code != errors.CodeSchemaValidation {
		t.Errorf("Code = %v", ce.Code)
	}
	var got *schema.ValidationError
	if !stderrors.As(ce, &got) || got.Fields()[0] != "title" {
		t.Errorf("validation error must be in the chain")
	}
}

func TestWrapCancelled(t *testing.T) {
	if WrapCancelled(nil, "a", 0) != nil {
		t.Fatalf("nil error must stay nil")
	}
	ce := WrapCancelled(context.Canceled, "scraper", 2)
	if ce.Code != errors.CodeCancelled || !stderrors.Is(ce, context.Canceled) {
		t.Errorf("unexpected cancelled error %v", ce)
	}
}
