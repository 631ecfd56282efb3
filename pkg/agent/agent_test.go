// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jllopis/crew/pkg/capability"
	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/llm"
	"github.com/jllopis/crew/pkg/resilience"
	"github.com/jllopis/crew/pkg/schema"
	"github.com/jllopis/crew/pkg/telemetry"
)

const validArticle = `{"title":"Web scraping","paragraphs":["para one","para two"]}`

func newTestAgent(t *testing.T, provider llm.Provider, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{
		WithRole("Web Scraper"),
		WithGoal("Extract the article"),
		WithBackstory("You read web pages for a living."),
		WithLogger(telemetry.DiscardLogger()),
	}, opts...)
	a, err := New("scraper", provider, opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return a
}

func lastMessage(req llm.ChatRequest) llm.Message {
	return req.Messages[len(req.Messages)-1]
}

func TestNewValidation(t *testing.T) {
	provider := llm.NewTextMockProvider()
	dup := capability.NewFunc("scrape_website", "", nil)
	tests := []struct {
		name     string
		id       string
		provider llm.Provider
		opts     []Option
	}{
		{"empty id", " ", provider, nil},
		{"nil provider", "a", nil, nil},
		{"duplicate capability", "a", provider, []Option{WithCapabilities(dup, dup)}},
		{"nil capability", "a", provider, []Option{WithCapabilities(nil)}},
		{"zero steps", "a", provider, []Option{WithMaxSteps(0)}},
		{"negative retries", "a", provider, []Option{WithMaxSchemaRetries(-1)}},
		{"negative temperature", "a", provider, []Option{WithTemperature(-0.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.id, tt.provider, tt.opts...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	a, err := New("a", provider)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if a.MaxSteps() != DefaultMaxSteps || a.MaxSchemaRetries() != DefaultMaxSchemaRetries {
		t.Fatalf("unexpected defaults %d/%d", a.MaxSteps(), a.MaxSchemaRetries())
	}
}

func TestExecuteFreeText(t *testing.T) {
	provider := llm.NewTextMockProvider("  The article is about scraping.  ")
	a := newTestAgent(t, provider, WithModel("test-model"), WithTemperature(0.2))

	out, err := a.Execute(context.Background(), "Summarize the page", nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.Text != "The article is about scraping." || out.Structured != nil {
		t.Fatalf("unexpected output %+v", out)
	}
	if out.Steps != 1 || out.SchemaRetries != 0 {
		t.Fatalf("unexpected counters %+v", out)
	}

	req, _ := provider.LastRequest()
	if req.Model != "test-model" || req.Temperature == nil || *req.Temperature != 0.2 {
		t.Fatalf("unexpected request settings %+v", req)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(req.Messages))
	}
	sys := req.Messages[0]
	if sys.Role != llm.RoleSystem {
		t.Fatalf("expected system message first")
	}
	for _, want := range []string{"Web Scraper", "Extract the article", "read web pages"} {
		if !strings.Contains(sys.Content, want) {
			t.Fatalf("system message missing %q: %s", want, sys.Content)
		}
	}
	if req.Messages[1].Content != "Summarize the page" {
		t.Fatalf("unexpected user message %q", req.Messages[1].Content)
	}
	if len(req.Tools) != 0 {
		t.Fatalf("expected no tools without capabilities")
	}
}

func TestExecuteTemperaturePresence(t *testing.T) {
	unset := llm.NewTextMockProvider("ok")
	if _, err := newTestAgent(t, unset).Execute(context.Background(), "go", nil); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if req, _ := unset.LastRequest(); req.Temperature != nil {
		t.Fatalf("expected backend default temperature, got %v", *req.Temperature)
	}

	zero := llm.NewTextMockProvider("ok")
	if _, err := newTestAgent(t, zero, WithTemperature(0)).Execute(context.Background(), "go", nil); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if req, _ := zero.LastRequest(); req.Temperature == nil || *req.Temperature != 0 {
		t.Fatalf("expected explicit zero temperature, got %v", req.Temperature)
	}
}

func TestExecuteSchemaExactMatchNoRetry(t *testing.T) {
	provider := llm.NewTextMockProvider(validArticle)
	a := newTestAgent(t, provider)

	out, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.SchemaRetries != 0 || provider.CallCount != 1 {
		t.Fatalf("expected no retry, got retries=%d calls=%d", out.SchemaRetries, provider.CallCount)
	}
	if out.Structured["title"] != "Web scraping" {
		t.Fatalf("unexpected structured output %+v", out.Structured)
	}
	if out.Text != schema.Canonical(out.Structured) {
		t.Fatalf("text must be the canonical form of the structured output")
	}

	req, _ := provider.LastRequest()
	user := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(user, `"paragraphs"`) || !strings.Contains(user, schema.ArticleSchemaName) {
		t.Fatalf("user message must carry the JSON schema: %s", user)
	}
}

func TestExecuteSchemaRetryThenSuccess(t *testing.T) {
	provider := llm.NewTextMockProvider(
		`{"paragraphs":["para one"]}`,
		"```json\n"+validArticle+"\n```",
	)
	var events []core.Event
	a := newTestAgent(t, provider, WithEventEmitter(core.EmitterFunc(func(_ context.Context, ev core.Event) {
		events = append(events, ev)
	})))

	out, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.SchemaRetries != 1 || out.Steps != 2 {
		t.Fatalf("unexpected counters %+v", out)
	}
	req := provider.Requests[1]
	correction := lastMessage(req)
	if correction.Role != llm.RoleUser || !strings.Contains(correction.Content, "title: required field is missing") {
		t.Fatalf("expected corrective feedback naming title, got %q", correction.Content)
	}
	if prev := req.Messages[len(req.Messages)-2]; prev.Role != llm.RoleAssistant {
		t.Fatalf("invalid answer must stay in the transcript")
	}
	if len(events) != 1 || events[0].Type != core.EventSchemaRetry {
		t.Fatalf("expected one schema retry event, got %+v", events)
	}
}

func TestExecuteSchemaRetriesExhausted(t *testing.T) {
	invalid := `{"paragraphs":"not a list"}`
	provider := llm.NewTextMockProvider(invalid, invalid, invalid, invalid)
	a := newTestAgent(t, provider, WithMaxSchemaRetries(2))

	out, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if !errors.HasCode(err, errors.CodeSchemaValidation) {
		t.Fatalf("expected schema validation error, got %v", err)
	}
	if provider.CallCount != 3 || out.SchemaRetries != 2 {
		t.Fatalf("expected 3 attempts and 2 retries, got %d/%d", provider.CallCount, out.SchemaRetries)
	}
	var verr *schema.ValidationError
	if !stderrors.As(err, &verr) {
		t.Fatalf("expected ValidationError in chain")
	}
	fields := strings.Join(verr.Fields(), ",")
	if !strings.Contains(fields, "title") || !strings.Contains(fields, "paragraphs") {
		t.Fatalf("expected title and paragraphs diagnostics, got %s", fields)
	}
}

func TestExecuteNonJSONAnswerIsCorrected(t *testing.T) {
	provider := llm.NewTextMockProvider("Sure, here is the article!", validArticle)
	a := newTestAgent(t, provider)

	out, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.SchemaRetries != 1 {
		t.Fatalf("expected one retry, got %d", out.SchemaRetries)
	}
	if !strings.Contains(lastMessage(provider.Requests[1]).Content, "not a JSON object") {
		t.Fatalf("expected feedback about missing JSON")
	}
}

func TestExecuteUnreachableFedBack(t *testing.T) {
	var gotArg string
	scrape := capability.NewFunc("scrape_website", "Fetch a page", func(_ context.Context, arg string) (string, error) {
		gotArg = arg
		return "", capability.Unreachable("scrape_website", arg, stderrors.New("no such host"))
	})
	provider := llm.NewScriptedMockProvider(
		llm.Call("call-1", "scrape_website", `{"input":"https://unreachable.invalid"}`),
		llm.Text(validArticle),
	)
	var events []core.Event
	a := newTestAgent(t, provider,
		WithCapabilities(scrape),
		WithEventEmitter(core.EmitterFunc(func(_ context.Context, ev core.Event) {
			events = append(events, ev)
		})),
	)

	out, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if err != nil {
		t.Fatalf("capability failure must not fail the agent: %v", err)
	}
	if gotArg != "https://unreachable.invalid" {
		t.Fatalf("unexpected capability argument %q", gotArg)
	}
	if out.ToolCalls != 1 || out.Steps != 2 {
		t.Fatalf("unexpected counters %+v", out)
	}

	msg := lastMessage(provider.Requests[1])
	if msg.Role != llm.RoleTool || msg.ToolCallID != "call-1" {
		t.Fatalf("expected tool message for call-1, got %+v", msg)
	}
	if !strings.Contains(msg.Content, "unreachable") || !strings.Contains(msg.Content, "no such host") {
		t.Fatalf("tool message must describe the failure: %q", msg.Content)
	}
	if len(events) != 1 || events[0].Type != core.EventCapabilityInvoked || events[0].Payload["error_kind"] != "unreachable" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestExecuteToolDefinitions(t *testing.T) {
	scrape := capability.NewFunc("scrape_website", "Fetch a page", func(_ context.Context, arg string) (string, error) {
		return "page text for " + arg, nil
	})
	provider := llm.NewScriptedMockProvider(
		llm.Call("c1", "scrape_website", `"https://example.com"`),
		llm.Text("done"),
	)
	a := newTestAgent(t, provider, WithCapabilities(scrape))

	if _, err := a.Execute(context.Background(), "Go", nil); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	first := provider.Requests[0]
	if len(first.Tools) != 1 || first.Tools[0].Function.Name != "scrape_website" {
		t.Fatalf("unexpected tools %+v", first.Tools)
	}
	params, err := json.Marshal(first.Tools[0].Function.Parameters)
	if err != nil {
		t.Fatalf("marshal parameters: %v", err)
	}
	if !strings.Contains(string(params), `"input"`) || !strings.Contains(string(params), `"required"`) {
		t.Fatalf("unexpected parameters %s", params)
	}
	if got := lastMessage(provider.Requests[1]).Content; got != "page text for https://example.com" {
		t.Fatalf("unexpected tool result %q", got)
	}
}

func TestExecuteUnknownCapability(t *testing.T) {
	provider := llm.NewScriptedMockProvider(
		llm.Call("c1", "search_web", `{"input":"crew"}`),
		llm.Text("answer without tools"),
	)
	a := newTestAgent(t, provider, WithCapabilities(capability.NewFunc("scrape_website", "", nil)))

	out, err := a.Execute(context.Background(), "Go", nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.Text != "answer without tools" {
		t.Fatalf("unexpected output %q", out.Text)
	}
	msg := lastMessage(provider.Requests[1])
	if !strings.Contains(msg.Content, `unknown capability "search_web"`) || !strings.Contains(msg.Content, "scrape_website") {
		t.Fatalf("unexpected feedback %q", msg.Content)
	}
}

func TestExecuteReasoningExhausted(t *testing.T) {
	scrape := capability.NewFunc("scrape_website", "", func(context.Context, string) (string, error) {
		return "", capability.Empty("scrape_website", "")
	})
	provider := llm.NewScriptedMockProvider(
		llm.Call("c1", "scrape_website", `{"input":"a"}`),
		llm.Call("c2", "scrape_website", `{"input":"b"}`),
		llm.Call("c3", "scrape_website", `{"input":"c"}`),
	)
	a := newTestAgent(t, provider, WithCapabilities(scrape), WithMaxSteps(2))

	out, err := a.Execute(context.Background(), "Go", nil)
	if !errors.HasCode(err, errors.CodeReasoningExhausted) {
		t.Fatalf("expected reasoning exhausted, got %v", err)
	}
	if provider.CallCount != 2 || out.Steps != 2 {
		t.Fatalf("expected 2 steps, got calls=%d steps=%d", provider.CallCount, out.Steps)
	}
}

func TestExecuteBackendUnavailable(t *testing.T) {
	provider := llm.NewScriptedMockProvider(
		llm.Fail(stderrors.New("connection refused")),
		llm.Text(validArticle),
	)
	a := newTestAgent(t, provider)

	_, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if !errors.HasCode(err, errors.CodeBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if provider.CallCount != 1 {
		t.Fatalf("backend errors must not be retried, got %d calls", provider.CallCount)
	}
}

func TestExecuteBackendTimeout(t *testing.T) {
	provider := &llm.MockProvider{ChatFunc: func(ctx context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	a := newTestAgent(t, provider, WithStepTimeout(20*time.Millisecond))

	out, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if !errors.HasCode(err, errors.CodeBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if !stderrors.Is(err, resilience.ErrTimeout) {
		t.Fatalf("expected timeout cause, got %v", err)
	}
	if out.Steps != 1 || provider.Calls() != 1 {
		t.Fatalf("a timed out step must not be retried: steps=%d calls=%d", out.Steps, provider.Calls())
	}
}

func TestExecuteCapabilityTimeoutFedBack(t *testing.T) {
	slow := capability.NewFunc("scrape_website", "Fetch a page", func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	provider := llm.NewScriptedMockProvider(
		llm.Call("call-1", "scrape_website", `{"input":"https://slow.example.com"}`),
		llm.Text("The page did not load in time."),
	)
	a := newTestAgent(t, provider, WithCapabilities(slow), WithCapabilityTimeout(20*time.Millisecond))

	out, err := a.Execute(context.Background(), "Summarize", nil)
	if err != nil {
		t.Fatalf("capability timeout must not fail the agent: %v", err)
	}
	if out.Text != "The page did not load in time." || out.Steps != 2 || out.ToolCalls != 1 {
		t.Fatalf("unexpected output %+v", out)
	}
	msg := lastMessage(provider.Requests[1])
	if msg.Role != llm.RoleTool || !strings.HasPrefix(msg.Content, "error (unreachable): operation exceeded timeout") {
		t.Fatalf("expected timeout fed back as unreachable, got %+v", msg)
	}
}

func TestExecuteStepBudgetPerSchemaAttempt(t *testing.T) {
	scrape := capability.NewFunc("scrape_website", "", func(context.Context, string) (string, error) {
		return "page", nil
	})
	provider := llm.NewScriptedMockProvider(
		llm.Call("c1", "scrape_website", `{"input":"a"}`),
		llm.Text(`{"title":"missing paragraphs"}`),
		llm.Call("c2", "scrape_website", `{"input":"a"}`),
		llm.Text(validArticle),
	)
	a := newTestAgent(t, provider, WithCapabilities(scrape), WithMaxSteps(2), WithMaxSchemaRetries(1))

	out, err := a.Execute(context.Background(), "Extract", schema.ArticleSchema)
	if err != nil {
		t.Fatalf("corrective retry gets a fresh step budget: %v", err)
	}
	if out.Steps != 4 || out.SchemaRetries != 1 || provider.CallCount != 4 {
		t.Fatalf("unexpected counters %+v calls=%d", out, provider.CallCount)
	}
}

func TestExecuteCancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var sawCancelled bool
	slow := capability.NewFunc("scrape_website", "", func(callCtx context.Context, _ string) (string, error) {
		cancel()
		mu.Lock()
		sawCancelled = callCtx.Err() != nil
		mu.Unlock()
		return "page", nil
	})
	provider := llm.NewScriptedMockProvider(
		llm.Call("c1", "scrape_website", `{"input":"https://example.com"}`),
		llm.Text("never reached"),
	)
	a := newTestAgent(t, provider, WithCapabilities(slow))

	out, err := a.Execute(ctx, "Go", nil)
	if !errors.HasCode(err, errors.CodeCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if provider.CallCount != 1 || out.ToolCalls != 1 {
		t.Fatalf("current step must finish and no further step may start: calls=%d tools=%d", provider.CallCount, out.ToolCalls)
	}
	mu.Lock()
	defer mu.Unlock()
	if sawCancelled {
		t.Fatalf("in-flight capability must not observe cancellation")
	}
}

func TestCapabilityArgument(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"input":"https://example.com"}`, "https://example.com"},
		{`{"url":"https://example.com"}`, "https://example.com"},
		{`"https://example.com"`, "https://example.com"},
		{`https://example.com`, "https://example.com"},
		{`{"a":"1","b":"2"}`, `{"a":"1","b":"2"}`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := capabilityArgument(tt.raw); got != tt.want {
			t.Errorf("capabilityArgument(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
