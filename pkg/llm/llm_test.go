package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestScriptedMockProvider(t *testing.T) {
	backendDown := errors.New("backend down")
	mock := NewScriptedMockProvider(
		Call("c1", "scrape_website", `{"input":"https://example.com"}`),
		Text("done"),
		Fail(backendDown),
	)
	ctx := context.Background()

	resp, err := mock.Chat(ctx, ChatRequest{Messages: []Message{UserMessage("go")}})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "scrape_website" {
		t.Fatalf("expected tool call, got %+v", resp)
	}
	resp, err = mock.Chat(ctx, ChatRequest{})
	if err != nil || resp.Content != "done" {
		t.Fatalf("second turn: %+v, %v", resp, err)
	}
	if _, err := mock.Chat(ctx, ChatRequest{}); !errors.Is(err, backendDown) {
		t.Fatalf("expected scripted failure, got %v", err)
	}
	if _, err := mock.Chat(ctx, ChatRequest{}); !errors.Is(err, ErrScriptExhausted) {
		t.Fatalf("expected exhausted script, got %v", err)
	}
	if mock.CallCount != 4 || len(mock.Requests) != 4 {
		t.Fatalf("expected 4 recorded calls, got %d", mock.CallCount)
	}
	if got := mock.Requests[0].Messages[0].Content; got != "go" {
		t.Fatalf("unexpected recorded message %q", got)
	}
}

func TestOllamaChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"scrape_website","arguments":{"input":"https://example.com"}}}]},"done":true,"eval_count":5,"prompt_eval_count":7}`)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL+"/", WithOllamaModel("llama3.1"))
	zero := 0.0
	resp, err := p.Chat(context.Background(), ChatRequest{
		Temperature: &zero,
		Messages: []Message{
			SystemMessage("sys"),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Type: ToolTypeFunction, Function: FunctionCall{Name: "x", Arguments: `{"input":"1"}`}}}},
			ToolMessage("a", "result"),
		},
		Tools: []Tool{NewFunctionTool("scrape_website", "Fetch a page", map[string]any{"type": "object"})},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got.Model != "llama3.1" || got.Stream {
		t.Fatalf("unexpected request %+v", got)
	}
	if temp, ok := got.Options["temperature"]; !ok || temp != 0.0 {
		t.Fatalf("explicit zero temperature must be sent, got options %v", got.Options)
	}
	if string(got.Messages[1].ToolCalls[0].Function.Arguments) != `{"input":"1"}` {
		t.Fatalf("assistant arguments must be sent as an object, got %s", got.Messages[1].ToolCalls[0].Function.Arguments)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Arguments != `{"input":"https://example.com"}` {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].ID == "" {
		t.Fatalf("expected synthesized call id")
	}
	if resp.Usage.TotalTokens != 12 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "missing"})
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestArgumentsString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, `{}`},
		{`{"input":"a"}`, `{"input":"a"}`},
		{`"{\"input\":\"a\"}"`, `{"input":"a"}`},
	}
	for _, tt := range tests {
		if got := argumentsString(json.RawMessage(tt.raw)); got != tt.want {
			t.Fatalf("argumentsString(%s) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestOpenAIChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "scrape_website", "arguments": "{\"input\":\"https://example.com\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", WithOpenAIBaseURL(srv.URL+"/"))
	zero := 0.0
	resp, err := p.Chat(context.Background(), ChatRequest{
		Temperature: &zero,
		Messages:    []Message{SystemMessage("sys"), UserMessage("scrape it")},
		Tools:       []Tool{NewFunctionTool("scrape_website", "Fetch a page", map[string]any{"type": "object"})},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if body["model"] != DefaultOpenAIModel {
		t.Fatalf("expected default model, got %v", body["model"])
	}
	if temp, ok := body["temperature"]; !ok || temp != 0.0 {
		t.Fatalf("explicit zero temperature must be sent, got %v", body["temperature"])
	}
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Fatalf("expected one tool in request, got %v", body["tools"])
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_1" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}

func TestConvertToolRejectsUnencodableParameters(t *testing.T) {
	_, err := convertTool(NewFunctionTool("bad", "", map[string]any{"x": make(chan int)}))
	if err == nil {
		t.Fatalf("expected encoding error")
	}
}

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}

	failing := &MockProvider{Err: ErrScriptExhausted}
	if _, err := failing.Chat(context.Background(), ChatRequest{}); err != ErrScriptExhausted {
		t.Fatalf("expected configured error, got %v", err)
	}
	if mock.Calls() != 1 || failing.Calls() != 1 {
		t.Fatalf("unexpected call counts %d, %d", mock.Calls(), failing.Calls())
	}
}
