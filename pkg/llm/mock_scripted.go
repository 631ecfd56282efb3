package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a scripted provider runs out of turns.
var ErrScriptExhausted = errors.New("scripted mock: no more responses available")

// Turn is one scripted backend reply.
type Turn struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// Text returns a turn answering with content.
func Text(content string) Turn { return Turn{Content: content} }

// Call returns a turn requesting a single tool call. Arguments must be JSON.
func Call(id, name, arguments string) Turn {
	return Turn{ToolCalls: []ToolCall{{
		ID:       id,
		Type:     ToolTypeFunction,
		Function: FunctionCall{Name: name, Arguments: arguments},
	}}}
}

// Fail returns a turn that fails with err.
func Fail(err error) Turn { return Turn{Err: err} }

// ScriptedMockProvider returns a pre-defined sequence of turns and records
// every request it receives.
type ScriptedMockProvider struct {
	mu       sync.Mutex
	turns    []Turn
	Requests []ChatRequest
	// CallCount tracks how many times Chat has been called
	CallCount int
}

// NewScriptedMockProvider creates a provider replaying turns in order.
func NewScriptedMockProvider(turns ...Turn) *ScriptedMockProvider {
	return &ScriptedMockProvider{turns: turns}
}

// NewTextMockProvider replays plain text answers.
func NewTextMockProvider(responses ...string) *ScriptedMockProvider {
	turns := make([]Turn, 0, len(responses))
	for _, r := range responses {
		turns = append(turns, Text(r))
	}
	return NewScriptedMockProvider(turns...)
}

// Chat pops the next scripted turn.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	req.Messages = append([]Message(nil), req.Messages...)
	s.Requests = append(s.Requests, req)

	if len(s.turns) == 0 {
		return nil, ErrScriptExhausted
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	if turn.Err != nil {
		return nil, turn.Err
	}
	return &ChatResponse{
		Content:   turn.Content,
		ToolCalls: turn.ToolCalls,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// AddTurn appends a turn to the script.
func (s *ScriptedMockProvider) AddTurn(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// Remaining reports how many turns have not been consumed.
func (s *ScriptedMockProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// LastRequest returns the most recent request, if any.
func (s *ScriptedMockProvider) LastRequest() (ChatRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return ChatRequest{}, false
	}
	return s.Requests[len(s.Requests)-1], true
}
