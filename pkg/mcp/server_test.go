package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jllopis/crew/pkg/capability"
)

func callServer(t *testing.T, s *Server, request string) string {
	t.Helper()
	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(request))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(data)
}

func TestServerPublishesCapabilities(t *testing.T) {
	echo := capability.NewFunc("echo", "Echo the input", func(_ context.Context, arg string) (string, error) {
		if arg == "down" {
			return "", capability.Unreachable("echo", arg, context.DeadlineExceeded)
		}
		return "echo: " + arg, nil
	})
	s := NewServer("crew-test", "v0.0.0")
	s.AddCapability(echo)

	list := callServer(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if !strings.Contains(list, `"echo"`) || !strings.Contains(list, `"input"`) {
		t.Fatalf("tools/list missing echo tool: %s", list)
	}

	ok := callServer(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"input":"hi"}}}`)
	if !strings.Contains(ok, "echo: hi") {
		t.Fatalf("unexpected call result: %s", ok)
	}

	failed := callServer(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"input":"down"}}}`)
	if !strings.Contains(failed, `"isError":true`) {
		t.Fatalf("capability failure must be a tool error result: %s", failed)
	}
}
