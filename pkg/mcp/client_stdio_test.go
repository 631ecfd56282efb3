package mcp

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jllopis/crew/pkg/capability"
)

const mcpStdioHelperEnv = "CREW_MCP_STDIO_HELPER"

func upperCapability() *capability.Func {
	return capability.NewFunc("upper", "Uppercase the input", func(_ context.Context, arg string) (string, error) {
		return strings.ToUpper(arg), nil
	})
}

func TestHelperMCPStdioServer(t *testing.T) {
	if os.Getenv(mcpStdioHelperEnv) != "1" {
		return
	}
	s := NewServer("test-stdio", "1.0.0")
	s.AddCapability(upperCapability())
	if err := s.ServeStdio(); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestClient_Stdio_ListToolsAndInvoke(t *testing.T) {
	t.Setenv(mcpStdioHelperEnv, "1")

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	ctx := context.Background()
	client, err := NewClientWithStdio(ctx, exe, []string{"-test.run", "TestHelperMCPStdioServer"})
	if err != nil {
		t.Fatalf("NewClientWithStdio error: %v", err)
	}
	defer client.Close()

	caps, err := Capabilities(ctx, client)
	if err != nil {
		t.Fatalf("Capabilities error: %v", err)
	}
	if len(caps) != 1 || caps[0].Name() != "upper" {
		t.Fatalf("expected tool 'upper', got %+v", caps)
	}
	out, err := caps[0].Invoke(ctx, "hello")
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if out != "HELLO" {
		t.Fatalf("expected HELLO, got %q", out)
	}
}
