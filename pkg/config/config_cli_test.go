package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/v2"
)

func resetKoanf(t *testing.T) {
	t.Helper()
	k = koanf.New(".")
}

func TestLoadWithCLIOverrides(t *testing.T) {
	resetKoanf(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	content := []byte(`{
  "llm": {"provider": "ollama", "model": "model-a"},
  "telemetry": {"exporter": "stdout"}
}`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CREW_LLM_PROVIDER", "openai")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--set", "llm.provider=mock",
		"--set", "agent.max_schema_retries=1",
		"--set", "fetch.retries=5",
		"--set=telemetry.otlp_insecure=false",
		`--set`, `mcp.servers={"search":{"transport":"http","url":"http://localhost:8080/mcp"}}`,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Fatalf("expected cli override provider, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "model-a" {
		t.Fatalf("expected model from file, got %s", cfg.LLM.Model)
	}
	if cfg.Agent.MaxSchemaRetries != 1 || cfg.Fetch.Retries != 5 {
		t.Fatalf("expected numeric overrides, got %+v %+v", cfg.Agent, cfg.Fetch)
	}
	if cfg.Telemetry.Exporter != "stdout" || cfg.Telemetry.OTLPInsecure {
		t.Fatalf("unexpected telemetry config %+v", cfg.Telemetry)
	}
	server, ok := cfg.MCP.Servers["search"]
	if !ok {
		t.Fatalf("expected search MCP server override")
	}
	if server.URL != "http://localhost:8080/mcp" {
		t.Fatalf("unexpected MCP server url: %s", server.URL)
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	resetKoanf(t)
	if _, _, err := parseCLIOverrides([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set"}); err == nil {
		t.Fatalf("expected error for missing --set value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set", "invalid"}); err == nil {
		t.Fatalf("expected error for invalid --set value")
	}
	if _, _, err := parseCLIOverrides([]string{"--verbose", "x"}); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
	if _, _, err := parseCLIOverrides([]string{"positional"}); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}

func TestParseOverrideJSONValues(t *testing.T) {
	o, err := parseOverride(`mcp.servers.fs.args=["--root","/tmp"]`)
	if err != nil {
		t.Fatalf("parseOverride: %v", err)
	}
	args, ok := o.value.([]any)
	if o.key != "mcp.servers.fs.args" || !ok || len(args) != 2 {
		t.Fatalf("unexpected override %+v", o)
	}
	o, _ = parseOverride("fetch.user_agent={not json")
	if o.value != "{not json" {
		t.Fatalf("invalid JSON must stay a string, got %#v", o.value)
	}
}
