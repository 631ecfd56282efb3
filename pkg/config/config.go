// Package config loads crew settings from defaults, an optional YAML file,
// CREW_ environment variables and --set overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/crew/pkg/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CREW_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Agent     AgentConfig     `koanf:"agent"`
	Fetch     FetchConfig     `koanf:"fetch"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Audit     AuditConfig     `koanf:"audit"`
	MCP       MCPConfig       `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider       string  `koanf:"provider"` // openai, ollama, mock
	Model          string  `koanf:"model"`
	BaseURL        string  `koanf:"base_url"`
	APIKey         string  `koanf:"api_key"`
	Temperature    float64 `koanf:"temperature"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
}

type AgentConfig struct {
	MaxSteps         int `koanf:"max_steps"`
	MaxSchemaRetries int `koanf:"max_schema_retries"`
}

type FetchConfig struct {
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	MaxChars       int    `koanf:"max_chars"`
	Retries        int    `koanf:"retries"`
	UserAgent      string `koanf:"user_agent"`
	Renderer       string `koanf:"renderer"` // http, browser
	CacheSize      int    `koanf:"cache_size"`
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

type AuditConfig struct {
	// SQLitePath enables the SQLite audit store when set.
	SQLitePath string `koanf:"sqlite_path"`
}

type MCPConfig struct {
	Servers map[string]MCPServerConfig `koanf:"servers"`
}

// MCPServerConfig describes one MCP server whose tools become capabilities.
// Command starts a stdio server; URL connects to a streamable HTTP one.
type MCPServerConfig struct {
	Transport string   `koanf:"transport"` // stdio, http
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url"`
}

// Global k instance
var k = koanf.New(".")

func setDefaults() {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "openai")
	k.Set("llm.model", "gpt-4o")
	k.Set("llm.temperature", 0.7)
	k.Set("llm.timeout_seconds", 120)

	k.Set("agent.max_steps", 8)
	k.Set("agent.max_schema_retries", 3)

	k.Set("fetch.timeout_seconds", 15)
	k.Set("fetch.max_chars", 20000)
	k.Set("fetch.retries", 3)
	k.Set("fetch.user_agent", "crew/0.1 (+https://github.com/jllopis/crew)")
	k.Set("fetch.renderer", "http")
	k.Set("fetch.cache_size", 64)

	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.otlp_endpoint", "localhost:4317")
	k.Set("telemetry.otlp_insecure", true)
	k.Set("telemetry.otlp_timeout_seconds", 10)
}

// Load reads defaults, the optional file at path and the environment.
func Load(path string) (*Config, error) {
	return load([]string{path}, nil)
}

// LoadWithProfile loads path and then config.<profile>.yaml next to it, when
// that file exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load([]string{path, profileConfigPath(path, profile)}, nil)
}

// LoadWithCLI loads configuration from the --config, --profile (or --env)
// and --set arguments in args. Unknown arguments are an error.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load([]string{opts.path, profileConfigPath(opts.path, opts.profile)}, overrides)
}

func load(paths []string, overrides []override) (*Config, error) {
	k = koanf.New(".")
	setDefaults()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("load config %s", path), err).
				WithContext("config_path", path)
		}
	}

	// CREW_LLM_API_KEY -> llm.api_key; only the first underscore separates.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "load environment", err)
	}

	for _, o := range overrides {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("apply --set %s", o.key), err)
		}
	}

	if k.String("llm.api_key") == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			k.Set("llm.api_key", key)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "decode config", err)
	}
	return &cfg, nil
}

// profileConfigPath returns the profile file that sits next to base, or ""
// when there is none.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	if ext == "" {
		ext = ".yaml"
	}
	candidate := filepath.Join(filepath.Dir(base), name+"."+profile+ext)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	path    string
	profile string
}

type override struct {
	key   string
	value any
}

func parseCLIOverrides(args []string) (cliOptions, []override, error) {
	var (
		opts      cliOptions
		overrides []override
	)
	value := func(i int, name string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("missing value for %s", name)
		}
		return args[i+1], nil
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")
		if !strings.HasPrefix(name, "--") {
			return opts, nil, fmt.Errorf("unexpected argument %q", arg)
		}
		v := inline
		if !hasInline {
			var err error
			if v, err = value(i, name); err != nil {
				return opts, nil, err
			}
			i++
		}
		switch name {
		case "--config":
			opts.path = v
		case "--profile", "--env":
			opts.profile = v
		case "--set":
			o, err := parseOverride(v)
			if err != nil {
				return opts, nil, err
			}
			overrides = append(overrides, o)
		default:
			return opts, nil, fmt.Errorf("unknown config flag %q", name)
		}
	}
	return opts, overrides, nil
}

// parseOverride splits key=value. Values that look like JSON objects or
// arrays are decoded so whole sections can be set at once.
func parseOverride(raw string) (override, error) {
	key, val, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return override{}, fmt.Errorf("invalid --set value %q, want key=value", raw)
	}
	val = strings.TrimSpace(val)
	if strings.HasPrefix(val, "{") || strings.HasPrefix(val, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(val), &decoded); err == nil {
			return override{key: key, value: decoded}, nil
		}
	}
	return override{key: key, value: val}, nil
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return configError("llm.api_key", "openai provider requires an API key (OPENAI_API_KEY or CREW_LLM_API_KEY)")
		}
	case "ollama", "mock":
	default:
		return configError("llm.provider", fmt.Sprintf("unsupported provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" && c.LLM.Provider != "mock" {
		return configError("llm.model", "model is required")
	}
	if c.LLM.Temperature < 0 {
		return configError("llm.temperature", "temperature must be >= 0")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return configError("llm.timeout_seconds", "timeout must be >= 0")
	}
	if c.Agent.MaxSteps < 1 {
		return configError("agent.max_steps", "max_steps must be >= 1")
	}
	if c.Agent.MaxSchemaRetries < 0 {
		return configError("agent.max_schema_retries", "max_schema_retries must be >= 0")
	}
	switch c.Fetch.Renderer {
	case "", "http", "browser":
	default:
		return configError("fetch.renderer", fmt.Sprintf("unsupported renderer %q", c.Fetch.Renderer))
	}
	if c.Fetch.Retries < 0 || c.Fetch.MaxChars < 0 || c.Fetch.TimeoutSeconds < 0 {
		return configError("fetch", "fetch limits must be >= 0")
	}
	switch c.Telemetry.Exporter {
	case "", "none", "stdout":
	case "otlp":
		if c.Telemetry.OTLPEndpoint == "" {
			return configError("telemetry.otlp_endpoint", "otlp exporter requires an endpoint")
		}
	default:
		return configError("telemetry.exporter", fmt.Sprintf("unsupported exporter %q", c.Telemetry.Exporter))
	}
	for name, s := range c.MCP.Servers {
		if s.Command == "" && s.URL == "" {
			return configError("mcp.servers."+name, "server needs a command or a url")
		}
	}
	return nil
}

func configError(key, msg string) error {
	return errors.Newf(errors.CodeConfiguration, "invalid config %s: %s", key, msg).WithContext("key", key)
}
