// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jllopis/crew/pkg/agent"
	"github.com/jllopis/crew/pkg/capability"
	"github.com/jllopis/crew/pkg/capability/fetch"
	"github.com/jllopis/crew/pkg/config"
	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/crew"
	"github.com/jllopis/crew/pkg/errors"
	"github.com/jllopis/crew/pkg/llm"
	"github.com/jllopis/crew/pkg/mcp"
	"github.com/jllopis/crew/pkg/telemetry"
)

// app holds the process-wide dependencies a command assembles crews from.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	provider llm.Provider
	caps     *capability.Registry
	audit    crew.AuditStore

	closers []func() error
}

// newApp wires provider, capabilities and audit store from cfg. Callers must
// Close the app.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.metrics = metrics

	if a.provider, err = newProvider(cfg); err != nil {
		return nil, err
	}
	if a.caps, err = a.newCapabilities(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if path := strings.TrimSpace(cfg.Audit.SQLitePath); path != "" {
		store, closeFn, err := crew.OpenSQLiteAuditStore(path)
		if err != nil {
			a.Close()
			return nil, errors.New(errors.CodeConfiguration, "open audit store", err).WithContext("path", path)
		}
		a.audit = store
		a.closers = append(a.closers, closeFn)
	}
	return a, nil
}

// Close releases MCP clients and the audit database.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("app.close.error", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		if cfg.LLM.APIKey == "" {
			return nil, errors.Newf(errors.CodeConfiguration, "openai provider requires OPENAI_API_KEY")
		}
		return llm.NewOpenAI(cfg.LLM.APIKey,
			llm.WithOpenAIModel(cfg.LLM.Model),
			llm.WithOpenAIBaseURL(cfg.LLM.BaseURL),
		), nil
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL, llm.WithOllamaModel(cfg.LLM.Model)), nil
	case "mock":
		return demoProvider(), nil
	default:
		return nil, errors.Newf(errors.CodeConfiguration, "unknown LLM provider: %s", cfg.LLM.Provider)
	}
}

// newCapabilities registers scrape_website and every tool of the configured
// MCP servers.
func (a *app) newCapabilities(ctx context.Context) (*capability.Registry, error) {
	scraper, err := newFetchCapability(a.cfg.Fetch, a.logger)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "configure scrape_website", err)
	}
	registry, err := capability.NewRegistry(scraper)
	if err != nil {
		return nil, err
	}

	for name, server := range a.cfg.MCP.Servers {
		client, err := connectMCP(ctx, server, a.logger.With(slog.String("mcp_server", name)))
		if err != nil {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("connect mcp server %q", name), err).
				WithContext("server", name)
		}
		a.closers = append(a.closers, client.Close)
		caps, err := mcp.Capabilities(ctx, client)
		if err != nil {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("list tools of mcp server %q", name), err).
				WithContext("server", name)
		}
		for _, c := range caps {
			if err := registry.Register(c); err != nil {
				return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("mcp server %q", name), err).
					WithContext("server", name)
			}
		}
		a.logger.Info("mcp.server.connected", slog.String("server", name), slog.Int("tools", len(caps)))
	}
	return registry, nil
}

func newFetchCapability(cfg config.FetchConfig, logger *slog.Logger) (*fetch.Capability, error) {
	opts := []fetch.Option{
		fetch.WithLogger(logger),
		fetch.WithMaxChars(cfg.MaxChars),
		fetch.WithAttempts(cfg.Retries + 1),
		fetch.WithCache(cfg.CacheSize),
		fetch.WithUserAgent(cfg.UserAgent),
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, fetch.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if cfg.Renderer == "browser" {
		opts = append(opts, fetch.WithBrowser())
	}
	return fetch.New(opts...)
}

func connectMCP(ctx context.Context, server config.MCPServerConfig, logger *slog.Logger) (*mcp.Client, error) {
	transport := strings.ToLower(server.Transport)
	if transport == "" {
		transport = "stdio"
		if server.URL != "" {
			transport = "http"
		}
	}
	switch transport {
	case "stdio":
		return mcp.NewClientWithStdio(ctx, server.Command, server.Args, mcp.WithLogger(logger))
	case "http":
		return mcp.NewClientWithStreamableHTTP(ctx, server.URL, mcp.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unsupported mcp transport %q", server.Transport)
	}
}

// assemble builds the crew described by def on the app's dependencies.
// A non-nil emitter receives crew and agent progress events.
func (a *app) assemble(def *crew.Definition, emitter core.EventEmitter) (*crew.Crew, error) {
	defaults := crew.Defaults{
		Model:            a.cfg.LLM.Model,
		MaxSteps:         a.cfg.Agent.MaxSteps,
		MaxSchemaRetries: a.cfg.Agent.MaxSchemaRetries,
		Temperature:      &a.cfg.LLM.Temperature,
		AgentOptions: []agent.Option{
			agent.WithLogger(a.logger),
			agent.WithMetrics(a.metrics),
		},
	}
	if a.cfg.Agent.MaxSchemaRetries == 0 {
		defaults.AgentOptions = append(defaults.AgentOptions, agent.WithMaxSchemaRetries(0))
	}
	if a.cfg.LLM.TimeoutSeconds > 0 {
		defaults.AgentOptions = append(defaults.AgentOptions,
			agent.WithStepTimeout(time.Duration(a.cfg.LLM.TimeoutSeconds)*time.Second))
	}
	if a.cfg.Fetch.TimeoutSeconds > 0 {
		// One bound for the whole capability call, retries included.
		total := time.Duration(a.cfg.Fetch.TimeoutSeconds*(a.cfg.Fetch.Retries+1)) * time.Second
		defaults.AgentOptions = append(defaults.AgentOptions, agent.WithCapabilityTimeout(total+5*time.Second))
	}

	opts := []crew.Option{crew.WithLogger(a.logger), crew.WithMetrics(a.metrics)}
	if emitter != nil {
		defaults.AgentOptions = append(defaults.AgentOptions, agent.WithEventEmitter(emitter))
		opts = append(opts, crew.WithEventEmitter(emitter))
	}
	if a.audit != nil {
		opts = append(opts, crew.WithAuditStore(a.audit))
	}
	return def.Assemble(a.provider, a.caps, nil, defaults, opts...)
}

// newLogger writes logs to w so stdout carries only command output.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return telemetry.ConfigureSlog(w, cfg.Log.Level, cfg.Log.Format)
}
