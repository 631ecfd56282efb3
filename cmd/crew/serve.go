// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/jllopis/crew/pkg/mcp"
)

// runMCPServe publishes scrape_website as an MCP tool on stdin/stdout so other
// agents can reuse it.
func runMCPServe(global globalFlags, args []string, stderr io.Writer) error {
	cmd := flag.NewFlagSet("mcp-serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	name := cmd.String("name", "crew", "Server name announced to clients")
	if err := cmd.Parse(args); err != nil {
		return usageError(err.Error())
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)
	scraper, err := newFetchCapability(cfg.Fetch, logger)
	if err != nil {
		return NewConfigError(err, configPath(global.ConfigArgs))
	}

	srv := mcp.NewServer(*name, version)
	srv.AddCapability(scraper)
	logger.Info("mcp.serve.start", "server", *name, "tools", 1)
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
