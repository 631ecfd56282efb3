// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Command crew runs a crew of agents over a task graph.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const version = "v0.1.0"

type globalFlags struct {
	ConfigArgs []string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a command and returns the process exit code.
func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	global, args, err := parseGlobalFlags(argv)
	if err != nil {
		return reportError(stderr, err, false)
	}
	if global.Help || len(args) == 0 {
		printUsage(stdout)
		return exitOK
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		err = runRun(ctx, global, rest, stdout, stderr)
	case "validate":
		err = runValidate(global, rest, stdout)
	case "graph":
		err = runGraph(global, rest, stdout)
	case "mcp-serve":
		err = runMCPServe(global, rest, stderr)
	case "help":
		printUsage(stdout)
	case "version":
		fmt.Fprintln(stdout, version)
	default:
		err = usageError(fmt.Sprintf("unknown command %q", cmd))
	}
	var silent silentError
	switch {
	case err == nil:
		return exitOK
	case stderrors.As(err, &silent):
		return exitCode(err)
	default:
		return reportError(stderr, err, global.JSON)
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile":
			if i+1 >= len(args) {
				return flags, nil, usageError(fmt.Sprintf("missing value for %s", arg))
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--set="), strings.HasPrefix(arg, "--profile="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		default:
			return flags, nil, usageError(fmt.Sprintf("unknown global flag %q", arg))
		}
	}
	return flags, nil, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `crew runs agents over a task graph.

Usage:
  crew [global flags] <command> [args]

Global flags:
  --config <path>      Path to a YAML config file
  --profile <name>     Also load config.<name>.yaml next to --config
  --set key=value      Override config (repeatable)
  --json               JSON output

Commands:
  run        Run a crew (default: the built-in scraper and writer scenario)
  validate   Load and build a crew, print the execution order
  graph      Print the task graph (mermaid, dot)
  mcp-serve  Serve the scrape_website capability over MCP stdio
  version    Print the version
  help       Show this help

Run flags:
  -crew <file>         Crew definition (YAML or JSON)
  -input key=value     Run input (repeatable)
  -url <url>           Shortcut for -input url=<url>
  -no-telemetry        Disable telemetry exporters
`)
}

func printJSON(w io.Writer, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
