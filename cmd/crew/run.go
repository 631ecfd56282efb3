// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jllopis/crew/pkg/config"
	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/crew"
	"github.com/jllopis/crew/pkg/telemetry"
	"github.com/mattn/go-isatty"
)

type runReport struct {
	RunID   string            `json:"run_id"`
	Order   []string          `json:"order"`
	Final   string            `json:"final,omitempty"`
	Outputs map[string]any    `json:"outputs"`
	Tasks   []crew.TaskRecord `json:"tasks"`
	Error   *errorReport      `json:"error,omitempty"`
}

func runRun(ctx context.Context, global globalFlags, args []string, stdout, stderr io.Writer) error {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	crewPath := cmd.String("crew", "", "Crew definition file (YAML or JSON); default is the built-in scenario")
	pageURL := cmd.String("url", "", "Shortcut for -input url=<url>")
	noTelemetry := cmd.Bool("no-telemetry", false, "Disable telemetry output")
	var inputFlags multiFlag
	cmd.Var(&inputFlags, "input", "Run input key=value (repeatable)")
	if err := cmd.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if cmd.NArg() > 0 {
		return usageError(fmt.Sprintf("unexpected args: %v", cmd.Args()))
	}

	inputs, err := parseInputs(inputFlags, *pageURL)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return NewConfigError(err, configPath(global.ConfigArgs))
	}
	logger := newLogger(cfg, stderr)

	exporter := cfg.Telemetry.Exporter
	if *noTelemetry || exporter == "" {
		exporter = telemetry.ExporterNone
	}
	shutdown, err := telemetry.InitWithConfig("crew", version, telemetry.Config{
		Exporter:           exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		Writer:             stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			fmt.Fprintf(stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	def, err := loadDefinition(*crewPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var emitter core.EventEmitter
	interactive := !global.JSON && isTerminal(stderr)
	if interactive {
		emitter = progressEmitter(stderr)
	}
	c, err := a.assemble(def, emitter)
	if err != nil {
		return err
	}
	if interactive {
		fmt.Fprintf(stderr, "Crew: %s\nLLM: %s (%s)\nOrder: %s\n\n",
			c.Name(), cfg.LLM.Provider, cfg.LLM.Model, strings.Join(c.Order(), " -> "))
	}

	res, runErr := c.Run(ctx, inputs)
	if global.JSON {
		report := newRunReport(res)
		if runErr != nil {
			r := buildReport(runErr)
			report.Error = &r
		}
		if err := printJSON(stdout, report); err != nil {
			return err
		}
		if runErr != nil {
			return silentError{runErr}
		}
		return nil
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintln(stdout, res.Final.String())
	return nil
}

// silentError carries an error whose report was already printed.
type silentError struct{ error }

func (e silentError) Unwrap() error { return e.error }

func loadConfig(global globalFlags) (*config.Config, error) {
	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		return nil, NewConfigError(err, configPath(global.ConfigArgs))
	}
	return cfg, nil
}

// configPath extracts the --config value from config args.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return ""
}

// parseInputs turns key=value pairs into run inputs. pageURL, when set, is
// the url input.
func parseInputs(pairs []string, pageURL string) (map[string]string, error) {
	inputs := make(map[string]string, len(pairs)+1)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, usageError(fmt.Sprintf("invalid -input %q, want key=value", pair))
		}
		inputs[key] = value
	}
	if pageURL != "" {
		inputs["url"] = pageURL
	}
	return inputs, nil
}

func newRunReport(res *crew.Result) runReport {
	report := runReport{Outputs: map[string]any{}, Tasks: []crew.TaskRecord{}}
	if res == nil {
		return report
	}
	report.RunID = res.RunID
	report.Order = res.Order
	report.Tasks = append(report.Tasks, res.Records...)
	if res.Final != nil {
		report.Final = res.Final.String()
	}
	for id, out := range res.Outputs {
		if out.Structured != nil {
			report.Outputs[id] = out.Structured
		} else {
			report.Outputs[id] = out.Text
		}
	}
	return report
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progressEmitter prints one line per task transition.
func progressEmitter(w io.Writer) core.EventEmitter {
	return core.EmitterFunc(func(_ context.Context, ev core.Event) {
		switch ev.Type {
		case core.EventTaskStarted:
			fmt.Fprintf(w, "> %s (%s)\n", ev.TaskID, ev.Agent)
		case core.EventTaskSucceeded:
			fmt.Fprintf(w, "  done %s\n", ev.TaskID)
		case core.EventTaskFailed:
			fmt.Fprintf(w, "  failed %s\n", ev.TaskID)
		case core.EventCapabilityInvoked:
			fmt.Fprintf(w, "  capability %v\n", ev.Payload["capability"])
		case core.EventSchemaRetry:
			fmt.Fprintf(w, "  schema retry %v\n", ev.Payload["attempt"])
		}
	})
}
