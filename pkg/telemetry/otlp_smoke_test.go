package telemetry

import (
	"context"
	"os"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

// TestOTLPSmoke sends one Crew.Run span and the crew metrics to a live
// collector. It only runs when CREW_OTLP_SMOKE_TEST=1.
func TestOTLPSmoke(t *testing.T) {
	if os.Getenv("CREW_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set CREW_OTLP_SMOKE_TEST=1 to run")
	}
	endpoint := os.Getenv("CREW_TELEMETRY_OTLP_ENDPOINT")
	if endpoint == "" {
		t.Skip("set CREW_TELEMETRY_OTLP_ENDPOINT for OTLP smoke test")
	}

	shutdown, err := InitWithConfig("crew-smoke-test", "v0.1.0", Config{
		Exporter:           ExporterOTLP,
		OTLPEndpoint:       endpoint,
		OTLPInsecure:       os.Getenv("CREW_TELEMETRY_OTLP_INSECURE") == "true",
		OTLPTimeoutSeconds: 5,
	})
	if err != nil {
		t.Fatalf("failed to init telemetry: %v", err)
	}

	ctx, span := otel.Tracer("crew").Start(context.Background(), "Crew.Run")
	span.SetAttributes(RunAttributes("run-smoke", []string{"scrape", "write"})...)
	metrics, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	metrics.RecordTask(ctx, "scrape", "succeeded")
	metrics.RecordCapability(ctx, "scrape_website", 120*time.Millisecond, "")
	span.End()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(flushCtx); err != nil {
		t.Fatalf("telemetry shutdown failed: %v", err)
	}
}
