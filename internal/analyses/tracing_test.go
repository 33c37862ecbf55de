package analyses

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestAnalyzeOpensStageSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	p := newPipeline(t, "professional")
	if _, err := p.svc.Analyze(context.Background(), janeRequest()); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	seen := map[string]bool{}
	for _, s := range exp.GetSpans() {
		seen[s.Name] = true
	}
	for _, want := range []string{
		"analyses.Service.Analyze",
		"pipeline.cache",
		"pipeline.quota",
		"pipeline.fanout",
		"pipeline.primary",
		"pipeline.fusion",
		"pipeline.record",
	} {
		if !seen[want] {
			t.Fatalf("missing span %s, got %v", want, seen)
		}
	}
}
