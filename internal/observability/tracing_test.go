package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("RAO_TRACING_ENABLED", "true")
	t.Setenv("RAO_TRACING_EXPORTER", "OTLP")
	t.Setenv("RAO_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("RAO_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Environment != "" {
		t.Fatalf("Environment = %q, want empty", cfg.Environment)
	}
	if cfg.ServiceName != "rao-orchestrator" {
		t.Fatalf("ServiceName = %q, want default", cfg.ServiceName)
	}
}

func TestTracingConfigIgnoresBadRatio(t *testing.T) {
	t.Setenv("RAO_TRACING_SAMPLE_RATIO", "7")
	if cfg := TracingConfigFromEnv(); cfg.SampleRatio != 1 {
		t.Fatalf("SampleRatio = %v, want 1", cfg.SampleRatio)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer("test").Start(context.Background(), "noop")
	span.End()
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestResourceAttributesTagEnvironment(t *testing.T) {
	attrs := attributeMap(resourceAttributes(TracingConfig{Environment: "intraday"}))
	if got := attrs["service.name"]; got != "rao-orchestrator" {
		t.Fatalf("service.name = %q, want default", got)
	}
	if got := attrs["service.namespace"]; got != "rao" {
		t.Fatalf("service.namespace = %q", got)
	}
	if got := attrs["deployment.environment"]; got != "intraday" {
		t.Fatalf("deployment.environment = %q", got)
	}

	attrs = attributeMap(resourceAttributes(TracingConfig{ServiceName: "rao-day-ahead"}))
	if _, ok := attrs["deployment.environment"]; ok {
		t.Fatalf("environment must be omitted when unset")
	}
	if got := attrs["service.name"]; got != "rao-day-ahead" {
		t.Fatalf("service.name = %q", got)
	}
}

func TestRunAndStageAttributes(t *testing.T) {
	run := attributeMap(RunAttributes("run-1", 3))
	if run[string(RunIDKey)] != "run-1" || run[string(ScenariosKey)] != "3" {
		t.Fatalf("run attributes = %v", run)
	}

	stage := attributeMap(StageAttributes("curative", "co1 - curative"))
	if stage[string(StageKey)] != "curative" || stage[string(StateKey)] != "co1 - curative" {
		t.Fatalf("stage attributes = %v", stage)
	}
	if _, ok := attributeMap(StageAttributes("initial-sensitivity", ""))[string(StateKey)]; ok {
		t.Fatalf("stateless stage must not carry a state attribute")
	}
}

func attributeMap(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
