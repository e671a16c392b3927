package telemetry

import (
	"context"
	"testing"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := p.Tracer("test").Start(context.Background(), "op")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing should produce non-recording spans")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	bad := 1.5
	if err := (Config{SampleRatio: &bad}).Validate(); err == nil {
		t.Error("expected error for sample_ratio > 1")
	}
	ok := 0.25
	if err := (Config{SampleRatio: &ok}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSetup_InvalidConfig(t *testing.T) {
	t.Parallel()

	bad := -1.0
	if _, err := Setup(context.Background(), Config{Enabled: true, SampleRatio: &bad}, "test"); err == nil {
		t.Error("expected error")
	}
}
