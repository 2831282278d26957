package tracing

import (
	"context"
	"testing"
)

func TestInitInstallsProviderAndShutsDown(t *testing.T) {
	if IsInitialized() {
		t.Fatal("expected tracing not initialized before Init")
	}

	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "conveyor-test",
		ServiceVersion: "0.0.0-test",
		Environment:    "test",
		Exporter:       "stdout",
		SampleRate:     1.0,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !IsInitialized() {
		t.Fatal("expected IsInitialized to report true after Init")
	}

	tr := Tracer("conveyor-test")
	_, span := tr.Start(context.Background(), "unit-test-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if IsInitialized() {
		t.Fatal("expected IsInitialized to report false after shutdown")
	}
}
