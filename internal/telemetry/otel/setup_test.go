package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "bizlens-test"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatalf("NewProviders(%q) returned nil providers: %+v", endpoint, providers)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("no-op shutdown: %v", err)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("second no-op shutdown: %v", err)
		}
	}
}

func TestNewProviders_RequiresServiceName(t *testing.T) {
	if _, err := NewProviders(context.Background(), Options{}); err == nil {
		t.Error("NewProviders without service name should fail")
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
	}{
		{"invalid characters", "://invalid"},
		{"malformed URL", "http://[invalid"},
		{"missing host", "http://"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewProviders(context.Background(), Options{Endpoint: tc.endpoint, ServiceName: "bizlens-test"}); err == nil {
				t.Errorf("NewProviders(%q): want error", tc.endpoint)
			}
		})
	}
}

func TestNewProviders_ValidEndpoints(t *testing.T) {
	// OTLP gRPC exporters dial lazily, so construction succeeds without a collector.
	for _, endpoint := range []string{"localhost:4317", "http://localhost:4317/v1/traces", "https://collector:4317"} {
		providers, err := NewProviders(context.Background(), Options{Endpoint: endpoint, ServiceName: "bizlens-test", Insecure: true})
		if err != nil {
			t.Errorf("NewProviders(%q): %v", endpoint, err)
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = providers.Shutdown(ctx)
	}
}

func TestSetGlobal(t *testing.T) {
	oldTP := otel.GetTracerProvider()
	oldMP := otel.GetMeterProvider()
	oldProp := otel.GetTextMapPropagator()
	defer func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
		otel.SetTextMapPropagator(oldProp)
	}()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	p := &Providers{TracerProvider: tp, Shutdown: func(context.Context) error { return nil }}
	p.SetGlobal()

	if otel.GetTracerProvider() != tp {
		t.Error("TracerProvider should be set globally")
	}
	if otel.GetMeterProvider() != oldMP {
		t.Error("nil MeterProvider should leave the global unchanged")
	}
	fields := otel.GetTextMapPropagator().Fields()
	found := false
	for _, f := range fields {
		if f == "traceparent" {
			found = true
		}
	}
	if !found {
		t.Errorf("propagator fields = %v, want traceparent", fields)
	}
}

func TestDialTarget(t *testing.T) {
	testCases := []struct {
		endpoint  string
		target    string
		plaintext bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317/v1/traces", "collector:4317", true},
		{"https://collector:4317", "collector:4317", false},
	}
	for _, tc := range testCases {
		target, plaintext, err := dialTarget(tc.endpoint)
		if err != nil {
			t.Fatalf("dialTarget(%q): %v", tc.endpoint, err)
		}
		if target != tc.target || plaintext != tc.plaintext {
			t.Errorf("dialTarget(%q) = %q, %t; want %q, %t", tc.endpoint, target, plaintext, tc.target, tc.plaintext)
		}
	}
}

func TestResourceAttrs(t *testing.T) {
	if got := resourceAttrs(Options{ServiceName: "bizlens-api"}); len(got) != 1 {
		t.Errorf("name only: got %d attributes, want 1", len(got))
	}
	got := resourceAttrs(Options{ServiceName: "bizlens-api", Version: "1.0.0", Environment: "staging"})
	if len(got) != 3 || got[2].Value.AsString() != "staging" {
		t.Errorf("attributes = %v", got)
	}
}
