package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestRuntimeMetricsRecordOnNoopProvider(t *testing.T) {
	metrics, err := NewRuntimeMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewRuntimeMetrics failed: %v", err)
	}
	metrics.RecordDispatch("engine-1")
	metrics.RecordDrop("engine-1", "run")
	metrics.RecordCycle("engine-1")
	metrics.RecordOverrun("engine-1")
	metrics.RecordNodeCreated("folder")
	metrics.RecordWrite()
}

func TestNilRuntimeMetricsIsNoop(t *testing.T) {
	var metrics *RuntimeMetrics
	metrics.RecordDispatch("engine-1")
	metrics.RecordDrop("engine-1", "run")
	metrics.RecordCycle("engine-1")
	metrics.RecordOverrun("engine-1")
	metrics.RecordNodeCreated("object")
	metrics.RecordWrite()
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	provider, shutdown, err := Init(context.Background(), Settings{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if provider == nil {
		t.Fatal("provider must not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown failed: %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		in       string
		host     string
		insecure bool
		wantErr  bool
	}{
		{"collector:4318", "collector:4318", true, false},
		{"http://collector:4318", "collector:4318", true, false},
		{"https://collector:4318", "collector:4318", false, false},
		{"grpc://collector", "", false, true},
		{"http://", "", false, true},
	}
	for _, tc := range cases {
		host, insecure, err := parseEndpoint(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseEndpoint(%q) failed: %v", tc.in, err)
		}
		if host != tc.host || insecure != tc.insecure {
			t.Fatalf("parseEndpoint(%q) = (%q, %v)", tc.in, host, insecure)
		}
	}
}
