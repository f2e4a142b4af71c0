package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveConnections == nil {
		t.Error("ActiveConnections is nil")
	}
	if m.CallDuration == nil {
		t.Error("CallDuration is nil")
	}
	if m.FramesTotal == nil {
		t.Error("FramesTotal is nil")
	}
	if m.FrameBytesTotal == nil {
		t.Error("FrameBytesTotal is nil")
	}
	if m.RateLimitRejects == nil {
		t.Error("RateLimitRejects is nil")
	}
	if m.PipelineQueueFull == nil {
		t.Error("PipelineQueueFull is nil")
	}
	if m.CacheHits == nil {
		t.Error("CacheHits is nil")
	}
	if m.CacheMisses == nil {
		t.Error("CacheMisses is nil")
	}

	// Verify metrics can be gathered without error.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("GET", "/v1/calls/{callID}/ws", "101").Inc()
	m.RateLimitRejects.WithLabelValues(RejectConnection).Inc()
	m.RateLimitRejects.WithLabelValues(RejectBandwidth).Inc()
	m.ActiveConnections.Set(3)
	m.FramesTotal.Inc()
	m.FrameBytesTotal.Add(4096)
	m.CallDuration.Observe(12.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"voxgate_requests_total",
		"voxgate_ratelimit_rejects_total",
		"voxgate_ws_connections_active",
		"voxgate_frames_total",
		"voxgate_frame_bytes_total",
		"voxgate_call_duration_seconds",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

// SetupTracing is not unit-tested because it requires a gRPC connection
// to an OTLP collector, which is integration-test territory.
