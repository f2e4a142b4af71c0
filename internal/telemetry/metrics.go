// Package telemetry provides observability primitives for the voxgate gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	CallDuration      prometheus.Histogram
	FramesTotal       prometheus.Counter
	FrameBytesTotal   prometheus.Counter
	RateLimitRejects  *prometheus.CounterVec
	PipelineQueueFull prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
}

// Rate limit rejection types, label values for RateLimitRejects.
const (
	RejectConnection = "connection"
	RejectMessage    = "message_rate"
	RejectBandwidth  = "bandwidth"
	RejectOversize   = "oversize"
	RejectQueueFull  = "queue_full"
)

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxgate",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "voxgate",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxgate",
			Name:      "ws_connections_active",
			Help:      "Number of currently active WebSocket call connections.",
		}),

		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:                       "voxgate",
			Name:                            "call_duration_seconds",
			Help:                            "Voice call session duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}),

		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxgate",
			Name:      "frames_total",
			Help:      "Total admitted inbound audio frames.",
		}),

		FrameBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxgate",
			Name:      "frame_bytes_total",
			Help:      "Total admitted inbound audio bytes.",
		}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxgate",
			Name:      "ratelimit_rejects_total",
			Help:      "Total admission rejections by type.",
		}, []string{"type"}),

		PipelineQueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxgate",
			Name:      "pipeline_queue_full_total",
			Help:      "Total frames dropped because the downstream queue was full.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxgate",
			Name:      "audio_cache_hits_total",
			Help:      "Total synthesized-audio cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxgate",
			Name:      "audio_cache_misses_total",
			Help:      "Total synthesized-audio cache misses.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveConnections,
		m.CallDuration,
		m.FramesTotal,
		m.FrameBytesTotal,
		m.RateLimitRejects,
		m.PipelineQueueFull,
		m.CacheHits,
		m.CacheMisses,
	)

	return m
}
