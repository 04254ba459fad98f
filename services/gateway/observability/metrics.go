// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the gateway.
//
// # Description
//
// This package implements metrics for monitoring retrieval and voice
// operations. Metrics include:
//   - Request counters (by endpoint, status, error type)
//   - Fact-pack size histograms (bytes and estimated tokens)
//   - Retrieval latency histograms
//   - Active voice session and playback queue gauges
//   - Pack reload counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics.
const metricsNamespace = "aleutian"

// Subsystem for gateway metrics.
const gatewaySubsystem = "voice_gateway"

// Metrics holds all Prometheus metrics for gateway operations.
//
// Construct once with New and pass to handlers; there is no package-level
// instance, so tests can register against a private registry.
type Metrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint (retrieve, reload, sessions, voice, ...), status
	// (success, error)
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts errors by endpoint and error code.
	// Labels: endpoint, error_code (validation, not_ready, budget, ...)
	ErrorsTotal *prometheus.CounterVec

	// RetrievalSeconds measures end-to-end retrieval latency.
	// Labels: endpoint (retrieve, voice)
	RetrievalSeconds *prometheus.HistogramVec

	// PackBytes measures serialized fact-pack sizes in bytes.
	PackBytes prometheus.Histogram

	// PackFacts measures the number of facts in returned packs.
	PackFacts prometheus.Histogram

	// ReloadsTotal counts pack reloads by outcome.
	// Labels: status (success, error)
	ReloadsTotal *prometheus.CounterVec

	// ActiveVoiceSessions tracks currently open voice websockets.
	ActiveVoiceSessions prometheus.Gauge

	// PlaybackEnqueuedTotal counts PCM buffers accepted for playback.
	PlaybackEnqueuedTotal prometheus.Counter
}

// New creates and registers all gateway metrics.
//
// # Description
//
// Registers every metric on the given registerer. Pass nil to use the
// Prometheus default registry (the normal production path). Tests pass
// prometheus.NewRegistry() for isolation; registering the same metrics
// twice on one registry panics.
//
// # Inputs
//
//   - reg: Target registry, or nil for prometheus.DefaultRegisterer.
//
// # Outputs
//
//   - *Metrics: The registered metrics instance.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Total API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		RetrievalSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "retrieval_seconds",
				Help:      "End-to-end fact retrieval latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"endpoint"},
		),

		PackBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "pack_bytes",
				Help:      "Serialized fact-pack size in bytes",
				Buckets:   []float64{128, 256, 512, 1024, 2048, 4096, 8192, 16384},
			},
		),

		PackFacts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "pack_facts",
				Help:      "Number of facts in returned packs",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
		),

		ReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "reloads_total",
				Help:      "Total pack reloads by outcome",
			},
			[]string{"status"},
		),

		ActiveVoiceSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "active_voice_sessions",
				Help:      "Number of currently open voice websocket sessions",
			},
		),

		PlaybackEnqueuedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "playback_enqueued_total",
				Help:      "Total PCM buffers accepted for playback",
			},
		),
	}
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeNotReady indicates no knowledge pack is loaded yet.
	ErrorCodeNotReady ErrorCode = "not_ready"

	// ErrorCodeBudget indicates the budget cannot fit even an empty pack.
	ErrorCodeBudget ErrorCode = "budget"

	// ErrorCodeNotFound indicates a missing session or resource.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeQueueFull indicates playback backpressure.
	ErrorCodeQueueFull ErrorCode = "queue_full"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents an API surface for metrics labeling.
type Endpoint string

const (
	// EndpointRetrieve is the HTTP retrieval endpoint.
	EndpointRetrieve Endpoint = "retrieve"

	// EndpointReload is the pack reload endpoint.
	EndpointReload Endpoint = "reload"

	// EndpointSessions covers the session administration endpoints.
	EndpointSessions Endpoint = "sessions"

	// EndpointReflex is the acknowledgement endpoint.
	EndpointReflex Endpoint = "reflex"

	// EndpointVoice is the websocket voice endpoint.
	EndpointVoice Endpoint = "voice"

	// EndpointBackup is the store backup endpoint.
	EndpointBackup Endpoint = "backup"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed API request.
func (m *Metrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records a categorized error.
func (m *Metrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordRetrieval records the latency and shape of a served fact pack.
func (m *Metrics) RecordRetrieval(endpoint Endpoint, seconds float64, facts, bytes int) {
	m.RetrievalSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
	m.PackFacts.Observe(float64(facts))
	m.PackBytes.Observe(float64(bytes))
}

// RecordReload records a pack reload outcome.
func (m *Metrics) RecordReload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ReloadsTotal.WithLabelValues(status).Inc()
}

// VoiceSessionStarted increments the active voice session gauge.
func (m *Metrics) VoiceSessionStarted() {
	m.ActiveVoiceSessions.Inc()
}

// VoiceSessionEnded decrements the active voice session gauge.
func (m *Metrics) VoiceSessionEnded() {
	m.ActiveVoiceSessions.Dec()
}

// RecordPlaybackEnqueued counts a PCM buffer accepted for playback.
func (m *Metrics) RecordPlaybackEnqueued() {
	m.PlaybackEnqueuedTotal.Inc()
}
