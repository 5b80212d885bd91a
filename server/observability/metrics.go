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
// Metrics are exposed at /metrics; all operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "datachat"

// GatewayMetrics holds all Prometheus metrics for the chat gateway.
// Initialize once at startup via NewGatewayMetrics().
type GatewayMetrics struct {
	// ChatTurnsTotal counts chat turns by agent outcome.
	// Labels: status (success, agent_error, unauthenticated)
	ChatTurnsTotal *prometheus.CounterVec

	// AgentLatencySeconds measures wall time of the remote agent call.
	// Labels: status (success, agent_error)
	AgentLatencySeconds *prometheus.HistogramVec

	// StoreOperationsTotal counts conversation store calls by result.
	// Labels: operation (save_turn, list, get_turns, delete), status (ok, degraded)
	StoreOperationsTotal *prometheus.CounterVec

	// UploadsTotal counts processed uploads.
	// Labels: status (success, rejected, analysis_error)
	UploadsTotal *prometheus.CounterVec

	// ExportsTotal counts export requests.
	// Labels: format (json, csv, pdf), status (success, error)
	ExportsTotal *prometheus.CounterVec
}

// DefaultMetrics is the process-wide metrics instance.
var DefaultMetrics = NewGatewayMetrics()

func NewGatewayMetrics() *GatewayMetrics {
	return &GatewayMetrics{
		ChatTurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns processed, by outcome.",
		}, []string{"status"}),
		AgentLatencySeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "agent_latency_seconds",
			Help:      "Latency of the remote agent call.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"status"}),
		StoreOperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "store_operations_total",
			Help:      "Conversation store operations, by result. Degraded means the store absorbed an I/O failure.",
		}, []string{"operation", "status"}),
		UploadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "uploads",
			Name:      "processed_total",
			Help:      "Uploads processed, by outcome.",
		}, []string{"status"}),
		ExportsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "exports",
			Name:      "requests_total",
			Help:      "Export requests, by format and outcome.",
		}, []string{"format", "status"}),
	}
}
