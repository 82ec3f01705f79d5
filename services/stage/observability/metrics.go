// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the stage.
//
// # Description
//
// This package implements Prometheus metrics for monitoring session
// orchestration. Metrics include:
//   - Turn counters (by admission status)
//   - Stale generation drops
//   - Delivery and eviction counters (by priority tier)
//   - Backend call latency histograms (by operation)
//   - Director decision counters
//   - Predicate cache counters
//   - Active session gauge
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
const metricsNamespace = "proscenium"

// Subsystem for stage orchestration metrics.
const stageSubsystem = "stage"

// StageMetrics holds all Prometheus metrics for session orchestration.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring turn handling,
// delivery pacing, and director activity. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type StageMetrics struct {
	// TurnsTotal counts player turns by admission outcome.
	// Labels: status (accepted, busy, failed)
	TurnsTotal *prometheus.CounterVec

	// StaleDropsTotal counts generation results discarded because their
	// sequence token was no longer live.
	StaleDropsTotal prometheus.Counter

	// DeliveriesTotal counts transport deliveries by tier and status.
	// Labels: priority, status (success, error)
	DeliveriesTotal *prometheus.CounterVec

	// EvictionsTotal counts queue evictions by tier and reason.
	// Labels: priority, reason (preempted, replaced, slot_held, superseded, new_turn)
	EvictionsTotal *prometheus.CounterVec

	// BackendSeconds measures generative backend latency by operation.
	// Labels: operation (turn, predicate, director_classify, director_content,
	// summary), status (success, error)
	BackendSeconds *prometheus.HistogramVec

	// DirectorOutcomesTotal counts director decisions.
	// Labels: decision (continue, spawn_event, adjust_behavior, give_hint)
	DirectorOutcomesTotal *prometheus.CounterVec

	// PredicateEvalsTotal counts predicate evaluations by resolution path.
	// Labels: outcome (latched, cached, evaluated, failed)
	PredicateEvalsTotal *prometheus.CounterVec

	// ProfileSavesTotal counts persistence checkpoint attempts.
	// Labels: status (success, error)
	ProfileSavesTotal *prometheus.CounterVec

	// ActiveSessions tracks currently registered sessions.
	ActiveSessions prometheus.Gauge
}

// DefaultMetrics is the singleton instance of StageMetrics.
// Initialized by InitMetrics(); nil until then, and every caller must
// tolerate nil so libraries stay usable in tests without a registry.
var DefaultMetrics *StageMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Call once at application startup.
//
// # Outputs
//
//   - *StageMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *StageMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics builds a metrics set registered on reg. Tests pass a private
// registry so parallel packages never collide.
func NewMetrics(reg prometheus.Registerer) *StageMetrics {
	factory := promauto.With(reg)
	m := &StageMetrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "turns_total",
				Help:      "Player turns by admission outcome.",
			},
			[]string{"status"},
		),
		StaleDropsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "stale_drops_total",
				Help:      "Generation results discarded as stale.",
			},
		),
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "deliveries_total",
				Help:      "Items handed to the transport, by tier and status.",
			},
			[]string{"priority", "status"},
		),
		EvictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "evictions_total",
				Help:      "Queue evictions by tier and reason.",
			},
			[]string{"priority", "reason"},
		),
		BackendSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "backend_seconds",
				Help:      "Generative backend call latency.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"operation", "status"},
		),
		DirectorOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "director_outcomes_total",
				Help:      "Director decisions by kind.",
			},
			[]string{"decision"},
		),
		PredicateEvalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "predicate_evals_total",
				Help:      "Predicate evaluations by resolution path.",
			},
			[]string{"outcome"},
		),
		ProfileSavesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "profile_saves_total",
				Help:      "Profile checkpoint attempts by status.",
			},
			[]string{"status"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: stageSubsystem,
				Name:      "active_sessions",
				Help:      "Currently registered sessions.",
			},
		),
	}

	return m
}

// =============================================================================
// Turn Status Labels
// =============================================================================

// TurnStatus labels the admission outcome of one player turn.
type TurnStatus string

const (
	// TurnAccepted means the turn entered the single-flight gate.
	TurnAccepted TurnStatus = "accepted"

	// TurnBusy means the turn was rejected because one was in flight.
	TurnBusy TurnStatus = "busy"

	// TurnFailed means the backend call for the turn failed or timed out.
	TurnFailed TurnStatus = "failed"
)

// =============================================================================
// Backend Operation Labels
// =============================================================================

// Operation labels which caller invoked the generative backend.
type Operation string

const (
	OpTurn            Operation = "turn"
	OpRule            Operation = "rule"
	OpPredicate       Operation = "predicate"
	OpDirectorClass   Operation = "director_classify"
	OpDirectorContent Operation = "director_content"
	OpSummary         Operation = "summary"
)

// =============================================================================
// Predicate Outcome Labels
// =============================================================================

// PredicateOutcome labels how a predicate evaluation resolved.
type PredicateOutcome string

const (
	// PredicateLatched means a pinned true result answered without hashing.
	PredicateLatched PredicateOutcome = "latched"

	// PredicateCached means the transcript hash hit a stored entry.
	PredicateCached PredicateOutcome = "cached"

	// PredicateEvaluated means the backend was consulted.
	PredicateEvaluated PredicateOutcome = "evaluated"

	// PredicateFailed means the backend call failed and the evaluation
	// fell closed to false.
	PredicateFailed PredicateOutcome = "failed"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records one turn admission outcome.
func (m *StageMetrics) RecordTurn(status TurnStatus) {
	m.TurnsTotal.WithLabelValues(string(status)).Inc()
}

// RecordStaleDrop records a generation discarded as stale.
func (m *StageMetrics) RecordStaleDrop() {
	m.StaleDropsTotal.Inc()
}

// RecordDelivery records one transport delivery attempt.
func (m *StageMetrics) RecordDelivery(priority string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.DeliveriesTotal.WithLabelValues(priority, status).Inc()
}

// RecordEviction records one queue eviction.
func (m *StageMetrics) RecordEviction(priority, reason string) {
	m.EvictionsTotal.WithLabelValues(priority, reason).Inc()
}

// ObserveBackend records the latency of one backend call.
func (m *StageMetrics) ObserveBackend(op Operation, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.BackendSeconds.WithLabelValues(string(op), status).Observe(seconds)
}

// RecordDirectorOutcome records one director decision.
func (m *StageMetrics) RecordDirectorOutcome(decision string) {
	m.DirectorOutcomesTotal.WithLabelValues(decision).Inc()
}

// RecordPredicate records how a predicate evaluation resolved.
func (m *StageMetrics) RecordPredicate(outcome PredicateOutcome) {
	m.PredicateEvalsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordProfileSave records one persistence checkpoint attempt.
func (m *StageMetrics) RecordProfileSave(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ProfileSavesTotal.WithLabelValues(status).Inc()
}

// SessionStarted increments the active session gauge.
func (m *StageMetrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (m *StageMetrics) SessionEnded() {
	m.ActiveSessions.Dec()
}
