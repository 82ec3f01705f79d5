// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *StageMetrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestRecordTurn_Statuses(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTurn(TurnAccepted)
	m.RecordTurn(TurnAccepted)
	m.RecordTurn(TurnBusy)

	accepted := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("accepted"))
	if accepted != 2 {
		t.Errorf("accepted turns = %v, want 2", accepted)
	}
	busy := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("busy"))
	if busy != 1 {
		t.Errorf("busy turns = %v, want 1", busy)
	}
}

func TestRecordStaleDrop(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordStaleDrop()
	m.RecordStaleDrop()

	if got := testutil.ToFloat64(m.StaleDropsTotal); got != 2 {
		t.Errorf("stale drops = %v, want 2", got)
	}
}

func TestRecordDelivery_StatusLabel(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDelivery("normal", true)
	m.RecordDelivery("normal", false)

	ok := testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("normal", "success"))
	if ok != 1 {
		t.Errorf("successful deliveries = %v, want 1", ok)
	}
	failed := testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("normal", "error"))
	if failed != 1 {
		t.Errorf("failed deliveries = %v, want 1", failed)
	}
}

func TestRecordEviction(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordEviction("background", "new_turn")
	m.RecordEviction("background", "preempted")
	m.RecordEviction("background", "preempted")

	preempted := testutil.ToFloat64(m.EvictionsTotal.WithLabelValues("background", "preempted"))
	if preempted != 2 {
		t.Errorf("preempted evictions = %v, want 2", preempted)
	}
}

func TestSessionGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
}

func TestRecordPredicate_Outcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPredicate(PredicateLatched)
	m.RecordPredicate(PredicateEvaluated)
	m.RecordPredicate(PredicateEvaluated)

	evaluated := testutil.ToFloat64(m.PredicateEvalsTotal.WithLabelValues("evaluated"))
	if evaluated != 2 {
		t.Errorf("evaluated predicates = %v, want 2", evaluated)
	}
}
