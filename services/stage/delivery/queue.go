// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package delivery paces and preempts outbound content for one session.
//
// # Description
//
// Producers (the turn handler, the director, reaction rules) enqueue
// DeliveryItems; a single consumer goroutine drains them to the transport,
// honoring a minimum gap between deliveries so lines arrive at a readable
// pace. The queue holds at most one pending item per priority tier; an
// unbounded backlog would mean something upstream is broken, not something
// the queue should absorb.
//
// # Preemption
//
// Enqueueing at priority P evicts every pending cancellable item at a
// strictly lower tier. Within one tier, a cancellable occupant is replaced
// by the newcomer; a non-cancellable occupant wins against a cancellable
// newcomer; between two non-cancellable items the newer one wins, because
// the older reply answers an utterance the player has already moved past.
// Background items are additionally evicted wholesale when a new player
// turn begins: an ambient line not yet spoken is stale the moment the
// player acts again.
package delivery

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
)

// Config tunes queue behavior. Values are policy, not correctness, and may
// be changed per deployment.
type Config struct {
	// MinGap is the minimum time between the end of one delivery and the
	// start of the next.
	MinGap time.Duration

	// DeliverTimeout bounds a single transport call.
	DeliverTimeout time.Duration
}

// DefaultConfig returns the standard pacing policy.
func DefaultConfig() Config {
	return Config{
		MinGap:         2 * time.Second,
		DeliverTimeout: 5 * time.Second,
	}
}

// Queue holds the pending items of one session. All methods are safe for
// concurrent use; only the session's consumer goroutine should dequeue.
type Queue struct {
	sessionID string
	cfg       Config

	mu            sync.Mutex
	slots         [datatypes.NumPriorities]*datatypes.DeliveryItem
	lastDelivered time.Time

	// notify wakes the consumer after an enqueue. Capacity one; producers
	// never block on it.
	notify chan struct{}
}

// NewQueue builds an empty queue for the session.
func NewQueue(sessionID string, cfg Config) *Queue {
	if cfg.MinGap <= 0 {
		cfg.MinGap = DefaultConfig().MinGap
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = DefaultConfig().DeliverTimeout
	}
	return &Queue{
		sessionID: sessionID,
		cfg:       cfg,
		notify:    make(chan struct{}, 1),
	}
}

// Enqueue inserts an item, applying the preemption rules. It never blocks
// and never fails; items that lose a slot contest are dropped with a log
// line and a metric, not an error.
func (q *Queue) Enqueue(item datatypes.DeliveryItem) {
	q.mu.Lock()

	// Higher priority displaces lower-tier cancellables.
	for tier := int(item.Priority) + 1; tier < datatypes.NumPriorities; tier++ {
		if occ := q.slots[tier]; occ != nil && occ.Cancellable {
			q.slots[tier] = nil
			q.recordEviction(*occ, "preempted")
		}
	}

	// Contest for the item's own slot.
	if occ := q.slots[item.Priority]; occ != nil {
		switch {
		case occ.Cancellable:
			q.slots[item.Priority] = nil
			q.recordEviction(*occ, "replaced")
		case item.Cancellable:
			q.mu.Unlock()
			q.recordEviction(item, "slot_held")
			return
		default:
			q.slots[item.Priority] = nil
			q.recordEviction(*occ, "superseded")
		}
	}

	q.slots[item.Priority] = &item
	q.mu.Unlock()

	q.wake()
}

// EvictBackground clears the background slot. Called when a new player turn
// begins.
func (q *Queue) EvictBackground() {
	q.mu.Lock()
	occ := q.slots[datatypes.PriorityBackground]
	q.slots[datatypes.PriorityBackground] = nil
	q.mu.Unlock()

	if occ != nil {
		q.recordEviction(*occ, "new_turn")
	}
}

// DequeueReady pops the highest-priority pending item, but only once the
// minimum gap since the last completed delivery has elapsed. It returns
// false when nothing is deliverable yet.
func (q *Queue) DequeueReady() (datatypes.DeliveryItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.gapElapsedLocked(time.Now()) {
		return datatypes.DeliveryItem{}, false
	}
	for tier := 0; tier < datatypes.NumPriorities; tier++ {
		if occ := q.slots[tier]; occ != nil {
			q.slots[tier] = nil
			return *occ, true
		}
	}
	return datatypes.DeliveryItem{}, false
}

// MarkDelivered records the end of a delivery attempt and starts the gap
// clock. Failed attempts count too; the item is gone either way.
func (q *Queue) MarkDelivered() {
	q.mu.Lock()
	q.lastDelivered = time.Now()
	q.mu.Unlock()
}

// Depth reports how many slots are occupied.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, occ := range q.slots {
		if occ != nil {
			n++
		}
	}
	return n
}

// Pending returns a snapshot of queued items in delivery order.
func (q *Queue) Pending() []datatypes.DeliveryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]datatypes.DeliveryItem, 0, datatypes.NumPriorities)
	for tier := 0; tier < datatypes.NumPriorities; tier++ {
		if occ := q.slots[tier]; occ != nil {
			items = append(items, *occ)
		}
	}
	return items
}

// nextWait tells the consumer how long to sleep: hasPending is false when
// the queue is empty (wait for a wake), otherwise wait is the remaining gap
// time (zero when a pop would succeed now).
func (q *Queue) nextWait() (wait time.Duration, hasPending bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, occ := range q.slots {
		if occ != nil {
			hasPending = true
			break
		}
	}
	if !hasPending {
		return 0, false
	}
	now := time.Now()
	if q.gapElapsedLocked(now) {
		return 0, true
	}
	return q.cfg.MinGap - now.Sub(q.lastDelivered), true
}

func (q *Queue) gapElapsedLocked(now time.Time) bool {
	return q.lastDelivered.IsZero() || now.Sub(q.lastDelivered) >= q.cfg.MinGap
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) recordEviction(item datatypes.DeliveryItem, reason string) {
	slog.Debug("delivery item evicted",
		"session_id", q.sessionID,
		"item_id", item.ID,
		"priority", item.Priority.String(),
		"reason", reason,
	)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordEviction(item.Priority.String(), reason)
	}
}
