// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
)

// Transport carries a ready item to the player's connection. One ordered,
// single-consumer channel exists per session. A failed delivery is final:
// the item is logged and dropped, never redelivered, because a line arriving
// late is worse than a line not arriving.
type Transport interface {
	Deliver(ctx context.Context, sessionID string, item datatypes.DeliveryItem) error
}

// Consumer drains one session's queue to its transport. Exactly one
// Consumer goroutine runs per session.
type Consumer struct {
	queue     *Queue
	transport Transport
}

// NewConsumer wires a queue to its transport.
func NewConsumer(q *Queue, transport Transport) *Consumer {
	return &Consumer{queue: q, transport: transport}
}

// Run delivers until ctx is cancelled. Call it on its own goroutine; it
// returns only on cancellation.
func (c *Consumer) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if item, ok := c.queue.DequeueReady(); ok {
			c.deliver(ctx, item)
			continue
		}

		wait, hasPending := c.queue.nextWait()
		if hasPending && wait <= 0 {
			// Became ready between the failed pop and the check.
			continue
		}

		if hasPending {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-c.queue.notify:
				drainTimer(timer)
			case <-timer.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-c.queue.notify:
			}
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, item datatypes.DeliveryItem) {
	dctx, cancel := context.WithTimeout(ctx, c.queue.cfg.DeliverTimeout)
	err := c.transport.Deliver(dctx, c.queue.sessionID, item)
	cancel()

	c.queue.MarkDelivered()

	if err != nil {
		slog.Warn("delivery failed, dropping item",
			"session_id", c.queue.sessionID,
			"item_id", item.ID,
			"priority", item.Priority.String(),
			"error", err,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordDelivery(item.Priority.String(), false)
		}
		return
	}

	slog.Debug("delivered item",
		"session_id", c.queue.sessionID,
		"item_id", item.ID,
		"priority", item.Priority.String(),
	)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordDelivery(item.Priority.String(), true)
	}
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
