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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
)

// captureTransport records deliveries and can be told to fail specific
// texts.
type captureTransport struct {
	mu        sync.Mutex
	items     []datatypes.DeliveryItem
	times     []time.Time
	failTexts map[string]bool
	delivered chan datatypes.DeliveryItem
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{
		failTexts: make(map[string]bool),
		delivered: make(chan datatypes.DeliveryItem, 16),
	}
}

func (c *captureTransport) Deliver(_ context.Context, _ string, item datatypes.DeliveryItem) error {
	c.mu.Lock()
	failed := c.failTexts[item.Text]
	if !failed {
		c.items = append(c.items, item)
		c.times = append(c.times, time.Now())
	}
	c.mu.Unlock()

	c.delivered <- item
	if failed {
		return errors.New("connection gone")
	}
	return nil
}

func (c *captureTransport) snapshot() []datatypes.DeliveryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]datatypes.DeliveryItem(nil), c.items...)
}

func waitDelivered(t *testing.T, ch <-chan datatypes.DeliveryItem) datatypes.DeliveryItem {
	t.Helper()
	select {
	case item := <-ch:
		return item
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return datatypes.DeliveryItem{}
	}
}

// =============================================================================
// Queue Preemption Tests
// =============================================================================

func TestQueue_CriticalEvictsCancellableBackground(t *testing.T) {
	q := NewQueue("s1", DefaultConfig())

	q.Enqueue(datatypes.NewLine("ambient line", datatypes.PriorityBackground, true))
	q.Enqueue(datatypes.NewLine("scene break", datatypes.PriorityCritical, false))

	pending := q.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d items, want 1", len(pending))
	}
	if pending[0].Text != "scene break" {
		t.Errorf("surviving item = %q, want the critical one", pending[0].Text)
	}
}

func TestQueue_NonCancellableSurvivesPreemption(t *testing.T) {
	q := NewQueue("s1", DefaultConfig())

	q.Enqueue(datatypes.NewLine("direct reply", datatypes.PriorityNormal, false))
	q.Enqueue(datatypes.NewLine("scene break", datatypes.PriorityCritical, false))

	pending := q.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d items, want 2", len(pending))
	}
	if pending[0].Priority != datatypes.PriorityCritical {
		t.Errorf("first pending tier = %v, want critical", pending[0].Priority)
	}
	if pending[1].Text != "direct reply" {
		t.Errorf("direct reply evicted by preemption")
	}
}

func TestQueue_SlotContest(t *testing.T) {
	t.Run("cancellable occupant is replaced", func(t *testing.T) {
		q := NewQueue("s1", DefaultConfig())
		q.Enqueue(datatypes.NewLine("old hint", datatypes.PriorityBackground, true))
		q.Enqueue(datatypes.NewLine("new hint", datatypes.PriorityBackground, true))

		pending := q.Pending()
		if len(pending) != 1 || pending[0].Text != "new hint" {
			t.Errorf("pending = %+v, want only the new hint", pending)
		}
	})

	t.Run("cancellable newcomer loses to pinned occupant", func(t *testing.T) {
		q := NewQueue("s1", DefaultConfig())
		q.Enqueue(datatypes.NewLine("reply", datatypes.PriorityNormal, false))
		q.Enqueue(datatypes.NewLine("rule line", datatypes.PriorityNormal, true))

		pending := q.Pending()
		if len(pending) != 1 || pending[0].Text != "reply" {
			t.Errorf("pending = %+v, want only the pinned reply", pending)
		}
	})

	t.Run("newer non-cancellable supersedes older", func(t *testing.T) {
		q := NewQueue("s1", DefaultConfig())
		q.Enqueue(datatypes.NewLine("reply to turn 1", datatypes.PriorityNormal, false))
		q.Enqueue(datatypes.NewLine("reply to turn 2", datatypes.PriorityNormal, false))

		pending := q.Pending()
		if len(pending) != 1 || pending[0].Text != "reply to turn 2" {
			t.Errorf("pending = %+v, want only the newer reply", pending)
		}
	})
}

func TestQueue_EvictBackground(t *testing.T) {
	q := NewQueue("s1", DefaultConfig())

	q.Enqueue(datatypes.NewLine("ambient", datatypes.PriorityBackground, true))
	q.Enqueue(datatypes.NewLine("reply", datatypes.PriorityNormal, false))
	q.EvictBackground()

	pending := q.Pending()
	if len(pending) != 1 || pending[0].Text != "reply" {
		t.Errorf("pending = %+v, want only the reply", pending)
	}
}

// =============================================================================
// Dequeue and Pacing Tests
// =============================================================================

func TestQueue_DequeueOrder(t *testing.T) {
	q := NewQueue("s1", DefaultConfig())

	q.Enqueue(datatypes.NewLine("reply", datatypes.PriorityNormal, false))
	q.Enqueue(datatypes.NewLine("scene break", datatypes.PriorityCritical, false))

	first, ok := q.DequeueReady()
	if !ok || first.Text != "scene break" {
		t.Fatalf("first pop = %+v ok=%v, want the critical item", first, ok)
	}
	second, ok := q.DequeueReady()
	if !ok || second.Text != "reply" {
		t.Fatalf("second pop = %+v ok=%v, want the reply", second, ok)
	}
	if _, ok := q.DequeueReady(); ok {
		t.Error("third pop succeeded on an empty queue")
	}
}

func TestQueue_GapBlocksDequeue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinGap = 40 * time.Millisecond
	q := NewQueue("s1", cfg)

	q.Enqueue(datatypes.NewLine("one", datatypes.PriorityNormal, false))
	if _, ok := q.DequeueReady(); !ok {
		t.Fatal("first item should be immediately deliverable")
	}
	q.MarkDelivered()

	q.Enqueue(datatypes.NewLine("two", datatypes.PriorityNormal, false))
	if _, ok := q.DequeueReady(); ok {
		t.Error("second item popped before the gap elapsed")
	}

	time.Sleep(cfg.MinGap + 10*time.Millisecond)
	if _, ok := q.DequeueReady(); !ok {
		t.Error("second item still blocked after the gap elapsed")
	}
}

// =============================================================================
// Consumer Tests
// =============================================================================

func TestConsumer_PacedDelivery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinGap = 40 * time.Millisecond
	q := NewQueue("s1", cfg)
	tr := newCaptureTransport()

	q.Enqueue(datatypes.NewLine("first", datatypes.PriorityNormal, false))
	q.Enqueue(datatypes.NewLine("second", datatypes.PriorityBackground, false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		NewConsumer(q, tr).Run(ctx)
		close(done)
	}()

	a := waitDelivered(t, tr.delivered)
	b := waitDelivered(t, tr.delivered)
	if a.Text != "first" || b.Text != "second" {
		t.Errorf("delivery order = %q then %q", a.Text, b.Text)
	}

	tr.mu.Lock()
	gap := tr.times[1].Sub(tr.times[0])
	tr.mu.Unlock()
	if gap < cfg.MinGap {
		t.Errorf("deliveries %v apart, want at least %v", gap, cfg.MinGap)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancellation")
	}
}

func TestConsumer_DropsFailedDelivery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinGap = 5 * time.Millisecond
	q := NewQueue("s1", cfg)
	tr := newCaptureTransport()
	tr.failTexts["doomed"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewConsumer(q, tr).Run(ctx)

	q.Enqueue(datatypes.NewLine("doomed", datatypes.PriorityNormal, false))
	waitDelivered(t, tr.delivered)

	q.Enqueue(datatypes.NewLine("fine", datatypes.PriorityNormal, false))
	waitDelivered(t, tr.delivered)

	got := tr.snapshot()
	if len(got) != 1 || got[0].Text != "fine" {
		t.Errorf("recorded deliveries = %+v, want only the surviving item", got)
	}
}

func TestConsumer_WakesOnEnqueue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinGap = 5 * time.Millisecond
	q := NewQueue("s1", cfg)
	tr := newCaptureTransport()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewConsumer(q, tr).Run(ctx)

	// Let the consumer park on an empty queue first.
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(datatypes.NewLine("wake up", datatypes.PriorityNormal, false))

	item := waitDelivered(t, tr.delivered)
	if item.Text != "wake up" {
		t.Errorf("delivered %q, want the enqueued item", item.Text)
	}
}
