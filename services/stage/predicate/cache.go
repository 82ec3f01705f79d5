// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predicate evaluates natural-language yes/no conditions against a
// transcript via the generative backend.
//
// # Description
//
// Results are memoized by a content hash of (transcript, condition), so a
// condition is asked at most once per distinct history. A condition
// evaluated with latch=true that comes back true is pinned for the rest of
// the session: once the player has revealed something, a longer transcript
// cannot un-reveal it, so the backend is never consulted again for that
// condition.
//
// # Failure Handling
//
// A failed or unparsable backend answer resolves to false and is not
// cached. A missed trigger is preferable to a spurious one, and the next
// evaluation should get a fresh chance.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent evaluations of the same (transcript,
// condition) pair are coalesced into a single backend call.
package predicate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
)

// DefaultTimeout bounds one predicate backend call. Predicate prompts are
// tiny; anything slower than this is a backend problem, not a reason to
// stall the turn.
const DefaultTimeout = 10 * time.Second

const promptFormat = `You are evaluating a statement about a conversation.
Given this transcript, answer with a single word, true or false.

Transcript:
%s

Statement: %s
Answer:`

// Cache is the per-session predicate evaluator.
type Cache struct {
	backend genai.Backend
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]bool // content hash -> result
	latched map[string]bool // condition text -> pinned true

	inflight singleflight.Group
}

// New builds an empty cache backed by the given generator.
func New(backend genai.Backend, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Cache{
		backend: backend,
		timeout: timeout,
		entries: make(map[string]bool),
		latched: make(map[string]bool),
	}
}

// Evaluate answers whether condition holds for the transcript. With latch
// set, a true result is pinned for the remainder of the session and future
// calls for the same condition short-circuit regardless of transcript.
func (c *Cache) Evaluate(ctx context.Context, transcript, condition string, latch bool) bool {
	c.mu.Lock()
	if c.latched[condition] {
		c.mu.Unlock()
		recordPredicate(observability.PredicateLatched)
		return true
	}
	key := hashKey(transcript, condition)
	if result, ok := c.entries[key]; ok {
		c.mu.Unlock()
		recordPredicate(observability.PredicateCached)
		return result
	}
	c.mu.Unlock()

	answer, err, _ := c.inflight.Do(key, func() (interface{}, error) {
		return c.ask(ctx, transcript, condition)
	})
	if err != nil {
		slog.Debug("predicate evaluation failed closed",
			"condition", condition,
			"error", err,
		)
		recordPredicate(observability.PredicateFailed)
		return false
	}

	result := answer.(bool)
	c.mu.Lock()
	c.entries[key] = result
	if latch && result {
		c.latched[condition] = true
	}
	c.mu.Unlock()

	recordPredicate(observability.PredicateEvaluated)
	return result
}

// Latched reports whether condition has been pinned true this session.
func (c *Cache) Latched(condition string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latched[condition]
}

// Size reports how many distinct evaluations are memoized.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) ask(ctx context.Context, transcript, condition string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temp := float32(0)
	maxTokens := 8
	raw, err := c.backend.Generate(ctx, fmt.Sprintf(promptFormat, transcript, condition), genai.Params{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return false, err
	}
	return parseAnswer(raw)
}

func hashKey(transcript, condition string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s|%d:%s", len(transcript), transcript, len(condition), condition)
	return hex.EncodeToString(h.Sum(nil))
}

func parseAnswer(raw string) (bool, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, `."'!`)
	switch {
	case strings.HasPrefix(s, "true"), strings.HasPrefix(s, "yes"):
		return true, nil
	case strings.HasPrefix(s, "false"), strings.HasPrefix(s, "no"):
		return false, nil
	default:
		return false, fmt.Errorf("unparsable predicate answer %q", raw)
	}
}

func recordPredicate(outcome observability.PredicateOutcome) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordPredicate(outcome)
	}
}
