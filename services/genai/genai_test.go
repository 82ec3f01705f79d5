// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package genai

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestScriptedBackend_RuleOrder(t *testing.T) {
	b := NewScriptedBackend([]ScriptRule{
		{Match: "door", Reply: "It creaks open."},
		{Match: "open the door", Reply: "never reached"},
	})

	out, err := b.Generate(context.Background(), "I open the door.", Params{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "It creaks open." {
		t.Errorf("got %q, want the first matching rule", out)
	}
}

func TestScriptedBackend_FailsClosedOnTruthQuestions(t *testing.T) {
	b := NewScriptedBackend(nil)

	out, err := b.Generate(context.Background(),
		"Given this transcript, answer true or false: the vault is open.", Params{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "false" {
		t.Errorf("unmatched truth question answered %q, want false", out)
	}
}

func TestScriptedBackend_ClassificationFallback(t *testing.T) {
	b := NewScriptedBackend(nil)

	out, err := b.Generate(context.Background(),
		"Classify the situation. Respond with ONLY valid JSON.", Params{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(out, `"decision"`) {
		t.Errorf("classification fallback = %q, want a decision JSON", out)
	}
}

func TestScriptedBackend_CountsCalls(t *testing.T) {
	b := NewScriptedBackend(nil)
	for i := 0; i < 3; i++ {
		if _, err := b.Generate(context.Background(), "hello", Params{}); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	if got := b.Calls(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestScriptedBackend_LatencyHonorsContext(t *testing.T) {
	b := NewScriptedBackend(nil).WithLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Generate(ctx, "slow", Params{})
	if err == nil {
		t.Fatal("expected context error from a cancelled slow call")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancelled call still took %v", elapsed)
	}
}

func TestRateLimited_ContextAborts(t *testing.T) {
	// One-token bucket at a very slow refill: the second call must wait and
	// its context expires first.
	inner := NewScriptedBackend(nil)
	limited := NewRateLimited(inner, 0.1, 1)

	if _, err := limited.Generate(context.Background(), "one", Params{}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Generate(ctx, "two", Params{}); err == nil {
		t.Fatal("expected rate limit wait to abort with the context")
	}
	if got := inner.Calls(); got != 1 {
		t.Errorf("inner backend saw %d calls, want 1", got)
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(Config{Type: "psychic"}); err == nil {
		t.Error("expected error for unknown backend type")
	}
}

func TestNew_ScriptedWithLimiter(t *testing.T) {
	backend, err := New(Config{Type: TypeScripted, RateLimit: 5, RateBurst: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := backend.(*RateLimited); !ok {
		t.Errorf("backend type = %T, want rate limited wrapper", backend)
	}
}
