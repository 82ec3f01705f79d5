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
	"sync"
	"time"
)

// ScriptRule answers prompts containing Match with Reply. Rules are checked
// in order; the first hit wins.
type ScriptRule struct {
	Match string `yaml:"match"`
	Reply string `yaml:"reply"`
}

// ScriptedBackend is a deterministic offline backend for development and
// rehearsal. It answers from its rule table and falls back to neutral
// answers shaped for the caller: "false" for truth questions, a continue
// decision for classification prompts, and a stock line otherwise.
type ScriptedBackend struct {
	mu      sync.Mutex
	rules   []ScriptRule
	latency time.Duration
	calls   int
}

// NewScriptedBackend builds a backend answering from rules.
func NewScriptedBackend(rules []ScriptRule) *ScriptedBackend {
	return &ScriptedBackend{rules: rules}
}

// WithLatency makes every call take at least d, for rehearsing slow-backend
// behavior locally.
func (s *ScriptedBackend) WithLatency(d time.Duration) *ScriptedBackend {
	s.latency = d
	return s
}

// Calls reports how many generations have been served.
func (s *ScriptedBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Generate implements the Backend interface.
func (s *ScriptedBackend) Generate(ctx context.Context, prompt string, _ Params) (string, error) {
	s.mu.Lock()
	s.calls++
	rules := s.rules
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(latency):
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, rule := range rules {
		if rule.Match != "" && strings.Contains(prompt, rule.Match) {
			return rule.Reply, nil
		}
	}

	switch {
	case strings.Contains(prompt, "true or false"):
		return "false", nil
	case strings.Contains(prompt, "ONLY valid JSON"):
		return `{"decision": "continue", "reason": "scripted backend"}`, nil
	default:
		return "The scene holds for a beat, waiting on you.", nil
	}
}
