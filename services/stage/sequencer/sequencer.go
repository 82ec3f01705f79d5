// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sequencer guards a session against stale generation results.
//
// # Description
//
// Every turn that starts a backend generation first obtains a token from the
// session's Sequencer. When the generation completes, the result is accepted
// only if its token is still the live one. Any later Begin or Invalidate
// call advances the live token, which retroactively kills every outstanding
// generation without needing to reach into the goroutines running them.
//
// This is the sole mechanism preventing two accepted generations for the
// same turn, so the live token must only ever move forward.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines acting
// on the same session.
package sequencer

import "sync"

// Sequencer issues monotonically increasing turn tokens for one session.
//
// The zero value is not usable; construct with New.
type Sequencer struct {
	mu      sync.Mutex
	turns   uint64 // number of Begin calls, for introspection only
	current uint64 // the only token considered live
}

// New returns a Sequencer with no live token. The first Begin returns 1.
func New() *Sequencer {
	return &Sequencer{}
}

// Begin starts a new turn: it advances the live token and returns it. Every
// token issued earlier becomes stale the moment Begin returns.
func (s *Sequencer) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	s.current++
	return s.current
}

// IsCurrent reports whether token is still the live one. A false result
// means the computation that holds the token is dead and its output must be
// discarded wherever observed.
func (s *Sequencer) IsCurrent(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token == s.current
}

// Invalidate advances the live token without starting a turn. Used on
// session teardown and scene restarts so straggling backend results are
// dropped on arrival.
func (s *Sequencer) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
}

// Turns returns how many turns have begun on this session.
func (s *Sequencer) Turns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Current returns the live token. Zero means no turn has begun.
func (s *Sequencer) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
