// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sequencer

import "sync/atomic"

// Gate admits at most one in-flight turn per session. A second turn arriving
// while one is being handled is rejected immediately rather than queued,
// which keeps backend call amplification impossible at the cost of asking
// the player to resend.
//
// The zero value is ready to use.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire claims the gate. It returns false without blocking when a turn
// is already in flight.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the gate at the end of a turn, successful or not.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Busy reports whether a turn is currently in flight.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}
