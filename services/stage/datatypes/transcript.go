// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"strings"
)

// Transcript roles.
const (
	RolePlayer   = "player"
	RolePartner  = "partner"
	RoleDirector = "director"
)

// TranscriptEntry is one utterance in a session.
type TranscriptEntry struct {
	Turn int    `json:"turn"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// Transcript is the in-order conversation history of one session. It is
// appended to only by the owning turn task.
type Transcript []TranscriptEntry

// Append adds one entry.
func (t *Transcript) Append(turn int, role, text string) {
	*t = append(*t, TranscriptEntry{Turn: turn, Role: role, Text: text})
}

// Tail returns the last n entries, or all of them when fewer exist.
func (t Transcript) Tail(n int) Transcript {
	if n <= 0 || len(t) <= n {
		return t
	}
	return t[len(t)-n:]
}

// Render flattens the last n entries into the role-prefixed form fed to the
// backend and hashed by the predicate cache. Identical histories render
// identically.
func (t Transcript) Render(n int) string {
	tail := t.Tail(n)
	var b strings.Builder
	for _, e := range tail {
		fmt.Fprintf(&b, "%s: %s\n", titleRole(e.Role), e.Text)
	}
	return b.String()
}

func titleRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
