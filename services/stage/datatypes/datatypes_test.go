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
	"strings"
	"testing"
)

// =============================================================================
// Priority Tests
// =============================================================================

func TestParsePriority_RoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityCritical, PriorityUrgent, PriorityNormal, PriorityBackground} {
		parsed, err := ParsePriority(p.String())
		if err != nil {
			t.Fatalf("ParsePriority(%q) failed: %v", p.String(), err)
		}
		if parsed != p {
			t.Errorf("round trip changed %v to %v", p, parsed)
		}
	}
}

func TestParsePriority_Unknown(t *testing.T) {
	if _, err := ParsePriority("important"); err == nil {
		t.Error("expected error for unknown priority name, got nil")
	}
}

func TestNewWaitSignal_NotCancellable(t *testing.T) {
	item := NewWaitSignal()
	if item.Cancellable {
		t.Error("wait signal must not be cancellable")
	}
	if item.Priority != PriorityUrgent {
		t.Errorf("wait signal priority = %v, want urgent", item.Priority)
	}
	if item.ID == "" {
		t.Error("wait signal missing ID")
	}
}

// =============================================================================
// Wire Message Tests
// =============================================================================

func TestClientMessage_Validate_Turn(t *testing.T) {
	msg := &ClientMessage{Type: ClientTypeTurn, Text: "I open the door."}
	if err := msg.Validate(); err != nil {
		t.Errorf("expected valid turn, got error: %v", err)
	}
}

func TestClientMessage_Validate_EmptyTurn(t *testing.T) {
	msg := &ClientMessage{Type: ClientTypeTurn}
	if err := msg.Validate(); err == nil {
		t.Error("expected error for empty turn text, got nil")
	}
}

func TestClientMessage_Validate_UnknownType(t *testing.T) {
	msg := &ClientMessage{Type: "shout", Text: "hey"}
	if err := msg.Validate(); err == nil {
		t.Error("expected error for unknown message type, got nil")
	}
}

func TestClientMessage_Validate_OversizedTurn(t *testing.T) {
	msg := &ClientMessage{
		Type: ClientTypeTurn,
		Text: strings.Repeat("a", MaxTurnContentBytes+1),
	}
	if err := msg.Validate(); err == nil {
		t.Error("expected error for oversized turn, got nil")
	}
}

func TestLineMessage_WaitSignal(t *testing.T) {
	msg := LineMessage(NewWaitSignal())
	if msg.Type != ServerTypeWait {
		t.Errorf("wire type = %q, want %q", msg.Type, ServerTypeWait)
	}
	if msg.Text != "" {
		t.Errorf("wait signal carried text %q", msg.Text)
	}
}

func TestLineMessage_Line(t *testing.T) {
	item := NewLine("The lights flicker.", PriorityBackground, true)
	item.Speaker = "narrator"
	msg := LineMessage(item)
	if msg.Type != ServerTypeLine {
		t.Errorf("wire type = %q, want %q", msg.Type, ServerTypeLine)
	}
	if msg.Priority != "background" {
		t.Errorf("wire priority = %q, want background", msg.Priority)
	}
	if msg.Speaker != "narrator" {
		t.Errorf("wire speaker = %q, want narrator", msg.Speaker)
	}
}

// =============================================================================
// Profile Tests
// =============================================================================

func TestPlayerProfile_AdjustTrait_Clamps(t *testing.T) {
	p := NewPlayerProfile("p1")
	p.AdjustTrait("patience", 200)
	if p.Patience != TraitMax {
		t.Errorf("patience = %d, want clamped to %d", p.Patience, TraitMax)
	}
	p.AdjustTrait("patience", -500)
	if p.Patience != TraitMin {
		t.Errorf("patience = %d, want clamped to %d", p.Patience, TraitMin)
	}
}

func TestPlayerProfile_AdjustTrait_Unknown(t *testing.T) {
	p := NewPlayerProfile("p1")
	if p.AdjustTrait("charisma", 10) {
		t.Error("expected unknown trait to be rejected")
	}
}

func TestPlayerProfile_SuccessRate_NoHistory(t *testing.T) {
	p := NewPlayerProfile("p1")
	if got := p.SuccessRate(); got != 0.5 {
		t.Errorf("fresh profile success rate = %v, want 0.5", got)
	}
}

func TestPlayerProfile_RecordOutcome(t *testing.T) {
	p := NewPlayerProfile("p1")
	p.RecordOutcome(true)
	p.RecordOutcome(true)
	p.RecordOutcome(false)
	if p.Attempts() != 3 {
		t.Errorf("attempts = %d, want 3", p.Attempts())
	}
	want := 2.0 / 3.0
	if got := p.SuccessRate(); got != want {
		t.Errorf("success rate = %v, want %v", got, want)
	}
}

func TestPlayerProfile_Clone_Isolated(t *testing.T) {
	p := NewPlayerProfile("p1")
	p.AdjustRelationship("marlowe", 10)
	cp := p.Clone()
	cp.AdjustRelationship("marlowe", 30)
	if p.Relationships["marlowe"] != 60 {
		t.Errorf("original relationship mutated through clone: %d", p.Relationships["marlowe"])
	}
}

// =============================================================================
// Scene State Tests
// =============================================================================

func TestSceneState_Compact_Deterministic(t *testing.T) {
	s := NewSceneState("vault")
	s.SetNumber("pressure", 3)
	s.SetText("alarm", "armed")
	s.SetNumber("doors_open", 1)

	first := s.Compact()
	second := s.Compact()
	if first != second {
		t.Errorf("compact output unstable: %q vs %q", first, second)
	}
	if !strings.Contains(first, "pressure=3") || !strings.Contains(first, "alarm=armed") {
		t.Errorf("compact output missing variables: %q", first)
	}
}

// =============================================================================
// Transcript Tests
// =============================================================================

func TestTranscript_Render_Tail(t *testing.T) {
	var tr Transcript
	tr.Append(1, RolePlayer, "hello")
	tr.Append(1, RolePartner, "who's there")
	tr.Append(2, RolePlayer, "just me")

	out := tr.Render(2)
	if strings.Contains(out, "hello") {
		t.Errorf("render included entry beyond tail: %q", out)
	}
	if !strings.Contains(out, "Partner: who's there") {
		t.Errorf("render missing role prefix: %q", out)
	}
}

// =============================================================================
// Decision Parsing Tests
// =============================================================================

func TestParseDecision_Known(t *testing.T) {
	for _, d := range []Decision{DecideContinue, DecideSpawnEvent, DecideAdjustBehavior, DecideGiveHint} {
		parsed, err := ParseDecision(d.String())
		if err != nil {
			t.Fatalf("ParseDecision(%q) failed: %v", d.String(), err)
		}
		if parsed != d {
			t.Errorf("round trip changed %v to %v", d, parsed)
		}
	}
}

func TestParseDecision_Unknown(t *testing.T) {
	if _, err := ParseDecision("escalate"); err == nil {
		t.Error("expected error for unknown decision, got nil")
	}
}

func TestInterventions_ExcludesContinue(t *testing.T) {
	for _, d := range Interventions() {
		if d == DecideContinue {
			t.Error("continue listed as an intervention")
		}
	}
	if len(Interventions()) != 3 {
		t.Errorf("intervention count = %d, want 3", len(Interventions()))
	}
}
