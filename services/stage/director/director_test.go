// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package director

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
)

// replayBackend returns scripted replies in order and counts every call.
type replayBackend struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (b *replayBackend) Generate(ctx context.Context, prompt string, params genai.Params) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	if len(b.replies) == 0 {
		return `{"decision":"continue","reason":"nothing queued"}`, nil
	}
	reply := b.replies[0]
	b.replies = b.replies[1:]
	return reply, nil
}

func (b *replayBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type captureEnqueuer struct {
	items []datatypes.DeliveryItem
}

func (c *captureEnqueuer) Enqueue(item datatypes.DeliveryItem) {
	c.items = append(c.items, item)
}

func testScene() *datatypes.SceneState {
	scene := datatypes.NewSceneState("bank_vault")
	scene.SetNumber("pressure", 0.7)
	return scene
}

const (
	spawnReply  = `{"decision":"spawn_event","event":"crisis","reason":"pressure is high"}`
	adjustReply = `{"decision":"adjust_behavior","behavior":"soften","reason":"player is rattled"}`
	hintReply   = `{"decision":"give_hint","directness":"subtle","reason":"player is stuck"}`
)

func TestDirector_SpawnFiresAndEnqueuesBackground(t *testing.T) {
	backend := &replayBackend{replies: []string{spawnReply, "A fire alarm starts blaring overhead."}}
	out := &captureEnqueuer{}
	d := New(backend, DefaultConfig())

	outcome := d.Step(context.Background(), testScene(), datatypes.NewPlayerProfile("p1"), out)

	if outcome.Decision != datatypes.DecideSpawnEvent {
		t.Fatalf("expected spawn_event, got %s", outcome.Decision)
	}
	if outcome.Event != datatypes.EventCrisis {
		t.Fatalf("expected crisis, got %s", outcome.Event)
	}
	if len(out.items) != 1 {
		t.Fatalf("expected 1 enqueued item, got %d", len(out.items))
	}
	item := out.items[0]
	if item.Priority != datatypes.PriorityBackground {
		t.Errorf("intervention must be background priority, got %s", item.Priority)
	}
	if !item.Cancellable {
		t.Error("intervention must be cancellable")
	}
	if item.Speaker != datatypes.RoleDirector {
		t.Errorf("spawn content should be stage direction, got speaker %q", item.Speaker)
	}
	if item.Text != "A fire alarm starts blaring overhead." {
		t.Errorf("unexpected content %q", item.Text)
	}
}

func TestDirector_ResetsOnlyFiredCooldown(t *testing.T) {
	backend := &replayBackend{replies: []string{spawnReply, "An alarm sounds."}}
	d := New(backend, DefaultConfig())

	d.Step(context.Background(), testScene(), datatypes.NewPlayerProfile("p1"), &captureEnqueuer{})

	if got := d.Cooldown(datatypes.DecideSpawnEvent); got != 5 {
		t.Errorf("spawn cooldown should reset to 5, got %d", got)
	}
	if got := d.Cooldown(datatypes.DecideAdjustBehavior); got != 0 {
		t.Errorf("adjust cooldown should be untouched, got %d", got)
	}
	if got := d.Cooldown(datatypes.DecideGiveHint); got != 0 {
		t.Errorf("hint cooldown should be untouched, got %d", got)
	}
}

func TestDirector_ForcesContinueWhenProposedKindCoolingDown(t *testing.T) {
	backend := &replayBackend{replies: []string{
		spawnReply, "An alarm sounds.",
		spawnReply, // proposed again while cooling down
	}}
	out := &captureEnqueuer{}
	d := New(backend, DefaultConfig())
	scene := testScene()
	profile := datatypes.NewPlayerProfile("p1")

	d.Step(context.Background(), scene, profile, out)
	d.Tick()
	outcome := d.Step(context.Background(), scene, profile, out)

	if outcome.Decision != datatypes.DecideContinue {
		t.Fatalf("expected forced continue, got %s", outcome.Decision)
	}
	if len(out.items) != 1 {
		t.Fatalf("forced continue must not enqueue, got %d items", len(out.items))
	}
	if got := d.Cooldown(datatypes.DecideSpawnEvent); got != 4 {
		t.Errorf("forced continue must not touch the cooldown, got %d", got)
	}
}

func TestDirector_AllCoolingDownSkipsBackend(t *testing.T) {
	backend := &replayBackend{replies: []string{
		spawnReply, "An alarm sounds.",
		adjustReply, "Okay. Okay. Let's slow down and think.",
		hintReply, "The clerk keeps glancing at the side door.",
	}}
	out := &captureEnqueuer{}
	d := New(backend, DefaultConfig())
	scene := testScene()
	profile := datatypes.NewPlayerProfile("p1")

	d.Step(context.Background(), scene, profile, out)
	d.Tick()
	d.Step(context.Background(), scene, profile, out)
	d.Tick()
	d.Step(context.Background(), scene, profile, out)
	d.Tick()

	before := backend.callCount()
	outcome := d.Step(context.Background(), scene, profile, out)

	if outcome.Decision != datatypes.DecideContinue {
		t.Fatalf("expected continue while everything cools down, got %s", outcome.Decision)
	}
	if backend.callCount() != before {
		t.Errorf("early exit must not call the backend: %d -> %d", before, backend.callCount())
	}
	if len(out.items) != 3 {
		t.Errorf("expected 3 items from the earlier steps, got %d", len(out.items))
	}
}

func TestDirector_TickRestoresEligibility(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdjustCooldown = 2
	backend := &replayBackend{replies: []string{
		adjustReply, "Fine. Softer, then.",
		adjustReply, "We can talk this through.",
	}}
	out := &captureEnqueuer{}
	d := New(backend, cfg)
	scene := testScene()
	profile := datatypes.NewPlayerProfile("p1")

	d.Step(context.Background(), scene, profile, out)
	d.Tick()
	d.Tick()

	outcome := d.Step(context.Background(), scene, profile, out)
	if outcome.Decision != datatypes.DecideAdjustBehavior {
		t.Fatalf("expected adjust to fire again after cooldown elapsed, got %s", outcome.Decision)
	}
	if len(out.items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(out.items))
	}
	if out.items[1].Speaker != datatypes.RolePartner {
		t.Errorf("behavior adjustment should speak as the partner, got %q", out.items[1].Speaker)
	}
}

func TestDirector_BackendFailureContinuesQuietly(t *testing.T) {
	backend := &replayBackend{err: errors.New("backend down")}
	out := &captureEnqueuer{}
	d := New(backend, DefaultConfig())

	outcome := d.Step(context.Background(), testScene(), datatypes.NewPlayerProfile("p1"), out)

	if outcome.Decision != datatypes.DecideContinue {
		t.Fatalf("backend failure must continue, got %s", outcome.Decision)
	}
	if len(out.items) != 0 {
		t.Error("backend failure must not enqueue")
	}
	if d.Cooldown(datatypes.DecideSpawnEvent) != 0 {
		t.Error("failure must not consume a cooldown")
	}
}

func TestDirector_UnparsableReplyContinues(t *testing.T) {
	backend := &replayBackend{replies: []string{"I think the scene could use a dramatic twist here."}}
	out := &captureEnqueuer{}
	d := New(backend, DefaultConfig())

	outcome := d.Step(context.Background(), testScene(), datatypes.NewPlayerProfile("p1"), out)

	if outcome.Decision != datatypes.DecideContinue {
		t.Fatalf("unparsable reply must continue, got %s", outcome.Decision)
	}
	if len(out.items) != 0 {
		t.Error("unparsable reply must not enqueue")
	}
}

func TestDirector_ContentFailureContinuesWithoutReset(t *testing.T) {
	backend := &replayBackend{replies: []string{hintReply, ""}}
	out := &captureEnqueuer{}
	d := New(backend, DefaultConfig())

	outcome := d.Step(context.Background(), testScene(), datatypes.NewPlayerProfile("p1"), out)

	if outcome.Decision != datatypes.DecideContinue {
		t.Fatalf("empty content must continue, got %s", outcome.Decision)
	}
	if len(out.items) != 0 {
		t.Error("empty content must not enqueue")
	}
	if d.Cooldown(datatypes.DecideGiveHint) != 0 {
		t.Error("unfired hint must not start a cooldown")
	}
}

func TestSituationSummary_CoversSceneAndProfile(t *testing.T) {
	scene := testScene()
	profile := datatypes.NewPlayerProfile("p1")
	profile.Impulsiveness = 72

	summary := situationSummary(scene, profile)

	for _, want := range []string{"bank_vault", "pressure=0.7", "impulsiveness=72", "hint cadence"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestComputeDifficulty_StrugglingPlayer(t *testing.T) {
	got := ComputeDifficulty(0.1, 3)
	if got.Multiplier >= 1.0 {
		t.Errorf("struggling player should ease below 1.0, got %.3f", got.Multiplier)
	}
	if got.HintFrequency != datatypes.HintFrequent {
		t.Errorf("struggling player should get frequent hints, got %s", got.HintFrequency)
	}
}

func TestComputeDifficulty_SkilledPlayer(t *testing.T) {
	got := ComputeDifficulty(0.9, 1)
	if got.Multiplier <= 1.0 {
		t.Errorf("skilled player should stiffen above 1.0, got %.3f", got.Multiplier)
	}
	if got.HintFrequency != datatypes.HintRare {
		t.Errorf("skilled player should get rare hints, got %s", got.HintFrequency)
	}
}

func TestComputeDifficulty_NoHistoryIsNeutral(t *testing.T) {
	got := ComputeDifficulty(0.5, 0)
	if got.Multiplier != 1.0 {
		t.Errorf("no history should leave the multiplier at 1.0, got %.3f", got.Multiplier)
	}
	if got.HintFrequency != datatypes.HintOccasional {
		t.Errorf("expected occasional hints, got %s", got.HintFrequency)
	}
}

func TestComputeDifficulty_ConvergesWithEvidence(t *testing.T) {
	few := ComputeDifficulty(0.0, 1)
	many := ComputeDifficulty(0.0, 20)
	if many.Multiplier >= few.Multiplier {
		t.Errorf("more evidence should pull harder toward the target: %0.3f vs %0.3f",
			many.Multiplier, few.Multiplier)
	}
	if many.Multiplier <= 0.6 {
		t.Errorf("multiplier must stay above the floor, got %.3f", many.Multiplier)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"clean object", `{"decision":"continue"}`, `{"decision":"continue"}`, false},
		{"markdown fence", "```json\n{\"decision\":\"continue\"}\n```", `{"decision":"continue"}`, false},
		{"preamble and postamble", "Sure, here you go:\n{\"decision\":\"continue\"}\nHope that helps!", `{"decision":"continue"}`, false},
		{"braces inside strings", `{"reason":"the {vault} is sealed","decision":"continue"}`, `{"reason":"the {vault} is sealed","decision":"continue"}`, false},
		{"escaped quotes", `{"reason":"she said \"run\"","decision":"continue"}`, `{"reason":"she said \"run\"","decision":"continue"}`, false},
		{"no JSON", "plain prose without structure", "", true},
		{"unterminated", `{"decision":"continue"`, "", true},
		{"malformed", `{decision: continue}`, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSON(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDirector_ContextCancellationAborts(t *testing.T) {
	backend := &replayBackend{replies: []string{spawnReply, "An alarm sounds."}}
	d := New(backend, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Step(ctx, testScene(), datatypes.NewPlayerProfile("p1"), &captureEnqueuer{})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("step did not return promptly under a cancelled context")
	}
}
