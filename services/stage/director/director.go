// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package director decides when the scene itself should push back.
//
// # Description
//
// After each player turn the director looks at the scene state and the
// player's behavioral profile and picks one of four moves: let the scene
// continue, spawn an event, shift the partner's demeanor, or surface a
// hint. Every intervention kind carries a cooldown measured in player
// actions, so the scene cannot be hijacked by a chatty model. When every
// kind is cooling down the director returns immediately without touching
// the backend.
//
// # Failure Handling
//
// The director is an enhancement layer. Backend errors, unparsable
// classifications, and hallucinated intervention kinds all collapse to a
// quiet continue; they are logged and never surface to the player or break
// the turn that invoked them.
//
// # Thread Safety
//
// A Director belongs to one session and is driven from that session's turn
// task. The cooldown ledger is still mutex-guarded so admin surfaces can
// read it concurrently.
package director

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
)

// Config tunes intervention pacing. Cooldowns are counted in player
// actions, not wall time: a player who walks away mid-scene should not come
// back to a stockpile of earned interventions.
type Config struct {
	// SpawnCooldown is the number of player actions between spawned events.
	SpawnCooldown int `yaml:"spawn_cooldown"`

	// AdjustCooldown is the number of player actions between partner
	// demeanor shifts.
	AdjustCooldown int `yaml:"adjust_cooldown"`

	// HintCooldown is the number of player actions between hints.
	HintCooldown int `yaml:"hint_cooldown"`

	// Timeout bounds each backend call made during one step.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the tuning used when the server config is silent.
func DefaultConfig() Config {
	return Config{
		SpawnCooldown:  5,
		AdjustCooldown: 3,
		HintCooldown:   4,
		Timeout:        10 * time.Second,
	}
}

func (c Config) cooldownFor(kind datatypes.Decision) int {
	switch kind {
	case datatypes.DecideSpawnEvent:
		return c.SpawnCooldown
	case datatypes.DecideAdjustBehavior:
		return c.AdjustCooldown
	case datatypes.DecideGiveHint:
		return c.HintCooldown
	default:
		return 0
	}
}

// Enqueuer accepts generated intervention content for paced delivery.
type Enqueuer interface {
	Enqueue(item datatypes.DeliveryItem)
}

// Director owns the per-session intervention state.
type Director struct {
	backend genai.Backend
	cfg     Config

	mu        sync.Mutex
	cooldowns map[datatypes.Decision]int
}

// New builds a director with every intervention immediately available.
func New(backend genai.Backend, cfg Config) *Director {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Director{
		backend:   backend,
		cfg:       cfg,
		cooldowns: make(map[datatypes.Decision]int),
	}
}

// Tick advances the cooldown ledger by one player action. The session calls
// this once per accepted turn, before Step.
func (d *Director) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for kind, remaining := range d.cooldowns {
		if remaining > 0 {
			d.cooldowns[kind] = remaining - 1
		}
	}
}

// Cooldown reports the remaining player actions before kind may fire again.
func (d *Director) Cooldown(kind datatypes.Decision) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cooldowns[kind]
}

// Step runs one director evaluation against the current scene and profile.
//
// # Description
//
//	Builds a compact situation summary, asks the backend to classify it,
//	and on a non-continue decision generates the intervention content and
//	enqueues it as cancellable background material. The transcript is
//	deliberately absent from the summary; the director reacts to state,
//	not to prose.
//
// # Inputs
//
//	ctx - Turn context. Cancellation aborts in-flight backend calls.
//	scene - Current scene state. Must not be nil.
//	profile - Player profile. Must not be nil.
//	out - Destination queue for generated content.
//
// # Outputs
//
//	datatypes.DirectorOutcome - The decision taken, after cooldown
//	enforcement. Failures report as a continue.
func (d *Director) Step(
	ctx context.Context,
	scene *datatypes.SceneState,
	profile *datatypes.PlayerProfile,
	out Enqueuer,
) datatypes.DirectorOutcome {
	available := d.available()
	if len(available) == 0 {
		return d.settle(datatypes.DirectorOutcome{
			Decision: datatypes.DecideContinue,
			Reason:   "all interventions cooling down",
		})
	}

	summary := situationSummary(scene, profile)

	outcome, err := d.classify(ctx, summary, available)
	if err != nil {
		slog.Warn("director classification failed",
			"error", err,
		)
		return d.settle(datatypes.DirectorOutcome{
			Decision: datatypes.DecideContinue,
			Reason:   "classification failed",
		})
	}
	if outcome.Decision == datatypes.DecideContinue {
		return d.settle(outcome)
	}

	// The model may propose a kind that is still cooling down. Force a
	// continue rather than trusting the model over the pacing rules.
	if d.Cooldown(outcome.Decision) > 0 {
		slog.Debug("director proposed intervention on cooldown",
			"decision", outcome.Decision.String(),
			"remaining", d.Cooldown(outcome.Decision),
		)
		return d.settle(datatypes.DirectorOutcome{
			Decision: datatypes.DecideContinue,
			Reason:   "proposed " + outcome.Decision.String() + " on cooldown",
		})
	}

	text, err := d.compose(ctx, outcome, summary)
	if err != nil {
		slog.Warn("director content generation failed",
			"decision", outcome.Decision.String(),
			"error", err,
		)
		return d.settle(datatypes.DirectorOutcome{
			Decision: datatypes.DecideContinue,
			Reason:   "content generation failed",
		})
	}

	item := datatypes.NewLine(text, datatypes.PriorityBackground, true)
	item.Speaker = speakerFor(outcome.Decision)
	out.Enqueue(item)

	d.mu.Lock()
	d.cooldowns[outcome.Decision] = d.cfg.cooldownFor(outcome.Decision)
	d.mu.Unlock()

	slog.Info("director intervened",
		"decision", outcome.Decision.String(),
		"reason", outcome.Reason,
	)
	return d.settle(outcome)
}

// available lists intervention kinds currently off cooldown, in a fixed
// order so the classification prompt is deterministic.
func (d *Director) available() []datatypes.Decision {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kinds []datatypes.Decision
	for _, kind := range datatypes.Interventions() {
		if d.cooldowns[kind] == 0 {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func (d *Director) settle(outcome datatypes.DirectorOutcome) datatypes.DirectorOutcome {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordDirectorOutcome(outcome.Decision.String())
	}
	return outcome
}

// speakerFor maps a decision to the voice that delivers its content.
// Behavior adjustments come out of the partner's mouth; events and hints
// are stage direction.
func speakerFor(kind datatypes.Decision) string {
	if kind == datatypes.DecideAdjustBehavior {
		return datatypes.RolePartner
	}
	return datatypes.RoleDirector
}
