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

import "time"

// Trait score bounds. Every behavioral scalar lives in [TraitMin, TraitMax].
const (
	TraitMin = 0
	TraitMax = 100
)

// TraitNeutral is the starting score for a fresh profile.
const TraitNeutral = 50

// PlayerProfile is the durable behavioral record of one player. It is
// mutated only by the owning session's turn task and persisted at scene and
// session boundaries, never mid-turn.
type PlayerProfile struct {
	PlayerID string `json:"player_id"`

	// Behavioral scalars, each bounded to [0, 100].
	Impulsiveness  int `json:"impulsiveness"`
	Patience       int `json:"patience"`
	Cooperation    int `json:"cooperation"`
	ProblemSolving int `json:"problem_solving"`

	// Relationships maps character IDs to affinity scores in [0, 100].
	Relationships map[string]int `json:"relationships"`

	// Historical outcome counts across all scenes.
	Successes int `json:"successes"`
	Failures  int `json:"failures"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlayerProfile returns a profile with every trait at neutral.
func NewPlayerProfile(playerID string) *PlayerProfile {
	return &PlayerProfile{
		PlayerID:       playerID,
		Impulsiveness:  TraitNeutral,
		Patience:       TraitNeutral,
		Cooperation:    TraitNeutral,
		ProblemSolving: TraitNeutral,
		Relationships:  make(map[string]int),
		UpdatedAt:      time.Now(),
	}
}

func clampTrait(v int) int {
	if v < TraitMin {
		return TraitMin
	}
	if v > TraitMax {
		return TraitMax
	}
	return v
}

// AdjustTrait shifts a named trait by delta, clamped to bounds. Unknown
// trait names are ignored so stale scene content cannot corrupt a profile.
func (p *PlayerProfile) AdjustTrait(name string, delta int) bool {
	switch name {
	case "impulsiveness":
		p.Impulsiveness = clampTrait(p.Impulsiveness + delta)
	case "patience":
		p.Patience = clampTrait(p.Patience + delta)
	case "cooperation":
		p.Cooperation = clampTrait(p.Cooperation + delta)
	case "problem_solving":
		p.ProblemSolving = clampTrait(p.ProblemSolving + delta)
	default:
		return false
	}
	p.UpdatedAt = time.Now()
	return true
}

// AdjustRelationship shifts affinity toward one character, clamped to trait
// bounds. Unknown characters start from neutral.
func (p *PlayerProfile) AdjustRelationship(characterID string, delta int) {
	if p.Relationships == nil {
		p.Relationships = make(map[string]int)
	}
	cur, ok := p.Relationships[characterID]
	if !ok {
		cur = TraitNeutral
	}
	p.Relationships[characterID] = clampTrait(cur + delta)
	p.UpdatedAt = time.Now()
}

// RecordOutcome tallies one scene objective result.
func (p *PlayerProfile) RecordOutcome(success bool) {
	if success {
		p.Successes++
	} else {
		p.Failures++
	}
	p.UpdatedAt = time.Now()
}

// Attempts is the total number of recorded outcomes.
func (p *PlayerProfile) Attempts() int {
	return p.Successes + p.Failures
}

// SuccessRate is the fraction of attempts that succeeded. With no history
// it reports 0.5 so the adaptation function stays neutral.
func (p *PlayerProfile) SuccessRate() float64 {
	attempts := p.Attempts()
	if attempts == 0 {
		return 0.5
	}
	return float64(p.Successes) / float64(attempts)
}

// Normalize clamps every trait and relationship into bounds and repairs nil
// maps. Profiles arriving from outside the process pass through here before
// they are stored.
func (p *PlayerProfile) Normalize() {
	p.Impulsiveness = clampTrait(p.Impulsiveness)
	p.Patience = clampTrait(p.Patience)
	p.Cooperation = clampTrait(p.Cooperation)
	p.ProblemSolving = clampTrait(p.ProblemSolving)
	if p.Relationships == nil {
		p.Relationships = make(map[string]int)
	}
	for id, v := range p.Relationships {
		p.Relationships[id] = clampTrait(v)
	}
	if p.Successes < 0 {
		p.Successes = 0
	}
	if p.Failures < 0 {
		p.Failures = 0
	}
}

// Clone returns a deep copy. Handlers serve copies so admin reads never
// alias state owned by a live turn task.
func (p *PlayerProfile) Clone() *PlayerProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Relationships = make(map[string]int, len(p.Relationships))
	for k, v := range p.Relationships {
		cp.Relationships[k] = v
	}
	return &cp
}
