// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package content loads scene packs: the persona, opening line, state
// seeds, declarative reaction rules, and scene endings that give a session
// something to orchestrate. Packs are YAML files; the library hot-reloads
// them on change so writers can iterate against a running server.
package content

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
)

// Effects are state deltas applied when a rule fires: bounded trait and
// relationship shifts on the profile, numeric shifts on the scene.
type Effects struct {
	Traits        map[string]int     `yaml:"traits"`
	Relationships map[string]int     `yaml:"relationships"`
	Numbers       map[string]float64 `yaml:"numbers"`
}

// Empty reports whether the effects would change nothing.
func (e Effects) Empty() bool {
	return len(e.Traits) == 0 && len(e.Relationships) == 0 && len(e.Numbers) == 0
}

// Rule is one declarative reaction: when its predicate holds against the
// transcript, the rule's effects are applied and its line is enqueued.
type Rule struct {
	// Name identifies the rule in logs and once-tracking. Unique per pack.
	Name string `yaml:"name"`

	// Predicate is the natural-language condition tested against the
	// transcript each turn.
	Predicate string `yaml:"predicate"`

	// Latch pins a true result for the rest of the session.
	Latch bool `yaml:"latch"`

	// Once limits the rule to a single firing per session.
	Once bool `yaml:"once"`

	// Line is the fixed text to deliver. Mutually exclusive with Generate.
	Line string `yaml:"line"`

	// Generate is an instruction for the backend to produce the text.
	// Mutually exclusive with Line.
	Generate string `yaml:"generate"`

	// Speaker defaults to the scene partner.
	Speaker string `yaml:"speaker"`

	// Effects are applied before the line is enqueued. A rule may carry
	// effects alone, with no line at all.
	Effects Effects `yaml:"effects"`

	Priority    datatypes.Priority `yaml:"priority"`
	Cancellable bool               `yaml:"cancellable"`
}

// UnmarshalYAML defaults omitted priorities to background so a terse rule
// cannot accidentally claim the critical tier (the Priority zero value).
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	type rawRule Rule
	raw := rawRule{Priority: datatypes.PriorityBackground}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*r = Rule(raw)
	return nil
}

func (r Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule has no name")
	}
	if r.Predicate == "" {
		return fmt.Errorf("rule %q has no predicate", r.Name)
	}
	if r.Line != "" && r.Generate != "" {
		return fmt.Errorf("rule %q has both line and generate", r.Name)
	}
	if r.Line == "" && r.Generate == "" && r.Effects.Empty() {
		return fmt.Errorf("rule %q does nothing", r.Name)
	}
	return nil
}

// Ending is a scene-terminating condition. The first ending whose
// predicate holds closes the scene and records the outcome on the profile.
type Ending struct {
	Name      string `yaml:"name"`
	Predicate string `yaml:"predicate"`
	Success   bool   `yaml:"success"`
	Line      string `yaml:"line"`
}

func (e Ending) validate() error {
	if e.Name == "" {
		return fmt.Errorf("ending has no name")
	}
	if e.Predicate == "" {
		return fmt.Errorf("ending %q has no predicate", e.Name)
	}
	if e.Line == "" {
		return fmt.Errorf("ending %q has no line", e.Name)
	}
	return nil
}

// StateSeed is the initial scene-variable set.
type StateSeed struct {
	Numbers map[string]float64 `yaml:"numbers"`
	Strings map[string]string  `yaml:"strings"`
}

// Pack is one loadable scene definition.
type Pack struct {
	// Scene is the pack's identity; sessions request packs by this name.
	Scene string `yaml:"scene"`

	// Persona is the system-level character description prepended to every
	// reply generation.
	Persona string `yaml:"persona"`

	// Opening is delivered when a session starts on this scene.
	Opening string `yaml:"opening"`

	State   StateSeed `yaml:"state"`
	Rules   []Rule    `yaml:"rules"`
	Endings []Ending  `yaml:"endings"`
}

// ParsePack decodes and validates one YAML pack.
func ParsePack(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pack: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks structural requirements a session depends on.
func (p *Pack) Validate() error {
	if p.Scene == "" {
		return fmt.Errorf("pack has no scene name")
	}
	if p.Opening == "" {
		return fmt.Errorf("pack %q has no opening", p.Scene)
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if err := r.validate(); err != nil {
			return fmt.Errorf("pack %q: %w", p.Scene, err)
		}
		if seen[r.Name] {
			return fmt.Errorf("pack %q: duplicate rule %q", p.Scene, r.Name)
		}
		seen[r.Name] = true
	}
	for _, e := range p.Endings {
		if err := e.validate(); err != nil {
			return fmt.Errorf("pack %q: %w", p.Scene, err)
		}
	}
	return nil
}

// Seed builds a fresh scene state from the pack's seeds. Each call returns
// independent maps so scene restarts cannot bleed state.
func (p *Pack) Seed() *datatypes.SceneState {
	state := datatypes.NewSceneState(p.Scene)
	for k, v := range p.State.Numbers {
		state.SetNumber(k, v)
	}
	for k, v := range p.State.Strings {
		state.SetText(k, v)
	}
	return state
}

// DefaultPack is the built-in scene used when no library is configured or
// a requested scene is missing. Deliberately content-light.
func DefaultPack() *Pack {
	return &Pack{
		Scene:   "blank_stage",
		Persona: "You are an improv scene partner. Stay in scene, keep replies to a few sentences, and build on whatever the player offers.",
		Opening: "The stage lights come up. Your scene partner looks at you, waiting.",
	}
}
