// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Director decision types.
//
// Every kind here is a closed enum rather than a free-form string so the
// cooldown bookkeeping and the switch in the director step stay exhaustive.
// Parsers reject unknown values instead of coining new variants at runtime.
package datatypes

import "fmt"

// =============================================================================
// Decisions
// =============================================================================

// Decision is the single outcome of one director evaluation.
type Decision int

const (
	// DecideContinue means no intervention. The default and by far the most
	// common outcome.
	DecideContinue Decision = iota

	// DecideSpawnEvent injects a scene event (crisis, help, or challenge).
	DecideSpawnEvent

	// DecideAdjustBehavior shifts how the scene partner plays subsequent
	// turns; the modifier is merged into later generation context.
	DecideAdjustBehavior

	// DecideGiveHint nudges a stuck player toward the current objective.
	DecideGiveHint
)

// Interventions lists every decision that consumes a cooldown, in a fixed
// order suitable for deterministic iteration.
func Interventions() []Decision {
	return []Decision{DecideSpawnEvent, DecideAdjustBehavior, DecideGiveHint}
}

// String returns the name used in logs, metrics, and backend prompts.
func (d Decision) String() string {
	switch d {
	case DecideContinue:
		return "continue"
	case DecideSpawnEvent:
		return "spawn_event"
	case DecideAdjustBehavior:
		return "adjust_behavior"
	case DecideGiveHint:
		return "give_hint"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ParseDecision maps a backend-proposed outcome name to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "continue":
		return DecideContinue, nil
	case "spawn_event":
		return DecideSpawnEvent, nil
	case "adjust_behavior":
		return DecideAdjustBehavior, nil
	case "give_hint":
		return DecideGiveHint, nil
	default:
		return DecideContinue, fmt.Errorf("unknown decision %q", s)
	}
}

// =============================================================================
// Decision Parameters
// =============================================================================

// EventKind classifies a spawned event.
type EventKind int

const (
	EventCrisis EventKind = iota
	EventHelp
	EventChallenge
)

func (k EventKind) String() string {
	switch k {
	case EventCrisis:
		return "crisis"
	case EventHelp:
		return "help"
	case EventChallenge:
		return "challenge"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ParseEventKind maps a backend-proposed event name to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "crisis":
		return EventCrisis, nil
	case "help":
		return EventHelp, nil
	case "challenge":
		return EventChallenge, nil
	default:
		return EventCrisis, fmt.Errorf("unknown event kind %q", s)
	}
}

// BehaviorKind classifies a behavior adjustment of the scene partner.
type BehaviorKind int

const (
	// BehaviorSoften makes the partner more forgiving and supportive.
	BehaviorSoften BehaviorKind = iota

	// BehaviorIntensify raises stakes and pressure.
	BehaviorIntensify

	// BehaviorRedirect steers the scene back toward its objective.
	BehaviorRedirect
)

func (k BehaviorKind) String() string {
	switch k {
	case BehaviorSoften:
		return "soften"
	case BehaviorIntensify:
		return "intensify"
	case BehaviorRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("behavior(%d)", int(k))
	}
}

// ParseBehaviorKind maps a backend-proposed adjustment name to a BehaviorKind.
func ParseBehaviorKind(s string) (BehaviorKind, error) {
	switch s {
	case "soften":
		return BehaviorSoften, nil
	case "intensify":
		return BehaviorIntensify, nil
	case "redirect":
		return BehaviorRedirect, nil
	default:
		return BehaviorSoften, fmt.Errorf("unknown behavior kind %q", s)
	}
}

// Directness grades how explicit a hint is.
type Directness int

const (
	HintSubtle Directness = iota
	HintDirect
)

func (d Directness) String() string {
	switch d {
	case HintSubtle:
		return "subtle"
	case HintDirect:
		return "direct"
	default:
		return fmt.Sprintf("directness(%d)", int(d))
	}
}

// ParseDirectness maps a backend-proposed directness name to a Directness.
func ParseDirectness(s string) (Directness, error) {
	switch s {
	case "subtle":
		return HintSubtle, nil
	case "direct":
		return HintDirect, nil
	default:
		return HintSubtle, fmt.Errorf("unknown directness %q", s)
	}
}

// DirectorOutcome is one parsed classification result. Only the parameter
// matching Decision is meaningful; the others hold their zero value.
type DirectorOutcome struct {
	Decision   Decision
	Event      EventKind
	Behavior   BehaviorKind
	Directness Directness

	// Reason is the backend's one-line rationale. Logged, never shown to
	// the player.
	Reason string
}

// =============================================================================
// Difficulty
// =============================================================================

// HintFrequency is the adaptation tier consumed by content collaborators.
type HintFrequency string

const (
	HintFrequent   HintFrequency = "frequent"
	HintOccasional HintFrequency = "occasional"
	HintRare       HintFrequency = "rare"
)

// Difficulty is the output of the adaptation function: a penalty multiplier
// applied by content-layer scoring and the recommended hint cadence.
type Difficulty struct {
	Multiplier    float64       `json:"multiplier"`
	HintFrequency HintFrequency `json:"hint_frequency"`
}
