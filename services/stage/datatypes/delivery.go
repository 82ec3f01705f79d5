// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides shared data structures for the stage service.
//
// This file contains the outbound delivery model: priority tiers and the
// items the delivery queue holds between production and transport.
package datatypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Priority Tiers
// =============================================================================

// Priority orders outbound items. Lower values are delivered first.
//
// # Description
//
// Four tiers cover everything the stage emits:
//   - PriorityCritical: scene breaks and system lines that preempt everything.
//   - PriorityUrgent: time-sensitive content (e.g. the wait signal after a
//     backend failure).
//   - PriorityNormal: direct replies to the player's own utterance.
//   - PriorityBackground: director interventions and ambient reaction lines.
//
// The zero value is PriorityCritical; producers should always set the tier
// explicitly.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityUrgent
	PriorityNormal
	PriorityBackground
)

// NumPriorities is the number of delivery tiers.
const NumPriorities = 4

// String returns the lowercase tier name used on the wire and in metrics.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityUrgent:
		return "urgent"
	case PriorityNormal:
		return "normal"
	case PriorityBackground:
		return "background"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a tier name (as written in scene packs) to a
// Priority. Unknown names are rejected rather than defaulted so a typo in
// content cannot silently promote a line to critical.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "critical":
		return PriorityCritical, nil
	case "urgent":
		return PriorityUrgent, nil
	case "normal":
		return PriorityNormal, nil
	case "background":
		return PriorityBackground, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// UnmarshalYAML decodes a tier name from scene pack YAML.
func (p *Priority) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParsePriority(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML encodes the tier as its lowercase name.
func (p Priority) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// =============================================================================
// Delivery Items
// =============================================================================

// ItemKind distinguishes spoken lines from control signals that ride the
// same delivery path.
type ItemKind int

const (
	// ItemLine is dialogue or narration shown to the player.
	ItemLine ItemKind = iota

	// ItemWaitSignal tells the client the backend stumbled and the player
	// should retry; it carries no text.
	ItemWaitSignal
)

// String returns the wire name of the kind.
func (k ItemKind) String() string {
	switch k {
	case ItemLine:
		return "line"
	case ItemWaitSignal:
		return "wait"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DeliveryItem is one unit of outbound content.
//
// # Description
//
// Items are created by whichever producer decided content must reach the
// player (the turn handler, the director, or a reaction rule) and are owned
// by the delivery queue until delivered or evicted. Cancellable items may be
// displaced by higher-priority arrivals; non-cancellable items (direct
// replies) survive preemption.
//
// # Fields
//
//   - ID: unique item identifier, generated at construction.
//   - Kind: line vs control signal.
//   - Priority: delivery tier.
//   - Cancellable: whether preemption may evict this item.
//   - Speaker: optional character attribution for lines.
//   - Text: the content itself. Empty for signals.
//   - CreatedAt: production time, used for pacing diagnostics.
type DeliveryItem struct {
	ID          string    `json:"id"`
	Kind        ItemKind  `json:"-"`
	Priority    Priority  `json:"priority"`
	Cancellable bool      `json:"cancellable"`
	Speaker     string    `json:"speaker,omitempty"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewLine builds a dialogue item.
func NewLine(text string, priority Priority, cancellable bool) DeliveryItem {
	return DeliveryItem{
		ID:          uuid.New().String(),
		Kind:        ItemLine,
		Priority:    priority,
		Cancellable: cancellable,
		Text:        text,
		CreatedAt:   time.Now(),
	}
}

// NewWaitSignal builds the neutral retry signal sent after a backend
// failure. It rides at urgent priority and is not cancellable so a director
// line can never displace it.
func NewWaitSignal() DeliveryItem {
	return DeliveryItem{
		ID:          uuid.New().String(),
		Kind:        ItemWaitSignal,
		Priority:    PriorityUrgent,
		Cancellable: false,
		CreatedAt:   time.Now(),
	}
}
