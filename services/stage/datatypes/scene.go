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
	"sort"
	"strings"
)

// SceneState holds the named variables a scene script reads and writes.
// The orchestration core treats values as opaque; their semantics belong to
// content. Mutation happens only on the owning session's turn task.
type SceneState struct {
	Scene   string             `json:"scene"`
	Numbers map[string]float64 `json:"numbers"`
	Strings map[string]string  `json:"strings"`
}

// NewSceneState returns an empty state for the named scene.
func NewSceneState(scene string) *SceneState {
	return &SceneState{
		Scene:   scene,
		Numbers: make(map[string]float64),
		Strings: make(map[string]string),
	}
}

// Number reads a numeric variable.
func (s *SceneState) Number(name string) (float64, bool) {
	v, ok := s.Numbers[name]
	return v, ok
}

// SetNumber writes a numeric variable.
func (s *SceneState) SetNumber(name string, v float64) {
	if s.Numbers == nil {
		s.Numbers = make(map[string]float64)
	}
	s.Numbers[name] = v
}

// AddNumber shifts a numeric variable by delta, creating it at zero first.
func (s *SceneState) AddNumber(name string, delta float64) {
	if s.Numbers == nil {
		s.Numbers = make(map[string]float64)
	}
	s.Numbers[name] += delta
}

// Text reads a string variable.
func (s *SceneState) Text(name string) (string, bool) {
	v, ok := s.Strings[name]
	return v, ok
}

// SetText writes a string variable.
func (s *SceneState) SetText(name, v string) {
	if s.Strings == nil {
		s.Strings = make(map[string]string)
	}
	s.Strings[name] = v
}

// Compact renders the state as a single sorted "key=value" line. The
// director feeds this to the backend, so the output must stay bounded and
// deterministic for identical states.
func (s *SceneState) Compact() string {
	parts := make([]string, 0, len(s.Numbers)+len(s.Strings))
	for k, v := range s.Numbers {
		parts = append(parts, fmt.Sprintf("%s=%g", k, v))
	}
	for k, v := range s.Strings {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// Clone returns a deep copy for admin reads.
func (s *SceneState) Clone() *SceneState {
	if s == nil {
		return nil
	}
	cp := NewSceneState(s.Scene)
	for k, v := range s.Numbers {
		cp.Numbers[k] = v
	}
	for k, v := range s.Strings {
		cp.Strings[k] = v
	}
	return cp
}
