// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package director

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
)

// classifyPromptTemplate keeps the input small: scene state and profile
// only, roughly 150 tokens. The transcript never appears here.
const classifyPromptTemplate = `You are the director of a live improvised scene. You watch the scene
state and the player's behavioral profile and decide whether the scene
needs a push.

Situation:
{{.Summary}}

Interventions available right now:
{{range .Available}}- {{.}}
{{end}}
Prefer continue. Intervene only when the situation clearly calls for it.

Respond with ONLY valid JSON (no markdown, no preamble):
{"decision":"continue|spawn_event|adjust_behavior|give_hint","event":"crisis|help|challenge","behavior":"soften|intensify|redirect","directness":"subtle|direct","reason":"brief"}`

var classifyTemplate = template.Must(template.New("classify").Parse(classifyPromptTemplate))

// directorReply is the wire shape the backend is asked to produce.
type directorReply struct {
	Decision   string `json:"decision"`
	Event      string `json:"event"`
	Behavior   string `json:"behavior"`
	Directness string `json:"directness"`
	Reason     string `json:"reason"`
}

// situationSummary renders scene state and profile into the compact form
// the classification prompt consumes.
func situationSummary(scene *datatypes.SceneState, profile *datatypes.PlayerProfile) string {
	difficulty := ComputeDifficulty(profile.SuccessRate(), profile.Attempts())

	var b strings.Builder
	fmt.Fprintf(&b, "scene: %s\n", scene.Scene)
	if compact := scene.Compact(); compact != "" {
		fmt.Fprintf(&b, "state: %s\n", compact)
	}
	fmt.Fprintf(&b, "traits: impulsiveness=%d patience=%d cooperation=%d problem_solving=%d\n",
		profile.Impulsiveness, profile.Patience, profile.Cooperation, profile.ProblemSolving)
	fmt.Fprintf(&b, "history: %d successes, %d failures\n", profile.Successes, profile.Failures)
	fmt.Fprintf(&b, "hint cadence: %s", difficulty.HintFrequency)
	return b.String()
}

func (d *Director) classify(
	ctx context.Context,
	summary string,
	available []datatypes.Decision,
) (datatypes.DirectorOutcome, error) {
	names := make([]string, 0, len(available))
	for _, kind := range available {
		names = append(names, kind.String())
	}

	var buf bytes.Buffer
	err := classifyTemplate.Execute(&buf, struct {
		Summary   string
		Available []string
	}{Summary: summary, Available: names})
	if err != nil {
		return datatypes.DirectorOutcome{}, fmt.Errorf("build classify prompt: %w", err)
	}

	raw, err := d.generate(ctx, observability.OpDirectorClass, buf.String(), 160)
	if err != nil {
		return datatypes.DirectorOutcome{}, err
	}
	return parseReply(raw)
}

// compose turns a classified intervention into the line or narration the
// player will actually see.
func (d *Director) compose(
	ctx context.Context,
	outcome datatypes.DirectorOutcome,
	summary string,
) (string, error) {
	var instruction string
	switch outcome.Decision {
	case datatypes.DecideSpawnEvent:
		instruction = fmt.Sprintf(
			"Narrate a %s event arriving in the scene, one or two sentences, present tense.",
			outcome.Event.String())
	case datatypes.DecideAdjustBehavior:
		instruction = fmt.Sprintf(
			"Write the scene partner's next line with their demeanor shifted to %s. One or two sentences, in character.",
			outcome.Behavior.String())
	case datatypes.DecideGiveHint:
		if outcome.Directness == datatypes.HintDirect {
			instruction = "Write a direct hint telling the player what to try next. One sentence."
		} else {
			instruction = "Write a subtle in-scene nudge toward the player's objective. One sentence, no meta commentary."
		}
	default:
		return "", fmt.Errorf("no content for decision %q", outcome.Decision.String())
	}

	prompt := fmt.Sprintf("%s\n\nSituation:\n%s\n\nRespond with the line only, no quotes and no preamble.",
		instruction, summary)

	text, err := d.generate(ctx, observability.OpDirectorContent, prompt, 120)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty intervention content")
	}
	return text, nil
}

func (d *Director) generate(ctx context.Context, op observability.Operation, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	temp := float32(0.7)
	if op == observability.OpDirectorClass {
		temp = 0
	}
	start := time.Now()
	raw, err := d.backend.Generate(ctx, prompt, genai.Params{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if m := observability.DefaultMetrics; m != nil {
		m.ObserveBackend(op, time.Since(start).Seconds(), err == nil)
	}
	return raw, err
}

// parseReply maps raw backend output to an outcome. Anything the closed
// enums cannot account for is an error, which the caller treats as a
// continue.
func parseReply(raw string) (datatypes.DirectorOutcome, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return datatypes.DirectorOutcome{}, err
	}

	var reply directorReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return datatypes.DirectorOutcome{}, fmt.Errorf("decode director reply: %w", err)
	}

	decision, err := datatypes.ParseDecision(reply.Decision)
	if err != nil {
		return datatypes.DirectorOutcome{}, err
	}

	outcome := datatypes.DirectorOutcome{Decision: decision, Reason: reply.Reason}
	switch decision {
	case datatypes.DecideSpawnEvent:
		if outcome.Event, err = datatypes.ParseEventKind(reply.Event); err != nil {
			return datatypes.DirectorOutcome{}, err
		}
	case datatypes.DecideAdjustBehavior:
		if outcome.Behavior, err = datatypes.ParseBehaviorKind(reply.Behavior); err != nil {
			return datatypes.DirectorOutcome{}, err
		}
	case datatypes.DecideGiveHint:
		if outcome.Directness, err = datatypes.ParseDirectness(reply.Directness); err != nil {
			return datatypes.DirectorOutcome{}, err
		}
	}
	return outcome, nil
}

// extractJSON finds the first balanced JSON object in text, tolerating
// markdown fences, preambles, and trailing prose.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", errors.New("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if !json.Valid([]byte(candidate)) {
						return "", fmt.Errorf("malformed JSON in response")
					}
					return candidate, nil
				}
			}
		}
	}
	return "", errors.New("unterminated JSON object in response")
}
