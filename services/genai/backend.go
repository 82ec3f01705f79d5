// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package genai wraps the generative text backends the stage can talk to.
//
// The stage treats the backend as a black box: a prompt goes in, text comes
// out, the call may take seconds and may fail. Callers bound every call
// with a context deadline and never retry here; retry policy belongs to the
// orchestration layer that knows whether a result is still wanted.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Params tunes one generation call. Nil fields keep backend defaults.
type Params struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Backend is the standard interface for any generative text backend.
type Backend interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// ErrEmptyResponse is returned when a backend answers without content.
var ErrEmptyResponse = errors.New("backend returned no content")

// Backend type names accepted by New.
const (
	TypeOpenAI   = "openai"
	TypeOllama   = "ollama"
	TypeScripted = "scripted"
)

// Config selects and tunes a backend.
type Config struct {
	// Type is one of openai, ollama, scripted.
	Type string

	// Model names the model for openai and ollama backends.
	Model string

	// BaseURL points at the ollama server.
	BaseURL string

	// Script holds the canned rules for the scripted backend.
	Script []ScriptRule

	// RateLimit caps backend calls per second; zero disables the limiter.
	RateLimit float64

	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int
}

// New builds the configured backend, wrapped with a rate limiter when one
// is configured.
func New(cfg Config) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(cfg.Type) {
	case TypeOpenAI:
		backend, err = NewOpenAIBackend(cfg.Model)
	case TypeOllama:
		backend, err = NewOllamaBackend(cfg.BaseURL, cfg.Model)
	case TypeScripted, "":
		backend = NewScriptedBackend(cfg.Script)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		backend = NewRateLimited(backend, cfg.RateLimit, cfg.RateBurst)
	}
	return backend, nil
}
