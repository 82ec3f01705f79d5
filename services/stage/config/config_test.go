// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stage.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 12300 {
		t.Errorf("default port = %d, want 12300", cfg.Server.Port)
	}
	if cfg.Backend.Type != "scripted" {
		t.Errorf("default backend = %q, want scripted", cfg.Backend.Type)
	}
	if got := cfg.Session.TurnTimeout.Std(); got != 20*time.Second {
		t.Errorf("default turn timeout = %v, want 20s", got)
	}
	if cfg.Session.Director.SpawnCooldown != 5 {
		t.Errorf("default spawn cooldown = %d, want 5", cfg.Session.Director.SpawnCooldown)
	}
	if cfg.Content.Dir != "./content" {
		t.Errorf("default content dir = %q", cfg.Content.Dir)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
backend:
  type: ollama
  model: llama3
  base_url: http://localhost:11434
session:
  turn_timeout: 45s
  delivery:
    min_gap: 500ms
  director:
    spawn_cooldown: 8
profiles:
  in_memory: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Backend.Type != "ollama" || cfg.Backend.Model != "llama3" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if got := cfg.Session.TurnTimeout.Std(); got != 45*time.Second {
		t.Errorf("turn timeout = %v, want 45s", got)
	}
	if got := cfg.Session.Delivery.MinGap.Std(); got != 500*time.Millisecond {
		t.Errorf("min gap = %v, want 500ms", got)
	}
	if cfg.Session.Director.SpawnCooldown != 8 {
		t.Errorf("spawn cooldown = %d, want 8", cfg.Session.Director.SpawnCooldown)
	}
	if !cfg.Profiles.InMemory {
		t.Error("in_memory not set")
	}

	// Keys absent from the file keep their defaults.
	if got := cfg.Session.PredicateTimeout.Std(); got != 10*time.Second {
		t.Errorf("predicate timeout = %v, want default 10s", got)
	}
	if cfg.Session.Director.AdjustCooldown != 3 {
		t.Errorf("adjust cooldown = %d, want default 3", cfg.Session.Director.AdjustCooldown)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
backend:
  type: ollama
`)
	t.Setenv("PROSCENIUM_PORT", "9100")
	t.Setenv("PROSCENIUM_BACKEND_TYPE", "scripted")
	t.Setenv("PROSCENIUM_WEAVIATE_URL", "http://weaviate:8080")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Backend.Type != "scripted" {
		t.Errorf("backend = %q, want env override scripted", cfg.Backend.Type)
	}
	if cfg.Archive.WeaviateURL != "http://weaviate:8080" {
		t.Errorf("weaviate url = %q", cfg.Archive.WeaviateURL)
	}
}

func TestLoad_BadDurationFails(t *testing.T) {
	path := writeConfig(t, `
session:
  turn_timeout: twenty seconds
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"unknown backend type", "backend:\n  type: psychic\n"},
		{"negative cooldown", "session:\n  director:\n    spawn_cooldown: -1\n"},
		{"bad log level", "logging:\n  level: shouty\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfig_RuntimeConversions(t *testing.T) {
	cfg := Default()
	cfg.Session.TranscriptWindow = 6
	cfg.Backend.Model = "gpt-4o-mini"

	sc := cfg.SessionConfig()
	if sc.TranscriptWindow != 6 {
		t.Errorf("session transcript window = %d", sc.TranscriptWindow)
	}
	if sc.Delivery.MinGap != 2*time.Second {
		t.Errorf("delivery min gap = %v", sc.Delivery.MinGap)
	}
	if sc.Director.HintCooldown != 4 {
		t.Errorf("director hint cooldown = %d", sc.Director.HintCooldown)
	}

	bc := cfg.BackendConfig()
	if bc.Model != "gpt-4o-mini" || bc.RateLimit != 5 || bc.RateBurst != 10 {
		t.Errorf("backend config = %+v", bc)
	}
}
