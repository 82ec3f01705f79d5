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

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.URL != "http://localhost:12300" {
		t.Errorf("default server url = %q", cfg.Server.URL)
	}
}

func TestPathUnderHome(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if filepath.Base(path) != "proscenium.yaml" {
		t.Errorf("unexpected config path %q", path)
	}
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	want := CLIConfig{
		Server: ServerConfig{URL: "http://stage.example:9999"},
		Player: PlayerConfig{ID: "alice", Scene: "noir"},
	}
	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if Global.Server.URL != want.Server.URL {
		t.Error("Save must update Global")
	}

	path, _ := Path()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	var got CLIConfig
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("saved config is not valid yaml: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// Load uses a package-level once, so exercise the internals directly.
	if err := loadInternal(); err != nil {
		t.Fatalf("loadInternal: %v", err)
	}
	path, _ := Path()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if Global.Server.URL == "" {
		t.Error("Global not populated after first-run load")
	}
}
