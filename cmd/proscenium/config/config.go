// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the proscenium CLI configuration from
// ~/.proscenium/proscenium.yaml, creating a default file on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is the loaded CLI configuration singleton.
	Global CLIConfig
	once   sync.Once
)

// CLIConfig is everything the proscenium CLI remembers between runs.
type CLIConfig struct {
	// Server points at the stage server.
	Server ServerConfig `yaml:"server"`

	// Player carries the defaults used when joining a scene.
	Player PlayerConfig `yaml:"player"`
}

// ServerConfig locates the stage server.
type ServerConfig struct {
	// URL is the HTTP base, e.g. http://localhost:12300.
	URL string `yaml:"url"`
}

// PlayerConfig holds per-player defaults for the console.
type PlayerConfig struct {
	ID    string `yaml:"id,omitempty"`
	Scene string `yaml:"scene,omitempty"`
}

// DefaultConfig returns the first-run configuration.
func DefaultConfig() CLIConfig {
	return CLIConfig{
		Server: ServerConfig{URL: "http://localhost:12300"},
	}
}

// Path returns the config file location under the user's home directory.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".proscenium", "proscenium.yaml"), nil
}

// Load reads the config into Global, creating the default file when none
// exists. Safe to call more than once; only the first call does work.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", path)
		if err := Save(DefaultConfig()); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if Global.Server.URL == "" {
		Global.Server.URL = DefaultConfig().Server.URL
	}
	return nil
}

// Save writes cfg to the config path and updates Global.
func Save(cfg CLIConfig) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	Global = cfg
	return nil
}
