// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the stage server configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, then
// PROSCENIUM_* environment variables. A missing file is only an error when
// a path was given explicitly.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/delivery"
	"github.com/ProsceniumAI/Proscenium/services/stage/director"
	"github.com/ProsceniumAI/Proscenium/services/stage/session"
)

// envPrefix namespaces every environment override.
const envPrefix = "PROSCENIUM_"

// Duration wraps time.Duration so YAML can carry human-readable values
// like "20s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full stage server configuration.
type Config struct {
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Backend    Backend    `yaml:"backend"`
	Session    Session    `yaml:"session"`
	Content    Content    `yaml:"content"`
	Profiles   Profiles   `yaml:"profiles"`
	Archive    Archive    `yaml:"archive"`
	Timeseries Timeseries `yaml:"timeseries"`
}

// Server is the HTTP listener section.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// Addr renders the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Logging selects log level, format, and an optional JSON file sink.
type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	File   string `yaml:"file"`
}

// Telemetry controls the OpenTelemetry tracer.
type Telemetry struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Backend selects and tunes the generative backend.
type Backend struct {
	Type      string  `yaml:"type" validate:"omitempty,oneof=openai ollama scripted"`
	Model     string  `yaml:"model"`
	BaseURL   string  `yaml:"base_url"`
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	RateBurst int     `yaml:"rate_burst" validate:"min=0"`
}

// Session tunes per-session behavior.
type Session struct {
	TurnTimeout      Duration `yaml:"turn_timeout"`
	PredicateTimeout Duration `yaml:"predicate_timeout"`
	TranscriptWindow int      `yaml:"transcript_window" validate:"min=0"`
	PredicateWindow  int      `yaml:"predicate_window" validate:"min=0"`
	Delivery         Delivery `yaml:"delivery"`
	Director         Director `yaml:"director"`
}

// Delivery is the outbound pacing section.
type Delivery struct {
	MinGap         Duration `yaml:"min_gap"`
	DeliverTimeout Duration `yaml:"deliver_timeout"`
}

// Director is the intervention pacing section.
type Director struct {
	SpawnCooldown  int      `yaml:"spawn_cooldown" validate:"min=0"`
	AdjustCooldown int      `yaml:"adjust_cooldown" validate:"min=0"`
	HintCooldown   int      `yaml:"hint_cooldown" validate:"min=0"`
	Timeout        Duration `yaml:"timeout"`
}

// Content points at the scene pack directory.
type Content struct {
	Dir       string `yaml:"dir"`
	HotReload bool   `yaml:"hot_reload"`
}

// Profiles is the player profile store section.
type Profiles struct {
	Dir        string `yaml:"dir"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// Archive configures the optional session archive. An empty URL means
// lightweight mode: sessions are not archived.
type Archive struct {
	WeaviateURL string `yaml:"weaviate_url"`
}

// Timeseries configures the optional turn analytics recorder. An empty URL
// disables it.
type Timeseries struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  Server{Host: "0.0.0.0", Port: 12300},
		Logging: Logging{Level: "info", Format: "json"},
		Backend: Backend{Type: genai.TypeScripted, RateLimit: 5, RateBurst: 10},
		Session: Session{
			TurnTimeout:      Duration(20 * time.Second),
			PredicateTimeout: Duration(10 * time.Second),
			TranscriptWindow: 12,
			PredicateWindow:  40,
			Delivery: Delivery{
				MinGap:         Duration(2 * time.Second),
				DeliverTimeout: Duration(5 * time.Second),
			},
			Director: Director{
				SpawnCooldown:  5,
				AdjustCooldown: 3,
				HintCooldown:   4,
				Timeout:        Duration(10 * time.Second),
			},
		},
		Content:    Content{Dir: "./content", HotReload: true},
		Profiles:   Profiles{Dir: "./data/profiles", SyncWrites: true},
		Timeseries: Timeseries{Org: "proscenium", Bucket: "stage"},
	}
}

var configValidate = validator.New()

// Load reads the configuration at path, applies environment overrides, and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration against its tags.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		name   string
		target *string
	}{
		{"HOST", &cfg.Server.Host},
		{"BACKEND_TYPE", &cfg.Backend.Type},
		{"BACKEND_MODEL", &cfg.Backend.Model},
		{"BACKEND_URL", &cfg.Backend.BaseURL},
		{"CONTENT_DIR", &cfg.Content.Dir},
		{"PROFILE_DIR", &cfg.Profiles.Dir},
		{"WEAVIATE_URL", &cfg.Archive.WeaviateURL},
		{"INFLUX_URL", &cfg.Timeseries.URL},
		{"INFLUX_TOKEN", &cfg.Timeseries.Token},
		{"INFLUX_ORG", &cfg.Timeseries.Org},
		{"INFLUX_BUCKET", &cfg.Timeseries.Bucket},
		{"OTEL_ENDPOINT", &cfg.Telemetry.OTLPEndpoint},
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"LOG_FORMAT", &cfg.Logging.Format},
	}
	for _, o := range overrides {
		if v := os.Getenv(envPrefix + o.name); v != "" {
			*o.target = v
		}
	}

	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("ignoring non-numeric port override",
				"value", v,
			)
		} else {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(envPrefix + "TELEMETRY"); v != "" {
		cfg.Telemetry.Enabled = v == "1" || v == "true"
	}
}

// SessionConfig folds the session section into its runtime form.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		TurnTimeout:      c.Session.TurnTimeout.Std(),
		PredicateTimeout: c.Session.PredicateTimeout.Std(),
		TranscriptWindow: c.Session.TranscriptWindow,
		PredicateWindow:  c.Session.PredicateWindow,
		Delivery: delivery.Config{
			MinGap:         c.Session.Delivery.MinGap.Std(),
			DeliverTimeout: c.Session.Delivery.DeliverTimeout.Std(),
		},
		Director: director.Config{
			SpawnCooldown:  c.Session.Director.SpawnCooldown,
			AdjustCooldown: c.Session.Director.AdjustCooldown,
			HintCooldown:   c.Session.Director.HintCooldown,
			Timeout:        c.Session.Director.Timeout.Std(),
		},
	}
}

// BackendConfig folds the backend section into its genai form.
func (c Config) BackendConfig() genai.Config {
	return genai.Config{
		Type:      c.Backend.Type,
		Model:     c.Backend.Model,
		BaseURL:   c.Backend.BaseURL,
		RateLimit: c.Backend.RateLimit,
		RateBurst: c.Backend.RateBurst,
	}
}
