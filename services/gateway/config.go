// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway assembles the appliance's serving surface: the gin
// router, its middleware, and the lifecycle of everything that has to
// run alongside the HTTP server (pack watcher, playback pump, graceful
// shutdown).
//
// Configuration is explicit: LoadConfig returns a value that the caller
// hands to Run together with constructed dependencies. There is no
// package-level config singleton and nothing in this package reads
// config behind the caller's back.
package gateway

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/AleutianAI/AleutianVoice/services/playback"
	"github.com/AleutianAI/AleutianVoice/services/reflex"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the complete gateway configuration, loadable from YAML.
type Config struct {
	// Addr is the listen address, e.g. ":12400" or "127.0.0.1:12400".
	Addr string `yaml:"addr" validate:"required"`

	Pack      PackConfig      `yaml:"pack"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Reflex    ReflexConfig    `yaml:"reflex"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// PackConfig locates the knowledge pack and sets retrieval defaults.
type PackConfig struct {
	// FactsPath is the NDJSON facts file. Required; a gateway without
	// facts has nothing to serve.
	FactsPath string `yaml:"facts_path" validate:"required"`

	// DisclaimersPath is the optional disclaimers JSON document.
	DisclaimersPath string `yaml:"disclaimers_path"`

	// DisclaimersRequired promotes disclaimer load problems to fatal.
	DisclaimersRequired bool `yaml:"disclaimers_required"`

	// TopK, MaxTokens, and MaxBytes are the server-side retrieval
	// defaults used when a request leaves its caps at zero.
	TopK      int `yaml:"top_k" validate:"gte=0,lte=100"`
	MaxTokens int `yaml:"max_tokens" validate:"gte=0"`
	MaxBytes  int `yaml:"max_bytes" validate:"gte=0"`

	// AlwaysDisclaimers lists disclaimer ids attached to every
	// retrieval regardless of topic.
	AlwaysDisclaimers []string `yaml:"always_disclaimers"`

	// WatchReload enables the fsnotify watcher that hot-reloads the
	// pack when its files change on disk.
	WatchReload bool `yaml:"watch_reload"`

	// ReloadDebounceMs collapses bursts of file events into one reload.
	ReloadDebounceMs int `yaml:"reload_debounce_ms" validate:"gte=0"`
}

// StoreConfig controls the transcript store.
type StoreConfig struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string `yaml:"path"`

	// InMemory runs the store without persistence (tests, demos).
	InMemory bool `yaml:"in_memory"`

	// SyncWrites makes every commit durable before acknowledging.
	SyncWrites bool `yaml:"sync_writes"`

	// Disabled runs the gateway retrieval-only, without sessions,
	// transcripts, or a durable audit trail.
	Disabled bool `yaml:"disabled"`
}

// AuthConfig selects the authentication mode.
type AuthConfig struct {
	// Token enables static bearer-token auth when non-empty. The
	// VOICE_AUTH_TOKEN environment variable overrides this field so the
	// secret can stay out of config files.
	Token string `yaml:"token"`
}

// RateLimitConfig bounds per-client request rates. Zero RPS disables
// limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

// ReflexConfig customizes the acknowledgement phrase set.
type ReflexConfig struct {
	// Seed fixes the phrase sequence for reproducible demos. Zero
	// seeds from the clock.
	Seed int64 `yaml:"seed"`

	// Phrases overrides the built-in set when non-empty.
	Phrases []reflex.Phrase `yaml:"phrases"`
}

// PlaybackConfig tunes the playback queue.
type PlaybackConfig struct {
	// QueueDepth bounds buffered audio. Zero uses the playback default.
	QueueDepth int `yaml:"queue_depth" validate:"gte=0"`

	// Pace holds each buffer for its audio duration, simulating a real
	// output device when no sink hardware is attached.
	Pace bool `yaml:"pace"`

	// Disabled runs the gateway without the playback pipeline.
	Disabled bool `yaml:"disabled"`
}

// TelemetryConfig selects exporters for traces and metrics.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Environment    string `yaml:"environment"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// =============================================================================
// Loading
// =============================================================================

// configValidate is the validator instance for gateway configuration.
var configValidate = validator.New()

// DefaultConfig returns the configuration a bare appliance boots with.
func DefaultConfig() Config {
	return Config{
		Addr: ":12400",
		Pack: PackConfig{
			FactsPath:        "testdata/nextgen/facts.ndjson",
			DisclaimersPath:  "testdata/nextgen/disclaimers.json",
			TopK:             5,
			MaxTokens:        1024,
			MaxBytes:         4096,
			ReloadDebounceMs: 500,
		},
		Store: StoreConfig{
			Path:       "~/.aleutian/voice/transcripts",
			SyncWrites: true,
		},
		RateLimit: RateLimitConfig{
			RPS:   25,
			Burst: 50,
		},
		Playback: PlaybackConfig{
			Pace: true,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults.
//
// # Description
//
// Starts from DefaultConfig, overlays the file when path is non-empty,
// applies environment overrides, and validates. A missing file at a
// non-empty path is an error; pass "" to run on pure defaults.
//
// # Environment Overrides
//
//   - VOICE_ADDR: listen address
//   - VOICE_AUTH_TOKEN: static bearer token
//   - VOICE_FACTS_PATH / VOICE_DISCLAIMERS_PATH: pack file locations
//
// # Outputs
//
//   - Config: Validated configuration.
//   - error: Unreadable file, bad YAML, or failed validation.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse the config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := configValidate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// Mapping Helpers
// =============================================================================

// RetrievalConfig maps the pack section onto the retrieval service's
// configuration.
func (c Config) RetrievalConfig(logger *logging.Logger) retrieval.Config {
	pol := retrieval.DefaultPolicy()
	pol.AlwaysInclude = c.Pack.AlwaysDisclaimers
	return retrieval.Config{
		FactsPath:           c.Pack.FactsPath,
		DisclaimersPath:     c.Pack.DisclaimersPath,
		DisclaimersRequired: c.Pack.DisclaimersRequired,
		TopK:                c.Pack.TopK,
		MaxTokens:           c.Pack.MaxTokens,
		MaxBytes:            c.Pack.MaxBytes,
		Policy:              pol,
		Logger:              logger,
	}
}

// TranscriptConfig maps the store section onto the transcript store's
// configuration. Call only when the store is not disabled.
func (c Config) TranscriptConfig(logger *logging.Logger) transcript.Config {
	tc := transcript.DefaultConfig()
	tc.Path = c.Store.Path
	tc.InMemory = c.Store.InMemory
	tc.SyncWrites = c.Store.SyncWrites
	tc.Logger = logger
	return tc
}

// PlayerConfig maps the playback section onto the player's
// configuration.
func (c Config) PlayerConfig() playback.PlayerConfig {
	pc := playback.DefaultPlayerConfig()
	if c.Playback.QueueDepth > 0 {
		pc.QueueDepth = c.Playback.QueueDepth
	}
	pc.Pace = c.Playback.Pace
	return pc
}

// applyEnvOverrides lets deployment environments override file values.
// Secrets in particular should arrive this way, not via YAML on disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("VOICE_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("VOICE_FACTS_PATH"); v != "" {
		cfg.Pack.FactsPath = v
	}
	if v := os.Getenv("VOICE_DISCLAIMERS_PATH"); v != "" {
		cfg.Pack.DisclaimersPath = v
	}
}
