// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
)

// clearVoiceEnv neutralizes host environment overrides so tests see
// exactly the values they set. t.Setenv also restores the originals.
func clearVoiceEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"VOICE_ADDR", "VOICE_AUTH_TOKEN", "VOICE_FACTS_PATH", "VOICE_DISCLAIMERS_PATH"} {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// TestDefaultConfig verifies the boot defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != ":12400" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":12400")
	}
	if cfg.Pack.TopK != 5 {
		t.Errorf("Pack.TopK = %d, want 5", cfg.Pack.TopK)
	}
	if cfg.Pack.MaxTokens != 1024 {
		t.Errorf("Pack.MaxTokens = %d, want 1024", cfg.Pack.MaxTokens)
	}
	if cfg.Pack.MaxBytes != 4096 {
		t.Errorf("Pack.MaxBytes = %d, want 4096", cfg.Pack.MaxBytes)
	}
	if !cfg.Store.SyncWrites {
		t.Error("Store.SyncWrites should default to true; transcripts must survive a power cut")
	}
	if cfg.RateLimit.RPS != 25 || cfg.RateLimit.Burst != 50 {
		t.Errorf("RateLimit = %v/%v, want 25/50", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	if cfg.Telemetry.TraceExporter != "none" {
		t.Errorf("Telemetry.TraceExporter = %q, want %q", cfg.Telemetry.TraceExporter, "none")
	}
	if cfg.Telemetry.MetricExporter != "prometheus" {
		t.Errorf("Telemetry.MetricExporter = %q, want %q", cfg.Telemetry.MetricExporter, "prometheus")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

// TestLoadConfig_EmptyPath verifies pure-default loading.
func TestLoadConfig_EmptyPath(t *testing.T) {
	clearVoiceEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") failed: %v", err)
	}

	want := DefaultConfig()
	if cfg.Addr != want.Addr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, want.Addr)
	}
	if cfg.Pack.FactsPath != want.Pack.FactsPath {
		t.Errorf("Pack.FactsPath = %q, want %q", cfg.Pack.FactsPath, want.Pack.FactsPath)
	}
}

// TestLoadConfig_FileOverlay verifies file values override defaults and
// untouched defaults survive.
func TestLoadConfig_FileOverlay(t *testing.T) {
	clearVoiceEnv(t)

	path := writeConfigFile(t, `
addr: "127.0.0.1:9000"
pack:
  facts_path: "/data/packs/facts.ndjson"
  top_k: 7
  watch_reload: true
store:
  in_memory: true
auth:
  token: "file-secret"
rate_limit:
  rps: 0
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "127.0.0.1:9000")
	}
	if cfg.Pack.FactsPath != "/data/packs/facts.ndjson" {
		t.Errorf("Pack.FactsPath = %q, want overlay value", cfg.Pack.FactsPath)
	}
	if cfg.Pack.TopK != 7 {
		t.Errorf("Pack.TopK = %d, want 7", cfg.Pack.TopK)
	}
	if !cfg.Pack.WatchReload {
		t.Error("Pack.WatchReload should be true from the file")
	}
	if !cfg.Store.InMemory {
		t.Error("Store.InMemory should be true from the file")
	}
	if cfg.Auth.Token != "file-secret" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "file-secret")
	}
	if cfg.RateLimit.RPS != 0 {
		t.Errorf("RateLimit.RPS = %v, want 0 (explicitly disabled)", cfg.RateLimit.RPS)
	}

	// Fields the file never mentions keep their defaults.
	if cfg.Pack.MaxBytes != 4096 {
		t.Errorf("Pack.MaxBytes = %d, want default 4096", cfg.Pack.MaxBytes)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, "info")
	}
}

// TestLoadConfig_MissingFile verifies a named-but-absent file errors.
func TestLoadConfig_MissingFile(t *testing.T) {
	clearVoiceEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() should fail for a missing file at a non-empty path")
	}
}

// TestLoadConfig_MalformedYAML verifies parse errors surface.
func TestLoadConfig_MalformedYAML(t *testing.T) {
	clearVoiceEnv(t)

	path := writeConfigFile(t, "addr: [unclosed\n")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig() should fail on malformed YAML")
	}
}

// TestLoadConfig_ValidationFailures verifies out-of-range values are
// rejected.
func TestLoadConfig_ValidationFailures(t *testing.T) {
	clearVoiceEnv(t)

	cases := []struct {
		name    string
		content string
	}{
		{"empty addr", `addr: ""`},
		{"bad log level", "log:\n  level: loud\n"},
		{"top_k too large", "pack:\n  top_k: 1000\n"},
		{"negative rps", "rate_limit:\n  rps: -1\n"},
		{"bad trace exporter", "telemetry:\n  trace_exporter: jaeger\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.content)
			if _, err := LoadConfig(path); err == nil {
				t.Errorf("LoadConfig() should reject %s", tc.name)
			}
		})
	}
}

// TestLoadConfig_EnvOverrides verifies environment wins over the file.
func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearVoiceEnv(t)

	path := writeConfigFile(t, `
addr: "127.0.0.1:9000"
auth:
  token: "file-secret"
`)

	t.Setenv("VOICE_ADDR", "127.0.0.1:9100")
	t.Setenv("VOICE_AUTH_TOKEN", "env-secret")
	t.Setenv("VOICE_FACTS_PATH", "/env/facts.ndjson")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Addr != "127.0.0.1:9100" {
		t.Errorf("Addr = %q, want the env override", cfg.Addr)
	}
	if cfg.Auth.Token != "env-secret" {
		t.Errorf("Auth.Token = %q, want the env override", cfg.Auth.Token)
	}
	if cfg.Pack.FactsPath != "/env/facts.ndjson" {
		t.Errorf("Pack.FactsPath = %q, want the env override", cfg.Pack.FactsPath)
	}
}

// TestRetrievalConfig verifies the pack-to-retrieval mapping.
func TestRetrievalConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pack.FactsPath = "/p/facts.ndjson"
	cfg.Pack.DisclaimersPath = "/p/disclaimers.json"
	cfg.Pack.DisclaimersRequired = true
	cfg.Pack.TopK = 9
	cfg.Pack.MaxTokens = 512
	cfg.Pack.MaxBytes = 2048
	cfg.Pack.AlwaysDisclaimers = []string{"DISC-001"}

	logger := logging.New(logging.Config{Quiet: true})
	rc := cfg.RetrievalConfig(logger)

	if rc.FactsPath != "/p/facts.ndjson" {
		t.Errorf("FactsPath = %q, want mapped value", rc.FactsPath)
	}
	if rc.DisclaimersPath != "/p/disclaimers.json" {
		t.Errorf("DisclaimersPath = %q, want mapped value", rc.DisclaimersPath)
	}
	if !rc.DisclaimersRequired {
		t.Error("DisclaimersRequired should carry through")
	}
	if rc.TopK != 9 || rc.MaxTokens != 512 || rc.MaxBytes != 2048 {
		t.Errorf("budget caps = %d/%d/%d, want 9/512/2048", rc.TopK, rc.MaxTokens, rc.MaxBytes)
	}
	if len(rc.Policy.AlwaysInclude) != 1 || rc.Policy.AlwaysInclude[0] != "DISC-001" {
		t.Errorf("Policy.AlwaysInclude = %v, want [DISC-001]", rc.Policy.AlwaysInclude)
	}
	if !rc.Policy.NormalizeByLength {
		t.Error("Policy should start from DefaultPolicy, which normalizes by length")
	}
	if rc.Logger != logger {
		t.Error("Logger should be the one passed in")
	}
}

// TestTranscriptConfig verifies the store-to-transcript mapping.
func TestTranscriptConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = "/var/lib/voice/transcripts"
	cfg.Store.InMemory = false
	cfg.Store.SyncWrites = false

	tc := cfg.TranscriptConfig(logging.New(logging.Config{Quiet: true}))

	if tc.Path != "/var/lib/voice/transcripts" {
		t.Errorf("Path = %q, want mapped value", tc.Path)
	}
	if tc.InMemory {
		t.Error("InMemory should be false")
	}
	if tc.SyncWrites {
		t.Error("SyncWrites should carry the explicit false")
	}
	if tc.GCInterval <= 0 {
		t.Error("GCInterval should keep the transcript default")
	}
}

// TestPlayerConfig verifies the playback mapping and its zero-value
// fallback.
func TestPlayerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Playback.QueueDepth = 0
	cfg.Playback.Pace = true

	pc := cfg.PlayerConfig()
	if pc.QueueDepth != 32 {
		t.Errorf("QueueDepth = %d, want playback default 32", pc.QueueDepth)
	}
	if !pc.Pace {
		t.Error("Pace should carry through")
	}

	cfg.Playback.QueueDepth = 8
	pc = cfg.PlayerConfig()
	if pc.QueueDepth != 8 {
		t.Errorf("QueueDepth = %d, want 8", pc.QueueDepth)
	}
}
