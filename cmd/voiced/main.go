// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command voiced starts the Aleutian Voice gateway: the knowledge
// retrieval API, the transcript store, and the websocket voice stream,
// served from a single process on the appliance.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/pkg/telemetry"
	"github.com/AleutianAI/AleutianVoice/services/gateway"
	"github.com/AleutianAI/AleutianVoice/services/gateway/handlers"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/AleutianAI/AleutianVoice/services/playback"
	"github.com/AleutianAI/AleutianVoice/services/reflex"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
)

// Version is stamped at build time via -ldflags. The CLI's version
// command compares its own stamp against this one to catch skew.
var Version = "v0.3.0-dev"

func main() {
	configPath := flag.String("config", "",
		"Path to the gateway YAML config. Empty runs on built-in defaults.")
	showVersion := flag.Bool("version", false, "Print the version and exit.")
	flag.Parse()

	if *showVersion {
		log.Printf("voiced %s", Version)
		return
	}

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("FATAL: could not load the configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "gateway",
		JSON:    cfg.Log.JSON,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.ServiceName = "aleutian-voice-gateway"
	telemetryCfg.ServiceVersion = Version
	telemetryCfg.TraceExporter = cfg.Telemetry.TraceExporter
	telemetryCfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.Environment != "" {
		telemetryCfg.Environment = cfg.Telemetry.Environment
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("FATAL: could not initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// The gateway is useless without facts; a bad pack is fatal, not
	// degraded.
	svc := retrieval.New(cfg.RetrievalConfig(logger))
	if err := svc.Load(ctx); err != nil {
		log.Fatalf("FATAL: could not load the knowledge pack: %v", err)
	}

	deps := gateway.Deps{
		Logger:    logger,
		Retrieval: svc,
		Metrics:   observability.New(nil),
		Options:   extensions.DefaultOptions(),
		Version:   Version,
	}

	if cfg.Auth.Token != "" {
		deps.Options = deps.Options.WithAuth(extensions.NewStaticTokenProvider(cfg.Auth.Token))
		slog.Info("static token authentication enabled")
	} else {
		slog.Warn("running without authentication; set auth.token or VOICE_AUTH_TOKEN to protect the API")
	}

	// Everything below the retrieval service degrades instead of
	// failing: a gateway with a broken disk still answers questions.
	if cfg.Store.Disabled {
		slog.Info("transcript store disabled; running retrieval-only")
	} else {
		store, err := transcript.Open(cfg.TranscriptConfig(logger))
		if err != nil {
			slog.Warn("could not open the transcript store; continuing retrieval-only",
				"path", cfg.Store.Path, "error", err)
		} else {
			defer store.Close()
			deps.Store = store
			deps.Options = deps.Options.WithAudit(store)
		}
	}

	phrases := cfg.Reflex.Phrases
	if len(phrases) == 0 {
		phrases = reflex.DefaultPhrases()
	}
	dist, err := reflex.New(phrases)
	if err != nil {
		log.Fatalf("FATAL: invalid reflex phrase configuration: %v", err)
	}
	deps.Responder = reflex.NewResponder(dist, cfg.Reflex.Seed)

	if !cfg.Playback.Disabled {
		// No audio hardware is attached in the container; the null sink
		// plus pacing stands in for the device so queue depth and drain
		// behave like production.
		deps.Player = playback.NewPlayer(playback.NullSink{}, cfg.PlayerConfig(), logger)
	}

	slog.Info("starting the voice gateway",
		"version", Version,
		"addr", cfg.Addr,
		"facts_path", cfg.Pack.FactsPath,
		"watch_reload", cfg.Pack.WatchReload,
		"store_enabled", deps.Store != nil,
	)

	if err := gateway.Run(ctx, cfg, deps); err != nil {
		log.Fatalf("FATAL: gateway failed: %v", err)
	}

	// No utterance fragments outlive the process.
	handlers.PurgeSecureMemory()
	slog.Info("voice gateway stopped")
}
