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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/services/gateway/handlers"
	"github.com/AleutianAI/AleutianVoice/services/gateway/middleware"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/gateway/routes"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/AleutianAI/AleutianVoice/services/playback"
	"github.com/AleutianAI/AleutianVoice/services/reflex"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
)

const (
	// serviceName labels otelgin spans for this process.
	serviceName = "aleutian-voice-gateway"

	// readHeaderTimeout bounds how long a client may dribble headers.
	readHeaderTimeout = 5 * time.Second

	// shutdownGrace is how long in-flight requests get to finish after
	// the run context is cancelled.
	shutdownGrace = 10 * time.Second
)

// Deps are the constructed collaborators the gateway serves with. The
// caller builds them; Run never constructs a service behind the
// caller's back.
//
// Retrieval is required. Store, Responder, and Player may be nil, which
// drops the routes that need them (see routes.SetupRoutes). A nil
// Metrics gets a default-registry instance and a nil Logger the process
// default.
type Deps struct {
	Logger    *logging.Logger
	Retrieval *retrieval.Service
	Store     *transcript.Store
	Responder *reflex.Responder
	Player    *playback.Player
	Metrics   *observability.Metrics
	Options   extensions.ServiceOptions

	// Version is the build version surfaced at /version so the CLI can
	// warn about client/server skew. Empty reports as "dev".
	Version string
}

// BuildRouter assembles the gin engine: recovery, tracing, rate
// limiting, and the route table. Tests use this directly to exercise
// the full middleware chain without binding a port.
func BuildRouter(cfg Config, deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	routes.SetupRoutes(router, deps.Retrieval, deps.Store, deps.Responder,
		deps.Player, deps.Metrics, limiter, deps.Options)
	router.GET("/version", handlers.VersionInfo(serviceName, deps.Version))
	return router
}

// Run serves the gateway until ctx is cancelled or the server fails.
//
// # Description
//
// Starts the playback pump and the pack watcher (when configured),
// binds the HTTP server, and blocks. Cancellation triggers a graceful
// shutdown: the listener closes, in-flight requests get shutdownGrace
// to finish, and the auxiliary goroutines drain.
//
// # Inputs
//
//   - ctx: Cancel to stop serving.
//   - cfg: Validated configuration, normally from LoadConfig.
//   - deps: Constructed collaborators. Deps.Retrieval must be non-nil
//     and should already be loaded; Run does not call Load.
//
// # Outputs
//
//   - error: The first failure from the server, watcher, or playback
//     startup. A clean ctx-driven shutdown returns nil.
func Run(ctx context.Context, cfg Config, deps Deps) error {
	if deps.Retrieval == nil {
		return errors.New("gateway requires a retrieval service")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.New(nil)
	}

	router := BuildRouter(cfg, deps)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if deps.Player != nil {
		if err := deps.Player.Start(gctx); err != nil {
			return fmt.Errorf("failed to start the playback pump: %w", err)
		}
		defer deps.Player.Stop()
	}

	if cfg.Pack.WatchReload {
		debounce := time.Duration(cfg.Pack.ReloadDebounceMs) * time.Millisecond
		watcher, err := retrieval.NewWatcher(deps.Retrieval, logger, debounce)
		if err != nil {
			return fmt.Errorf("failed to create the pack watcher: %w", err)
		}
		if err := watcher.Start(gctx); err != nil {
			return fmt.Errorf("failed to start the pack watcher: %w", err)
		}
		defer watcher.Stop()
	}

	g.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("gateway shutting down", "grace", shutdownGrace.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
