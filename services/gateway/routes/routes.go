// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/pkg/telemetry"
	"github.com/AleutianAI/AleutianVoice/services/gateway/handlers"
	"github.com/AleutianAI/AleutianVoice/services/gateway/middleware"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/AleutianAI/AleutianVoice/services/playback"
	"github.com/AleutianAI/AleutianVoice/services/reflex"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
)

// SetupRoutes registers every gateway endpoint on the router.
//
// svc and metrics are required. store, responder, player, and limiter
// may be nil; routes that depend on a nil collaborator are simply not
// registered, so a gateway without a transcript store runs
// retrieval-only, the same way the appliance degrades when its disk is
// read-only.
func SetupRoutes(router *gin.Engine, svc *retrieval.Service, store *transcript.Store,
	responder *reflex.Responder, player *playback.Player,
	metrics *observability.Metrics, limiter *middleware.RateLimiter,
	opts extensions.ServiceOptions) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.Readiness(svc))

	// Prefer the telemetry-managed handler (set when the prometheus
	// exporter is initialized); fall back to the default gatherer so
	// /metrics always exists.
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	} else {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	if limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(limiter))
	}
	{
		knowledge := v1.Group("/knowledge")
		{
			knowledge.POST("/retrieve", handlers.RetrieveFacts(svc, metrics))
			knowledge.POST("/reload", handlers.ReloadPack(svc, metrics, opts.AuditLogger))
			knowledge.GET("/status", handlers.KnowledgeStatus(svc))
		}

		if responder != nil {
			v1.GET("/reflex/ack", handlers.ReflexAck(responder, metrics))
		}

		// Session administration routes
		if store != nil {
			sessions := v1.Group("/sessions")
			{
				sessions.GET("", handlers.ListSessions(store))
				sessions.POST("", handlers.CreateSession(store, opts.AuditLogger))
				sessions.GET("/:sessionId", handlers.GetSession(store))
				sessions.DELETE("/:sessionId", handlers.DeleteSession(store, opts.AuditLogger))
				sessions.POST("/:sessionId/entries", handlers.AppendEntry(store, opts.AuditLogger))
				sessions.POST("/:sessionId/verify", handlers.VerifySession(store))
			}
			v1.POST("/backups", handlers.HandleBackup(store, opts.AuditLogger))
		}

		if store != nil && player != nil && responder != nil {
			v1.GET("/voice/stream", handlers.HandleVoiceStream(
				svc, store, responder, player, metrics, opts.AuditLogger))
		}
	}
}
