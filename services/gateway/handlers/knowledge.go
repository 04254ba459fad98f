// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/pkg/telemetry"
	"github.com/AleutianAI/AleutianVoice/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianVoice/services/gateway/middleware"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/gin-gonic/gin"
)

// RetrieveFacts handles POST /v1/knowledge/retrieve.
//
// # Description
//
// Binds and validates a RetrieveRequest, runs budgeted retrieval, and
// writes the resulting fact pack as the response body. The body is the
// serialized pack itself, with nothing wrapped around it, so the byte
// and token budgets the client asked for hold for the HTTP payload too.
// The request id is echoed in the X-Request-ID header instead.
//
// # Error Mapping
//
//   - invalid body or topic: 400
//   - no pack loaded yet: 503
//   - budget below the empty envelope: 422
//   - anything else: 500
func RetrieveFacts(svc *retrieval.Service, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RetrieveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.RecordError(observability.EndpointRetrieve, observability.ErrorCodeValidation)
			metrics.RecordRequest(observability.EndpointRetrieve, false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			metrics.RecordError(observability.EndpointRetrieve, observability.ErrorCodeValidation)
			metrics.RecordRequest(observability.EndpointRetrieve, false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
			return
		}

		start := time.Now()
		fp, err := svc.RetrieveFactsPack(c.Request.Context(), req.Topic, retrieval.Options{
			TopK:      req.TopK,
			MaxTokens: req.MaxTokens,
			MaxBytes:  req.MaxBytes,
		})
		if err != nil {
			status, code := classifyRetrievalError(err)
			metrics.RecordError(observability.EndpointRetrieve, code)
			metrics.RecordRequest(observability.EndpointRetrieve, false)
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		serialized, err := fp.Serialize()
		if err != nil {
			telemetry.LoggerWithTrace(c.Request.Context(), slog.Default()).
				Error("failed to serialize fact pack", "error", err, "request_id", req.RequestID)
			metrics.RecordError(observability.EndpointRetrieve, observability.ErrorCodeInternal)
			metrics.RecordRequest(observability.EndpointRetrieve, false)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serialize fact pack"})
			return
		}

		metrics.RecordRetrieval(observability.EndpointRetrieve,
			time.Since(start).Seconds(), len(fp.Facts), len(serialized))
		metrics.RecordRequest(observability.EndpointRetrieve, true)

		c.Header("X-Request-ID", req.RequestID)
		c.Data(http.StatusOK, "application/json; charset=utf-8", serialized)
	}
}

// ReloadPack handles POST /v1/knowledge/reload.
//
// Loads a fresh snapshot from the configured pack files and swaps it in.
// On failure the previous snapshot keeps serving and the error is
// reported with 502; an audit event records either outcome.
func ReloadPack(svc *retrieval.Service, metrics *observability.Metrics,
	audit extensions.AuditLogger) gin.HandlerFunc {

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		err := svc.Load(ctx)

		event := extensions.AuditEvent{
			EventType:    "knowledge.reload",
			UserID:       middleware.UserID(c),
			Action:       "update",
			ResourceType: "pack",
			Outcome:      "success",
		}
		if err != nil {
			event.Outcome = "failure"
			event.Metadata = map[string]any{"error": err.Error()}
		}
		if auditErr := audit.Log(ctx, event); auditErr != nil {
			telemetry.LoggerWithTrace(ctx, slog.Default()).
				Warn("failed to record reload audit event", "error", auditErr)
		}

		if err != nil {
			telemetry.LoggerWithTrace(ctx, slog.Default()).
				Error("pack reload failed, previous snapshot keeps serving", "error", err)
			metrics.RecordReload(false)
			metrics.RecordRequest(observability.EndpointReload, false)
			c.JSON(http.StatusBadGateway, gin.H{"error": "reload failed: " + err.Error()})
			return
		}

		stats := svc.Stats()
		metrics.RecordReload(true)
		metrics.RecordRequest(observability.EndpointReload, true)
		c.JSON(http.StatusOK, datatypes.ReloadResponse{
			Status:      "reloaded",
			Facts:       stats.Facts,
			Disclaimers: stats.Disclaimers,
			Diagnostics: stats.Diagnostics,
			LoadedAt:    stats.LoadedAt.UnixMilli(),
		})
	}
}

// KnowledgeStatus handles GET /v1/knowledge/status.
//
// Reports snapshot statistics; serves 200 even before the first load so
// operators can see Ready=false rather than an error.
func KnowledgeStatus(svc *retrieval.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Stats())
	}
}

// classifyRetrievalError maps a retrieval error to an HTTP status and a
// metrics error code.
func classifyRetrievalError(err error) (int, observability.ErrorCode) {
	switch {
	case retrieval.IsValidationError(err):
		return http.StatusBadRequest, observability.ErrorCodeValidation
	case errors.Is(err, retrieval.ErrNotReady):
		return http.StatusServiceUnavailable, observability.ErrorCodeNotReady
	case retrieval.IsBudgetError(err):
		return http.StatusUnprocessableEntity, observability.ErrorCodeBudget
	default:
		return http.StatusInternalServerError, observability.ErrorCodeInternal
	}
}
