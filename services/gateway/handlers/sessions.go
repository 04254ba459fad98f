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

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianVoice/services/gateway/middleware"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
	"github.com/gin-gonic/gin"
)

// ListSessions handles GET /v1/sessions.
func ListSessions(store *transcript.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := store.ListSessions(c.Request.Context())
		if err != nil {
			slog.Error("failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
	}
}

// CreateSession handles POST /v1/sessions.
func CreateSession(store *transcript.Store, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateSessionRequest
		// Body is optional; an empty POST creates an untitled session.
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
				return
			}
			if err := req.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
				return
			}
		}

		ctx := c.Request.Context()
		session, err := store.CreateSession(ctx, req.Topic)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		logAudit(c, audit, extensions.AuditEvent{
			EventType:    "session.create",
			UserID:       middleware.UserID(c),
			Action:       "create",
			ResourceType: "session",
			ResourceID:   session.ID,
			Outcome:      "success",
		})

		c.JSON(http.StatusCreated, session)
	}
}

// GetSession handles GET /v1/sessions/:sessionId.
//
// Returns the session row plus all its transcript entries in order.
func GetSession(store *transcript.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		ctx := c.Request.Context()

		session, err := store.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, transcript.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("failed to read session", "error", err, "session_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
			return
		}

		entries, err := store.ListEntries(ctx, id)
		if err != nil {
			slog.Error("failed to list session entries", "error", err, "session_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entries"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"session": session, "entries": entries})
	}
}

// DeleteSession handles DELETE /v1/sessions/:sessionId.
func DeleteSession(store *transcript.Store, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		ctx := c.Request.Context()

		err := store.DeleteSession(ctx, id)
		if err != nil {
			if errors.Is(err, transcript.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("failed to delete session", "error", err, "session_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}

		logAudit(c, audit, extensions.AuditEvent{
			EventType:    "session.delete",
			UserID:       middleware.UserID(c),
			Action:       "delete",
			ResourceType: "session",
			ResourceID:   id,
			Outcome:      "success",
		})

		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}

// AppendEntry handles POST /v1/sessions/:sessionId/entries.
func AppendEntry(store *transcript.Store, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")

		var req datatypes.AppendEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		entry, err := store.AppendEntry(ctx, id, req.Role, req.Text)
		if err != nil {
			switch {
			case errors.Is(err, transcript.ErrSessionNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			case errors.Is(err, transcript.ErrInvalidEntry):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				slog.Error("failed to append entry", "error", err, "session_id", id)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append entry"})
			}
			return
		}

		logAudit(c, audit, extensions.AuditEvent{
			EventType:    "transcript.commit",
			UserID:       middleware.UserID(c),
			Action:       "create",
			ResourceType: "entry",
			ResourceID:   entry.Digest,
			Outcome:      "success",
			Metadata: map[string]any{
				"session_id": id,
				"seq":        entry.Seq,
			},
		})

		c.JSON(http.StatusCreated, entry)
	}
}

// VerifySession handles POST /v1/sessions/:sessionId/verify.
//
// Recomputes the digest chain over the session's entries. A broken chain
// is a 200 with intact=false, not an error status: the request itself
// succeeded, the finding is the payload.
func VerifySession(store *transcript.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		ctx := c.Request.Context()

		n, err := store.Verify(ctx, id)
		if err != nil {
			if errors.Is(err, transcript.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			if errors.Is(err, transcript.ErrChainBroken) {
				c.JSON(http.StatusOK, datatypes.VerifyResponse{
					SessionID: id,
					Entries:   n,
					Intact:    false,
					Error:     err.Error(),
				})
				return
			}
			slog.Error("failed to verify session", "error", err, "session_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify session"})
			return
		}

		c.JSON(http.StatusOK, datatypes.VerifyResponse{
			SessionID: id,
			Entries:   n,
			Intact:    true,
		})
	}
}

// logAudit records an audit event, logging a warning when the trail
// itself fails. Handlers never fail a request over a lost audit row.
func logAudit(c *gin.Context, audit extensions.AuditLogger, event extensions.AuditEvent) {
	if err := audit.Log(c.Request.Context(), event); err != nil {
		slog.Warn("failed to record audit event", "error", err, "event_type", event.EventType)
	}
}
