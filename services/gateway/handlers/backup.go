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
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/services/gateway/middleware"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
	"github.com/gin-gonic/gin"
)

// HandleBackup handles POST /v1/backups.
//
// # Description
//
// Streams a full badger backup of the transcript store to the client as
// application/octet-stream. The CLI writes the stream to a local file
// and optionally forwards it to object storage; the gateway itself never
// touches cloud credentials.
//
// Headers are committed before the stream starts, so a mid-stream
// failure can only be signaled by closing the connection. The audit
// trail records the outcome either way.
func HandleBackup(store *transcript.Store, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		filename := fmt.Sprintf("voice-transcripts-%s.badger", time.Now().UTC().Format("20060102-150405"))

		c.Header("Content-Type", "application/octet-stream")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Status(http.StatusOK)

		since, err := store.Backup(ctx, c.Writer)

		event := extensions.AuditEvent{
			EventType:    "store.backup",
			UserID:       middleware.UserID(c),
			Action:       "read",
			ResourceType: "store",
			Outcome:      "success",
			Metadata:     map[string]any{"filename": filename},
		}
		if err != nil {
			event.Outcome = "failure"
			event.Metadata["error"] = err.Error()
		} else {
			event.Metadata["version"] = since
		}
		logAudit(c, audit, event)

		if err != nil {
			slog.Error("backup stream failed", "error", err)
			// Headers are already out; abort the connection so the
			// client sees a truncated stream rather than a clean EOF.
			c.Abort()
			return
		}

		slog.Info("backup streamed", "filename", filename, "version", since)
	}
}
