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
	"net/http"

	"github.com/AleutianAI/AleutianVoice/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/reflex"
	"github.com/gin-gonic/gin"
)

// ReflexAck handles GET /v1/reflex/ack.
//
// Returns a weighted-random acknowledgement phrase. This is the same
// picker the voice stream uses to fill the gap while retrieval runs, so
// clients can prefetch a phrase for local, zero-latency playout.
func ReflexAck(responder *reflex.Responder, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		phrase := responder.Ack()
		metrics.RecordRequest(observability.EndpointReflex, true)
		c.JSON(http.StatusOK, datatypes.NewAckResponse(phrase))
	}
}
