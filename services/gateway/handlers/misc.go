// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP request handlers for the gateway service.
//
// Handlers are factory functions: each takes its dependencies and returns
// a gin.HandlerFunc closure. Nothing in this package reaches for globals;
// the store, retrieval service, and metrics all arrive as arguments from
// routes.SetupRoutes.
package handlers

import (
	"net/http"

	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/gin-gonic/gin"
)

// HealthCheck reports process liveness.
//
// Always returns 200; use Readiness to gate traffic on a loaded pack.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness reports whether the gateway can serve retrievals.
//
// Returns 503 until the knowledge service has a pack snapshot loaded.
// Load balancers should probe this, not /health, before routing traffic.
func Readiness(svc *retrieval.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// VersionInfo reports the service name and build version. The CLI
// compares this against its own version to warn about skew.
func VersionInfo(service, version string) gin.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": service, "version": version})
	}
}
