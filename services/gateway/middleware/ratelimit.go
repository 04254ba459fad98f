// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// =============================================================================
// Rate Limiting
// =============================================================================

// staleLimiterAge is how long an idle client's limiter survives before
// eviction. One sweep interval bounds the map for appliances that see
// many short-lived clients.
const staleLimiterAge = 10 * time.Minute

// clientLimiter pairs a token bucket with its last-use time.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks per-client token buckets keyed by client IP.
//
// # Description
//
// Each client gets an independent golang.org/x/time/rate bucket with the
// configured sustained rate and burst. Idle buckets older than
// staleLimiterAge are evicted on the next request, so the map stays
// proportional to the active client set.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

// NewRateLimiter creates a per-client rate limiter.
//
// # Inputs
//
//   - rps: Sustained requests per second allowed per client. Values <= 0
//     disable limiting (every request is allowed).
//   - burst: Instantaneous burst allowed per client. Clamped to at least 1
//     when limiting is enabled.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the given client may proceed.
func (rl *RateLimiter) Allow(clientKey string) bool {
	if rl.rps <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > staleLimiterAge {
		rl.sweepLocked(now)
	}

	cl, ok := rl.clients[clientKey]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[clientKey] = cl
	}
	cl.lastSeen = now

	return cl.limiter.Allow()
}

// sweepLocked drops limiters idle for longer than staleLimiterAge.
// Caller holds rl.mu.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > staleLimiterAge {
			delete(rl.clients, key)
		}
	}
	rl.lastSweep = now
}

// RateLimitMiddleware creates a Gin middleware that throttles per client IP.
//
// # Description
//
// Rejects requests exceeding the per-client budget with 429 and a
// Retry-After hint. Clients are keyed by gin's ClientIP, which honors
// trusted proxy headers.
//
// # Examples
//
//	limiter := middleware.NewRateLimiter(10, 20)
//	v1.Use(middleware.RateLimitMiddleware(limiter))
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
