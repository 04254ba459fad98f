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
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/AleutianAI/AleutianVoice/services/playback"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const gatewayTestFacts = `{"id":"F-1","text":"NextGen AI exceeded all performance targets in Q3 2025.","category":"performance"}
{"id":"F-2","text":"Latency improved after the cache rewrite.","category":"performance"}
`

// newLoadedRetrieval builds a retrieval service over a throwaway pack
// and loads it, so readiness gating does not get in the way.
func newLoadedRetrieval(t *testing.T) *retrieval.Service {
	t.Helper()
	factsPath := filepath.Join(t.TempDir(), "facts.ndjson")
	require.NoError(t, os.WriteFile(factsPath, []byte(gatewayTestFacts), 0o600))

	svc := retrieval.New(retrieval.Config{
		FactsPath: factsPath,
		Logger:    logging.New(logging.Config{Quiet: true}),
	})
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Logger:    logging.New(logging.Config{Quiet: true}),
		Retrieval: newLoadedRetrieval(t),
		Metrics:   observability.New(prometheus.NewRegistry()),
		Options:   extensions.DefaultOptions(),
	}
}

// =============================================================================
// BuildRouter Tests
// =============================================================================

func TestBuildRouter_ServesHealthThroughFullChain(t *testing.T) {
	cfg := DefaultConfig()
	deps := testDeps(t)

	router := BuildRouter(cfg, deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestBuildRouter_ReadyAfterLoad(t *testing.T) {
	cfg := DefaultConfig()
	deps := testDeps(t)

	router := BuildRouter(cfg, deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ready", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBuildRouter_RateLimiterEnforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 1
	deps := testDeps(t)

	router := BuildRouter(cfg, deps)

	// The limiter guards /v1, not the health probes.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/knowledge/status", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/knowledge/status", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	for i := 0; i < 5; i++ {
		w = httptest.NewRecorder()
		req, _ = http.NewRequest("GET", "/health", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "health probes must never be rate limited")
	}
}

func TestBuildRouter_ZeroRPSDisablesLimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.RPS = 0
	deps := testDeps(t)

	router := BuildRouter(cfg, deps)

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/knowledge/status", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_RequiresRetrieval(t *testing.T) {
	cfg := DefaultConfig()

	err := Run(context.Background(), cfg, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval")
}

func TestRun_GracefulShutdown(t *testing.T) {
	deps := testDeps(t)
	deps.Player = playback.NewPlayer(playback.NullSink{},
		playback.DefaultPlayerConfig(), deps.Logger)

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Pack.WatchReload = true
	cfg.Pack.ReloadDebounceMs = 10

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg, deps)
	assert.NoError(t, err, "a ctx-driven shutdown is not a failure")
}

func TestRun_AddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := DefaultConfig()
	cfg.Addr = ln.Addr().String()

	err = Run(context.Background(), cfg, testDeps(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway server failed")
}
