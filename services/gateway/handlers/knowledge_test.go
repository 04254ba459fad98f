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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/pack"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Fixtures
// =============================================================================

const demoFacts = `{"id":"F-PERF-001","text":"NextGen AI exceeded all performance targets in Q3 2025.","source":"press-2025-10","category":"performance"}
{"id":"F-PERF-002","text":"Latency performance improved 40 percent after the cache rewrite.","category":"performance"}
{"id":"F-FIN-001","text":"NextGen AI reported record quarterly revenue.","category":"financial"}
{"id":"F-GEN-001","text":"The NextGen AI appliance runs fully on-premises.","category":"product"}
`

const demoDisclaimers = `{"disclaimers":[
	{"id":"DISC-001","text":"All statements reflect vendor-supplied data.","required_for":[]},
	{"id":"DISC-002","text":"Performance figures vary by deployment and workload.","required_for":["performance"]}
]}`

// newTestRetrieval writes demo pack files, builds a retrieval service, and
// loads it. The returned facts path lets tests break the pack on disk for
// reload-failure scenarios.
func newTestRetrieval(t *testing.T) (*retrieval.Service, string) {
	t.Helper()
	dir := t.TempDir()

	factsPath := filepath.Join(dir, "facts.ndjson")
	require.NoError(t, os.WriteFile(factsPath, []byte(demoFacts), 0600))
	disclaimersPath := filepath.Join(dir, "disclaimers.json")
	require.NoError(t, os.WriteFile(disclaimersPath, []byte(demoDisclaimers), 0600))

	svc := retrieval.New(retrieval.Config{
		FactsPath:       factsPath,
		DisclaimersPath: disclaimersPath,
		Policy:          retrieval.DefaultPolicy(),
		Logger:          logging.New(logging.Config{Quiet: true}),
	})
	require.NoError(t, svc.Load(context.Background()))
	return svc, factsPath
}

// newTestMetrics builds metrics on a private registry.
func newTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.New(prometheus.NewRegistry())
}

// capturingAuditLogger records events for assertions.
type capturingAuditLogger struct {
	mu     sync.Mutex
	events []extensions.AuditEvent
}

func (l *capturingAuditLogger) Log(_ context.Context, event extensions.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *capturingAuditLogger) Query(_ context.Context, _ extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	return l.Events(), nil
}

func (l *capturingAuditLogger) Flush(_ context.Context) error { return nil }

// Events returns a snapshot of recorded events. The websocket tests read
// this from the test goroutine while the handler logs from the server
// goroutine, so direct field access is not safe there.
func (l *capturingAuditLogger) Events() []extensions.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]extensions.AuditEvent(nil), l.events...)
}

// postJSON performs a JSON POST against the router.
func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// RetrieveFacts Tests
// =============================================================================

func TestRetrieveFacts_Success(t *testing.T) {
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	w := postJSON(router, "/retrieve", map[string]any{
		"topic":      "performance targets",
		"top_k":      3,
		"max_tokens": 600,
		"max_bytes":  4000,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var fp pack.FactsPack
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fp))
	assert.Equal(t, "performance targets", fp.Topic)
	require.NotEmpty(t, fp.Facts)
	assert.LessOrEqual(t, len(fp.Facts), 3)
}

func TestRetrieveFacts_BodyIsExactlyTheBudgetedPack(t *testing.T) {
	// The response body must be the serialized pack itself, so the byte
	// budget holds for the bytes that actually cross the wire.
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	const maxBytes = 1200
	w := postJSON(router, "/retrieve", map[string]any{
		"topic":     "performance",
		"max_bytes": maxBytes,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.LessOrEqual(t, w.Body.Len(), maxBytes,
		"HTTP payload must fit the requested byte budget")
}

func TestRetrieveFacts_EchoesClientRequestID(t *testing.T) {
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	clientID := "550e8400-e29b-41d4-a716-446655440000"
	w := postJSON(router, "/retrieve", map[string]any{
		"request_id": clientID,
		"topic":      "latency",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, clientID, w.Header().Get("X-Request-ID"))
}

func TestRetrieveFacts_NoMatchReturnsEmptyPack(t *testing.T) {
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	w := postJSON(router, "/retrieve", map[string]any{"topic": "zzzqqq"})

	require.Equal(t, http.StatusOK, w.Code, "no match is an empty pack, not an error")

	var fp pack.FactsPack
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fp))
	assert.Equal(t, "zzzqqq", fp.Topic)
	assert.Empty(t, fp.Facts)
}

func TestRetrieveFacts_EmptyTopicRejected(t *testing.T) {
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	w := postJSON(router, "/retrieve", map[string]any{"topic": ""})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetrieveFacts_MalformedJSONRejected(t *testing.T) {
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/retrieve", bytes.NewReader([]byte(`{"topic":`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetrieveFacts_NotReadyBeforeFirstLoad(t *testing.T) {
	svc := retrieval.New(retrieval.Config{
		FactsPath: filepath.Join(t.TempDir(), "facts.ndjson"),
		Logger:    logging.New(logging.Config{Quiet: true}),
	})

	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	w := postJSON(router, "/retrieve", map[string]any{"topic": "performance"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRetrieveFacts_ImpossibleBudget(t *testing.T) {
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.POST("/retrieve", RetrieveFacts(svc, newTestMetrics(t)))

	w := postJSON(router, "/retrieve", map[string]any{
		"topic":     "performance",
		"max_bytes": 10,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code,
		"a budget below the empty envelope is the client's error")
}

// =============================================================================
// ReloadPack Tests
// =============================================================================

func TestReloadPack_Success(t *testing.T) {
	svc, factsPath := newTestRetrieval(t)
	audit := &capturingAuditLogger{}
	router := gin.New()
	router.POST("/reload", ReloadPack(svc, newTestMetrics(t), audit))

	// Grow the pack on disk, then reload.
	extra := demoFacts + `{"id":"F-NEW-001","text":"A brand new fact about throughput."}` + "\n"
	require.NoError(t, os.WriteFile(factsPath, []byte(extra), 0600))

	w := postJSON(router, "/reload", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "reloaded", resp["status"])
	assert.Equal(t, float64(5), resp["facts"], "new fact should be counted after reload")

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "knowledge.reload", events[0].EventType)
	assert.Equal(t, "success", events[0].Outcome)
}

func TestReloadPack_FailureKeepsServing(t *testing.T) {
	svc, factsPath := newTestRetrieval(t)
	audit := &capturingAuditLogger{}
	metrics := newTestMetrics(t)

	router := gin.New()
	router.POST("/reload", ReloadPack(svc, metrics, audit))
	router.POST("/retrieve", RetrieveFacts(svc, metrics))

	require.NoError(t, os.Remove(factsPath))

	w := postJSON(router, "/reload", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "failure", events[0].Outcome)

	// The previous snapshot must keep answering.
	w = postJSON(router, "/retrieve", map[string]any{"topic": "performance"})
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// KnowledgeStatus Tests
// =============================================================================

func TestKnowledgeStatus_ReportsLoadedPack(t *testing.T) {
	svc, _ := newTestRetrieval(t)
	router := gin.New()
	router.GET("/status", KnowledgeStatus(svc))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var stats retrieval.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.True(t, stats.Ready)
	assert.Equal(t, 4, stats.Facts)
	assert.Equal(t, 2, stats.Disclaimers)
	assert.Equal(t, int64(1), stats.Loads)
}

func TestKnowledgeStatus_BeforeLoadIsNotAnError(t *testing.T) {
	svc := retrieval.New(retrieval.Config{
		FactsPath: filepath.Join(t.TempDir(), "facts.ndjson"),
		Logger:    logging.New(logging.Config{Quiet: true}),
	})
	router := gin.New()
	router.GET("/status", KnowledgeStatus(svc))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var stats retrieval.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.False(t, stats.Ready)
}
