// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response structures for the
// gateway service.
//
// Every request type carries a Validate method backed by
// go-playground/validator and an EnsureDefaults method that fills
// server-generated fields (request ids, timestamps) when the client
// omitted them. Handlers bind JSON first, then call EnsureDefaults,
// then Validate.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Size Limits
// =============================================================================

const (
	// MaxTopicBytes is the maximum size of a retrieval topic. Topics are
	// spoken questions, not documents; anything past 4KB is a client bug.
	MaxTopicBytes = 4 * 1024

	// MaxEntryTextBytes is the maximum size of a single transcript entry.
	// Checked in bytes, not runes, to bound memory on hostile payloads.
	MaxEntryTextBytes = 32 * 1024

	// MaxTopK is the largest fact count a client may request per retrieval.
	MaxTopK = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// gatewayValidate is the validator instance for gateway datatypes.
// Initialized in init() with custom byte-length validators.
var gatewayValidate *validator.Validate

func init() {
	gatewayValidate = validator.New()

	_ = gatewayValidate.RegisterValidation("topicbytes", validateTopicBytes)
	_ = gatewayValidate.RegisterValidation("entrybytes", validateEntryBytes)
}

// validateTopicBytes enforces MaxTopicBytes on string fields.
func validateTopicBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxTopicBytes
}

// validateEntryBytes enforces MaxEntryTextBytes on string fields.
func validateEntryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxEntryTextBytes
}

// =============================================================================
// Knowledge Retrieval Types
// =============================================================================

// RetrieveRequest is the body of POST /v1/knowledge/retrieve.
//
// # Description
//
// Carries the topic to ground plus optional per-request budget caps.
// Zero-valued caps mean "use the server's configured defaults", so a
// minimal request is just {"topic": "..."}.
//
// # Fields
//
//   - RequestID: Optional client-supplied UUID v4 for correlation.
//     Generated server-side by EnsureDefaults when omitted.
//   - Topic: Required. The question or subject to retrieve facts for.
//     Limited to 4KB.
//   - TopK: Optional cap on returned facts (0 = server default, max 100).
//   - MaxTokens: Optional token budget for the serialized response
//     (0 = server default).
//   - MaxBytes: Optional byte budget for the serialized response
//     (0 = server default).
//
// # Examples
//
//	{"topic": "performance targets", "top_k": 3, "max_tokens": 600, "max_bytes": 4000}
type RetrieveRequest struct {
	RequestID string `json:"request_id,omitempty" validate:"omitempty,uuid4"`
	Topic     string `json:"topic" validate:"required,topicbytes"`
	TopK      int    `json:"top_k" validate:"gte=0,lte=100"`
	MaxTokens int    `json:"max_tokens" validate:"gte=0"`
	MaxBytes  int    `json:"max_bytes" validate:"gte=0"`
}

// Validate checks the request against its validation tags.
func (r *RetrieveRequest) Validate() error {
	return gatewayValidate.Struct(r)
}

// EnsureDefaults generates a RequestID when the client did not send one.
func (r *RetrieveRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
}

// ReloadResponse is the body returned by POST /v1/knowledge/reload.
type ReloadResponse struct {
	Status      string `json:"status"`
	Facts       int    `json:"facts"`
	Disclaimers int    `json:"disclaimers"`
	Diagnostics int    `json:"diagnostics"`
	LoadedAt    int64  `json:"loaded_at"`
}

// =============================================================================
// Session Types
// =============================================================================

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	Topic string `json:"topic,omitempty" validate:"omitempty,topicbytes"`
}

// Validate checks the request against its validation tags.
func (r *CreateSessionRequest) Validate() error {
	return gatewayValidate.Struct(r)
}

// AppendEntryRequest is the body of POST /v1/sessions/:sessionId/entries.
//
// Role must be one of the transcript roles; Text is bounded at 32KB per
// entry so a runaway client cannot balloon the store.
type AppendEntryRequest struct {
	Role string `json:"role" validate:"required,oneof=user assistant reflex system"`
	Text string `json:"text" validate:"required,entrybytes"`
}

// Validate checks the request against its validation tags.
func (r *AppendEntryRequest) Validate() error {
	return gatewayValidate.Struct(r)
}

// VerifyResponse is the body returned by POST /v1/sessions/:sessionId/verify.
type VerifyResponse struct {
	SessionID string `json:"session_id"`
	Entries   int    `json:"entries"`
	Intact    bool   `json:"intact"`
	Error     string `json:"error,omitempty"`
}

// =============================================================================
// Reflex Types
// =============================================================================

// AckResponse is the body returned by GET /v1/reflex/ack.
type AckResponse struct {
	Phrase    string `json:"phrase"`
	Timestamp int64  `json:"timestamp"`
}

// NewAckResponse stamps an acknowledgement phrase with the current time.
func NewAckResponse(phrase string) AckResponse {
	return AckResponse{
		Phrase:    phrase,
		Timestamp: time.Now().UnixMilli(),
	}
}
