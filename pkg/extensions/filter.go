// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrUtteranceBlocked is returned when an utterance is rejected by the filter.
// Enterprise implementations should wrap this error with the reason.
//
// Example:
//
//	if containsPII(text) {
//	    return nil, fmt.Errorf("utterance contains PII: %w", ErrUtteranceBlocked)
//	}
var ErrUtteranceBlocked = errors.New("utterance blocked by filter")

// FilterResult contains the outcome of a filter operation.
//
// This struct provides detailed information about what the filter did,
// useful for debugging, audit trails, and user feedback.
//
// Example:
//
//	result := FilterResult{
//	    Original:    "My SSN is 123-45-6789",
//	    Filtered:    "My SSN is [REDACTED]",
//	    WasModified: true,
//	    Detections: []Detection{
//	        {Type: "ssn", Location: "characters 10-21", Action: "redacted"},
//	    },
//	}
type FilterResult struct {
	// Original is the input text before filtering.
	Original string

	// Filtered is the text after filtering transformations.
	// If WasModified is false, this equals Original.
	Filtered string

	// WasModified indicates if any transformations were applied.
	WasModified bool

	// WasBlocked indicates if the utterance was completely rejected.
	// If true, Filtered should not be used.
	WasBlocked bool

	// BlockReason explains why the utterance was blocked (if WasBlocked).
	BlockReason string

	// Detections lists what the filter found in the text.
	// Useful for audit logging and debugging.
	Detections []Detection
}

// Detection describes a single item found by the filter.
type Detection struct {
	// Type categorizes what was detected.
	// Common types: "ssn", "credit_card", "email", "phone", "api_key",
	// "profanity", "pii", "secret"
	Type string

	// Location describes where in the text the item was found.
	// Format is implementation-specific (e.g., "characters 10-20")
	Location string

	// Action describes what was done with the detected item.
	// Values: "redacted", "masked", "replaced", "blocked", "flagged"
	Action string

	// Original is the detected content (only populated in debug mode).
	// WARNING: This may contain sensitive data - handle carefully.
	Original string

	// Replacement is what the content was replaced with (if Action is "replaced").
	Replacement string
}

// TranscriptFilter transforms utterance text before it is persisted.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Filter Point
//
// The gateway applies the filter exactly once per utterance, after speech
// recognition and before the text reaches the transcript store or the
// retrieval service. Spoken text is the most PII-dense data the appliance
// handles, so this is the single choke point for redaction policy.
//
// # Open Source Behavior
//
// The default NopTranscriptFilter passes all text through unchanged.
// This is appropriate for local single-user deployments where content
// filtering isn't required.
//
// # Enterprise Implementation
//
// Enterprise versions redact PII, mask secrets, or block transcripts that
// violate retention policy:
//
//	type PIIFilter struct {
//	    patterns []PIIPattern
//	}
//
//	func (f *PIIFilter) FilterUtterance(ctx context.Context, text string) (*FilterResult, error) {
//	    result := &FilterResult{Original: text, Filtered: text}
//
//	    for _, pattern := range f.patterns {
//	        if matches := pattern.FindAll(text); len(matches) > 0 {
//	            result.Filtered = pattern.Redact(result.Filtered)
//	            result.WasModified = true
//	            result.Detections = append(result.Detections, Detection{
//	                Type:   pattern.Name,
//	                Action: "redacted",
//	            })
//	        }
//	    }
//
//	    return result, nil
//	}
//
// # Blocking vs Transforming
//
// Filters can either:
//   - Transform: Modify content and allow it through (e.g., redact SSN)
//   - Block: Reject the entire utterance (e.g., policy violation)
//
// To block, return a FilterResult with WasBlocked=true and BlockReason set.
// The caller should then return ErrUtteranceBlocked to the client.
type TranscriptFilter interface {
	// FilterUtterance inspects and optionally transforms utterance text.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - text: The recognized utterance text
	//
	// Returns:
	//   - *FilterResult: The outcome, including the text to persist
	//   - error: Non-nil only for filter failures (not for blocks)
	//
	// If WasBlocked is true, the caller should:
	//  1. Log the block via AuditLogger
	//  2. Return ErrUtteranceBlocked to the client
	//  3. NOT persist the text
	FilterUtterance(ctx context.Context, text string) (*FilterResult, error)
}

// NopTranscriptFilter is the default filter for open source.
//
// It passes all text through unchanged.
//
// Thread-safe: This implementation has no mutable state.
type NopTranscriptFilter struct{}

// FilterUtterance returns the text unchanged.
func (f *NopTranscriptFilter) FilterUtterance(_ context.Context, text string) (*FilterResult, error) {
	return &FilterResult{
		Original: text,
		Filtered: text,
	}, nil
}

// Compile-time interface compliance check.
var _ TranscriptFilter = (*NopTranscriptFilter)(nil)
