// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pack loads and validates knowledge packs: flat files of factual
// statements and disclaimers that ground spoken answers.
//
// A knowledge pack consists of two files:
//
//   - A facts file: newline-delimited JSON, one KnowledgeFact per line.
//   - An optional disclaimers file: a single JSON document with shape
//     {"disclaimers": [DisclaimerEntry, ...]}.
//
// Loading is tolerant of individual bad records. A corrupt line is skipped
// and recorded as a Diagnostic; it never aborts the load. Only a missing or
// unreadable facts file is fatal.
package pack

import (
	"encoding/json"
	"time"
)

// KnowledgeFact is an atomic, sourced statement with a stable identifier.
//
// Invariant: ID and Text are mandatory. Records missing either are
// rejected at load time and recorded as diagnostics.
type KnowledgeFact struct {
	// ID is the unique, stable identifier for this fact (e.g., "F1").
	ID string `json:"id"`

	// Text is the factual statement itself.
	Text string `json:"text"`

	// Source is a provenance label (document name, URL, dataset).
	Source string `json:"source,omitempty"`

	// Timestamp is an ISO-ish date string for the record.
	// Kept as a string: pack authors control the format, we only echo it.
	Timestamp string `json:"timestamp,omitempty"`

	// Category tags the fact for disclaimer matching (e.g., "performance").
	Category string `json:"category,omitempty"`
}

// DisclaimerEntry is a mandatory or conditional notice attached to a
// facts pack based on topic/category matching.
type DisclaimerEntry struct {
	// ID is the unique identifier for this disclaimer (e.g., "DISC-002").
	ID string `json:"id"`

	// Text is the disclaimer wording.
	Text string `json:"text"`

	// Category tags the disclaimer itself (optional).
	Category string `json:"category,omitempty"`

	// RequiredFor names the fact categories that mandate inclusion of
	// this disclaimer when they appear among the matched facts.
	RequiredFor []string `json:"required_for,omitempty"`
}

// FactsPack is the bounded, ordered result of a retrieval query, ready
// for direct JSON serialization to a downstream prompt-assembly consumer.
//
// Invariant: the serialized byte size never exceeds the caller's byte cap,
// and the estimated token count never exceeds the caller's token cap.
// Facts and Disclaimers are always non-nil so empty results serialize as
// [] rather than null.
type FactsPack struct {
	// Topic echoes the (normalized) query this pack answers.
	Topic string `json:"topic"`

	// Facts is ordered most relevant first.
	Facts []KnowledgeFact `json:"facts"`

	// Disclaimers holds the included disclaimers rendered as "[id] text",
	// always-required entries first.
	Disclaimers []string `json:"disclaimers"`
}

// Serialize renders the pack as compact JSON.
//
// This is the canonical wire form: the byte length of the returned slice
// is exactly the size the retrieval budget was enforced against, so
// callers can hand the bytes to a transport without re-measuring.
func (fp *FactsPack) Serialize() ([]byte, error) {
	return json.Marshal(fp)
}

// Pack is the validated in-memory result of a load.
//
// Pack is immutable after Load returns. Readers may share it freely
// across goroutines without coordination.
type Pack struct {
	// Facts holds the retained fact records in file order.
	Facts []KnowledgeFact

	// Disclaimers holds the parsed disclaimer entries, possibly empty.
	Disclaimers []DisclaimerEntry

	// Diagnostics records every skipped or degraded record, in order.
	Diagnostics []Diagnostic

	// FactsPath and DisclaimersPath record where this pack came from.
	FactsPath       string
	DisclaimersPath string

	// LoadedAt is when the load completed (UTC).
	LoadedAt time.Time
}

// FactByID returns the fact with the given id, if present.
func (p *Pack) FactByID(id string) (KnowledgeFact, bool) {
	for _, f := range p.Facts {
		if f.ID == id {
			return f, true
		}
	}
	return KnowledgeFact{}, false
}

// disclaimerFile is the on-disk shape of the disclaimers document.
type disclaimerFile struct {
	Disclaimers []DisclaimerEntry `json:"disclaimers"`
}
