// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

const validFacts = `{"id":"F-1","text":"NextGen AI exceeded all performance targets in Q3 2025.","category":"performance"}
{"id":"F-2","text":"Latency improved after the cache rewrite.","category":"performance"}
`

const validDisclaimers = `{"disclaimers":[
	{"id":"DISC-001","text":"All statements reflect vendor-supplied data.","required_for":[]}
]}`

func TestValidatePack_ValidFiles(t *testing.T) {
	dir := t.TempDir()
	factsPath := filepath.Join(dir, "facts.ndjson")
	if err := os.WriteFile(factsPath, []byte(validFacts), 0o600); err != nil {
		t.Fatal(err)
	}
	disclaimers := filepath.Join(dir, "disclaimers.json")
	if err := os.WriteFile(disclaimers, []byte(validDisclaimers), 0o600); err != nil {
		t.Fatal(err)
	}

	stats, err := validatePack(factsPath, disclaimers)
	if err != nil {
		t.Fatalf("validatePack failed on a valid pack: %v", err)
	}
	if stats.Facts != 2 {
		t.Errorf("expected 2 facts, got %d", stats.Facts)
	}
	if stats.Disclaimers != 1 {
		t.Errorf("expected 1 disclaimer, got %d", stats.Disclaimers)
	}
	if !stats.Ready {
		t.Error("expected the snapshot to be ready after a successful load")
	}
}

func TestValidatePack_FactsOnly(t *testing.T) {
	factsPath := filepath.Join(t.TempDir(), "facts.ndjson")
	if err := os.WriteFile(factsPath, []byte(validFacts), 0o600); err != nil {
		t.Fatal(err)
	}

	stats, err := validatePack(factsPath, "")
	if err != nil {
		t.Fatalf("validatePack failed without disclaimers: %v", err)
	}
	if stats.Facts != 2 {
		t.Errorf("expected 2 facts, got %d", stats.Facts)
	}
}

func TestValidatePack_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.ndjson")

	if _, err := validatePack(missing, ""); err == nil {
		t.Fatal("expected an error for a missing facts file")
	}
}
