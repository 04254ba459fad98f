// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_pack writes a synthetic knowledge pack and validates it with
// the same loader the gateway uses, so generated fixtures can never
// drift from what the gateway accepts.
//
// Usage:
//
//	go run scripts/generate_pack.go -dir /tmp/pack
//	go run scripts/generate_pack.go -dir testdata/load -facts 500 -seed 7
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/pack"
)

var categories = []string{"performance", "financial", "product", "availability", "security"}

var factTemplates = map[string][]string{
	"performance": {
		"The gateway sustained %d concurrent sessions in soak run %d.",
		"Retrieval latency stayed under %d milliseconds at percentile %d.",
		"Indexing throughput reached %d facts per second in build %d.",
	},
	"financial": {
		"Segment revenue grew %d percent in fiscal period %d.",
		"Renewal bookings reached %d units in quarter %d.",
	},
	"product": {
		"Release %d.%d added pack hot-reload improvements.",
		"Build %d ships with %d curated fact packs.",
	},
	"availability": {
		"Region %d enters early access in week %d.",
		"Batch %d of appliances ships to %d design partners.",
	},
	"security": {
		"Audit %d verified %d transcript digest chains.",
		"Penetration test %d closed with %d findings remediated.",
	},
}

var disclaimerSeed = []pack.DisclaimerEntry{
	{ID: "DISC-001", Text: "All statements are synthetic test data.", RequiredFor: []string{}},
	{ID: "DISC-002", Text: "Performance figures vary by deployment.", Category: "performance", RequiredFor: []string{"performance"}},
	{ID: "DISC-003", Text: "Financial figures are illustrative only.", Category: "financial", RequiredFor: []string{"financial"}},
}

func main() {
	dir := flag.String("dir", "", "Output directory for facts.ndjson and disclaimers.json (required)")
	facts := flag.Int("facts", 50, "Number of facts to generate")
	seed := flag.Int64("seed", 1, "Random seed, fixed so regeneration is reproducible")
	flag.Parse()

	if *dir == "" {
		log.Fatal("-dir is required")
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", *dir, err)
	}

	rng := rand.New(rand.NewSource(*seed))
	factsPath := filepath.Join(*dir, "facts.ndjson")
	disclaimersPath := filepath.Join(*dir, "disclaimers.json")

	if err := writeFacts(factsPath, *facts, rng); err != nil {
		log.Fatalf("Failed to write facts: %v", err)
	}
	if err := writeDisclaimers(disclaimersPath); err != nil {
		log.Fatalf("Failed to write disclaimers: %v", err)
	}

	// Round-trip through the real loader; a pack this tool emits but the
	// gateway rejects is a bug here, not there.
	loader := pack.NewLoader(logging.New(logging.Config{Quiet: true}))
	p, err := loader.Load(context.Background(), pack.LoadOptions{
		FactsPath:       factsPath,
		DisclaimersPath: disclaimersPath,
	})
	if err != nil {
		log.Fatalf("Generated pack failed validation: %v", err)
	}

	fmt.Printf("Wrote %s (%d facts) and %s (%d disclaimers)\n",
		factsPath, len(p.Facts), disclaimersPath, len(p.Disclaimers))
	if len(p.Diagnostics) > 0 {
		log.Fatalf("Generated pack produced %d diagnostics; generation is broken", len(p.Diagnostics))
	}
}

func writeFacts(path string, n int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		category := categories[i%len(categories)]
		templates := factTemplates[category]
		text := fmt.Sprintf(templates[rng.Intn(len(templates))], rng.Intn(500)+1, rng.Intn(99)+1)

		fact := pack.KnowledgeFact{
			ID:        fmt.Sprintf("F-%s-%03d", category[:4], i),
			Text:      text,
			Source:    fmt.Sprintf("synthetic-%d", i),
			Timestamp: now.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			Category:  category,
		}
		line, err := json.Marshal(fact)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func writeDisclaimers(path string) error {
	doc := struct {
		Disclaimers []pack.DisclaimerEntry `json:"disclaimers"`
	}{Disclaimers: disclaimerSeed}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
