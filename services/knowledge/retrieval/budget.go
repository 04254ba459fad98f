// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"github.com/AleutianAI/AleutianVoice/services/knowledge/pack"
)

// bytesPerToken is the fixed byte-to-token ratio used for budget math.
const bytesPerToken = 4

// EstimateTokens approximates the token cost of n serialized bytes as
// ceil(n / 4). The divisor is deliberately fixed so identical payloads
// always produce identical estimates, independent of any model tokenizer.
func EstimateTokens(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + bytesPerToken - 1) / bytesPerToken
}

// budgetReport summarizes a fitting pass for span attributes and logs.
type budgetReport struct {
	bytes              int
	tokens             int
	droppedFacts       int
	droppedDisclaimers int
}

// measure serializes the envelope and returns its byte and token cost.
func measure(fp *pack.FactsPack) (int, int, error) {
	raw, err := fp.Serialize()
	if err != nil {
		return 0, 0, err
	}
	return len(raw), EstimateTokens(len(raw)), nil
}

func fitsWithin(bytes, tokens, maxBytes, maxTokens int) bool {
	return bytes <= maxBytes && tokens <= maxTokens
}

// fitPack fills fp with as many candidates as the caps allow.
//
// Candidates are offered in their given order. Each offer serializes the
// whole tentative envelope; an offer that pushes either the byte or token
// total past its cap is rolled back and fitting moves on to the next
// candidate, so a small fact can still land after a large one was dropped.
//
// Order depends on factsFirst: facts, always-include disclaimers, then
// category-matched disclaimers when true; always-include disclaimers
// first when false. fp must start with empty, non-nil Facts and
// Disclaimers slices that already fit the caps.
func fitPack(fp *pack.FactsPack, facts []pack.KnowledgeFact, mandatory, optional []string, maxBytes, maxTokens int, factsFirst bool) (budgetReport, error) {
	var report budgetReport

	tryFact := func(f pack.KnowledgeFact) error {
		fp.Facts = append(fp.Facts, f)
		bytes, tokens, err := measure(fp)
		if err != nil {
			return err
		}
		if !fitsWithin(bytes, tokens, maxBytes, maxTokens) {
			fp.Facts = fp.Facts[:len(fp.Facts)-1]
			report.droppedFacts++
			return nil
		}
		report.bytes, report.tokens = bytes, tokens
		return nil
	}

	tryDisclaimer := func(d string) error {
		fp.Disclaimers = append(fp.Disclaimers, d)
		bytes, tokens, err := measure(fp)
		if err != nil {
			return err
		}
		if !fitsWithin(bytes, tokens, maxBytes, maxTokens) {
			fp.Disclaimers = fp.Disclaimers[:len(fp.Disclaimers)-1]
			report.droppedDisclaimers++
			return nil
		}
		report.bytes, report.tokens = bytes, tokens
		return nil
	}

	fitFacts := func() error {
		for _, f := range facts {
			if err := tryFact(f); err != nil {
				return err
			}
		}
		return nil
	}
	fitDisclaimers := func(ds []string) error {
		for _, d := range ds {
			if err := tryDisclaimer(d); err != nil {
				return err
			}
		}
		return nil
	}

	// Record the starting cost so an envelope that admits nothing still
	// reports its own weight.
	bytes, tokens, err := measure(fp)
	if err != nil {
		return report, err
	}
	report.bytes, report.tokens = bytes, tokens

	if factsFirst {
		if err := fitFacts(); err != nil {
			return report, err
		}
		if err := fitDisclaimers(mandatory); err != nil {
			return report, err
		}
	} else {
		if err := fitDisclaimers(mandatory); err != nil {
			return report, err
		}
		if err := fitFacts(); err != nil {
			return report, err
		}
	}
	if err := fitDisclaimers(optional); err != nil {
		return report, err
	}
	return report, nil
}
