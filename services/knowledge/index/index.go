// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides an immutable term index over knowledge facts.
//
// The index is built once per pack load and never mutated afterward, so
// concurrent readers need no synchronization. Reloads build a fresh index
// and swap it in at the service layer.
package index

import (
	"sort"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianVoice/services/knowledge/pack"
)

// Index maps lower-cased terms to the facts whose text contains them.
//
// Lookup is substring-based: a query term matches a fact when the term
// occurs anywhere inside the fact's lower-cased text, so "perform" finds
// facts mentioning "performance". The vocabulary holds every maximal
// letter-or-digit run seen in the corpus; a purely alphanumeric term can
// only occur inside such a run, which makes the vocabulary walk an exact
// candidate set. Terms carrying other characters fall back to a linear
// scan of the cached lowered texts.
type Index struct {
	lowered []string         // lower-cased fact text, by fact position
	vocab   map[string][]int // word -> ascending fact positions
	words   []string         // sorted vocabulary for deterministic walks
}

// Build constructs the index for a slice of facts.
//
// # Description
//
// Lowers each fact's text once, splits it into maximal alphanumeric runs,
// and records which facts contain each run. Fact positions mirror the
// input slice, so callers can map candidate positions straight back to
// their own fact storage.
//
// # Inputs
//
//   - facts: The facts to index. May be empty.
//
// # Outputs
//
//   - *Index: Ready for concurrent use. Never nil.
func Build(facts []pack.KnowledgeFact) *Index {
	ix := &Index{
		lowered: make([]string, len(facts)),
		vocab:   make(map[string][]int, len(facts)*8),
	}

	for pos, f := range facts {
		text := strings.ToLower(f.Text)
		ix.lowered[pos] = text

		seen := make(map[string]bool)
		for _, w := range splitWords(text) {
			if seen[w] {
				continue
			}
			seen[w] = true
			ix.vocab[w] = append(ix.vocab[w], pos)
		}
	}

	ix.words = make([]string, 0, len(ix.vocab))
	for w := range ix.vocab {
		ix.words = append(ix.words, w)
	}
	sort.Strings(ix.words)
	return ix
}

// Len returns the number of indexed facts.
func (ix *Index) Len() int {
	return len(ix.lowered)
}

// VocabSize returns the number of distinct words in the index.
func (ix *Index) VocabSize() int {
	return len(ix.vocab)
}

// Candidates returns the positions of every fact whose text could contain
// at least one of the given terms, sorted ascending.
//
// Terms must already be lower-cased. Purely alphanumeric terms resolve
// through the vocabulary; other terms scan the lowered texts directly.
// The result is a superset-safe candidate set: callers score candidates
// with MatchCount to get exact per-term hits.
func (ix *Index) Candidates(terms []string) []int {
	hits := make(map[int]bool)
	for _, t := range terms {
		if t == "" {
			continue
		}
		if isWord(t) {
			for _, w := range ix.words {
				if strings.Contains(w, t) {
					for _, pos := range ix.vocab[w] {
						hits[pos] = true
					}
				}
			}
			continue
		}
		for pos, text := range ix.lowered {
			if strings.Contains(text, t) {
				hits[pos] = true
			}
		}
	}

	out := make([]int, 0, len(hits))
	for pos := range hits {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}

// MatchCount reports how many of the given lower-cased terms occur as
// substrings of the fact at pos. Out-of-range positions score zero.
func (ix *Index) MatchCount(pos int, terms []string) int {
	if pos < 0 || pos >= len(ix.lowered) {
		return 0
	}
	text := ix.lowered[pos]
	n := 0
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			n++
		}
	}
	return n
}

// TextLen returns the byte length of the lower-cased text at pos, used
// by the scoring layer to normalize match counts. Out-of-range positions
// report zero.
func (ix *Index) TextLen(pos int) int {
	if pos < 0 || pos >= len(ix.lowered) {
		return 0
	}
	return len(ix.lowered[pos])
}

// splitWords returns the maximal letter-or-digit runs in s, in order.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isWord reports whether t consists entirely of letters and digits.
func isWord(t string) bool {
	for _, r := range t {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return t != ""
}
