// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reflex produces instant verbal acknowledgments.
//
// While knowledge retrieval and speech synthesis spin up, the voice
// pipeline needs something on the wire within a conversational beat. The
// reflex layer picks a short backchannel phrase ("Mm-hmm.", "Let me
// check.") from a weighted distribution so repeated queries don't sound
// robotic.
//
// The distribution is split from the randomness on purpose: PickWith maps
// a uniform draw to a phrase deterministically, which makes the sampling
// testable without seam-hunting, and Responder supplies the draws for
// production use.
package reflex

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// ErrNoPhrases is returned when a distribution is built from an empty set.
var ErrNoPhrases = errors.New("reflex distribution needs at least one phrase")

// ErrBadWeight is returned when a phrase weight is zero, negative, or not
// a finite number.
var ErrBadWeight = errors.New("phrase weight must be a positive finite number")

// Phrase is one candidate acknowledgment with its sampling weight.
type Phrase struct {
	Text   string  `json:"text" yaml:"text"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Distribution is an immutable discrete distribution over phrases.
//
// # Thread Safety
//
// Safe for concurrent use; all state is fixed at construction.
type Distribution struct {
	phrases    []Phrase
	cumulative []float64 // normalized running totals, last entry is 1.0
}

// New builds a distribution from the given phrases.
//
// Weights need not sum to one; they are normalized internally. A phrase
// with twice the weight of another is picked twice as often.
func New(phrases []Phrase) (*Distribution, error) {
	if len(phrases) == 0 {
		return nil, ErrNoPhrases
	}

	total := 0.0
	for i, p := range phrases {
		if p.Weight <= 0 || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			return nil, fmt.Errorf("phrase %d (%q): %w", i, p.Text, ErrBadWeight)
		}
		total += p.Weight
	}

	d := &Distribution{
		phrases:    append([]Phrase(nil), phrases...),
		cumulative: make([]float64, len(phrases)),
	}
	running := 0.0
	for i, p := range d.phrases {
		running += p.Weight
		d.cumulative[i] = running / total
	}
	// Pin the top of the range so float rounding can't leave a gap
	// above the last phrase.
	d.cumulative[len(d.cumulative)-1] = 1.0
	return d, nil
}

// Len returns the number of phrases.
func (d *Distribution) Len() int {
	return len(d.phrases)
}

// Phrases returns a copy of the phrase set in construction order.
func (d *Distribution) Phrases() []Phrase {
	return append([]Phrase(nil), d.phrases...)
}

// PickWith maps a uniform draw in [0, 1) to a phrase.
//
// The mapping is pure: the same draw always yields the same phrase, with
// each phrase owning a half-open interval of the unit range proportional
// to its weight. Draws outside [0, 1) clamp to the nearest phrase.
func (d *Distribution) PickWith(draw float64) Phrase {
	if draw < 0 || math.IsNaN(draw) {
		return d.phrases[0]
	}
	i := sort.Search(len(d.cumulative), func(i int) bool {
		return d.cumulative[i] > draw
	})
	if i >= len(d.phrases) {
		i = len(d.phrases) - 1
	}
	return d.phrases[i]
}

// Pick draws a phrase using the given source of randomness.
func (d *Distribution) Pick(rng *rand.Rand) Phrase {
	return d.PickWith(rng.Float64())
}

// DefaultPhrases returns the built-in backchannel set. Short neutral
// acknowledgments dominate; the longer "checking" forms appear often
// enough to signal that real work is happening.
func DefaultPhrases() []Phrase {
	return []Phrase{
		{Text: "Mm-hmm.", Weight: 3},
		{Text: "Right.", Weight: 3},
		{Text: "Got it.", Weight: 2},
		{Text: "One moment.", Weight: 2},
		{Text: "Let me check.", Weight: 2},
		{Text: "Looking that up now.", Weight: 1},
	}
}

// Responder wires a distribution to a seeded random source for
// production sampling.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying rand.Rand is mutex-guarded.
type Responder struct {
	dist *Distribution

	mu  sync.Mutex
	rng *rand.Rand
}

// NewResponder creates a responder over dist. A zero seed uses the wall
// clock; any other seed makes the acknowledgment sequence reproducible.
func NewResponder(dist *Distribution, seed int64) *Responder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Responder{
		dist: dist,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Ack returns the next acknowledgment phrase.
func (r *Responder) Ack() string {
	r.mu.Lock()
	draw := r.rng.Float64()
	r.mu.Unlock()
	return r.dist.PickWith(draw).Text
}
