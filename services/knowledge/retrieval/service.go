// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval assembles budgeted facts packs from a loaded knowledge
// pack.
//
// The service owns an immutable snapshot (pack plus term index) behind an
// atomic pointer. Reads never take a lock; reloads build a complete new
// snapshot and swap it in, so in-flight retrievals keep the snapshot they
// started with. A failed reload leaves the previous snapshot serving.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/pkg/telemetry"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/index"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/pack"
)

var tracer = otel.Tracer("aleutian.voice.retrieval")

// Default caps applied when neither the config nor the per-call options
// set a value.
const (
	DefaultTopK      = 5
	DefaultMaxTokens = 1024
	DefaultMaxBytes  = 4096
)

// Config configures a retrieval Service.
type Config struct {
	// FactsPath is the newline-delimited JSON facts file. Required.
	FactsPath string

	// DisclaimersPath is the optional disclaimers JSON file.
	DisclaimersPath string

	// DisclaimersRequired promotes disclaimer load problems from a
	// degraded-but-serving state to a fatal load error.
	DisclaimersRequired bool

	// TopK, MaxTokens, and MaxBytes are the default retrieval caps.
	// Zero values fall back to the package defaults.
	TopK      int
	MaxTokens int
	MaxBytes  int

	// Policy tunes ranking and budget priority.
	Policy Policy

	// Logger receives load and retrieval telemetry. Nil uses the
	// process default.
	Logger *logging.Logger
}

// Options are per-call overrides for the retrieval caps. Zero values fall
// back to the service configuration.
type Options struct {
	TopK      int
	MaxTokens int
	MaxBytes  int
}

// Stats describes the currently served snapshot.
type Stats struct {
	Ready       bool      `json:"ready"`
	Facts       int       `json:"facts"`
	Disclaimers int       `json:"disclaimers"`
	Diagnostics int       `json:"diagnostics"`
	VocabSize   int       `json:"vocab_size"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
	Loads       int64     `json:"loads"`
}

// snapshot pairs a loaded pack with its term index. Both are immutable.
type snapshot struct {
	pack  *pack.Pack
	index *index.Index
}

// Service answers topic queries against the current knowledge snapshot.
//
// # Thread Safety
//
// Safe for concurrent use. Retrievals are lock-free; Load may run
// concurrently with retrievals and with other Loads (last swap wins).
type Service struct {
	cfg    Config
	logger *logging.Logger
	loader *pack.Loader

	snap  atomic.Pointer[snapshot]
	loads atomic.Int64
}

// New creates a Service. No pack is loaded yet; call Load before serving
// or retrievals will fail with ErrNotReady.
func New(cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
		loader: pack.NewLoader(logger),
	}
}

// Load reads the configured pack files, builds a fresh index, and swaps
// the new snapshot in.
//
// # Description
//
// A load error leaves the previous snapshot (if any) untouched, so a bad
// reload never takes a serving instance down. Facts file problems are
// always fatal to the load; disclaimers degrade unless
// DisclaimersRequired is set.
//
// # Inputs
//
//   - ctx: Carries the trace span and cancellation for file reads.
//
// # Outputs
//
//   - error: *pack.LoadError on failure, nil on success.
func (s *Service) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "retrieval.Service.Load")
	defer span.End()

	p, err := s.loader.Load(ctx, pack.LoadOptions{
		FactsPath:           s.cfg.FactsPath,
		DisclaimersPath:     s.cfg.DisclaimersPath,
		DisclaimersRequired: s.cfg.DisclaimersRequired,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	snap := &snapshot{pack: p, index: index.Build(p.Facts)}
	s.snap.Store(snap)
	n := s.loads.Add(1)

	span.SetAttributes(
		attribute.Int("retrieval.facts", len(p.Facts)),
		attribute.Int("retrieval.vocab", snap.index.VocabSize()),
		attribute.Int64("retrieval.loads", n),
	)
	s.logger.Info("knowledge snapshot swapped",
		"facts", len(p.Facts),
		"disclaimers", len(p.Disclaimers),
		"diagnostics", len(p.Diagnostics),
		"loads", n,
	)
	return nil
}

// Ready reports whether a snapshot is available to serve retrievals.
func (s *Service) Ready() bool {
	return s.snap.Load() != nil
}

// Pack returns the currently served pack, or nil before the first load.
// The returned pack must be treated as read-only.
func (s *Service) Pack() *pack.Pack {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.pack
}

// Stats returns counters describing the current snapshot.
func (s *Service) Stats() Stats {
	st := Stats{Loads: s.loads.Load()}
	snap := s.snap.Load()
	if snap == nil {
		return st
	}
	st.Ready = true
	st.Facts = len(snap.pack.Facts)
	st.Disclaimers = len(snap.pack.Disclaimers)
	st.Diagnostics = len(snap.pack.Diagnostics)
	st.VocabSize = snap.index.VocabSize()
	st.LoadedAt = snap.pack.LoadedAt
	return st
}

// RetrieveFactsPack assembles a budgeted facts pack for a topic.
//
// # Description
//
// Splits the topic into lower-cased terms, scores every fact whose text
// contains at least one term as a substring, keeps the TopK by score
// (ties broken by ascending fact id), selects disclaimers per policy,
// and fits the result under the byte and token caps. Dropped items are
// skipped individually, so the best-fitting subset of the ranked list is
// returned rather than a strict prefix.
//
// # Inputs
//
//   - ctx: Carries the trace span.
//   - topic: Free-text topic. Leading and trailing whitespace is
//     stripped; an empty result is a ValidationError.
//   - opts: Per-call cap overrides. Zero values use the service config.
//
// # Outputs
//
//   - *pack.FactsPack: Never nil on success. Facts and Disclaimers are
//     non-nil even when empty, so the envelope serializes to [] not null.
//   - error: ErrNotReady before the first load, ValidationError for a
//     blank topic, BudgetError when the caps cannot hold the envelope.
//
// # Determinism
//
// The same snapshot, topic, and caps always produce a byte-identical
// serialized pack.
func (s *Service) RetrieveFactsPack(ctx context.Context, topic string, opts Options) (*pack.FactsPack, error) {
	_, span := tracer.Start(ctx, "retrieval.Service.RetrieveFactsPack")
	defer span.End()

	topic = strings.TrimSpace(topic)
	if topic == "" {
		err := &ValidationError{Field: "topic", Reason: "must not be empty"}
		telemetry.RecordError(span, err)
		return nil, err
	}

	snap := s.snap.Load()
	if snap == nil {
		telemetry.RecordError(span, ErrNotReady)
		return nil, ErrNotReady
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.MaxTokens
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = s.cfg.MaxBytes
	}

	fp := &pack.FactsPack{
		Topic:       topic,
		Facts:       make([]pack.KnowledgeFact, 0, topK),
		Disclaimers: []string{},
	}

	bytes, tokens, err := measure(fp)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !fitsWithin(bytes, tokens, maxBytes, maxTokens) {
		berr := &BudgetError{
			MaxBytes:   maxBytes,
			MaxTokens:  maxTokens,
			NeedBytes:  bytes,
			NeedTokens: tokens,
		}
		telemetry.RecordError(span, berr)
		return nil, berr
	}

	terms := topicTerms(topic)
	scored := scoreFacts(snap, terms, s.cfg.Policy.NormalizeByLength)
	if len(scored) > topK {
		scored = scored[:topK]
	}

	selected := make([]pack.KnowledgeFact, len(scored))
	categories := make(map[string]bool)
	for i, sf := range scored {
		f := snap.pack.Facts[sf.pos]
		selected[i] = f
		if f.Category != "" {
			categories[strings.ToLower(f.Category)] = true
		}
	}

	mandatory, optional := selectDisclaimers(snap.pack.Disclaimers, s.cfg.Policy.AlwaysInclude, categories)

	report, err := fitPack(fp, selected, mandatory, optional, maxBytes, maxTokens, s.cfg.Policy.FactsFirst)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("retrieval.terms", len(terms)),
		attribute.Int("retrieval.matched", len(scored)),
		attribute.Int("retrieval.facts", len(fp.Facts)),
		attribute.Int("retrieval.disclaimers", len(fp.Disclaimers)),
		attribute.Int("retrieval.bytes", report.bytes),
		attribute.Int("retrieval.tokens", report.tokens),
		attribute.Int("retrieval.dropped_facts", report.droppedFacts),
		attribute.Int("retrieval.dropped_disclaimers", report.droppedDisclaimers),
	)
	s.logger.Debug("facts pack assembled",
		"terms", len(terms),
		"facts", len(fp.Facts),
		"disclaimers", len(fp.Disclaimers),
		"bytes", report.bytes,
		"tokens", report.tokens,
	)
	return fp, nil
}

// =============================================================================
// Ranking
// =============================================================================

// scoredFact carries a candidate's position and ranking key.
type scoredFact struct {
	pos   int
	id    string
	score float64
}

// topicTerms splits a topic into lower-cased query terms, trimming the
// punctuation that clings to spoken-style queries ("what about latency?").
func topicTerms(topic string) []string {
	fields := strings.Fields(strings.ToLower(topic))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"")
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

// scoreFacts ranks every fact matching at least one term.
//
// The score is the count of distinct terms occurring as substrings of the
// fact's lower-cased text, optionally normalized by text length. Ordering
// is score descending with ties broken by ascending fact id, which keeps
// rankings stable across identical inputs.
func scoreFacts(snap *snapshot, terms []string, normalize bool) []scoredFact {
	candidates := snap.index.Candidates(terms)
	scored := make([]scoredFact, 0, len(candidates))
	for _, pos := range candidates {
		matched := snap.index.MatchCount(pos, terms)
		if matched == 0 {
			continue
		}
		score := float64(matched)
		if normalize {
			if n := snap.index.TextLen(pos); n > 0 {
				score /= float64(n)
			}
		}
		scored = append(scored, scoredFact{
			pos:   pos,
			id:    snap.pack.Facts[pos].ID,
			score: score,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
	return scored
}

// =============================================================================
// Disclaimer Selection
// =============================================================================

// renderDisclaimer formats a disclaimer for the response envelope. The id
// prefix keeps every shipped disclaimer traceable back to its pack entry.
func renderDisclaimer(d pack.DisclaimerEntry) string {
	return "[" + d.ID + "] " + d.Text
}

// selectDisclaimers partitions the pack's disclaimers into the mandatory
// set (ids in alwaysInclude) and the optional set (required_for
// intersects the matched fact categories, case-insensitively). Both
// lists are ordered by ascending id and never overlap.
func selectDisclaimers(entries []pack.DisclaimerEntry, alwaysInclude []string, categories map[string]bool) (mandatory, optional []string) {
	always := make(map[string]bool, len(alwaysInclude))
	for _, id := range alwaysInclude {
		always[id] = true
	}

	var mandatoryEntries, optionalEntries []pack.DisclaimerEntry
	for _, d := range entries {
		if always[d.ID] {
			mandatoryEntries = append(mandatoryEntries, d)
			continue
		}
		for _, cat := range d.RequiredFor {
			if categories[strings.ToLower(cat)] {
				optionalEntries = append(optionalEntries, d)
				break
			}
		}
	}

	byID := func(ds []pack.DisclaimerEntry) {
		sort.Slice(ds, func(i, j int) bool { return ds[i].ID < ds[j].ID })
	}
	byID(mandatoryEntries)
	byID(optionalEntries)

	mandatory = make([]string, 0, len(mandatoryEntries))
	for _, d := range mandatoryEntries {
		mandatory = append(mandatory, renderDisclaimer(d))
	}
	optional = make([]string, 0, len(optionalEntries))
	for _, d := range optionalEntries {
		optional = append(optional, renderDisclaimer(d))
	}
	return mandatory, optional
}
