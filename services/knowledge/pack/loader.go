// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
)

// tracer is the OpenTelemetry tracer for pack loading operations.
var tracer = otel.Tracer("aleutian.voice.pack")

// LoadOptions configures a single load operation.
type LoadOptions struct {
	// FactsPath is the newline-delimited JSON facts file. Required.
	FactsPath string

	// DisclaimersPath is the optional disclaimers JSON file.
	// Empty string means no disclaimers file.
	DisclaimersPath string

	// DisclaimersRequired promotes every disclaimers-file problem
	// (missing file, bad JSON, absent array) from a degradation to a
	// fatal load error. Use for packs where compliance notices are
	// not optional.
	DisclaimersRequired bool
}

// Loader reads knowledge pack files into validated in-memory records.
//
// # Description
//
// Load runs once at startup (or on an explicit reload) and produces an
// immutable Pack. Malformed individual records are tolerated: each bad
// fact line or degraded disclaimers file is recorded as a Diagnostic and
// the load continues. Only a structural failure — the facts file itself
// missing or unreadable — aborts the load.
//
// # Thread Safety
//
// Loader is stateless apart from its logger and is safe for concurrent
// use, though loads are expected to be serialized by the caller.
type Loader struct {
	logger *logging.Logger
}

// NewLoader creates a Loader.
//
// A nil logger falls back to logging.Default().
func NewLoader(logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Loader{logger: logger}
}

// Load reads and validates a knowledge pack.
//
// # Description
//
// Reads the facts file as text, splits it into lines, and parses each
// non-blank line as one JSON KnowledgeFact. Lines that fail to parse are
// skipped with a warning; parseable records missing id or text are
// dropped without a warning (a diagnostic is still recorded). Duplicate
// ids keep the first occurrence. The disclaimers file, when configured,
// degrades to an empty set on any problem unless DisclaimersRequired.
//
// # Inputs
//
//   - ctx: Context for tracing. Not used for cancellation; the load is
//     a bounded local file read.
//   - opts: File paths and disclaimer strictness.
//
// # Outputs
//
//   - *Pack: The validated records plus diagnostics. Never nil on success.
//   - error: *LoadError if the facts file is unreadable, or if the
//     disclaimers file is required and unusable. Nil otherwise.
//
// # Example
//
//	loader := pack.NewLoader(logger)
//	p, err := loader.Load(ctx, pack.LoadOptions{
//	    FactsPath:       "packs/nextgen/facts.ndjson",
//	    DisclaimersPath: "packs/nextgen/disclaimers.json",
//	})
//	if err != nil {
//	    return fmt.Errorf("load pack: %w", err)
//	}
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*Pack, error) {
	_, span := tracer.Start(ctx, "pack.Loader.Load")
	defer span.End()

	data, err := os.ReadFile(opts.FactsPath)
	if err != nil {
		span.RecordError(err)
		return nil, &LoadError{Path: opts.FactsPath, Err: err}
	}

	p := &Pack{
		Facts:           make([]KnowledgeFact, 0, 64),
		Disclaimers:     []DisclaimerEntry{},
		FactsPath:       opts.FactsPath,
		DisclaimersPath: opts.DisclaimersPath,
	}

	seen := make(map[string]int) // id -> first line number

	for i, raw := range strings.Split(string(data), "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		fact, diag := parseFactLine(line, lineNo)
		if diag != nil {
			p.Diagnostics = append(p.Diagnostics, *diag)
			if diag.Kind == KindParseError {
				l.logger.Warn("fact line skipped",
					"path", opts.FactsPath,
					"line", lineNo,
					"reason", diag.Detail,
				)
			}
			continue
		}

		if firstLine, dup := seen[fact.ID]; dup {
			p.Diagnostics = append(p.Diagnostics, Diagnostic{
				Kind:   KindDuplicateID,
				Line:   lineNo,
				Detail: fmt.Sprintf("id %q already defined at line %d", fact.ID, firstLine),
			})
			continue
		}
		seen[fact.ID] = lineNo
		p.Facts = append(p.Facts, fact)
	}

	if err := l.loadDisclaimers(p, opts); err != nil {
		span.RecordError(err)
		return nil, err
	}

	p.LoadedAt = time.Now().UTC()

	span.SetAttributes(
		attribute.Int("pack.facts", len(p.Facts)),
		attribute.Int("pack.disclaimers", len(p.Disclaimers)),
		attribute.Int("pack.diagnostics", len(p.Diagnostics)),
	)
	l.logger.Info("knowledge pack loaded",
		"path", opts.FactsPath,
		"facts", len(p.Facts),
		"disclaimers", len(p.Disclaimers),
		"skipped", len(p.Diagnostics),
	)

	return p, nil
}

// parseFactLine parses and validates a single fact line.
//
// Returns the fact and a nil diagnostic on success, or a zero fact and
// the diagnostic explaining the skip. This is the whole partial-failure
// policy in one place: no panics, no error returns, just an optional
// record plus an optional diagnostic.
func parseFactLine(line string, lineNo int) (KnowledgeFact, *Diagnostic) {
	var fact KnowledgeFact
	if err := json.Unmarshal([]byte(line), &fact); err != nil {
		return KnowledgeFact{}, &Diagnostic{
			Kind:   KindParseError,
			Line:   lineNo,
			Detail: err.Error(),
		}
	}

	if fact.ID == "" {
		return KnowledgeFact{}, &Diagnostic{
			Kind:   KindMissingField,
			Line:   lineNo,
			Detail: "id",
		}
	}
	if fact.Text == "" {
		return KnowledgeFact{}, &Diagnostic{
			Kind:   KindMissingField,
			Line:   lineNo,
			Detail: "text",
		}
	}

	return fact, nil
}

// loadDisclaimers fills p.Disclaimers from the configured file.
//
// Best-effort unless opts.DisclaimersRequired: any problem records a
// KindDisclaimersDegraded diagnostic and leaves the set empty.
func (l *Loader) loadDisclaimers(p *Pack, opts LoadOptions) error {
	degrade := func(detail string, cause error) error {
		if opts.DisclaimersRequired {
			return &LoadError{Path: opts.DisclaimersPath, Err: fmt.Errorf("%s: %w", detail, cause)}
		}
		p.Diagnostics = append(p.Diagnostics, Diagnostic{
			Kind:   KindDisclaimersDegraded,
			Detail: detail,
		})
		l.logger.Warn("disclaimers degraded to empty set",
			"path", opts.DisclaimersPath,
			"reason", detail,
		)
		return nil
	}

	if opts.DisclaimersPath == "" {
		if opts.DisclaimersRequired {
			return &LoadError{Path: "", Err: fmt.Errorf("disclaimers required but no path configured")}
		}
		return nil
	}

	data, err := os.ReadFile(opts.DisclaimersPath)
	if err != nil {
		return degrade("disclaimers file unreadable", err)
	}

	var doc disclaimerFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return degrade("disclaimers file is not valid JSON", err)
	}
	if doc.Disclaimers == nil {
		return degrade("disclaimers array absent", errDisclaimersAbsent)
	}

	for _, d := range doc.Disclaimers {
		if d.ID == "" || d.Text == "" {
			p.Diagnostics = append(p.Diagnostics, Diagnostic{
				Kind:   KindMissingField,
				Detail: fmt.Sprintf("disclaimer %q missing id or text", d.ID),
			})
			continue
		}
		p.Disclaimers = append(p.Disclaimers, d)
	}

	return nil
}

var errDisclaimersAbsent = fmt.Errorf("no disclaimers array in document")

// LoadError is the fatal load failure: the facts file (or a required
// disclaimers file) could not be read or parsed as a whole. Individual
// bad records never produce a LoadError.
type LoadError struct {
	Path string
	Err  error
}

// Error implements the error interface for LoadError.
func (e *LoadError) Error() string {
	return fmt.Sprintf("knowledge pack load failed for %q: %v", e.Path, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError checks if an error is a LoadError.
//
// Example:
//
//	if pack.IsLoadError(err) {
//	    log.Error("pack unusable, keeping previous snapshot", "error", err)
//	}
func IsLoadError(err error) bool {
	_, ok := err.(*LoadError)
	return ok
}
