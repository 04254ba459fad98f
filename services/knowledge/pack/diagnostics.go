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

import "fmt"

// DiagnosticKind classifies why a record was skipped or degraded.
type DiagnosticKind string

const (
	// KindParseError marks a fact line that is not valid JSON.
	KindParseError DiagnosticKind = "parse_error"

	// KindMissingField marks a parseable record missing id or text.
	KindMissingField DiagnosticKind = "missing_field"

	// KindDuplicateID marks a record whose id was already taken.
	// The first occurrence wins; later ones are dropped.
	KindDuplicateID DiagnosticKind = "duplicate_id"

	// KindDisclaimersDegraded marks a disclaimers file that was missing,
	// unreadable, or lacked the disclaimers array. The pack loads with an
	// empty disclaimer set unless disclaimers were declared required.
	KindDisclaimersDegraded DiagnosticKind = "disclaimers_degraded"
)

// Diagnostic records one skipped or degraded record during a load.
//
// Diagnostics are informational. They are appended in encounter order and
// never turned into errors; a load either succeeds with diagnostics or
// fails outright on a structural problem (unreadable facts file).
type Diagnostic struct {
	// Kind classifies the problem.
	Kind DiagnosticKind

	// Line is the 1-based line number in the facts file, or 0 when the
	// diagnostic concerns the disclaimers file.
	Line int

	// Detail is a human-readable description (parse error text, the
	// missing field name, the duplicated id).
	Detail string
}

// String renders the diagnostic for logs.
func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s at line %d: %s", d.Kind, d.Line, d.Detail)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}

// CountKind returns how many diagnostics of the given kind were recorded.
func CountKind(diags []Diagnostic, kind DiagnosticKind) int {
	n := 0
	for _, d := range diags {
		if d.Kind == kind {
			n++
		}
	}
	return n
}
