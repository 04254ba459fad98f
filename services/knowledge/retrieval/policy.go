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

// Policy tunes ranking and assembly behavior that is otherwise fixed at
// construction time. The zero value is usable but DefaultPolicy gives the
// recommended settings.
type Policy struct {
	// AlwaysInclude lists disclaimer ids attached to every response,
	// whether or not any fact matched. Ids not present in the loaded
	// pack are ignored.
	AlwaysInclude []string

	// NormalizeByLength divides each fact's match count by the byte
	// length of its text, so short precise facts outrank long rambling
	// ones with the same number of term hits.
	NormalizeByLength bool

	// FactsFirst controls budget priority. When true, facts are fitted
	// before any disclaimers. When false, the always-include set is
	// fitted first so mandatory disclaimers survive tight budgets at
	// the expense of fact slots. Category-matched disclaimers are
	// fitted after the facts in both modes.
	FactsFirst bool
}

// DefaultPolicy returns the recommended retrieval policy.
func DefaultPolicy() Policy {
	return Policy{
		NormalizeByLength: true,
		FactsFirst:        true,
	}
}
