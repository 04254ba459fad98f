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
	"errors"
	"fmt"
)

// ErrNotReady is returned when retrieval is attempted before any knowledge
// pack has been loaded. Callers should check Ready() or retry after the
// initial load completes.
var ErrNotReady = errors.New("knowledge service has no pack loaded")

// ValidationError indicates a caller-supplied argument was rejected before
// any retrieval work started.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// BudgetError indicates the configured byte or token caps are too small to
// hold even an empty response envelope, so no useful pack can be produced.
type BudgetError struct {
	MaxBytes   int
	MaxTokens  int
	NeedBytes  int
	NeedTokens int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf(
		"budget too small for response envelope: need %d bytes / %d tokens, caps allow %d bytes / %d tokens",
		e.NeedBytes, e.NeedTokens, e.MaxBytes, e.MaxTokens,
	)
}

// IsBudgetError returns true if err is a BudgetError.
func IsBudgetError(err error) bool {
	var be *BudgetError
	return errors.As(err, &be)
}
