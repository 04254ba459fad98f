// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Success(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	result := IconSuccess.Render()
	if result == "" {
		t.Error("expected non-empty result for IconSuccess")
	}
	if !strings.Contains(result, "✓") {
		t.Errorf("expected checkmark in %q", result)
	}
}

func TestIcon_Render_Warning(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	result := IconWarning.Render()
	if result == "" {
		t.Error("expected non-empty result for IconWarning")
	}
}

func TestIcon_Render_Error(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	result := IconError.Render()
	if result == "" {
		t.Error("expected non-empty result for IconError")
	}
}

func TestIcon_Render_Default(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	// Icons without status styling render as-is
	icons := []Icon{IconArrow, IconBullet}
	for _, icon := range icons {
		result := icon.Render()
		if result != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, result)
		}
	}
}

func TestIcon_Render_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	if got := IconSuccess.Render(); got != "✓" {
		t.Errorf("expected bare icon in plain mode, got %q", got)
	}
}

// =============================================================================
// Plain Mode Tests
// =============================================================================

func TestSetPlain_Toggles(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)
	if Plain() {
		t.Error("expected Plain() false after SetPlain(false)")
	}

	SetPlain(true)
	if !Plain() {
		t.Error("expected Plain() true after SetPlain(true)")
	}
}

// =============================================================================
// Title Tests
// =============================================================================

func TestTitle_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStdout(func() {
		Title("Test Title")
	})

	if output != "Test Title\n" {
		t.Errorf("expected bare title in plain mode, got %q", output)
	}
}

func TestTitle_StyledMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	output := captureStdout(func() {
		Title("Test Title")
	})

	if output == "" {
		t.Error("expected styled output")
	}
}

// =============================================================================
// Success Tests
// =============================================================================

func TestSuccess_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStdout(func() {
		Success("Operation completed")
	})

	if output != "OK: Operation completed\n" {
		t.Errorf("expected 'OK: Operation completed', got %q", output)
	}
}

func TestSuccess_StyledMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	output := captureStdout(func() {
		Success("Operation completed")
	})

	if !strings.Contains(output, "Operation completed") {
		t.Errorf("expected message text in styled output, got %q", output)
	}
}

// =============================================================================
// Warning Tests
// =============================================================================

func TestWarning_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStderr(func() {
		Warning("Something might be wrong")
	})

	if output != "WARN: Something might be wrong\n" {
		t.Errorf("expected 'WARN: Something might be wrong', got %q", output)
	}
}

func TestWarning_StyledMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	output := captureStdout(func() {
		Warning("Something might be wrong")
	})

	if output == "" {
		t.Error("expected styled output")
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestError_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStderr(func() {
		Error("Something went wrong")
	})

	if output != "ERROR: Something went wrong\n" {
		t.Errorf("expected 'ERROR: Something went wrong', got %q", output)
	}
}

func TestError_StyledMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	output := captureStdout(func() {
		Error("Something went wrong")
	})

	if output == "" {
		t.Error("expected styled output")
	}
}

// =============================================================================
// Info Tests
// =============================================================================

func TestInfo_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStdout(func() {
		Info("Information message")
	})

	if output != "Information message\n" {
		t.Errorf("expected plain 'Information message', got %q", output)
	}
}

func TestInfo_StyledMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	output := captureStdout(func() {
		Info("Information message")
	})

	if !strings.Contains(output, "Information message") {
		t.Errorf("expected message text in styled output, got %q", output)
	}
}

// =============================================================================
// Muted Tests
// =============================================================================

func TestMuted_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStdout(func() {
		Muted("Secondary text")
	})

	if output != "Secondary text\n" {
		t.Errorf("expected plain secondary text, got %q", output)
	}
}

// =============================================================================
// KeyValue Tests
// =============================================================================

func TestKeyValue_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStdout(func() {
		KeyValue("Session", "abc-123")
	})

	if output != "Session\tabc-123\n" {
		t.Errorf("expected tab-separated pair, got %q", output)
	}
}

func TestKeyValue_StyledMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	output := captureStdout(func() {
		KeyValue("Session", "abc-123")
	})

	if !strings.Contains(output, "abc-123") {
		t.Errorf("expected value in styled output, got %q", output)
	}
}

// =============================================================================
// Box Tests
// =============================================================================

func TestBox_PlainMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)

	output := captureStdout(func() {
		Box("Title", "Content here")
	})

	if output != "Title: Content here\n" {
		t.Errorf("expected 'Title: Content here', got %q", output)
	}
}

func TestBox_StyledMode(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(false)

	output := captureStdout(func() {
		Box("Title", "Content here")
	})

	if !strings.Contains(output, "Title") || !strings.Contains(output, "Content here") {
		t.Errorf("expected title and content in styled box, got %q", output)
	}
}

// =============================================================================
// Style Constants Tests
// =============================================================================

func TestColorConstants(t *testing.T) {
	colors := []interface{}{
		ColorTealBright,
		ColorTealPrimary,
		ColorTealDeep,
		ColorSlate,
		ColorSuccess,
		ColorWarning,
		ColorError,
	}

	for i, c := range colors {
		if c == nil {
			t.Errorf("color at index %d is nil", i)
		}
	}
}

func TestIconConstants(t *testing.T) {
	icons := map[string]Icon{
		"Success": IconSuccess,
		"Warning": IconWarning,
		"Error":   IconError,
		"Arrow":   IconArrow,
		"Bullet":  IconBullet,
	}

	for name, icon := range icons {
		if string(icon) == "" {
			t.Errorf("icon %s is empty", name)
		}
	}
}
