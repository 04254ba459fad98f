// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// End-to-end tests drive the compiled voice CLI against a running
// gateway. Point VOICE_E2E_URL at one and run:
//
//	VOICE_E2E_URL=http://localhost:12400 go test ./test/e2e/...
//
// Without VOICE_E2E_URL the whole suite is skipped.
package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var (
	cliBinary  string
	gatewayURL string
)

func TestMain(m *testing.M) {
	gatewayURL = os.Getenv("VOICE_E2E_URL")
	if gatewayURL == "" {
		fmt.Println("VOICE_E2E_URL not set; skipping e2e suite")
		os.Exit(0)
	}

	// 1. Build the binary
	cwd, _ := os.Getwd()
	cliBinary = filepath.Join(cwd, "voice_e2e")

	// Running from test/e2e/, go up to root
	cmd := exec.Command("go", "build", "-o", cliBinary, "../../cmd/voice")
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("Failed to build CLI: %v\n%s\n", err, out)
		os.Exit(1)
	}

	// 2. Run Tests
	exitCode := m.Run()

	// 3. Cleanup
	os.Remove(cliBinary)
	os.Exit(exitCode)
}

// runCLI invokes the built binary against the e2e gateway in plain
// output mode and returns the combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--server", gatewayURL, "--plain"}, args...)
	cmd := exec.Command(cliBinary, full...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
