// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// gatewayPost hits the gateway directly for setup steps the CLI has no
// command for, carrying the same token the CLI would.
func gatewayPost(t *testing.T, path string, payload any, out any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, gatewayURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("VOICE_AUTH_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("gateway unreachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("setup call %s returned %s", path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode setup response: %v", err)
		}
	}
}

// TestSessionLifecycle walks create -> append -> list -> verify ->
// delete across the CLI and the gateway.
func TestSessionLifecycle(t *testing.T) {
	// 1. Create a session and commit one entry through the HTTP API
	var session struct {
		ID string `json:"id"`
	}
	gatewayPost(t, "/v1/sessions", map[string]string{"topic": "e2e lifecycle"}, &session)
	if session.ID == "" {
		t.Fatal("session create returned no id")
	}
	gatewayPost(t, "/v1/sessions/"+session.ID+"/entries",
		map[string]string{"role": "user", "text": "how were the numbers"}, nil)

	// 2. The CLI should see it
	output, err := runCLI(t, "session", "list")
	if err != nil {
		t.Fatalf("Session list failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, session.ID) {
		t.Errorf("New session missing from list.\nOutput: %s", output)
	}

	// 3. The digest chain must verify
	output, err = runCLI(t, "session", "verify", session.ID)
	if err != nil {
		t.Fatalf("Session verify failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "intact") {
		t.Errorf("Expected an intact chain.\nOutput: %s", output)
	}

	// 4. Show includes the committed entry
	output, err = runCLI(t, "session", "show", session.ID)
	if err != nil {
		t.Fatalf("Session show failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "how were the numbers") {
		t.Errorf("Entry text missing from show.\nOutput: %s", output)
	}

	// 5. Delete and confirm it is gone
	output, err = runCLI(t, "session", "delete", session.ID, "--force")
	if err != nil {
		t.Fatalf("Session delete failed: %v\nOutput: %s", err, output)
	}
	output, err = runCLI(t, "session", "list")
	if err != nil {
		t.Fatalf("Session list failed after delete: %v\nOutput: %s", err, output)
	}
	if strings.Contains(output, session.ID) {
		t.Errorf("Deleted session still listed.\nOutput: %s", output)
	}
}

func TestBackupWritesFile(t *testing.T) {
	outDir := t.TempDir()

	output, err := runCLI(t, "backup", "--output", outDir)
	if err != nil {
		t.Fatalf("Backup command failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "voice-transcripts-") {
		t.Errorf("Backup output missing the archive name.\nOutput: %s", output)
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "*.badger"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected one backup file, found %d", len(matches))
	}
	info, err := os.Stat(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("Backup file is empty")
	}
}
