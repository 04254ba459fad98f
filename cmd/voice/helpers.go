// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultGatewayURL = "http://localhost:12400"

// gatewayClient bounds every control-plane call. Backups stream with
// their own client because a large store can take longer than this.
var gatewayClient = &http.Client{Timeout: 30 * time.Second}

// getGatewayBaseURL resolves the gateway address. The --server flag
// wins, then VOICE_GATEWAY_URL, then the local default.
func getGatewayBaseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if fromEnv := os.Getenv("VOICE_GATEWAY_URL"); fromEnv != "" {
		return strings.TrimRight(fromEnv, "/")
	}
	return defaultGatewayURL
}

// newGatewayRequest builds a request carrying the bearer token from
// VOICE_AUTH_TOKEN when one is set.
func newGatewayRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := os.Getenv("VOICE_AUTH_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// gatewayDo sends a JSON request to the gateway and decodes the JSON
// response into out. A nil payload sends no body; a nil out discards
// the response. Non-2xx responses become errors carrying the server's
// error field when it sent one.
func gatewayDo(method, baseURL, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode the request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := newGatewayRequest(method, baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create the request: %w", err)
	}

	resp, err := gatewayClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach the gateway at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gatewayError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse the gateway response: %w", err)
	}
	return nil
}

// gatewayError turns a non-2xx response into an error, preferring the
// server's own error message over the bare status line.
func gatewayError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(bodyBytes, &e) == nil && e.Error != "" {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, e.Error)
	}
	return fmt.Errorf("gateway returned %s", resp.Status)
}
