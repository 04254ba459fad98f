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
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/AleutianAI/AleutianVoice/pkg/ux"
)

func runVersion(cmd *cobra.Command, args []string) {
	ux.KeyValue("Client", Version)

	serverVersion, err := fetchServerVersion(getGatewayBaseURL())
	if err != nil {
		// Version must still answer when the gateway is down.
		ux.Warning(fmt.Sprintf("Gateway unreachable: %v", err))
		return
	}
	ux.KeyValue("Gateway", serverVersion)

	if warning := checkVersionSkew(Version, serverVersion); warning != "" {
		ux.Warning(warning)
	}
}

func fetchServerVersion(baseURL string) (string, error) {
	var info struct {
		Service string `json:"service"`
		Version string `json:"version"`
	}
	if err := gatewayDo(http.MethodGet, baseURL, "/version", nil, &info); err != nil {
		return "", err
	}
	return info.Version, nil
}

// checkVersionSkew returns a warning when the client and gateway differ
// at the major or minor level, or "" when they are compatible.
// Non-semver strings such as "dev" produce no warning.
func checkVersionSkew(clientVersion, serverVersion string) string {
	if !semver.IsValid(clientVersion) || !semver.IsValid(serverVersion) {
		return ""
	}
	if semver.Major(clientVersion) != semver.Major(serverVersion) {
		return fmt.Sprintf("client %s and gateway %s differ at the major version; requests may be incompatible",
			clientVersion, serverVersion)
	}
	if semver.MajorMinor(clientVersion) != semver.MajorMinor(serverVersion) {
		return fmt.Sprintf("client %s and gateway %s differ at the minor version; consider upgrading the older side",
			clientVersion, serverVersion)
	}
	return ""
}
