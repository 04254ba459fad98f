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
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/pkg/ux"
	"github.com/AleutianAI/AleutianVoice/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
)

func runPackValidate(cmd *cobra.Command, args []string) {
	stats, err := validatePack(args[0], disclaimersPath)
	if err != nil {
		ux.Error(fmt.Sprintf("Pack validation failed: %v", err))
		log.Fatalf("Invalid pack: %v", err)
	}

	ux.Success("Pack is valid")
	ux.KeyValue("Facts", fmt.Sprintf("%d", stats.Facts))
	ux.KeyValue("Disclaimers", fmt.Sprintf("%d", stats.Disclaimers))
	ux.KeyValue("Vocabulary", fmt.Sprintf("%d terms", stats.VocabSize))
	if stats.Diagnostics > 0 {
		ux.Warning(fmt.Sprintf("%d entries were skipped; the pack loads but is incomplete", stats.Diagnostics))
	}
}

// validatePack loads the pack files through the same retrieval service
// the gateway runs, so the CLI accepts exactly what the gateway would.
func validatePack(factsPath, disclaimers string) (retrieval.Stats, error) {
	svc := retrieval.New(retrieval.Config{
		FactsPath:       factsPath,
		DisclaimersPath: disclaimers,
		Logger:          logging.New(logging.Config{Quiet: true}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Load(ctx); err != nil {
		return retrieval.Stats{}, err
	}
	return svc.Stats(), nil
}

func runPackReload(cmd *cobra.Command, args []string) {
	baseURL := getGatewayBaseURL()

	var result datatypes.ReloadResponse
	if err := gatewayDo(http.MethodPost, baseURL, "/v1/knowledge/reload", nil, &result); err != nil {
		log.Fatalf("Reload failed: %v", err)
	}

	ux.Success("Gateway reloaded its knowledge pack")
	ux.KeyValue("Facts", fmt.Sprintf("%d", result.Facts))
	ux.KeyValue("Disclaimers", fmt.Sprintf("%d", result.Disclaimers))
	if result.Diagnostics > 0 {
		ux.Warning(fmt.Sprintf("%d entries were skipped during the reload", result.Diagnostics))
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	baseURL := getGatewayBaseURL()

	var stats retrieval.Stats
	if err := gatewayDo(http.MethodGet, baseURL, "/v1/knowledge/status", nil, &stats); err != nil {
		log.Fatalf("Failed to fetch gateway status: %v", err)
	}

	ux.Title("Knowledge Snapshot")
	if stats.Ready {
		ux.Success("Ready")
	} else {
		ux.Warning("Not ready; no pack loaded yet")
	}
	ux.KeyValue("Facts", fmt.Sprintf("%d", stats.Facts))
	ux.KeyValue("Disclaimers", fmt.Sprintf("%d", stats.Disclaimers))
	ux.KeyValue("Vocabulary", fmt.Sprintf("%d terms", stats.VocabSize))
	ux.KeyValue("Loads", fmt.Sprintf("%d", stats.Loads))
	if !stats.LoadedAt.IsZero() {
		ux.KeyValue("Loaded at", stats.LoadedAt.Format(time.RFC3339))
	}
}
