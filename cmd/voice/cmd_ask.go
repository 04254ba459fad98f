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
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVoice/pkg/ux"
	"github.com/AleutianAI/AleutianVoice/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/pack"
)

func runAsk(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	fp, err := retrieveFacts(getGatewayBaseURL(), question, askTopK, askMaxTokens, askMaxBytes)
	if err != nil {
		log.Fatalf("Retrieval failed: %v", err)
	}

	if askJSON {
		raw, err := json.MarshalIndent(fp, "", "  ")
		if err != nil {
			log.Fatalf("Failed to render the fact pack: %v", err)
		}
		fmt.Println(string(raw))
		return
	}

	renderFactsPack(fp)
}

// retrieveFacts asks the gateway for a budgeted fact pack. Zero budget
// values are sent as-is; the gateway substitutes its own defaults.
func retrieveFacts(baseURL, question string, topK, maxTokens, maxBytes int) (*pack.FactsPack, error) {
	req := datatypes.RetrieveRequest{
		RequestID: uuid.NewString(),
		Topic:     question,
		TopK:      topK,
		MaxTokens: maxTokens,
		MaxBytes:  maxBytes,
	}

	var fp pack.FactsPack
	if err := gatewayDo(http.MethodPost, baseURL, "/v1/knowledge/retrieve", req, &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

func renderFactsPack(fp *pack.FactsPack) {
	ux.Title(fp.Topic)

	if len(fp.Facts) == 0 {
		ux.Muted("No facts matched within the budget.")
	}
	for _, fact := range fp.Facts {
		fmt.Printf("%s %s\n", ux.IconBullet.Render(), fact.Text)
		meta := fact.ID
		if fact.Source != "" {
			meta += "  " + fact.Source
		}
		ux.Muted("  " + meta)
	}

	for _, disclaimer := range fp.Disclaimers {
		fmt.Printf("%s %s\n", ux.IconWarning.Render(), disclaimer)
	}
}
