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
	"log"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVoice/pkg/ux"
	"github.com/AleutianAI/AleutianVoice/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
)

// sessionListResponse mirrors the gateway's GET /v1/sessions body.
type sessionListResponse struct {
	Sessions []transcript.Session `json:"sessions"`
	Count    int                  `json:"count"`
}

// sessionDetailResponse mirrors the gateway's GET /v1/sessions/:id body.
type sessionDetailResponse struct {
	Session transcript.Session `json:"session"`
	Entries []transcript.Entry `json:"entries"`
}

func runSessionList(cmd *cobra.Command, args []string) {
	result, err := listSessions(getGatewayBaseURL())
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}

	if result.Count == 0 {
		fmt.Println("No sessions found.")
		return
	}

	ux.Title("Transcript Sessions")
	for _, s := range result.Sessions {
		topic := s.Topic
		if topic == "" {
			topic = "(untitled)"
		}
		fmt.Printf("%s %s\n", ux.IconBullet.Render(), s.ID)
		ux.Muted(fmt.Sprintf("  %s  %d entries  updated %s",
			topic, s.EntryCount, s.UpdatedAt.Format(time.RFC3339)))
	}
}

func listSessions(baseURL string) (*sessionListResponse, error) {
	var result sessionListResponse
	if err := gatewayDo(http.MethodGet, baseURL, "/v1/sessions", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func runSessionShow(cmd *cobra.Command, args []string) {
	detail, err := getSession(getGatewayBaseURL(), args[0])
	if err != nil {
		log.Fatalf("Failed to read session: %v", err)
	}

	ux.Title("Session " + detail.Session.ID)
	if detail.Session.Topic != "" {
		ux.KeyValue("Topic", detail.Session.Topic)
	}
	ux.KeyValue("Created", detail.Session.CreatedAt.Format(time.RFC3339))
	ux.KeyValue("Updated", detail.Session.UpdatedAt.Format(time.RFC3339))
	ux.KeyValue("Entries", fmt.Sprintf("%d", detail.Session.EntryCount))
	if detail.Session.LastDigest != "" {
		ux.KeyValue("Last digest", detail.Session.LastDigest)
	}

	for _, entry := range detail.Entries {
		fmt.Printf("[%d] %s: %s\n", entry.Seq, entry.Role, entry.Text)
	}
}

func getSession(baseURL, id string) (*sessionDetailResponse, error) {
	var detail sessionDetailResponse
	if err := gatewayDo(http.MethodGet, baseURL, "/v1/sessions/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func runSessionDelete(cmd *cobra.Command, args []string) {
	id := args[0]

	if !forceDelete {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete session %s?", id)).
				Description("This removes the session and every transcript entry in it.").
				Affirmative("Delete").
				Negative("Cancel").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			log.Fatalf("Confirmation failed: %v", err)
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := deleteSession(getGatewayBaseURL(), id); err != nil {
		log.Fatalf("Failed to delete session: %v", err)
	}
	ux.Success("Deleted session " + id)
}

func deleteSession(baseURL, id string) error {
	return gatewayDo(http.MethodDelete, baseURL, "/v1/sessions/"+id, nil, nil)
}

func runSessionVerify(cmd *cobra.Command, args []string) {
	result, err := verifySession(getGatewayBaseURL(), args[0])
	if err != nil {
		log.Fatalf("Failed to verify session: %v", err)
	}

	if result.Intact {
		ux.Success(fmt.Sprintf("Digest chain intact across %d entries", result.Entries))
		return
	}

	// A broken chain exits non-zero so scripted checks catch it.
	ux.Error(fmt.Sprintf("Digest chain broken: %s", result.Error))
	os.Exit(1)
}

func verifySession(baseURL, id string) (*datatypes.VerifyResponse, error) {
	var result datatypes.VerifyResponse
	if err := gatewayDo(http.MethodPost, baseURL, "/v1/sessions/"+id+"/verify", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
