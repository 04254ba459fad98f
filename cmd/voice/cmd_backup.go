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
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVoice/cmd/voice/gcs"
	"github.com/AleutianAI/AleutianVoice/pkg/ux"
)

// backupClient carries no timeout; a large store streams for as long
// as it takes.
var backupClient = &http.Client{}

func runBackup(cmd *cobra.Command, args []string) {
	baseURL := getGatewayBaseURL()

	path, size, err := downloadBackup(baseURL, backupOutputDir)
	if err != nil {
		log.Fatalf("Backup failed: %v", err)
	}
	ux.Success(fmt.Sprintf("Wrote %s (%d bytes)", path, size))

	if gcsBucket == "" {
		return
	}
	if gcsProject == "" || gcsKeyPath == "" {
		log.Fatalf("GCS upload needs --gcs-project and --gcs-key along with --gcs-bucket")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := gcs.NewClient(ctx, gcsProject, gcsBucket, gcsKeyPath)
	if err != nil {
		log.Fatalf("Failed to create the GCS client: %v", err)
	}
	defer client.Close()

	objectURL, err := client.UploadFile(ctx, path, filepath.Base(path))
	if err != nil {
		log.Fatalf("GCS upload failed: %v", err)
	}
	ux.Success("Uploaded " + objectURL)
}

// downloadBackup streams the gateway's backup endpoint into outDir and
// returns the written path and byte count. The filename comes from the
// gateway's Content-Disposition header so local and server names agree.
func downloadBackup(baseURL, outDir string) (string, int64, error) {
	req, err := newGatewayRequest(http.MethodPost, baseURL+"/v1/backups", nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create the backup request: %w", err)
	}

	resp, err := backupClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to reach the gateway at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, gatewayError(resp)
	}

	outPath := filepath.Join(outDir, backupFilename(resp.Header.Get("Content-Disposition")))
	out, err := os.Create(outPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		// Half a backup restores to a corrupt store; remove it.
		os.Remove(outPath)
		return "", 0, fmt.Errorf("backup stream interrupted: %w", err)
	}
	return outPath, n, nil
}

// backupFilename extracts the server-chosen name, falling back to a
// timestamped default. Base strips any path the server might smuggle in.
func backupFilename(disposition string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." && name != string(filepath.Separator) {
				return name
			}
		}
	}
	return fmt.Sprintf("voice-transcripts-%s.badger", time.Now().UTC().Format("20060102-150405"))
}
