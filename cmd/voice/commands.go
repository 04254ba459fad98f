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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVoice/pkg/ux"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "v0.3.0-dev"

// --- Global Command Variables ---
var (
	serverURL   string
	plainOutput bool

	askTopK      int
	askMaxTokens int
	askMaxBytes  int
	askJSON      bool

	disclaimersPath string

	forceDelete bool

	backupOutputDir string
	gcsBucket       string
	gcsProject      string
	gcsKeyPath      string

	rootCmd = &cobra.Command{
		Use:   "voice",
		Short: "A cli to manage the Aleutian Voice gateway",
		Long: `Voice is a tool for querying and administering an Aleutian Voice
				gateway: budgeted fact retrieval, knowledge pack management,
				transcript sessions, and backups.`,
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if plainOutput {
				ux.SetPlain(true)
			}
		},
	}

	// --- Retrieval ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Retrieve budgeted facts for a question",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}

	// --- Knowledge Pack ---
	packCmd = &cobra.Command{
		Use:   "pack",
		Short: "Manage the gateway's knowledge pack",
	}
	packValidateCmd = &cobra.Command{
		Use:   "validate [facts.ndjson]",
		Short: "Validate a pack locally without touching the gateway",
		Args:  cobra.ExactArgs(1),
		Run:   runPackValidate,
	}
	packReloadCmd = &cobra.Command{
		Use:   "reload",
		Short: "Tell the gateway to reload its pack from disk",
		Run:   runPackReload,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the gateway's knowledge snapshot statistics",
		Run:   runStatus,
	}

	// --- Transcript Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage transcript sessions",
	}
	sessionListCmd = &cobra.Command{
		Use:   "list",
		Short: "List transcript sessions",
		Run:   runSessionList,
	}
	sessionShowCmd = &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show a session and its transcript entries",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionShow,
	}
	sessionDeleteCmd = &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a session and all its entries",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionDelete,
	}
	sessionVerifyCmd = &cobra.Command{
		Use:   "verify [session-id]",
		Short: "Verify a session's tamper-evident digest chain",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionVerify,
	}

	// --- Backups ---
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Download a transcript store backup, optionally uploading it to GCS",
		Run:   runBackup,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show client and gateway versions",
		Run:   runVersion,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Gateway base URL (default: VOICE_GATEWAY_URL or "+defaultGatewayURL+")")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Plain machine-readable output, no colors or boxes")

	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "Maximum facts to return (0 uses the gateway default)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "Token budget for the fact pack (0 uses the gateway default)")
	askCmd.Flags().IntVar(&askMaxBytes, "max-bytes", 0, "Byte budget for the serialized pack (0 uses the gateway default)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw fact pack JSON")

	packValidateCmd.Flags().StringVar(&disclaimersPath, "disclaimers", "",
		"Path to a disclaimers.json to validate alongside the facts file")

	sessionDeleteCmd.Flags().BoolVar(&forceDelete, "force", false, "Skip the confirmation prompt")

	backupCmd.Flags().StringVar(&backupOutputDir, "output", ".", "Directory to write the backup file into")
	backupCmd.Flags().StringVar(&gcsBucket, "gcs-bucket", "", "GCS bucket to upload the backup to")
	backupCmd.Flags().StringVar(&gcsProject, "gcs-project", "", "GCP project that owns the bucket")
	backupCmd.Flags().StringVar(&gcsKeyPath, "gcs-key", "", "Path to a service account key JSON file")

	packCmd.AddCommand(packValidateCmd)
	packCmd.AddCommand(packReloadCmd)

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionVerifyCmd)

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}
