// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
)

// waitForLoads polls until the service has performed at least want loads
// or the deadline passes.
func waitForLoads(t *testing.T, svc *Service, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Stats().Loads >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("service never reached %d loads (at %d)", want, svc.Stats().Loads)
}

func TestWatcher_ReloadsOnFactsChange(t *testing.T) {
	svc := newTestService(t, `{"id":"F1","text":"original fact"}`, "", nil)

	quiet := logging.New(logging.Config{Quiet: true})
	w, err := NewWatcher(svc, quiet, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	updated := `{"id":"F1","text":"original fact"}
{"id":"F2","text":"freshly added fact"}
`
	require.NoError(t, os.WriteFile(svc.cfg.FactsPath, []byte(updated), 0600))

	waitForLoads(t, svc, 2)
	assert.Equal(t, 2, svc.Stats().Facts)
}

// TestWatcher_FailedReloadKeepsServing corrupts a required disclaimers
// file and verifies the previous snapshot survives the failed reload.
func TestWatcher_FailedReloadKeepsServing(t *testing.T) {
	svc := newTestService(t, `{"id":"F1","text":"stable fact"}`, demoDisclaimers, func(cfg *Config) {
		cfg.DisclaimersRequired = true
	})

	quiet := logging.New(logging.Config{Quiet: true})
	w, err := NewWatcher(svc, quiet, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(svc.cfg.DisclaimersPath, []byte("{{{ not json"), 0600))

	// The reload attempt fails, so the load count stays put while the
	// old snapshot keeps answering.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int64(1), svc.Stats().Loads)
	assert.True(t, svc.Ready())

	fp, err := svc.RetrieveFactsPack(context.Background(), "stable", Options{})
	require.NoError(t, err)
	assert.Len(t, fp.Facts, 1)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	svc := newTestService(t, `{"id":"F1","text":"fact"}`, "", nil)
	w, err := NewWatcher(svc, logging.New(logging.Config{Quiet: true}), 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultReloadDebounce, w.debounce)
	w.Stop()
	w.Stop()
}
