// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transcript

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
)

// newTestStore opens an in-memory store that closes with the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := InMemoryConfig()
	cfg.Logger = logging.New(logging.Config{Quiet: true})

	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{InMemory: false, Path: ""})
	assert.Error(t, err)
}

// TestOpen_PersistentRoundTrip verifies sessions survive a close/reopen
// cycle on disk.
func TestOpen_PersistentRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.GCInterval = 0
	cfg.Logger = logging.New(logging.Config{Quiet: true})

	s, err := Open(cfg)
	require.NoError(t, err)

	session, err := s.CreateSession(context.Background(), "durability check")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "durability check", got.Topic)
}

func TestStore_CloseIdempotent(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.Logger = logging.New(logging.Config{Quiet: true})
	s, err := Open(cfg)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStore_FlushInMemory(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Flush(context.Background()))
}

func TestStore_Backup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "backup me")
	require.NoError(t, err)
	_, err = s.AppendEntry(ctx, session.ID, RoleUser, "hello there")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.Backup(ctx, &buf)
	require.NoError(t, err)
	assert.Greater(t, buf.Len(), 0, "backup stream should carry data")
}

func TestStore_BackupHonorsContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := s.Backup(ctx, &buf)
	assert.ErrorIs(t, err, context.Canceled)
}
