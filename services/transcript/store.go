// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transcript persists voice sessions, their utterance entries,
// and audit events in an embedded BadgerDB.
//
// Everything stays on the appliance. Entries form a per-session SHA-256
// digest chain so a transcript edited after the fact fails verification.
// The store also implements extensions.AuditLogger, giving enterprise
// builds a durable audit trail without a second database.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
)

// Config holds configuration for the transcript store.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and BadgerDB diagnostics. If nil, the
	// process default logger is used.
	Logger *logging.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and value
// log GC every five minutes.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0,
	}
}

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the durable transcript and audit database.
//
// Thread Safety: Safe for concurrent use. Entry appends are serialized
// internally so digest chains never fork.
type Store struct {
	db       *badger.DB
	gc       *gcRunner
	logger   *logging.Logger
	inMemory bool

	appendMu sync.Mutex
	closeErr error
	once     sync.Once
}

// Open creates and opens a transcript store.
//
// Description:
//
//	Opens BadgerDB at the configured path (creating the directory if
//	needed) or in memory, wires BadgerDB's internal logging into the
//	store logger at debug level, and starts the GC runner when
//	configured.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{logger: logger.Slog()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open transcript database: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   logger,
		inMemory: cfg.InMemory,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.Start()
	}

	logger.Info("transcript store opened", "path", cfg.Path, "in_memory", cfg.InMemory)
	return s, nil
}

// Close stops the GC runner and closes the database. Safe to call more
// than once; later calls return the first result.
func (s *Store) Close() error {
	s.once.Do(func() {
		if s.gc != nil {
			s.gc.Stop()
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Flush forces pending writes to disk. No-op for in-memory stores.
// Flush is part of the extensions.AuditLogger contract.
func (s *Store) Flush(_ context.Context) error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Backup streams a full backup of the store to w and returns the version
// watermark of the snapshot. The stream is badger's native backup format
// and can be restored with badger's restore tooling.
func (s *Store) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.db.Backup(w, 0)
}

// update runs fn in a read-write transaction after a context check.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

// view runs fn in a read-only transaction after a context check.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// =============================================================================
// Value Log Garbage Collection
// =============================================================================

// gcRunner triggers periodic value log GC.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *logging.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *logging.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) Start() {
	go r.run()
}

func (r *gcRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing needed collecting.
			err := r.db.RunValueLogGC(r.ratio)
			if err == nil {
				r.logger.Debug("transcript value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("transcript value log GC error", "error", err)
			}
		}
	}
}
