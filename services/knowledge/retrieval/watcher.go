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
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
)

// DefaultReloadDebounce is how long the watcher waits after the last file
// event before triggering a reload. Editors and atomic-rename writers
// produce bursts of events for a single save.
const DefaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads the service's knowledge pack when its source files
// change on disk.
//
// # Description
//
// Watches the parent directories of the configured facts and disclaimers
// paths (many tools replace files by rename, which drops inode-level
// watches) and debounces bursts of events into a single reload. A reload
// failure is logged and the previous snapshot keeps serving.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads run on a single goroutine.
type Watcher struct {
	svc      *Service
	logger   *logging.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	targets  map[string]bool

	events   chan string
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for svc's configured pack files. A
// non-positive debounce uses DefaultReloadDebounce.
func NewWatcher(svc *Service, logger *logging.Logger, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	if logger == nil {
		logger = logging.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	targets := make(map[string]bool)
	for _, p := range []string{svc.cfg.FactsPath, svc.cfg.DisclaimersPath} {
		if p != "" {
			targets[filepath.Clean(p)] = true
		}
	}

	return &Watcher{
		svc:      svc,
		logger:   logger,
		watcher:  fw,
		debounce: debounce,
		targets:  targets,
		events:   make(chan string, 64),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the watch directories and spawns the event and reload
// goroutines. Both exit when Stop is called or ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := make(map[string]bool)
	for target := range w.targets {
		dirs[filepath.Dir(target)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}

	go w.processEvents(ctx)
	go w.reloadLoop(ctx)

	w.logger.Info("pack watcher started", "dirs", len(dirs), "debounce", w.debounce.String())
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// processEvents filters raw fsnotify events down to the watched pack
// files and forwards them to the debouncer.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.targets[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.events <- event.Name:
			default:
				// A reload is already pending, extra events add nothing.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("pack watcher error", "error", err)
		}
	}
}

// reloadLoop debounces change events and reloads the pack when the burst
// settles.
func (w *Watcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case name := <-w.events:
			w.logger.Debug("pack change detected", "path", name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.svc.Load(ctx); err != nil {
				w.logger.Warn("pack reload failed, previous snapshot keeps serving", "error", err)
			}
		}
	}
}
