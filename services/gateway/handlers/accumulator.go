// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements secure accumulation of in-progress utterance text.
// A spoken utterance sits in memory between the first partial and the
// commit; during that window it lives in mlocked memory so it cannot be
// swapped to disk, and it is hashed incrementally so the digest stored in
// the transcript covers exactly the bytes that were accumulated.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// UtteranceBufferSize is the size of the mlocked buffer for utterance
	// accumulation. Utterances are spoken sentences, not documents; 256 KB
	// holds several minutes of dense speech with margin.
	UtteranceBufferSize = 256 * 1024

	// MinMlockLimitKB is the minimum mlock limit required in kilobytes.
	MinMlockLimitKB = 256

	// insecureMemoryEnv acknowledges running without mlock protection.
	insecureMemoryEnv = "ALEUTIAN_VOICE_INSECURE_MEMORY"
)

// =============================================================================
// Package Variables
// =============================================================================

var (
	// memguardInitOnce ensures memguard initialization happens only once.
	memguardInitOnce sync.Once

	// mlockSufficient is set during initialization to indicate whether
	// secure memory is available.
	mlockSufficient bool

	// currentMlockLimitKB stores the probed mlock limit for logging.
	currentMlockLimitKB int64
)

// =============================================================================
// Interface
// =============================================================================

// UtteranceAccumulator collects utterance text between first partial and
// commit.
//
// # Description
//
// Text is hashed incrementally as it arrives, so the digest returned by
// Finalize covers every byte written, in order. Finalize and Destroy both
// wipe the underlying buffer; the accumulator cannot be reused after
// either.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type UtteranceAccumulator interface {
	// Write appends text. Returns an error on overflow or after the
	// accumulator has been finalized or destroyed.
	Write(text string) error

	// Finalize returns the accumulated text and its SHA-256 digest
	// (hex, 64 characters), then wipes the buffer.
	Finalize() (text string, digest string, err error)

	// Destroy wipes the buffer without returning data. Idempotent; use
	// on error paths.
	Destroy()

	// ID returns the unique identifier for this accumulator instance.
	ID() string

	// CreatedAt returns when this accumulator was created.
	CreatedAt() time.Time
}

// =============================================================================
// Constructor
// =============================================================================

// NewUtteranceAccumulator creates an accumulator backed by mlocked memory.
//
// # Description
//
// Allocates an UtteranceBufferSize mlocked buffer. When the system's
// RLIMIT_MEMLOCK is below MinMlockLimitKB the call fails, unless
// ALEUTIAN_VOICE_INSECURE_MEMORY=true is set, in which case a plain
// heap-backed accumulator is returned with a warning.
//
// # Outputs
//
//   - UtteranceAccumulator: Ready for use (secure or fallback).
//   - error: Non-nil if secure allocation failed and no fallback applies.
func NewUtteranceAccumulator() (UtteranceAccumulator, error) {
	initMemguard()

	if !mlockSufficient {
		if os.Getenv(insecureMemoryEnv) == "true" {
			slog.Warn("using insecure utterance accumulator due to mlock limits",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
			return newHeapAccumulator(), nil
		}
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Raise RLIMIT_MEMLOCK or set %s=true",
			currentMlockLimitKB, MinMlockLimitKB, insecureMemoryEnv,
		)
	}

	buf := memguard.NewBuffer(UtteranceBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", UtteranceBufferSize)
	}
	buf.Melt()

	acc := &secureAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		buffer:    buf,
		hasher:    sha256.New(),
	}
	slog.Debug("created secure utterance accumulator",
		"accumulator_id", acc.id, "buffer_size", UtteranceBufferSize)
	return acc, nil
}

// =============================================================================
// Secure Implementation
// =============================================================================

// secureAccumulator stores utterance bytes in an mlocked memguard buffer.
//
// The buffer is locked against swapping, bracketed by guard pages, and
// explicitly zeroed on Finalize/Destroy.
type secureAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func (a *secureAccumulator) Write(text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("secure buffer overflow: utterance too large")
	}

	b := []byte(text)
	if a.offset+len(b) > UtteranceBufferSize {
		a.overflow = true
		return fmt.Errorf("secure buffer overflow: need %d bytes, have %d remaining",
			len(b), UtteranceBufferSize-a.offset)
	}

	copy(a.buffer.Bytes()[a.offset:], b)
	a.offset += len(b)
	a.hasher.Write(b)
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	text := string(a.buffer.Bytes()[:a.offset])
	digest := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()

	slog.Debug("finalized secure utterance accumulator",
		"accumulator_id", a.id, "text_length", len(text))
	return text, digest, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
	slog.Debug("destroyed secure utterance accumulator", "accumulator_id", a.id)
}

func (a *secureAccumulator) ID() string { return a.id }

func (a *secureAccumulator) CreatedAt() time.Time { return a.createdAt }

// wipe destroys the locked buffer and marks the accumulator dead.
// Caller holds a.mu.
func (a *secureAccumulator) wipe() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

// =============================================================================
// Heap Fallback Implementation
// =============================================================================

// heapAccumulator is the fallback for systems without sufficient mlock.
//
// Same contract as secureAccumulator, but backed by ordinary Go memory:
// the data may be swapped to disk, and wiping is best-effort because the
// garbage collector may have copied it.
type heapAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func newHeapAccumulator() *heapAccumulator {
	acc := &heapAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		data:      make([]byte, 0, UtteranceBufferSize),
		hasher:    sha256.New(),
	}
	slog.Warn("created INSECURE utterance accumulator - data may be swapped to disk",
		"accumulator_id", acc.id)
	return acc
}

func (a *heapAccumulator) Write(text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("buffer overflow: utterance too large")
	}

	b := []byte(text)
	if len(a.data)+len(b) > UtteranceBufferSize {
		a.overflow = true
		return fmt.Errorf("buffer overflow: need %d bytes, have %d remaining",
			len(b), UtteranceBufferSize-len(a.data))
	}

	a.data = append(a.data, b...)
	a.hasher.Write(b)
	return nil
}

func (a *heapAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	text := string(a.data)
	digest := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return text, digest, nil
}

func (a *heapAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *heapAccumulator) ID() string { return a.id }

func (a *heapAccumulator) CreatedAt() time.Time { return a.createdAt }

// wipe zeros the slice (best effort) and marks the accumulator dead.
// Caller holds a.mu.
func (a *heapAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

// =============================================================================
// Memguard Initialization
// =============================================================================

// initMemguard initializes memguard and probes the mlock limit once.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		} else {
			slog.Warn("mlock limit insufficient for secure memory",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
				"override", insecureMemoryEnv+"=true",
			)
		}
	})
}

// checkMlockLimit queries RLIMIT_MEMLOCK and compares it against the
// minimum required. Returns (sufficient, limitKB); limitKB is -1 when
// the limit is unlimited or unreadable.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// PurgeSecureMemory wipes all memguard-allocated memory.
//
// Call during graceful shutdown so no utterance fragments outlive the
// process. Also runs automatically on SIGINT/SIGTERM via CatchInterrupt.
func PurgeSecureMemory() {
	memguard.Purge()
	slog.Info("purged secure memory")
}
