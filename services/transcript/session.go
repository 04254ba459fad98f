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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when the requested session id does not
// exist in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidEntry is returned when an entry fails validation before it
// reaches the database.
var ErrInvalidEntry = errors.New("invalid transcript entry")

// ErrChainBroken is returned by Verify when a recomputed entry digest
// does not match the stored one.
var ErrChainBroken = errors.New("transcript digest chain broken")

// Entry roles. The reflex role marks machine backchannel phrases so
// exports can separate them from substantive assistant speech.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleReflex    = "reflex"
	RoleSystem    = "system"
)

var validRoles = map[string]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleReflex:    true,
	RoleSystem:    true,
}

// Session is one voice conversation.
type Session struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	EntryCount uint64    `json:"entry_count"`

	// LastDigest is the digest of the most recent entry, the head of
	// the session's tamper-evidence chain.
	LastDigest string `json:"last_digest,omitempty"`
}

// Entry is one utterance in a session.
type Entry struct {
	SessionID  string    `json:"session_id"`
	Seq        uint64    `json:"seq"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	Digest     string    `json:"digest"`
	PrevDigest string    `json:"prev_digest,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key layout. Entry sequence numbers are zero-padded so byte order
// equals numeric order during prefix iteration.
func sessionKey(id string) []byte {
	return []byte("session/" + id)
}

func entryKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("entry/%s/%020d", sessionID, seq))
}

func entryScanPrefix(sessionID string) []byte {
	return []byte("entry/" + sessionID + "/")
}

// entryDigest computes the chained digest for one entry. Fields are
// separated by NUL so no concatenation of values can collide with
// another field split.
func entryDigest(prevDigest, sessionID string, seq uint64, role, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\x00%s", prevDigest, sessionID, seq, role, text)
	return hex.EncodeToString(h.Sum(nil))
}

// CreateSession creates and persists a new session.
func (s *Store) CreateSession(ctx context.Context, topic string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:        uuid.New().String(),
		Topic:     topic,
		CreatedAt: now,
		UpdatedAt: now,
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), raw)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session created", "session_id", session.ID)
	return session, nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("session/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var session Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &session)
			})
			if err != nil {
				return err
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// DeleteSession removes a session and all of its entries.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		} else if err != nil {
			return err
		}

		// Collect entry keys first; deleting under an open iterator is
		// not allowed.
		var keys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryScanPrefix(id)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(sessionKey(id))
	})
	if err != nil {
		return err
	}

	s.logger.Info("session deleted", "session_id", id)
	return nil
}

// AppendEntry adds one utterance to a session's transcript.
//
// Description:
//
//	Assigns the next sequence number, chains the entry digest off the
//	session's current head, and commits the entry together with the
//	updated session record. Appends are serialized store-wide so the
//	chain never forks under concurrent writers.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	sessionID - Target session. Must exist.
//	role - One of RoleUser, RoleAssistant, RoleReflex, RoleSystem.
//	text - Utterance text. Must be non-empty.
//
// Outputs:
//
//	*Entry - The persisted entry including its digest.
//	error - ErrSessionNotFound, ErrInvalidEntry, or a storage error.
func (s *Store) AppendEntry(ctx context.Context, sessionID, role, text string) (*Entry, error) {
	if !validRoles[role] {
		return nil, fmt.Errorf("role %q: %w", role, ErrInvalidEntry)
	}
	if text == "" {
		return nil, fmt.Errorf("empty text: %w", ErrInvalidEntry)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var entry *Entry
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var session Session
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		}); err != nil {
			return err
		}

		seq := session.EntryCount
		entry = &Entry{
			SessionID:  sessionID,
			Seq:        seq,
			Role:       role,
			Text:       text,
			PrevDigest: session.LastDigest,
			Digest:     entryDigest(session.LastDigest, sessionID, seq, role, text),
			CreatedAt:  time.Now().UTC(),
		}

		rawEntry, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := txn.Set(entryKey(sessionID, seq), rawEntry); err != nil {
			return err
		}

		session.EntryCount = seq + 1
		session.LastDigest = entry.Digest
		session.UpdatedAt = entry.CreatedAt
		rawSession, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		return txn.Set(sessionKey(sessionID), rawSession)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns a session's entries in sequence order.
func (s *Store) ListEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	var entries []Entry
	err := s.view(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sessionID)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		} else if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryScanPrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Verify walks a session's digest chain from the first entry to the
// head, recomputing every digest.
//
// Outputs:
//
//	int - Number of entries verified before a failure (all of them on
//	      success).
//	error - ErrChainBroken (wrapped with the failing sequence number)
//	        if any digest or link is wrong, nil if the chain is intact.
func (s *Store) Verify(ctx context.Context, sessionID string) (int, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	entries, err := s.ListEntries(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	prev := ""
	for i, e := range entries {
		if e.PrevDigest != prev {
			return i, fmt.Errorf("entry %d links to %q, expected %q: %w", e.Seq, e.PrevDigest, prev, ErrChainBroken)
		}
		want := entryDigest(prev, sessionID, e.Seq, e.Role, e.Text)
		if e.Digest != want {
			return i, fmt.Errorf("entry %d digest mismatch: %w", e.Seq, ErrChainBroken)
		}
		prev = e.Digest
	}

	if session.LastDigest != prev {
		return len(entries), fmt.Errorf("session head %q does not match chain %q: %w", session.LastDigest, prev, ErrChainBroken)
	}
	return len(entries), nil
}
