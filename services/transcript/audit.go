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
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
)

// The store doubles as the durable audit backend for enterprise builds.
var _ extensions.AuditLogger = (*Store)(nil)

// auditKey orders events by time. The uuid suffix keeps events landing
// in the same nanosecond from colliding.
func auditKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("audit/%020d/%s", ts.UnixNano(), id))
}

// Log persists one audit event. A zero timestamp is stamped with the
// current time.
func (s *Store) Log(ctx context.Context, event extensions.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	raw, err := json.Marshal(&event)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(auditKey(event.Timestamp, uuid.New().String()), raw)
	})
}

// Query returns audit events matching the filter in chronological order.
//
// Description:
//
//	Scans the audit keyspace (time-ordered by construction), applies
//	the filter fields, then the offset, then the limit. A zero limit
//	returns everything that matches.
func (s *Store) Query(ctx context.Context, filter extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	var events []extensions.AuditEvent
	skipped := 0

	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("audit/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var event extensions.AuditEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return err
			}
			if !matchesFilter(&event, &filter) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			events = append(events, event)
			if filter.Limit > 0 && len(events) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func matchesFilter(event *extensions.AuditEvent, filter *extensions.AuditFilter) bool {
	if len(filter.EventTypes) > 0 {
		found := false
		for _, t := range filter.EventTypes {
			if event.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.UserID != "" && event.UserID != filter.UserID {
		return false
	}
	if filter.ResourceType != "" && event.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != "" && event.ResourceID != filter.ResourceID {
		return false
	}
	if filter.Outcome != "" && event.Outcome != filter.Outcome {
		return false
	}
	if !filter.StartTime.IsZero() && event.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && event.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}
