// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var pushTable = TableSpec{Name: "push_subscriptions", KeyCol: "endpoint"}

// SavePush stores a web-push subscription keyed by endpoint. A new endpoint
// is inserted at version 1; a known endpoint gets its payload replaced and
// its version incremented through the optimistic lock.
func (s *SyncService) SavePush(ctx context.Context, endpoint string, subscription json.RawMessage) (int64, error) {
	if endpoint == "" {
		return 0, &ValidationError{Field: "endpoint", Reason: "must not be empty"}
	}
	if len(subscription) == 0 {
		subscription = json.RawMessage("{}")
	}

	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM push_subscriptions WHERE endpoint = ?`, endpoint).Scan(&version)
	switch {
	case err == nil:
		id, err := s.store.Replace(ctx, pushTable, "", endpoint,
			map[string]any{"subscription": string(subscription)}, version)
		if err != nil {
			return 0, fmt.Errorf("failed to replace subscription: %w", err)
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		id, err := s.store.Insert(ctx, pushTable, "", endpoint, map[string]any{
			"subscription": string(subscription),
			"created_at":   FormatTime(s.now()),
		})
		if err != nil {
			return 0, fmt.Errorf("failed to insert subscription: %w", err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("failed to look up subscription: %w", err)
	}
}

// DeletePush removes a subscription on explicit unsubscribe.
func (s *SyncService) DeletePush(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return &ValidationError{Field: "endpoint", Reason: "must not be empty"}
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
