// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wholegroup/movie-app-sub000/internal/auth"
)

// detailsTable is the versioned table behind user detail rows.
var detailsTable = TableSpec{Name: "details", OwnerCol: "user_id", KeyCol: "movie_id"}

// SyncProfile merges the client's pushed detail rows and returns the
// server's detail delta since lastUpdatedAt. The session identity comes from
// ctx; without one the call fails with ErrAuthRequired.
func (s *SyncService) SyncProfile(ctx context.Context, req *ProfileSyncRequest) (*ProfileSyncResponse, error) {
	userID, ok := auth.UserID(ctx)
	if !ok || userID == "" {
		return nil, ErrAuthRequired
	}

	if len(req.Details) > 0 {
		if err := s.SynchronizeUserDetails(ctx, userID, req.Details); err != nil {
			return nil, err
		}
	}

	if req.PushEndpoint != "" {
		if err := s.adoptPushSubscription(ctx, userID, req.PushEndpoint); err != nil {
			// Subscription bookkeeping must not fail the profile sync.
			s.logger.Warn("Failed to adopt push subscription", "error", err, "endpoint", req.PushEndpoint)
		}
	}

	since := s.clampWatermark(req.LastUpdatedAt)
	details, err := s.detailsSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	watermark := since
	for _, row := range details {
		watermark = maxTimestamp(watermark, row.UpdatedAt)
	}
	if watermark == "" {
		watermark = FormatTime(s.now())
	}

	userName, _ := auth.UserName(ctx)
	return &ProfileSyncResponse{
		Info: ProfileInfo{
			ID:      userID,
			IsAdmin: auth.IsAdmin(ctx),
			User:    userName,
		},
		Details:       details,
		LastUpdatedAt: watermark,
	}, nil
}

// SynchronizeUserDetails merges pushed detail rows into storage one row at a
// time. For an existing row the stored version is carried forward as the
// optimistic-lock expectation, so the version lineage stays server
// controlled; payload fields merge key-wise and previously supplied fields
// persist unless explicitly overwritten. A missing row is created at
// version 1. Rows merged before a failing row stay applied.
func (s *SyncService) SynchronizeUserDetails(ctx context.Context, userID string, incoming []DetailsRow) error {
	if userID == "" {
		return &ValidationError{Field: "userId", Reason: "must not be empty"}
	}

	existing, err := s.loadDetails(ctx, userID)
	if err != nil {
		return err
	}

	for _, row := range incoming {
		current, found := existing[row.MovieID]

		merged := make(map[string]json.RawMessage)
		if found {
			for k, v := range current.Fields {
				merged[k] = v
			}
		}
		for k, v := range row.Fields {
			merged[k] = v
		}
		payload, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal details payload: %w", err)
		}

		cols := map[string]any{
			"mark":    markColumn(merged),
			"payload": string(payload),
		}
		if found {
			_, err = s.store.Replace(ctx, detailsTable, userID, row.MovieID, cols, current.Version)
		} else {
			_, err = s.store.Insert(ctx, detailsTable, userID, row.MovieID, cols)
		}
		if err != nil {
			return fmt.Errorf("failed to merge details for movie %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// loadDetails reads all detail rows of a user keyed by movie id.
func (s *SyncService) loadDetails(ctx context.Context, userID string) (map[int64]DetailsRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT movie_id, version, payload, updated_at FROM details WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query details: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]DetailsRow)
	for rows.Next() {
		row, err := scanDetails(rows)
		if err != nil {
			return nil, err
		}
		out[row.MovieID] = row
	}
	return out, rows.Err()
}

// detailsSince returns the user's detail rows changed after since, each
// stamped with syncedAt = now so the client can mark them acknowledged.
func (s *SyncService) detailsSince(ctx context.Context, userID, since string) ([]DetailsRow, error) {
	query := `SELECT movie_id, version, payload, updated_at FROM details WHERE user_id = ?`
	args := []any{userID}
	if since != "" {
		query += ` AND updated_at > ?`
		args = append(args, since)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY movie_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query details delta: %w", err)
	}
	defer rows.Close()

	syncedAt := FormatTime(s.now())
	var out []DetailsRow
	for rows.Next() {
		row, err := scanDetails(rows)
		if err != nil {
			return nil, err
		}
		row.SyncedAt = syncedAt
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanDetails(rows *sql.Rows) (DetailsRow, error) {
	var (
		row     DetailsRow
		payload string
	)
	if err := rows.Scan(&row.MovieID, &row.Version, &payload, &row.UpdatedAt); err != nil {
		return DetailsRow{}, fmt.Errorf("failed to scan details row: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &row.Fields); err != nil {
		return DetailsRow{}, fmt.Errorf("failed to decode details payload: %w", err)
	}
	return row, nil
}

// markColumn extracts the mark value for the dedicated column; an absent or
// null mark stores SQL NULL.
func markColumn(fields map[string]json.RawMessage) any {
	row := DetailsRow{Fields: fields}
	if mark, ok := row.Mark(); ok {
		return mark
	}
	return nil
}

// adoptPushSubscription associates an existing subscription with the
// authenticated user and freshens its stamp.
func (s *SyncService) adoptPushSubscription(ctx context.Context, userID, endpoint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET user_id = ?, updated_at = ? WHERE endpoint = ?`,
		userID, FormatTime(s.now()), endpoint)
	if err != nil {
		return fmt.Errorf("failed to adopt subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("unknown push endpoint")
	}
	return nil
}
