// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// testAnchor is the fixed "now" used across server tests so that window and
// watermark math is deterministic.
var testAnchor = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestService(t *testing.T) *SyncService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	service, err := NewSyncService(openTestDB(t), &ServiceConfig{AppName: "moviesync-test"}, logger)
	require.NoError(t, err)
	service.now = func() time.Time { return testAnchor }
	service.store.now = service.now
	return service
}

// ts renders a timestamp the given duration before the test anchor.
func ts(before time.Duration) string {
	return FormatTime(testAnchor.Add(-before))
}

func detailsFromJSON(t *testing.T, raw string) DetailsRow {
	t.Helper()
	var row DetailsRow
	require.NoError(t, json.Unmarshal([]byte(raw), &row))
	return row
}
