// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package movielite

import (
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"
)

var testAnchor = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestReplica(t *testing.T) *Replica {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	replica, err := NewReplica(db, testLogger())
	if err != nil {
		t.Fatalf("create replica: %v", err)
	}
	replica.now = func() time.Time { return testAnchor }
	return replica
}

// roundTripFunc lets a test stand in for the sync server without listening on
// a socket.
type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newFakeClient(fn roundTripFunc) *SyncClient {
	client := NewSyncClient("http://sync.test", nil, testLogger())
	client.HTTP = &http.Client{Transport: fn}
	return client
}
