// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSavePushInsertThenReplace(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	endpoint := "https://push.example.com/sub/abc"

	id, err := service.SavePush(ctx, endpoint, json.RawMessage(`{"endpoint":"https://push.example.com/sub/abc","keys":{"auth":"a"}}`))
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	var version int64
	err = service.db.QueryRow(`SELECT version FROM push_subscriptions WHERE endpoint = ?`, endpoint).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	// Re-subscribing with the same endpoint replaces the payload and bumps
	// the version instead of duplicating the row.
	id2, err := service.SavePush(ctx, endpoint, json.RawMessage(`{"endpoint":"https://push.example.com/sub/abc","keys":{"auth":"b"}}`))
	require.NoError(t, err)
	require.Equal(t, id, id2)

	var (
		count        int64
		subscription string
	)
	err = service.db.QueryRow(`SELECT count(*) FROM push_subscriptions`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	err = service.db.QueryRow(`SELECT version, subscription FROM push_subscriptions WHERE endpoint = ?`, endpoint).Scan(&version, &subscription)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)
	require.Contains(t, subscription, `"auth":"b"`)
}

func TestSavePushEmptyEndpoint(t *testing.T) {
	service := newTestService(t)

	_, err := service.SavePush(context.Background(), "", json.RawMessage(`{}`))
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "endpoint", validationErr.Field)
}

func TestDeletePush(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	endpoint := "https://push.example.com/sub/abc"

	_, err := service.SavePush(ctx, endpoint, json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, service.DeletePush(ctx, endpoint))
	var count int64
	err = service.db.QueryRow(`SELECT count(*) FROM push_subscriptions`).Scan(&count)
	require.NoError(t, err)
	require.Zero(t, count)

	// Unsubscribing an unknown endpoint is not an error.
	require.NoError(t, service.DeletePush(ctx, endpoint))
}

func TestAdoptPushSubscription(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	endpoint := "https://push.example.com/sub/abc"

	_, err := service.SavePush(ctx, endpoint, json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, service.adoptPushSubscription(ctx, "user-1", endpoint))
	var userID string
	err = service.db.QueryRow(`SELECT user_id FROM push_subscriptions WHERE endpoint = ?`, endpoint).Scan(&userID)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)

	require.Error(t, service.adoptPushSubscription(ctx, "user-1", "https://push.example.com/unknown"))
}
