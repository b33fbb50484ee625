// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	auth := NewJWTAuth("test-secret", "admin-id")

	token, err := auth.GenerateToken("user-1", "Alice", time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "Alice", claims.Name)
}

func TestJWTSessionFromRequest(t *testing.T) {
	auth := NewJWTAuth("test-secret", "admin-id")
	token, err := auth.GenerateToken("user-1", "Alice", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/sync-profile", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	session, err := auth.Session(r)
	require.NoError(t, err)
	require.Equal(t, "user-1", session.UserID)
	require.Equal(t, "Alice", session.User)
	require.False(t, session.IsAdmin)
}

func TestJWTAdminSubject(t *testing.T) {
	auth := NewJWTAuth("test-secret", "admin-id")
	token, err := auth.GenerateToken("admin-id", "Root", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/sync-catalog", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	session, err := auth.Session(r)
	require.NoError(t, err)
	require.True(t, session.IsAdmin)
}

func TestJWTRejections(t *testing.T) {
	auth := NewJWTAuth("test-secret", "admin-id")

	r := httptest.NewRequest("POST", "/sync-profile", nil)
	_, err := auth.Session(r)
	require.Error(t, err, "missing header")

	r.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	_, err = auth.Session(r)
	require.Error(t, err, "non-bearer scheme")

	// Token signed with a different secret.
	other := NewJWTAuth("other-secret", "")
	token, err := other.GenerateToken("user-1", "Alice", time.Hour)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+token)
	_, err = auth.Session(r)
	require.Error(t, err)

	// Expired token.
	expired, err := auth.GenerateToken("user-1", "Alice", -time.Minute)
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	require.Error(t, err)
}
