// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package movielite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wholegroup/movie-app-sub000/moviesync"
)

// ConnectivityError wraps a transport failure. The scheduler recovers from
// it with its uniform delay; it is never surfaced to the user directly.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity failure: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// SyncClient talks to the sync server over HTTP/JSON.
type SyncClient struct {
	BaseURL string
	Token   func(context.Context) (string, error) // optional; returns a bearer token
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewSyncClient creates a client for the server at baseURL. Each call is
// bounded by the HTTP client's timeout; sync steps themselves carry none.
func NewSyncClient(baseURL string, token func(context.Context) (string, error), logger *slog.Logger) *SyncClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// SyncCatalog fetches the catalog delta since lastUpdatedAt.
func (c *SyncClient) SyncCatalog(ctx context.Context, lastUpdatedAt string) (*moviesync.CatalogSyncResponse, error) {
	var resp moviesync.CatalogSyncResponse
	err := c.post(ctx, "/sync-catalog", &moviesync.CatalogSyncRequest{LastUpdatedAt: lastUpdatedAt}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncProfile pushes pending detail rows and fetches the profile delta. A
// 401 response maps to moviesync.ErrAuthRequired so the caller can treat it
// as "no profile available" rather than a failure.
func (c *SyncClient) SyncProfile(ctx context.Context, req *moviesync.ProfileSyncRequest) (*moviesync.ProfileSyncResponse, error) {
	var resp moviesync.ProfileSyncResponse
	if err := c.post(ctx, "/sync-profile", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Subscribe registers the raw browser push subscription with the server.
func (c *SyncClient) Subscribe(ctx context.Context, subscription json.RawMessage) error {
	return c.post(ctx, "/push/subscribe", subscription, nil)
}

// Unsubscribe removes the subscription for endpoint.
func (c *SyncClient) Unsubscribe(ctx context.Context, endpoint string) error {
	return c.post(ctx, "/push/unsubscribe", &moviesync.PushUnsubscribeRequest{Endpoint: endpoint}, nil)
}

func (c *SyncClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return moviesync.ErrAuthRequired
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
