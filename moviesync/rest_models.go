// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import "encoding/json"

// REST/JSON models for HTTP API requests and responses.
// Field names are part of the wire contract and must stay stable.

// CatalogSyncRequest asks for all catalog rows changed after LastUpdatedAt.
// An empty or malformed watermark requests a full resync.
type CatalogSyncRequest struct {
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

// CatalogSyncResponse carries per-entity deltas plus the advanced watermark.
type CatalogSyncResponse struct {
	Movies        []MovieRow    `json:"movies"`
	Votes         []VotesRow    `json:"votes"`
	Images        []ImagesRow   `json:"images"`
	Metadata      []MetadataRow `json:"metadata"`
	LastUpdatedAt string        `json:"lastUpdatedAt"`
}

// ProfileSyncRequest pushes locally changed detail rows and asks for the
// server's detail delta. PushEndpoint associates the caller's push
// subscription with the account when present.
type ProfileSyncRequest struct {
	Details       []DetailsRow `json:"details"`
	PushEndpoint  string       `json:"pushEndpoint,omitempty"`
	LastUpdatedAt string       `json:"lastUpdatedAt"`
}

// ProfileInfo describes the authenticated session.
type ProfileInfo struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"isAdmin"`
	User    string `json:"user"`
}

// ProfileSyncResponse returns the session info and the detail delta, each
// row stamped with syncedAt so the client can mark it acknowledged.
type ProfileSyncResponse struct {
	Info          ProfileInfo  `json:"info"`
	Details       []DetailsRow `json:"details"`
	LastUpdatedAt string       `json:"lastUpdatedAt"`
}

// PushSubscribeRequest carries the opaque browser subscription JSON. The
// endpoint field is extracted for keying; the rest is stored verbatim.
type PushSubscribeRequest struct {
	Endpoint     string          `json:"endpoint"`
	Subscription json.RawMessage `json:"subscription,omitempty"`
}

// PushUnsubscribeRequest removes a subscription by endpoint.
type PushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse reports service health.
type StatusResponse struct {
	Status  string `json:"status"`
	AppName string `json:"app_name"`
	Version string `json:"version"`
}
