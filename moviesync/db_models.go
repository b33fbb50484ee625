// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"encoding/json"
	"strconv"
)

// Catalog entities are server-authoritative and read-only for clients. Each
// row is upserted wholesale by the ingestion process and carries its own
// updated_at stamp.

// Person identifies a director or an actor credited on a movie.
type Person struct {
	PersonID int64  `json:"personId"`
	Slug     string `json:"slug"`
	FullName string `json:"fullName"`
}

// MovieRow is the catalog fact for a single movie.
type MovieRow struct {
	MovieID     int64    `json:"movieId"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Year        int      `json:"year"`
	Genres      []string `json:"genres"`
	Runtime     int      `json:"runtime"`
	Description string   `json:"description"`
	Directors   []Person `json:"directors"`
	Stars       []Person `json:"stars"`
	UpdatedAt   string   `json:"updatedAt"`
}

// VotesRow is the per-movie vote aggregate. Its updated_at drives the
// catalog visibility window.
type VotesRow struct {
	MovieID   int64  `json:"movieId"`
	Votes     int64  `json:"votes"`
	UpdatedAt string `json:"updatedAt"`
}

// ImageRef points at a stored poster image.
type ImageRef struct {
	Hash string `json:"hash"`
}

// ImagesRow lists poster images for a movie. Images[0] is the primary
// poster when present; the list may be empty.
type ImagesRow struct {
	MovieID   int64      `json:"movieId"`
	Images    []ImageRef `json:"images"`
	UpdatedAt string     `json:"updatedAt"`
}

// MetadataRow carries admin-only diagnostic attributes per movie. Info is
// opaque to the sync layer.
type MetadataRow struct {
	MovieID   int64           `json:"movieId"`
	Info      json.RawMessage `json:"info"`
	UpdatedAt string          `json:"updatedAt"`
}

// DetailsRow is the one client-writable entity: a per-user-per-movie record
// keyed by (userId, movieId). Version is the optimistic-lock token and is
// server-controlled. Fields holds the user payload verbatim, including
// "mark"; unknown fields pass through untouched so that older servers never
// drop what newer clients write.
type DetailsRow struct {
	MovieID   int64
	Version   int64
	UpdatedAt string
	SyncedAt  string
	Fields    map[string]json.RawMessage
}

// reserved JSON keys handled outside of Fields
const (
	keyMovieID   = "movieId"
	keyVersion   = "version"
	keyUpdatedAt = "updatedAt"
	keySyncedAt  = "syncedAt"
)

func (d *DetailsRow) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = DetailsRow{Fields: make(map[string]json.RawMessage)}
	for k, v := range raw {
		switch k {
		case keyMovieID:
			if err := json.Unmarshal(v, &d.MovieID); err != nil {
				return err
			}
		case keyVersion:
			if err := json.Unmarshal(v, &d.Version); err != nil {
				return err
			}
		case keyUpdatedAt:
			if err := json.Unmarshal(v, &d.UpdatedAt); err != nil {
				return err
			}
		case keySyncedAt:
			if err := json.Unmarshal(v, &d.SyncedAt); err != nil {
				return err
			}
		default:
			d.Fields[k] = v
		}
	}
	return nil
}

func (d DetailsRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Fields)+4)
	for k, v := range d.Fields {
		out[k] = v
	}
	out[keyMovieID] = json.RawMessage(strconv.FormatInt(d.MovieID, 10))
	out[keyVersion] = json.RawMessage(strconv.FormatInt(d.Version, 10))
	if d.UpdatedAt != "" {
		s, _ := json.Marshal(d.UpdatedAt)
		out[keyUpdatedAt] = s
	}
	if d.SyncedAt != "" {
		s, _ := json.Marshal(d.SyncedAt)
		out[keySyncedAt] = s
	}
	return json.Marshal(out)
}

// Mark returns the watch mark, or ok=false when the mark is absent or null.
func (d DetailsRow) Mark() (int64, bool) {
	raw, present := d.Fields["mark"]
	if !present || string(raw) == "null" {
		return 0, false
	}
	var mark int64
	if err := json.Unmarshal(raw, &mark); err != nil {
		return 0, false
	}
	return mark, true
}

// SetMark stores the watch mark; nil clears it (the key stays present as an
// explicit null so a merge propagates the unmark).
func (d *DetailsRow) SetMark(mark *int64) {
	if d.Fields == nil {
		d.Fields = make(map[string]json.RawMessage)
	}
	if mark == nil {
		d.Fields["mark"] = json.RawMessage("null")
		return
	}
	d.Fields["mark"] = json.RawMessage(strconv.FormatInt(*mark, 10))
}

// PushSubscriptionRow stores an opaque web-push subscription keyed by its
// endpoint URL.
type PushSubscriptionRow struct {
	ID           int64           `json:"id"`
	Endpoint     string          `json:"endpoint"`
	Version      int64           `json:"version"`
	UserID       string          `json:"userId,omitempty"`
	Subscription json.RawMessage `json:"subscription"`
	CreatedAt    string          `json:"createdAt"`
	UpdatedAt    string          `json:"updatedAt"`
}
