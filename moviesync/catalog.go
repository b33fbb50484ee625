// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wholegroup/movie-app-sub000/internal/auth"
	"golang.org/x/sync/errgroup"
)

const (
	// VisibilityWindow is the trailing window over votes.updated_at that
	// decides which movies are exposed to clients. It is anchored to the
	// latest updated_at seen across all votes, not to wall-clock now, so
	// visibility stays reproducible against replayed or historical data.
	VisibilityWindow = 28 * 24 * time.Hour

	// staleWatermarkAge bounds how old a client watermark may be before the
	// request is treated as a full resync.
	staleWatermarkAge = 4 * 365 * 24 * time.Hour
)

// SyncCatalog computes the catalog delta since lastUpdatedAt. Metadata rows
// are included only when the session in ctx is an admin session. A missing
// or malformed watermark is clamped to a full resync, never rejected.
func (s *SyncService) SyncCatalog(ctx context.Context, lastUpdatedAt string) (*CatalogSyncResponse, error) {
	since := s.clampWatermark(lastUpdatedAt)

	visible, err := s.visibleMovieIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute visible movies: %w", err)
	}

	var (
		movies   []MovieRow
		votes    []VotesRow
		images   []ImagesRow
		metadata []MetadataRow
	)

	// The per-entity deltas read disjoint tables, so they are fetched
	// concurrently and awaited together.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		movies, err = s.moviesSince(gctx, since, visible)
		return err
	})
	g.Go(func() error {
		var err error
		votes, err = s.votesSince(gctx, since, visible)
		return err
	})
	g.Go(func() error {
		var err error
		images, err = s.imagesSince(gctx, since, visible)
		return err
	})
	if auth.IsAdmin(ctx) {
		g.Go(func() error {
			var err error
			metadata, err = s.metadataSince(gctx, since, visible)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch catalog delta: %w", err)
	}

	// A movie can enter the delta while its image row stays unchanged (for
	// example when it re-enters the visible window). Backfill those image
	// rows so the poster does not lag behind the movie.
	images, err = s.backfillImages(ctx, movies, images, visible)
	if err != nil {
		return nil, fmt.Errorf("failed to backfill images: %w", err)
	}

	watermark := since
	for _, row := range movies {
		watermark = maxTimestamp(watermark, row.UpdatedAt)
	}
	for _, row := range votes {
		watermark = maxTimestamp(watermark, row.UpdatedAt)
	}
	for _, row := range images {
		watermark = maxTimestamp(watermark, row.UpdatedAt)
	}
	for _, row := range metadata {
		watermark = maxTimestamp(watermark, row.UpdatedAt)
	}
	if watermark == "" {
		// Nothing changed and the client had no watermark yet; hand out the
		// current time so the next poll is a delta, not another full scan.
		watermark = FormatTime(s.now())
	}

	return &CatalogSyncResponse{
		Movies:        movies,
		Votes:         votes,
		Images:        images,
		Metadata:      metadata,
		LastUpdatedAt: watermark,
	}, nil
}

// clampWatermark canonicalizes the client watermark. Empty, unparsable or
// very old values yield "" which selects the full catalog.
func (s *SyncService) clampWatermark(lastUpdatedAt string) string {
	if lastUpdatedAt == "" {
		return ""
	}
	t, err := ParseTime(lastUpdatedAt)
	if err != nil {
		s.logger.Warn("Malformed watermark, forcing full resync", "lastUpdatedAt", lastUpdatedAt)
		return ""
	}
	if t.Before(s.now().Add(-staleWatermarkAge)) {
		return ""
	}
	return FormatTime(t)
}

// visibleMovieIDs returns the movie ids whose votes fall within the trailing
// visibility window measured from the newest vote stamp.
func (s *SyncService) visibleMovieIDs(ctx context.Context) (map[int64]struct{}, error) {
	var anchor sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT max(updated_at) FROM votes`).Scan(&anchor); err != nil {
		return nil, fmt.Errorf("failed to read newest vote stamp: %w", err)
	}
	visible := make(map[int64]struct{})
	if !anchor.Valid {
		return visible, nil
	}
	anchorTime, err := ParseTime(anchor.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse newest vote stamp %q: %w", anchor.String, err)
	}
	cutoff := FormatTime(anchorTime.Add(-VisibilityWindow))

	rows, err := s.db.QueryContext(ctx, `SELECT movie_id FROM votes WHERE updated_at > ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query visible movies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan movie id: %w", err)
		}
		visible[id] = struct{}{}
	}
	return visible, rows.Err()
}

func (s *SyncService) moviesSince(ctx context.Context, since string, visible map[int64]struct{}) ([]MovieRow, error) {
	rows, err := s.deltaRows(ctx, "movies", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MovieRow
	for rows.Next() {
		var (
			id        int64
			payload   string
			updatedAt string
		)
		if err := rows.Scan(&id, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movie row: %w", err)
		}
		if _, ok := visible[id]; !ok {
			continue
		}
		var movie MovieRow
		if err := json.Unmarshal([]byte(payload), &movie); err != nil {
			return nil, fmt.Errorf("failed to decode movie %d: %w", id, err)
		}
		movie.MovieID = id
		movie.UpdatedAt = updatedAt
		out = append(out, movie)
	}
	return out, rows.Err()
}

func (s *SyncService) votesSince(ctx context.Context, since string, visible map[int64]struct{}) ([]VotesRow, error) {
	query := `SELECT movie_id, votes, updated_at FROM votes`
	args := []any{}
	if since != "" {
		query += ` WHERE updated_at > ?`
		args = append(args, since)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY movie_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes delta: %w", err)
	}
	defer rows.Close()

	var out []VotesRow
	for rows.Next() {
		var row VotesRow
		if err := rows.Scan(&row.MovieID, &row.Votes, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan votes row: %w", err)
		}
		if _, ok := visible[row.MovieID]; !ok {
			continue
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SyncService) imagesSince(ctx context.Context, since string, visible map[int64]struct{}) ([]ImagesRow, error) {
	rows, err := s.deltaRows(ctx, "images", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanImages(rows, visible)
}

func (s *SyncService) metadataSince(ctx context.Context, since string, visible map[int64]struct{}) ([]MetadataRow, error) {
	rows, err := s.deltaRows(ctx, "metadata", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MetadataRow
	for rows.Next() {
		var (
			id        int64
			payload   string
			updatedAt string
		)
		if err := rows.Scan(&id, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		if _, ok := visible[id]; !ok {
			continue
		}
		var meta MetadataRow
		if err := json.Unmarshal([]byte(payload), &meta); err != nil {
			return nil, fmt.Errorf("failed to decode metadata %d: %w", id, err)
		}
		meta.MovieID = id
		meta.UpdatedAt = updatedAt
		out = append(out, meta)
	}
	return out, rows.Err()
}

// deltaRows selects (movie_id, payload, updated_at) rows changed after
// since, or the whole table when since is empty.
func (s *SyncService) deltaRows(ctx context.Context, table, since string) (*sql.Rows, error) {
	query := fmt.Sprintf(`SELECT movie_id, payload, updated_at FROM %s`, table)
	args := []any{}
	if since != "" {
		query += ` WHERE updated_at > ?`
		args = append(args, since)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY movie_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s delta: %w", table, err)
	}
	return rows, nil
}

// backfillImages adds the unchanged image rows of movies present in the
// delta: images delta = (changed images ∩ visible) ∪ (images of changed
// movies ∩ visible ∖ already included).
func (s *SyncService) backfillImages(ctx context.Context, movies []MovieRow, images []ImagesRow, visible map[int64]struct{}) ([]ImagesRow, error) {
	included := make(map[int64]struct{}, len(images))
	for _, row := range images {
		included[row.MovieID] = struct{}{}
	}
	var missing []int64
	for _, movie := range movies {
		if _, ok := included[movie.MovieID]; ok {
			continue
		}
		if _, ok := visible[movie.MovieID]; !ok {
			continue
		}
		missing = append(missing, movie.MovieID)
	}
	if len(missing) == 0 {
		return images, nil
	}

	query := fmt.Sprintf(
		`SELECT movie_id, payload, updated_at FROM images WHERE movie_id IN (%s) ORDER BY movie_id`,
		placeholders(len(missing)))
	args := make([]any, len(missing))
	for i, id := range missing {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query image backfill: %w", err)
	}
	defer rows.Close()

	backfilled, err := scanImages(rows, visible)
	if err != nil {
		return nil, err
	}
	return append(images, backfilled...), nil
}

func scanImages(rows *sql.Rows, visible map[int64]struct{}) ([]ImagesRow, error) {
	var out []ImagesRow
	for rows.Next() {
		var (
			id        int64
			payload   string
			updatedAt string
		)
		if err := rows.Scan(&id, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan images row: %w", err)
		}
		if _, ok := visible[id]; !ok {
			continue
		}
		var img ImagesRow
		if err := json.Unmarshal([]byte(payload), &img); err != nil {
			return nil, fmt.Errorf("failed to decode images %d: %w", id, err)
		}
		img.MovieID = id
		img.UpdatedAt = updatedAt
		out = append(out, img)
	}
	return out, rows.Err()
}

func maxTimestamp(a, b string) string {
	if strings.Compare(a, b) >= 0 {
		return a
	}
	return b
}
