// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

// Package moviesync implements the server side of the movie-catalog sync
// protocol: a versioned row store with optimistic locking over SQLite,
// watermark-based catalog deltas with a rolling visibility window, per-user
// detail merging, and web-push subscription bookkeeping.
package moviesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/wholegroup/movie-app-sub000/moviesync/migrations"
)

// ServiceConfig holds configuration for the sync service.
type ServiceConfig struct {
	AppName      string
	AdminSubject string // subject id whose sessions are admin
}

// SyncService provides the core synchronization functionality.
type SyncService struct {
	db     *sql.DB
	store  *RowStore
	config *ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSyncService creates a sync service over db and brings the schema up to
// date. A migration failure aborts startup; partially applied steps are
// rolled back by their own transaction.
func NewSyncService(db *sql.DB, config *ServiceConfig, logger *slog.Logger) (*SyncService, error) {
	if config == nil {
		config = &ServiceConfig{AppName: "moviesync"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := runMigrations(context.Background(), db); err != nil {
		logger.Error("Failed to migrate database schema", "error", err)
		return nil, fmt.Errorf("failed to initialize sync service: %w", err)
	}
	logger.Debug("Database schema up to date")

	return &SyncService{
		db:     db,
		store:  NewRowStore(db, logger),
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// DB returns the underlying database handle for advanced callers.
func (s *SyncService) DB() *sql.DB {
	return s.db
}

// Store returns the versioned row store.
func (s *SyncService) Store() *RowStore {
	return s.store
}

// Catalog ingestion. The scraper that produces catalog rows is a separate
// process; these upserts replace rows wholesale and keep each row's own
// updatedAt stamp so replayed feeds stay reproducible.

// IngestMovies upserts catalog movie rows.
func (s *SyncService) IngestMovies(ctx context.Context, rows []MovieRow) error {
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal movie %d: %w", row.MovieID, err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO movies (movie_id, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			row.MovieID, string(payload), row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to ingest movie %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// IngestVotes upserts vote aggregate rows.
func (s *SyncService) IngestVotes(ctx context.Context, rows []VotesRow) error {
	for _, row := range rows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO votes (movie_id, votes, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET votes = excluded.votes, updated_at = excluded.updated_at`,
			row.MovieID, row.Votes, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to ingest votes for %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// IngestImages upserts poster metadata rows.
func (s *SyncService) IngestImages(ctx context.Context, rows []ImagesRow) error {
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal images %d: %w", row.MovieID, err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO images (movie_id, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			row.MovieID, string(payload), row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to ingest images for %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// IngestMetadata upserts admin-only metadata rows.
func (s *SyncService) IngestMetadata(ctx context.Context, rows []MetadataRow) error {
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata %d: %w", row.MovieID, err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO metadata (movie_id, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			row.MovieID, string(payload), row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to ingest metadata for %d: %w", row.MovieID, err)
		}
	}
	return nil
}
