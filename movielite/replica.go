// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

// Package movielite is the client side of the movie-catalog sync protocol:
// a durable SQLite replica of the catalog plus the user's detail rows, and a
// cooperative scheduler that keeps it in sync with the server.
package movielite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/wholegroup/movie-app-sub000/moviesync"
)

// Settings keys persisted in the local settings table. The values are
// opaque to the sync core except for being read and written verbatim.
const (
	SettingMoviesUpdatedAt  = "MOVIES_UPDATED_AT"
	SettingProfileUpdatedAt = "PROFILE_UPDATED_AT"
	SettingResetTS          = "RESET_TS"
	SettingPurgedTS         = "PURGED_TS"
	SettingPushEndpoint     = "PUSH_ENDPOINT"
	SettingPushHash         = "PUSH_HASH"
	SettingUserFilters      = "USER_FILTERS"
	SettingUserProfile      = "USER_PROFILE"

	// Last-run stamps for schedules whose watermark does not advance on a
	// no-change sync.
	SettingMoviesSyncedTS  = "MOVIES_SYNCED_TS"
	SettingProfileSyncedTS = "PROFILE_SYNCED_TS"

	// Locally generated client id, persisted on first use.
	SettingClientID = "CLIENT_ID"
)

// Replica is the durable local mirror of catalog entities plus the user's
// detail rows. It is opened once per client session and never explicitly
// closed; closing would race with in-flight queries for no benefit since
// the next session reopens the same file.
type Replica struct {
	DB     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewReplica initializes the local tables over an open database handle.
func NewReplica(db *sql.DB, logger *slog.Logger) (*Replica, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initializeReplica(db); err != nil {
		return nil, fmt.Errorf("failed to initialize replica: %w", err)
	}
	return &Replica{DB: db, logger: logger, now: time.Now}, nil
}

// OpenReplica opens (or creates) the replica database file.
func OpenReplica(path string, logger *slog.Logger) (*Replica, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replica database: %w", err)
	}
	return NewReplica(db, logger)
}

func initializeReplica(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS movies (
			movie_id   INTEGER PRIMARY KEY,
			payload    TEXT    NOT NULL,
			updated_at TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS votes (
			movie_id   INTEGER PRIMARY KEY,
			votes      INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			movie_id   INTEGER PRIMARY KEY,
			payload    TEXT    NOT NULL,
			updated_at TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			movie_id   INTEGER PRIMARY KEY,
			payload    TEXT    NOT NULL,
			updated_at TEXT    NOT NULL
		)`,

		// synced_at NULL marks a locally originated change the server has
		// not acknowledged yet.
		`CREATE TABLE IF NOT EXISTS details (
			movie_id   INTEGER PRIMARY KEY,
			version    INTEGER NOT NULL DEFAULT 0,
			mark       INTEGER,
			payload    TEXT    NOT NULL DEFAULT '{}',
			updated_at TEXT    NOT NULL,
			synced_at  TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create replica table: %w", err)
		}
	}
	return nil
}

// Setting returns the stored value for key, or "" when absent.
func (r *Replica) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a value under key.
func (r *Replica) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes key.
func (r *Replica) DeleteSetting(ctx context.Context, key string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// EnsureClientID returns the persisted client id, generating one on first
// use.
func (r *Replica) EnsureClientID(ctx context.Context) (string, error) {
	id, err := r.Setting(ctx, SettingClientID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := r.SetSetting(ctx, SettingClientID, id); err != nil {
		return "", err
	}
	return id, nil
}

// UpsertMovies bulk-replaces movie rows by key. Idempotent.
func (r *Replica) UpsertMovies(ctx context.Context, rows []moviesync.MovieRow) error {
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal movie %d: %w", row.MovieID, err)
		}
		_, err = r.DB.ExecContext(ctx,
			`INSERT INTO movies (movie_id, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			row.MovieID, string(payload), row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert movie %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// UpsertVotes bulk-replaces vote rows by key.
func (r *Replica) UpsertVotes(ctx context.Context, rows []moviesync.VotesRow) error {
	for _, row := range rows {
		_, err := r.DB.ExecContext(ctx,
			`INSERT INTO votes (movie_id, votes, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET votes = excluded.votes, updated_at = excluded.updated_at`,
			row.MovieID, row.Votes, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert votes %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// UpsertImages bulk-replaces image rows by key.
func (r *Replica) UpsertImages(ctx context.Context, rows []moviesync.ImagesRow) error {
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal images %d: %w", row.MovieID, err)
		}
		_, err = r.DB.ExecContext(ctx,
			`INSERT INTO images (movie_id, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			row.MovieID, string(payload), row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert images %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// UpsertMetadata bulk-replaces metadata rows by key.
func (r *Replica) UpsertMetadata(ctx context.Context, rows []moviesync.MetadataRow) error {
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata %d: %w", row.MovieID, err)
		}
		_, err = r.DB.ExecContext(ctx,
			`INSERT INTO metadata (movie_id, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			row.MovieID, string(payload), row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert metadata %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// UpsertDetails applies server-acknowledged detail rows and marks them
// synced. A locally pending row whose version is at least the incoming one
// wins over the remote echo: the freshest local change is kept and pushed
// on the next profile sync.
func (r *Replica) UpsertDetails(ctx context.Context, rows []moviesync.DetailsRow) error {
	for _, row := range rows {
		var (
			localVersion int64
			syncedAt     sql.NullString
		)
		err := r.DB.QueryRowContext(ctx,
			`SELECT version, synced_at FROM details WHERE movie_id = ?`, row.MovieID).
			Scan(&localVersion, &syncedAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read local details %d: %w", row.MovieID, err)
		}
		if err == nil && !syncedAt.Valid && localVersion >= row.Version {
			continue
		}

		fields := row.Fields
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal details %d: %w", row.MovieID, err)
		}
		mark, hasMark := row.Mark()
		var markValue any
		if hasMark {
			markValue = mark
		}
		syncStamp := row.SyncedAt
		if syncStamp == "" {
			syncStamp = moviesync.FormatTime(r.now())
		}
		_, err = r.DB.ExecContext(ctx,
			`INSERT INTO details (movie_id, version, mark, payload, updated_at, synced_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (movie_id) DO UPDATE SET
				version = excluded.version,
				mark = excluded.mark,
				payload = excluded.payload,
				updated_at = excluded.updated_at,
				synced_at = excluded.synced_at`,
			row.MovieID, row.Version, markValue, string(payload), row.UpdatedAt, syncStamp)
		if err != nil {
			return fmt.Errorf("failed to upsert details %d: %w", row.MovieID, err)
		}
	}
	return nil
}

// SetMovieMark is the sole local-first mutation path: the mark is written to
// the local row immediately (creating a pending row when absent) and the
// next profile sync discovers it through the cleared synced_at marker.
func (r *Replica) SetMovieMark(ctx context.Context, movieID int64, mark *int64) error {
	row, found, err := r.Details(ctx, movieID)
	if err != nil {
		return err
	}
	if !found {
		row = moviesync.DetailsRow{MovieID: movieID}
	}
	row.SetMark(mark)

	fields, err := json.Marshal(row.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal details fields: %w", err)
	}
	var markValue any
	if mark != nil {
		markValue = *mark
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO details (movie_id, version, mark, payload, updated_at, synced_at)
		 VALUES (?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (movie_id) DO UPDATE SET
			mark = excluded.mark,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			synced_at = NULL`,
		movieID, row.Version, markValue, string(fields), moviesync.FormatTime(r.now()))
	if err != nil {
		return fmt.Errorf("failed to set mark for movie %d: %w", movieID, err)
	}
	return nil
}

// Details returns the local detail row for movieID.
func (r *Replica) Details(ctx context.Context, movieID int64) (moviesync.DetailsRow, bool, error) {
	var (
		row      moviesync.DetailsRow
		payload  string
		syncedAt sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT movie_id, version, payload, updated_at, synced_at FROM details WHERE movie_id = ?`,
		movieID).Scan(&row.MovieID, &row.Version, &payload, &row.UpdatedAt, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return moviesync.DetailsRow{}, false, nil
	}
	if err != nil {
		return moviesync.DetailsRow{}, false, fmt.Errorf("failed to read details %d: %w", movieID, err)
	}
	if err := json.Unmarshal([]byte(payload), &row.Fields); err != nil {
		return moviesync.DetailsRow{}, false, fmt.Errorf("failed to decode details %d: %w", movieID, err)
	}
	row.SyncedAt = syncedAt.String
	return row, true, nil
}

// UnsyncedDetails lists rows the server has not acknowledged yet.
func (r *Replica) UnsyncedDetails(ctx context.Context) ([]moviesync.DetailsRow, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT movie_id, version, payload, updated_at FROM details WHERE synced_at IS NULL ORDER BY movie_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced details: %w", err)
	}
	defer rows.Close()

	var out []moviesync.DetailsRow
	for rows.Next() {
		var (
			row     moviesync.DetailsRow
			payload string
		)
		if err := rows.Scan(&row.MovieID, &row.Version, &payload, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unsynced details: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &row.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode unsynced details: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Movies lists all mirrored movie rows.
func (r *Replica) Movies(ctx context.Context) ([]moviesync.MovieRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT movie_id, payload, updated_at FROM movies ORDER BY movie_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query movies: %w", err)
	}
	defer rows.Close()

	var out []moviesync.MovieRow
	for rows.Next() {
		var (
			id        int64
			payload   string
			updatedAt string
		)
		if err := rows.Scan(&id, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		var movie moviesync.MovieRow
		if err := json.Unmarshal([]byte(payload), &movie); err != nil {
			return nil, fmt.Errorf("failed to decode movie %d: %w", id, err)
		}
		movie.MovieID = id
		movie.UpdatedAt = updatedAt
		out = append(out, movie)
	}
	return out, rows.Err()
}

// PurgeInvisible removes catalog rows for movies that fell out of the
// visibility window, bounding local storage growth. Detail rows are kept;
// they belong to the user, not to the catalog.
func (r *Replica) PurgeInvisible(ctx context.Context) (int64, error) {
	var anchor sql.NullString
	if err := r.DB.QueryRowContext(ctx, `SELECT max(updated_at) FROM votes`).Scan(&anchor); err != nil {
		return 0, fmt.Errorf("failed to read newest vote stamp: %w", err)
	}
	if !anchor.Valid {
		return 0, nil
	}
	anchorTime, err := moviesync.ParseTime(anchor.String)
	if err != nil {
		return 0, fmt.Errorf("failed to parse newest vote stamp: %w", err)
	}
	cutoff := moviesync.FormatTime(anchorTime.Add(-moviesync.VisibilityWindow))

	var purged int64
	for _, table := range []string{"movies", "images", "metadata"} {
		res, err := r.DB.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE movie_id IN (SELECT movie_id FROM votes WHERE updated_at <= ?)`, table), cutoff)
		if err != nil {
			return purged, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			purged += n
		}
	}
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM votes WHERE updated_at <= ?`, cutoff); err != nil {
		return purged, fmt.Errorf("failed to purge votes: %w", err)
	}
	return purged, nil
}
