// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// TableSpec describes a versioned table managed by RowStore. Every managed
// table has an integer `id`, an integer `version` and a TEXT `updated_at`
// column in addition to the key columns and payload columns.
type TableSpec struct {
	Name     string
	OwnerCol string // optional owner scope column (e.g. "user_id")
	KeyCol   string // row key column within the owner scope
}

// RowStore provides optimistic-locking CRUD over versioned rows. Inserts
// start the version lineage at 1; every successful Replace increments the
// version by exactly 1 and restamps updated_at. Both operations run in their
// own transaction so the version stamp and the payload update are atomic.
type RowStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewRowStore creates a row store over db.
func NewRowStore(db *sql.DB, logger *slog.Logger) *RowStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RowStore{db: db, logger: logger, now: time.Now}
}

// Insert creates a row at version 1. It returns ConflictError if a row for
// (owner, key) already exists.
func (s *RowStore) Insert(ctx context.Context, spec TableSpec, owner string, key any, cols map[string]any) (int64, error) {
	names := []string{spec.KeyCol, "version", "updated_at"}
	args := []any{key, int64(1), FormatTime(s.now())}
	if spec.OwnerCol != "" {
		names = append([]string{spec.OwnerCol}, names...)
		args = append([]any{owner}, args...)
	}
	for _, col := range sortedCols(cols) {
		names = append(names, col)
		args = append(args, cols[col])
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		spec.Name, strings.Join(names, ", "), placeholders(len(names)))

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Table: spec.Name, Key: fmt.Sprint(key)}
			}
			return fmt.Errorf("failed to insert into %s: %w", spec.Name, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Replace updates a row gated on the caller's belief of its current version.
// The underlying write is `UPDATE ... WHERE key = ? AND version = ?`; zero
// affected rows means a missing row or a stale version, both surfaced as
// ConflictError. On success the stored version is expectedVersion+1.
func (s *RowStore) Replace(ctx context.Context, spec TableSpec, owner string, key any, cols map[string]any, expectedVersion int64) (int64, error) {
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{FormatTime(s.now())}
	for _, col := range sortedCols(cols) {
		sets = append(sets, col+" = ?")
		args = append(args, cols[col])
	}

	where := spec.KeyCol + " = ? AND version = ?"
	whereArgs := []any{key, expectedVersion}
	if spec.OwnerCol != "" {
		where = spec.OwnerCol + " = ? AND " + where
		whereArgs = append([]any{owner}, whereArgs...)
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, spec.Name, strings.Join(sets, ", "), where)

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", spec.Name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return &ConflictError{Table: spec.Name, Key: fmt.Sprint(key)}
		}
		selQuery := fmt.Sprintf(`SELECT id FROM %s WHERE %s`, spec.Name, where)
		// The row now holds expectedVersion+1.
		selArgs := append(append([]any{}, whereArgs[:len(whereArgs)-1]...), expectedVersion+1)
		if err := tx.QueryRowContext(ctx, selQuery, selArgs...).Scan(&id); err != nil {
			return fmt.Errorf("failed to read updated row id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// inTx runs fn inside BEGIN/COMMIT with ROLLBACK on any failure.
func (s *RowStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func sortedCols(cols map[string]any) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
