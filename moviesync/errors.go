// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned when an operation needs an authenticated
// session and none is present. The client treats it as "no profile
// available" rather than a hard failure.
var ErrAuthRequired = errors.New("authentication required")

// ConflictError signals an optimistic-lock failure: an insert hit an
// existing row, or a version-gated update matched zero rows. A zero-row
// update means either a missing row or a stale expected version; both are
// reported identically.
type ConflictError struct {
	Table string
	Key   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("update conflict on %s key=%s", e.Table, e.Key)
}

// ValidationError rejects malformed input before any storage mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
