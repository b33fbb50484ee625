// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatTimeCanonical(t *testing.T) {
	stamp := time.Date(2026, 5, 1, 12, 30, 45, 123_000_000, time.UTC)
	require.Equal(t, "2026-05-01T12:30:45.123Z", FormatTime(stamp))

	// Non-UTC input is normalized so string comparison stays ordered.
	loc := time.FixedZone("CEST", 2*3600)
	require.Equal(t, "2026-05-01T10:30:45.123Z", FormatTime(stamp.In(loc)))
}

func TestParseTimeTolerance(t *testing.T) {
	parsed, err := ParseTime("2026-05-01T12:30:45.123Z")
	require.NoError(t, err)
	require.Equal(t, "2026-05-01T12:30:45.123Z", FormatTime(parsed))

	// Plain RFC 3339 without milliseconds is accepted too.
	parsed, err = ParseTime("2026-05-01T12:30:45Z")
	require.NoError(t, err)
	require.Equal(t, "2026-05-01T12:30:45.000Z", FormatTime(parsed))

	_, err = ParseTime("yesterday")
	require.Error(t, err)
}

func TestTimestampOrderingIsLexicographic(t *testing.T) {
	earlier := FormatTime(time.Date(2026, 4, 30, 23, 59, 59, 999_000_000, time.UTC))
	later := FormatTime(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.Less(t, earlier, later)
	require.Equal(t, later, maxTimestamp(earlier, later))
	require.Equal(t, later, maxTimestamp(later, earlier))
}
