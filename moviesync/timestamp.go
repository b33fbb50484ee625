// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import "time"

// Timestamps are stored and exchanged as UTC ISO-8601 strings with
// millisecond precision. The fixed-width form makes lexicographic comparison
// equivalent to chronological comparison, so SQL `updated_at > ?` works
// directly on TEXT columns.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the canonical timestamp form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical timestamp. It also tolerates other RFC 3339
// variants so that watermarks produced by older clients still parse.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
