// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package movielite

import (
	"testing"
	"time"
)

func TestNextOccurrence(t *testing.T) {
	lastRun := time.Date(2026, 5, 1, 12, 10, 0, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{ScheduleProfile, time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)},
		{ScheduleMovies, time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)},
		{ScheduleReset, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		// 2026-05-03 is the next Sunday.
		{SchedulePurge, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		next, err := NextOccurrence(lastRun, tt.spec)
		if err != nil {
			t.Fatalf("NextOccurrence(%q): %v", tt.spec, err)
		}
		if !next.Equal(tt.want) {
			t.Errorf("NextOccurrence(%q) = %v, want %v", tt.spec, next, tt.want)
		}
	}
}

func TestNextOccurrenceInvalidSpec(t *testing.T) {
	if _, err := NextOccurrence(time.Now(), "not a schedule"); err == nil {
		t.Fatal("invalid spec accepted")
	}
}

func TestMissedWindowIsDueImmediately(t *testing.T) {
	// A schedule whose window passed while the app was closed fires on the
	// next evaluation rather than waiting for the following period.
	lastRun := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	next, err := NextOccurrence(lastRun, ScheduleProfile)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	if next.After(now) {
		t.Fatalf("missed window resolves to %v, after now %v", next, now)
	}
}
