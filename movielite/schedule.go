// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package movielite

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Sync schedules. A step is due when the next occurrence after its last run
// is not in the future, so a window missed while the app was closed fires
// immediately on the next tick instead of waiting for the next period.
const (
	ScheduleReset   = "0 0 1 * *"    // monthly: force an eventual full resync
	ScheduleProfile = "0 * * * *"    // hourly
	ScheduleMovies  = "*/30 * * * *" // every 30 minutes
	SchedulePurge   = "0 0 * * 0"    // weekly
)

// NextOccurrence returns the first occurrence of the cron schedule spec
// strictly after lastRun.
func NextOccurrence(lastRun time.Time, spec string) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}
	return sched.Next(lastRun), nil
}
