// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package movielite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wholegroup/movie-app-sub000/moviesync"
)

// Step names the scheduler actions in their fixed priority order.
type Step string

const (
	StepReset   Step = "reset"
	StepProfile Step = "profile"
	StepMovies  Step = "movies"
	StepPurge   Step = "purge"
)

// Notification is published on the side-channel after every executed step.
// Err is nil on success; the UI layer decides what, if anything, to show.
type Notification struct {
	Step Step
	Err  error
	At   time.Time
}

// PushProvider exposes the platform push subscription, when available. The
// browser (or a headless stand-in) owns the subscription; the scheduler only
// reconciles it with the server during profile sync.
type PushProvider interface {
	Subscription(ctx context.Context) (endpoint string, subscription json.RawMessage, err error)
}

// SchedulerConfig configures the sync scheduler.
type SchedulerConfig struct {
	TickInterval time.Duration // cooperative tick period (default 1s)
	RetryDelay   time.Duration // cooldown after any failed step (default 60s)
	IsOnline     func() bool   // nil means always online
	PushProvider PushProvider  // optional
}

// DefaultSchedulerConfig returns the standard tick and backoff settings.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		TickInterval: 1 * time.Second,
		RetryDelay:   60 * time.Second,
	}
}

// Scheduler is a cooperative recurring task that performs at most one sync
// action per tick: reset, profile sync, movies sync or purge, in that
// priority order. Any step failure arms a uniform cooldown and is swallowed;
// the scheduler itself never crashes the host application.
type Scheduler struct {
	replica *Replica
	client  *SyncClient
	config  *SchedulerConfig
	logger  *slog.Logger
	now     func() time.Time

	mu           sync.Mutex
	busy         bool
	delayedUntil time.Time
	forceProfile bool
	forceMovies  bool
	subscribers  []func(Notification)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler over the replica and server client.
func NewScheduler(replica *Replica, client *SyncClient, config *SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 1 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		replica: replica,
		client:  client,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Subscribe registers a listener on the notification side-channel.
func (s *Scheduler) Subscribe(fn func(Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// ForceSynchronization makes the movies sync due on the next tick.
func (s *Scheduler) ForceSynchronization() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceMovies = true
}

// ScheduleSynchronizingProfile makes the profile sync due on the next tick.
func (s *Scheduler) ScheduleSynchronizingProfile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceProfile = true
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// RunOnce evaluates one tick: skip when offline, busy or cooling down, then
// perform at most the first due step.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.config.IsOnline != nil && !s.config.IsOnline() {
		return
	}

	now := s.now()
	s.mu.Lock()
	if s.busy || now.Before(s.delayedUntil) {
		s.mu.Unlock()
		return
	}
	s.busy = true
	forceProfile := s.forceProfile
	forceMovies := s.forceMovies
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	step, run, err := s.dueStep(ctx, now, forceProfile, forceMovies)
	if err != nil {
		s.fail(step, err)
		return
	}
	if run == nil {
		return
	}

	if err := run(ctx); err != nil {
		s.fail(step, err)
		return
	}

	s.mu.Lock()
	switch step {
	case StepProfile:
		s.forceProfile = false
	case StepMovies:
		s.forceMovies = false
	}
	s.mu.Unlock()
	s.notify(Notification{Step: step, At: s.now()})
}

// fail arms the uniform cooldown and publishes the error; it is never
// propagated further.
func (s *Scheduler) fail(step Step, err error) {
	s.mu.Lock()
	s.delayedUntil = s.now().Add(s.config.RetryDelay)
	s.mu.Unlock()
	s.logger.Warn("Sync step failed", "step", string(step), "error", err)
	s.notify(Notification{Step: step, Err: err, At: s.now()})
}

func (s *Scheduler) notify(n Notification) {
	s.mu.Lock()
	subscribers := make([]func(Notification), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()
	for _, fn := range subscribers {
		fn(n)
	}
}

// dueStep picks the first due step in fixed priority order.
func (s *Scheduler) dueStep(ctx context.Context, now time.Time, forceProfile, forceMovies bool) (Step, func(context.Context) error, error) {
	due, err := s.isDue(ctx, SettingResetTS, ScheduleReset, now)
	if err != nil {
		return StepReset, nil, err
	}
	if due {
		return StepReset, s.runReset, nil
	}

	due, err = s.isDue(ctx, SettingProfileSyncedTS, ScheduleProfile, now)
	if err != nil {
		return StepProfile, nil, err
	}
	if forceProfile || due {
		return StepProfile, s.runProfileSync, nil
	}

	due, err = s.isDue(ctx, SettingMoviesSyncedTS, ScheduleMovies, now)
	if err != nil {
		return StepMovies, nil, err
	}
	if forceMovies || due {
		return StepMovies, s.runMoviesSync, nil
	}

	due, err = s.isDue(ctx, SettingPurgedTS, SchedulePurge, now)
	if err != nil {
		return StepPurge, nil, err
	}
	if due {
		return StepPurge, s.runPurge, nil
	}

	return "", nil, nil
}

// isDue evaluates a schedule against its persisted last-run stamp. A step
// that never ran is due immediately.
func (s *Scheduler) isDue(ctx context.Context, lastRunKey, spec string, now time.Time) (bool, error) {
	lastRun, err := s.replica.Setting(ctx, lastRunKey)
	if err != nil {
		return false, err
	}
	if lastRun == "" {
		return true, nil
	}
	lastRunTime, err := moviesync.ParseTime(lastRun)
	if err != nil {
		// A corrupt stamp must not wedge the schedule.
		s.logger.Warn("Unparsable last-run stamp", "key", lastRunKey, "value", lastRun)
		return true, nil
	}
	next, err := NextOccurrence(lastRunTime, spec)
	if err != nil {
		return false, err
	}
	return !next.After(now), nil
}

// runReset clears both watermarks so the next syncs pull the full data set;
// without it, rows deleted on the server would linger locally forever.
func (s *Scheduler) runReset(ctx context.Context) error {
	if err := s.replica.DeleteSetting(ctx, SettingMoviesUpdatedAt); err != nil {
		return err
	}
	if err := s.replica.DeleteSetting(ctx, SettingProfileUpdatedAt); err != nil {
		return err
	}
	return s.replica.SetSetting(ctx, SettingResetTS, moviesync.FormatTime(s.now()))
}

// runProfileSync reconciles the push subscription, pushes pending detail
// rows and merges the server's detail delta. An unauthenticated session is
// treated as "no profile", not as a failure.
func (s *Scheduler) runProfileSync(ctx context.Context) error {
	pushEndpoint, err := s.reconcilePush(ctx)
	if err != nil {
		return err
	}

	pending, err := s.replica.UnsyncedDetails(ctx)
	if err != nil {
		return err
	}
	watermark, err := s.replica.Setting(ctx, SettingProfileUpdatedAt)
	if err != nil {
		return err
	}

	resp, err := s.client.SyncProfile(ctx, &moviesync.ProfileSyncRequest{
		Details:       pending,
		PushEndpoint:  pushEndpoint,
		LastUpdatedAt: watermark,
	})
	if err != nil {
		if errors.Is(err, moviesync.ErrAuthRequired) {
			if err := s.replica.DeleteSetting(ctx, SettingUserProfile); err != nil {
				return err
			}
			return s.replica.SetSetting(ctx, SettingProfileSyncedTS, moviesync.FormatTime(s.now()))
		}
		return err
	}

	if err := s.replica.UpsertDetails(ctx, resp.Details); err != nil {
		return err
	}
	if err := s.replica.SetSetting(ctx, SettingProfileUpdatedAt, resp.LastUpdatedAt); err != nil {
		return err
	}
	info, err := json.Marshal(resp.Info)
	if err != nil {
		return fmt.Errorf("failed to marshal profile info: %w", err)
	}
	if err := s.replica.SetSetting(ctx, SettingUserProfile, string(info)); err != nil {
		return err
	}
	return s.replica.SetSetting(ctx, SettingProfileSyncedTS, moviesync.FormatTime(s.now()))
}

// reconcilePush compares the platform subscription against the persisted
// endpoint and payload hash and re-registers it with the server when either
// changed. Returns the endpoint to attach to the profile sync request.
func (s *Scheduler) reconcilePush(ctx context.Context) (string, error) {
	if s.config.PushProvider == nil {
		return s.settingOrEmpty(ctx, SettingPushEndpoint)
	}
	endpoint, subscription, err := s.config.PushProvider.Subscription(ctx)
	if err != nil || endpoint == "" {
		if err != nil {
			s.logger.Warn("Push subscription unavailable", "error", err)
		}
		return s.settingOrEmpty(ctx, SettingPushEndpoint)
	}

	sum := sha256.Sum256(subscription)
	hash := hex.EncodeToString(sum[:])

	storedEndpoint, err := s.replica.Setting(ctx, SettingPushEndpoint)
	if err != nil {
		return "", err
	}
	storedHash, err := s.replica.Setting(ctx, SettingPushHash)
	if err != nil {
		return "", err
	}
	if storedEndpoint == endpoint && storedHash == hash {
		return endpoint, nil
	}

	if err := s.client.Subscribe(ctx, subscription); err != nil {
		return "", err
	}
	if err := s.replica.SetSetting(ctx, SettingPushEndpoint, endpoint); err != nil {
		return "", err
	}
	if err := s.replica.SetSetting(ctx, SettingPushHash, hash); err != nil {
		return "", err
	}
	return endpoint, nil
}

func (s *Scheduler) settingOrEmpty(ctx context.Context, key string) (string, error) {
	value, err := s.replica.Setting(ctx, key)
	if err != nil {
		return "", err
	}
	return value, nil
}

// runMoviesSync pulls the catalog delta and merges it into the replica.
func (s *Scheduler) runMoviesSync(ctx context.Context) error {
	watermark, err := s.replica.Setting(ctx, SettingMoviesUpdatedAt)
	if err != nil {
		return err
	}

	resp, err := s.client.SyncCatalog(ctx, watermark)
	if err != nil {
		return err
	}

	// Each upsert is independently atomic; a crash between them leaves the
	// mirror transiently inconsistent and the next tick self-heals.
	if err := s.replica.UpsertMovies(ctx, resp.Movies); err != nil {
		return err
	}
	if err := s.replica.UpsertVotes(ctx, resp.Votes); err != nil {
		return err
	}
	if err := s.replica.UpsertImages(ctx, resp.Images); err != nil {
		return err
	}
	if err := s.replica.UpsertMetadata(ctx, resp.Metadata); err != nil {
		return err
	}
	if err := s.replica.SetSetting(ctx, SettingMoviesUpdatedAt, resp.LastUpdatedAt); err != nil {
		return err
	}
	return s.replica.SetSetting(ctx, SettingMoviesSyncedTS, moviesync.FormatTime(s.now()))
}

// runPurge drops catalog rows outside the visibility window.
func (s *Scheduler) runPurge(ctx context.Context) error {
	purged, err := s.replica.PurgeInvisible(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		s.logger.Debug("Purged invisible catalog rows", "rows", purged)
	}
	return s.replica.SetSetting(ctx, SettingPurgedTS, moviesync.FormatTime(s.now()))
}
