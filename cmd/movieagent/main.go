// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

// movieagent is a headless stand-in for the browser client: it opens the
// local replica, runs the sync scheduler against a server and logs the
// notifications the UI would normally consume.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/wholegroup/movie-app-sub000/movielite"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	serverURL := envOr("SERVER_URL", "http://localhost:8080")
	dbPath := envOr("REPLICA_PATH", "movielite.db")
	token := os.Getenv("SYNC_TOKEN")

	replica, err := movielite.OpenReplica(dbPath, logger)
	if err != nil {
		log.Fatalf("Failed to open replica: %v", err)
	}
	// The replica handle stays open for the whole session.

	ctx := context.Background()
	clientID, err := replica.EnsureClientID(ctx)
	if err != nil {
		log.Fatalf("Failed to ensure client id: %v", err)
	}
	logger.Info("Replica ready", "client_id", clientID, "path", dbPath)

	var tokenFn func(context.Context) (string, error)
	if token != "" {
		tokenFn = func(context.Context) (string, error) { return token, nil }
	}
	client := movielite.NewSyncClient(serverURL, tokenFn, logger)

	scheduler := movielite.NewScheduler(replica, client, movielite.DefaultSchedulerConfig(), logger)
	scheduler.Subscribe(func(n movielite.Notification) {
		if n.Err != nil {
			logger.Warn("Sync step failed", "step", string(n.Step), "error", n.Err)
			return
		}
		logger.Info("Sync step completed", "step", string(n.Step))
	})

	scheduler.Start(ctx)
	defer scheduler.Stop()
	scheduler.ForceSynchronization()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down agent")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
