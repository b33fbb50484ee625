// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/wholegroup/movie-app-sub000/moviesync"
)

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	dbPath := envOr("DB_PATH", "moviesync.db")
	addr := envOr("LISTEN_ADDR", ":8080")

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "change-me-in-production"
		logger.Warn("Using default JWT secret - change in production!")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	service, err := moviesync.NewSyncService(db, &moviesync.ServiceConfig{
		AppName:      "moviesyncd",
		AdminSubject: os.Getenv("ADMIN_SUBJECT"),
	}, logger)
	if err != nil {
		log.Fatalf("Failed to setup sync service: %v", err)
	}

	authenticator := moviesync.NewJWTAuth(jwtSecret, os.Getenv("ADMIN_SUBJECT"))
	handlers := moviesync.NewHTTPSyncHandlers(service, authenticator, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting movie sync server", "addr", httpServer.Addr)
		logger.Info("  POST /sync-catalog     - catalog delta since watermark")
		logger.Info("  POST /sync-profile     - merge and return user details (auth)")
		logger.Info("  POST /push/subscribe   - store push subscription")
		logger.Info("  POST /push/unsubscribe - remove push subscription")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
