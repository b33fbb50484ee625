// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package moviesync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wholegroup/movie-app-sub000/internal/auth"
)

// HTTPSyncHandlers provides the HTTP surface of the sync API.
type HTTPSyncHandlers struct {
	service       *SyncService
	authenticator SessionAuthenticator
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers.
func NewHTTPSyncHandlers(service *SyncService, authenticator SessionAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSyncHandlers{
		service:       service,
		authenticator: authenticator,
		logger:        logger,
	}
}

// Register wires the sync routes into mux.
func (h *HTTPSyncHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sync-catalog", h.HandleCatalogSync)
	mux.HandleFunc("/sync-profile", h.HandleProfileSync)
	mux.HandleFunc("/push/subscribe", h.HandlePushSubscribe)
	mux.HandleFunc("/push/unsubscribe", h.HandlePushUnsubscribe)
	mux.HandleFunc("/status", h.HandleStatus)
}

// HandleCatalogSync serves the catalog delta. Authentication is optional;
// only admin sessions receive metadata rows.
func (h *HTTPSyncHandlers) HandleCatalogSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	var req CatalogSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse catalog sync request")
		return
	}

	ctx := r.Context()
	if session, err := h.authenticator.Session(r); err == nil {
		ctx = auth.WithSession(ctx, session.UserID, session.User, session.IsAdmin)
	}

	response, err := h.service.SyncCatalog(ctx, req.LastUpdatedAt)
	if err != nil {
		h.logger.Error("Failed to sync catalog", "error", err)
		h.writeError(w, http.StatusInternalServerError, "sync_failed", "Failed to compute catalog delta")
		return
	}
	h.writeJSON(w, response)
}

// HandleProfileSync merges pushed detail rows and serves the profile delta.
// Requires an authenticated session.
func (h *HTTPSyncHandlers) HandleProfileSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	session, err := h.authenticator.Session(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}
	ctx := auth.WithSession(r.Context(), session.UserID, session.User, session.IsAdmin)

	var req ProfileSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse profile sync request")
		return
	}

	response, err := h.service.SyncProfile(ctx, &req)
	if err != nil {
		var conflictErr *ConflictError
		switch {
		case errors.Is(err, ErrAuthRequired):
			h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		case errors.As(err, &conflictErr):
			h.writeError(w, http.StatusConflict, "update_conflict", err.Error())
		default:
			h.logger.Error("Failed to sync profile", "error", err, "user_id", session.UserID)
			h.writeError(w, http.StatusInternalServerError, "sync_failed", "Failed to sync profile")
		}
		return
	}
	h.writeJSON(w, response)
}

// HandlePushSubscribe upserts a push subscription.
func (h *HTTPSyncHandlers) HandlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	// The body is the opaque browser subscription; only the endpoint is
	// interpreted, the full document is stored verbatim.
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse subscription")
		return
	}
	var req PushSubscribeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse subscription")
		return
	}

	if _, err := h.service.SavePush(r.Context(), req.Endpoint, body); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("Failed to save push subscription", "error", err)
		h.writeError(w, http.StatusInternalServerError, "subscribe_failed", "Failed to save subscription")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandlePushUnsubscribe removes a push subscription by endpoint.
func (h *HTTPSyncHandlers) HandlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	var req PushUnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse unsubscribe request")
		return
	}

	if err := h.service.DeletePush(r.Context(), req.Endpoint); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("Failed to delete push subscription", "error", err)
		h.writeError(w, http.StatusInternalServerError, "unsubscribe_failed", "Failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleStatus reports service health.
func (h *HTTPSyncHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	h.writeJSON(w, StatusResponse{
		Status:  "healthy",
		AppName: h.service.config.AppName,
		Version: "1",
	})
}

func (h *HTTPSyncHandlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a standardized error response.
func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
