// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package api provides common HTTP API utilities including error handling.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// Deterministic reason codes for stable error classification.
// These codes should remain stable across versions for client compatibility.
const (
	// Authentication and authorization
	ReasonUnauthenticated    = "unauthenticated"
	ReasonSessionExpired     = "session_expired"
	ReasonInvalidCredentials = "invalid_credentials"

	// Rate limiting
	ReasonRateLimited = "rate_limited"

	// Request validation
	ReasonBadRequest   = "bad_request"
	ReasonMissingField = "missing_field"
	ReasonInvalidField = "invalid_field"
	ReasonNotFound     = "not_found"
	ReasonConflict     = "conflict"

	// Domain
	ReasonDuplicateEvent        = "duplicate_event"
	ReasonMalformedNotification = "malformed_notification"
	ReasonWrongType             = "wrong_notification_type"
	ReasonPartialWrite          = "partial_write"
	ReasonNotFriend             = "not_friend"

	// Server errors
	ReasonUnavailable   = "unavailable"
	ReasonInternalError = "internal_error"
)

// ErrorEnvelope is the standard error response format.
// All error responses should use this structure for consistency.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text (e.g., "Not Found")
	ReasonCode string `json:"reason_code"` // Deterministic reason code
	Message    string `json:"message"`     // Human-readable message
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	envelope := ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
		},
	}

	json.NewEncoder(w).Encode(envelope)
}

// Common error helpers for frequently used patterns

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteConflict writes a 409 Conflict error.
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, ReasonConflict, message)
}

// WriteTooManyRequests writes a 429 Too Many Requests error.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// Be careful not to leak sensitive information in the message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}

// WriteUnavailable writes a 503 Service Unavailable error.
func WriteUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, ReasonUnavailable, message)
}

// WriteStoreError maps a storage error to a response: not found is 404, an
// unreachable backend is 503 and anything else is a logged 500.
func WriteStoreError(w http.ResponseWriter, log *slog.Logger, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, what+" not found")
	case errors.Is(err, store.ErrInvalidKey):
		WriteBadRequest(w, ReasonInvalidField, "invalid "+what+" id")
	case errors.Is(err, store.ErrUnavailable):
		log.Warn("storage unavailable", "what", what, "error", err)
		WriteUnavailable(w, "storage is unavailable, try again later")
	default:
		log.Error("storage error", "what", what, "error", err)
		WriteInternalError(w, "internal error")
	}
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body into v, writing a 400 on failure.
// It returns false when the response has been written.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return false
	}
	return true
}

const maxBodyBytes = 1 << 20
