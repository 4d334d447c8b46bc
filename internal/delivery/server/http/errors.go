package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"alex/internal/auth/domain"
	"alex/internal/dispatch"
)

// errorBody is the wire shape of every non-2xx JSON response (spec §6 error
// envelope).
type errorBody struct {
	Error struct {
		Type    string         `json:"type"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string, details map[string]any) {
	var body errorBody
	body.Error.Type = kind
	body.Error.Message = message
	body.Error.Details = details
	writeJSON(w, status, body)
}

// writeClassifiedError maps a dispatch/auth/validation error to the right
// HTTP status and error envelope, per spec §7's error taxonomy.
func writeClassifiedError(w http.ResponseWriter, err error) {
	var validation *dispatch.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, "validation_error", validation.Reason, nil)
		return
	}

	var quota *dispatch.QuotaError
	if errors.As(err, &quota) {
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", "daily quota exhausted", map[string]any{
			"limit": quota.Info.Limit, "used": quota.Info.Used, "reset_at": quota.Info.ResetAt,
		})
		return
	}

	var rateLimit *dispatch.RateLimitError
	if errors.As(err, &rateLimit) {
		w.Header().Set("Retry-After", rateLimit.RetryAfter.String())
		writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", nil)
		return
	}

	switch {
	case errors.Is(err, domain.ErrUserExists):
		writeError(w, http.StatusBadRequest, "duplicate", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, domain.ErrAccountDisabled):
		writeError(w, http.StatusUnauthorized, "account_disabled", err.Error(), nil)
	case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "invalid_token", err.Error(), nil)
	case errors.Is(err, domain.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied", err.Error(), nil)
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred", nil)
	}
}
