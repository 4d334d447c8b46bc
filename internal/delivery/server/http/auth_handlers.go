package http

import (
	"encoding/json"
	"net/http"
	"time"

	authapp "alex/internal/auth/app"
	authdomain "alex/internal/auth/domain"
)

// AuthHandlers exposes the /auth/* routes over an authapp.Service.
type AuthHandlers struct {
	svc *authapp.Service
}

// NewAuthHandlers builds AuthHandlers wrapping svc.
func NewAuthHandlers(svc *authapp.Service) *AuthHandlers {
	return &AuthHandlers{svc: svc}
}

type userProfileDTO struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	IsVerified bool     `json:"is_verified"`
	QuotaLimit int64    `json:"quota_limit"`
	QuotaUsed  int64    `json:"quota_used"`
}

func toUserProfileDTO(u authdomain.User) userProfileDTO {
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	return userProfileDTO{
		UserID: u.ID, Username: u.Username, Email: u.Email, Roles: roles,
		IsVerified: u.IsVerified, QuotaLimit: u.QuotaLimit, QuotaUsed: u.QuotaUsed,
	}
}

// Register handles POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	user, err := h.svc.RegisterLocal(r.Context(), body.Username, body.Email, body.Password, body.Username)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserProfileDTO(user))
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	pair, user, err := h.svc.LoginWithPassword(r.Context(), body.Email, body.Password, r.UserAgent(), remoteKey(r))
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(time.Until(pair.AccessExpiry).Seconds()),
		"user_profile":  toUserProfileDTO(user),
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	pair, err := h.svc.RefreshAccessToken(r.Context(), body.RefreshToken, r.UserAgent(), remoteKey(r))
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": pair.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   int(time.Until(pair.AccessExpiry).Seconds()),
	})
}

// Me handles GET /auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	user, err := h.svc.GetUser(r.Context(), claims.Subject)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserProfileDTO(user))
}

// ChangePassword handles POST /auth/change-password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	var body struct {
		Current string `json:"current"`
		New     string `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.Subject, body.Current, body.New); err != nil {
		writeClassifiedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser handles DELETE /auth/users/{id}, admin-only.
func (h *AuthHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.DeleteUser(r.Context(), id); err != nil {
		writeClassifiedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
