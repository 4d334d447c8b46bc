package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	deliveryhttp "alex/internal/delivery/server/http"
)

// newRawRequest builds a request with a literal string body, for tests that
// need to send intentionally malformed JSON.
func newRawRequest(t *testing.T, method, path, body, token string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func serveRaw(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func newTestRouter(t *testing.T) (http.Handler, deliveryhttp.Deps) {
	t.Helper()
	auth, users := newTestAuth(t)
	mem := newTestFacade()
	deps := deliveryhttp.Deps{
		Auth: auth, Core: newTestCore(mem), Memory: mem,
		Plugins: newTestPluginHost(), Limiter: dispatchRateLimiter(),
	}
	_ = users
	return deliveryhttp.NewRouter(deps), deps
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	h, _ := newTestRouter(t)

	w := doJSON(t, h, "POST", "/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "correct horse battery staple",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "POST", "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "correct horse battery staple",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if loginResp.AccessToken == "" {
		t.Fatal("expected a non-empty access token")
	}

	w = doJSON(t, h, "GET", "/api/v1/auth/me", nil, loginResp.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", w.Code, w.Body.String())
	}
	var profile struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Username != "alice" {
		t.Fatalf("username = %q, want alice", profile.Username)
	}
}

func TestAuth_LoginWrongPasswordIsUnauthorized(t *testing.T) {
	h, _ := newTestRouter(t)
	doJSON(t, h, "POST", "/api/v1/auth/register", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "correct horse battery staple",
	}, "")

	w := doJSON(t, h, "POST", "/api/v1/auth/login", map[string]string{
		"email": "bob@example.com", "password": "wrong password entirely",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401, body = %s", w.Code, w.Body.String())
	}
}

func TestAuth_RegisterDuplicateEmailFails(t *testing.T) {
	h, _ := newTestRouter(t)
	body := map[string]string{"username": "carol", "email": "carol@example.com", "password": "correct horse battery staple"}
	doJSON(t, h, "POST", "/api/v1/auth/register", body, "")

	w := doJSON(t, h, "POST", "/api/v1/auth/register", body, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
}

func TestAuth_MeWithoutTokenIsUnauthorized(t *testing.T) {
	h, _ := newTestRouter(t)
	w := doJSON(t, h, "GET", "/api/v1/auth/me", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuth_ChangePasswordThenLoginWithNewPassword(t *testing.T) {
	h, _ := newTestRouter(t)
	doJSON(t, h, "POST", "/api/v1/auth/register", map[string]string{
		"username": "dana", "email": "dana@example.com", "password": "correct horse battery staple",
	}, "")
	w := doJSON(t, h, "POST", "/api/v1/auth/login", map[string]string{
		"email": "dana@example.com", "password": "correct horse battery staple",
	}, "")
	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &loginResp)

	w = doJSON(t, h, "POST", "/api/v1/auth/change-password", map[string]string{
		"current": "correct horse battery staple", "new": "a brand new passphrase",
	}, loginResp.AccessToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("change-password status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "POST", "/api/v1/auth/login", map[string]string{
		"email": "dana@example.com", "password": "a brand new passphrase",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("relogin status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuth_DeleteUserRequiresAdmin(t *testing.T) {
	h, deps := newTestRouter(t)
	token, userID := registerAndLogin(t, deps.Auth, "erin")

	w := doJSON(t, h, "DELETE", "/api/v1/auth/users/"+userID, nil, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a non-admin caller, body = %s", w.Code, w.Body.String())
	}
}

func TestAuth_DeleteUserAsAdminSucceeds(t *testing.T) {
	auth, users := newTestAuth(t)
	h := rebuildRouterFrom(auth, newTestFacade())

	adminToken, _ := registerAdminAndLogin(t, auth, users, "frank")
	_, targetID := registerAndLogin(t, auth, "grace")

	w := doJSON(t, h, "DELETE", "/api/v1/auth/users/"+targetID, nil, adminToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body = %s", w.Code, w.Body.String())
	}
}
