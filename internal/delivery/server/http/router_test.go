package http_test

import (
	"net/http"
	"testing"
)

func TestRouter_UnknownRouteIs404(t *testing.T) {
	h, _ := newTestRouter(t)
	w := doJSON(t, h, "GET", "/api/v1/nope", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRouter_WrongMethodIs405(t *testing.T) {
	h, _ := newTestRouter(t)
	w := doJSON(t, h, "GET", "/api/v1/auth/register", nil, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405 (Go 1.22 ServeMux reports wrong-method as 405)", w.Code)
	}
}

func TestRouter_MalformedJSONBodyIs400(t *testing.T) {
	h, deps := newTestRouter(t)
	token, _ := registerAndLogin(t, deps.Auth, "terry")

	req := newRawRequest(t, "POST", "/api/v1/chat", "{not json", token)
	w := serveRaw(h, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed body, body = %s", w.Code, w.Body.String())
	}
}
