package http_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"alex/internal/auth/adapters"
	authapp "alex/internal/auth/app"
	authdomain "alex/internal/auth/domain"
	"alex/internal/auth/ports"
	deliveryhttp "alex/internal/delivery/server/http"
	"alex/internal/dispatch"
	"alex/internal/memory/facade"
	"alex/internal/memory/knowledge"
	"alex/internal/memory/longterm"
	"alex/internal/memory/midterm"
	"alex/internal/memory/shortterm"
	"alex/internal/persona"
	"alex/internal/plugin"
	sharederrors "alex/internal/shared/errors"
)

func newTestPluginHost() *plugin.Host {
	return plugin.NewHost()
}

func dispatchRateLimiter() *dispatch.RateLimiter {
	return dispatch.NewRateLimiter(nil)
}

// rebuildRouterFrom builds a full router around a caller-supplied auth
// service and memory facade, with a fresh core/plugin host/limiter — used
// by tests that need to promote a user to admin before the router exists.
func rebuildRouterFrom(auth *authapp.Service, mem *facade.Facade) http.Handler {
	return deliveryhttp.NewRouter(deliveryhttp.Deps{
		Auth: auth, Core: newTestCore(mem), Memory: mem,
		Plugins: newTestPluginHost(), Limiter: dispatchRateLimiter(),
	})
}

// newTestAuth builds a real auth service over in-memory stores, returning
// the user repository too so tests can promote a user to admin directly
// (there's no HTTP route for that, by design).
func newTestAuth(t *testing.T) (*authapp.Service, ports.UserRepository) {
	t.Helper()
	users, identities, sessions := adapters.NewMemoryStores()
	tokens := adapters.NewJWTTokenManager("test-secret", "alex-test", time.Hour)
	svc := authapp.NewService(users, identities, sessions, tokens, authapp.Config{
		AccessTokenTTL: time.Hour, RefreshTokenTTL: 24 * time.Hour,
	})
	return svc, users
}

func newTestFacade() *facade.Facade {
	st := shortterm.New(1000, time.Hour)
	mt := midterm.New(midterm.NewInMemoryDurable(), time.Hour, 100, time.Hour)
	lt := longterm.New()
	kb := knowledge.New()
	return facade.New(st, mt, lt, kb)
}

func newTestCore(mem *facade.Facade) *dispatch.Core {
	router := persona.NewRouter("host", []string{"host"}, "searcher", []string{"search"}, "explainer", []string{"explain"})
	handlers := map[string]persona.Handler{
		"host": persona.NewTemplateHandler("host", "You are a helpful assistant.", persona.EchoBackend{}),
	}
	cfg := dispatch.Config{
		Retry:              sharederrors.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFactor: 0},
		FallbackUtterances: map[string]string{"host": "unavailable"},
	}
	return dispatch.NewCore(
		dispatch.NewSessionMap(), dispatch.NewLockRegistry(),
		dispatch.NewQuotaManager(func(string) int64 { return 1000 }, nil),
		dispatch.NewRateLimiter(nil), mem, router, handlers, cfg, nil,
	)
}

// registerAndLogin creates a fresh user and returns a valid access token
// plus the new user's id.
func registerAndLogin(t *testing.T, auth *authapp.Service, name string) (token, userID string) {
	t.Helper()
	ctx := context.Background()
	email := name + "@example.com"
	user, err := auth.RegisterLocal(ctx, name, email, "correct horse battery staple", name)
	if err != nil {
		t.Fatalf("RegisterLocal: %v", err)
	}
	pair, _, err := auth.LoginWithPassword(ctx, email, "correct horse battery staple", "test-agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("LoginWithPassword: %v", err)
	}
	return pair.AccessToken, user.ID
}

// registerAdminAndLogin creates a user, promotes it to admin directly
// against the repository, then logs in so the returned token's claims
// actually carry the admin role.
func registerAdminAndLogin(t *testing.T, auth *authapp.Service, users ports.UserRepository, name string) (token, userID string) {
	t.Helper()
	ctx := context.Background()
	email := name + "@example.com"
	user, err := auth.RegisterLocal(ctx, name, email, "correct horse battery staple", name)
	if err != nil {
		t.Fatalf("RegisterLocal: %v", err)
	}
	user.Roles = []authdomain.Role{authdomain.RoleAdmin}
	if _, err := users.Update(ctx, user); err != nil {
		t.Fatalf("promote to admin: %v", err)
	}
	pair, _, err := auth.LoginWithPassword(ctx, email, "correct horse battery staple", "test-agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("LoginWithPassword: %v", err)
	}
	return pair.AccessToken, user.ID
}
