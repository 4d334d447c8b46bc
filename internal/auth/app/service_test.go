package app_test

import (
	"context"
	"testing"
	"time"

	"alex/internal/auth/adapters"
	authapp "alex/internal/auth/app"
	"alex/internal/auth/domain"
)

func newTestService(t *testing.T) *authapp.Service {
	t.Helper()
	users, identities, sessions := adapters.NewMemoryStores()
	tokenManager := adapters.NewJWTTokenManager("secret", "test", 15*time.Minute)
	return authapp.NewService(users, identities, sessions, tokenManager, authapp.Config{})
}

func TestRegisterAndLogin(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.RegisterLocal(ctx, "tester", "test@example.com", "password", "Tester")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped from the returned user")
	}
	if !user.HasRole(domain.RoleUser) {
		t.Fatalf("expected default role user, got %v", user.Roles)
	}
	if user.QuotaLimit != authapp.DefaultQuotaLimit {
		t.Fatalf("expected default quota limit, got %d", user.QuotaLimit)
	}

	tokens, loggedIn, err := service.LoginWithPassword(ctx, "test@example.com", "password", "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued: %+v", tokens)
	}
	if tokens.RefreshExpiry.Before(time.Now()) {
		t.Fatalf("expected refresh token expiry in future")
	}
	if loggedIn.LastLogin.IsZero() {
		t.Fatalf("expected last_login to be stamped")
	}

	claims, err := service.ParseAccessToken(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("expected subject %s got %s", user.ID, claims.Subject)
	}
	if claims.Type != domain.TokenTypeAccess {
		t.Fatalf("expected access token type, got %s", claims.Type)
	}

	refreshed, err := service.RefreshAccessToken(ctx, tokens.RefreshToken, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == tokens.AccessToken {
		t.Fatalf("expected new access token on refresh")
	}

	// the rotated-away refresh token must no longer work
	if _, err := service.RefreshAccessToken(ctx, tokens.RefreshToken, "agent", "127.0.0.1"); err == nil {
		t.Fatalf("expected rotated refresh token to be rejected")
	}
}

func TestRegisterRejectsDuplicateEmailAndUsername(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.RegisterLocal(ctx, "tester", "test@example.com", "password", "Tester"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := service.RegisterLocal(ctx, "other", "test@example.com", "password", "Other"); err != domain.ErrUserExists {
		t.Fatalf("expected ErrUserExists for duplicate email, got %v", err)
	}
	if _, err := service.RegisterLocal(ctx, "tester", "other@example.com", "password", "Other"); err != domain.ErrUserExists {
		t.Fatalf("expected ErrUserExists for duplicate username, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	if _, err := service.RegisterLocal(ctx, "tester", "test@example.com", "password", "Tester"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := service.LoginWithPassword(ctx, "test@example.com", "wrong", "agent", "127.0.0.1"); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	if _, err := service.RegisterLocal(ctx, "tester", "test@example.com", "password", "Tester"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tokens, _, err := service.LoginWithPassword(ctx, "test@example.com", "password", "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := service.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := service.RefreshAccessToken(ctx, tokens.RefreshToken, "agent", "127.0.0.1"); err == nil {
		t.Fatalf("expected refresh to fail after logout")
	}
}
