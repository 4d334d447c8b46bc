package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"alex/internal/auth/domain"
	"alex/internal/auth/ports"
	"alex/internal/auth/crypto"
)

// DefaultQuotaLimit is the daily chargeable-operation allowance granted to
// a newly registered account.
const DefaultQuotaLimit = 100

// Config controls token expirations.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Service orchestrates registration, login, refresh and logout.
type Service struct {
	users      ports.UserRepository
	identities ports.IdentityRepository
	sessions   ports.SessionRepository
	tokens     ports.TokenManager
	config     Config
	now        func() time.Time
}

// NewService constructs a Service instance.
func NewService(users ports.UserRepository, identities ports.IdentityRepository, sessions ports.SessionRepository, tokens ports.TokenManager, cfg Config) *Service {
	if sessions != nil && tokens != nil {
		type refreshVerifier interface {
			SetVerifier(func(string, string) (bool, error))
		}
		if verifier, ok := sessions.(refreshVerifier); ok {
			verifier.SetVerifier(func(plain, encoded string) (bool, error) {
				return tokens.VerifyRefreshToken(plain, encoded)
			})
		}
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	return &Service{
		users:      users,
		identities: identities,
		sessions:   sessions,
		tokens:     tokens,
		config:     cfg,
		now:        time.Now,
	}
}

// WithNow allows tests to control the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RegisterLocal registers a new local account with username/password,
// rejecting duplicate email or username. The returned User never carries
// PasswordHash set in the response the caller serializes to clients.
func (s *Service) RegisterLocal(ctx context.Context, username, email, password, displayName string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" {
		return domain.User{}, fmt.Errorf("username is required")
	}
	if email == "" {
		return domain.User{}, fmt.Errorf("email is required")
	}
	if password == "" {
		return domain.User{}, fmt.Errorf("password is required")
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return domain.User{}, domain.ErrUserExists
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return domain.User{}, domain.ErrUserExists
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		Status:       domain.UserStatusActive,
		PasswordHash: hashed,
		Roles:        []domain.Role{domain.RoleUser},
		QuotaLimit:   DefaultQuotaLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return domain.User{}, err
	}

	if _, err := s.identities.Create(ctx, domain.Identity{
		ID:         uuid.NewString(),
		UserID:     created.ID,
		Provider:   domain.ProviderLocal,
		ProviderID: created.Username,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return domain.User{}, err
	}

	created.PasswordHash = ""
	return created, nil
}

// LoginWithPassword authenticates by email and password, rejects inactive
// accounts, issues an access+refresh token pair, and updates last_login.
func (s *Service) LoginWithPassword(ctx context.Context, email, password, userAgent, ip string) (domain.TokenPair, domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, domain.ErrInvalidCredentials
	}
	ok, err := crypto.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return domain.TokenPair{}, domain.User{}, domain.ErrInvalidCredentials
	}
	if user.Status != domain.UserStatusActive {
		return domain.TokenPair{}, domain.User{}, domain.ErrAccountDisabled
	}

	pair, err := s.issueTokenPair(ctx, user, userAgent, ip)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	user.LastLogin = s.now()
	user.UpdatedAt = user.LastLogin
	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}
	updated.PasswordHash = ""
	return pair, updated, nil
}

func (s *Service) issueTokenPair(ctx context.Context, user domain.User, userAgent, ip string) (domain.TokenPair, error) {
	plainRefresh, hashedRefresh, err := s.tokens.GenerateRefreshToken(ctx)
	if err != nil {
		return domain.TokenPair{}, err
	}
	session := domain.Session{
		ID:                      uuid.NewString(),
		UserID:                  user.ID,
		RefreshTokenHash:        hashedRefresh,
		RefreshTokenFingerprint: domain.FingerprintRefreshToken(plainRefresh),
		UserAgent:               userAgent,
		IP:                      ip,
		CreatedAt:               s.now(),
		ExpiresAt:               s.now().Add(s.config.RefreshTokenTTL),
	}
	if _, err := s.sessions.Create(ctx, session); err != nil {
		return domain.TokenPair{}, err
	}
	accessToken, expiresAt, err := s.tokens.GenerateAccessToken(ctx, user, session.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:   accessToken,
		AccessExpiry:  expiresAt,
		RefreshToken:  plainRefresh,
		RefreshExpiry: session.ExpiresAt,
	}, nil
}

// RefreshAccessToken verifies a refresh token, cross-checking the cached
// session copy, and mints a new access token while rotating the refresh
// token (replay of a consumed refresh token is rejected by its deletion).
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken, userAgent, ip string) (domain.TokenPair, error) {
	session, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if session.ExpiresAt.Before(s.now()) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return domain.TokenPair{}, domain.ErrSessionExpired
	}
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.sessions.DeleteByID(ctx, session.ID); err != nil {
		return domain.TokenPair{}, err
	}
	return s.issueTokenPair(ctx, user, userAgent, ip)
}

// Logout invalidates the cached refresh token's session.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.sessions.DeleteByID(ctx, session.ID)
}

// ParseAccessToken parses an access token into its claims.
func (s *Service) ParseAccessToken(ctx context.Context, token string) (domain.Claims, error) {
	return s.tokens.ParseAccessToken(ctx, token)
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// ChangePassword verifies current against the stored hash before replacing
// it, and invalidates every outstanding session so other devices must
// re-authenticate with the new password.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := crypto.VerifyPassword(current, user.PasswordHash)
	if err != nil || !ok {
		return domain.ErrInvalidCredentials
	}
	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hashed
	user.UpdatedAt = s.now()
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}
	return s.sessions.DeleteByUser(ctx, userID)
}

// DeleteUser removes a user and their sessions. Callers MUST enforce the
// admin permission check before invoking this.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.sessions.DeleteByUser(ctx, id); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}
