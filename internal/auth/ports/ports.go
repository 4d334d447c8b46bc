package ports

import (
	"context"
	"time"

	"alex/internal/auth/domain"
)

// UserRepository abstracts persistence for user records.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Update(ctx context.Context, user domain.User) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	Delete(ctx context.Context, id string) error
}

// IdentityRepository manages local credential links.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) (domain.Identity, error)
	Update(ctx context.Context, identity domain.Identity) (domain.Identity, error)
	FindByProvider(ctx context.Context, provider domain.ProviderType, providerID string) (domain.Identity, error)
}

// SessionRepository stores refresh-token backed sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) (domain.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	FindByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error)
}

// TokenManager issues and validates application JWTs.
type TokenManager interface {
	GenerateAccessToken(ctx context.Context, user domain.User, sessionID string) (token string, expiresAt time.Time, err error)
	GenerateRefreshToken(ctx context.Context) (plain string, hashed string, err error)
	ParseAccessToken(ctx context.Context, token string) (domain.Claims, error)
	HashRefreshToken(token string) (string, error)
	VerifyRefreshToken(token, encodedHash string) (bool, error)
}
