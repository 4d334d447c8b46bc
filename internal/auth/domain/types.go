package domain

import "time"

// Role is a position in the fixed hierarchy admin > premium > user > guest.
type Role string

const (
	RoleAdmin   Role = "admin"
	RolePremium Role = "premium"
	RoleUser    Role = "user"
	RoleGuest   Role = "guest"
)

// roleRank orders roles so that a higher rank implies every permission of
// the roles below it.
var roleRank = map[Role]int{
	RoleGuest:   0,
	RoleUser:    1,
	RolePremium: 2,
	RoleAdmin:   3,
}

// Implies reports whether holding r also grants whatever other grants,
// per the fixed admin > premium > user > guest hierarchy.
func (r Role) Implies(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// UserStatus represents the lifecycle state of an account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User is the UserProfile: (user_id, username, email, password_hash, roles,
// created_at, last_login, is_active, is_verified, quota_limit, quota_used).
// It is the root of a user's owned data; deleting it removes the user's auth
// sessions but not the conversation sessions and turns held in the memory
// tiers, and it is never implicitly deleted itself.
type User struct {
	ID           string
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	Roles        []Role
	Status       UserStatus
	IsVerified   bool
	QuotaLimit   int64
	QuotaUsed    int64
	LastLogin    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds role or a role that implies it.
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r.Implies(role) {
			return true
		}
	}
	return false
}

// ProviderType identifies how an Identity authenticates.
type ProviderType string

// ProviderLocal is the only identity provider the service issues tokens
// against; local accounts authenticate with username/password.
const ProviderLocal ProviderType = "local"

// Identity links a user to a local credential record. The service does not
// federate against third-party identity providers.
type Identity struct {
	ID         string
	UserID     string
	Provider   ProviderType
	ProviderID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session represents a refresh-token backed login session. RefreshTokenHash
// is the Argon2id hash used for verification; RefreshTokenFingerprint is a
// deterministic SHA-256 digest of the plaintext token used as an indexed
// lookup key, since the salted Argon2id hash alone can't support one.
type Session struct {
	ID                      string
	UserID                  string
	RefreshTokenHash        string
	RefreshTokenFingerprint string
	UserAgent               string
	IP                      string
	CreatedAt               time.Time
	ExpiresAt               time.Time
}

// TokenType distinguishes access from refresh tokens within Claims.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload carried by issued tokens: subject, issued-at,
// expires-at, type, optional roles, and a unique nonce.
type Claims struct {
	Subject   string
	Email     string
	SessionID string
	Type      TokenType
	Roles     []Role
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair bundles issued tokens together with expiry metadata.
type TokenPair struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}
