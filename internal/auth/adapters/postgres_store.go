package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"alex/internal/auth/domain"
)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

type PostgresIdentityRepo struct {
	pool *pgxpool.Pool
}

type PostgresSessionRepo struct {
	pool     *pgxpool.Pool
	verifier func(string, string) (bool, error)
}

// NewPostgresStores returns the UserProfile/Identity/Session repositories
// backed by the auth_users, auth_identities and auth_sessions tables.
func NewPostgresStores(pool *pgxpool.Pool) (*PostgresUserRepo, *PostgresIdentityRepo, *PostgresSessionRepo) {
	sessions := &PostgresSessionRepo{pool: pool, verifier: func(string, string) (bool, error) {
		return false, fmt.Errorf("refresh token verifier not configured")
	}}
	return &PostgresUserRepo{pool: pool}, &PostgresIdentityRepo{pool: pool}, sessions
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func rolesFromStrings(raw []string) []domain.Role {
	out := make([]domain.Role, len(raw))
	for i, r := range raw {
		out[i] = domain.Role(r)
	}
	return out
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	query := `
INSERT INTO auth_users (id, username, email, display_name, status, password_hash, roles, is_verified, quota_limit, quota_used, last_login, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
RETURNING id, username, email, display_name, status, password_hash, roles, is_verified, quota_limit, quota_used, last_login, created_at, updated_at
`
	var roles []string
	var created domain.User
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.DisplayName, string(user.Status), user.PasswordHash,
		rolesToStrings(user.Roles), user.IsVerified, user.QuotaLimit, user.QuotaUsed, user.LastLogin, user.CreatedAt,
	).Scan(
		&created.ID, &created.Username, &created.Email, &created.DisplayName, &created.Status, &created.PasswordHash,
		&roles, &created.IsVerified, &created.QuotaLimit, &created.QuotaUsed, &created.LastLogin, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, domain.ErrUserExists
		}
		return domain.User{}, err
	}
	created.Roles = rolesFromStrings(roles)
	return created, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, user domain.User) (domain.User, error) {
	query := `
UPDATE auth_users
SET username = $2, email = $3, display_name = $4, status = $5, password_hash = $6,
    roles = $7, is_verified = $8, quota_limit = $9, quota_used = $10, last_login = $11, updated_at = $12
WHERE id = $1
RETURNING id, username, email, display_name, status, password_hash, roles, is_verified, quota_limit, quota_used, last_login, created_at, updated_at
`
	var roles []string
	var updated domain.User
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.DisplayName, string(user.Status), user.PasswordHash,
		rolesToStrings(user.Roles), user.IsVerified, user.QuotaLimit, user.QuotaUsed, user.LastLogin, user.UpdatedAt,
	).Scan(
		&updated.ID, &updated.Username, &updated.Email, &updated.DisplayName, &updated.Status, &updated.PasswordHash,
		&roles, &updated.IsVerified, &updated.QuotaLimit, &updated.QuotaUsed, &updated.LastLogin, &updated.CreatedAt, &updated.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	updated.Roles = rolesFromStrings(roles)
	return updated, nil
}

const selectUserColumns = `id, username, email, display_name, status, password_hash, roles, is_verified, quota_limit, quota_used, last_login, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	var roles []string
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.DisplayName, &user.Status, &user.PasswordHash,
		&roles, &user.IsVerified, &user.QuotaLimit, &user.QuotaUsed, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	user.Roles = rolesFromStrings(roles)
	return user, nil
}

func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + selectUserColumns + ` FROM auth_users WHERE email = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	query := `SELECT ` + selectUserColumns + ` FROM auth_users WHERE username = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + selectUserColumns + ` FROM auth_users WHERE id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// Delete removes the user row. Owned auth sessions cascade via a foreign key
// ON DELETE CASCADE; conversation sessions and turns in the memory tiers are
// not purged on this path.
func (r *PostgresUserRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PostgresIdentityRepo) Create(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	query := `
INSERT INTO auth_identities (id, user_id, provider, provider_uid, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
RETURNING id, user_id, provider, provider_uid, created_at, updated_at
`
	var created domain.Identity
	err := r.pool.QueryRow(ctx, query, identity.ID, identity.UserID, string(identity.Provider), identity.ProviderID, identity.CreatedAt).Scan(
		&created.ID, &created.UserID, &created.Provider, &created.ProviderID, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Identity{}, fmt.Errorf("identity already exists: %w", err)
		}
		return domain.Identity{}, err
	}
	return created, nil
}

func (r *PostgresIdentityRepo) Update(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	query := `
UPDATE auth_identities SET updated_at = $2 WHERE id = $1
RETURNING id, user_id, provider, provider_uid, created_at, updated_at
`
	var updated domain.Identity
	err := r.pool.QueryRow(ctx, query, identity.ID, identity.UpdatedAt).Scan(
		&updated.ID, &updated.UserID, &updated.Provider, &updated.ProviderID, &updated.CreatedAt, &updated.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, domain.ErrIdentityNotFound
		}
		return domain.Identity{}, err
	}
	return updated, nil
}

func (r *PostgresIdentityRepo) FindByProvider(ctx context.Context, provider domain.ProviderType, providerID string) (domain.Identity, error) {
	query := `SELECT id, user_id, provider, provider_uid, created_at, updated_at FROM auth_identities WHERE provider = $1 AND provider_uid = $2`
	var identity domain.Identity
	err := r.pool.QueryRow(ctx, query, string(provider), providerID).Scan(
		&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderID, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, domain.ErrIdentityNotFound
		}
		return domain.Identity{}, err
	}
	return identity, nil
}

func (r *PostgresSessionRepo) SetVerifier(verifier func(string, string) (bool, error)) {
	if verifier == nil {
		return
	}
	r.verifier = verifier
}

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	query := `
INSERT INTO auth_sessions (id, user_id, refresh_token_hash, refresh_token_fingerprint, user_agent, ip_address, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::inet, $7, $8)
RETURNING id, user_id, refresh_token_hash, refresh_token_fingerprint, user_agent, COALESCE(ip_address::text, ''), created_at, expires_at
`
	var created domain.Session
	err := r.pool.QueryRow(ctx, query,
		session.ID, session.UserID, session.RefreshTokenHash, session.RefreshTokenFingerprint,
		session.UserAgent, session.IP, session.CreatedAt, session.ExpiresAt,
	).Scan(
		&created.ID, &created.UserID, &created.RefreshTokenHash, &created.RefreshTokenFingerprint,
		&created.UserAgent, &created.IP, &created.CreatedAt, &created.ExpiresAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	return created, nil
}

func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
	return err
}

func (r *PostgresSessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE user_id = $1`, userID)
	return err
}

func (r *PostgresSessionRepo) FindByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error) {
	fingerprint := domain.FingerprintRefreshToken(refreshToken)
	query := `
SELECT id, user_id, refresh_token_hash, refresh_token_fingerprint, user_agent, COALESCE(ip_address::text, ''), created_at, expires_at
FROM auth_sessions
WHERE refresh_token_fingerprint = $1
ORDER BY created_at DESC
LIMIT 1
`
	var session domain.Session
	err := r.pool.QueryRow(ctx, query, fingerprint).Scan(
		&session.ID, &session.UserID, &session.RefreshTokenHash, &session.RefreshTokenFingerprint,
		&session.UserAgent, &session.IP, &session.CreatedAt, &session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, err
	}
	match, err := r.verifier(refreshToken, session.RefreshTokenHash)
	if err != nil {
		return domain.Session{}, err
	}
	if !match {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}
