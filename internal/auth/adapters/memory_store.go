package adapters

import (
	"context"
	"fmt"
	"sync"

	"alex/internal/auth/domain"
)

// NewMemoryStores creates repositories backed by in-memory maps, for tests
// and single-process deployments.
func NewMemoryStores() (*memoryUserRepo, *memoryIdentityRepo, *memorySessionRepo) {
	users := &memoryUserRepo{users: map[string]domain.User{}, emailIdx: map[string]string{}, usernameIdx: map[string]string{}}
	identities := &memoryIdentityRepo{identities: map[string]domain.Identity{}, providerIdx: map[string]string{}}
	sessions := &memorySessionRepo{sessions: map[string]domain.Session{}, fingerprintIdx: map[string]string{}, verifier: func(string, string) (bool, error) {
		return false, fmt.Errorf("refresh token verifier not configured")
	}}
	return users, identities, sessions
}

type memoryUserRepo struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	emailIdx    map[string]string
	usernameIdx map[string]string
}

func (r *memoryUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.emailIdx[user.Email]; exists {
		return domain.User{}, domain.ErrUserExists
	}
	if _, exists := r.usernameIdx[user.Username]; exists {
		return domain.User{}, domain.ErrUserExists
	}
	r.users[user.ID] = user
	r.emailIdx[user.Email] = user.ID
	r.usernameIdx[user.Username] = user.ID
	return user, nil
}

func (r *memoryUserRepo) Update(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.ID]; !exists {
		return domain.User{}, domain.ErrUserNotFound
	}
	r.users[user.ID] = user
	r.emailIdx[user.Email] = user.ID
	r.usernameIdx[user.Username] = user.ID
	return user, nil
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.emailIdx[email]; ok {
		return r.users[id], nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r *memoryUserRepo) FindByUsername(_ context.Context, username string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.usernameIdx[username]; ok {
		return r.users[id], nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r *memoryUserRepo) FindByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.users[id]; ok {
		return user, nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r *memoryUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	delete(r.emailIdx, user.Email)
	delete(r.usernameIdx, user.Username)
	return nil
}

type memoryIdentityRepo struct {
	mu          sync.RWMutex
	identities  map[string]domain.Identity
	providerIdx map[string]string
}

func identityKey(provider domain.ProviderType, providerID string) string {
	return string(provider) + ":" + providerID
}

func (r *memoryIdentityRepo) Create(_ context.Context, identity domain.Identity) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := identityKey(identity.Provider, identity.ProviderID)
	r.identities[identity.ID] = identity
	r.providerIdx[idx] = identity.ID
	return identity, nil
}

func (r *memoryIdentityRepo) Update(_ context.Context, identity domain.Identity) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[identity.ID]; !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	r.identities[identity.ID] = identity
	idx := identityKey(identity.Provider, identity.ProviderID)
	r.providerIdx[idx] = identity.ID
	return identity, nil
}

func (r *memoryIdentityRepo) FindByProvider(_ context.Context, provider domain.ProviderType, providerID string) (domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := identityKey(provider, providerID)
	if id, ok := r.providerIdx[idx]; ok {
		return r.identities[id], nil
	}
	return domain.Identity{}, domain.ErrIdentityNotFound
}

type memorySessionRepo struct {
	mu             sync.RWMutex
	sessions       map[string]domain.Session
	fingerprintIdx map[string]string
	verifier       func(string, string) (bool, error)
}

// SetVerifier configures the refresh token verification callback used by
// FindByRefreshToken to confirm a presented plaintext token against the
// stored Argon2id hash.
func (r *memorySessionRepo) SetVerifier(verifier func(string, string) (bool, error)) {
	if verifier == nil {
		return
	}
	r.mu.Lock()
	r.verifier = verifier
	r.mu.Unlock()
}

func (r *memorySessionRepo) Create(_ context.Context, session domain.Session) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	if session.RefreshTokenFingerprint != "" {
		r.fingerprintIdx[session.RefreshTokenFingerprint] = session.ID
	}
	return session, nil
}

func (r *memorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		delete(r.fingerprintIdx, session.RefreshTokenFingerprint)
	}
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.UserID == userID {
			delete(r.fingerprintIdx, session.RefreshTokenFingerprint)
			delete(r.sessions, id)
		}
	}
	return nil
}

// FindByRefreshToken looks the session up by the fingerprint of the
// presented plaintext token, then verifies it against the stored Argon2id
// hash so a leaked fingerprint index alone can't forge a session.
func (r *memorySessionRepo) FindByRefreshToken(_ context.Context, refreshToken string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fingerprint := domain.FingerprintRefreshToken(refreshToken)
	id, ok := r.fingerprintIdx[fingerprint]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	session := r.sessions[id]
	match, err := r.verifier(refreshToken, session.RefreshTokenHash)
	if err != nil {
		return domain.Session{}, err
	}
	if !match {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}
