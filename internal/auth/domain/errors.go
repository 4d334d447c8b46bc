package domain

import "errors"

var (
	// ErrUserExists indicates a user already exists with the provided email or username.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates that the user could not be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrIdentityNotFound indicates a credential link was not found.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrInvalidCredentials indicates username/password authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account cannot sign in.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrSessionNotFound indicates refresh session missing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates the refresh token is expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrPermissionDenied indicates the caller lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
)
