// Package common defines shared constants and sentinel errors used across
// orgdesk layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Credential errors.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization does not exist")

	// Access token errors (invalid signature, malformed or expired).
	ErrInvalidToken = errors.New("invalid or expired token")

	// Refresh token lifecycle errors.
	ErrMissingToken                 = errors.New("refresh token is required")
	ErrInvalidOrExpiredRefreshToken = errors.New("invalid or expired refresh token")
	ErrRefreshTokenRevoked          = errors.New("refresh token has been revoked")
)
