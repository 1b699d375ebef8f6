// Package auth is the token authority: it signs and verifies short-lived
// access tokens and long-lived refresh tokens. It never touches storage;
// persisting refresh-token records is the caller's job.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	maxLeeway = 2 * time.Minute
)

// Config holds signing material and lifetimes. Access and refresh tokens are
// signed with separate secrets.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	Issuer        string
}

// Identity is the subject bundle embedded in every token.
type Identity struct {
	UserID         string
	Email          string
	OrganizationID string
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID         string `json:"id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	Type           string `json:"typ"`
	jwt.RegisteredClaims
}

// Identity returns the subject bundle carried by the token.
func (c *AccessClaims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, OrganizationID: c.OrganizationID}
}

// RefreshClaims is the verified content of a refresh token. TokenID is the
// primary key of the matching persisted record.
type RefreshClaims struct {
	UserID         string `json:"id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	TokenFamily    string `json:"tokenFamily"`
	TokenID        string `json:"tokenId"`
	Type           string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *RefreshClaims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, OrganizationID: c.OrganizationID}
}

// Authority issues and verifies tokens. It is stateless and safe for
// concurrent use.
type Authority struct {
	cfg Config
	now func() time.Time
}

// Option customizes an Authority.
type Option func(*Authority)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// NewAuthority validates cfg and returns an Authority.
func NewAuthority(cfg Config, opts ...Option) (*Authority, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}

	a := &Authority{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// NewFamily returns a fresh token family identifier for a new login.
func (a *Authority) NewFamily() string {
	return uuid.NewString()
}

// IssueAccessToken signs id with the access secret and the access TTL.
func (a *Authority) IssueAccessToken(id Identity) (string, error) {
	now := a.now()
	claims := AccessClaims{
		UserID:           id.UserID,
		Email:            id.Email,
		OrganizationID:   id.OrganizationID,
		Type:             tokenTypeAccess,
		RegisteredClaims: a.registered(id.UserID, now, a.cfg.AccessTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.AccessSecret)
}

// IssueRefreshToken signs id together with family and a freshly generated
// token ID. The token ID is returned so the caller can persist the record.
func (a *Authority) IssueRefreshToken(id Identity, family string) (token string, tokenID string, err error) {
	if family == "" {
		return "", "", errors.New("token family is required")
	}

	tokenID = uuid.NewString()
	now := a.now()
	claims := RefreshClaims{
		UserID:           id.UserID,
		Email:            id.Email,
		OrganizationID:   id.OrganizationID,
		TokenFamily:      family,
		TokenID:          tokenID,
		Type:             tokenTypeRefresh,
		RegisteredClaims: a.registered(id.UserID, now, a.cfg.RefreshTTL),
	}
	claims.ID = tokenID

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.RefreshSecret)
	if err != nil {
		return "", "", err
	}
	return token, tokenID, nil
}

// VerifyAccessToken checks signature and expiry. Every failure is reported as
// common.ErrInvalidToken.
func (a *Authority) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := a.parse(token, claims, a.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry against the refresh secret.
func (a *Authority) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := a.parse(token, claims, a.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeRefresh || claims.TokenID == "" || claims.TokenFamily == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (a *Authority) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (a *Authority) parse(token string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(a.cfg.Leeway))
	}
	if a.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, options...)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
