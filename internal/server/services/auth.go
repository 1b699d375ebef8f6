// Package services contains server-side business logic. This file implements
// AuthService: registration, login, refresh-token rotation with family
// revocation on reuse, and logout.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/hashx"
	"github.com/dmitrijs2005/orgdesk/internal/logging"
	"github.com/dmitrijs2005/orgdesk/internal/metrics"
	"github.com/dmitrijs2005/orgdesk/internal/server/auth"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User *models.User
	TokenPair
}

// RegisterInput carries the fields accepted by Register.
type RegisterInput struct {
	Email            string
	Password         string
	FirstName        *string
	LastName         *string
	OrganizationName string
}

// AuthService provides authentication operations on top of the token
// Authority and the refresh-token Store.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      refreshtokens.Store
	authority   *auth.Authority
	bcryptCost  int
	log         logging.Logger

	// dummyHash is compared against when the email is unknown so Login
	// spends the same bcrypt work either way.
	dummyHash []byte
}

// NewAuthService wires an AuthService. bcryptCost outside bcrypt's accepted
// range falls back to bcrypt.DefaultCost.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, tokens refreshtokens.Store,
	a *auth.Authority, bcryptCost int, log logging.Logger) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("orgdesk-timing-equalizer"), bcryptCost)
	return &AuthService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		authority:   a,
		bcryptCost:  bcryptCost,
		log:         log.With("module", "auth"),
		dummyHash:   dummy,
	}
}

// Register creates a user inside an existing organization (looked up by name)
// and starts a new token family for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	org, err := s.repomanager.Organizations(s.db).GetByName(ctx, in.OrganizationName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Email:          in.Email,
		PasswordHash:   string(hash),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		OrganizationID: org.ID,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	pair, err := s.generateTokenPair(ctx, user, s.authority.NewFamily())
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID, "organization_id", org.ID)
	return &AuthResult{User: user, TokenPair: *pair}, nil
}

// Login verifies credentials and starts a new token family. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrInvalidCredentials
	}

	pair, err := s.generateTokenPair(ctx, user, s.authority.NewFamily())
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, TokenPair: *pair}, nil
}

// Refresh rotates a refresh token. The presented token is revoked and a new
// pair in the same family is issued. Presenting a token that was already
// rotated (or losing a concurrent rotation of it) revokes the whole family.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, common.ErrMissingToken
	}

	claims, err := s.authority.VerifyRefreshToken(refreshToken)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("invalid").Inc()
		return nil, common.ErrInvalidOrExpiredRefreshToken
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			metrics.RefreshTotal.WithLabelValues("invalid").Inc()
			return nil, common.ErrUserNotFound
		}
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	record, err := s.tokens.FindByID(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			metrics.RefreshTotal.WithLabelValues("invalid").Inc()
			return nil, common.ErrInvalidOrExpiredRefreshToken
		}
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if record.UserID != claims.UserID || record.TokenFamily != claims.TokenFamily ||
		record.TokenHash != hashx.TokenHash(refreshToken) {
		metrics.RefreshTotal.WithLabelValues("invalid").Inc()
		return nil, common.ErrInvalidOrExpiredRefreshToken
	}

	if record.Revoked {
		s.log.Warn(ctx, "refresh token reuse detected", "user_id", record.UserID, "family", record.TokenFamily)
		s.revokeFamily(ctx, record.TokenFamily, "reuse")
		metrics.RefreshTotal.WithLabelValues("revoked").Inc()
		return nil, common.ErrRefreshTokenRevoked
	}

	pair, next, err := s.issueTokenPair(user, record.TokenFamily)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	won, err := s.tokens.Rotate(ctx, record.ID, next)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: rotate refresh token: %v", common.ErrorInternal, err)
	}
	if !won {
		s.log.Warn(ctx, "concurrent refresh token presentation", "user_id", record.UserID, "family", record.TokenFamily)
		s.revokeFamily(ctx, record.TokenFamily, "race")
		metrics.RefreshTotal.WithLabelValues("reused").Inc()
		return nil, common.ErrRefreshTokenRevoked
	}

	metrics.RefreshTotal.WithLabelValues("rotated").Inc()
	return pair, nil
}

// Logout revokes the family of a valid refresh token. It never reports
// verification or store failures, so repeated or bogus logouts succeed.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return common.ErrMissingToken
	}

	claims, err := s.authority.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.log.Debug(ctx, "logout with unverifiable token", "error", err)
		return nil
	}

	s.revokeFamily(ctx, claims.TokenFamily, "logout")
	return nil
}

// ActiveTokens reports how many non-revoked refresh tokens a family holds.
func (s *AuthService) ActiveTokens(ctx context.Context, family string) (int64, error) {
	n, err := s.tokens.CountActive(ctx, family)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return n, nil
}

// VerifyAccessToken exposes the Authority check to the HTTP auth gate.
func (s *AuthService) VerifyAccessToken(token string) (*auth.AccessClaims, error) {
	return s.authority.VerifyAccessToken(token)
}

// --- helpers below ---

func (s *AuthService) revokeFamily(ctx context.Context, family, reason string) {
	n, err := s.tokens.RevokeFamily(ctx, family)
	if err != nil {
		s.log.Error(ctx, "revoke token family failed", "family", family, "reason", reason, "error", err)
		return
	}
	metrics.FamilyRevocationsTotal.WithLabelValues(reason).Inc()
	s.log.Info(ctx, "token family revoked", "family", family, "reason", reason, "revoked", n)
}

// issueTokenPair signs a new pair in family and builds the record to persist
// for its refresh token.
func (s *AuthService) issueTokenPair(user *models.User, family string) (*TokenPair, *models.RefreshToken, error) {
	id := auth.Identity{UserID: user.ID, Email: user.Email, OrganizationID: user.OrganizationID}

	access, err := s.authority.IssueAccessToken(id)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: issue access token: %v", common.ErrorInternal, err)
	}
	refresh, tokenID, err := s.authority.IssueRefreshToken(id, family)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: issue refresh token: %v", common.ErrorInternal, err)
	}

	rec := &models.RefreshToken{
		ID:          tokenID,
		TokenHash:   hashx.TokenHash(refresh),
		UserID:      user.ID,
		TokenFamily: family,
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, rec, nil
}

func (s *AuthService) generateTokenPair(ctx context.Context, user *models.User, family string) (*TokenPair, error) {
	pair, rec, err := s.issueTokenPair(user, family)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: store refresh token: %v", common.ErrorInternal, err)
	}
	return pair, nil
}
