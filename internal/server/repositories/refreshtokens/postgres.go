package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/dbx"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rt *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, token_hash, user_id, token_family, revoked)
		VALUES ($1, $2, $3, $4, false)
		RETURNING created_at
	`
	if err := r.db.QueryRowContext(ctx, query, rt.ID, rt.TokenHash, rt.UserID, rt.TokenFamily).Scan(&rt.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rt.Revoked = false
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `
		SELECT id, token_hash, user_id, token_family, revoked, created_at
		FROM refresh_tokens
		WHERE id = $1
	`
	rt := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&rt.ID, &rt.TokenHash, &rt.UserID, &rt.TokenFamily, &rt.Revoked, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}

// RevokeIfActive is a conditional update; the row count tells the caller
// whether it won against concurrent presentations of the same token.
func (r *PostgresRepository) RevokeIfActive(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true
		WHERE id = $1 AND revoked = false
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, family string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true
		WHERE token_family = $1 AND revoked = false
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, family)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context, family string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM refresh_tokens
		WHERE token_family = $1 AND revoked = false
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, family).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// PostgresStore is a PostgresRepository bound to a pool that can also open
// transactions.
type PostgresStore struct {
	*PostgresRepository
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{PostgresRepository: NewPostgresRepository(db), db: db}
}

// Rotate runs the conditional revoke and the insert in one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, oldID string, next *models.RefreshToken) (bool, error) {
	var won bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewPostgresRepository(tx)

		var err error
		won, err = repo.RevokeIfActive(ctx, oldID)
		if err != nil || !won {
			return err
		}
		return repo.Create(ctx, next)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
