package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/dbx"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
)

const orderColumns = `id, organization_id, user_id, total_amount, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*models.Order, error) {
	o := &models.Order{}
	if err := s.Scan(&o.ID, &o.OrganizationID, &o.UserID, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	query :=
		`INSERT INTO orders (organization_id, user_id, total_amount)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, order.OrganizationID, order.UserID, order.TotalAmount).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return order, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND organization_id = $2`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id, organizationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE organization_id = $1 ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, order *models.Order) (*models.Order, error) {
	query :=
		`UPDATE orders
		 SET total_amount = $3, updated_at = now()
		 WHERE id = $1 AND organization_id = $2
		 RETURNING ` + orderColumns

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, order.ID, order.OrganizationID, order.TotalAmount))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, organizationID, id string) error {
	n, err := dbx.ExecAffected(ctx, r.db,
		`DELETE FROM orders WHERE id = $1 AND organization_id = $2`, id, organizationID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
