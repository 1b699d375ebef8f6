package organizations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/dbx"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
)

const orgColumns = `id, name, industry, date_founded, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrganization(s scanner) (*models.Organization, error) {
	o := &models.Organization{}
	var founded sql.NullTime
	if err := s.Scan(&o.ID, &o.Name, &o.Industry, &founded, &o.CreatedAt); err != nil {
		return nil, err
	}
	if founded.Valid {
		o.DateFounded = &founded.Time
	}
	return o, nil
}

func (r *PostgresRepository) Create(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	query :=
		`INSERT INTO organizations (name, industry, date_founded)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query, org.Name, org.Industry, org.DateFounded).
		Scan(&org.ID, &org.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return org, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE ` + where

	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return org, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	return r.getOne(ctx, `name = $1`, name)
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Organization, 0)
	for rows.Next() {
		o, err := scanOrganization(rows)
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

func (r *PostgresRepository) Update(ctx context.Context, org *models.Organization) error {
	query :=
		`UPDATE organizations
		 SET name = $2, industry = $3, date_founded = $4
		 WHERE id = $1
		 `

	n, err := dbx.ExecAffected(ctx, r.db, query, org.ID, org.Name, org.Industry, org.DateFounded)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	n, err := dbx.ExecAffected(ctx, r.db, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
