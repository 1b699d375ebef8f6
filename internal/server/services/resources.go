package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/dmitrijs2005/orgdesk/internal/server/repositories/repomanager"
)

// passThrough keeps repository sentinels visible to callers and folds every
// other failure into ErrorInternal.
func passThrough(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorAlreadyExists):
		return err
	default:
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
}

// UserService exposes the users of one organization.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager) *UserService {
	return &UserService{db: db, repomanager: m}
}

func (s *UserService) List(ctx context.Context, organizationID string) ([]models.User, error) {
	users, err := s.repomanager.Users(s.db).ListByOrganization(ctx, organizationID)
	return users, passThrough(err)
}

// Get returns a user of the caller's organization; users of other
// organizations are reported as not found.
func (s *UserService) Get(ctx context.Context, organizationID, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, passThrough(err)
	}
	if u.OrganizationID != organizationID {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (s *UserService) Update(ctx context.Context, user *models.User) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).Update(ctx, user)
	return u, passThrough(err)
}

func (s *UserService) Delete(ctx context.Context, organizationID, id string) error {
	return passThrough(s.repomanager.Users(s.db).Delete(ctx, organizationID, id))
}

// OrganizationService manages organizations. Organizations are visible to
// every authenticated caller.
type OrganizationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewOrganizationService(db *sql.DB, m repomanager.RepositoryManager) *OrganizationService {
	return &OrganizationService{db: db, repomanager: m}
}

func (s *OrganizationService) List(ctx context.Context) ([]models.Organization, error) {
	orgs, err := s.repomanager.Organizations(s.db).List(ctx)
	return orgs, passThrough(err)
}

func (s *OrganizationService) Get(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.repomanager.Organizations(s.db).GetByID(ctx, id)
	return org, passThrough(err)
}

func (s *OrganizationService) Create(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	created, err := s.repomanager.Organizations(s.db).Create(ctx, org)
	return created, passThrough(err)
}

func (s *OrganizationService) Update(ctx context.Context, org *models.Organization) error {
	return passThrough(s.repomanager.Organizations(s.db).Update(ctx, org))
}

func (s *OrganizationService) Delete(ctx context.Context, id string) error {
	return passThrough(s.repomanager.Organizations(s.db).Delete(ctx, id))
}

// OrderService manages the orders of one organization.
type OrderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewOrderService(db *sql.DB, m repomanager.RepositoryManager) *OrderService {
	return &OrderService{db: db, repomanager: m}
}

func (s *OrderService) List(ctx context.Context, organizationID string) ([]models.Order, error) {
	orders, err := s.repomanager.Orders(s.db).ListByOrganization(ctx, organizationID)
	return orders, passThrough(err)
}

func (s *OrderService) Get(ctx context.Context, organizationID, id string) (*models.Order, error) {
	o, err := s.repomanager.Orders(s.db).GetByID(ctx, organizationID, id)
	return o, passThrough(err)
}

func (s *OrderService) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	o, err := s.repomanager.Orders(s.db).Create(ctx, order)
	return o, passThrough(err)
}

func (s *OrderService) Update(ctx context.Context, order *models.Order) (*models.Order, error) {
	o, err := s.repomanager.Orders(s.db).Update(ctx, order)
	return o, passThrough(err)
}

func (s *OrderService) Delete(ctx context.Context, organizationID, id string) error {
	return passThrough(s.repomanager.Orders(s.db).Delete(ctx, organizationID, id))
}
