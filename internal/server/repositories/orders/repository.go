package orders

import (
	"context"

	"github.com/dmitrijs2005/orgdesk/internal/server/models"
)

// Repository persists orders. Every read and write is scoped to one
// organization; an order of another organization is reported as not found.
type Repository interface {
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, organizationID, id string) (*models.Order, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]models.Order, error)
	Update(ctx context.Context, order *models.Order) (*models.Order, error)
	Delete(ctx context.Context, organizationID, id string) error
}
