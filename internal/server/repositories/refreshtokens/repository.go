// Package refreshtokens declares the persistence port for refresh-token
// records and its PostgreSQL, Redis and in-memory implementations.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/orgdesk/internal/server/models"
)

// Repository is the narrow store the rotation protocol depends on.
type Repository interface {
	// Create inserts a new, non-revoked record. rt.CreatedAt is filled in.
	Create(ctx context.Context, rt *models.RefreshToken) error

	// FindByID returns the record whose ID equals the tokenId claim.
	// Implementations return common.ErrorNotFound when it is absent.
	FindByID(ctx context.Context, id string) (*models.RefreshToken, error)

	// RevokeIfActive flips revoked from false to true for one record and
	// reports whether this call performed the flip. Two concurrent callers
	// for the same id can never both observe true.
	RevokeIfActive(ctx context.Context, id string) (bool, error)

	// RevokeFamily marks every record of family revoked and returns how many
	// records changed state.
	RevokeFamily(ctx context.Context, family string) (int64, error)

	// CountActive returns the number of non-revoked records in family.
	CountActive(ctx context.Context, family string) (int64, error)
}

// Store is a Repository that can also rotate a record in one step.
type Store interface {
	Repository

	// Rotate revokes the active record oldID and inserts next as a single
	// atomic change. It returns false and changes nothing when oldID is
	// missing or already revoked. On error neither write is applied.
	Rotate(ctx context.Context, oldID string, next *models.RefreshToken) (bool, error)
}
