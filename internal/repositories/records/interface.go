package records

import (
	"context"

	"github.com/dmitrijs2005/datakeeper/internal/models"
)

// Repository is the collection-scoped record store. Each call is atomic;
// no cross-collection transactions are promised.
type Repository interface {
	// Get returns the record or common.ErrorNotFound.
	Get(ctx context.Context, collection, id string) (*models.Record, error)

	// Put upserts a record, bumping UpdatedAt and preserving CreatedAt on
	// update. Returns common.ErrQuotaExceeded when the write would exceed
	// the configured capacity.
	Put(ctx context.Context, collection string, record *models.Record) error

	// Delete removes a record; common.ErrorNotFound if nothing matched.
	Delete(ctx context.Context, collection, id string) error

	// List returns all records of a collection ordered by creation time.
	List(ctx context.Context, collection string) ([]models.Record, error)

	// Usage returns total payload bytes stored and the configured quota
	// (0 means unlimited).
	Usage(ctx context.Context) (used, quota int64, err error)
}
