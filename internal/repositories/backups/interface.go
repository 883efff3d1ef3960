package backups

import (
	"context"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/models"
)

// Repository persists backup entries. List returns summaries without the
// payload; GetByID loads the full entry.
type Repository interface {
	Insert(ctx context.Context, entry *models.BackupEntry) error
	GetByID(ctx context.Context, id string) (*models.BackupEntry, error)
	List(ctx context.Context) ([]models.BackupEntry, error)
	Delete(ctx context.Context, id string) error

	// DeleteOlderThan removes entries created before cutoff, returning
	// the ids removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteBeyond removes all entries except the keep most recent,
	// returning the ids removed.
	DeleteBeyond(ctx context.Context, keep int) ([]string, error)

	Count(ctx context.Context) (int, error)
}
