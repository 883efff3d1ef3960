package keys

import (
	"context"

	"github.com/dmitrijs2005/datakeeper/internal/models"
)

// Repository persists encryption key material in its non-secret form: the
// master key derivation parameters and data keys wrapped under the master
// key. Lookups return (nil, nil) when nothing is stored, following the
// metadata-table convention.
type Repository interface {
	SaveMaster(ctx context.Context, rec *models.MasterKeyRecord) error
	GetMaster(ctx context.Context) (*models.MasterKeyRecord, error)

	SaveDataKey(ctx context.Context, rec *models.DataKeyRecord) error
	GetDataKey(ctx context.Context, domain string) (*models.DataKeyRecord, error)
	DeleteDataKey(ctx context.Context, domain string) error
	ListDataKeys(ctx context.Context) ([]models.DataKeyRecord, error)
}
