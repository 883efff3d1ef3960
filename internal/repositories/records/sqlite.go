package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). quota is the maximum total payload size in bytes; 0 disables
// the check.
type SQLiteRepository struct {
	db    dbx.DBTX
	quota int64
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX, quota int64) *SQLiteRepository {
	return &SQLiteRepository{db: db, quota: quota}
}

func (r *SQLiteRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	query := `SELECT data, created_at, updated_at FROM records WHERE collection=? AND id=?`
	row := r.db.QueryRowContext(ctx, query, collection, id)

	rec := &models.Record{ID: id, Collection: collection}
	var created, updated int64
	if err := row.Scan(&rec.Data, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, collection string, record *models.Record) error {
	if r.quota > 0 {
		if err := r.checkQuota(ctx, collection, record); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Collection = collection

	query := `INSERT INTO records (collection, id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		collection, record.ID, []byte(record.Data), record.CreatedAt.UnixMilli(), record.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// checkQuota rejects writes that would push total payload bytes past the
// quota, crediting back the bytes of the row being replaced.
func (r *SQLiteRepository) checkQuota(ctx context.Context, collection string, record *models.Record) error {
	used, _, err := r.Usage(ctx)
	if err != nil {
		return err
	}
	var existing int64
	row := r.db.QueryRowContext(ctx,
		`SELECT LENGTH(data) FROM records WHERE collection=? AND id=?`, collection, record.ID)
	if err := row.Scan(&existing); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check quota: %w", err)
	}
	if used-existing+int64(len(record.Data)) > r.quota {
		return common.ErrQuotaExceeded
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, collection, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE collection=? AND id=?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, collection string) ([]models.Record, error) {
	query := `SELECT id, data, created_at, updated_at FROM records WHERE collection=? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		item := models.Record{Collection: collection}
		var created, updated int64
		if err := rows.Scan(&item.ID, &item.Data, &created, &updated); err != nil {
			return nil, err
		}
		item.CreatedAt = time.UnixMilli(created).UTC()
		item.UpdatedAt = time.UnixMilli(updated).UTC()
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Usage(ctx context.Context) (int64, int64, error) {
	var used int64
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(data)), 0) FROM records`)
	if err := row.Scan(&used); err != nil {
		return 0, 0, fmt.Errorf("failed to compute usage: %w", err)
	}
	return used, r.quota, nil
}
