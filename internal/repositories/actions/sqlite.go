package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, a *models.OfflineAction) error {
	query := `INSERT INTO offline_actions (id, ts, type, store, payload, retry_count, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Timestamp.UnixMilli(), string(a.Type), a.Store, []byte(a.Payload), a.RetryCount, string(a.Status))
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByStatus(ctx context.Context, status models.ActionStatus) ([]*models.OfflineAction, error) {
	query := `SELECT id, ts, type, store, payload, retry_count, status
			FROM offline_actions WHERE status=? ORDER BY ts`
	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to select actions: %w", err)
	}
	defer rows.Close()

	var result []*models.OfflineAction
	for rows.Next() {
		a := &models.OfflineAction{}
		var ts int64
		var typ, st string
		if err := rows.Scan(&a.ID, &ts, &typ, &a.Store, &a.Payload, &a.RetryCount, &st); err != nil {
			return nil, err
		}
		a.Timestamp = time.UnixMilli(ts).UTC()
		a.Type = models.ActionType(typ)
		a.Status = models.ActionStatus(st)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.ActionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE offline_actions SET status=? WHERE id=?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update action status: %w", err)
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

func (r *SQLiteRepository) MarkRetry(ctx context.Context, id string, status models.ActionStatus) error {
	query := `UPDATE offline_actions SET retry_count=retry_count+1, status=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to mark retry: %w", err)
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

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offline_actions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
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

func (r *SQLiteRepository) ResetFailed(ctx context.Context) (int, error) {
	query := `UPDATE offline_actions SET status=?, retry_count=0 WHERE status=?`
	res, err := r.db.ExecContext(ctx, query, string(models.ActionPending), string(models.ActionFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed actions: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(ra), nil
}

func (r *SQLiteRepository) DeleteFailed(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offline_actions WHERE status=?`, string(models.ActionFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to delete failed actions: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(ra), nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[models.ActionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM offline_actions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count actions: %w", err)
	}
	defer rows.Close()

	result := make(map[models.ActionStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		result[models.ActionStatus(st)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
