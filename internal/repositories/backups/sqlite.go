package backups

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
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

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.BackupEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal backup metadata: %w", err)
	}
	query := `INSERT INTO backups (id, ts, version, size, compressed, encrypted, checksum, data, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp.UnixMilli(), e.Version, e.Size,
		boolToInt(e.Compressed), boolToInt(e.Encrypted), e.Checksum, e.Data, meta)
	if err != nil {
		return fmt.Errorf("failed to insert backup: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.BackupEntry, error) {
	query := `SELECT ts, version, size, compressed, encrypted, checksum, data, metadata
			FROM backups WHERE id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	e := &models.BackupEntry{ID: id}
	var ts int64
	var compressed, encrypted int
	var meta []byte
	if err := row.Scan(&ts, &e.Version, &e.Size, &compressed, &encrypted, &e.Checksum, &e.Data, &meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	e.Compressed = compressed != 0
	e.Encrypted = encrypted != 0
	if err := json.Unmarshal(meta, &e.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup metadata: %w", err)
	}
	return e, nil
}

// List returns entries newest-first, without payloads.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.BackupEntry, error) {
	query := `SELECT id, ts, version, size, compressed, encrypted, checksum, metadata
			FROM backups ORDER BY ts DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select backups: %w", err)
	}
	defer rows.Close()

	var result []models.BackupEntry
	for rows.Next() {
		var e models.BackupEntry
		var ts int64
		var compressed, encrypted int
		var meta []byte
		if err := rows.Scan(&e.ID, &ts, &e.Version, &e.Size, &compressed, &encrypted, &e.Checksum, &meta); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Compressed = compressed != 0
		e.Encrypted = encrypted != 0
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal backup metadata: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM backups WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
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

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.collectIDs(ctx, `SELECT id FROM backups WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM backups WHERE ts < ?`, cutoff.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to delete old backups: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) DeleteBeyond(ctx context.Context, keep int) ([]string, error) {
	ids, err := r.collectIDs(ctx,
		`SELECT id FROM backups WHERE id NOT IN (SELECT id FROM backups ORDER BY ts DESC LIMIT ?)`, keep)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query := `DELETE FROM backups WHERE id NOT IN (SELECT id FROM backups ORDER BY ts DESC LIMIT ?)`
	if _, err := r.db.ExecContext(ctx, query, keep); err != nil {
		return nil, fmt.Errorf("failed to trim backups: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backups`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count backups: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select backup ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
