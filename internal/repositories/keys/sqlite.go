package keys

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/models"
)

const masterKeyMetadataKey = "master_key"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
// The master key record lives in the metadata table; data keys have their
// own table keyed by domain.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveMaster(ctx context.Context, rec *models.MasterKeyRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal master key record: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, masterKeyMetadataKey, value)
	if err != nil {
		return fmt.Errorf("failed to save master key record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetMaster(ctx context.Context) (*models.MasterKeyRecord, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, masterKeyMetadataKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get master key record: %w", err)
	}
	rec := &models.MasterKeyRecord{}
	if err := json.Unmarshal(value, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal master key record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) SaveDataKey(ctx context.Context, rec *models.DataKeyRecord) error {
	query := `INSERT INTO data_keys (domain, id, algorithm, key_length, wrapped, nonce, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(domain) DO UPDATE SET id = excluded.id,
				algorithm = excluded.algorithm,
				key_length = excluded.key_length,
				wrapped = excluded.wrapped,
				nonce = excluded.nonce,
				created_at = excluded.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.Domain, rec.ID, rec.Algorithm, rec.KeyLength, rec.Wrapped, rec.Nonce, rec.Created.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save data key[%s]: %w", rec.Domain, err)
	}
	return nil
}

func (r *SQLiteRepository) GetDataKey(ctx context.Context, domain string) (*models.DataKeyRecord, error) {
	query := `SELECT id, algorithm, key_length, wrapped, nonce, created_at FROM data_keys WHERE domain=?`
	row := r.db.QueryRowContext(ctx, query, domain)

	rec := &models.DataKeyRecord{Domain: domain}
	var created int64
	err := row.Scan(&rec.ID, &rec.Algorithm, &rec.KeyLength, &rec.Wrapped, &rec.Nonce, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data key[%s]: %w", domain, err)
	}
	rec.Created = time.UnixMilli(created).UTC()
	return rec, nil
}

func (r *SQLiteRepository) DeleteDataKey(ctx context.Context, domain string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM data_keys WHERE domain=?`, domain)
	if err != nil {
		return fmt.Errorf("failed to delete data key[%s]: %w", domain, err)
	}
	return nil
}

func (r *SQLiteRepository) ListDataKeys(ctx context.Context) ([]models.DataKeyRecord, error) {
	query := `SELECT domain, id, algorithm, key_length, wrapped, nonce, created_at FROM data_keys`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list data keys: %w", err)
	}
	defer rows.Close()

	var result []models.DataKeyRecord
	for rows.Next() {
		var rec models.DataKeyRecord
		var created int64
		if err := rows.Scan(&rec.Domain, &rec.ID, &rec.Algorithm, &rec.KeyLength, &rec.Wrapped, &rec.Nonce, &created); err != nil {
			return nil, err
		}
		rec.Created = time.UnixMilli(created).UTC()
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
