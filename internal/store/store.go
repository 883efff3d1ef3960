// Package store opens the local SQLite database, applies migrations and
// wires the per-collection repositories. It is the single shared surface
// the services use to reach persistent state.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/migrations"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/actions"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/backups"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/keys"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/records"
	"github.com/pressly/goose/v3"
)

// Store bundles the database handle and the repositories built on it.
type Store struct {
	db *sql.DB

	Records records.Repository
	Actions actions.Repository
	Backups backups.Repository
	Keys    keys.Repository
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (or creates) the database at dsn, migrates it and returns the
// wired repositories. quota is the record-store capacity in bytes, 0 for
// unlimited. Any open/migrate failure is reported as
// common.ErrStorageUnavailable.
func Open(ctx context.Context, dsn string, quota int64) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrations: %v", common.ErrStorageUnavailable, err)
	}

	return &Store{
		db:      db,
		Records: records.NewSQLiteRepository(db, quota),
		Actions: actions.NewSQLiteRepository(db),
		Backups: backups.NewSQLiteRepository(db),
		Keys:    keys.NewSQLiteRepository(db),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
