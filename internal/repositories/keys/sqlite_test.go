package keys

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE data_keys (
  domain TEXT PRIMARY KEY,
  id TEXT NOT NULL,
  algorithm TEXT NOT NULL,
  key_length INTEGER NOT NULL,
  wrapped BLOB NOT NULL,
  nonce BLOB NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE TABLE metadata (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func TestMasterRecord_RoundTripAndAbsent(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	got, err := r.GetMaster(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := &models.MasterKeyRecord{
		Salt:      []byte{1, 2, 3},
		Algorithm: "AES-GCM",
		KeyLength: 256,
		KDF:       "argon2id",
		Created:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, r.SaveMaster(ctx, rec))

	got, err = r.GetMaster(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Salt, got.Salt)
	assert.Equal(t, "argon2id", got.KDF)
}

func TestDataKey_UpsertByDomain(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := &models.DataKeyRecord{
		ID:        "k1",
		Domain:    "api-keys",
		Algorithm: "AES-GCM",
		KeyLength: 256,
		Wrapped:   []byte{0xaa},
		Nonce:     []byte{0xbb},
		Created:   time.Now(),
	}
	require.NoError(t, r.SaveDataKey(ctx, rec))

	// rotation replaces the row for the same domain
	rec2 := *rec
	rec2.ID = "k2"
	rec2.Wrapped = []byte{0xcc}
	require.NoError(t, r.SaveDataKey(ctx, &rec2))

	got, err := r.GetDataKey(ctx, "api-keys")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k2", got.ID)
	assert.Equal(t, []byte{0xcc}, got.Wrapped)

	all, err := r.ListDataKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDataKey_AbsentAndDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	got, err := r.GetDataKey(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := &models.DataKeyRecord{ID: "k", Domain: "files", Algorithm: "AES-GCM", KeyLength: 256,
		Wrapped: []byte{1}, Nonce: []byte{2}, Created: time.Now()}
	require.NoError(t, r.SaveDataKey(ctx, rec))
	require.NoError(t, r.DeleteDataKey(ctx, "files"))

	got, err = r.GetDataKey(ctx, "files")
	require.NoError(t, err)
	assert.Nil(t, got)
}
