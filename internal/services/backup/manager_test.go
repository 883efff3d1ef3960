package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/config"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/backups"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupManager(t *testing.T, cfg config.BackupConfig) (*Manager, records.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  data BLOB NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE TABLE backups (
  id TEXT PRIMARY KEY,
  ts INTEGER NOT NULL,
  version TEXT NOT NULL,
  size INTEGER NOT NULL,
  compressed INTEGER NOT NULL DEFAULT 0,
  encrypted INTEGER NOT NULL DEFAULT 0,
  checksum TEXT NOT NULL,
  data BLOB NOT NULL,
  metadata BLOB NOT NULL
);
`)
	require.NoError(t, err)

	rec := records.NewSQLiteRepository(db, 0)
	bak := backups.NewSQLiteRepository(db)
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	return NewManager(cfg, rec, bak, nil, log), rec
}

func seedData(t *testing.T, rec records.Repository) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		data := fmt.Sprintf(`{"id":"conv-%d","title":"t%d","messages":[{"role":"user"},{"role":"assistant"}]}`, i, i)
		r := &models.Record{ID: fmt.Sprintf("conv-%d", i), Data: json.RawMessage(data)}
		require.NoError(t, rec.Put(ctx, models.CollectionConversations, r))
	}
	for i := 0; i < 10; i++ {
		data := fmt.Sprintf(`{"id":"file-%d","name":"f%d.txt"}`, i, i)
		r := &models.Record{ID: fmt.Sprintf("file-%d", i), Data: json.RawMessage(data)}
		require.NoError(t, rec.Put(ctx, models.CollectionFiles, r))
	}
	r := &models.Record{ID: "theme", Data: json.RawMessage(`{"value":"dark"}`)}
	require.NoError(t, rec.Put(ctx, models.CollectionSettings, r))
}

func TestCreateBackup_ValidatesClean(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{Compress: true})
	seedData(t, rec)
	ctx := context.Background()

	entry, err := m.CreateBackup(ctx, "")
	require.NoError(t, err)

	assert.Regexp(t, `^backup-\d+-[0-9a-f]{8}$`, entry.ID)
	assert.Equal(t, ExportVersion, entry.Version)
	assert.Equal(t, int64(len(entry.Data)), entry.Size)
	assert.True(t, entry.Compressed)
	assert.Equal(t, 5, entry.Metadata.TotalConversations)
	assert.Equal(t, 10, entry.Metadata.TotalMessages)
	assert.Equal(t, 10, entry.Metadata.TotalFiles)

	res, err := m.ValidateBackup(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, res.Valid, "issues: %v", res.Issues)
}

func TestValidateBackup_DetectsCorruption(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{})
	seedData(t, rec)
	ctx := context.Background()

	entry, err := m.CreateBackup(ctx, "")
	require.NoError(t, err)

	// corrupt the stored payload behind the manager's back
	entry.Data[0] ^= 0xff
	require.NoError(t, m.backups.Delete(ctx, entry.ID))
	require.NoError(t, m.backups.Insert(ctx, entry))

	res, err := m.ValidateBackup(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Issues)
}

func TestExportAllData_StagesAndFormats(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{})
	seedData(t, rec)
	ctx := context.Background()

	var stages []Stage
	progress := func(stage Stage, pct int, msg string) {
		if len(stages) == 0 || stages[len(stages)-1] != stage {
			stages = append(stages, stage)
		}
	}

	opts := AllExportOptions()
	opts.Compress = true
	opts.Passphrase = "pw"
	res := m.ExportAllData(ctx, opts, progress)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []Stage{StagePreparing, StageCollecting, StageProcessing,
		StageCompressing, StageEncrypting, StageFinalizing}, stages)
	assert.Contains(t, res.Filename, ".json.gz.enc")
	assert.Equal(t, 16, res.Metadata.TotalItems)
	assert.True(t, res.Metadata.Compressed)
	assert.True(t, res.Metadata.Encrypted)

	for _, format := range []string{FormatCSV, FormatArchive} {
		opts := AllExportOptions()
		opts.Format = format
		res := m.ExportAllData(ctx, opts, nil)
		require.True(t, res.Success, res.Error)
		assert.NotEmpty(t, res.Data)
	}
}

func TestExportAllData_UnknownFormatFailsStructured(t *testing.T) {
	m, _ := setupManager(t, config.BackupConfig{})

	opts := AllExportOptions()
	opts.Format = "xml"
	res := m.ExportAllData(context.Background(), opts, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "processing")
}

func TestExportAllData_DateRangeFilter(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{})
	seedData(t, rec)
	ctx := context.Background()

	opts := AllExportOptions()
	opts.IncludeFiles = false
	opts.IncludeSettings = false
	opts.DateTo = time.Now().Add(-time.Hour)
	res := m.ExportAllData(ctx, opts, nil)
	require.True(t, res.Success, res.Error)

	payload, err := parsePayload(res.Data, false)
	require.NoError(t, err)
	assert.Empty(t, payload.Conversations)
}

func TestRestoreBackup_RoundTrip(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{Compress: true})
	seedData(t, rec)
	ctx := context.Background()

	entry, err := m.CreateBackup(ctx, "")
	require.NoError(t, err)

	// wipe the store
	for _, coll := range []string{models.CollectionConversations, models.CollectionFiles, models.CollectionSettings} {
		recs, err := rec.List(ctx, coll)
		require.NoError(t, err)
		for _, r := range recs {
			require.NoError(t, rec.Delete(ctx, coll, r.ID))
		}
	}

	res, err := m.RestoreBackup(ctx, entry.ID, RestoreOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 16, res.Restored)
	assert.Zero(t, res.Skipped)
	assert.Empty(t, res.Errors)

	convs, err := rec.List(ctx, models.CollectionConversations)
	require.NoError(t, err)
	require.Len(t, convs, 5)
	assert.Len(t, extractMessages(convs[0].Data), 2)
}

func TestRestoreBackup_SkipsExistingWithoutOverwrite(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{})
	seedData(t, rec)
	ctx := context.Background()

	entry, err := m.CreateBackup(ctx, "")
	require.NoError(t, err)

	res, err := m.RestoreBackup(ctx, entry.ID, RestoreOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Restored)
	assert.Equal(t, 16, res.Skipped)

	res, err = m.RestoreBackup(ctx, entry.ID, RestoreOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, 16, res.Restored)
	assert.Zero(t, res.Skipped)
}

func TestRestoreBackup_EncryptedNeedsPassphrase(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{})
	seedData(t, rec)
	ctx := context.Background()

	entry, err := m.CreateBackup(ctx, "hunter2")
	require.NoError(t, err)
	assert.True(t, entry.Encrypted)

	_, err = m.RestoreBackup(ctx, entry.ID, RestoreOptions{})
	require.Error(t, err)

	_, err = m.RestoreBackup(ctx, entry.ID, RestoreOptions{Passphrase: "wrong"})
	require.Error(t, err)

	res, err := m.RestoreBackup(ctx, entry.ID, RestoreOptions{Passphrase: "hunter2", Overwrite: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 16, res.Restored)
}

func TestRestoreBackup_BadItemsDoNotAbort(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{})
	ctx := context.Background()

	// a file without an id alongside a valid one
	r := &models.Record{ID: "ok", Data: json.RawMessage(`{"id":"ok"}`)}
	require.NoError(t, rec.Put(ctx, models.CollectionFiles, r))
	r = &models.Record{ID: "no-id", Data: json.RawMessage(`{"name":"orphan"}`)}
	require.NoError(t, rec.Put(ctx, models.CollectionFiles, r))

	entry, err := m.CreateBackup(ctx, "")
	require.NoError(t, err)

	res, err := m.RestoreBackup(ctx, entry.ID, RestoreOptions{Overwrite: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Restored)
	assert.Len(t, res.Errors, 1)
}

func TestCleanupOldBackups_Retention(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{MaxBackups: 2, MaxAge: 24 * time.Hour})
	seedData(t, rec)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := m.CreateBackup(ctx, "")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	// an expired entry beyond MaxAge
	old := &models.BackupEntry{
		ID:        "backup-old",
		Timestamp: time.Now().Add(-48 * time.Hour),
		Version:   ExportVersion,
		Checksum:  "x",
		Data:      []byte("{}"),
		Size:      2,
	}
	require.NoError(t, m.backups.Insert(ctx, old))

	removed, err := m.CleanupOldBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	list, err := m.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, e := range list {
		assert.NotEqual(t, "backup-old", e.ID)
	}
}

func TestDeleteBackup_RemovesFromMirror(t *testing.T) {
	m, rec := setupManager(t, config.BackupConfig{})
	seedData(t, rec)
	ctx := context.Background()

	mirror := &fakeMirror{objects: map[string][]byte{}}
	m.mirror = mirror

	entry, err := m.CreateBackup(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, mirror.objects, entry.ID)

	require.NoError(t, m.DeleteBackup(ctx, entry.ID))
	assert.NotContains(t, mirror.objects, entry.ID)
}

func TestSetFrequency_StopsAndRestartsSchedule(t *testing.T) {
	m, _ := setupManager(t, config.BackupConfig{Frequency: "manual"})
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	m.mu.Lock()
	assert.Nil(t, m.schedStop)
	m.mu.Unlock()

	m.SetFrequency(ctx, "daily")
	m.mu.Lock()
	assert.NotNil(t, m.schedStop)
	m.mu.Unlock()

	m.SetFrequency(ctx, "manual")
	m.mu.Lock()
	assert.Nil(t, m.schedStop)
	m.mu.Unlock()

	m.Destroy()
}

type fakeMirror struct {
	objects map[string][]byte
}

func (f *fakeMirror) Upload(_ context.Context, id string, data []byte) error {
	f.objects[id] = data
	return nil
}

func (f *fakeMirror) Delete(_ context.Context, id string) error {
	delete(f.objects, id)
	return nil
}
