package manager

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/datakeeper/internal/config"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.Sync.Interval = 0
	cfg.Backup.Frequency = "manual"
	return cfg
}

func setupManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	m := New(cfg, log)
	require.NoError(t, m.Initialize(context.Background()))
	t.Cleanup(func() { _ = m.Destroy() })
	return m
}

func TestInitialize_Idempotent(t *testing.T) {
	m := setupManager(t, testConfig(t))
	require.NoError(t, m.Initialize(context.Background()))
}

func TestUnlock_FirstRunSetsPassword(t *testing.T) {
	cfg := testConfig(t)
	m := setupManager(t, cfg)
	ctx := context.Background()

	require.NoError(t, m.Unlock(ctx, "Secret123!"))
	assert.True(t, m.Encryption().Initialized())
	require.NoError(t, m.Destroy())

	// a fresh process over the same database must verify, not reset
	m2 := setupManager(t, cfg)
	require.Error(t, m2.Unlock(ctx, "wrong"))
	require.NoError(t, m2.Unlock(ctx, "Secret123!"))
}

func TestGetStatus_Aggregates(t *testing.T) {
	m := setupManager(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, m.Unlock(ctx, "pw"))

	rec := &models.Record{ID: "c1", Data: json.RawMessage(`{"id":"c1","messages":[{}]}`)}
	require.NoError(t, m.Store().Records.Put(ctx, models.CollectionConversations, rec))

	entry, err := m.Backup().CreateBackup(ctx, "")
	require.NoError(t, err)

	status, err := m.GetStatus(ctx)
	require.NoError(t, err)

	assert.Positive(t, status.StorageUsed)
	assert.True(t, status.EncryptionReady)
	assert.Equal(t, 1, status.BackupCount)
	assert.Equal(t, entry.Timestamp.UnixMilli(), status.LastBackup.UnixMilli())
	assert.Equal(t, models.HealthHealthy, status.Health)
	assert.Empty(t, status.Suggestions)
}

func TestGetStatus_LockedEncryptionIsCritical(t *testing.T) {
	m := setupManager(t, testConfig(t))

	status, err := m.GetStatus(context.Background())
	require.NoError(t, err)

	assert.False(t, status.EncryptionReady)
	assert.Equal(t, models.HealthCritical, status.Health)
	assert.Contains(t, status.Suggestions, "unlock encryption with the master password")
}

func TestGetStatus_QuotaWarning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.QuotaBytes = 100
	m := setupManager(t, cfg)
	ctx := context.Background()
	require.NoError(t, m.Unlock(ctx, "pw"))

	// 86 bytes, above the 80% threshold but within quota
	data := json.RawMessage(`{"id":"big","body":"0123456789012345678901234567890123456789012345678901234567890123"}`)
	rec := &models.Record{ID: "big", Data: data}
	require.NoError(t, m.Store().Records.Put(ctx, models.CollectionConversations, rec))

	status, err := m.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.HealthWarning, status.Health)
	assert.Contains(t, status.Suggestions, "storage usage above 80%")
}

func TestGetStatus_BeforeInitialize(t *testing.T) {
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	m := New(testConfig(t), log)

	status, err := m.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthCritical, status.Health)
}

func TestDestroy_Twice(t *testing.T) {
	m := setupManager(t, testConfig(t))
	require.NoError(t, m.Destroy())
	require.NoError(t, m.Destroy())
}
