// Package manager orchestrates the data core subsystems: the persistent
// store, field encryption, backups and offline sync. It owns the
// initialization and shutdown order and aggregates status reporting.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/config"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/dmitrijs2005/datakeeper/internal/remote"
	"github.com/dmitrijs2005/datakeeper/internal/remote/s3store"
	"github.com/dmitrijs2005/datakeeper/internal/services/backup"
	"github.com/dmitrijs2005/datakeeper/internal/services/encryption"
	"github.com/dmitrijs2005/datakeeper/internal/services/syncmgr"
	"github.com/dmitrijs2005/datakeeper/internal/store"
)

// Manager is the single entry point the application holds. Subsystems
// come up in dependency order and go down in reverse.
type Manager struct {
	cfg *config.Config
	log logging.Logger

	store      *store.Store
	encryption *encryption.Service
	backup     *backup.Manager
	sync       *syncmgr.Manager

	mu          sync.Mutex
	initialized bool
}

func New(cfg *config.Config, log logging.Logger) *Manager {
	return &Manager{cfg: cfg, log: log}
}

// Initialize brings up storage, encryption, backups and sync, in that
// order. A second call is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	st, err := store.Open(ctx, m.cfg.Storage.DSN, m.cfg.Storage.QuotaBytes)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	m.store = st

	m.encryption = encryption.NewService(st.Keys, m.log)

	var mirror backup.Mirror
	if m.cfg.Backup.S3.Bucket != "" {
		s3m, err := s3store.NewMirror(ctx, m.cfg.Backup.S3)
		if err != nil {
			_ = st.Close()
			return fmt.Errorf("s3 mirror: %w", err)
		}
		mirror = s3m
	}
	m.backup = backup.NewManager(m.cfg.Backup, st.Records, st.Backups, mirror, m.log)
	if err := m.backup.Initialize(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("backup: %w", err)
	}

	client := remote.NewHTTPClient(m.cfg.Sync.Endpoint, m.cfg.Sync.AuthToken)
	m.sync = syncmgr.NewManager(m.cfg.Sync, st.Actions, client, m.log)
	if err := m.sync.Initialize(ctx); err != nil {
		m.backup.Destroy()
		_ = st.Close()
		return fmt.Errorf("sync: %w", err)
	}

	m.initialized = true
	m.log.Info(ctx, "data core initialized")
	return nil
}

// Unlock establishes the master key for the session. A first-run store
// gets the password set; an existing store verifies it.
func (m *Manager) Unlock(ctx context.Context, password string) error {
	ok, err := m.encryption.VerifyMasterPassword(ctx, password)
	if errors.Is(err, common.ErrNoMasterRecord) {
		return m.encryption.SetMasterPassword(ctx, password)
	}
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("invalid master password")
	}
	return nil
}

// Store exposes the record repositories.
func (m *Manager) Store() *store.Store { return m.store }

// Encryption exposes the field encryption service.
func (m *Manager) Encryption() *encryption.Service { return m.encryption }

// Backup exposes the backup manager.
func (m *Manager) Backup() *backup.Manager { return m.backup }

// Sync exposes the offline sync manager.
func (m *Manager) Sync() *syncmgr.Manager { return m.sync }

// GetStatus aggregates subsystem state into one health report.
func (m *Manager) GetStatus(ctx context.Context) (*models.Status, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return &models.Status{
			Health:      models.HealthCritical,
			Suggestions: []string{"initialize the data core"},
		}, nil
	}
	m.mu.Unlock()

	status := &models.Status{}

	used, quota, err := m.store.Records.Usage(ctx)
	if err != nil {
		return nil, err
	}
	status.StorageUsed = used
	status.StorageQuota = quota

	status.EncryptionReady = m.encryption.Initialized()
	if keyCount, err := m.encryption.KeyCount(ctx); err == nil {
		status.DataKeyCount = keyCount
	}

	entries, err := m.backup.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	status.BackupCount = len(entries)
	if len(entries) > 0 {
		status.LastBackup = entries[0].Timestamp
	}

	syncStatus, err := m.sync.Status(ctx)
	if err != nil {
		return nil, err
	}
	status.Sync = syncStatus

	m.classify(status)
	return status, nil
}

// classify derives the overall health grade and actionable suggestions.
func (m *Manager) classify(s *models.Status) {
	s.Health = models.HealthHealthy

	warn := func(suggestion string) {
		if s.Health == models.HealthHealthy {
			s.Health = models.HealthWarning
		}
		s.Suggestions = append(s.Suggestions, suggestion)
	}
	critical := func(suggestion string) {
		s.Health = models.HealthCritical
		s.Suggestions = append(s.Suggestions, suggestion)
	}

	if s.StorageQuota > 0 {
		switch {
		case s.StorageUsed >= s.StorageQuota:
			critical("storage quota exhausted, delete data or raise the quota")
		case s.StorageUsed*100 >= s.StorageQuota*80:
			warn("storage usage above 80%")
		}
	}

	if m.cfg.Encryption.Enabled && !s.EncryptionReady {
		critical("unlock encryption with the master password")
	}

	if s.Sync.FailedActions > 0 {
		warn("retry failed sync actions")
	}
	if !s.Sync.IsOnline && s.Sync.PendingActions > 0 {
		warn("pending changes will sync when back online")
	}
	if s.BackupCount == 0 {
		warn("no backups yet, create one")
	}
}

// Destroy shuts subsystems down in reverse initialization order.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil
	}

	m.sync.Destroy()
	m.backup.Destroy()
	m.encryption.Destroy()
	err := m.store.Close()

	m.initialized = false
	return err
}
