package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/config"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/backups"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/records"
)

// Mirror copies backup payloads to off-device storage. Implementations
// must tolerate Delete for objects that were never uploaded.
type Mirror interface {
	Upload(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
}

// Manager creates, validates, restores and prunes versioned backups of
// the record store.
type Manager struct {
	cfg     config.BackupConfig
	records records.Repository
	backups backups.Repository
	mirror  Mirror
	log     logging.Logger

	mu        sync.Mutex
	schedStop chan struct{}
	wg        sync.WaitGroup
}

// NewManager wires a backup manager. mirror may be nil when no
// off-device copy is configured.
func NewManager(cfg config.BackupConfig, rec records.Repository, bak backups.Repository,
	mirror Mirror, log logging.Logger) *Manager {
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 10
	}
	return &Manager{
		cfg:     cfg,
		records: rec,
		backups: bak,
		mirror:  mirror,
		log:     log,
	}
}

// Initialize starts the periodic backup schedule unless frequency is
// manual.
func (m *Manager) Initialize(ctx context.Context) error {
	interval := scheduleInterval(m.cfg.Frequency)
	if interval > 0 {
		m.startSchedule(ctx, interval)
	}
	m.log.Info(ctx, "backup manager initialized", "frequency", m.cfg.Frequency)
	return nil
}

// CreateBackup snapshots every collection into a new backup entry. The
// payload goes through the same export pipeline as a user export, with
// compression per configuration and an optional passphrase.
func (m *Manager) CreateBackup(ctx context.Context, passphrase string) (*models.BackupEntry, error) {
	opts := AllExportOptions()
	opts.Compress = m.cfg.Compress
	opts.Passphrase = passphrase

	result := m.ExportAllData(ctx, opts, nil)
	if !result.Success {
		return nil, fmt.Errorf("backup export: %s", result.Error)
	}

	suffix, err := common.MakeRandHexString(4)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(result.Data)
	entry := &models.BackupEntry{
		ID:         fmt.Sprintf("backup-%d-%s", time.Now().UnixMilli(), suffix),
		Timestamp:  time.Now().UTC(),
		Version:    ExportVersion,
		Size:       int64(len(result.Data)),
		Compressed: opts.Compress,
		Encrypted:  opts.Passphrase != "",
		Checksum:   hex.EncodeToString(digest[:]),
		Data:       result.Data,
	}

	counts, err := m.countContents(ctx)
	if err != nil {
		return nil, err
	}
	entry.Metadata = counts

	if err := m.backups.Insert(ctx, entry); err != nil {
		return nil, err
	}

	if m.mirror != nil {
		if err := m.mirror.Upload(ctx, entry.ID, entry.Data); err != nil {
			// the local copy is authoritative; a failed mirror upload is
			// logged, not fatal
			m.log.Warn(ctx, "backup mirror upload failed", "id", entry.ID, "error", err)
		}
	}

	m.log.Info(ctx, "backup created", "id", entry.ID, "size", entry.Size)
	return entry, nil
}

// countContents tallies what the store currently holds.
func (m *Manager) countContents(ctx context.Context) (models.BackupMetadata, error) {
	var meta models.BackupMetadata

	convs, err := m.records.List(ctx, models.CollectionConversations)
	if err != nil {
		return meta, err
	}
	meta.TotalConversations = len(convs)
	for _, rec := range convs {
		meta.TotalMessages += len(extractMessages(rec.Data))
	}

	files, err := m.records.List(ctx, models.CollectionFiles)
	if err != nil {
		return meta, err
	}
	meta.TotalFiles = len(files)
	return meta, nil
}

// ValidationResult reports integrity findings for a single backup.
type ValidationResult struct {
	Valid    bool                   `json:"valid"`
	Issues   []string               `json:"issues,omitempty"`
	Metadata *models.BackupMetadata `json:"metadata,omitempty"`
}

// ValidateBackup checks structural integrity of a stored backup:
// payload present, size and checksum match, timestamp plausible, and
// for unencrypted payloads that the document parses with all required
// sections.
func (m *Manager) ValidateBackup(ctx context.Context, id string) (*ValidationResult, error) {
	entry, err := m.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &ValidationResult{Metadata: &entry.Metadata}
	issue := func(format string, args ...any) {
		res.Issues = append(res.Issues, fmt.Sprintf(format, args...))
	}

	if len(entry.Data) == 0 {
		issue("payload is empty")
	}
	if int64(len(entry.Data)) != entry.Size {
		issue("size mismatch: recorded %d, actual %d", entry.Size, len(entry.Data))
	}
	digest := sha256.Sum256(entry.Data)
	if hex.EncodeToString(digest[:]) != entry.Checksum {
		issue("checksum mismatch")
	}
	if entry.Timestamp.IsZero() {
		issue("missing timestamp")
	} else if entry.Timestamp.After(time.Now().Add(time.Minute)) {
		issue("timestamp is in the future")
	}

	if len(res.Issues) == 0 && !entry.Encrypted {
		if _, err := parsePayload(entry.Data, entry.Compressed); err != nil {
			issue("payload unreadable: %v", err)
		}
	}

	res.Valid = len(res.Issues) == 0
	return res, nil
}

// parsePayload decompresses and parses a backup payload, checking the
// sections a well-formed export must carry.
func parsePayload(data []byte, compressed bool) (*exportPayload, error) {
	var err error
	if compressed {
		data, err = decompress(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidBackup, err)
		}
	}

	// probe for required top-level sections before the typed parse,
	// since Unmarshal silently tolerates missing keys
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidBackup, err)
	}
	for _, section := range []string{"metadata", "conversations", "files", "settings"} {
		if _, ok := probe[section]; !ok {
			return nil, fmt.Errorf("%w: missing section %q", common.ErrInvalidBackup, section)
		}
	}

	var payload exportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidBackup, err)
	}
	if payload.Metadata.Version == "" {
		return nil, fmt.Errorf("%w: missing version", common.ErrInvalidBackup)
	}
	return &payload, nil
}

// ListBackups returns all entries newest first, without payloads.
func (m *Manager) ListBackups(ctx context.Context) ([]models.BackupEntry, error) {
	return m.backups.List(ctx)
}

// DeleteBackup removes an entry locally and from the mirror.
func (m *Manager) DeleteBackup(ctx context.Context, id string) error {
	if err := m.backups.Delete(ctx, id); err != nil {
		return err
	}
	m.deleteMirrored(ctx, []string{id})
	return nil
}

// CleanupOldBackups applies retention: entries older than MaxAge go
// first, then everything beyond the MaxBackups most recent. Returns how
// many entries were removed.
func (m *Manager) CleanupOldBackups(ctx context.Context) (int, error) {
	var removed []string

	if m.cfg.MaxAge > 0 {
		ids, err := m.backups.DeleteOlderThan(ctx, time.Now().Add(-m.cfg.MaxAge))
		if err != nil {
			return 0, err
		}
		removed = append(removed, ids...)
	}

	ids, err := m.backups.DeleteBeyond(ctx, m.cfg.MaxBackups)
	if err != nil {
		return len(removed), err
	}
	removed = append(removed, ids...)

	m.deleteMirrored(ctx, removed)
	if len(removed) > 0 {
		m.log.Info(ctx, "backup retention applied", "removed", len(removed))
	}
	return len(removed), nil
}

func (m *Manager) deleteMirrored(ctx context.Context, ids []string) {
	if m.mirror == nil {
		return
	}
	for _, id := range ids {
		if err := m.mirror.Delete(ctx, id); err != nil {
			m.log.Warn(ctx, "backup mirror delete failed", "id", id, "error", err)
		}
	}
}

// scheduleInterval maps a frequency name to a ticker interval; manual
// and unknown values disable scheduling.
func scheduleInterval(frequency string) time.Duration {
	switch frequency {
	case "daily":
		return 24 * time.Hour
	case "weekly":
		return 7 * 24 * time.Hour
	case "monthly":
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// SetFrequency replaces the schedule at runtime. "manual" or an unknown
// value stops automatic backups.
func (m *Manager) SetFrequency(ctx context.Context, frequency string) {
	m.stopSchedule()
	m.mu.Lock()
	m.cfg.Frequency = frequency
	m.mu.Unlock()
	if interval := scheduleInterval(frequency); interval > 0 {
		m.startSchedule(ctx, interval)
	}
}

func (m *Manager) startSchedule(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop := make(chan struct{})
	m.schedStop = stop
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := m.CreateBackup(ctx, ""); err != nil {
					m.log.Error(ctx, "scheduled backup failed", "error", err)
					continue
				}
				if m.cfg.AutoCleanup {
					if _, err := m.CleanupOldBackups(ctx); err != nil {
						m.log.Error(ctx, "backup cleanup failed", "error", err)
					}
				}
			}
		}
	}()
}

func (m *Manager) stopSchedule() {
	m.mu.Lock()
	if m.schedStop != nil {
		close(m.schedStop)
		m.schedStop = nil
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Destroy stops the schedule and waits for an in-flight run to finish.
func (m *Manager) Destroy() {
	m.stopSchedule()
}
