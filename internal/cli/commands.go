package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/datakeeper/internal/filex"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/dmitrijs2005/datakeeper/internal/services/backup"
	"github.com/dmitrijs2005/datakeeper/internal/services/encryption"
)

var errUsage = errors.New("usage: see help")

// fieldConfigFor maps a collection to the paths encrypted at rest.
func fieldConfigFor(collection string) (encryption.FieldConfig, bool) {
	switch collection {
	case models.CollectionConversations:
		return encryption.ConversationFields, true
	case models.CollectionFiles:
		return encryption.FileContentFields, true
	default:
		return encryption.FieldConfig{}, false
	}
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.core.GetStatus(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("health: %s", st.Health))
	printlnFn(fmt.Sprintf("storage: %d/%d bytes", st.StorageUsed, st.StorageQuota))
	printlnFn(fmt.Sprintf("encryption ready: %v (%d data keys)", st.EncryptionReady, st.DataKeyCount))
	printlnFn(fmt.Sprintf("backups: %d, last %s", st.BackupCount, st.LastBackup))
	printlnFn(fmt.Sprintf("sync: online=%v pending=%d failed=%d",
		st.Sync.IsOnline, st.Sync.PendingActions, st.Sync.FailedActions))
	for _, s := range st.Suggestions {
		printlnFn("  - " + s)
	}
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	recs, err := a.core.Store().Records.List(ctx, args[0])
	if err != nil {
		return err
	}
	for _, rec := range recs {
		printlnFn(fmt.Sprintf("%s  updated %s  %d bytes", rec.ID, rec.UpdatedAt.Format("2006-01-02 15:04:05"), len(rec.Data)))
	}
	printlnFn(fmt.Sprintf("%d record(s)", len(recs)))
	return nil
}

func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	collection, id := args[0], args[1]

	rec, err := a.core.Store().Records.Get(ctx, collection, id)
	if err != nil {
		return err
	}

	data := rec.Data
	if cfg, ok := fieldConfigFor(collection); ok && a.isUnlocked() {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err == nil {
			if dec, err := a.core.Encryption().DecryptObject(ctx, obj, cfg); err == nil {
				if raw, err := json.MarshalIndent(dec, "", "  "); err == nil {
					data = raw
				}
			}
		}
	}
	printlnFn(string(data))
	return nil
}

func (a *App) Put(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	collection, id := args[0], args[1]
	payload := strings.Join(args[2:], " ")

	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}

	if cfg, ok := fieldConfigFor(collection); ok && a.config.Encryption.Enabled {
		enc, err := a.core.Encryption().EncryptObject(ctx, obj, cfg)
		if err != nil {
			return err
		}
		obj = enc
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	typ := models.ActionCreate
	if _, err := a.core.Store().Records.Get(ctx, collection, id); err == nil {
		typ = models.ActionUpdate
	}

	rec := &models.Record{ID: id, Data: data}
	if err := a.core.Store().Records.Put(ctx, collection, rec); err != nil {
		return err
	}

	if _, err := a.core.Sync().QueueAction(ctx, typ, collection, data); err != nil {
		return err
	}
	printlnFn("saved " + id)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	collection, id := args[0], args[1]

	if err := a.core.Store().Records.Delete(ctx, collection, id); err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]string{"id": id})
	if _, err := a.core.Sync().QueueAction(ctx, models.ActionDelete, collection, payload); err != nil {
		return err
	}
	printlnFn("deleted " + id)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	res, err := a.core.Sync().PerformSync(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("synced %d, failed %d", res.Synced, res.Failed))
	return nil
}

func (a *App) Retry(ctx context.Context) error {
	res, err := a.core.Sync().RetryFailedActions(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("synced %d, failed %d", res.Synced, res.Failed))
	return nil
}

func (a *App) SetOnline(online bool) {
	a.core.Sync().SetOnline(online)
}

func (a *App) Backup(ctx context.Context) error {
	entry, err := a.core.Backup().CreateBackup(ctx, "")
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("created %s (%d bytes)", entry.ID, entry.Size))
	return nil
}

func (a *App) Backups(ctx context.Context) error {
	entries, err := a.core.Backup().ListBackups(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		printlnFn(fmt.Sprintf("%s  %s  %d bytes  conv=%d files=%d",
			e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.Size,
			e.Metadata.TotalConversations, e.Metadata.TotalFiles))
	}
	printlnFn(fmt.Sprintf("%d backup(s)", len(entries)))
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	res, err := a.core.Backup().RestoreBackup(ctx, args[0], backup.RestoreOptions{})
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("restored %d, skipped %d, errors %d", res.Restored, res.Skipped, len(res.Errors)))
	return nil
}

func (a *App) Export(ctx context.Context, args []string) error {
	opts := backup.AllExportOptions()
	if len(args) > 0 {
		opts.Format = args[0]
	}
	opts.Compress = a.config.Backup.Compress

	res := a.core.Backup().ExportAllData(ctx, opts, func(stage backup.Stage, pct int, msg string) {
		printlnFn(fmt.Sprintf("[%3d%%] %s", pct, msg))
	})
	if !res.Success {
		return errors.New(res.Error)
	}

	dir, err := filex.EnsureSubdDir("exports")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, res.Filename)
	if err := os.WriteFile(path, res.Data, 0o600); err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("wrote %s (%d items)", path, res.Metadata.TotalItems))
	return nil
}
