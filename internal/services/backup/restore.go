package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/models"
)

// RestoreOptions controls how a restore treats records that already
// exist in the store.
type RestoreOptions struct {
	// Overwrite replaces existing records; otherwise they are skipped.
	Overwrite bool
	// Passphrase decrypts an encrypted backup payload.
	Passphrase string
}

// RestoreResult reports what a restore managed to bring back. Success
// means either no errors occurred or at least something was restored.
type RestoreResult struct {
	Success  bool     `json:"success"`
	Restored int      `json:"restored"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// RestoreBackup loads a backup by id and writes its records back into
// the store. Restore is best-effort per section and per record: one bad
// conversation does not abort the files or settings sections.
func (m *Manager) RestoreBackup(ctx context.Context, id string, opts RestoreOptions) (*RestoreResult, error) {
	entry, err := m.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data := entry.Data
	if entry.Encrypted {
		if opts.Passphrase == "" {
			return nil, fmt.Errorf("%w: backup is encrypted, passphrase required", common.ErrInvalidBackup)
		}
		data, err = decryptPayload(data, opts.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: decryption failed", common.ErrInvalidBackup)
		}
	}

	payload, err := parsePayload(data, entry.Compressed)
	if err != nil {
		return nil, err
	}

	res := &RestoreResult{}
	m.restoreConversations(ctx, payload.Conversations, opts, res)
	m.restoreRaw(ctx, models.CollectionFiles, payload.Files, opts, res)
	m.restoreSettings(ctx, payload.Settings, opts, res)

	res.Success = len(res.Errors) == 0 || res.Restored > 0
	m.log.Info(ctx, "backup restored", "id", id,
		"restored", res.Restored, "skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

func (m *Manager) restoreConversations(ctx context.Context, convs []conversationExport,
	opts RestoreOptions, res *RestoreResult) {
	for i, conv := range convs {
		recID := rawID(conv.Conversation)
		if recID == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("conversation %d: missing id", i))
			continue
		}
		data, err := mergeMessages(conv.Conversation, conv.Messages)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("conversation %s: %v", recID, err))
			continue
		}
		m.restoreRecord(ctx, models.CollectionConversations, recID, data, opts, res)
	}
}

func (m *Manager) restoreRaw(ctx context.Context, collection string, items []json.RawMessage,
	opts RestoreOptions, res *RestoreResult) {
	for i, item := range items {
		recID := rawID(item)
		if recID == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("%s %d: missing id", collection, i))
			continue
		}
		m.restoreRecord(ctx, collection, recID, item, opts, res)
	}
}

func (m *Manager) restoreSettings(ctx context.Context, settings map[string]json.RawMessage,
	opts RestoreOptions, res *RestoreResult) {
	for recID, item := range settings {
		m.restoreRecord(ctx, models.CollectionSettings, recID, item, opts, res)
	}
}

func (m *Manager) restoreRecord(ctx context.Context, collection, recID string,
	data json.RawMessage, opts RestoreOptions, res *RestoreResult) {
	if !opts.Overwrite {
		if _, err := m.records.Get(ctx, collection, recID); err == nil {
			res.Skipped++
			return
		}
	}
	rec := &models.Record{ID: recID, Data: data}
	if err := m.records.Put(ctx, collection, rec); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", collection, recID, err))
		return
	}
	res.Restored++
}

// mergeMessages puts the exported message thread back into the
// conversation document, overriding whatever stale copy it carried.
func mergeMessages(conversation json.RawMessage, messages []json.RawMessage) (json.RawMessage, error) {
	if messages == nil {
		return conversation, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(conversation, &doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}
	doc["messages"] = raw
	return json.Marshal(doc)
}
