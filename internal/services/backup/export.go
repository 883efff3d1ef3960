package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/cryptox"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/klauspost/compress/gzip"
)

// ExportVersion identifies the export payload schema.
const ExportVersion = "1.0.0"

// Export formats.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatArchive = "archive"
)

// Stage names reported through the progress callback.
type Stage string

const (
	StagePreparing   Stage = "preparing"
	StageCollecting  Stage = "collecting"
	StageProcessing  Stage = "processing"
	StageCompressing Stage = "compressing"
	StageEncrypting  Stage = "encrypting"
	StageFinalizing  Stage = "finalizing"
)

// ProgressFunc receives stage, percentage 0–100 and a short message.
type ProgressFunc func(stage Stage, progress int, message string)

// ExportOptions selects what goes into an export and how it is shaped.
type ExportOptions struct {
	Format string

	IncludeConversations bool
	IncludeFiles         bool
	IncludeSettings      bool

	// Optional date range filter applied to conversations.
	DateFrom time.Time
	DateTo   time.Time

	Compress bool
	// Passphrase, when non-empty, encrypts the final payload.
	Passphrase string
}

// AllExportOptions includes every collection in JSON format.
func AllExportOptions() ExportOptions {
	return ExportOptions{
		Format:               FormatJSON,
		IncludeConversations: true,
		IncludeFiles:         true,
		IncludeSettings:      true,
	}
}

// ExportMetadata describes a finished export.
type ExportMetadata struct {
	ExportedAt    time.Time `json:"exportedAt"`
	TotalItems    int       `json:"totalItems"`
	IncludedTypes []string  `json:"includedTypes"`
	Compressed    bool      `json:"compressed"`
	Encrypted     bool      `json:"encrypted"`
}

// ExportResult is always returned, also on failure: Success false plus
// Error instead of a raised error, so one bad stage never crashes a
// caller that only wanted a progress report.
type ExportResult struct {
	Success  bool           `json:"success"`
	Filename string         `json:"filename,omitempty"`
	Data     []byte         `json:"-"`
	Metadata ExportMetadata `json:"metadata"`
	Error    string         `json:"error,omitempty"`
}

// exportPayload is the versioned, self-describing document format.
type exportPayload struct {
	Metadata      payloadMetadata            `json:"metadata"`
	Conversations []conversationExport       `json:"conversations"`
	Files         []json.RawMessage          `json:"files"`
	Settings      map[string]json.RawMessage `json:"settings"`
}

type payloadMetadata struct {
	Version            string    `json:"version"`
	ExportedAt         time.Time `json:"exportedAt"`
	TotalConversations int       `json:"totalConversations"`
	TotalMessages      int       `json:"totalMessages"`
	TotalFiles         int       `json:"totalFiles"`
}

type conversationExport struct {
	Conversation json.RawMessage   `json:"conversation"`
	Messages     []json.RawMessage `json:"messages"`
}

// ExportAllData runs the staged export pipeline. Every stage reports
// progress through the callback; any stage failure is converted into a
// structured failure result.
func (m *Manager) ExportAllData(ctx context.Context, opts ExportOptions, progress ProgressFunc) *ExportResult {
	report := func(stage Stage, pct int, msg string) {
		if progress != nil {
			progress(stage, pct, msg)
		}
	}
	fail := func(stage Stage, err error) *ExportResult {
		m.log.Error(ctx, "export stage failed", "stage", stage, "error", err)
		return &ExportResult{Success: false, Error: fmt.Sprintf("%s: %v", stage, err)}
	}

	report(StagePreparing, 0, "preparing export")
	if opts.Format == "" {
		opts.Format = FormatJSON
	}

	report(StageCollecting, 10, "collecting data")
	payload, err := m.collect(ctx, opts)
	if err != nil {
		return fail(StageCollecting, err)
	}

	report(StageProcessing, 40, "serializing "+opts.Format)
	data, ext, err := serialize(payload, opts.Format)
	if err != nil {
		return fail(StageProcessing, err)
	}

	if opts.Compress {
		report(StageCompressing, 60, "compressing")
		data, err = compress(data)
		if err != nil {
			return fail(StageCompressing, err)
		}
		ext += ".gz"
	}

	if opts.Passphrase != "" {
		report(StageEncrypting, 80, "encrypting")
		data, err = encryptPayload(data, opts.Passphrase)
		if err != nil {
			return fail(StageEncrypting, err)
		}
		ext += ".enc"
	}

	report(StageFinalizing, 95, "finalizing")
	meta := ExportMetadata{
		ExportedAt: payload.Metadata.ExportedAt,
		TotalItems: payload.Metadata.TotalConversations + payload.Metadata.TotalFiles +
			len(payload.Settings),
		IncludedTypes: includedTypes(opts),
		Compressed:    opts.Compress,
		Encrypted:     opts.Passphrase != "",
	}
	result := &ExportResult{
		Success:  true,
		Filename: fmt.Sprintf("datakeeper-export-%s.%s", meta.ExportedAt.Format("2006-01-02"), ext),
		Data:     data,
		Metadata: meta,
	}
	report(StageFinalizing, 100, "done")
	return result
}

// collect reads the requested collections from the store into the
// versioned payload.
func (m *Manager) collect(ctx context.Context, opts ExportOptions) (*exportPayload, error) {
	payload := &exportPayload{
		Conversations: []conversationExport{},
		Files:         []json.RawMessage{},
		Settings:      map[string]json.RawMessage{},
	}

	if opts.IncludeConversations {
		recs, err := m.records.List(ctx, models.CollectionConversations)
		if err != nil {
			return nil, fmt.Errorf("conversations: %w", err)
		}
		for _, rec := range recs {
			if !inDateRange(rec.CreatedAt, opts.DateFrom, opts.DateTo) {
				continue
			}
			conv := conversationExport{Conversation: rec.Data, Messages: extractMessages(rec.Data)}
			payload.Conversations = append(payload.Conversations, conv)
			payload.Metadata.TotalMessages += len(conv.Messages)
		}
	}

	if opts.IncludeFiles {
		recs, err := m.records.List(ctx, models.CollectionFiles)
		if err != nil {
			return nil, fmt.Errorf("files: %w", err)
		}
		for _, rec := range recs {
			payload.Files = append(payload.Files, rec.Data)
		}
	}

	if opts.IncludeSettings {
		recs, err := m.records.List(ctx, models.CollectionSettings)
		if err != nil {
			return nil, fmt.Errorf("settings: %w", err)
		}
		for _, rec := range recs {
			payload.Settings[rec.ID] = rec.Data
		}
	}

	payload.Metadata = payloadMetadata{
		Version:            ExportVersion,
		ExportedAt:         time.Now().UTC(),
		TotalConversations: len(payload.Conversations),
		TotalMessages:      payload.Metadata.TotalMessages,
		TotalFiles:         len(payload.Files),
	}
	return payload, nil
}

// serialize renders the payload in the requested format and returns the
// bytes plus a file extension.
func serialize(payload *exportPayload, format string) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(payload, "", "  ")
		return data, "json", err
	case FormatCSV:
		return serializeCSV(payload)
	case FormatArchive:
		return serializeArchive(payload)
	default:
		return nil, "", fmt.Errorf("unknown export format %q", format)
	}
}

// serializeCSV flattens every item into type/id/data rows.
func serializeCSV(payload *exportPayload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"type", "id", "messages", "data"}); err != nil {
		return nil, "", err
	}
	for _, conv := range payload.Conversations {
		row := []string{"conversation", rawID(conv.Conversation),
			strconv.Itoa(len(conv.Messages)), string(conv.Conversation)}
		if err := w.Write(row); err != nil {
			return nil, "", err
		}
	}
	for _, file := range payload.Files {
		if err := w.Write([]string{"file", rawID(file), "", string(file)}); err != nil {
			return nil, "", err
		}
	}
	for id, setting := range payload.Settings {
		if err := w.Write([]string{"setting", id, "", string(setting)}); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	return buf.Bytes(), "csv", w.Error()
}

// serializeArchive packs one JSON file per section into a zip.
func serializeArchive(payload *exportPayload) ([]byte, string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	sections := []struct {
		name string
		v    any
	}{
		{"metadata.json", payload.Metadata},
		{"conversations.json", payload.Conversations},
		{"files.json", payload.Files},
		{"settings.json", payload.Settings},
	}
	for _, s := range sections {
		f, err := zw.Create(s.name)
		if err != nil {
			return nil, "", err
		}
		data, err := json.MarshalIndent(s.v, "", "  ")
		if err != nil {
			return nil, "", err
		}
		if _, err := f.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "zip", nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(gz); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encryptPayload seals data under a passphrase-derived key. Layout:
// 32-byte salt, 12-byte nonce, ciphertext.
func encryptPayload(data []byte, passphrase string) ([]byte, error) {
	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveKey([]byte(passphrase), salt)
	defer common.WipeByteArray(key)

	ciphertext, nonce, err := cryptox.Encrypt(data, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func decryptPayload(data []byte, passphrase string) ([]byte, error) {
	if len(data) < 32+cryptox.NonceLength {
		return nil, fmt.Errorf("%w: encrypted payload too short", common.ErrInvalidBackup)
	}
	salt, nonce, ciphertext := data[:32], data[32:32+cryptox.NonceLength], data[32+cryptox.NonceLength:]
	key := cryptox.DeriveKey([]byte(passphrase), salt)
	defer common.WipeByteArray(key)
	return cryptox.Decrypt(ciphertext, nonce, key)
}

func inDateRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// extractMessages pulls the embedded message thread out of a
// conversation document, if it has one.
func extractMessages(data json.RawMessage) []json.RawMessage {
	var doc struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc.Messages
}

func rawID(data json.RawMessage) string {
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return doc.ID
}

func includedTypes(opts ExportOptions) []string {
	var types []string
	if opts.IncludeConversations {
		types = append(types, models.CollectionConversations)
	}
	if opts.IncludeFiles {
		types = append(types, models.CollectionFiles)
	}
	if opts.IncludeSettings {
		types = append(types, models.CollectionSettings)
	}
	return types
}
