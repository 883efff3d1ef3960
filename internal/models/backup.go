package models

import "time"

// BackupMetadata summarizes what a backup contains.
type BackupMetadata struct {
	TotalConversations int `json:"totalConversations"`
	TotalMessages      int `json:"totalMessages"`
	TotalFiles         int `json:"totalFiles"`
}

// BackupEntry is a versioned snapshot of the store's contents. Data holds
// the (optionally compressed/encrypted) export payload; Checksum is the
// SHA-256 digest of Data, hex-encoded. Invariant: len(Data) == Size.
type BackupEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Version    string         `json:"version"`
	Size       int64          `json:"size"`
	Compressed bool           `json:"compressed"`
	Encrypted  bool           `json:"encrypted"`
	Checksum   string         `json:"checksum"`
	Data       []byte         `json:"data,omitempty"`
	Metadata   BackupMetadata `json:"metadata"`
}
