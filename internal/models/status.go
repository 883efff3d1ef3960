package models

import "time"

// SyncStatus is derived from the offline action collection plus the live
// connectivity signal; it is never persisted.
type SyncStatus struct {
	IsOnline       bool      `json:"isOnline"`
	IsSyncing      bool      `json:"isSyncing"`
	LastSync       time.Time `json:"lastSync"`
	PendingActions int       `json:"pendingActions"`
	FailedActions  int       `json:"failedActions"`
	SyncErrors     []string  `json:"syncErrors"`
}

// Health classification of the whole data core.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Status aggregates per-subsystem state for the orchestrator's report.
type Status struct {
	StorageUsed     int64      `json:"storageUsed"`
	StorageQuota    int64      `json:"storageQuota"`
	EncryptionReady bool       `json:"encryptionReady"`
	DataKeyCount    int        `json:"dataKeyCount"`
	BackupCount     int        `json:"backupCount"`
	LastBackup      time.Time  `json:"lastBackup"`
	Sync            SyncStatus `json:"sync"`
	Health          Health     `json:"health"`
	Suggestions     []string   `json:"suggestions"`
}
