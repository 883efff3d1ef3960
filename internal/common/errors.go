// Package common contains shared constants, sentinel errors and small
// utility functions used across datakeeper components. Callers should use
// errors.Is to match sentinel values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Store-level errors. ErrStorageUnavailable means the underlying
	// engine could not be opened or migrated; ErrQuotaExceeded means a
	// write would exceed the configured capacity.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrQuotaExceeded      = errors.New("quota exceeded")

	// Encryption errors.
	ErrNoMasterKey     = errors.New("no active master key")
	ErrNoMasterRecord  = errors.New("master password has not been set")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Sync errors.
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOffline        = errors.New("offline")

	// Backup errors.
	ErrInvalidBackup = errors.New("invalid backup")
)
