// Package models defines the persisted and derived data types of the
// datakeeper core: records, offline actions, backup entries, encryption
// key metadata and sync status.
package models

import (
	"encoding/json"
	"time"
)

// Domain collections managed by the store. Internal collections (offline
// actions, backups, keys) live in their own tables and are not listed here.
const (
	CollectionConversations = "conversations"
	CollectionFiles         = "files"
	CollectionSettings      = "settings"
)

// Record is a domain entity stored in a named collection. Data holds the
// entity body as JSON; the store does not interpret it beyond well-formedness.
type Record struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
