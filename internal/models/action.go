package models

import (
	"encoding/json"
	"time"
)

// ActionType is the kind of mutation an offline action replays.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// ActionStatus is the lifecycle state of a queued action.
//
// pending → processing → (deleted on success). On failure an action goes
// back to pending with RetryCount incremented, or to failed once the retry
// budget is exhausted. failed is terminal until retried or cleared.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionProcessing ActionStatus = "processing"
	ActionFailed     ActionStatus = "failed"
)

// OfflineAction is a durably queued mutation awaiting remote
// synchronization. IDs are unique and immutable.
type OfflineAction struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       ActionType      `json:"type"`
	Store      string          `json:"store"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retryCount"`
	Status     ActionStatus    `json:"status"`
}
