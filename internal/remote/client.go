// Package remote talks to the opaque remote endpoint the sync manager
// drains queued actions against. The endpoint is keyed by collection and
// record id and reports success or failure per call; Head exposes the
// server-side update time so an update can be checked for conflicts
// before it is applied.
package remote

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the transport-agnostic surface of the remote endpoint.
type Client interface {
	// Create pushes a new record.
	Create(ctx context.Context, store, id string, payload json.RawMessage) error

	// Update replaces an existing record.
	Update(ctx context.Context, store, id string, payload json.RawMessage) error

	// Delete removes a record.
	Delete(ctx context.Context, store, id string) error

	// Head returns the server-side last-modified time of a record, or
	// common.ErrorNotFound if the record does not exist remotely.
	Head(ctx context.Context, store, id string) (time.Time, error)

	// Ping probes reachability.
	Ping(ctx context.Context) error
}
